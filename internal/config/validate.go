package config

import (
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

func (c *Config) Validate() error {
	// Batch lifecycle
	switch c.Batch.StateBackend {
	case "file":
		if c.Batch.StateDir == "" {
			return errors.New("batch.state_dir is required for the file state backend")
		}
	case "postgres":
		if c.Database.Primary.DSN == "" {
			return errors.New("database.primary.dsn is required for the postgres state backend")
		}
	default:
		return fmt.Errorf("batch.state_backend must be 'file' or 'postgres', got %q", c.Batch.StateBackend)
	}
	if c.Batch.Endpoint == "" {
		return errors.New("batch.endpoint is required")
	}
	if c.Batch.CompletionWindow == "" {
		return errors.New("batch.completion_window is required")
	}
	if c.Batch.PollInterval <= 0 {
		return errors.New("batch.poll_interval must be positive")
	}
	if c.Batch.Timeout <= 0 {
		return errors.New("batch.timeout must be positive")
	}
	if c.Batch.Lock.Enabled && c.Redis.Address == "" {
		return errors.New("redis.address is required when batch.lock.enabled is true")
	}

	// Use cases
	for _, name := range c.Categorizer.Categories {
		if strings.TrimSpace(name) == "" {
			return errors.New("categorizer.categories contains an empty name")
		}
	}
	if c.Categorizer.Embedding.Store && c.Database.Primary.DSN == "" {
		return errors.New("database.primary.dsn is required when categorizer.embedding.store is true")
	}
	if c.Preprocess.MaxSentences < 0 {
		return errors.New("preprocess.max_sentences must not be negative")
	}

	// Result handlers
	if c.Handlers.Database.Enabled {
		if c.Handlers.Database.Driver == "" || c.Handlers.Database.DSN == "" {
			return errors.New("handlers.database.driver and handlers.database.dsn are required when the database handler is enabled")
		}
	}

	// Worker config
	if c.Worker.Concurrency <= 0 {
		return errors.New("worker.concurrency must be a positive integer")
	}
	for name, priority := range c.Worker.Queues {
		if name == "" {
			return errors.New("worker.queues contains an empty queue name")
		}
		if priority <= 0 {
			return fmt.Errorf("worker.queues priority for queue '%s' must be positive", name)
		}
	}

	// Logging
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be 'text' or 'json', got %q", c.Log.Format)
	}
	return nil
}
