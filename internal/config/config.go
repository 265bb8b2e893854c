package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TEXTTOOLS_BATCH_STATE_DIR.
const EnvPrefix = "TEXTTOOLS"

type Config struct {
	OpenAI struct {
		APIKey       string `mapstructure:"api_key"`
		BaseURL      string `mapstructure:"base_url"`
		Organization string `mapstructure:"organization"`
	} `mapstructure:"openai"`

	Batch struct {
		StateBackend     string        `mapstructure:"state_backend"` // "file" or "postgres"
		StateDir         string        `mapstructure:"state_dir"`
		WorkDir          string        `mapstructure:"work_dir"`
		Endpoint         string        `mapstructure:"endpoint"`
		CompletionWindow string        `mapstructure:"completion_window"`
		PollInterval     time.Duration `mapstructure:"poll_interval"`
		Timeout          time.Duration `mapstructure:"timeout"`
		Lock             struct {
			Enabled bool          `mapstructure:"enabled"`
			Prefix  string        `mapstructure:"prefix"`
			TTL     time.Duration `mapstructure:"ttl"`
		} `mapstructure:"lock"`
	} `mapstructure:"batch"`

	Detector struct {
		Model       string  `mapstructure:"model"`
		Prompt      string  `mapstructure:"prompt"` // inline text or path to a prompt file
		Temperature float32 `mapstructure:"temperature"`
		MaxTokens   int     `mapstructure:"max_tokens"`
	} `mapstructure:"detector"`

	Categorizer struct {
		Model       string   `mapstructure:"model"`
		Prompt      string   `mapstructure:"prompt"`
		Categories  []string `mapstructure:"categories"`
		Temperature float32  `mapstructure:"temperature"`
		MaxTokens   int      `mapstructure:"max_tokens"`
		Embedding   struct {
			Model string `mapstructure:"model"`
			// Examples lists prototype texts per category; a category without
			// examples is embedded by its name.
			Examples map[string][]string `mapstructure:"examples"`
			Store    bool                `mapstructure:"store"` // keep prototypes in database.primary
		} `mapstructure:"embedding"`
	} `mapstructure:"categorizer"`

	Preprocess struct {
		Normalize    bool `mapstructure:"normalize"`
		MaxSentences int  `mapstructure:"max_sentences"`
	} `mapstructure:"preprocess"`

	Handlers struct {
		Print    bool   `mapstructure:"print"`
		SaveFile string `mapstructure:"save_file"`
		Database struct {
			Enabled bool   `mapstructure:"enabled"`
			Driver  string `mapstructure:"driver"`
			DSN     string `mapstructure:"dsn"`
			Table   string `mapstructure:"table"`
		} `mapstructure:"database"`
	} `mapstructure:"handlers"`

	Database struct {
		Primary struct {
			DSN string `mapstructure:"dsn"`
		} `mapstructure:"primary"`
	} `mapstructure:"database"`

	Redis struct {
		Address  string `mapstructure:"address"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Worker struct {
		Concurrency int            `mapstructure:"concurrency"`
		Queues      map[string]int `mapstructure:"queues"`
	} `mapstructure:"worker"`

	Server struct {
		Address string `mapstructure:"address"`
	} `mapstructure:"server"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"` // "text" or "json"
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.organization", "")

	v.SetDefault("batch.state_backend", "file")
	v.SetDefault("batch.state_dir", ".batch_jobs")
	v.SetDefault("batch.work_dir", ".batch_jobs/tasks")
	v.SetDefault("batch.endpoint", "/v1/chat/completions")
	v.SetDefault("batch.completion_window", "24h")
	v.SetDefault("batch.poll_interval", "10s")
	v.SetDefault("batch.timeout", "10m")
	v.SetDefault("batch.lock.enabled", false)
	v.SetDefault("batch.lock.prefix", "texttools:lock:")
	v.SetDefault("batch.lock.ttl", "2m")

	v.SetDefault("detector.model", "gpt-4o-mini")
	v.SetDefault("detector.prompt", "")
	v.SetDefault("detector.temperature", 0)
	v.SetDefault("detector.max_tokens", 0)

	v.SetDefault("categorizer.model", "gpt-4o-mini")
	v.SetDefault("categorizer.prompt", "")
	v.SetDefault("categorizer.categories", []string{})
	v.SetDefault("categorizer.temperature", 0)
	v.SetDefault("categorizer.max_tokens", 0)
	v.SetDefault("categorizer.embedding.model", "text-embedding-3-small")
	v.SetDefault("categorizer.embedding.store", false)

	v.SetDefault("preprocess.normalize", true)
	v.SetDefault("preprocess.max_sentences", 0)

	v.SetDefault("handlers.print", true)
	v.SetDefault("handlers.save_file", "")
	v.SetDefault("handlers.database.enabled", false)
	v.SetDefault("handlers.database.driver", "sqlite3")
	v.SetDefault("handlers.database.dsn", "")
	v.SetDefault("handlers.database.table", "batch_results")

	v.SetDefault("database.primary.dsn", "")

	v.SetDefault("redis.address", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("worker.concurrency", 5)
	v.SetDefault("worker.queues", map[string]int{"batch": 1})

	v.SetDefault("server.address", ":8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig reads config.yaml (or configPath when set), a .env file in the
// working directory, and environment overrides prefixed with TEXTTOOLS_.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".") // Look for config.yaml in the current directory
		v.AddConfigPath("$HOME/.config/texttools")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The conventional OpenAI variable works without the prefix.
	if err := v.BindEnv("openai.api_key", EnvPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind OPENAI_API_KEY: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		// It's okay if the config file doesn't exist, Viper might rely solely on env vars
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(configPath == "" && errors.Is(err, fs.ErrNotExist)) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	config.Categorizer.Categories = splitList(config.Categorizer.Categories)
	return &config, nil
}

// splitList accepts both YAML lists and a single comma separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
