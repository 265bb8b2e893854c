package app

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

// ConfigureLogging applies the log section of the config to the global logger.
func ConfigureLogging(level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(lvl)
	log.SetOutput(os.Stderr)
	if format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}
