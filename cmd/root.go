package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"texttools/internal/app"
	"texttools/internal/config"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "texttools",
	Short: "Batch text classification on the OpenAI Batch API",
	Long: `texttools submits question detection and categorization jobs to the OpenAI
Batch API, tracks them under caller-chosen job names and fetches the results
into the configured result handlers.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand is given, print help.
		cmd.Help()
	},
	// PersistentPreRunE runs before any subcommand's RunE
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if err := app.ConfigureLogging(cfg.Log.Level, cfg.Log.Format); err != nil {
			return err
		}

		appInstance, err := app.NewApp(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}

		// Store the app instance in the command's context
		ctx := context.WithValue(cmd.Context(), appKey, appInstance)
		cmd.SetContext(ctx)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if appInstance, err := GetAppFromContext(cmd.Context()); err == nil {
			appInstance.Close()
		}
	},
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Define a custom type for the context key to avoid collisions.
type contextKey string

const appKey contextKey = "app"

// GetAppFromContext retrieves the app instance stored by PersistentPreRunE.
func GetAppFromContext(ctx context.Context) (*app.App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("application instance not found in context")
	}
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application instance not found in context")
	}
	return appInstance, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ./config.yaml or ~/.config/texttools/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check API key, state backend and Redis connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		appInstance, err := GetAppFromContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to get app instance: %w", err)
		}
		return runDoctor(ctx, appInstance, cmd.OutOrStdout())
	},
}
