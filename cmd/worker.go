package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"texttools/internal/app"
	"texttools/internal/worker"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background batch watcher",
	Long: `Starts the asynq worker that processes batch:check tasks scheduled by
"submit --watch": running jobs are re-checked after the poll interval and
completed ones are fetched into the result handlers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get application context: %w", err)
		}
		if err := runWorker(appInstance); err != nil {
			log.Errorf("Worker exited with error: %v", err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

// runWorker initializes and runs the asynq worker server.
func runWorker(appInstance *app.App) error {
	cfg := appInstance.Config
	if appInstance.JobClient == nil {
		return fmt.Errorf("worker needs redis.address to reschedule checks")
	}

	srv := asynq.NewServer(
		appInstance.RedisClientOpt(),
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues:      cfg.Worker.Queues,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.WithFields(log.Fields{
					"type":    task.Type(),
					"payload": string(task.Payload()),
				}).WithError(err).Error("Asynq task failed")
			}),
			Logger: log.StandardLogger(),
		},
	)

	mux := asynq.NewServeMux()
	worker.RegisterHandlers(mux, worker.BatchCheckDeps{
		Watchers:     appInstance.Watchers(),
		JobClient:    appInstance.JobClient,
		PollInterval: cfg.Batch.PollInterval,
	})

	log.Infof("Starting asynq worker server (Concurrency: %d, Queues: %v)...", cfg.Worker.Concurrency, cfg.Worker.Queues)
	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	log.Info("Shutdown signal received. Initiating graceful shutdown...")
	srv.Stop()
	srv.Shutdown()
	log.Info("Worker shutdown complete.")
	return nil
}
