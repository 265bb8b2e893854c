// Package worker holds the asynq handlers run by `texttools worker`.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"texttools/internal/models"
	"texttools/internal/store"
	"texttools/internal/tasks"
)

// BatchWatcher is the slice of the batch lifecycle a background check needs.
type BatchWatcher interface {
	CheckStatus(ctx context.Context, jobName string) (models.JobStatus, error)
	FetchResults(ctx context.Context, jobName string) (*models.BatchResults, error)
}

// BatchCheckDeps holds dependencies for the batch:check handler.
type BatchCheckDeps struct {
	// Watchers maps a use-case kind ("detect", "categorize") to its lifecycle.
	Watchers     map[string]BatchWatcher
	JobClient    store.JobClient
	PollInterval time.Duration
}

// RegisterHandlers wires every task type this worker serves onto mux.
func RegisterHandlers(mux *asynq.ServeMux, deps BatchCheckDeps) {
	log.Infof("Registering handler for %s (kinds: %d)", tasks.TypeBatchCheck, len(deps.Watchers))
	mux.HandleFunc(tasks.TypeBatchCheck, HandleBatchCheck(deps))
}

// HandleBatchCheck polls a job once. A running job is re-enqueued after the
// poll interval, a completed one is fetched (dispatching result handlers) and
// a failed or cancelled one ends the chain without retries.
func HandleBatchCheck(deps BatchCheckDeps) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		p, err := tasks.DecodeBatchCheck(t.Payload())
		if err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		logger := log.WithFields(log.Fields{"kind": p.Kind, "job_name": p.JobName})

		watcher, ok := deps.Watchers[p.Kind]
		if !ok {
			return fmt.Errorf("no batch watcher for kind %q: %w", p.Kind, asynq.SkipRetry)
		}

		status, err := watcher.CheckStatus(ctx, p.JobName)
		if err != nil {
			// transient; let asynq retry
			return fmt.Errorf("check status of %s: %w", p.JobName, err)
		}

		switch {
		case status == models.JobStatusCompleted:
			results, err := watcher.FetchResults(ctx, p.JobName)
			if err != nil {
				var (
					failed   *models.BatchFailedError
					mismatch *models.LabelMismatchError
				)
				switch {
				case errors.As(err, &failed):
					logger.WithError(err).Warn("Batch failed while fetching results")
					return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
				case errors.As(err, &mismatch):
					logger.WithError(err).Warn("Results left for a fetch with matching settings")
					return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
				}
				return fmt.Errorf("fetch results of %s: %w", p.JobName, err)
			}
			logger.WithFields(log.Fields{
				"entries":  results.Len(),
				"failures": len(results.Failures()),
			}).Info("Batch results fetched")
			return nil

		case status.IsFailure():
			logger.WithField("status", status).Warn("Batch ended without results; stopping checks")
			return fmt.Errorf("batch %s is %s: %w", p.JobName, status, asynq.SkipRetry)

		default:
			if deps.JobClient == nil {
				return fmt.Errorf("batch %s still %s and no job client to reschedule", p.JobName, status)
			}
			if err := deps.JobClient.EnqueueBatchCheck(ctx, p.Kind, p.JobName, deps.PollInterval); err != nil {
				return fmt.Errorf("reschedule check for %s: %w", p.JobName, err)
			}
			logger.WithFields(log.Fields{"status": status, "next_check_in": deps.PollInterval}).Debug("Batch still running")
			return nil
		}
	}
}
