package services

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"texttools/internal/models"
)

const (
	DefaultPollInterval = 10 * time.Second
	DefaultWaitTimeout  = 10 * time.Minute
)

// Wait polls jobName until it completes, fails, or the timeout expires. On
// timeout the remote job is left running and can be fetched later.
func (s *BatchService) Wait(ctx context.Context, jobName string, interval, timeout time.Duration) (models.JobStatus, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := s.CheckStatus(ctx, jobName)
		if err != nil {
			return "", err
		}
		switch {
		case status == models.JobStatusCompleted:
			return status, nil
		case status.IsFailure():
			rec, err := s.Record(ctx, jobName)
			if err != nil {
				log.WithField("job_name", jobName).Warnf("Could not load failure details: %v", err)
			}
			if rec == nil {
				rec = &models.JobRecord{JobName: jobName, Status: status}
			}
			return status, batchFailed(rec)
		}
		log.WithFields(log.Fields{"job_name": jobName, "status": status}).Debug("Waiting for batch job")

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-deadline.C:
			return status, &models.TimeoutError{JobName: jobName, Timeout: timeout}
		case <-ticker.C:
		}
	}
}

// Run submits payload under a generated job name, waits for it and fetches the
// results. On timeout the returned error names the job so it can be fetched later.
func (s *BatchService) Run(ctx context.Context, payload models.Payload, interval, timeout time.Duration) (*models.BatchResults, error) {
	jobName := "sync_" + NewCustomID()
	if _, err := s.Start(ctx, payload, jobName); err != nil {
		return nil, err
	}
	if _, err := s.Wait(ctx, jobName, interval, timeout); err != nil {
		return nil, err
	}
	return s.FetchResults(ctx, jobName)
}
