package services

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"texttools/internal/models"
)

// CheckStatus returns the lifecycle status of jobName. A job with no stored
// record reports completed. Failed and cancelled are returned as values.
func (s *BatchService) CheckStatus(ctx context.Context, jobName string) (models.JobStatus, error) {
	rec, err := s.Record(ctx, jobName)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return models.JobStatusCompleted, nil
	}
	if rec.Status.IsTerminal() {
		return rec.Status, nil
	}

	unlock, err := s.lockJob(ctx, jobName)
	if errors.Is(err, models.ErrLockHeld) {
		// Another process is submitting or fetching this job; report what is stored.
		return rec.Status, nil
	}
	if err != nil {
		return "", err
	}
	defer unlock()

	// A fetch may have advanced or cleared the record while we waited.
	rec, err = s.Record(ctx, jobName)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return models.JobStatusCompleted, nil
	}
	if rec.Status.IsTerminal() {
		return rec.Status, nil
	}
	if err := s.refresh(ctx, rec); err != nil {
		return "", err
	}
	return rec.Status, nil
}

// IsReady reports whether jobName has completed.
func (s *BatchService) IsReady(ctx context.Context, jobName string) (bool, error) {
	status, err := s.CheckStatus(ctx, jobName)
	if err != nil {
		return false, err
	}
	return status == models.JobStatusCompleted, nil
}

// refresh pulls the remote view into rec and persists it. Callers hold the job lock.
func (s *BatchService) refresh(ctx context.Context, rec *models.JobRecord) error {
	prev := rec.Status
	remote, err := s.provider.RetrieveBatch(ctx, rec.RemoteID)
	if err != nil {
		return fmt.Errorf("check status of job %s: %w", rec.JobName, err)
	}
	rec.ApplyRemote(remote, s.now())
	rec.UpdatedAt = s.now()
	if err := s.saveRecord(ctx, rec); err != nil {
		return fmt.Errorf("save status of job %s: %w", rec.JobName, err)
	}
	if rec.Status != prev {
		jobLogger(rec).WithFields(log.Fields{
			"previous":      prev,
			"native_status": remote.NativeStatus,
		}).Info("Batch job status changed")
	}
	return nil
}
