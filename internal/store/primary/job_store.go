package primary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"

	"texttools/internal/models"
	"texttools/internal/store"
)

const createStateTable = `
	CREATE TABLE IF NOT EXISTS batch_job_state (
		job_name   TEXT PRIMARY KEY,
		records    JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`

// EnsureSchema creates the state table if it does not exist yet.
func (s *StoreImpl) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createStateTable); err != nil {
		return fmt.Errorf("failed to create batch_job_state table: %w", err)
	}
	return nil
}

// Load returns the records stored for jobName. Missing rows and undecodable
// documents both load as empty.
func (s *StoreImpl) Load(ctx context.Context, jobName string) ([]models.JobRecord, error) {
	if err := store.ValidateJobName(jobName); err != nil {
		return nil, err
	}
	var raw []byte
	err := s.db.QueryRow(ctx, `SELECT records FROM batch_job_state WHERE job_name = $1`, jobName).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		log.Warnf("Could not read job state for %s, treating as absent: %v", jobName, err)
		return nil, nil
	}
	var records []models.JobRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		log.Warnf("Corrupt job state for %s, treating as absent: %v", jobName, err)
		return nil, nil
	}
	return records, nil
}

// Save upserts the state row for jobName.
func (s *StoreImpl) Save(ctx context.Context, jobName string, records []models.JobRecord) error {
	if err := store.ValidateJobName(jobName); err != nil {
		return err
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode job state %s: %w", jobName, err)
	}
	query := `
		INSERT INTO batch_job_state (job_name, records, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_name) DO UPDATE SET records = EXCLUDED.records, updated_at = EXCLUDED.updated_at`
	if _, err := s.db.Exec(ctx, query, jobName, raw, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save job state %s: %w", jobName, err)
	}
	return nil
}

// Clear deletes the state row for jobName, if any.
func (s *StoreImpl) Clear(ctx context.Context, jobName string) error {
	if err := store.ValidateJobName(jobName); err != nil {
		return err
	}
	cmdTag, err := s.db.Exec(ctx, `DELETE FROM batch_job_state WHERE job_name = $1`, jobName)
	if err != nil {
		return fmt.Errorf("failed to clear job state %s: %w", jobName, err)
	}
	if cmdTag.RowsAffected() == 0 {
		log.Debugf("No job state row for %s to clear", jobName)
	}
	return nil
}

// Ensure StoreImpl satisfies the JobStateStore interface
var _ store.JobStateStore = (*StoreImpl)(nil)
