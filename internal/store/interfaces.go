package store

import (
	"context"
	"time"

	"texttools/internal/models"
)

// --- Job State Store ---

// JobStateStore persists the records of one named job. A missing or unreadable
// state is reported as an empty slice, never as an error.
type JobStateStore interface {
	Load(ctx context.Context, jobName string) ([]models.JobRecord, error)
	Save(ctx context.Context, jobName string, records []models.JobRecord) error
	Clear(ctx context.Context, jobName string) error
}

// --- Job Client ---

// JobClient schedules background status checks for submitted jobs.
type JobClient interface {
	EnqueueBatchCheck(ctx context.Context, kind, jobName string, delay time.Duration) error
	Close() error
}

// --- Locker ---

// Locker serializes work on a job name across processes. Release must only drop
// the lock if it is still owned by the caller.
type Locker interface {
	Acquire(ctx context.Context, jobName string) (release func(), err error)
}
