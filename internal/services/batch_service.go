package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"texttools/internal/models"
	"texttools/internal/store"
)

const (
	DefaultEndpoint         = "/v1/chat/completions"
	DefaultCompletionWindow = "24h"
)

// BatchServiceOptions configures one BatchService. TaskBuilder and EntryParser
// are required.
type BatchServiceOptions struct {
	Endpoint         string
	CompletionWindow string
	// WorkDir receives the task files written at submission.
	WorkDir     string
	TaskBuilder TaskBuilder
	EntryParser EntryParser
	Handlers    []ResultHandler
	Locker      store.Locker
	// Labels are stored with every submitted job and must match at fetch time.
	Labels map[string]string
	Now         func() time.Time
}

// BatchService drives one use case through submit, poll, fetch and dispatch.
// A job name maps to at most one remote job at a time.
type BatchService struct {
	provider   BatchAPIProvider
	states     store.JobStateStore
	opts       BatchServiceOptions
	dispatcher *HandlerDispatcher
	group      singleflight.Group
	jobs       jobMutex
}

// NewBatchService creates a new BatchService.
func NewBatchService(provider BatchAPIProvider, states store.JobStateStore, opts BatchServiceOptions) (*BatchService, error) {
	if provider == nil {
		return nil, errors.New("batch provider cannot be nil")
	}
	if states == nil {
		return nil, errors.New("job state store cannot be nil")
	}
	if opts.TaskBuilder == nil || opts.EntryParser == nil {
		return nil, errors.New("task builder and entry parser are required")
	}
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.CompletionWindow == "" {
		opts.CompletionWindow = DefaultCompletionWindow
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	if opts.Locker == nil {
		opts.Locker = store.NoopLocker{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &BatchService{
		provider:   provider,
		states:     states,
		opts:       opts,
		dispatcher: NewHandlerDispatcher(opts.Handlers...),
	}, nil
}

// Record returns the stored record for jobName, or nil when there is none.
func (s *BatchService) Record(ctx context.Context, jobName string) (*models.JobRecord, error) {
	if err := store.ValidateJobName(jobName); err != nil {
		return nil, err
	}
	records, err := s.states.Load(ctx, jobName)
	if err != nil {
		return nil, fmt.Errorf("load job state %s: %w", jobName, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	if len(records) > 1 {
		log.Warnf("Job %s has %d stored records, using the first", jobName, len(records))
	}
	rec := records[0]
	return &rec, nil
}

// checkLabels rejects a record submitted under settings this service does not share.
func (s *BatchService) checkLabels(rec *models.JobRecord) error {
	for k, stored := range rec.Labels {
		current, ok := s.opts.Labels[k]
		if ok && current != stored {
			return &models.LabelMismatchError{JobName: rec.JobName, Key: k, Stored: stored, Current: current}
		}
	}
	return nil
}

func (s *BatchService) saveRecord(ctx context.Context, rec *models.JobRecord) error {
	return s.states.Save(ctx, rec.JobName, []models.JobRecord{*rec})
}

func (s *BatchService) now() time.Time { return s.opts.Now().UTC() }

// lockJob serializes every state write for jobName within this process and
// then across processes through the configured Locker.
func (s *BatchService) lockJob(ctx context.Context, jobName string) (func(), error) {
	unlock := s.jobs.lock(jobName)
	release, err := s.opts.Locker.Acquire(ctx, jobName)
	if err != nil {
		unlock()
		return nil, err
	}
	return func() {
		release()
		unlock()
	}, nil
}

// jobMutex hands out one mutex per job name and drops it once unused.
type jobMutex struct {
	mu    sync.Mutex
	names map[string]*jobLock
}

type jobLock struct {
	sync.Mutex
	refs int
}

func (m *jobMutex) lock(name string) func() {
	m.mu.Lock()
	if m.names == nil {
		m.names = map[string]*jobLock{}
	}
	l, ok := m.names[name]
	if !ok {
		l = &jobLock{}
		m.names[name] = l
	}
	l.refs++
	m.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		m.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(m.names, name)
		}
		m.mu.Unlock()
	}
}

func jobLogger(rec *models.JobRecord) *log.Entry {
	return log.WithFields(log.Fields{
		"job_name":  rec.JobName,
		"remote_id": rec.RemoteID,
		"status":    rec.Status,
	})
}
