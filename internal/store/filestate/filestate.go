// Package filestate keeps job records as one JSON document per job name in a
// local directory.
package filestate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"texttools/internal/models"
	"texttools/internal/store"
)

// DefaultDir is used when no state directory is configured.
const DefaultDir = ".batch_jobs"

// Store implements store.JobStateStore on the local filesystem.
type Store struct {
	dir string
}

var _ store.JobStateStore = (*Store)(nil)

// New returns a Store rooted at dir. The directory is created lazily on first Save.
func New(dir string) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	return &Store{dir: dir}
}

// Dir returns the state directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(jobName string) (string, error) {
	if err := store.ValidateJobName(jobName); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, jobName+".json"), nil
}

// Load returns the records stored for jobName. A missing, unreadable or corrupt
// file yields an empty slice.
func (s *Store) Load(_ context.Context, jobName string) ([]models.JobRecord, error) {
	p, err := s.path(jobName)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warnf("Could not read job state %s, treating as absent: %v", p, err)
		}
		return nil, nil
	}
	var records []models.JobRecord
	if err := json.Unmarshal(data, &records); err != nil {
		log.Warnf("Corrupt job state %s, treating as absent: %v", p, err)
		return nil, nil
	}
	return records, nil
}

// Save replaces the state for jobName. The new content is written to a temp file
// in the same directory, synced and renamed over the target.
func (s *Store) Save(_ context.Context, jobName string, records []models.JobRecord) error {
	p, err := s.path(jobName)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job state %s: %w", jobName, err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create state dir %s: %w", s.dir, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+jobName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write job state %s: %w", jobName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync job state %s: %w", jobName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close job state %s: %w", jobName, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		cleanup()
		return fmt.Errorf("replace job state %s: %w", jobName, err)
	}
	return nil
}

// Clear removes the state for jobName. A missing file is not an error.
func (s *Store) Clear(_ context.Context, jobName string) error {
	p, err := s.path(jobName)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear job state %s: %w", jobName, err)
	}
	return nil
}
