package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"texttools/internal/models"
	"texttools/internal/store"
)

// Start submits payload as a remote batch under jobName. If a record already
// exists for jobName it is returned and nothing is resubmitted.
func (s *BatchService) Start(ctx context.Context, payload models.Payload, jobName string) (*models.JobRecord, error) {
	if err := store.ValidateJobName(jobName); err != nil {
		return nil, err
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	if rec, err := s.Record(ctx, jobName); err != nil || rec != nil {
		return rec, err
	}

	v, err, _ := s.group.Do("start:"+jobName, func() (any, error) {
		return s.start(ctx, payload, jobName)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.JobRecord), nil
}

func (s *BatchService) start(ctx context.Context, payload models.Payload, jobName string) (*models.JobRecord, error) {
	unlock, err := s.lockJob(ctx, jobName)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Another process may have submitted while we waited for the lock.
	if rec, err := s.Record(ctx, jobName); err != nil || rec != nil {
		return rec, err
	}

	tasks, ids, err := s.buildTasks(payload)
	if err != nil {
		return nil, &models.SubmissionError{JobName: jobName, Stage: "build", Err: err}
	}
	taskFile, err := s.writeTaskFile(tasks)
	if err != nil {
		return nil, &models.SubmissionError{JobName: jobName, Stage: "write", Err: err}
	}

	fileID, err := s.provider.CreateFile(ctx, taskFile)
	if err != nil {
		removeTaskFile(taskFile)
		return nil, &models.SubmissionError{JobName: jobName, Stage: "upload", Err: err}
	}
	remote, err := s.provider.CreateBatch(ctx, fileID, s.opts.Endpoint, s.opts.CompletionWindow)
	if err != nil {
		removeTaskFile(taskFile)
		return nil, &models.SubmissionError{JobName: jobName, Stage: "create_batch", Err: err}
	}

	now := s.now()
	rec := &models.JobRecord{
		JobName:     jobName,
		RemoteID:    remote.ID,
		Status:      models.JobStatusSubmitted,
		InputFileID: fileID,
		CustomIDs:   ids,
		TaskFile:    taskFile,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if len(s.opts.Labels) > 0 {
		rec.Labels = make(map[string]string, len(s.opts.Labels))
		for k, v := range s.opts.Labels {
			rec.Labels[k] = v
		}
	}
	if err := s.saveRecord(ctx, rec); err != nil {
		jobLogger(rec).Errorf("Remote batch created but job state could not be saved: %v", err)
		return nil, fmt.Errorf("save job %s (remote batch %s): %w", jobName, remote.ID, err)
	}
	jobLogger(rec).WithField("tasks", len(tasks)).Info("Submitted batch job")
	return rec, nil
}

// buildTasks returns the tasks and their custom ids in submission order.
func (s *BatchService) buildTasks(payload models.Payload) ([]models.Task, []string, error) {
	var ids, texts []string
	if len(payload.Texts) > 0 {
		for _, text := range payload.Texts {
			ids = append(ids, NewCustomID())
			texts = append(texts, text)
		}
	} else {
		for _, k := range payload.SortedKeys() {
			ids = append(ids, k)
			texts = append(texts, payload.Items[k])
		}
	}

	tasks := make([]models.Task, 0, len(ids))
	for i, id := range ids {
		task, err := s.opts.TaskBuilder(id, texts[i])
		if err != nil {
			return nil, nil, fmt.Errorf("build task %s: %w", id, err)
		}
		switch task.CustomID {
		case "":
			task.CustomID = id
		case id:
		default:
			return nil, nil, fmt.Errorf("task builder returned custom id %q for %q", task.CustomID, id)
		}
		if task.Method == "" {
			task.Method = "POST"
		}
		if task.URL == "" {
			task.URL = s.opts.Endpoint
		}
		tasks = append(tasks, task)
	}
	return tasks, ids, nil
}

func (s *BatchService) writeTaskFile(tasks []models.Task) (string, error) {
	if err := os.MkdirAll(s.opts.WorkDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir %s: %w", s.opts.WorkDir, err)
	}
	path := filepath.Join(s.opts.WorkDir, "batch_"+NewCustomID()+".jsonl")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create task file: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, t := range tasks {
		if err := enc.Encode(t); err != nil {
			f.Close()
			removeTaskFile(path)
			return "", fmt.Errorf("encode task %s: %w", t.CustomID, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		removeTaskFile(path)
		return "", fmt.Errorf("write task file: %w", err)
	}
	if err := f.Close(); err != nil {
		removeTaskFile(path)
		return "", fmt.Errorf("close task file: %w", err)
	}
	return path, nil
}

func removeTaskFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warnf("Failed to remove task file %s: %v", path, err)
	}
}

// NewCustomID returns a 32 character hex id.
func NewCustomID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
