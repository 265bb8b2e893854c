package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidJobName   = errors.New("invalid job name")
	ErrEmptyPayload     = errors.New("payload is empty")
	ErrInvalidPayload   = errors.New("payload must hold either texts or items, not both")
	ErrLockHeld         = errors.New("job lock is held by another process")
	ErrProviderDisabled = errors.New("batch provider is not initialized (missing API key)")
)

// SubmissionError reports that uploading the task file or creating the remote
// batch failed. Nothing is persisted when it is returned, so Start can be retried.
type SubmissionError struct {
	JobName string
	Stage   string // "build", "write", "upload" or "create_batch"
	Err     error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit batch %q failed at %s: %v", e.JobName, e.Stage, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// BatchFailedError reports a remote job that ended failed, expired or cancelled.
type BatchFailedError struct {
	JobName  string
	RemoteID string
	Status   JobStatus
	Message  string
}

func (e *BatchFailedError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "no failure details returned"
	}
	return fmt.Sprintf("batch %q (%s) %s: %s", e.JobName, e.RemoteID, e.Status, msg)
}

// LabelMismatchError reports a fetch attempted with settings that differ from
// the ones the job was submitted with. The record is left untouched.
type LabelMismatchError struct {
	JobName string
	Key     string
	Stored  string
	Current string
}

func (e *LabelMismatchError) Error() string {
	return fmt.Sprintf("job %q was submitted with %s=%q, not %q", e.JobName, e.Key, e.Stored, e.Current)
}

// EntryParseError describes one result line that could not be turned into a value.
type EntryParseError struct {
	CustomID string
	Line     int
	Err      error
}

func (e *EntryParseError) Error() string {
	if e.CustomID == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("entry %s (line %d): %v", e.CustomID, e.Line, e.Err)
}

func (e *EntryParseError) Unwrap() error { return e.Err }

// TimeoutError is returned when a local wait exceeds its budget. The remote job
// keeps running and can still be fetched later under the same job name.
type TimeoutError struct {
	JobName string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for batch %q", e.Timeout, e.JobName)
}

// HandlerError wraps a failure raised by a result handler.
type HandlerError struct {
	Handler string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("result handler %s failed: %v", e.Handler, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
