package models

/*
Job status and task kind constants for use throughout the codebase.
Centralizing these avoids magic strings scattered across the lifecycle code.
*/

// JobStatus is the canonical lifecycle state of a batch job.
type JobStatus string

// Job status constants
const (
	JobStatusSubmitted  JobStatus = "submitted"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether no further transition can happen from s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// IsFailure reports whether s is a terminal state without usable results.
func (s JobStatus) IsFailure() bool {
	return s == JobStatusFailed || s == JobStatusCancelled
}

func (s JobStatus) String() string { return string(s) }

// Task kind constants, one per classification use case.
const (
	KindDetect     = "detect"
	KindCategorize = "categorize"
)
