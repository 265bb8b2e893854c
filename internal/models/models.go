package models

import (
	"encoding/json"
	"sort"
	"time"
)

// JobRecord is the persisted state of one remote batch submission.
type JobRecord struct {
	JobName        string    `json:"job_name"`
	RemoteID       string    `json:"remote_id"`
	Status         JobStatus `json:"status"`
	InputFileID    string    `json:"input_file_id,omitempty"`
	OutputFileID   string    `json:"output_file_id,omitempty"`
	ErrorFileID    string    `json:"error_file_id,omitempty"`
	FailureMessage string    `json:"failure_message,omitempty"`
	CustomIDs      []string  `json:"custom_ids,omitempty"` // in payload order
	TaskFile       string    `json:"task_file,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Labels are the submission settings results must be parsed with.
	Labels map[string]string `json:"labels,omitempty"`
}

// HasArtifacts reports whether output or error file ids are already cached.
func (r *JobRecord) HasArtifacts() bool {
	return r.OutputFileID != "" || r.ErrorFileID != ""
}

// ApplyRemote merges a fresh remote view into the record. Status never leaves a
// terminal value and artifact ids are only ever filled in, never reset.
// It reports whether anything changed.
func (r *JobRecord) ApplyRemote(rb RemoteBatch, now time.Time) bool {
	changed := false
	if !r.Status.IsTerminal() && rb.Status != "" && rb.Status != r.Status {
		r.Status = rb.Status
		changed = true
	}
	if r.OutputFileID == "" && rb.OutputFileID != "" {
		r.OutputFileID = rb.OutputFileID
		changed = true
	}
	if r.ErrorFileID == "" && rb.ErrorFileID != "" {
		r.ErrorFileID = rb.ErrorFileID
		changed = true
	}
	if r.FailureMessage == "" && rb.FailureMessage != "" {
		r.FailureMessage = rb.FailureMessage
		changed = true
	}
	if changed {
		r.UpdatedAt = now
	}
	return changed
}

// RemoteBatch is the canonical view of a remote job, already normalized by the
// provider adapter.
type RemoteBatch struct {
	ID             string
	Status         JobStatus
	NativeStatus   string
	OutputFileID   string
	ErrorFileID    string
	FailureMessage string
}

// Task is one line of the uploaded task file.
type Task struct {
	CustomID string `json:"custom_id"`
	Method   string `json:"method"`
	URL      string `json:"url"`
	Body     any    `json:"body"`
}

// Payload holds the items of one submission: either bare texts (ids are
// generated) or caller-keyed items.
type Payload struct {
	Texts []string
	Items map[string]string
}

// PayloadFromTexts builds a payload whose custom ids are generated at submission.
func PayloadFromTexts(texts ...string) Payload { return Payload{Texts: texts} }

// PayloadFromItems builds a payload keyed by caller-supplied ids.
func PayloadFromItems(items map[string]string) Payload { return Payload{Items: items} }

// Validate checks that exactly one form is populated.
func (p Payload) Validate() error {
	switch {
	case len(p.Texts) > 0 && len(p.Items) > 0:
		return ErrInvalidPayload
	case len(p.Texts) == 0 && len(p.Items) == 0:
		return ErrEmptyPayload
	}
	return nil
}

// Len returns the number of items in the payload.
func (p Payload) Len() int { return len(p.Texts) + len(p.Items) }

// SortedKeys returns the item keys in a stable order.
func (p Payload) SortedKeys() []string {
	keys := make([]string, 0, len(p.Items))
	for k := range p.Items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ResultLine is one decoded line of an output or error artifact.
type ResultLine struct {
	ID       string          `json:"id"`
	CustomID string          `json:"custom_id"`
	Response *ResultResponse `json:"response"`
	Error    *ResultError    `json:"error"`

	// Number is the 1-based line number within the artifact.
	Number int `json:"-"`
	// Doc is the generic decoding of the same line, for path lookups.
	Doc any `json:"-"`
}

type ResultResponse struct {
	StatusCode int             `json:"status_code"`
	RequestID  string          `json:"request_id"`
	Body       json.RawMessage `json:"body"`
}

type ResultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResultEntry is the outcome of one task.
type ResultEntry struct {
	CustomID string `json:"custom_id"`
	Value    any    `json:"value,omitempty"`
	Error    string `json:"error,omitempty"`
}

// OK reports whether the entry carries a parsed value.
func (e ResultEntry) OK() bool { return e.Error == "" }

// BatchResults is the reconciled result set of one job.
type BatchResults struct {
	JobName   string                 `json:"job_name"`
	RemoteID  string                 `json:"remote_id,omitempty"`
	Entries   map[string]ResultEntry `json:"entries"`
	RawErrors string                 `json:"raw_errors,omitempty"`
	Usage     TokenUsage             `json:"usage"`
}

// TokenUsage sums the token counts reported by result lines.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// NewBatchResults returns an empty result set for jobName.
func NewBatchResults(jobName string) *BatchResults {
	return &BatchResults{JobName: jobName, Entries: map[string]ResultEntry{}}
}

// Len returns the number of entries, successful or not.
func (r *BatchResults) Len() int { return len(r.Entries) }

// IsEmpty reports whether no entries were produced.
func (r *BatchResults) IsEmpty() bool { return len(r.Entries) == 0 }

// Values returns the successfully parsed values keyed by custom id.
func (r *BatchResults) Values() map[string]any {
	out := make(map[string]any, len(r.Entries))
	for id, e := range r.Entries {
		if e.OK() {
			out[id] = e.Value
		}
	}
	return out
}

// Failures returns the error messages keyed by custom id.
func (r *BatchResults) Failures() map[string]string {
	out := map[string]string{}
	for id, e := range r.Entries {
		if !e.OK() {
			out[id] = e.Error
		}
	}
	return out
}

// SortedIDs returns the entry ids in a stable order.
func (r *BatchResults) SortedIDs() []string {
	ids := make([]string, 0, len(r.Entries))
	for id := range r.Entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
