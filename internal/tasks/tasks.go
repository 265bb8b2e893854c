package tasks

import (
	"encoding/json"
	"fmt"
)

// Defines constants for task types used in Asynq.

const (
	// TypeBatchCheck polls a named batch job once and fetches it when ready.
	TypeBatchCheck = "batch:check"

	// QueueBatch is the queue batch checks are enqueued on.
	QueueBatch = "batch"
)

// BatchCheckPayload identifies the job a batch:check task polls.
type BatchCheckPayload struct {
	Kind    string `json:"kind"`
	JobName string `json:"job_name"`
}

// EncodeBatchCheck serializes a payload for asynq.
func EncodeBatchCheck(p BatchCheckPayload) ([]byte, error) {
	return json.Marshal(p)
}

// DecodeBatchCheck parses a batch:check payload.
func DecodeBatchCheck(data []byte) (BatchCheckPayload, error) {
	var p BatchCheckPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", TypeBatchCheck, err)
	}
	if p.Kind == "" || p.JobName == "" {
		return p, fmt.Errorf("%s payload needs kind and job_name", TypeBatchCheck)
	}
	return p, nil
}
