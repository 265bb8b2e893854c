package services

import (
	"context"

	"texttools/internal/models"
)

// --- Batch API Interface ---

// BatchAPIProvider defines methods for interacting with a Batch API (like OpenAI's).
// Implementations return the canonical RemoteBatch so callers never see vendor status strings.
type BatchAPIProvider interface {
	CreateFile(ctx context.Context, filePath string) (string, error)
	CreateBatch(ctx context.Context, inputFileID, endpoint, completionWindow string) (models.RemoteBatch, error)
	RetrieveBatch(ctx context.Context, batchID string) (models.RemoteBatch, error)
	GetFileContent(ctx context.Context, fileID string) ([]byte, error)
}

// TaskBuilder turns one input text into one task line.
type TaskBuilder func(customID, text string) (models.Task, error)

// EntryParser extracts the typed value of a successful result line.
type EntryParser func(line *models.ResultLine) (customID string, value any, err error)

// ResultHandler receives the reconciled results of a job.
type ResultHandler interface {
	Handle(ctx context.Context, results *models.BatchResults) error
}

// ResultHandlerFunc adapts a plain function to ResultHandler.
type ResultHandlerFunc func(ctx context.Context, results *models.BatchResults) error

func (f ResultHandlerFunc) Handle(ctx context.Context, results *models.BatchResults) error {
	return f(ctx, results)
}
