package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"

	"texttools/internal/models"
)

// OpenAIBatchProvider implements the BatchAPIProvider interface using the OpenAI client.
type OpenAIBatchProvider struct {
	client *openai.Client
}

// OpenAIOptions configures the OpenAI client behind the batch provider.
type OpenAIOptions struct {
	APIKey       string
	BaseURL      string
	Organization string
}

// NewOpenAIBatchProvider creates a new provider for OpenAI Batch API operations.
// Without an API key the provider is returned disabled and every call fails with
// models.ErrProviderDisabled.
func NewOpenAIBatchProvider(opts OpenAIOptions) *OpenAIBatchProvider {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY") // Fallback to env var
	}
	if apiKey == "" {
		log.Warn("OpenAI API key not provided. OpenAI Batch API provider will be disabled.")
		return &OpenAIBatchProvider{client: nil}
	}

	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.Organization != "" {
		cfg.OrgID = opts.Organization
	}
	log.Info("OpenAI Batch API provider initialized.")
	return &OpenAIBatchProvider{client: openai.NewClientWithConfig(cfg)}
}

// Enabled reports whether an API key was available.
func (p *OpenAIBatchProvider) Enabled() bool { return p.client != nil }

// CreateFile uploads a task file to OpenAI with purpose "batch".
func (p *OpenAIBatchProvider) CreateFile(ctx context.Context, filePath string) (string, error) {
	if p.client == nil {
		return "", models.ErrProviderDisabled
	}
	req := openai.FileRequest{
		FileName: filepath.Base(filePath),
		FilePath: filePath,
		Purpose:  string(openai.PurposeBatch),
	}
	file, err := p.client.CreateFile(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create OpenAI file '%s': %w", req.FileName, err)
	}
	return file.ID, nil
}

// CreateBatch creates a new batch job on OpenAI.
func (p *OpenAIBatchProvider) CreateBatch(ctx context.Context, inputFileID, endpoint, completionWindow string) (models.RemoteBatch, error) {
	if p.client == nil {
		return models.RemoteBatch{}, models.ErrProviderDisabled
	}
	req := openai.CreateBatchRequest{
		InputFileID:      inputFileID,
		Endpoint:         openai.BatchEndpoint(endpoint),
		CompletionWindow: completionWindow,
	}
	resp, err := p.client.CreateBatch(ctx, req)
	if err != nil {
		return models.RemoteBatch{}, fmt.Errorf("failed to create OpenAI batch job for file %s: %w", inputFileID, err)
	}
	return NormalizeBatch(resp.Batch), nil
}

// RetrieveBatch retrieves the status and details of an existing batch job.
func (p *OpenAIBatchProvider) RetrieveBatch(ctx context.Context, batchID string) (models.RemoteBatch, error) {
	if p.client == nil {
		return models.RemoteBatch{}, models.ErrProviderDisabled
	}
	resp, err := p.client.RetrieveBatch(ctx, batchID)
	if err != nil {
		return models.RemoteBatch{}, fmt.Errorf("failed to retrieve OpenAI batch job %s: %w", batchID, err)
	}
	return NormalizeBatch(resp.Batch), nil
}

// GetFileContent retrieves the content of a file generated by a batch job.
func (p *OpenAIBatchProvider) GetFileContent(ctx context.Context, fileID string) ([]byte, error) {
	if p.client == nil {
		return nil, models.ErrProviderDisabled
	}
	reader, err := p.client.GetFileContent(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get OpenAI file content for file %s: %w", fileID, err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OpenAI file content for file %s: %w", fileID, err)
	}
	return content, nil
}

// NormalizeBatch maps the OpenAI batch object onto the canonical RemoteBatch.
func NormalizeBatch(b openai.Batch) models.RemoteBatch {
	rb := models.RemoteBatch{
		ID:           b.ID,
		NativeStatus: b.Status,
		Status:       MapBatchStatus(b.Status),
	}
	if b.OutputFileID != nil {
		rb.OutputFileID = *b.OutputFileID
	}
	if b.ErrorFileID != nil {
		rb.ErrorFileID = *b.ErrorFileID
	}
	if b.Errors != nil && len(b.Errors.Data) > 0 {
		msgs := make([]string, 0, len(b.Errors.Data))
		for _, d := range b.Errors.Data {
			switch {
			case d.Message != "":
				msgs = append(msgs, d.Message)
			case d.Code != "":
				msgs = append(msgs, d.Code)
			}
		}
		rb.FailureMessage = strings.Join(msgs, "; ")
	}
	if rb.FailureMessage == "" && b.Status == "expired" {
		rb.FailureMessage = "batch expired before completion"
	}
	return rb
}

// MapBatchStatus maps a native OpenAI batch status onto the lifecycle enum.
// Unknown values are treated as still running.
func MapBatchStatus(native string) models.JobStatus {
	switch strings.ToLower(native) {
	case "completed":
		return models.JobStatusCompleted
	case "failed", "expired":
		return models.JobStatusFailed
	case "cancelled":
		return models.JobStatusCancelled
	default:
		return models.JobStatusInProgress
	}
}

// Ensure OpenAIBatchProvider implements the interface.
var _ BatchAPIProvider = (*OpenAIBatchProvider)(nil)
