package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texttools/internal/models"
)

func newTestOpenAIServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/files", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "batch", r.FormValue("purpose"))
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "file-in-1", "object": "file", "purpose": "batch"})
	})
	mux.HandleFunc("/v1/batches", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "file-in-1", req["input_file_id"])
		assert.Equal(t, "/v1/chat/completions", req["endpoint"])
		assert.Equal(t, "24h", req["completion_window"])
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "batch_1", "object": "batch", "status": "validating"})
	})
	mux.HandleFunc("/v1/batches/batch_1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":             "batch_1",
			"object":         "batch",
			"status":         "completed",
			"output_file_id": "file-out-1",
			"error_file_id":  nil,
		})
	})
	mux.HandleFunc("/v1/batches/batch_bad", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "batch_bad",
			"object": "batch",
			"status": "failed",
			"errors": map[string]any{
				"object": "list",
				"data":   []map[string]any{{"code": "invalid_json_line", "message": "line 1 is not valid JSON"}},
			},
		})
	})
	mux.HandleFunc("/v1/files/file-out-1/content", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"custom_id":"a"}` + "\n"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIBatchProvider_Lifecycle(t *testing.T) {
	srv := newTestOpenAIServer(t)
	p := NewOpenAIBatchProvider(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.True(t, p.Enabled())
	ctx := context.Background()

	taskFile := filepath.Join(t.TempDir(), "batch_x.jsonl")
	require.NoError(t, os.WriteFile(taskFile, []byte(`{"custom_id":"a"}`+"\n"), 0o644))

	fileID, err := p.CreateFile(ctx, taskFile)
	require.NoError(t, err)
	assert.Equal(t, "file-in-1", fileID)

	rb, err := p.CreateBatch(ctx, fileID, string(openai.BatchEndpointChatCompletions), "24h")
	require.NoError(t, err)
	assert.Equal(t, "batch_1", rb.ID)
	assert.Equal(t, models.JobStatusInProgress, rb.Status)
	assert.Equal(t, "validating", rb.NativeStatus)

	rb, err = p.RetrieveBatch(ctx, "batch_1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, rb.Status)
	assert.Equal(t, "file-out-1", rb.OutputFileID)
	assert.Empty(t, rb.ErrorFileID)

	content, err := p.GetFileContent(ctx, "file-out-1")
	require.NoError(t, err)
	assert.Equal(t, `{"custom_id":"a"}`+"\n", string(content))
}

func TestOpenAIBatchProvider_FailureMessage(t *testing.T) {
	srv := newTestOpenAIServer(t)
	p := NewOpenAIBatchProvider(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})

	rb, err := p.RetrieveBatch(context.Background(), "batch_bad")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, rb.Status)
	assert.Equal(t, "line 1 is not valid JSON", rb.FailureMessage)
}

func TestOpenAIBatchProvider_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()
	p := NewOpenAIBatchProvider(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})

	_, err := p.RetrieveBatch(context.Background(), "batch_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_1")
}

func TestOpenAIBatchProvider_Disabled(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	p := NewOpenAIBatchProvider(OpenAIOptions{})
	assert.False(t, p.Enabled())

	_, err := p.CreateFile(context.Background(), "x.jsonl")
	assert.ErrorIs(t, err, models.ErrProviderDisabled)
	_, err = p.RetrieveBatch(context.Background(), "b")
	assert.ErrorIs(t, err, models.ErrProviderDisabled)
}

func TestMapBatchStatus(t *testing.T) {
	cases := map[string]models.JobStatus{
		"validating":  models.JobStatusInProgress,
		"in_progress": models.JobStatusInProgress,
		"finalizing":  models.JobStatusInProgress,
		"cancelling":  models.JobStatusInProgress,
		"completed":   models.JobStatusCompleted,
		"failed":      models.JobStatusFailed,
		"expired":     models.JobStatusFailed,
		"cancelled":   models.JobStatusCancelled,
		"brand_new":   models.JobStatusInProgress,
	}
	for native, want := range cases {
		assert.Equal(t, want, MapBatchStatus(native), native)
	}
}

func TestNormalizeBatch_Expired(t *testing.T) {
	rb := NormalizeBatch(openai.Batch{ID: "b", Status: "expired"})
	assert.Equal(t, models.JobStatusFailed, rb.Status)
	assert.NotEmpty(t, rb.FailureMessage)
}
