package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texttools/internal/config"
	"texttools/internal/models"
	"texttools/pkg/handlers"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Batch.StateBackend = "file"
	cfg.Batch.StateDir = filepath.Join(dir, "state")
	cfg.Batch.WorkDir = filepath.Join(dir, "work")
	cfg.Batch.PollInterval = time.Second
	cfg.Batch.Timeout = time.Minute
	cfg.Redis.Address = "127.0.0.1:6379"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

func TestNewApp_FileBackend(t *testing.T) {
	cfg := testConfig(t)
	a, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.FileState)
	assert.Nil(t, a.PrimaryStore)
	assert.NotNil(t, a.Detector)
	assert.Nil(t, a.Categorizer)
	assert.DirExists(t, cfg.Batch.WorkDir)
	require.Len(t, a.Handlers, 1)
	assert.IsType(t, handlers.NoOpResultHandler{}, a.Handlers[0])

	_, err = a.Lifecycle(models.KindDetect)
	assert.NoError(t, err)
	_, err = a.Lifecycle(models.KindCategorize)
	assert.Error(t, err)
	_, err = a.Lifecycle("translate")
	assert.Error(t, err)

	watchers := a.Watchers()
	assert.Contains(t, watchers, models.KindDetect)
	assert.NotContains(t, watchers, models.KindCategorize)
}

func TestNewApp_WithCategoriesAndSQLite(t *testing.T) {
	cfg := testConfig(t)
	cfg.Categorizer.Categories = []string{"FRUIT", "VEHICLE"}
	cfg.Handlers.SaveFile = filepath.Join(t.TempDir(), "out.csv")
	cfg.Handlers.Database.Enabled = true
	cfg.Handlers.Database.Driver = "sqlite"
	cfg.Handlers.Database.DSN = filepath.Join(t.TempDir(), "results.db")

	a, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Categorizer)
	assert.Equal(t, []string{"FRUIT", "VEHICLE"}, a.Categorizer.Categories().Names())
	assert.Len(t, a.Handlers, 2)
	assert.Contains(t, a.Watchers(), models.KindCategorize)
}

func TestNewApp_BadPromptFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Detector.Prompt = filepath.Join(t.TempDir(), "missing.txt")

	_, err := NewApp(context.Background(), cfg)
	require.Error(t, err)
}

func TestConfigureLogging(t *testing.T) {
	require.NoError(t, ConfigureLogging("debug", "json"))
	require.NoError(t, ConfigureLogging("info", "text"))
	assert.Error(t, ConfigureLogging("loud", "text"))
}

func TestNewEmbeddingCategorizer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		data := make([]map[string]any, len(req.Input))
		for i, text := range req.Input {
			vec := []float32{0, 1}
			if strings.Contains(strings.ToLower(text), "apple") {
				vec = []float32{1, 0}
			}
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": vec}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig(t)
	cfg.OpenAI.APIKey = "sk-test"
	cfg.OpenAI.BaseURL = srv.URL + "/v1"
	cfg.Categorizer.Embedding.Examples = map[string][]string{"fruit": {"green apple"}, "vehicle": {"bus"}}

	ctx := context.Background()
	a, err := NewApp(ctx, cfg)
	require.NoError(t, err)
	defer a.Close()

	c, err := a.NewEmbeddingCategorizer(ctx, []string{"FRUIT", "VEHICLE"})
	require.NoError(t, err)
	got, err := c.Categorize(ctx, "an apple a day")
	require.NoError(t, err)
	assert.Equal(t, "FRUIT", got.String())

	_, err = a.NewEmbeddingCategorizer(ctx, nil)
	assert.Error(t, err)
}
