package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texttools/internal/models"
	"texttools/internal/preprocess"
	"texttools/internal/services"
	"texttools/internal/services/batchtest"
	"texttools/internal/store/filestate"
)

func questionResponder(t models.Task) string {
	text := batchtest.UserText(t)
	return batchtest.ChatLine(t.CustomID, fmt.Sprintf(`{"result": %v}`, strings.HasSuffix(text, "?")))
}

func newDetector(t *testing.T, p *batchtest.Provider, opts Options) *Detector {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Millisecond
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}
	d, err := New(p, filestate.New(t.TempDir()), services.BatchServiceOptions{WorkDir: t.TempDir()}, opts)
	require.NoError(t, err)
	return d
}

func TestDetector_BuildTask(t *testing.T) {
	d := newDetector(t, &batchtest.Provider{}, Options{Preprocess: preprocess.Normalize})

	task, err := d.BuildTask("id1", "  is   this a question?  ")
	require.NoError(t, err)
	assert.Equal(t, "id1", task.CustomID)
	assert.Equal(t, "POST", task.Method)
	assert.Equal(t, "/v1/chat/completions", task.URL)

	raw, err := json.Marshal(task)
	require.NoError(t, err)
	var decoded struct {
		Body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			ResponseFormat struct {
				Type       string `json:"type"`
				JSONSchema struct {
					Name   string          `json:"name"`
					Strict bool            `json:"strict"`
					Schema json.RawMessage `json:"schema"`
				} `json:"json_schema"`
			} `json:"response_format"`
		} `json:"body"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, DefaultModel, decoded.Body.Model)
	require.Len(t, decoded.Body.Messages, 2)
	assert.Equal(t, DefaultPrompt, decoded.Body.Messages[0].Content)
	assert.Equal(t, "is this a question?", decoded.Body.Messages[1].Content)
	assert.Equal(t, "json_schema", decoded.Body.ResponseFormat.Type)
	assert.Equal(t, "DetectionOutput", decoded.Body.ResponseFormat.JSONSchema.Name)
	assert.True(t, decoded.Body.ResponseFormat.JSONSchema.Strict)
	assert.Contains(t, string(decoded.Body.ResponseFormat.JSONSchema.Schema), `"result"`)

	_, err = d.BuildTask("id2", "   ")
	assert.Error(t, err, "blank text after normalization")
}

func parseLine(t *testing.T, raw string) (string, any, error) {
	t.Helper()
	var line models.ResultLine
	require.NoError(t, json.Unmarshal([]byte(raw), &line))
	require.NoError(t, json.Unmarshal([]byte(raw), &line.Doc))
	return ParseEntry(&line)
}

func TestParseEntry(t *testing.T) {
	id, v, err := parseLine(t, batchtest.ChatLine("a", `{"result": true}`))
	require.NoError(t, err)
	assert.Equal(t, "a", id)
	assert.Equal(t, true, v)

	// A top-level result in the body is preferred.
	_, v, err = parseLine(t, `{"custom_id":"b","response":{"status_code":200,"body":{"result":false}}}`)
	require.NoError(t, err)
	assert.Equal(t, false, v)

	_, _, err = parseLine(t, batchtest.ChatLine("c", `{"answer": "yes"}`))
	assert.Error(t, err)

	_, _, err = parseLine(t, `{"custom_id":"d","response":{"status_code":200,"body":{"choices":[]}}}`)
	assert.Error(t, err)
}

func TestDetector_SubmitWaitFetch(t *testing.T) {
	p := &batchtest.Provider{
		Respond:  questionResponder,
		Statuses: []models.JobStatus{models.JobStatusInProgress, models.JobStatusCompleted},
	}
	d := newDetector(t, p, Options{})
	ctx := context.Background()

	rec, err := d.Submit(ctx, models.PayloadFromTexts("is this a question?", "the sky is blue"), "j1")
	require.NoError(t, err)

	status, err := d.Status(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusInProgress, status)

	status, err = d.Wait(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, status)

	verdicts, failures, err := d.Fetch(ctx, "j1")
	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.Equal(t, map[string]bool{rec.CustomIDs[0]: true, rec.CustomIDs[1]: false}, verdicts)

	verdicts, _, err = d.Fetch(ctx, "j1")
	require.NoError(t, err)
	assert.Empty(t, verdicts)
}

func TestDetector_Detect(t *testing.T) {
	d := newDetector(t, &batchtest.Provider{Respond: questionResponder}, Options{})

	yes, err := d.Detect(context.Background(), "can you help me?")
	require.NoError(t, err)
	assert.True(t, yes)

	no, err := d.Detect(context.Background(), "I can help.")
	require.NoError(t, err)
	assert.False(t, no)
}

func TestDetector_DetectSurfacesEntryError(t *testing.T) {
	p := &batchtest.Provider{Respond: func(task models.Task) string {
		return batchtest.ErrorLine(task.CustomID, 400, "input too long")
	}}
	d := newDetector(t, p, Options{})

	_, err := d.Detect(context.Background(), "hello?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input too long")
}

func TestDetector_DetectTimesOut(t *testing.T) {
	p := &batchtest.Provider{Statuses: []models.JobStatus{models.JobStatusInProgress}}
	d := newDetector(t, p, Options{PollInterval: 2 * time.Millisecond, Timeout: 20 * time.Millisecond})

	_, err := d.Detect(context.Background(), "hello?")
	var te *models.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.True(t, strings.HasPrefix(te.JobName, "sync_"))
}
