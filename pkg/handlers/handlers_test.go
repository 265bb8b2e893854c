package handlers

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texttools/internal/models"
)

type label string

func (l label) String() string { return "label:" + string(l) }

func sampleResults() *models.BatchResults {
	r := models.NewBatchResults("job-7")
	r.Entries["b"] = models.ResultEntry{CustomID: "b", Value: false}
	r.Entries["a"] = models.ResultEntry{CustomID: "a", Value: label("FRUIT")}
	r.Entries["c"] = models.ResultEntry{CustomID: "c", Error: "rate limited"}
	return r
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "x", FormatValue("x"))
	assert.Equal(t, "true", FormatValue(true))
	assert.Equal(t, "label:y", FormatValue(label("y")))
}

func TestNoOpResultHandler(t *testing.T) {
	assert.NoError(t, NoOpResultHandler{}.Handle(context.Background(), sampleResults()))
}

func TestPrintResultHandler(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	h := NewPrintResultHandler(&buf)

	require.NoError(t, h.Handle(context.Background(), sampleResults()))
	out := buf.String()
	assert.Contains(t, out, "Results for job job-7 (3 entries)")
	assert.Contains(t, out, "label:FRUIT")
	assert.Contains(t, out, "false")
	assert.Contains(t, out, "rate limited")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("label:FRUIT")), bytes.Index(buf.Bytes(), []byte("rate limited")))
}

func TestSaveToFileResultHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.csv")
	h := NewSaveToFileResultHandler(path)

	require.NoError(t, h.Handle(context.Background(), sampleResults()))
	second := models.NewBatchResults("job-8")
	second.Entries["d"] = models.ResultEntry{CustomID: "d", Value: "has,comma"}
	require.NoError(t, h.Handle(context.Background(), second))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,label:FRUIT\nb,false\nc,ERROR: rate limited\nd,\"has,comma\"\n", string(data))
}

func TestSaveToFileResultHandler_Unwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	h := NewSaveToFileResultHandler(filepath.Join(blocker, "results.csv"))
	assert.Error(t, h.Handle(context.Background(), sampleResults()))
}
