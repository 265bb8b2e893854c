package filestate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texttools/internal/models"
)

func sampleRecord(name string) models.JobRecord {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return models.JobRecord{
		JobName:     name,
		RemoteID:    "batch_123",
		Status:      models.JobStatusSubmitted,
		InputFileID: "file-in",
		CustomIDs:   []string{"a", "b"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestStore_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	s := New(filepath.Join(t.TempDir(), "state"))

	records, err := s.Load(ctx, "job1")
	require.NoError(t, err)
	assert.Empty(t, records, "absent job should load as empty")

	want := []models.JobRecord{sampleRecord("job1")}
	require.NoError(t, s.Save(ctx, "job1", want))

	got, err := s.Load(ctx, "job1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, s.Clear(ctx, "job1"))
	got, err = s.Load(ctx, "job1")
	require.NoError(t, err)
	assert.Empty(t, got)

	// Clearing twice is fine.
	require.NoError(t, s.Clear(ctx, "job1"))
}

func TestStore_SaveOverwritesAndLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := New(dir)

	first := sampleRecord("job2")
	require.NoError(t, s.Save(ctx, "job2", []models.JobRecord{first}))

	second := first
	second.Status = models.JobStatusCompleted
	second.OutputFileID = "file-out"
	require.NoError(t, s.Save(ctx, "job2", []models.JobRecord{second}))

	got, err := s.Load(ctx, "job2")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.JobStatusCompleted, got[0].Status)
	assert.Equal(t, "file-out", got[0].OutputFileID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "job2.json", entries[0].Name())
}

func TestStore_CorruptFileIsAbsent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := New(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))

	got, err := s.Load(ctx, "broken")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_RejectsUnsafeNames(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())

	for _, name := range []string{"", "../escape", "a/b", ".hidden", "with space"} {
		_, err := s.Load(ctx, name)
		assert.ErrorIs(t, err, models.ErrInvalidJobName, "name %q", name)
		assert.ErrorIs(t, s.Save(ctx, name, nil), models.ErrInvalidJobName, "name %q", name)
		assert.ErrorIs(t, s.Clear(ctx, name), models.ErrInvalidJobName, "name %q", name)
	}
}
