package cmd

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texttools/internal/app"
	"texttools/internal/config"
	"texttools/internal/models"
	"texttools/internal/services"
	"texttools/internal/services/batchtest"
	"texttools/internal/store/filestate"
	"texttools/pkg/detector"
)

type cmdFixture struct {
	provider *batchtest.Provider
	svc      *services.BatchService
	app      *app.App
}

func newCmdFixture(t *testing.T) *cmdFixture {
	t.Helper()
	provider := &batchtest.Provider{}
	d, err := detector.New(provider, filestate.New(t.TempDir()), services.BatchServiceOptions{WorkDir: t.TempDir()}, detector.Options{})
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Batch.PollInterval = time.Millisecond
	cfg.Batch.Timeout = time.Second
	return &cmdFixture{
		provider: provider,
		svc:      d.Service(),
		app:      &app.App{Config: cfg, Detector: d},
	}
}

// execute runs a fresh detect command tree with args and returns its output.
func (f *cmdFixture) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	parent := &cobra.Command{Use: "detect", SilenceUsage: true, SilenceErrors: true}
	newJobCommands(parent, models.KindDetect, func(*cobra.Command, *app.App) (*services.BatchService, error) {
		return f.svc, nil
	})
	var out bytes.Buffer
	parent.SetOut(&out)
	parent.SetArgs(args)
	err := parent.ExecuteContext(context.WithValue(context.Background(), appKey, f.app))
	return out.String(), err
}

func TestSubmitStatusFetch(t *testing.T) {
	f := newCmdFixture(t)

	out, err := f.execute(t, "submit", "j1", "is this a question?", "the sky is blue")
	require.NoError(t, err)
	assert.Contains(t, out, "Job j1 submitted as batch_1 (2 items")

	// resubmitting returns the stored job
	_, err = f.execute(t, "submit", "j1", "another text")
	require.NoError(t, err)
	assert.Equal(t, 1, f.provider.Creates)

	out, err = f.execute(t, "status", "j1")
	require.NoError(t, err)
	assert.Contains(t, out, "batch_1")
	assert.Contains(t, out, "completed")

	out, err = f.execute(t, "fetch", "j1")
	require.NoError(t, err)
	assert.Contains(t, out, "Fetched 2 results for j1")

	out, err = f.execute(t, "fetch", "j1")
	require.NoError(t, err)
	assert.Contains(t, out, "No results for j1 yet.")
}

func TestSubmitItemsAndWait(t *testing.T) {
	f := newCmdFixture(t)
	f.provider.Statuses = []models.JobStatus{models.JobStatusInProgress, models.JobStatusCompleted}

	_, err := f.execute(t, "submit", "j2", "--item", "a=is it?")
	require.NoError(t, err)
	require.Len(t, f.provider.Tasks(), 1)
	assert.Equal(t, "a", f.provider.Tasks()[0].CustomID)

	out, err := f.execute(t, "wait", "j2", "--interval", "1ms")
	require.NoError(t, err)
	assert.Contains(t, out, "Job j2 is completed")
}

func TestWaitSurfacesFailure(t *testing.T) {
	f := newCmdFixture(t)
	f.provider.Statuses = []models.JobStatus{models.JobStatusFailed}
	f.provider.FailureMessage = "invalid model"

	_, err := f.execute(t, "submit", "j3", "text")
	require.NoError(t, err)
	_, err = f.execute(t, "wait", "j3")
	require.Error(t, err)
	var failed *models.BatchFailedError
	assert.ErrorAs(t, err, &failed)
}

func TestRun(t *testing.T) {
	f := newCmdFixture(t)
	out, err := f.execute(t, "run", "one?", "two")
	require.NoError(t, err)
	assert.Contains(t, out, "Fetched 2 results for sync_")
}

func TestSubmitPayloadErrors(t *testing.T) {
	f := newCmdFixture(t)

	_, err := f.execute(t, "submit", "j4")
	assert.ErrorIs(t, err, models.ErrEmptyPayload)

	_, err = f.execute(t, "submit", "j4", "text", "--item", "a=b")
	assert.Error(t, err)

	_, err = f.execute(t, "submit", "j4", "text", "--watch")
	assert.ErrorContains(t, err, "--watch")
	assert.Equal(t, 1, f.provider.Creates)
}

func TestGetAppFromContext(t *testing.T) {
	_, err := GetAppFromContext(context.Background())
	assert.Error(t, err)

	a := &app.App{}
	got, err := GetAppFromContext(context.WithValue(context.Background(), appKey, a))
	require.NoError(t, err)
	assert.Same(t, a, got)
}
