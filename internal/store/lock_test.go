package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texttools/internal/models"
)

// fakeRedis emulates SET NX and the compare-and-delete release script.
type fakeRedis struct {
	keys   map[string]string
	setErr error
	evals  int
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	f.evals++
	if f.keys[keys[0]] == args[0].(string) {
		delete(f.keys, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestRedisLocker_AcquireRelease(t *testing.T) {
	fr := &fakeRedis{keys: map[string]string{}}
	l := NewRedisLocker(fr, "", 0)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "job")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "job")
	assert.ErrorIs(t, err, models.ErrLockHeld)

	release()
	assert.Empty(t, fr.keys)
	assert.Equal(t, 1, fr.evals)

	release2, err := l.Acquire(ctx, "job")
	require.NoError(t, err)
	release2()
}

func TestRedisLocker_ReleaseKeepsForeignToken(t *testing.T) {
	fr := &fakeRedis{keys: map[string]string{}}
	l := NewRedisLocker(fr, "p:", time.Second)

	release, err := l.Acquire(context.Background(), "job")
	require.NoError(t, err)

	// Lock expired and was taken by someone else.
	fr.keys["p:job"] = "other-owner"
	release()
	assert.Equal(t, "other-owner", fr.keys["p:job"])
}

func TestRedisLocker_SetError(t *testing.T) {
	l := NewRedisLocker(&fakeRedis{keys: map[string]string{}, setErr: errors.New("timeout")}, "", 0)
	_, err := l.Acquire(context.Background(), "job")
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrLockHeld)
}

func TestNoopLocker(t *testing.T) {
	release, err := NoopLocker{}.Acquire(context.Background(), "anything")
	require.NoError(t, err)
	release()
}

func TestValidateJobName(t *testing.T) {
	assert.NoError(t, ValidateJobName("job_2024-01.a"))
	assert.ErrorIs(t, ValidateJobName("-leading"), models.ErrInvalidJobName)
	assert.ErrorIs(t, ValidateJobName("a/b"), models.ErrInvalidJobName)
}
