package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"texttools/internal/models"
)

// NoopLocker never blocks. It is used when no Redis is configured.
type NoopLocker struct{}

func (NoopLocker) Acquire(context.Context, string) (func(), error) { return func() {}, nil }

// redisCmdable is the subset of the go-redis client the locker needs.
type redisCmdable interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// releaseScript deletes the key only when it still holds our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// RedisLocker is a best-effort single-key lock per job name.
type RedisLocker struct {
	rdb    redisCmdable
	prefix string
	ttl    time.Duration
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker wraps an existing go-redis client.
func NewRedisLocker(rdb redisCmdable, prefix string, ttl time.Duration) *RedisLocker {
	if prefix == "" {
		prefix = "texttools:lock:"
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLocker{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Acquire takes the lock for jobName or returns models.ErrLockHeld.
func (l *RedisLocker) Acquire(ctx context.Context, jobName string) (func(), error) {
	key := l.prefix + jobName
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrLockHeld, jobName)
	}
	release := func() {
		// The caller's ctx may already be done by the time release runs.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.rdb.Eval(rctx, releaseScript, []string{key}, token).Err(); err != nil {
			log.Warnf("Failed to release lock %s: %v", key, err)
		}
	}
	return release, nil
}
