// Package persistence provides Redis-backed adapters implementing outbound ports.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"leadestate_server/core/port/out"
	"leadestate_server/pkg/logger"
)

const jobLockKeyPrefix = "job:lock:"

// releaseScript deletes the lock only while we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunRecorder persists run times after a completed run.
type RunRecorder interface {
	RecordRun(ctx context.Context, name string, lastRun time.Time, nextRun *time.Time) error
}

// RedisJobLock implements out.JobLock with SET NX. The TTL frees the lock
// if the holder dies mid-run.
type RedisJobLock struct {
	client   *redis.Client
	owner    string
	ttl      time.Duration
	recorder RunRecorder
}

var _ out.JobLock = (*RedisJobLock)(nil)

// NewRedisJobLock creates a lock owned by workerID. recorder may be nil.
func NewRedisJobLock(client *redis.Client, workerID string, ttl time.Duration, recorder RunRecorder) *RedisJobLock {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisJobLock{
		client:   client,
		owner:    workerID,
		ttl:      ttl,
		recorder: recorder,
	}
}

func jobLockKey(name string) string {
	return jobLockKeyPrefix + name
}

func (l *RedisJobLock) TryAcquire(ctx context.Context, name string) (bool, error) {
	ok, err := l.client.SetNX(ctx, jobLockKey(name), l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire job lock: %w", err)
	}
	return ok, nil
}

func (l *RedisJobLock) Release(ctx context.Context, name string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{jobLockKey(name)}, l.owner).Int()
	if err != nil {
		return fmt.Errorf("failed to release job lock: %w", err)
	}
	if n == 0 {
		logger.Warn("[RedisJobLock] Lock %s expired or taken over before release", name)
	}
	return nil
}

func (l *RedisJobLock) Complete(ctx context.Context, name string, lastRun time.Time, nextRun *time.Time) error {
	if err := l.Release(ctx, name); err != nil {
		return err
	}
	if l.recorder == nil {
		return nil
	}
	return l.recorder.RecordRun(ctx, name, lastRun, nextRun)
}
