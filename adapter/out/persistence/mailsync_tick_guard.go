package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mailsync_server/core/port/out"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LocalTickGuard serializes ticks within one process.
type LocalTickGuard struct {
	mu sync.Mutex
}

func NewLocalTickGuard() *LocalTickGuard {
	return &LocalTickGuard{}
}

func (g *LocalTickGuard) TryAcquire(ctx context.Context) (bool, error) {
	return g.mu.TryLock(), nil
}

func (g *LocalTickGuard) Release(ctx context.Context) error {
	g.mu.Unlock()
	return nil
}

// SyncLockKey is the Redis key shared by every process syncing the same mailbox.
const SyncLockKey = "mailsync:lock:sync:"

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTickLock serializes ticks across processes with SET NX PX.
// The TTL bounds how long a crashed holder can block others.
type RedisTickLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration

	mu    sync.Mutex
	token string
}

func NewRedisTickLock(client *redis.Client, mailbox string, ttl time.Duration) *RedisTickLock {
	return &RedisTickLock{
		client: client,
		key:    SyncLockKey + mailbox,
		ttl:    ttl,
	}
}

func (l *RedisTickLock) TryAcquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.token != "" {
		return false, nil
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

func (l *RedisTickLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""

	if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release sync lock: %w", err)
	}
	return nil
}

var (
	_ out.TickGuard = (*LocalTickGuard)(nil)
	_ out.TickGuard = (*RedisTickLock)(nil)
)
