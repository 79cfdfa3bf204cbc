package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"qualtrack/internal/config"
	redisinfra "qualtrack/internal/infrastructure/redis"
)

// ErrLockNotAcquired is returned when a key stays busy for the whole wait period
var ErrLockNotAcquired = errors.New("lock not acquired")

const (
	keyPrefix        = "qualtrack:lock:"
	pollInterval     = 50 * time.Millisecond
	minRenewInterval = 100 * time.Millisecond
)

// Locker serializes work per key, such as a queue item id
type Locker interface {
	// Acquire blocks until key is held or the wait period ends. The returned
	// function releases the lock.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// NewLocker returns a redis-backed locker, or an in-process one when redis is disabled
func NewLocker(cfg *config.Config, client *redisinfra.RedisClient, logger *zap.Logger) Locker {
	if client == nil {
		return NewMemoryLocker(cfg.Lock.Wait)
	}
	return NewRedisLocker(client.Client, cfg.Lock.TTL, cfg.Lock.Wait, logger)
}

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	logger *zap.Logger
}

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the key's expiry only while it still holds our token
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// NewRedisLocker holds keys for ttl and keeps extending them until release,
// so a step blocked longer than ttl (on certificate selection, say) stays
// exclusive. ttl only bounds how long a crashed holder blocks others.
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration, logger *zap.Logger) Locker {
	return &redisLocker{client: client, ttl: ttl, wait: wait, logger: logger}
}

func (l *redisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	rkey := keyPrefix + key
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, rkey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockNotAcquired, key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		l.keepAlive(key, rkey, token, stop)
	}()

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-stopped

			// Release must outlive a cancelled request context.
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.client, []string{rkey}, token).Err(); err != nil {
				l.logger.Warn("Failed to release lock",
					zap.String("key", key),
					zap.Error(err),
				)
			}
		})
	}
	return release, nil
}

// keepAlive extends the lock every third of its ttl until stop is closed or
// the key no longer carries token.
func (l *redisLocker) keepAlive(key, rkey, token string, stop <-chan struct{}) {
	interval := renewInterval(l.ttl)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		n, err := renewScript.Run(ctx, l.client, []string{rkey}, token, l.ttl.Milliseconds()).Int64()
		cancel()
		if err != nil {
			l.logger.Warn("Failed to renew lock",
				zap.String("key", key),
				zap.Error(err),
			)
			continue
		}
		if n == 0 {
			l.logger.Error("Lock lost before release",
				zap.String("key", key),
			)
			return
		}
	}
}

func renewInterval(ttl time.Duration) time.Duration {
	if d := ttl / 3; d > minRenewInterval {
		return d
	}
	return minRenewInterval
}

type memoryLocker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
	wait time.Duration
}

// NewMemoryLocker serializes keys within this process only
func NewMemoryLocker(wait time.Duration) Locker {
	return &memoryLocker{held: make(map[string]chan struct{}), wait: wait}
}

func (l *memoryLocker) Acquire(ctx context.Context, key string) (func(), error) {
	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	for {
		l.mu.Lock()
		ch, busy := l.held[key]
		if !busy {
			done := make(chan struct{})
			l.held[key] = done
			l.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.held, key)
					l.mu.Unlock()
					close(done)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, fmt.Errorf("%w: %s", ErrLockNotAcquired, key)
		}
	}
}
