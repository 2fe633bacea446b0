package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TickLock keeps several instances from running the same tick at once.
// Settlement stays correct without it; the lock only avoids duplicate venue traffic.
type TickLock interface {
	// Acquire reports whether this instance owns the tick. release is non-nil when acquired.
	Acquire(ctx context.Context) (release func(), acquired bool, err error)
}

// NoopLock always grants the tick.
type NoopLock struct{}

func (NoopLock) Acquire(context.Context) (func(), bool, error) {
	return func() {}, true, nil
}

// releaseScript deletes the key only if this instance still holds it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTickLock is a SET NX PX lease in Redis.
type RedisTickLock struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewRedisTickLock creates a lock on key. ttl must exceed the expected tick duration.
func NewRedisTickLock(client redis.Cmdable, key string, ttl time.Duration) (*RedisTickLock, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if key == "" {
		return nil, fmt.Errorf("lock key cannot be empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("lock ttl must be positive")
	}
	return &RedisTickLock{client: client, key: key, ttl: ttl}, nil
}

func (l *RedisTickLock) Acquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire tick lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// The tick's context may already be cancelled on shutdown.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{l.key}, token).Err()
	}
	return release, true, nil
}
