package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("chat pair lock not acquired")
)

// Locker guards the chat find-or-create critical section for one
// participant pair, so that two concurrent delegated care-plan runs
// for the same doctor/patient pair cannot both create a chat.
type Locker interface {
	WithChatLock(ctx context.Context, pairKey string, fn func(ctx context.Context) error) error
}

type redisChatLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisChatLocker creates a locker keyed by the canonical sorted
// participant-pair identifier.
func NewRedisChatLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisChatLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisChatLocker) WithChatLock(ctx context.Context, pairKey string, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:chat:%s", pairKey)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire chat lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisChatLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release chat lock: %w", err)
	}
	return nil
}
