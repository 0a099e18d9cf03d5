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
	ErrLockNotAcquired = errors.New("professional lock not acquired")
)

// Locker guards the conflict-check-then-write critical section for a single
// professional's calendar. Overlap conflicts are per professional, so the
// lock key is the professional id rather than any particular time slot.
type Locker interface {
	WithProfessionalLock(ctx context.Context, professionalID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisProfessionalLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisProfessionalLocker creates a locker that uses a per professional Redis key
func NewRedisProfessionalLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisProfessionalLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisProfessionalLocker) WithProfessionalLock(ctx context.Context, professionalID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:professional:%s", professionalID.String())
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire professional lock: %w", err)
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

func (l *redisProfessionalLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release professional lock: %w", err)
	}
	return nil
}
