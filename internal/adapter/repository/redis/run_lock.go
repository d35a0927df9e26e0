package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotHeld is returned when releasing a lock owned by another holder.
var ErrLockNotHeld = errors.New("lock not held")

// releaseScript deletes the key only while it still carries the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock implements usecase.RunLock using Redis.
type RunLock struct {
	client redis.UniversalClient
	prefix string
}

// NewRunLock creates a new RunLock.
func NewRunLock(client redis.UniversalClient) *RunLock {
	return &RunLock{
		client: client,
		prefix: "tripleledger:lock:",
	}
}

// TryLock acquires key for ttl. ok is false when someone else holds it.
func (l *RunLock) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Unlock releases key if token still owns it.
func (l *RunLock) Unlock(ctx context.Context, key, token string) error {
	deleted, err := releaseScript.Run(ctx, l.client, []string{l.prefix + key}, token).Int()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrLockNotHeld
	}
	return nil
}
