package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/doorstepdoctor/doorstep-api/pkg/logging"
)

// unlockScript deletes the key only if we still own it.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// InitiationLock serializes prompt initiation per payment reference so a
// double-submitted request cannot ring the payer twice.
type InitiationLock struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewInitiationLock(redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) *InitiationLock {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &InitiationLock{redis: redisClient, ttl: ttl, logger: logger}
}

// TryLock returns a token when the lock was acquired. Without Redis, or when
// Redis errors, it degrades to an always-acquired lock; the ledger's
// conditional update still rejects a second attempt.
func (l *InitiationLock) TryLock(ctx context.Context, ref string) (string, bool, error) {
	token := uuid.NewString()
	if l == nil || l.redis == nil {
		return token, true, nil
	}
	ok, err := l.redis.SetNX(ctx, lockKey(ref), token, l.ttl).Result()
	if err != nil {
		l.logger.Warn("initiation lock unavailable", "error", err, "ref", ref)
		return token, true, nil
	}
	return token, ok, nil
}

// Unlock releases the lock if token still owns it.
func (l *InitiationLock) Unlock(ctx context.Context, ref, token string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	if err := unlockScript.Run(ctx, l.redis, []string{lockKey(ref)}, token).Err(); err != nil && err != redis.Nil {
		l.logger.Warn("initiation unlock failed", "error", err, "ref", ref)
		return err
	}
	return nil
}

func lockKey(ref string) string {
	return "lock:stk:" + ref
}
