package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/doorstepdoctor/doorstep-api/pkg/logging"
)

// PromptLimiter caps how many STK prompts a phone number receives per window.
// Every prompt rings the payer's handset, so a retry loop is user-visible.
type PromptLimiter struct {
	redis  *redis.Client
	logger *logging.Logger
	max    int
	window time.Duration
}

// LimitResult contains the outcome of a limiter check.
type LimitResult struct {
	Allowed      bool
	CurrentCount int
	MaxAllowed   int
	WindowExpiry time.Time
	Message      string
}

// NewPromptLimiter creates a limiter. A nil client or non-positive max disables it.
func NewPromptLimiter(redisClient *redis.Client, maxPerWindow int, window time.Duration, logger *logging.Logger) *PromptLimiter {
	if logger == nil {
		logger = logging.Default()
	}
	if window <= 0 {
		window = time.Hour
	}
	return &PromptLimiter{
		redis:  redisClient,
		logger: logger,
		max:    maxPerWindow,
		window: window,
	}
}

// Check counts one prompt attempt for phone. Redis failures fail open.
func (l *PromptLimiter) Check(ctx context.Context, phone string) (*LimitResult, error) {
	if l == nil || l.redis == nil || l.max <= 0 {
		return &LimitResult{Allowed: true}, nil
	}
	ctx, span := intasendTracer.Start(ctx, "limiter.check_prompt")
	defer span.End()

	key := promptKey(phone)
	count, expiry, err := l.incrementAndGet(ctx, key)
	if err != nil {
		l.logger.Error("prompt limiter check failed", "error", err)
		return &LimitResult{Allowed: true, Message: "prompt limiter unavailable"}, nil
	}

	result := &LimitResult{
		Allowed:      count <= l.max,
		CurrentCount: count,
		MaxAllowed:   l.max,
		WindowExpiry: expiry,
	}
	if !result.Allowed {
		result.Message = fmt.Sprintf("exceeded %d payment prompts in %s", l.max, l.window)
		l.logger.Warn("prompt velocity exceeded",
			"phone", logging.MaskPhone(phone),
			"count", count,
			"max", l.max,
		)
		span.SetAttributes(attribute.Bool("limiter.exceeded", true))
	}
	return result, nil
}

func (l *PromptLimiter) incrementAndGet(ctx context.Context, key string) (int, time.Time, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if count == 1 {
		l.redis.Expire(ctx, key, l.window)
	}
	ttl, err := l.redis.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = l.window
	}
	return int(count), time.Now().Add(ttl), nil
}

func promptKey(phone string) string {
	return "limiter:stk:" + phone
}
