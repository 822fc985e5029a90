package payments

import (
	"context"
	"time"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
	"github.com/doorstepdoctor/doorstep-api/internal/observability/metrics"
	"github.com/doorstepdoctor/doorstep-api/pkg/logging"
)

// ExistingAttempt reports a prompt already recorded for the charge, or nil.
type ExistingAttempt func(ctx context.Context) (*PaymentResult, error)

// Initiator wraps a Gateway with the guards every charge needs: a per-phone
// prompt limit and a per-reference lock, checked before the single outbound call.
type Initiator struct {
	gateway Gateway
	limiter *PromptLimiter
	lock    *InitiationLock
	metrics *metrics.PaymentMetrics
	logger  *logging.Logger
}

func NewInitiator(gateway Gateway, limiter *PromptLimiter, lock *InitiationLock, m *metrics.PaymentMetrics, logger *logging.Logger) *Initiator {
	if gateway == nil {
		panic("payments: gateway required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Initiator{gateway: gateway, limiter: limiter, lock: lock, metrics: m, logger: logger}
}

// Initiate sends one prompt for req.APIRef unless existing reports one was
// already sent, in which case that result is returned unchanged.
func (i *Initiator) Initiate(ctx context.Context, subject string, req PaymentRequest, existing ExistingAttempt) (*PaymentResult, error) {
	if req.APIRef == "" {
		return nil, apperr.Validation("payment reference is required")
	}

	token, acquired, err := i.lock.TryLock(ctx, req.APIRef)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, apperr.Conflict("payment initiation already in progress")
	}
	defer func() {
		_ = i.lock.Unlock(context.WithoutCancel(ctx), req.APIRef, token)
	}()

	if existing != nil {
		prior, err := existing(ctx)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			i.logger.Info("payment already initiated; reusing tracking id", "api_ref", req.APIRef, "tracking_id", prior.TrackingID)
			i.metrics.ObservePrompt(subject, "reused", 0)
			return prior, nil
		}
	}

	verdict, err := i.limiter.Check(ctx, req.Phone)
	if err != nil {
		return nil, err
	}
	if !verdict.Allowed {
		i.metrics.ObservePrompt(subject, "limited", 0)
		return nil, apperr.RateLimited("too many payment prompts for this phone number; try again later")
	}

	start := time.Now()
	res, err := i.gateway.InitiatePayment(ctx, req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		i.metrics.ObservePrompt(subject, "failed", elapsed)
		i.logger.Error("payment initiation failed", "error", err, "subject", subject, "api_ref", req.APIRef)
		return nil, err
	}
	i.metrics.ObservePrompt(subject, "sent", elapsed)
	i.logger.Info("payment prompt sent", "subject", subject, "api_ref", req.APIRef, "tracking_id", res.TrackingID)
	return res, nil
}
