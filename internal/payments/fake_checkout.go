package payments

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
	"github.com/doorstepdoctor/doorstep-api/pkg/logging"
)

// FakeGateway is a dev/demo gateway that acknowledges prompts without calling
// IntaSend. Completion is simulated through the dev callback endpoint.
//
// This MUST be gated by configuration (ALLOW_FAKE_PAYMENTS) and is rejected
// in production by config validation.
type FakeGateway struct {
	mu       sync.Mutex
	requests []PaymentRequest
	failWith error
	logger   *logging.Logger
}

func NewFakeGateway(logger *logging.Logger) *FakeGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakeGateway{logger: logger}
}

// FailNext makes every following call return err until cleared with nil.
func (g *FakeGateway) FailNext(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failWith = err
}

func (g *FakeGateway) InitiatePayment(_ context.Context, req PaymentRequest) (*PaymentResult, error) {
	if req.AmountKES <= 0 {
		return nil, apperr.Validation("amount must be positive")
	}
	if strings.TrimSpace(req.Phone) == "" {
		return nil, apperr.Validation("phone_number is required")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.failWith != nil {
		return nil, g.failWith
	}

	tracking := "fake-" + uuid.NewString()
	g.logger.Info("fake stk push accepted", "api_ref", req.APIRef, "tracking_id", tracking)
	return &PaymentResult{
		TrackingID: tracking,
		CheckoutID: "fake-checkout-" + req.APIRef,
		InvoiceID:  "fake-inv-" + req.APIRef,
	}, nil
}

// Requests returns every prompt the gateway received.
func (g *FakeGateway) Requests() []PaymentRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]PaymentRequest, len(g.requests))
	copy(out, g.requests)
	return out
}
