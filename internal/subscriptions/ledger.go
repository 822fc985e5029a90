package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
	"github.com/doorstepdoctor/doorstep-api/internal/identity"
	"github.com/doorstepdoctor/doorstep-api/internal/payments"
	"github.com/doorstepdoctor/doorstep-api/pkg/logging"
)

const accessDeniedMessage = "Access denied: Only doctors can subscribe to plans"

// Ledger owns subscription rows and their pending → active|failed moves.
type Ledger struct {
	repo       Repository
	roles      identity.RoleStore
	initiator  *payments.Initiator
	termMonths int
	currency   string
	now        func() time.Time
	logger     *logging.Logger
}

func NewLedger(repo Repository, roles identity.RoleStore, initiator *payments.Initiator, termMonths int, currency string, logger *logging.Logger) *Ledger {
	if repo == nil || roles == nil {
		panic("subscriptions: repository and roles required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if termMonths <= 0 {
		termMonths = 1
	}
	if currency == "" {
		currency = "KES"
	}
	return &Ledger{
		repo:       repo,
		roles:      roles,
		initiator:  initiator,
		termMonths: termMonths,
		currency:   currency,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
}

// SubscribeRequest is a doctor's request to buy a tier.
type SubscribeRequest struct {
	DoctorID string
	PlanType string
	Phone    string
	Email    string
}

// SubscribeResult mirrors the booking response plus the chosen plan.
type SubscribeResult struct {
	SubscriptionID string `json:"subscription_id"`
	TrackingID     string `json:"tracking_id"`
	CheckoutID     string `json:"checkout_id"`
	Plan           string `json:"plan"`
	AmountKES      int64  `json:"amount"`
}

// Subscribe records a pending term and prompts the doctor's phone. The role
// check happens before anything is written or sent.
func (l *Ledger) Subscribe(ctx context.Context, req SubscribeRequest) (*SubscribeResult, error) {
	ok, err := identity.IsDoctor(ctx, l.roles, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Authorization(accessDeniedMessage)
	}
	plan, found := PlanFor(req.PlanType)
	if !found {
		return nil, apperr.Validation("Invalid subscription plan")
	}
	if strings.TrimSpace(req.Phone) == "" {
		return nil, apperr.Validation("phone_number is required")
	}
	if l.initiator == nil {
		return nil, apperr.Configuration("payment gateway is not configured")
	}

	sub := &Subscription{
		ID:         uuid.NewString(),
		DoctorID:   req.DoctorID,
		Plan:       plan.Tier,
		AmountKES:  plan.PriceKES,
		Status:     StatusPending,
		PaymentRef: uuid.NewString(),
	}
	if err := l.repo.Insert(ctx, sub); err != nil {
		return nil, err
	}

	existing := func(ctx context.Context) (*payments.PaymentResult, error) {
		cur, err := l.repo.Get(ctx, sub.ID)
		if err != nil || cur.TrackingID == "" {
			return nil, err
		}
		return &payments.PaymentResult{TrackingID: cur.TrackingID, CheckoutID: cur.CheckoutID, InvoiceID: cur.InvoiceID}, nil
	}
	res, err := l.initiator.Initiate(ctx, "subscription", payments.PaymentRequest{
		AmountKES: plan.PriceKES,
		Phone:     req.Phone,
		Email:     req.Email,
		Narrative: fmt.Sprintf("Doctor subscription - %s", plan.Name),
		Currency:  l.currency,
		APIRef:    sub.PaymentRef,
	}, existing)
	if err != nil {
		return nil, err
	}
	if _, err := l.repo.AttachPayment(ctx, sub.ID, PaymentAttempt{
		TrackingID: res.TrackingID,
		CheckoutID: res.CheckoutID,
		InvoiceID:  res.InvoiceID,
		Currency:   l.currency,
	}); err != nil {
		return nil, err
	}

	l.logger.Info("subscription payment initiated",
		"subscription_id", sub.ID,
		"doctor_id", req.DoctorID,
		"plan", plan.Tier,
		"tracking_id", res.TrackingID,
	)
	return &SubscribeResult{
		SubscriptionID: sub.ID,
		TrackingID:     res.TrackingID,
		CheckoutID:     res.CheckoutID,
		Plan:           plan.Name,
		AmountKES:      plan.PriceKES,
	}, nil
}

// GetByTrackingID resolves a provider callback to its subscription.
func (l *Ledger) GetByTrackingID(ctx context.Context, trackingID string) (*Subscription, error) {
	return l.repo.GetByTrackingID(ctx, trackingID)
}

// GetByPaymentRef resolves a callback that carries only our api_ref.
func (l *Ledger) GetByPaymentRef(ctx context.Context, paymentRef string) (*Subscription, error) {
	return l.repo.GetByPaymentRef(ctx, paymentRef)
}

// Activate starts the paid term. A renewal paid while a term is still
// running starts when that term ends. The bool is false when an earlier call
// already resolved the row.
func (l *Ledger) Activate(ctx context.Context, trackingID string) (*Subscription, bool, error) {
	sub, err := l.repo.GetByTrackingID(ctx, trackingID)
	if err != nil {
		return nil, false, err
	}
	if sub.Status != StatusPending {
		return sub, false, nil
	}

	start := l.now()
	history, err := l.repo.ListByDoctor(ctx, sub.DoctorID)
	if err != nil {
		return nil, false, err
	}
	for _, other := range history {
		if other.ID == sub.ID || other.Status != StatusActive || other.EndsAt == nil {
			continue
		}
		if other.EndsAt.After(start) {
			start = *other.EndsAt
		}
	}
	end := start.AddDate(0, l.termMonths, 0)

	applied, err := l.repo.Activate(ctx, sub.ID, trackingID, start, end)
	if err != nil {
		return nil, false, err
	}
	fresh, err := l.repo.Get(ctx, sub.ID)
	if err != nil {
		return nil, false, err
	}
	if applied {
		l.logger.Info("subscription activated", "subscription_id", sub.ID, "doctor_id", sub.DoctorID, "ends_at", end)
	}
	return fresh, applied, nil
}

// Fail records a declined or cancelled prompt.
func (l *Ledger) Fail(ctx context.Context, trackingID string) (*Subscription, bool, error) {
	sub, err := l.repo.GetByTrackingID(ctx, trackingID)
	if err != nil {
		return nil, false, err
	}
	if sub.Status != StatusPending {
		return sub, false, nil
	}
	applied, err := l.repo.MarkFailed(ctx, sub.ID, trackingID)
	if err != nil {
		return nil, false, err
	}
	fresh, err := l.repo.Get(ctx, sub.ID)
	if err != nil {
		return nil, false, err
	}
	return fresh, applied, nil
}

// IsActive answers from persisted windows only; the provider is never queried.
func (l *Ledger) IsActive(ctx context.Context, doctorID string, at time.Time) (bool, error) {
	current, err := l.Current(ctx, doctorID, at)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return current != nil, nil
}

// Current returns the term covering at, or NotFound.
func (l *Ledger) Current(ctx context.Context, doctorID string, at time.Time) (*Subscription, error) {
	history, err := l.repo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	for _, s := range history {
		if s.ActiveAt(at) {
			return s, nil
		}
	}
	return nil, apperr.NotFound("no active subscription")
}

// History lists a doctor's terms, newest first.
func (l *Ledger) History(ctx context.Context, doctorID string) ([]*Subscription, error) {
	return l.repo.ListByDoctor(ctx, doctorID)
}
