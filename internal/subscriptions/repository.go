package subscriptions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
)

// Repository persists subscription terms. State changes are conditional on
// the row still being pending.
type Repository interface {
	Insert(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	GetByTrackingID(ctx context.Context, trackingID string) (*Subscription, error)
	GetByPaymentRef(ctx context.Context, paymentRef string) (*Subscription, error)
	ListByDoctor(ctx context.Context, doctorID string) ([]*Subscription, error)
	AttachPayment(ctx context.Context, id string, attempt PaymentAttempt) (bool, error)
	Activate(ctx context.Context, id, trackingID string, startsAt, endsAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id, trackingID string) (bool, error)
}

var errNotFound = apperr.NotFound("subscription not found")

// InMemoryRepository backs tests and local runs.
type InMemoryRepository struct {
	mu   sync.RWMutex
	rows map[string]*Subscription
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{rows: make(map[string]*Subscription)}
}

func clone(s *Subscription) *Subscription {
	cp := *s
	if s.StartsAt != nil {
		t := *s.StartsAt
		cp.StartsAt = &t
	}
	if s.EndsAt != nil {
		t := *s.EndsAt
		cp.EndsAt = &t
	}
	return &cp
}

func (r *InMemoryRepository) Insert(_ context.Context, s *Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	r.rows[s.ID] = clone(s)
	return nil
}

func (r *InMemoryRepository) Get(_ context.Context, id string) (*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.rows[id]
	if !ok {
		return nil, errNotFound
	}
	return clone(s), nil
}

func (r *InMemoryRepository) GetByTrackingID(_ context.Context, trackingID string) (*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.rows {
		if trackingID != "" && s.TrackingID == trackingID {
			return clone(s), nil
		}
	}
	return nil, errNotFound
}

func (r *InMemoryRepository) ListByDoctor(_ context.Context, doctorID string) ([]*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Subscription, 0)
	for _, s := range r.rows {
		if s.DoctorID == doctorID {
			out = append(out, clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryRepository) GetByPaymentRef(_ context.Context, paymentRef string) (*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.rows {
		if paymentRef != "" && s.PaymentRef == paymentRef {
			return clone(s), nil
		}
	}
	return nil, errNotFound
}

func (r *InMemoryRepository) AttachPayment(_ context.Context, id string, attempt PaymentAttempt) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return false, errNotFound
	}
	if s.TrackingID != "" || s.Status != StatusPending {
		return false, nil
	}
	s.TrackingID, s.CheckoutID = attempt.TrackingID, attempt.CheckoutID
	s.InvoiceID, s.Currency = attempt.InvoiceID, attempt.Currency
	s.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *InMemoryRepository) Activate(_ context.Context, id, trackingID string, startsAt, endsAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return false, errNotFound
	}
	if s.Status != StatusPending || s.TrackingID != trackingID {
		return false, nil
	}
	s.Status = StatusActive
	s.StartsAt, s.EndsAt = &startsAt, &endsAt
	s.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *InMemoryRepository) MarkFailed(_ context.Context, id, trackingID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return false, errNotFound
	}
	if s.Status != StatusPending || s.TrackingID != trackingID {
		return false, nil
	}
	s.Status = StatusFailed
	s.UpdatedAt = time.Now().UTC()
	return true, nil
}
