package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
)

// Repository is the storage contract behind the ledger. Every mutating call
// is conditional so concurrent writers cannot both win.
type Repository interface {
	Insert(ctx context.Context, a *Appointment) error
	Get(ctx context.Context, id string) (*Appointment, error)
	GetByTrackingID(ctx context.Context, trackingID string) (*Appointment, error)
	GetByPaymentRef(ctx context.Context, paymentRef string) (*Appointment, error)
	ListByDoctor(ctx context.Context, doctorID string) ([]*Appointment, error)
	ListByPatient(ctx context.Context, patientID string) ([]*Appointment, error)
	// UpdateStatus applies to only when the row is still in from.
	UpdateStatus(ctx context.Context, id string, from, to Status) (bool, error)
	// AttachPayment records the first prompt for a still-pending payment.
	AttachPayment(ctx context.Context, id string, attempt PaymentAttempt) (bool, error)
	// ResolvePayment moves payment_status out of pending for the matching
	// tracking id; completion also confirms a pending appointment. Completion
	// never applies to a cancelled appointment.
	ResolvePayment(ctx context.Context, id, trackingID string, to PaymentStatus) (bool, error)
}

var errNotFound = apperr.NotFound("appointment not found")

// InMemoryRepository backs tests and local runs without Postgres.
type InMemoryRepository struct {
	mu   sync.RWMutex
	rows map[string]*Appointment
	now  func() time.Time
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		rows: make(map[string]*Appointment),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *InMemoryRepository) Insert(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, exists := r.rows[a.ID]; exists {
		return apperr.Conflict("appointment %s already exists", a.ID)
	}
	now := r.now()
	a.CreatedAt, a.UpdatedAt = now, now
	cp := *a
	r.rows[a.ID] = &cp
	return nil
}

func (r *InMemoryRepository) Get(_ context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *InMemoryRepository) GetByTrackingID(_ context.Context, trackingID string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, row := range r.rows {
		if trackingID != "" && row.TrackingID == trackingID {
			cp := *row
			return &cp, nil
		}
	}
	return nil, errNotFound
}

func (r *InMemoryRepository) GetByPaymentRef(_ context.Context, paymentRef string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, row := range r.rows {
		if paymentRef != "" && row.PaymentRef == paymentRef {
			cp := *row
			return &cp, nil
		}
	}
	return nil, errNotFound
}

func (r *InMemoryRepository) ListByDoctor(_ context.Context, doctorID string) ([]*Appointment, error) {
	return r.list(func(a *Appointment) bool { return a.DoctorID == doctorID }), nil
}

func (r *InMemoryRepository) ListByPatient(_ context.Context, patientID string) ([]*Appointment, error) {
	return r.list(func(a *Appointment) bool { return a.PatientID == patientID }), nil
}

func (r *InMemoryRepository) list(match func(*Appointment) bool) []*Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Appointment, 0)
	for _, row := range r.rows {
		if match(row) {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.After(out[j].ScheduledFor) })
	return out
}

func (r *InMemoryRepository) UpdateStatus(_ context.Context, id string, from, to Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return false, errNotFound
	}
	if row.Status != from {
		return false, nil
	}
	if to == StatusCancelled && row.PaymentStatus == PaymentCompleted {
		return false, nil
	}
	row.Status = to
	row.UpdatedAt = r.now()
	return true, nil
}

func (r *InMemoryRepository) AttachPayment(_ context.Context, id string, attempt PaymentAttempt) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return false, errNotFound
	}
	if row.TrackingID != "" || row.PaymentStatus != PaymentPending {
		return false, nil
	}
	row.TrackingID = attempt.TrackingID
	row.CheckoutID = attempt.CheckoutID
	row.InvoiceID = attempt.InvoiceID
	row.Currency = attempt.Currency
	if attempt.AmountKES > 0 {
		row.AmountKES = attempt.AmountKES
	}
	row.UpdatedAt = r.now()
	return true, nil
}

func (r *InMemoryRepository) ResolvePayment(_ context.Context, id, trackingID string, to PaymentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return false, errNotFound
	}
	if row.TrackingID != trackingID || row.PaymentStatus != PaymentPending {
		return false, nil
	}
	if to == PaymentCompleted && row.Status == StatusCancelled {
		return false, nil
	}
	row.PaymentStatus = to
	if to == PaymentCompleted && row.Status == StatusPending {
		row.Status = StatusConfirmed
	}
	row.UpdatedAt = r.now()
	return true, nil
}
