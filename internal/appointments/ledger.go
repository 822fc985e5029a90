package appointments

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
	"github.com/doorstepdoctor/doorstep-api/pkg/logging"
)

// PaymentOutcome describes what SetPaymentStatus did to the row.
type PaymentOutcome int

const (
	// OutcomeApplied means this call moved payment_status out of pending.
	OutcomeApplied PaymentOutcome = iota + 1
	// OutcomeAlreadyResolved means an earlier call already won.
	OutcomeAlreadyResolved
	// OutcomeCancelledBeforePayment means the provider collected money for an
	// appointment that had been cancelled; the row is left untouched.
	OutcomeCancelledBeforePayment
)

// Ledger owns appointment records and enforces their state machines.
type Ledger struct {
	repo   Repository
	logger *logging.Logger
	tracer trace.Tracer
}

func NewLedger(repo Repository, logger *logging.Logger) *Ledger {
	if repo == nil {
		panic("appointments: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Ledger{
		repo:   repo,
		logger: logger,
		tracer: otel.Tracer("doorstep.internal.appointments"),
	}
}

// Create inserts a new appointment in pending/pending with a fresh payment ref.
func (l *Ledger) Create(ctx context.Context, in NewAppointment) (*Appointment, error) {
	ctx, span := l.tracer.Start(ctx, "appointments.create")
	defer span.End()

	if strings.TrimSpace(in.DoctorID) == "" {
		return nil, apperr.Validation("doctor_id is required")
	}
	if strings.TrimSpace(in.PatientID) == "" {
		return nil, apperr.Validation("patient_id is required")
	}
	if strings.TrimSpace(in.Address) == "" {
		return nil, apperr.Validation("address is required")
	}
	if in.AmountKES <= 0 {
		return nil, apperr.Validation("amount must be a positive number of shillings")
	}
	if in.ScheduledFor.IsZero() {
		return nil, apperr.Validation("appointment_date is required")
	}
	mode, ok := ParseMode(string(in.ConsultationType))
	if !ok {
		return nil, apperr.Validation("invalid consultation_type %q", in.ConsultationType)
	}

	a := &Appointment{
		ID:               uuid.NewString(),
		DoctorID:         in.DoctorID,
		PatientID:        in.PatientID,
		ScheduledFor:     in.ScheduledFor.UTC(),
		ConsultationType: mode,
		Address:          strings.TrimSpace(in.Address),
		Notes:            strings.TrimSpace(in.Notes),
		AmountKES:        in.AmountKES,
		Status:           StatusPending,
		PaymentStatus:    PaymentPending,
		PaymentRef:       uuid.NewString(),
	}
	if err := l.repo.Insert(ctx, a); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("appointment.id", a.ID))
	l.logger.Info("appointment created", "appointment_id", a.ID, "doctor_id", a.DoctorID, "amount_kes", a.AmountKES)
	return a, nil
}

func (l *Ledger) Get(ctx context.Context, id string) (*Appointment, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("appointment id is required")
	}
	return l.repo.Get(ctx, id)
}

// GetByTrackingID resolves the appointment a provider callback refers to.
func (l *Ledger) GetByTrackingID(ctx context.Context, trackingID string) (*Appointment, error) {
	if strings.TrimSpace(trackingID) == "" {
		return nil, apperr.Validation("tracking_id is required")
	}
	return l.repo.GetByTrackingID(ctx, trackingID)
}

// GetByPaymentRef resolves a callback that carries only our api_ref.
func (l *Ledger) GetByPaymentRef(ctx context.Context, paymentRef string) (*Appointment, error) {
	if strings.TrimSpace(paymentRef) == "" {
		return nil, apperr.Validation("api_ref is required")
	}
	return l.repo.GetByPaymentRef(ctx, paymentRef)
}

func (l *Ledger) ListByDoctor(ctx context.Context, doctorID string) ([]*Appointment, error) {
	return l.repo.ListByDoctor(ctx, doctorID)
}

func (l *Ledger) ListByPatient(ctx context.Context, patientID string) ([]*Appointment, error) {
	return l.repo.ListByPatient(ctx, patientID)
}

// SetStatus moves the visit lifecycle on behalf of actor.
func (l *Ledger) SetStatus(ctx context.Context, id string, to Status, actor Actor) (*Appointment, error) {
	ctx, span := l.tracer.Start(ctx, "appointments.set_status")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", id), attribute.String("appointment.to", string(to)))

	if _, ok := ParseStatus(string(to)); !ok {
		return nil, apperr.Validation("invalid status %q", to)
	}
	a, err := l.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(a, to, actor); err != nil {
		return nil, err
	}
	applied, err := l.repo.UpdateStatus(ctx, id, a.Status, to)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !applied {
		return nil, apperr.Conflict("appointment changed while updating; reload and retry")
	}
	l.logger.Info("appointment status updated", "appointment_id", id, "from", a.Status, "to", to)
	return l.repo.Get(ctx, id)
}

// AttachPayment records the prompt returned by the gateway. It reports false
// when the appointment already has an attempt.
func (l *Ledger) AttachPayment(ctx context.Context, id string, attempt PaymentAttempt) (bool, error) {
	if strings.TrimSpace(attempt.TrackingID) == "" {
		return false, apperr.Validation("tracking_id is required")
	}
	return l.repo.AttachPayment(ctx, id, attempt)
}

// SetPaymentStatus applies a provider-verified outcome. Repeating a call whose
// outcome was already recorded succeeds without changing anything.
func (l *Ledger) SetPaymentStatus(ctx context.Context, id string, to PaymentStatus, trackingID string) (*Appointment, PaymentOutcome, error) {
	ctx, span := l.tracer.Start(ctx, "appointments.set_payment_status")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", id), attribute.String("payment.to", string(to)))

	if !to.Terminal() {
		return nil, 0, apperr.Validation("payment status must be completed or failed")
	}
	a, err := l.repo.Get(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if a.TrackingID == "" || a.TrackingID != trackingID {
		return nil, 0, apperr.Conflict("tracking id does not match appointment")
	}
	if a.PaymentStatus.Terminal() {
		return a, OutcomeAlreadyResolved, nil
	}
	if to == PaymentCompleted && a.Status == StatusCancelled {
		l.logger.Warn("payment completed for cancelled appointment", "appointment_id", id, "tracking_id", trackingID)
		return a, OutcomeCancelledBeforePayment, nil
	}

	applied, err := l.repo.ResolvePayment(ctx, id, trackingID, to)
	if err != nil {
		span.RecordError(err)
		return nil, 0, err
	}
	fresh, err := l.repo.Get(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if !applied {
		// Lost a race with a concurrent callback or cancellation.
		if fresh.PaymentStatus.Terminal() {
			return fresh, OutcomeAlreadyResolved, nil
		}
		if fresh.Status == StatusCancelled {
			return fresh, OutcomeCancelledBeforePayment, nil
		}
		return nil, 0, apperr.Conflict("appointment payment could not be updated")
	}
	l.logger.Info("appointment payment resolved", "appointment_id", id, "payment_status", to, "status", fresh.Status)
	return fresh, OutcomeApplied, nil
}

// DoctorStats summarizes a doctor's dashboard.
type DoctorStats struct {
	TotalAppointments     int   `json:"total_appointments"`
	PendingAppointments   int   `json:"pending_appointments"`
	ConfirmedAppointments int   `json:"confirmed_appointments"`
	CompletedAppointments int   `json:"completed_appointments"`
	TotalEarningsKES      int64 `json:"total_earnings"`
}

// Stats counts by visit status; earnings only include collected payments.
func (l *Ledger) Stats(ctx context.Context, doctorID string) (DoctorStats, error) {
	list, err := l.repo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return DoctorStats{}, err
	}
	return computeStats(list), nil
}

func computeStats(list []*Appointment) DoctorStats {
	stats := DoctorStats{TotalAppointments: len(list)}
	for _, a := range list {
		switch a.Status {
		case StatusPending:
			stats.PendingAppointments++
		case StatusConfirmed:
			stats.ConfirmedAppointments++
		case StatusCompleted:
			stats.CompletedAppointments++
		}
		if a.PaymentStatus == PaymentCompleted {
			stats.TotalEarningsKES += a.AmountKES
		}
	}
	return stats
}
