// Package booking coordinates creating an appointment and sending the payer
// a mobile-money prompt for it. The two steps fail independently: a gateway
// failure leaves the appointment in pending/pending for a later retry.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
	"github.com/doorstepdoctor/doorstep-api/internal/appointments"
	"github.com/doorstepdoctor/doorstep-api/internal/events"
	"github.com/doorstepdoctor/doorstep-api/internal/identity"
	"github.com/doorstepdoctor/doorstep-api/internal/payments"
	"github.com/doorstepdoctor/doorstep-api/pkg/logging"
)

// OutboxWriter enqueues domain events; *events.OutboxStore implements it.
type OutboxWriter interface {
	Insert(ctx context.Context, aggregateID string, eventType string, payload any) (uuid.UUID, error)
}

// Config holds booking policy.
type Config struct {
	MinFeeKES int64
	Currency  string
}

// Orchestrator implements the book-and-pay flow.
type Orchestrator struct {
	ledger    *appointments.Ledger
	roles     identity.RoleStore
	initiator *payments.Initiator
	outbox    OutboxWriter
	cfg       Config
	now       func() time.Time
	logger    *logging.Logger
}

func NewOrchestrator(ledger *appointments.Ledger, roles identity.RoleStore, initiator *payments.Initiator, outbox OutboxWriter, cfg Config, logger *logging.Logger) *Orchestrator {
	if ledger == nil || roles == nil || initiator == nil {
		panic("booking: ledger, roles and initiator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MinFeeKES <= 0 {
		cfg.MinFeeKES = 100
	}
	if cfg.Currency == "" {
		cfg.Currency = "KES"
	}
	return &Orchestrator{
		ledger:    ledger,
		roles:     roles,
		initiator: initiator,
		outbox:    outbox,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// BookingRequest is what a patient submits to book a visit.
type BookingRequest struct {
	DoctorID         string
	PatientID        string
	AppointmentDate  string
	ConsultationType string
	Address          string
	Phone            string
	Email            string
	AmountKES        int64
	Notes            string
	Currency         string
}

// PayRequest starts payment for an appointment that already exists.
type PayRequest struct {
	AppointmentID string
	PatientID     string
	AmountKES     int64
	Phone         string
	Email         string
	Currency      string
}

// Result is returned once a prompt has been sent (or was already sent).
type Result struct {
	AppointmentID string `json:"appointment_id"`
	TrackingID    string `json:"tracking_id"`
	CheckoutID    string `json:"checkout_id"`
}

// InitiationError reports a payment failure after the appointment row was
// committed. The row is kept; Err carries the kind for status mapping.
type InitiationError struct {
	AppointmentID string
	Err           error
}

func (e *InitiationError) Error() string {
	return fmt.Sprintf("booking: appointment %s created but payment initiation failed: %v", e.AppointmentID, e.Err)
}

func (e *InitiationError) Unwrap() error { return e.Err }

var scheduleLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

func parseSchedule(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range scheduleLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperr.Validation("appointment_date must be an ISO-8601 timestamp")
}

// BookAppointment validates the request, creates the appointment and sends
// the payment prompt.
func (o *Orchestrator) BookAppointment(ctx context.Context, req BookingRequest) (*Result, error) {
	scheduled, err := parseSchedule(req.AppointmentDate)
	if err != nil {
		return nil, err
	}
	// One minute of grace for clock skew between client and server.
	if scheduled.Before(o.now().Add(-time.Minute)) {
		return nil, apperr.Validation("appointment_date cannot be in the past")
	}
	if strings.TrimSpace(req.Address) == "" {
		return nil, apperr.Validation("address is required")
	}
	if strings.TrimSpace(req.Phone) == "" {
		return nil, apperr.Validation("phone_number is required")
	}
	if req.AmountKES < o.cfg.MinFeeKES {
		return nil, apperr.Validation("amount must be at least %d KES", o.cfg.MinFeeKES)
	}
	mode, ok := appointments.ParseMode(req.ConsultationType)
	if !ok {
		return nil, apperr.Validation("invalid consultation_type %q", req.ConsultationType)
	}
	if err := o.requireDoctor(ctx, req.DoctorID); err != nil {
		return nil, err
	}

	appt, err := o.ledger.Create(ctx, appointments.NewAppointment{
		DoctorID:         req.DoctorID,
		PatientID:        req.PatientID,
		ScheduledFor:     scheduled,
		ConsultationType: mode,
		Address:          req.Address,
		Notes:            req.Notes,
		AmountKES:        req.AmountKES,
	})
	if err != nil {
		return nil, err
	}
	o.emit(ctx, appt.ID, events.TypeAppointmentBooked, events.AppointmentBookedV1{
		AppointmentID:    appt.ID,
		DoctorID:         appt.DoctorID,
		PatientID:        appt.PatientID,
		ScheduledFor:     appt.ScheduledFor,
		ConsultationType: string(appt.ConsultationType),
		AmountKES:        appt.AmountKES,
		BookedAt:         appt.CreatedAt,
	})

	res, err := o.initiate(ctx, appt, appt.AmountKES, req.Phone, req.Email, req.Currency)
	if err != nil {
		return nil, &InitiationError{AppointmentID: appt.ID, Err: err}
	}
	return res, nil
}

// PayAppointment sends the prompt for an existing appointment owned by the
// caller. Repeating the call returns the first prompt's tracking id.
func (o *Orchestrator) PayAppointment(ctx context.Context, req PayRequest) (*Result, error) {
	appt, err := o.ledger.Get(ctx, req.AppointmentID)
	if err != nil || appt.PatientID != req.PatientID {
		if err != nil && !errors.Is(err, apperr.ErrNotFound) && !errors.Is(err, apperr.ErrValidation) {
			return nil, err
		}
		return nil, apperr.NotFound("Appointment not found or access denied")
	}
	if appt.PaymentStatus != appointments.PaymentPending {
		return nil, apperr.Conflict("appointment payment is already %s", appt.PaymentStatus)
	}
	if appt.Status == appointments.StatusCancelled {
		return nil, apperr.Conflict("appointment is cancelled")
	}
	if strings.TrimSpace(req.Phone) == "" {
		return nil, apperr.Validation("phone_number is required")
	}

	amount := appt.AmountKES
	if req.AmountKES > 0 && !appt.HasPaymentAttempt() {
		if req.AmountKES < o.cfg.MinFeeKES {
			return nil, apperr.Validation("amount must be at least %d KES", o.cfg.MinFeeKES)
		}
		amount = req.AmountKES
	}
	return o.initiate(ctx, appt, amount, req.Phone, req.Email, req.Currency)
}

func (o *Orchestrator) initiate(ctx context.Context, appt *appointments.Appointment, amount int64, phone, email, currency string) (*Result, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = o.cfg.Currency
	}
	existing := func(ctx context.Context) (*payments.PaymentResult, error) {
		cur, err := o.ledger.Get(ctx, appt.ID)
		if err != nil {
			return nil, err
		}
		if !cur.HasPaymentAttempt() {
			return nil, nil
		}
		return &payments.PaymentResult{TrackingID: cur.TrackingID, CheckoutID: cur.CheckoutID, InvoiceID: cur.InvoiceID}, nil
	}

	res, err := o.initiator.Initiate(ctx, "appointment", payments.PaymentRequest{
		AmountKES: amount,
		Phone:     phone,
		Email:     email,
		Narrative: fmt.Sprintf("Payment for medical appointment %s", appt.ID),
		Currency:  currency,
		APIRef:    appt.PaymentRef,
	}, existing)
	if err != nil {
		return nil, err
	}

	attached, err := o.ledger.AttachPayment(ctx, appt.ID, appointments.PaymentAttempt{
		TrackingID: res.TrackingID,
		CheckoutID: res.CheckoutID,
		InvoiceID:  res.InvoiceID,
		Currency:   currency,
		AmountKES:  amount,
	})
	if err != nil {
		return nil, err
	}
	if !attached {
		prior, err := existing(ctx)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			res = prior
		}
	}
	o.logger.Info("appointment payment initiated",
		"appointment_id", appt.ID,
		"tracking_id", res.TrackingID,
		"phone", logging.MaskPhone(phone),
	)
	return &Result{AppointmentID: appt.ID, TrackingID: res.TrackingID, CheckoutID: res.CheckoutID}, nil
}

func (o *Orchestrator) requireDoctor(ctx context.Context, doctorID string) error {
	if strings.TrimSpace(doctorID) == "" {
		return apperr.Validation("doctor_id is required")
	}
	role, err := o.roles.RoleOf(ctx, doctorID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.NotFound("doctor not found")
		}
		return err
	}
	if role != identity.RoleDoctor {
		return apperr.NotFound("doctor not found")
	}
	return nil
}

func (o *Orchestrator) emit(ctx context.Context, aggregateID, eventType string, payload any) {
	if o.outbox == nil {
		return
	}
	if _, err := o.outbox.Insert(ctx, aggregateID, eventType, payload); err != nil {
		o.logger.Error("failed to queue event", "error", err, "type", eventType, "aggregate_id", aggregateID)
	}
}
