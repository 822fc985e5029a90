// Package reconciliation turns provider-verified payment callbacks into
// appointment and subscription ledger updates. Callbacks are at-least-once;
// every path here is safe to repeat.
package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
	"github.com/doorstepdoctor/doorstep-api/internal/appointments"
	"github.com/doorstepdoctor/doorstep-api/internal/events"
	"github.com/doorstepdoctor/doorstep-api/internal/observability/metrics"
	"github.com/doorstepdoctor/doorstep-api/internal/subscriptions"
	"github.com/doorstepdoctor/doorstep-api/pkg/logging"
)

const providerName = "intasend"

var listenerTracer = otel.Tracer("doorstep.internal.reconciliation")

// ProcessedTracker remembers which provider callbacks were applied.
type ProcessedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// OutboxWriter enqueues domain events.
type OutboxWriter interface {
	Insert(ctx context.Context, aggregateID string, eventType string, payload any) (uuid.UUID, error)
}

// Outcome summarizes what a callback did.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeInFlight       Outcome = "in_flight"
	OutcomeRefundRequired Outcome = "refund_required"
)

// Listener reconciles IntaSend callbacks.
type Listener struct {
	appointments  *appointments.Ledger
	subscriptions *subscriptions.Ledger
	verifier      Verifier
	processed     ProcessedTracker
	outbox        OutboxWriter
	metrics       *metrics.PaymentMetrics
	now           func() time.Time
	logger        *logging.Logger
}

func NewListener(appts *appointments.Ledger, subs *subscriptions.Ledger, verifier Verifier, processed ProcessedTracker, outbox OutboxWriter, m *metrics.PaymentMetrics, logger *logging.Logger) *Listener {
	if appts == nil || verifier == nil {
		panic("reconciliation: appointments ledger and verifier required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Listener{
		appointments:  appts,
		subscriptions: subs,
		verifier:      verifier,
		processed:     processed,
		outbox:        outbox,
		metrics:       m,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        logger,
	}
}

// HandleProviderCallback authenticates the raw body, then applies it.
// A bad signature fails closed before the body is parsed.
func (l *Listener) HandleProviderCallback(ctx context.Context, body []byte, signature string) (Outcome, error) {
	if err := l.verifier.Verify(body, signature); err != nil {
		l.logger.Warn("rejected unauthenticated callback", "error", err)
		return "", err
	}
	cb, err := parseCallback(body)
	if err != nil {
		return "", err
	}
	return l.Apply(ctx, cb)
}

// Apply reconciles an already-authenticated callback.
func (l *Listener) Apply(ctx context.Context, cb Callback) (outcome Outcome, err error) {
	ctx, span := listenerTracer.Start(ctx, "reconciliation.apply")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.tracking_id", cb.TrackingID),
		attribute.String("payment.api_ref", cb.APIRef),
		attribute.String("payment.state", cb.State),
	)

	start := time.Now()
	defer func() {
		label := string(outcome)
		if err != nil {
			label = apperr.KindOf(err).String()
			span.RecordError(err)
		}
		l.metrics.ObserveCallback(cb.State, label, time.Since(start).Seconds())
	}()

	state := Classify(cb.State)
	switch state {
	case StateInFlight:
		return OutcomeInFlight, nil
	case StateUnknown:
		return "", apperr.Validation("unknown payment state %q", cb.State)
	}

	subject, err := l.lookup(ctx, cb)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			// The booking side may not have committed yet; a non-2xx makes the provider redeliver.
			l.logger.Warn("callback for unknown payment", "tracking_id", cb.TrackingID, "api_ref", cb.APIRef, "state", cb.State)
			if cb.TrackingID == "" {
				return "", apperr.NotFound("no pending payment for api_ref %s", cb.APIRef)
			}
			return "", apperr.NotFound("no pending payment for tracking id %s", cb.TrackingID)
		}
		return "", err
	}
	if cb.TrackingID == "" {
		cb.TrackingID = subject.trackingID()
	}
	if err := subject.matches(cb, state); err != nil {
		l.logger.Warn("callback does not match recorded charge",
			"error", err, "tracking_id", cb.TrackingID, "api_ref", cb.APIRef, "invoice_id", cb.InvoiceID)
		return "", err
	}

	eventID := cb.TrackingID + ":" + cb.State
	if l.processed != nil {
		seen, err := l.processed.AlreadyProcessed(ctx, providerName, eventID)
		if err != nil {
			return "", err
		}
		if seen {
			return OutcomeDuplicate, nil
		}
	}

	if subject.appt != nil {
		outcome, err = l.applyAppointment(ctx, subject.appt, cb, state)
	} else {
		outcome, err = l.applySubscription(ctx, subject.sub, cb, state)
	}
	if err != nil {
		return "", err
	}

	if l.processed != nil {
		if _, err := l.processed.MarkProcessed(ctx, providerName, eventID); err != nil {
			l.logger.Error("failed to record processed callback", "error", err, "event_id", eventID)
		}
	}
	return outcome, nil
}

// lookup finds the charge a callback refers to, by tracking id when present
// and by api_ref otherwise. A charge whose prompt was never attached is
// reported as not found.
func (l *Listener) lookup(ctx context.Context, cb Callback) (charge, error) {
	var (
		appt *appointments.Appointment
		err  error
	)
	if cb.TrackingID != "" {
		appt, err = l.appointments.GetByTrackingID(ctx, cb.TrackingID)
	} else {
		appt, err = l.appointments.GetByPaymentRef(ctx, cb.APIRef)
	}
	if err == nil {
		if appt.TrackingID == "" {
			return charge{}, apperr.NotFound("appointment payment not attached")
		}
		return charge{appt: appt}, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) || l.subscriptions == nil {
		return charge{}, err
	}

	var sub *subscriptions.Subscription
	if cb.TrackingID != "" {
		sub, err = l.subscriptions.GetByTrackingID(ctx, cb.TrackingID)
	} else {
		sub, err = l.subscriptions.GetByPaymentRef(ctx, cb.APIRef)
	}
	if err != nil {
		return charge{}, err
	}
	if sub.TrackingID == "" {
		return charge{}, apperr.NotFound("subscription payment not attached")
	}
	return charge{sub: sub}, nil
}

func (l *Listener) applyAppointment(ctx context.Context, appt *appointments.Appointment, cb Callback, state ProviderState) (Outcome, error) {
	target := appointments.PaymentFailed
	if state == StateSucceeded {
		target = appointments.PaymentCompleted
	}
	updated, result, err := l.appointments.SetPaymentStatus(ctx, appt.ID, target, cb.TrackingID)
	if err != nil {
		return "", err
	}

	switch result {
	case appointments.OutcomeCancelledBeforePayment:
		l.logger.Warn("payment collected for cancelled appointment; refund required",
			"appointment_id", appt.ID, "tracking_id", cb.TrackingID, "invoice_id", cb.InvoiceID)
		if err := l.emit(ctx, appt.ID, events.TypePaymentCompleted, events.PaymentCompletedV1{
			SubjectType:    "appointment",
			SubjectID:      appt.ID,
			TrackingID:     cb.TrackingID,
			InvoiceID:      cb.InvoiceID,
			AmountKES:      appt.AmountKES,
			RequiresRefund: true,
			OccurredAt:     l.now(),
		}); err != nil {
			return "", err
		}
		return OutcomeRefundRequired, nil
	case appointments.OutcomeAlreadyResolved:
		// Re-emit only when the stored result matches this callback, so a
		// retry after a failed outbox write still produces the event.
		if updated.PaymentStatus != target {
			return OutcomeDuplicate, nil
		}
	}

	if target == appointments.PaymentCompleted {
		err = l.emit(ctx, appt.ID, events.TypePaymentCompleted, events.PaymentCompletedV1{
			SubjectType: "appointment",
			SubjectID:   appt.ID,
			TrackingID:  cb.TrackingID,
			InvoiceID:   cb.InvoiceID,
			AmountKES:   updated.AmountKES,
			OccurredAt:  l.now(),
		})
	} else {
		err = l.emit(ctx, appt.ID, events.TypePaymentFailed, events.PaymentFailedV1{
			SubjectType:   "appointment",
			SubjectID:     appt.ID,
			TrackingID:    cb.TrackingID,
			InvoiceID:     cb.InvoiceID,
			FailureReason: cb.FailedReason,
			OccurredAt:    l.now(),
		})
	}
	if err != nil {
		return "", err
	}
	if result == appointments.OutcomeAlreadyResolved {
		return OutcomeDuplicate, nil
	}
	l.logger.Info("appointment payment reconciled",
		"appointment_id", appt.ID, "payment_status", updated.PaymentStatus, "status", updated.Status)
	return OutcomeApplied, nil
}

func (l *Listener) applySubscription(ctx context.Context, sub *subscriptions.Subscription, cb Callback, state ProviderState) (Outcome, error) {
	if state == StateFailed {
		updated, applied, err := l.subscriptions.Fail(ctx, cb.TrackingID)
		if err != nil {
			return "", err
		}
		if updated.Status != subscriptions.StatusFailed {
			return OutcomeDuplicate, nil
		}
		if err := l.emit(ctx, sub.ID, events.TypePaymentFailed, events.PaymentFailedV1{
			SubjectType:   "subscription",
			SubjectID:     sub.ID,
			TrackingID:    cb.TrackingID,
			InvoiceID:     cb.InvoiceID,
			FailureReason: cb.FailedReason,
			OccurredAt:    l.now(),
		}); err != nil {
			return "", err
		}
		if !applied {
			return OutcomeDuplicate, nil
		}
		return OutcomeApplied, nil
	}

	updated, applied, err := l.subscriptions.Activate(ctx, cb.TrackingID)
	if err != nil {
		return "", err
	}
	if updated.Status != subscriptions.StatusActive {
		return OutcomeDuplicate, nil
	}
	if err := l.emit(ctx, sub.ID, events.TypePaymentCompleted, events.PaymentCompletedV1{
		SubjectType: "subscription",
		SubjectID:   sub.ID,
		TrackingID:  cb.TrackingID,
		InvoiceID:   cb.InvoiceID,
		AmountKES:   updated.AmountKES,
		OccurredAt:  l.now(),
	}); err != nil {
		return "", err
	}
	activated := events.SubscriptionActivatedV1{
		SubscriptionID: sub.ID,
		DoctorID:       sub.DoctorID,
		Plan:           string(updated.Plan),
	}
	if updated.StartsAt != nil && updated.EndsAt != nil {
		activated.StartsAt, activated.EndsAt = *updated.StartsAt, *updated.EndsAt
	}
	if err := l.emit(ctx, sub.ID, events.TypeSubscriptionActivated, activated); err != nil {
		return "", err
	}
	if !applied {
		return OutcomeDuplicate, nil
	}
	l.logger.Info("subscription reconciled", "subscription_id", sub.ID, "doctor_id", sub.DoctorID)
	return OutcomeApplied, nil
}

func (l *Listener) emit(ctx context.Context, aggregateID, eventType string, payload any) error {
	if l.outbox == nil {
		return nil
	}
	if _, err := l.outbox.Insert(ctx, aggregateID, eventType, payload); err != nil {
		l.logger.Error("failed to enqueue outbox", "error", err, "type", eventType, "aggregate_id", aggregateID)
		return err
	}
	return nil
}
