package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
	"github.com/doorstepdoctor/doorstep-api/internal/appointments"
	"github.com/doorstepdoctor/doorstep-api/internal/events"
	"github.com/doorstepdoctor/doorstep-api/internal/identity"
	"github.com/doorstepdoctor/doorstep-api/internal/payments"
	"github.com/doorstepdoctor/doorstep-api/pkg/logging"
)

type recordedEvent struct {
	aggregateID string
	eventType   string
	payload     any
}

type memoryOutbox struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (m *memoryOutbox) Insert(_ context.Context, aggregateID, eventType string, payload any) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, recordedEvent{aggregateID, eventType, payload})
	return uuid.New(), nil
}

type fixture struct {
	orch    *Orchestrator
	ledger  *appointments.Ledger
	repo    *appointments.InMemoryRepository
	gateway *payments.FakeGateway
	outbox  *memoryOutbox
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logging.Default()
	repo := appointments.NewInMemoryRepository()
	ledger := appointments.NewLedger(repo, logger)
	roles := identity.NewInMemoryRoleStore(map[string]identity.Role{
		"doc-1": identity.RoleDoctor,
		"pat-1": identity.RolePatient,
	})
	gw := payments.NewFakeGateway(logger)
	outbox := &memoryOutbox{}
	orch := NewOrchestrator(ledger, roles, payments.NewInitiator(gw, nil, nil, nil, logger), outbox, Config{MinFeeKES: 100}, logger)
	return &fixture{orch: orch, ledger: ledger, repo: repo, gateway: gw, outbox: outbox}
}

func validBooking() BookingRequest {
	return BookingRequest{
		DoctorID:        "doc-1",
		PatientID:       "pat-1",
		AppointmentDate: time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
		Address:         "12 Ngong Road, Nairobi",
		Phone:           "254712345678",
		Email:           "pat@example.com",
		AmountKES:       2000,
	}
}

func TestBookAppointment_CreatesPendingRowAndPromptsOnce(t *testing.T) {
	f := newFixture(t)
	res, err := f.orch.BookAppointment(context.Background(), validBooking())
	require.NoError(t, err)
	assert.NotEmpty(t, res.TrackingID)

	appt, err := f.ledger.Get(context.Background(), res.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, appointments.StatusPending, appt.Status)
	assert.Equal(t, appointments.PaymentPending, appt.PaymentStatus)
	assert.Equal(t, res.TrackingID, appt.TrackingID)
	assert.Equal(t, appointments.ModeHomeVisit, appt.ConsultationType)

	reqs := f.gateway.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, appt.PaymentRef, reqs[0].APIRef)
	assert.Equal(t, "KES", reqs[0].Currency)
	assert.Equal(t, "Payment for medical appointment "+appt.ID, reqs[0].Narrative)

	require.Len(t, f.outbox.events, 1)
	assert.Equal(t, events.TypeAppointmentBooked, f.outbox.events[0].eventType)
}

func TestBookAppointment_BelowMinimumCreatesNothing(t *testing.T) {
	f := newFixture(t)
	req := validBooking()
	req.AmountKES = 50

	_, err := f.orch.BookAppointment(context.Background(), req)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	list, _ := f.ledger.ListByPatient(context.Background(), "pat-1")
	assert.Empty(t, list)
	assert.Empty(t, f.gateway.Requests())
}

func TestBookAppointment_Validation(t *testing.T) {
	cases := map[string]func(*BookingRequest){
		"past date":     func(r *BookingRequest) { r.AppointmentDate = time.Now().Add(-2 * time.Hour).Format(time.RFC3339) },
		"garbage date":  func(r *BookingRequest) { r.AppointmentDate = "next tuesday" },
		"empty address": func(r *BookingRequest) { r.Address = "  " },
		"empty phone":   func(r *BookingRequest) { r.Phone = "" },
		"bad mode":      func(r *BookingRequest) { r.ConsultationType = "carrier_pigeon" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			req := validBooking()
			mutate(&req)
			_, err := f.orch.BookAppointment(context.Background(), req)
			assert.True(t, errors.Is(err, apperr.ErrValidation), "got %v", err)
			assert.Empty(t, f.gateway.Requests())
		})
	}
}

func TestBookAppointment_UnknownDoctor(t *testing.T) {
	f := newFixture(t)
	for _, doctor := range []string{"nobody", "pat-1"} {
		req := validBooking()
		req.DoctorID = doctor
		_, err := f.orch.BookAppointment(context.Background(), req)
		assert.True(t, errors.Is(err, apperr.ErrNotFound), doctor)
	}
	assert.Empty(t, f.gateway.Requests())
}

func TestBookAppointment_GatewayFailureKeepsRow(t *testing.T) {
	f := newFixture(t)
	f.gateway.FailNext(apperr.Gateway("Instasend API error: service unavailable", nil))

	_, err := f.orch.BookAppointment(context.Background(), validBooking())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrGateway))

	var initErr *InitiationError
	require.True(t, errors.As(err, &initErr))
	appt, getErr := f.ledger.Get(context.Background(), initErr.AppointmentID)
	require.NoError(t, getErr)
	assert.Equal(t, appointments.StatusPending, appt.Status)
	assert.Equal(t, appointments.PaymentPending, appt.PaymentStatus)
	assert.False(t, appt.HasPaymentAttempt())

	// Retrying through the pay endpoint succeeds and reuses the same ref.
	f.gateway.FailNext(nil)
	res, err := f.orch.PayAppointment(context.Background(), PayRequest{
		AppointmentID: appt.ID,
		PatientID:     "pat-1",
		Phone:         "254712345678",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.TrackingID)
	reqs := f.gateway.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, reqs[0].APIRef, reqs[1].APIRef)
}

func TestPayAppointment_IdempotentAndOwnerOnly(t *testing.T) {
	f := newFixture(t)
	booked, err := f.orch.BookAppointment(context.Background(), validBooking())
	require.NoError(t, err)

	again, err := f.orch.PayAppointment(context.Background(), PayRequest{
		AppointmentID: booked.AppointmentID,
		PatientID:     "pat-1",
		Phone:         "254712345678",
	})
	require.NoError(t, err)
	assert.Equal(t, booked.TrackingID, again.TrackingID)
	assert.Len(t, f.gateway.Requests(), 1)

	_, err = f.orch.PayAppointment(context.Background(), PayRequest{
		AppointmentID: booked.AppointmentID,
		PatientID:     "someone-else",
		Phone:         "254712345678",
	})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Equal(t, "Appointment not found or access denied", apperr.MessageOf(err))
}

func TestPayAppointment_AlreadyPaid(t *testing.T) {
	f := newFixture(t)
	booked, err := f.orch.BookAppointment(context.Background(), validBooking())
	require.NoError(t, err)
	_, _, err = f.ledger.SetPaymentStatus(context.Background(), booked.AppointmentID, appointments.PaymentCompleted, booked.TrackingID)
	require.NoError(t, err)

	_, err = f.orch.PayAppointment(context.Background(), PayRequest{
		AppointmentID: booked.AppointmentID,
		PatientID:     "pat-1",
		Phone:         "254712345678",
	})
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}
