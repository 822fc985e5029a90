package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doorstepdoctor/doorstep-api/internal/appointments"
	"github.com/doorstepdoctor/doorstep-api/internal/booking"
	httpmiddleware "github.com/doorstepdoctor/doorstep-api/internal/http/middleware"
	"github.com/doorstepdoctor/doorstep-api/internal/identity"
	"github.com/doorstepdoctor/doorstep-api/internal/payments"
	"github.com/doorstepdoctor/doorstep-api/internal/reconciliation"
	"github.com/doorstepdoctor/doorstep-api/internal/subscriptions"
	"github.com/doorstepdoctor/doorstep-api/pkg/logging"
)

const testSecret = "router-secret"

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func newTestRouter(t *testing.T, readiness Pinger) http.Handler {
	t.Helper()

	logger := logging.Default()
	roles := identity.NewInMemoryRoleStore(map[string]identity.Role{
		"doc-1": identity.RoleDoctor,
		"pat-1": identity.RolePatient,
	})
	apptLedger := appointments.NewLedger(appointments.NewInMemoryRepository(), logger)
	initiator := payments.NewInitiator(payments.NewFakeGateway(logger), nil, nil, nil, logger)
	subLedger := subscriptions.NewLedger(subscriptions.NewInMemoryRepository(), roles, initiator, 1, "KES", logger)
	orch := booking.NewOrchestrator(apptLedger, roles, initiator, nil, booking.Config{}, logger)
	listener := reconciliation.NewListener(apptLedger, subLedger, reconciliation.NewHMACVerifier("whsec"), nil, nil, nil, logger)

	return New(&Config{
		Logger:         logger,
		Booking:        booking.NewHandler(orch, logger),
		Appointments:   appointments.NewHandler(apptLedger, logger),
		Subscriptions:  subscriptions.NewHandler(subLedger, logger),
		Webhook:        reconciliation.NewWebhookHandler(listener, logger),
		FakeCallbacks:  reconciliation.NewFakeCallbackHandler(listener, logger),
		Auth:           httpmiddleware.AuthConfig{Secret: testSecret},
		Roles:          roles,
		WebhookLimiter: httpmiddleware.NewRateLimiter(100, 100),
		Readiness:      readiness,
	})
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func call(t *testing.T, h http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("Authorization", bearer(t, user))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterHealthEndpoints(t *testing.T) {
	router := newTestRouter(t, nil)
	rec := call(t, router, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	down := newTestRouter(t, stubPinger{err: errors.New("connection refused")})
	assert.Equal(t, http.StatusServiceUnavailable, call(t, down, http.MethodGet, "/ready", "", nil).Code)
}

func TestRouterRequiresAuthentication(t *testing.T) {
	router := newTestRouter(t, nil)
	assert.Equal(t, http.StatusUnauthorized, call(t, router, http.MethodGet, "/api/patients/me/appointments", "", nil).Code)
	assert.Equal(t, http.StatusOK, call(t, router, http.MethodGet, "/api/subscriptions/plans", "", nil).Code)
}

func TestRouterWebhookRejectsUnsigned(t *testing.T) {
	router := newTestRouter(t, nil)
	rec := call(t, router, http.MethodPost, "/webhooks/intasend", "", map[string]string{"tracking_id": "x", "state": "COMPLETE"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterBookPayAndReconcile(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := call(t, router, http.MethodPost, "/api/appointments", "pat-1", map[string]any{
		"doctor_id":        "doc-1",
		"appointment_date": time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
		"address":          "14 Riverside Drive, Nairobi",
		"phone_number":     "254712345678",
		"amount":           2500,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var booked struct {
		AppointmentID string `json:"appointment_id"`
		TrackingID    string `json:"tracking_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &booked))
	require.NotEmpty(t, booked.TrackingID)

	rec = call(t, router, http.MethodPost, "/dev/payments/"+booked.TrackingID+"/complete", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(t, router, http.MethodGet, "/api/appointments/"+booked.AppointmentID, "pat-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var appt appointments.Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appt))
	assert.Equal(t, appointments.PaymentCompleted, appt.PaymentStatus)
	assert.Equal(t, appointments.StatusConfirmed, appt.Status)

	rec = call(t, router, http.MethodGet, "/api/doctors/me/stats", "doc-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats appointments.DoctorStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalAppointments)
	assert.Equal(t, 0, stats.PendingAppointments)
	assert.Equal(t, 1, stats.ConfirmedAppointments)
	assert.Equal(t, int64(2500), stats.TotalEarningsKES)

	assert.Equal(t, http.StatusForbidden, call(t, router, http.MethodGet, "/api/doctors/me/stats", "pat-1", nil).Code)
}
