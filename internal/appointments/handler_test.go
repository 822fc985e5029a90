package appointments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doorstepdoctor/doorstep-api/internal/identity"
	"github.com/doorstepdoctor/doorstep-api/pkg/logging"
)

func newTestRouter(l *Ledger) http.Handler {
	h := NewHandler(l, logging.Default())
	r := chi.NewRouter()
	r.Get("/api/doctors/me/appointments", h.ListForDoctor)
	r.Get("/api/doctors/me/stats", h.StatsForDoctor)
	r.Get("/api/patients/me/appointments", h.ListForPatient)
	r.Get("/api/appointments/{id}", h.Get)
	r.Patch("/api/appointments/{id}/status", h.UpdateStatus)
	return r
}

func asUser(req *http.Request, userID string, role identity.Role) *http.Request {
	ctx := identity.WithPrincipal(req.Context(), identity.Principal{UserID: userID, Role: role})
	return req.WithContext(ctx)
}

func TestHandlerDoctorEndpointsRequireDoctor(t *testing.T) {
	l, _ := newTestLedger()
	router := newTestRouter(l)

	for _, path := range []string{"/api/doctors/me/appointments", "/api/doctors/me/stats"} {
		req := asUser(httptest.NewRequest(http.MethodGet, path, nil), "pat-1", identity.RolePatient)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code, path)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/doctors/me/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandlerStats(t *testing.T) {
	l, _ := newTestLedger()
	a := seedWithPrompt(t, l, "trk-h1")
	_, _, err := l.SetPaymentStatus(context.Background(), a.ID, PaymentCompleted, "trk-h1")
	require.NoError(t, err)
	seedAppointment(t, l)

	router := newTestRouter(l)
	req := asUser(httptest.NewRequest(http.MethodGet, "/api/doctors/me/stats", nil), "doc-1", identity.RoleDoctor)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var stats DoctorStats
	require.NoError(t, json.NewDecoder(w.Body).Decode(&stats))
	assert.Equal(t, 2, stats.TotalAppointments)
	assert.Equal(t, 1, stats.PendingAppointments)
	assert.Equal(t, 1, stats.ConfirmedAppointments)
	assert.Equal(t, int64(2000), stats.TotalEarningsKES)
}

func TestHandlerUpdateStatus(t *testing.T) {
	l, _ := newTestLedger()
	a := seedAppointment(t, l)
	router := newTestRouter(l)

	req := asUser(httptest.NewRequest(http.MethodPatch, "/api/appointments/"+a.ID+"/status",
		strings.NewReader(`{"status":"completed"}`)), "doc-1", identity.RoleDoctor)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)

	req = asUser(httptest.NewRequest(http.MethodPatch, "/api/appointments/"+a.ID+"/status",
		strings.NewReader(`{"status":"cancelled"}`)), "doc-1", identity.RoleDoctor)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var got Appointment
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, StatusCancelled, got.Status)

	req = asUser(httptest.NewRequest(http.MethodPatch, "/api/appointments/"+a.ID+"/status",
		strings.NewReader(`{"status":"bogus"}`)), "doc-1", identity.RoleDoctor)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerGetHidesOthersAppointments(t *testing.T) {
	l, _ := newTestLedger()
	a := seedAppointment(t, l)
	router := newTestRouter(l)

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/appointments/"+a.ID, nil), "stranger", identity.RolePatient)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = asUser(httptest.NewRequest(http.MethodGet, "/api/appointments/"+a.ID, nil), "pat-1", identity.RolePatient)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandlerListForPatient(t *testing.T) {
	l, _ := newTestLedger()
	seedAppointment(t, l)
	router := newTestRouter(l)

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/patients/me/appointments", nil), "pat-1", identity.RolePatient)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body listResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
}
