package appointments

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
	"github.com/doorstepdoctor/doorstep-api/internal/identity"
	"github.com/doorstepdoctor/doorstep-api/pkg/logging"
)

// Handler serves the appointment read and doctor-action endpoints.
type Handler struct {
	ledger *Ledger
	logger *logging.Logger
}

func NewHandler(ledger *Ledger, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{ledger: ledger, logger: logger}
}

type listResponse struct {
	Appointments []*Appointment `json:"appointments"`
	Count        int            `json:"count"`
}

// ListForDoctor handles GET /api/doctors/me/appointments.
func (h *Handler) ListForDoctor(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		apperr.Write(w, apperr.Authentication("missing authorization"))
		return
	}
	if !p.IsDoctor() {
		apperr.Write(w, apperr.Authorization("only doctors can view their schedule"))
		return
	}
	list, err := h.ledger.ListByDoctor(r.Context(), p.UserID)
	if err != nil {
		h.logger.Error("failed to list doctor appointments", "error", err, "doctor_id", p.UserID)
		apperr.Write(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, listResponse{Appointments: list, Count: len(list)})
}

// StatsForDoctor handles GET /api/doctors/me/stats.
func (h *Handler) StatsForDoctor(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		apperr.Write(w, apperr.Authentication("missing authorization"))
		return
	}
	if !p.IsDoctor() {
		apperr.Write(w, apperr.Authorization("only doctors can view dashboard stats"))
		return
	}
	stats, err := h.ledger.Stats(r.Context(), p.UserID)
	if err != nil {
		h.logger.Error("failed to compute stats", "error", err, "doctor_id", p.UserID)
		apperr.Write(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, stats)
}

// ListForPatient handles GET /api/patients/me/appointments.
func (h *Handler) ListForPatient(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		apperr.Write(w, apperr.Authentication("missing authorization"))
		return
	}
	list, err := h.ledger.ListByPatient(r.Context(), p.UserID)
	if err != nil {
		h.logger.Error("failed to list patient appointments", "error", err, "patient_id", p.UserID)
		apperr.Write(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, listResponse{Appointments: list, Count: len(list)})
}

// Get handles GET /api/appointments/{id}. Only the two participants and
// admins may read it; everyone else gets a 404.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		apperr.Write(w, apperr.Authentication("missing authorization"))
		return
	}
	a, err := h.ledger.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	if !p.IsAdmin() && a.DoctorID != p.UserID && a.PatientID != p.UserID {
		apperr.Write(w, apperr.NotFound("appointment not found"))
		return
	}
	apperr.WriteJSON(w, http.StatusOK, a)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles PATCH /api/appointments/{id}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		apperr.Write(w, apperr.Authentication("missing authorization"))
		return
	}
	if !p.IsDoctor() {
		apperr.Write(w, apperr.Authorization("only doctors can update appointment status"))
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validation("invalid request body"))
		return
	}
	to, ok := ParseStatus(req.Status)
	if !ok {
		apperr.Write(w, apperr.Validation("invalid status %q", req.Status))
		return
	}

	id := chi.URLParam(r, "id")
	a, err := h.ledger.SetStatus(r.Context(), id, to, DoctorActor(p.UserID))
	if err != nil {
		h.logger.Warn("appointment status update rejected", "error", err, "appointment_id", id, "doctor_id", p.UserID)
		apperr.Write(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, a)
}
