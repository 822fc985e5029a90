package profiles

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
	"github.com/doorstepdoctor/doorstep-api/internal/identity"
	"github.com/doorstepdoctor/doorstep-api/pkg/logging"
)

// Handler exposes the owner and admin profile endpoints.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (identity.Principal, bool) {
	p, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		apperr.Write(w, apperr.Authentication("missing authorization"))
	}
	return p, ok
}

// GetCredentials handles GET /api/doctors/me/credentials.
func (h *Handler) GetCredentials(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	if !p.IsDoctor() {
		apperr.Write(w, apperr.Authorization("only doctors have credentials"))
		return
	}
	c, err := h.service.Credentials(r.Context(), p.UserID)
	if err != nil {
		h.logger.Error("failed to load credentials", "error", err, "doctor_id", p.UserID)
		apperr.Write(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, c)
}

// PutCredentials handles PUT /api/doctors/me/credentials.
func (h *Handler) PutCredentials(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	if !p.IsDoctor() {
		apperr.Write(w, apperr.Authorization("only doctors have credentials"))
		return
	}
	var req CredentialsUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validation("invalid request body"))
		return
	}
	c, err := h.service.UpdateCredentials(r.Context(), p.UserID, req)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, c)
}

type verificationRequest struct {
	Verified *bool `json:"verified"`
}

// SetVerification handles PUT /api/admin/doctors/{doctorID}/verification.
func (h *Handler) SetVerification(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	if !p.IsAdmin() {
		apperr.Write(w, apperr.Authorization("admin role required"))
		return
	}
	var req verificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Verified == nil {
		apperr.Write(w, apperr.Validation("verified is required"))
		return
	}
	c, err := h.service.SetVerified(r.Context(), chi.URLParam(r, "doctorID"), *req.Verified)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, c)
}

// GetMedicalHistory handles GET /api/patients/me/medical-history.
func (h *Handler) GetMedicalHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	if p.Role != identity.RolePatient {
		apperr.Write(w, apperr.Authorization("only patients have a medical history"))
		return
	}
	hist, err := h.service.MedicalHistory(r.Context(), p.UserID)
	if err != nil {
		h.logger.Error("failed to load medical history", "error", err, "patient_id", p.UserID)
		apperr.Write(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, hist)
}

// PutMedicalHistory handles PUT /api/patients/me/medical-history.
func (h *Handler) PutMedicalHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	if p.Role != identity.RolePatient {
		apperr.Write(w, apperr.Authorization("only patients have a medical history"))
		return
	}
	var req MedicalHistoryUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validation("invalid request body"))
		return
	}
	hist, err := h.service.UpdateMedicalHistory(r.Context(), p.UserID, req)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, hist)
}
