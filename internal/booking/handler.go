package booking

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
	"github.com/doorstepdoctor/doorstep-api/internal/identity"
	"github.com/doorstepdoctor/doorstep-api/pkg/logging"
)

// Handler exposes booking and appointment-payment endpoints.
type Handler struct {
	orchestrator *Orchestrator
	logger       *logging.Logger
}

func NewHandler(o *Orchestrator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{orchestrator: o, logger: logger}
}

type bookRequest struct {
	DoctorID         string `json:"doctor_id"`
	AppointmentDate  string `json:"appointment_date"`
	ConsultationType string `json:"consultation_type"`
	Address          string `json:"address"`
	PhoneNumber      string `json:"phone_number"`
	Email            string `json:"email"`
	Amount           int64  `json:"amount"`
	Notes            string `json:"notes"`
	Currency         string `json:"currency"`
}

type payRequest struct {
	AppointmentID string `json:"appointment_id"`
	Amount        int64  `json:"amount"`
	PhoneNumber   string `json:"phone_number"`
	Email         string `json:"email"`
	Currency      string `json:"currency"`
}

type paymentResponse struct {
	Success       bool   `json:"success"`
	AppointmentID string `json:"appointment_id"`
	TrackingID    string `json:"tracking_id"`
	CheckoutID    string `json:"checkout_id"`
	Message       string `json:"message"`
}

type initiationFailedResponse struct {
	Error         string `json:"error"`
	AppointmentID string `json:"appointment_id"`
}

// Book handles POST /api/appointments.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		apperr.Write(w, apperr.Authentication("missing authorization"))
		return
	}
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validation("invalid request body"))
		return
	}

	res, err := h.orchestrator.BookAppointment(r.Context(), BookingRequest{
		DoctorID:         req.DoctorID,
		PatientID:        p.UserID,
		AppointmentDate:  req.AppointmentDate,
		ConsultationType: req.ConsultationType,
		Address:          req.Address,
		Phone:            req.PhoneNumber,
		Email:            firstNonEmpty(req.Email, p.Email),
		AmountKES:        req.Amount,
		Notes:            req.Notes,
		Currency:         req.Currency,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusCreated, paymentResponse{
		Success:       true,
		AppointmentID: res.AppointmentID,
		TrackingID:    res.TrackingID,
		CheckoutID:    res.CheckoutID,
		Message:       "Appointment booked; payment prompt sent",
	})
}

// Pay handles POST /api/payments/appointments.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		apperr.Write(w, apperr.Authentication("missing authorization"))
		return
	}
	var req payRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validation("invalid request body"))
		return
	}
	if req.AppointmentID == "" {
		apperr.Write(w, apperr.Validation("appointment_id is required"))
		return
	}

	res, err := h.orchestrator.PayAppointment(r.Context(), PayRequest{
		AppointmentID: req.AppointmentID,
		PatientID:     p.UserID,
		AmountKES:     req.Amount,
		Phone:         req.PhoneNumber,
		Email:         firstNonEmpty(req.Email, p.Email),
		Currency:      req.Currency,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, paymentResponse{
		Success:       true,
		AppointmentID: res.AppointmentID,
		TrackingID:    res.TrackingID,
		CheckoutID:    res.CheckoutID,
		Message:       "Payment initiated successfully",
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var initErr *InitiationError
	if errors.As(err, &initErr) {
		h.logger.Warn("payment initiation failed after booking", "error", err, "appointment_id", initErr.AppointmentID)
		apperr.WriteJSON(w, apperr.HTTPStatus(err), initiationFailedResponse{
			Error:         apperr.MessageOf(err),
			AppointmentID: initErr.AppointmentID,
		})
		return
	}
	if apperr.KindOf(err) == apperr.KindInternal {
		h.logger.Error("booking request failed", "error", err)
	}
	apperr.Write(w, err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
