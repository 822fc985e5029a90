package subscriptions

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
	"github.com/doorstepdoctor/doorstep-api/internal/identity"
	"github.com/doorstepdoctor/doorstep-api/pkg/logging"
)

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

// ListPlans handles GET /api/subscriptions/plans.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	apperr.WriteJSON(w, http.StatusOK, map[string]any{"plans": Plans()})
}

type subscribeRequest struct {
	PlanType    string `json:"plan_type"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
}

type subscribeResponse struct {
	Success        bool   `json:"success"`
	SubscriptionID string `json:"subscription_id"`
	TrackingID     string `json:"tracking_id"`
	CheckoutID     string `json:"checkout_id"`
	Plan           string `json:"plan"`
	Amount         int64  `json:"amount"`
	Message        string `json:"message"`
}

// Subscribe handles POST /api/subscriptions.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		apperr.Write(w, apperr.Authentication("missing authorization"))
		return
	}
	if !p.IsDoctor() {
		apperr.Write(w, apperr.Authorization(accessDeniedMessage))
		return
	}
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validation("invalid request body"))
		return
	}
	email := req.Email
	if email == "" {
		email = p.Email
	}

	res, err := h.ledger.Subscribe(r.Context(), SubscribeRequest{
		DoctorID: p.UserID,
		PlanType: req.PlanType,
		Phone:    req.PhoneNumber,
		Email:    email,
	})
	if err != nil {
		h.logger.Warn("subscription request failed", "error", err, "doctor_id", p.UserID, "plan", req.PlanType)
		apperr.Write(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, subscribeResponse{
		Success:        true,
		SubscriptionID: res.SubscriptionID,
		TrackingID:     res.TrackingID,
		CheckoutID:     res.CheckoutID,
		Plan:           res.Plan,
		Amount:         res.AmountKES,
		Message:        "Subscription payment initiated successfully",
	})
}

type mineResponse struct {
	Active  bool            `json:"active"`
	Current *Subscription   `json:"current"`
	History []*Subscription `json:"history"`
}

// Mine handles GET /api/subscriptions/me.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		apperr.Write(w, apperr.Authentication("missing authorization"))
		return
	}
	if !p.IsDoctor() {
		apperr.Write(w, apperr.Authorization("only doctors have subscriptions"))
		return
	}
	history, err := h.ledger.History(r.Context(), p.UserID)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	current, err := h.ledger.Current(r.Context(), p.UserID, h.ledger.now())
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		apperr.Write(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, mineResponse{Active: current != nil, Current: current, History: history})
}
