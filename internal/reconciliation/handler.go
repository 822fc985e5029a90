package reconciliation

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
	"github.com/doorstepdoctor/doorstep-api/pkg/logging"
)

// SignatureHeader carries the hex HMAC of the callback body.
const SignatureHeader = "X-IntaSend-Signature"

const maxCallbackBytes = 1 << 20

// WebhookHandler receives IntaSend collection callbacks.
type WebhookHandler struct {
	listener *Listener
	logger   *logging.Logger
}

func NewWebhookHandler(listener *Listener, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{listener: listener, logger: logger}
}

// Handle serves POST /webhooks/intasend. Only 2xx tells the provider to stop
// redelivering, so unknown tracking ids answer 404.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBytes))
	if err != nil {
		apperr.Write(w, apperr.Validation("invalid body"))
		return
	}

	outcome, err := h.listener.HandleProviderCallback(r.Context(), payload, r.Header.Get(SignatureHeader))
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			h.logger.Error("callback processing failed", "error", err)
		}
		apperr.Write(w, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "outcome": string(outcome)})
}

// FakeCallbackHandler lets developers resolve prompts issued by the fake
// gateway. Only mount this handler when ALLOW_FAKE_PAYMENTS=true.
type FakeCallbackHandler struct {
	listener *Listener
	logger   *logging.Logger
}

func NewFakeCallbackHandler(listener *Listener, logger *logging.Logger) *FakeCallbackHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakeCallbackHandler{listener: listener, logger: logger}
}

func (h *FakeCallbackHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/payments/{trackingID}/{state}", h.Simulate)
	return r
}

// Simulate applies state ("complete" or "failed") to trackingID, skipping
// signature verification.
func (h *FakeCallbackHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	trackingID := chi.URLParam(r, "trackingID")
	if !strings.HasPrefix(trackingID, "fake-") {
		apperr.Write(w, apperr.Authorization("only fake gateway prompts can be simulated"))
		return
	}
	cb := Callback{
		TrackingID: trackingID,
		State:      strings.ToUpper(chi.URLParam(r, "state")),
	}
	outcome, err := h.listener.Apply(r.Context(), cb)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	h.logger.Info("fake callback applied", "tracking_id", trackingID, "state", cb.State, "outcome", outcome)
	apperr.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "outcome": string(outcome)})
}
