package reconciliation

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
	"github.com/doorstepdoctor/doorstep-api/internal/appointments"
	"github.com/doorstepdoctor/doorstep-api/internal/subscriptions"
)

// Callback is the IntaSend collection event body.
type Callback struct {
	InvoiceID    string          `json:"invoice_id"`
	TrackingID   string          `json:"tracking_id"`
	State        string          `json:"state"`
	APIRef       string          `json:"api_ref"`
	Value        json.RawMessage `json:"value,omitempty"`
	Currency     string          `json:"currency"`
	FailedReason string          `json:"failed_reason"`
	Challenge    string          `json:"challenge"`
}

// ProviderState is the provider's view of a push payment.
type ProviderState int

const (
	StateUnknown ProviderState = iota
	StateInFlight
	StateSucceeded
	StateFailed
)

// Classify maps the provider state string. PENDING, PROCESSING and RETRY are
// in-flight and never touch the ledgers; an exhausted retry arrives as FAILED.
func Classify(state string) ProviderState {
	switch strings.ToUpper(strings.TrimSpace(state)) {
	case "COMPLETE", "COMPLETED":
		return StateSucceeded
	case "FAILED", "CANCELLED", "CANCELED":
		return StateFailed
	case "PENDING", "PROCESSING", "RETRY":
		return StateInFlight
	default:
		return StateUnknown
	}
}

func parseCallback(body []byte) (Callback, error) {
	var cb Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		return Callback{}, apperr.Validation("invalid callback body")
	}
	cb.TrackingID = strings.TrimSpace(cb.TrackingID)
	cb.APIRef = strings.TrimSpace(cb.APIRef)
	cb.InvoiceID = strings.TrimSpace(cb.InvoiceID)
	cb.State = strings.ToUpper(strings.TrimSpace(cb.State))
	if cb.TrackingID == "" && cb.APIRef == "" {
		return Callback{}, apperr.Validation("tracking_id or api_ref is required")
	}
	if cb.State == "" {
		return Callback{}, apperr.Validation("state is required")
	}
	return cb, nil
}

// Amount parses the collected value, which IntaSend sends as a decimal
// string. ok is false when the callback carries no value.
func (cb Callback) Amount() (amount float64, ok bool, err error) {
	raw := strings.TrimSpace(string(cb.Value))
	if raw == "" || raw == "null" {
		return 0, false, nil
	}
	var text string
	if err := json.Unmarshal(cb.Value, &text); err == nil {
		raw = strings.TrimSpace(text)
	}
	if raw == "" {
		return 0, false, nil
	}
	amount, err = strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, true, apperr.Validation("invalid callback value %q", raw)
	}
	return amount, true, nil
}

// charge is the appointment or subscription a callback resolved to.
type charge struct {
	appt *appointments.Appointment
	sub  *subscriptions.Subscription
}

func (c charge) trackingID() string {
	if c.appt != nil {
		return c.appt.TrackingID
	}
	return c.sub.TrackingID
}

func (c charge) fields() (paymentRef, invoiceID, currency string, amountKES int64) {
	if c.appt != nil {
		return c.appt.PaymentRef, c.appt.InvoiceID, c.appt.Currency, c.appt.AmountKES
	}
	return c.sub.PaymentRef, c.sub.InvoiceID, c.sub.Currency, c.sub.AmountKES
}

// matches rejects a callback whose references disagree with the recorded
// prompt, or whose collected value or currency differ from the charge.
// Fields the provider left out are not compared.
func (c charge) matches(cb Callback, state ProviderState) error {
	paymentRef, invoiceID, currency, amountKES := c.fields()
	if cb.APIRef != "" && cb.APIRef != paymentRef {
		return apperr.Validation("callback api_ref does not match the payment")
	}
	if cb.InvoiceID != "" && invoiceID != "" && cb.InvoiceID != invoiceID {
		return apperr.Validation("callback invoice_id does not match the payment")
	}
	if state != StateSucceeded {
		return nil
	}
	if cb.Currency != "" && currency != "" && !strings.EqualFold(strings.TrimSpace(cb.Currency), currency) {
		return apperr.Validation("callback currency %s does not match %s", cb.Currency, currency)
	}
	amount, ok, err := cb.Amount()
	if err != nil {
		return err
	}
	if ok && math.Abs(amount-float64(amountKES)) >= 0.005 {
		return apperr.Validation("callback value %v does not match amount %d", amount, amountKES)
	}
	return nil
}

// Verifier authenticates a raw callback body before anything in it is trusted.
type Verifier interface {
	Verify(body []byte, signature string) error
}

// HMACVerifier expects a hex HMAC-SHA256 of the raw body.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(body []byte, signature string) error {
	signature = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if len(v.secret) == 0 || signature == "" {
		return apperr.Authentication("invalid callback signature")
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return apperr.Authentication("invalid callback signature")
	}
	return nil
}

// Sign returns the signature HMACVerifier accepts for body.
func (v *HMACVerifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ChallengeVerifier checks the shared challenge string IntaSend echoes in
// every callback body.
type ChallengeVerifier struct {
	secret []byte
}

func NewChallengeVerifier(secret string) *ChallengeVerifier {
	return &ChallengeVerifier{secret: []byte(secret)}
}

func (v *ChallengeVerifier) Verify(body []byte, _ string) error {
	var envelope struct {
		Challenge string `json:"challenge"`
	}
	if len(v.secret) == 0 || json.Unmarshal(body, &envelope) != nil || envelope.Challenge == "" {
		return apperr.Authentication("invalid callback challenge")
	}
	if subtle.ConstantTimeCompare([]byte(envelope.Challenge), v.secret) != 1 {
		return apperr.Authentication("invalid callback challenge")
	}
	return nil
}

// NewVerifier picks the verifier for mode ("hmac" or "challenge").
func NewVerifier(mode, secret string) (Verifier, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "hmac":
		return NewHMACVerifier(secret), nil
	case "challenge":
		return NewChallengeVerifier(secret), nil
	default:
		return nil, apperr.Configuration("unknown webhook verification mode %q", mode)
	}
}
