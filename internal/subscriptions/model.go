package subscriptions

import (
	"strings"
	"time"
)

// PlanTier is one of the fixed subscription tiers.
type PlanTier string

const (
	TierBasic      PlanTier = "basic"
	TierPremium    PlanTier = "premium"
	TierEnterprise PlanTier = "enterprise"
)

// Plan is a tier's monthly price in whole shillings.
type Plan struct {
	Tier     PlanTier `json:"plan_type"`
	Name     string   `json:"name"`
	PriceKES int64    `json:"amount"`
	Duration string   `json:"duration"`
}

var catalog = []Plan{
	{Tier: TierBasic, Name: "Basic Plan", PriceKES: 2000, Duration: "monthly"},
	{Tier: TierPremium, Name: "Premium Plan", PriceKES: 5000, Duration: "monthly"},
	{Tier: TierEnterprise, Name: "Enterprise Plan", PriceKES: 10000, Duration: "monthly"},
}

// Plans lists the catalog in ascending price.
func Plans() []Plan {
	out := make([]Plan, len(catalog))
	copy(out, catalog)
	return out
}

// PlanFor looks up a tier by its wire name.
func PlanFor(raw string) (Plan, bool) {
	tier := PlanTier(strings.ToLower(strings.TrimSpace(raw)))
	for _, p := range catalog {
		if p.Tier == tier {
			return p, true
		}
	}
	return Plan{}, false
}

// Status of a subscription row.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusFailed  Status = "failed"
)

// Subscription is one paid (or pending) term. StartsAt/EndsAt are set on
// activation; the window is half-open [StartsAt, EndsAt).
type Subscription struct {
	ID         string     `json:"id"`
	DoctorID   string     `json:"doctor_id"`
	Plan       PlanTier   `json:"plan_type"`
	AmountKES  int64      `json:"amount"`
	Status     Status     `json:"status"`
	PaymentRef string     `json:"payment_ref"`
	TrackingID string     `json:"tracking_id,omitempty"`
	CheckoutID string     `json:"checkout_id,omitempty"`
	InvoiceID  string     `json:"invoice_id,omitempty"`
	Currency   string     `json:"currency,omitempty"`
	StartsAt   *time.Time `json:"starts_at,omitempty"`
	EndsAt     *time.Time `json:"ends_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ActiveAt reports whether the subscription covers t.
func (s *Subscription) ActiveAt(t time.Time) bool {
	if s.Status != StatusActive || s.StartsAt == nil || s.EndsAt == nil {
		return false
	}
	return !t.Before(*s.StartsAt) && t.Before(*s.EndsAt)
}

// PaymentAttempt is what the gateway returned for a subscription prompt.
type PaymentAttempt struct {
	TrackingID string
	CheckoutID string
	InvoiceID  string
	Currency   string
}
