// Package payments sends M-Pesa push prompts through IntaSend and guards
// them against duplicate or abusive initiation.
package payments

import "context"

// PaymentRequest is one push-payment prompt. AmountKES is whole shillings.
type PaymentRequest struct {
	AmountKES int64
	Phone     string
	Email     string
	Narrative string
	Currency  string
	// APIRef is our idempotency reference, echoed back on provider callbacks.
	APIRef string
}

// PaymentResult is the provider's acknowledgement that a prompt was sent.
// It says nothing about whether the payer approved it.
type PaymentResult struct {
	TrackingID string `json:"tracking_id"`
	CheckoutID string `json:"checkout_id"`
	// InvoiceID keys the provider's status lookup and its callbacks.
	InvoiceID string `json:"invoice_id,omitempty"`
}

// Gateway initiates mobile-money prompts. Implementations make exactly one
// outbound attempt per call; callers own deduplication.
type Gateway interface {
	InitiatePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error)
}
