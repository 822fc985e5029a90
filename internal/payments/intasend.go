package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
	"github.com/doorstepdoctor/doorstep-api/pkg/logging"
)

var intasendTracer = otel.Tracer("doorstep.internal.payments.intasend")

const (
	defaultIntasendBaseURL = "https://payment.intasend.com"
	stkPushPath            = "/api/v1/payment/mpesa-stk-push/"
	defaultGatewayTimeout  = 10 * time.Second
)

// IntasendClient sends M-Pesa STK push prompts through IntaSend.
type IntasendClient struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

func NewIntasendClient(secretKey string, logger *logging.Logger) *IntasendClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &IntasendClient{
		secretKey:  strings.TrimSpace(secretKey),
		baseURL:    defaultIntasendBaseURL,
		httpClient: &http.Client{Timeout: defaultGatewayTimeout},
		logger:     logger,
	}
}

// WithBaseURL overrides the IntaSend host (e.g., sandbox).
func (c *IntasendClient) WithBaseURL(baseURL string) *IntasendClient {
	if baseURL == "" {
		return c
	}
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// WithTimeout bounds the single outbound call.
func (c *IntasendClient) WithTimeout(timeout time.Duration) *IntasendClient {
	if timeout > 0 {
		c.httpClient.Timeout = timeout
	}
	return c
}

type stkPushBody struct {
	Amount      int64  `json:"amount"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email,omitempty"`
	Narrative   string `json:"narrative"`
	Currency    string `json:"currency"`
	APIRef      string `json:"api_ref,omitempty"`
}

type stkPushResponse struct {
	ID         string `json:"id"`
	TrackingID string `json:"tracking_id"`
	Invoice    struct {
		InvoiceID string `json:"invoice_id"`
	} `json:"invoice"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func (c *IntasendClient) InitiatePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	if c.secretKey == "" {
		return nil, apperr.Configuration("INTASEND_SECRET_KEY is not set")
	}
	if req.AmountKES <= 0 {
		return nil, apperr.Validation("amount must be positive")
	}
	if strings.TrimSpace(req.Phone) == "" {
		return nil, apperr.Validation("phone_number is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "KES"
	}

	ctx, span := intasendTracer.Start(ctx, "intasend.stk_push")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.api_ref", req.APIRef),
		attribute.Int64("payment.amount_kes", req.AmountKES),
	)

	payload, err := json.Marshal(stkPushBody{
		Amount:      req.AmountKES,
		PhoneNumber: strings.TrimSpace(req.Phone),
		Email:       strings.TrimSpace(req.Email),
		Narrative:   req.Narrative,
		Currency:    currency,
		APIRef:      req.APIRef,
	})
	if err != nil {
		return nil, fmt.Errorf("payments: intasend payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+stkPushPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("payments: intasend request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Info("sending stk push", "api_ref", req.APIRef, "amount_kes", req.AmountKES, "phone", logging.MaskPhone(req.Phone))
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Gateway("Instasend API error: request failed", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var parsed stkPushResponse
	decodeErr := json.Unmarshal(body, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := parsed.Message
		if msg == "" {
			msg = parsed.Detail
		}
		if msg == "" {
			msg = "Unknown error"
		}
		c.logger.Warn("stk push rejected", "status", resp.StatusCode, "api_ref", req.APIRef, "message", msg)
		return nil, apperr.Gateway("Instasend API error: "+msg, fmt.Errorf("status %d", resp.StatusCode))
	}
	if decodeErr != nil {
		return nil, apperr.Gateway("Instasend API error: malformed response", decodeErr)
	}
	if parsed.TrackingID == "" {
		return nil, apperr.Gateway("Instasend API error: response missing tracking_id", nil)
	}

	return &PaymentResult{
		TrackingID: parsed.TrackingID,
		CheckoutID: parsed.ID,
		InvoiceID:  parsed.Invoice.InvoiceID,
	}, nil
}
