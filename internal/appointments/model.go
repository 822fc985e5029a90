package appointments

import (
	"strings"
	"time"
)

// Status is the visit lifecycle controlled by the doctor and reconciliation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// PaymentStatus only moves via provider-verified reconciliation.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// ConsultationMode is how the doctor meets the patient.
type ConsultationMode string

const (
	ModeHomeVisit        ConsultationMode = "home_visit"
	ModeClinic           ConsultationMode = "clinic"
	ModeTeleconsultation ConsultationMode = "teleconsultation"
)

// ParseMode defaults an empty value to a home visit.
func ParseMode(raw string) (ConsultationMode, bool) {
	switch ConsultationMode(strings.TrimSpace(raw)) {
	case "", ModeHomeVisit:
		return ModeHomeVisit, true
	case ModeClinic:
		return ModeClinic, true
	case ModeTeleconsultation:
		return ModeTeleconsultation, true
	}
	return "", false
}

func ParseStatus(raw string) (Status, bool) {
	switch s := Status(strings.TrimSpace(raw)); s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return s, true
	}
	return "", false
}

func ParsePaymentStatus(raw string) (PaymentStatus, bool) {
	switch s := PaymentStatus(strings.TrimSpace(raw)); s {
	case PaymentPending, PaymentCompleted, PaymentFailed:
		return s, true
	}
	return "", false
}

// Appointment is one booked visit. AmountKES is in whole shillings.
type Appointment struct {
	ID               string           `json:"id"`
	DoctorID         string           `json:"doctor_id"`
	PatientID        string           `json:"patient_id"`
	ScheduledFor     time.Time        `json:"appointment_date"`
	ConsultationType ConsultationMode `json:"consultation_type"`
	Address          string           `json:"address"`
	Notes            string           `json:"notes,omitempty"`
	AmountKES        int64            `json:"amount"`
	Status           Status           `json:"status"`
	PaymentStatus    PaymentStatus    `json:"payment_status"`
	// PaymentRef is generated at creation and sent to the provider as api_ref,
	// so one appointment maps to one logical charge.
	PaymentRef string    `json:"payment_ref"`
	TrackingID string    `json:"tracking_id,omitempty"`
	CheckoutID string    `json:"checkout_id,omitempty"`
	InvoiceID  string    `json:"invoice_id,omitempty"`
	Currency   string    `json:"currency,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HasPaymentAttempt reports whether a provider prompt was already sent.
func (a *Appointment) HasPaymentAttempt() bool {
	return a.TrackingID != ""
}

// NewAppointment carries the patient-supplied booking fields.
type NewAppointment struct {
	DoctorID         string
	PatientID        string
	ScheduledFor     time.Time
	ConsultationType ConsultationMode
	Address          string
	Notes            string
	AmountKES        int64
}

// PaymentAttempt is what the gateway returned for a prompt.
type PaymentAttempt struct {
	TrackingID string
	CheckoutID string
	InvoiceID  string
	Currency   string
	AmountKES  int64
}
