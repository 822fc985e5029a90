package events

import "time"

// Event type names written to the outbox.
const (
	TypeAppointmentBooked     = "appointment_booked.v1"
	TypePaymentCompleted      = "payment_completed.v1"
	TypePaymentFailed         = "payment_failed.v1"
	TypeSubscriptionActivated = "subscription_activated.v1"
)

type AppointmentBookedV1 struct {
	AppointmentID    string    `json:"appointment_id"`
	DoctorID         string    `json:"doctor_id"`
	PatientID        string    `json:"patient_id"`
	ScheduledFor     time.Time `json:"scheduled_for"`
	ConsultationType string    `json:"consultation_type"`
	AmountKES        int64     `json:"amount_kes"`
	BookedAt         time.Time `json:"booked_at"`
}

// PaymentCompletedV1 is emitted once per reconciled charge. SubjectType is
// "appointment" or "subscription". RequiresRefund is set when the money
// arrived for an appointment that had already been cancelled.
type PaymentCompletedV1 struct {
	SubjectType    string    `json:"subject_type"`
	SubjectID      string    `json:"subject_id"`
	TrackingID     string    `json:"tracking_id"`
	InvoiceID      string    `json:"invoice_id,omitempty"`
	AmountKES      int64     `json:"amount_kes"`
	RequiresRefund bool      `json:"requires_refund,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type PaymentFailedV1 struct {
	SubjectType   string    `json:"subject_type"`
	SubjectID     string    `json:"subject_id"`
	TrackingID    string    `json:"tracking_id"`
	InvoiceID     string    `json:"invoice_id,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type SubscriptionActivatedV1 struct {
	SubscriptionID string    `json:"subscription_id"`
	DoctorID       string    `json:"doctor_id"`
	Plan           string    `json:"plan"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
}
