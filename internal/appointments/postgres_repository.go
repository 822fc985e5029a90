package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores appointments in the relational database.
type PostgresRepository struct {
	pool pgxQuerier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithQuerier(q pgxQuerier) *PostgresRepository {
	if q == nil {
		panic("appointments: querier required")
	}
	return &PostgresRepository{pool: q}
}

const selectColumns = `
	id::text, doctor_id::text, patient_id::text, appointment_date, consultation_type,
	address, COALESCE(notes, ''), amount, status, payment_status, payment_ref::text,
	COALESCE(tracking_id, ''), COALESCE(checkout_id, ''), COALESCE(invoice_id, ''),
	COALESCE(currency, ''), created_at, updated_at
`

func (r *PostgresRepository) Insert(ctx context.Context, a *Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	query := `
		INSERT INTO appointments (
			id, doctor_id, patient_id, appointment_date, consultation_type,
			address, notes, amount, status, payment_status, payment_ref
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`
	if err := r.pool.QueryRow(ctx, query,
		a.ID,
		a.DoctorID,
		a.PatientID,
		a.ScheduledFor,
		string(a.ConsultationType),
		a.Address,
		a.Notes,
		a.AmountKES,
		string(a.Status),
		string(a.PaymentStatus),
		a.PaymentRef,
	).Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		return fmt.Errorf("appointments: insert failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	query := `SELECT ` + selectColumns + ` FROM appointments WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) GetByTrackingID(ctx context.Context, trackingID string) (*Appointment, error) {
	query := `SELECT ` + selectColumns + ` FROM appointments WHERE tracking_id = $1`
	return r.getOne(ctx, query, trackingID)
}

func (r *PostgresRepository) GetByPaymentRef(ctx context.Context, paymentRef string) (*Appointment, error) {
	if _, err := uuid.Parse(paymentRef); err != nil {
		return nil, errNotFound
	}
	query := `SELECT ` + selectColumns + ` FROM appointments WHERE payment_ref = $1`
	return r.getOne(ctx, query, paymentRef)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*Appointment, error) {
	a, err := scanAppointment(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errNotFound
		}
		return nil, fmt.Errorf("appointments: select failed: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) ListByDoctor(ctx context.Context, doctorID string) ([]*Appointment, error) {
	query := `SELECT ` + selectColumns + ` FROM appointments WHERE doctor_id = $1 ORDER BY appointment_date DESC`
	return r.list(ctx, query, doctorID)
}

func (r *PostgresRepository) ListByPatient(ctx context.Context, patientID string) ([]*Appointment, error) {
	query := `SELECT ` + selectColumns + ` FROM appointments WHERE patient_id = $1 ORDER BY appointment_date DESC`
	return r.list(ctx, query, patientID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, arg string) ([]*Appointment, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("appointments: list failed: %w", err)
	}
	defer rows.Close()

	out := make([]*Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan failed: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: rows failed: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, from, to Status) (bool, error) {
	query := `
		UPDATE appointments
		SET status = $3::text, updated_at = now()
		WHERE id = $1 AND status = $2
		  AND NOT ($3 = 'cancelled' AND payment_status = 'completed')
	`
	ct, err := r.pool.Exec(ctx, query, id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("appointments: update status failed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (r *PostgresRepository) AttachPayment(ctx context.Context, id string, attempt PaymentAttempt) (bool, error) {
	query := `
		UPDATE appointments
		SET tracking_id = $2,
		    checkout_id = NULLIF($3, ''),
		    invoice_id = NULLIF($4, ''),
		    currency = NULLIF($5, ''),
		    amount = CASE WHEN $6::bigint > 0 THEN $6::bigint ELSE amount END,
		    updated_at = now()
		WHERE id = $1 AND tracking_id IS NULL AND payment_status = 'pending'
	`
	ct, err := r.pool.Exec(ctx, query, id, attempt.TrackingID, attempt.CheckoutID, attempt.InvoiceID, attempt.Currency, attempt.AmountKES)
	if err != nil {
		return false, fmt.Errorf("appointments: attach payment failed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (r *PostgresRepository) ResolvePayment(ctx context.Context, id, trackingID string, to PaymentStatus) (bool, error) {
	query := `
		UPDATE appointments
		SET payment_status = $3::text,
		    status = CASE WHEN $3 = 'completed' AND status = 'pending' THEN 'confirmed' ELSE status END,
		    updated_at = now()
		WHERE id = $1 AND tracking_id = $2 AND payment_status = 'pending'
		  AND NOT ($3 = 'completed' AND status = 'cancelled')
	`
	ct, err := r.pool.Exec(ctx, query, id, trackingID, string(to))
	if err != nil {
		return false, fmt.Errorf("appointments: resolve payment failed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a             Appointment
		mode          string
		status        string
		paymentStatus string
		scheduled     time.Time
	)
	if err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&scheduled,
		&mode,
		&a.Address,
		&a.Notes,
		&a.AmountKES,
		&status,
		&paymentStatus,
		&a.PaymentRef,
		&a.TrackingID,
		&a.CheckoutID,
		&a.InvoiceID,
		&a.Currency,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.ScheduledFor = scheduled.UTC()
	a.ConsultationType = ConsultationMode(mode)
	a.Status = Status(status)
	a.PaymentStatus = PaymentStatus(paymentStatus)
	return &a, nil
}
