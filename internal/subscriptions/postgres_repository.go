package subscriptions

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

// PostgresRepository stores subscriptions in the relational database.
type PostgresRepository struct {
	pool pgxQuerier
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("subscriptions: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithQuerier(q pgxQuerier) *PostgresRepository {
	return &PostgresRepository{pool: q}
}

const selectColumns = `
	id::text, doctor_id::text, plan, amount, status, payment_ref::text,
	COALESCE(tracking_id, ''), COALESCE(checkout_id, ''), COALESCE(invoice_id, ''),
	COALESCE(currency, ''), starts_at, ends_at,
	created_at, updated_at
`

func (r *PostgresRepository) Insert(ctx context.Context, s *Subscription) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	query := `
		INSERT INTO subscriptions (id, doctor_id, plan, amount, status, payment_ref)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	if err := r.pool.QueryRow(ctx, query,
		s.ID, s.DoctorID, string(s.Plan), s.AmountKES, string(s.Status), s.PaymentRef,
	).Scan(&s.CreatedAt, &s.UpdatedAt); err != nil {
		return fmt.Errorf("subscriptions: insert failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Subscription, error) {
	return r.getOne(ctx, `SELECT `+selectColumns+` FROM subscriptions WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByTrackingID(ctx context.Context, trackingID string) (*Subscription, error) {
	return r.getOne(ctx, `SELECT `+selectColumns+` FROM subscriptions WHERE tracking_id = $1`, trackingID)
}

func (r *PostgresRepository) GetByPaymentRef(ctx context.Context, paymentRef string) (*Subscription, error) {
	if _, err := uuid.Parse(paymentRef); err != nil {
		return nil, errNotFound
	}
	return r.getOne(ctx, `SELECT `+selectColumns+` FROM subscriptions WHERE payment_ref = $1`, paymentRef)
}

func (r *PostgresRepository) getOne(ctx context.Context, query, arg string) (*Subscription, error) {
	s, err := scanSubscription(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errNotFound
		}
		return nil, fmt.Errorf("subscriptions: select failed: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) ListByDoctor(ctx context.Context, doctorID string) ([]*Subscription, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+selectColumns+` FROM subscriptions WHERE doctor_id = $1 ORDER BY created_at DESC`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("subscriptions: list failed: %w", err)
	}
	defer rows.Close()

	out := make([]*Subscription, 0)
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("subscriptions: scan failed: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) AttachPayment(ctx context.Context, id string, attempt PaymentAttempt) (bool, error) {
	query := `
		UPDATE subscriptions
		SET tracking_id = $2, checkout_id = NULLIF($3, ''), invoice_id = NULLIF($4, ''),
		    currency = NULLIF($5, ''), updated_at = now()
		WHERE id = $1 AND tracking_id IS NULL AND status = 'pending'
	`
	ct, err := r.pool.Exec(ctx, query, id, attempt.TrackingID, attempt.CheckoutID, attempt.InvoiceID, attempt.Currency)
	if err != nil {
		return false, fmt.Errorf("subscriptions: attach payment failed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (r *PostgresRepository) Activate(ctx context.Context, id, trackingID string, startsAt, endsAt time.Time) (bool, error) {
	query := `
		UPDATE subscriptions
		SET status = 'active', starts_at = $3, ends_at = $4, updated_at = now()
		WHERE id = $1 AND tracking_id = $2 AND status = 'pending'
	`
	ct, err := r.pool.Exec(ctx, query, id, trackingID, startsAt, endsAt)
	if err != nil {
		return false, fmt.Errorf("subscriptions: activate failed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id, trackingID string) (bool, error) {
	query := `
		UPDATE subscriptions
		SET status = 'failed', updated_at = now()
		WHERE id = $1 AND tracking_id = $2 AND status = 'pending'
	`
	ct, err := r.pool.Exec(ctx, query, id, trackingID)
	if err != nil {
		return false, fmt.Errorf("subscriptions: mark failed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var (
		s      Subscription
		plan   string
		status string
	)
	if err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&plan,
		&s.AmountKES,
		&status,
		&s.PaymentRef,
		&s.TrackingID,
		&s.CheckoutID,
		&s.InvoiceID,
		&s.Currency,
		&s.StartsAt,
		&s.EndsAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.Plan = PlanTier(plan)
	s.Status = Status(status)
	return &s, nil
}
