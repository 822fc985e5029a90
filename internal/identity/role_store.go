package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
)

// RoleStore resolves a user's role.
type RoleStore interface {
	RoleOf(ctx context.Context, userID string) (Role, error)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRoleStore reads the user_roles table.
type PostgresRoleStore struct {
	pool rowQuerier
}

func NewPostgresRoleStore(pool *pgxpool.Pool) *PostgresRoleStore {
	if pool == nil {
		panic("identity: pgx pool required")
	}
	return &PostgresRoleStore{pool: pool}
}

func newPostgresRoleStoreWithQuerier(q rowQuerier) *PostgresRoleStore {
	return &PostgresRoleStore{pool: q}
}

// RoleOf returns NotFound when the user has no role row.
func (s *PostgresRoleStore) RoleOf(ctx context.Context, userID string) (Role, error) {
	var raw string
	// A user can hold several roles; the most privileged wins.
	err := s.pool.QueryRow(ctx, `
		SELECT role::text FROM user_roles
		WHERE user_id = $1
		ORDER BY CASE role WHEN 'admin' THEN 0 WHEN 'doctor' THEN 1 ELSE 2 END
		LIMIT 1`, userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperr.NotFound("no role assigned")
		}
		return "", fmt.Errorf("identity: load role: %w", err)
	}
	role, ok := ParseRole(raw)
	if !ok {
		return "", fmt.Errorf("identity: unknown role %q for user %s", raw, userID)
	}
	return role, nil
}

// IsDoctor reports whether userID resolves to a doctor.
func IsDoctor(ctx context.Context, store RoleStore, userID string) (bool, error) {
	role, err := store.RoleOf(ctx, userID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return false, nil
		}
		return false, err
	}
	return role == RoleDoctor, nil
}

// InMemoryRoleStore is used by tests and local runs without Postgres.
type InMemoryRoleStore struct {
	mu    sync.RWMutex
	roles map[string]Role
}

func NewInMemoryRoleStore(seed map[string]Role) *InMemoryRoleStore {
	roles := make(map[string]Role, len(seed))
	for k, v := range seed {
		roles[k] = v
	}
	return &InMemoryRoleStore{roles: roles}
}

func (s *InMemoryRoleStore) Set(userID string, role Role) {
	s.mu.Lock()
	s.roles[userID] = role
	s.mu.Unlock()
}

func (s *InMemoryRoleStore) RoleOf(_ context.Context, userID string) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[userID]
	if !ok {
		return "", apperr.NotFound("no role assigned")
	}
	return role, nil
}
