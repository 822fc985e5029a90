package identity

import (
	"context"
	"testing"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
)

func TestPostgresRoleStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPostgresRoleStoreWithQuerier(mock)
	ctx := context.Background()

	mock.ExpectQuery("SELECT role::text FROM user_roles").WithArgs("doc-1").
		WillReturnRows(pgxmock.NewRows([]string{"role"}).AddRow("doctor"))
	role, err := store.RoleOf(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, RoleDoctor, role)

	mock.ExpectQuery("SELECT role::text FROM user_roles").WithArgs("ghost").WillReturnError(pgx.ErrNoRows)
	_, err = store.RoleOf(ctx, "ghost")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	mock.ExpectQuery("SELECT role::text FROM user_roles").WithArgs("odd").
		WillReturnRows(pgxmock.NewRows([]string{"role"}).AddRow("nurse"))
	_, err = store.RoleOf(ctx, "odd")
	assert.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsDoctor(t *testing.T) {
	store := NewInMemoryRoleStore(map[string]Role{"doc": RoleDoctor, "pat": RolePatient})
	ctx := context.Background()

	ok, err := IsDoctor(ctx, store, "doc")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = IsDoctor(ctx, store, "pat")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = IsDoctor(ctx, store, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
