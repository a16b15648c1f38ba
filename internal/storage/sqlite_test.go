package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestSQLiteBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "swrve.db"))
	require.NoError(t, err)

	b := NewSQLiteBackend(db)
	t.Cleanup(func() { b.Close() })
	require.NoError(t, b.EnsureSchema(ctx))

	_, err = b.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, b.Set(ctx, "k", "one"))
	require.NoError(t, b.Set(ctx, "k", "two"))
	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "two", got)

	require.NoError(t, b.Remove(ctx, "k"))
	_, err = b.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteBackendSetError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO kv").
		WithArgs("k", "v").
		WillReturnError(errors.New("disk full"))

	b := NewSQLiteBackend(db)
	err = b.Set(context.Background(), "k", "v")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}
