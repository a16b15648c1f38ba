package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Swrve/swrve-smarttv-sdk/internal/config"
	"github.com/Swrve/swrve-smarttv-sdk/internal/storage"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "swrve.db")

	backend, err := OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, backend.Set(ctx, "swrve.user_id", "u1"))
	require.NoError(t, backend.Close())

	reopened, err := OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	defer reopened.Close()
	v, err := reopened.Get(ctx, "swrve.user_id")
	require.NoError(t, err)
	assert.Equal(t, "u1", v)
}

func TestNewRedisDB(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	db, err := NewRedisDB(ctx, config.RedisConfig{Addr: mr.Addr()}, nil)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Health(ctx))

	backend := db.Backend("dev-1", time.Hour)
	require.NoError(t, backend.Set(ctx, "k", "v"))
	_, err = backend.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestNewRedisDBUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisDB(context.Background(), config.RedisConfig{Addr: addr}, nil)
	assert.Error(t, err)
}

func TestNewPostgresDBInvalidConfig(t *testing.T) {
	cfg := config.Default().Database
	cfg.SSLMode = "bogus"
	_, err := NewPostgresDB(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "failed to parse database config")
}
