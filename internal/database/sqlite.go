package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Swrve/swrve-smarttv-sdk/internal/storage"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// OpenSQLite opens (or creates) the on-device database at path and returns
// a ready backend. Closing the backend closes the file.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*storage.SQLiteBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	backend := storage.NewSQLiteBackend(db)
	if err := backend.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("opened SQLite storage", zap.String("path", path))
	return backend, nil
}
