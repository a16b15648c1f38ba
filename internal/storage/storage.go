package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Store is the SDK's view of durable storage. It namespaces keys, offers an
// MD5-checked variant for caches and JSON helpers.
type Store struct {
	backend Backend
	logger  *zap.Logger
}

// New wraps a backend.
func New(backend Backend, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{backend: backend, logger: logger}
}

// Backend returns the wrapped backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Get returns the value for key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	return s.backend.Get(ctx, KeyPrefix+key)
}

// Lookup returns the value for key and whether it exists. Backend errors are
// logged and reported as a miss.
func (s *Store) Lookup(ctx context.Context, key string) (string, bool) {
	v, err := s.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("storage read failed", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	return v, true
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.backend.Set(ctx, KeyPrefix+key, value); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.backend.Remove(ctx, KeyPrefix+key); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

// SetChecked stores value together with an integrity checksum.
func (s *Store) SetChecked(ctx context.Context, key, value string) error {
	if err := s.Set(ctx, key, value); err != nil {
		return err
	}
	return s.Set(ctx, hashKey(key), Checksum(key, value))
}

// GetChecked returns the value for key only when its checksum matches.
// A mismatch is reported as ErrNotFound.
func (s *Store) GetChecked(ctx context.Context, key string) (string, error) {
	value, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	sum, err := s.Get(ctx, hashKey(key))
	if err != nil {
		return "", err
	}
	if sum != Checksum(key, value) {
		s.logger.Warn("storage checksum mismatch", zap.String("key", key))
		return "", ErrNotFound
	}
	return value, nil
}

// GetJSON decodes the value stored under key into v. It returns false when
// the key is missing or the stored value does not parse.
func (s *Store) GetJSON(ctx context.Context, key string, v any) bool {
	raw, ok := s.Lookup(ctx, key)
	if !ok || raw == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		s.logger.Warn("discarding corrupt stored value", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// SetJSON encodes v and stores it under key.
func (s *Store) SetJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Set(ctx, key, string(b))
}

// Checksum is the integrity hash stored next to checked values.
func Checksum(key, value string) string {
	sum := md5.Sum([]byte(key + value))
	return hex.EncodeToString(sum[:])
}
