// Package storage provides namespaced key/value persistence for session credentials over a
// pluggable backing store.
package storage

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/jrsteele09/go-stitch-auth/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logical keys for every value the session manager persists.
const (
	KeySession                  = "_stitch_ua"
	KeyRefreshToken             = "_stitch_rt"
	KeyDeviceID                 = "_stitch_did"
	KeyState                    = "_stitch_state"
	KeyImpersonationActive      = "_stitch_impers_active"
	KeyImpersonationUser        = "_stitch_impers_user"
	KeyImpersonationRealSession = "_stitch_impers_real_ua"
	KeyVersion                  = "_stitch_storage_version"
)

// Version is the schema version written by the one-time migration.
const Version = "1"

// LegacyKeys are the credential keys older clients wrote without a namespace.
var LegacyKeys = []string{
	KeySession,
	KeyRefreshToken,
	KeyDeviceID,
	KeyState,
	KeyImpersonationActive,
	KeyImpersonationUser,
	KeyImpersonationRealSession,
}

// Backend is the physical key/value store. Implementations must be safe for concurrent use.
type Backend interface {
	// Get returns the value for key and whether it exists
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// Store namespaces logical keys onto a Backend and migrates legacy keys on first use.
type Store struct {
	backend    Backend
	namespace  string
	legacyKeys []string
	log        zerolog.Logger

	migrateMu sync.Mutex
	migrated  bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for migration events.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.log = logger
	}
}

// WithLegacyKeys overrides the set of non-namespaced keys the migration moves.
func WithLegacyKeys(keys ...string) Option {
	return func(s *Store) {
		s.legacyKeys = keys
	}
}

// New creates a Store for namespace on top of backend.
func New(backend Backend, namespace string, options ...Option) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("[storage.New] backend is required")
	}
	if namespace == "" {
		return nil, apperrors.ErrInvalidNamespace
	}

	s := &Store{
		backend:    backend,
		namespace:  namespace,
		legacyKeys: LegacyKeys,
		log:        log.Logger.With().Str("component", "storage").Logger(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Namespace returns the namespace this Store writes under.
func (s *Store) Namespace() string {
	return s.namespace
}

// Key returns the physical backend key for a logical key.
func (s *Store) Key(key string) string {
	return fmt.Sprintf("_stitch.%s.%s", s.namespace, key)
}

// Get returns the value stored under the logical key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := s.Migrate(ctx); err != nil {
		return "", false, err
	}
	value, ok, err := s.backend.Get(ctx, s.Key(key))
	if err != nil {
		return "", false, fmt.Errorf("storage get %s: %w", key, err)
	}
	return value, ok, nil
}

// Set stores value under the logical key and returns it.
func (s *Store) Set(ctx context.Context, key, value string) (string, error) {
	if err := s.Migrate(ctx); err != nil {
		return "", err
	}
	if err := s.backend.Set(ctx, s.Key(key), value); err != nil {
		return "", fmt.Errorf("storage set %s: %w", key, err)
	}
	return value, nil
}

// Remove deletes the logical key.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	if err := s.backend.Remove(ctx, s.Key(key)); err != nil {
		return fmt.Errorf("storage remove %s: %w", key, err)
	}
	return nil
}

// Migrate moves legacy non-namespaced keys into the namespace and writes the version marker.
// It runs at most once per Store; callers arriving while it runs wait for the result. A failed
// migration is attempted again on the next call.
func (s *Store) Migrate(ctx context.Context) error {
	s.migrateMu.Lock()
	defer s.migrateMu.Unlock()

	if s.migrated {
		return nil
	}

	versionKey := s.Key(KeyVersion)
	if _, ok, err := s.backend.Get(ctx, versionKey); err != nil {
		return fmt.Errorf("storage migrate: read version: %w", err)
	} else if ok {
		s.migrated = true
		return nil
	}

	moved := 0
	for _, key := range s.legacyKeys {
		value, ok, err := s.backend.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("storage migrate: read %s: %w", key, err)
		}
		if !ok {
			continue
		}
		if err := s.backend.Set(ctx, s.Key(key), value); err != nil {
			return fmt.Errorf("storage migrate: write %s: %w", key, err)
		}
		if err := s.backend.Remove(ctx, key); err != nil {
			return fmt.Errorf("storage migrate: remove %s: %w", key, err)
		}
		moved++
	}

	if err := s.backend.Set(ctx, versionKey, Version); err != nil {
		return fmt.Errorf("storage migrate: write version: %w", err)
	}
	s.migrated = true

	s.log.Debug().Str("namespace", s.namespace).Int("moved", moved).Msg("storage migrated")
	return nil
}
