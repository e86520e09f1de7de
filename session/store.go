// Package session owns the current credential set: it decodes server responses through a Codec,
// merges partial updates and persists them through keyed storage.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-stitch-auth/internal/errors"
	"github.com/jrsteele09/go-stitch-auth/oauthmodel"
	"github.com/jrsteele09/go-stitch-auth/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrCorruptAuthState is returned by Get when the stored session could not be parsed. The store
// has already been cleared when it is returned.
var ErrCorruptAuthState = apperrors.ErrCorruptAuthState

// ClearHook runs after the session is cleared, e.g. to drop impersonation state.
type ClearHook func(ctx context.Context) error

// Store is the single writer of the persisted Session.
type Store struct {
	keys    *storage.Store
	codec   Codec
	nowTime func() time.Time
	log     zerolog.Logger

	// serializes read-merge-write cycles
	mu         sync.Mutex
	hooksMu    sync.RWMutex
	clearHooks []ClearHook
}

// StoreOption defines a function type to modify the Store instance.
type StoreOption func(*Store)

// WithCodec overrides the wire field mapping.
func WithCodec(codec Codec) StoreOption {
	return func(s *Store) {
		s.codec = codec
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.log = logger
	}
}

// NewStore creates a session Store over keys.
func NewStore(keys *storage.Store, options ...StoreOption) *Store {
	s := &Store{
		keys:    keys,
		codec:   DefaultCodec,
		nowTime: time.Now,
		log:     log.Logger.With().Str("component", "session").Logger(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// OnClear registers hook to run whenever Clear runs.
func (s *Store) OnClear(hook ClearHook) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.clearHooks = append(s.clearHooks, hook)
}

// Get returns the stored access token and user ID. It returns an empty Session when nothing is
// stored. A blob that fails to parse clears all auth state and yields ErrCorruptAuthState.
func (s *Store) Get(ctx context.Context) (Session, error) {
	stored, err := s.load(ctx)
	if err == nil {
		return stored.session(), nil
	}
	if !apperrors.Is(err, ErrCorruptAuthState) {
		return Session{}, err
	}

	s.log.Warn().Err(err).Msg("clearing corrupt stored session")
	if clearErr := s.Clear(ctx); clearErr != nil {
		return Session{}, errors.Wrap(clearErr, "[Store.Get] clear after corrupt state")
	}
	return Session{}, err
}

// Set decodes resp, stores any refresh token and device ID under their own keys and merges the
// remaining fields over the stored session. Fields absent from resp keep their stored value.
func (s *Store) Set(ctx context.Context, resp oauthmodel.RawObject) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := s.codec.Decode(resp)

	// An empty refresh token or device ID never replaces a stored one
	if rt := fields[FieldRefreshToken]; rt != "" {
		if _, err := s.keys.Set(ctx, storage.KeyRefreshToken, rt); err != nil {
			return Session{}, errors.Wrap(err, "[Store.Set] refresh token")
		}
	}
	if did := fields[FieldDeviceID]; did != "" {
		if _, err := s.keys.Set(ctx, storage.KeyDeviceID, did); err != nil {
			return Session{}, errors.Wrap(err, "[Store.Set] device id")
		}
	}
	delete(fields, FieldRefreshToken)
	delete(fields, FieldDeviceID)

	// A corrupt blob is replaced rather than merged into
	stored, err := s.load(ctx)
	if err != nil && !apperrors.Is(err, ErrCorruptAuthState) {
		return Session{}, errors.Wrap(err, "[Store.Set] load")
	}

	merged := stored.merge(fields)
	if err := s.save(ctx, merged); err != nil {
		return Session{}, errors.Wrap(err, "[Store.Set] save")
	}
	return merged.session(), nil
}

// Apply stores a complete or partial Session through Set, as if the server had sent it.
func (s *Store) Apply(ctx context.Context, update Session) (Session, error) {
	return s.Set(ctx, s.codec.Encode(update))
}

// Clear removes the session and refresh token, then runs the clear hooks. The device ID is kept.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	err := s.clearLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.hooksMu.RLock()
	hooks := append([]ClearHook(nil), s.clearHooks...)
	s.hooksMu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx); err != nil {
			return errors.Wrap(err, "[Store.Clear] hook")
		}
	}
	return nil
}

func (s *Store) clearLocked(ctx context.Context) error {
	if err := s.keys.Remove(ctx, storage.KeySession); err != nil {
		return errors.Wrap(err, "[Store.Clear] session")
	}
	if err := s.keys.Remove(ctx, storage.KeyRefreshToken); err != nil {
		return errors.Wrap(err, "[Store.Clear] refresh token")
	}
	return nil
}

// Full returns the complete Session including refresh token and device ID.
func (s *Store) Full(ctx context.Context) (Session, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return Session{}, err
	}
	if current.RefreshToken, err = s.read(ctx, storage.KeyRefreshToken); err != nil {
		return Session{}, err
	}
	if current.DeviceID, err = s.read(ctx, storage.KeyDeviceID); err != nil {
		return Session{}, err
	}
	return current, nil
}

// Restore writes full verbatim, replacing the stored session. Empty fields are removed rather
// than merged.
func (s *Store) Restore(ctx context.Context, full Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := storedSession{AccessToken: full.AccessToken, UserID: full.UserID}
	if stored == (storedSession{}) {
		if err := s.keys.Remove(ctx, storage.KeySession); err != nil {
			return errors.Wrap(err, "[Store.Restore] session")
		}
	} else if err := s.save(ctx, stored); err != nil {
		return errors.Wrap(err, "[Store.Restore] session")
	}
	if err := s.write(ctx, storage.KeyRefreshToken, full.RefreshToken); err != nil {
		return errors.Wrap(err, "[Store.Restore] refresh token")
	}
	if err := s.write(ctx, storage.KeyDeviceID, full.DeviceID); err != nil {
		return errors.Wrap(err, "[Store.Restore] device id")
	}
	return nil
}

// AccessToken returns the stored access token, or "".
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	current, err := s.Get(ctx)
	return current.AccessToken, err
}

// RefreshToken returns the stored refresh token, or "".
func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	return s.read(ctx, storage.KeyRefreshToken)
}

// DeviceID returns the stored device ID, or "".
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	return s.read(ctx, storage.KeyDeviceID)
}

// AuthedID returns the authenticated user ID, or "".
func (s *Store) AuthedID(ctx context.Context) (string, error) {
	current, err := s.Get(ctx)
	return current.UserID, err
}

// IsAuthenticated reports whether an access token is stored.
func (s *Store) IsAuthenticated(ctx context.Context) (bool, error) {
	token, err := s.AccessToken(ctx)
	return token != "", err
}

func (s *Store) load(ctx context.Context) (storedSession, error) {
	raw, ok, err := s.keys.Get(ctx, storage.KeySession)
	if err != nil {
		return storedSession{}, err
	}
	if !ok {
		return storedSession{}, nil
	}

	var stored storedSession
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return storedSession{}, apperrors.Wrapf(ErrCorruptAuthState, "parse stored session: %v", err)
	}
	return stored, nil
}

func (s *Store) save(ctx context.Context, stored storedSession) error {
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	_, err = s.keys.Set(ctx, storage.KeySession, string(data))
	return err
}

func (s *Store) read(ctx context.Context, key string) (string, error) {
	value, _, err := s.keys.Get(ctx, key)
	return value, err
}

func (s *Store) write(ctx context.Context, key, value string) error {
	if value == "" {
		return s.keys.Remove(ctx, key)
	}
	_, err := s.keys.Set(ctx, key, value)
	return err
}
