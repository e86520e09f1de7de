// Package impersonation swaps the active session for another user's session obtained through a
// privileged exchange, keeping a snapshot of the real session to restore later.
package impersonation

import (
	"context"
	"encoding/json"
	"sync"

	apperrors "github.com/jrsteele09/go-stitch-auth/internal/errors"
	"github.com/jrsteele09/go-stitch-auth/oauthmodel"
	"github.com/jrsteele09/go-stitch-auth/session"
	"github.com/jrsteele09/go-stitch-auth/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnauthorized         = apperrors.ErrUnauthorized
	ErrAlreadyImpersonating = apperrors.ErrAlreadyImpersonating
	ErrNotImpersonating     = apperrors.ErrNotImpersonating
)

const activeValue = "true"

// Exchanger performs the privileged impersonation login. It is called with the real user's
// refresh token and returns the impersonated user's session as a wire object.
type Exchanger interface {
	Impersonate(ctx context.Context, userID, realRefreshToken string) (oauthmodel.RawObject, error)
}

// ExchangerFunc adapts a function to Exchanger.
type ExchangerFunc func(ctx context.Context, userID, realRefreshToken string) (oauthmodel.RawObject, error)

func (f ExchangerFunc) Impersonate(ctx context.Context, userID, realRefreshToken string) (oauthmodel.RawObject, error) {
	return f(ctx, userID, realRefreshToken)
}

// State is the persisted impersonation state.
type State struct {
	Active           bool
	TargetUserID     string
	SavedRealSession session.Session
}

// Controller moves between the Normal and Impersonating states.
type Controller struct {
	keys     *storage.Store
	sessions *session.Store
	exchange Exchanger
	log      zerolog.Logger

	// serializes transitions
	mu sync.Mutex
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.log = logger
	}
}

// NewController creates a Controller and registers it to reset whenever the session is cleared.
func NewController(keys *storage.Store, sessions *session.Store, exchange Exchanger, options ...Option) *Controller {
	c := &Controller{
		keys:     keys,
		sessions: sessions,
		exchange: exchange,
		log:      log.Logger.With().Str("component", "impersonation").Logger(),
	}
	for _, opt := range options {
		opt(c)
	}
	sessions.OnClear(c.Reset)
	return c
}

// State returns the persisted impersonation state.
func (c *Controller) State(ctx context.Context) (State, error) {
	active, _, err := c.keys.Get(ctx, storage.KeyImpersonationActive)
	if err != nil {
		return State{}, errors.Wrap(err, "[Controller.State] active flag")
	}
	if active != activeValue {
		return State{}, nil
	}

	target, _, err := c.keys.Get(ctx, storage.KeyImpersonationUser)
	if err != nil {
		return State{}, errors.Wrap(err, "[Controller.State] target user")
	}
	raw, _, err := c.keys.Get(ctx, storage.KeyImpersonationRealSession)
	if err != nil {
		return State{}, errors.Wrap(err, "[Controller.State] snapshot")
	}

	state := State{Active: true, TargetUserID: target}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &state.SavedRealSession); err != nil {
			return State{}, apperrors.Wrapf(apperrors.ErrCorruptAuthState, "parse impersonation snapshot: %v", err)
		}
	}
	return state, nil
}

// IsImpersonating reports whether an impersonation is active.
func (c *Controller) IsImpersonating(ctx context.Context) (bool, error) {
	state, err := c.State(ctx)
	return state.Active, err
}

// Start impersonates userID. The caller must be authenticated and not already impersonating;
// otherwise nothing is changed. If the exchange fails the real session is restored.
func (c *Controller) Start(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("[Controller.Start] user id is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.State(ctx)
	if err != nil {
		return err
	}
	if state.Active {
		return ErrAlreadyImpersonating
	}

	realSession, err := c.sessions.Full(ctx)
	if err != nil {
		return errors.Wrap(err, "[Controller.Start] snapshot")
	}
	if realSession.AccessToken == "" || realSession.RefreshToken == "" {
		return ErrUnauthorized
	}

	if err := c.persist(ctx, userID, realSession); err != nil {
		return err
	}

	c.log.Info().Str("real_user_id", realSession.UserID).Str("target_user_id", userID).Msg("starting impersonation")
	return c.exchangeLocked(ctx, State{Active: true, TargetUserID: userID, SavedRealSession: realSession})
}

// Refresh re-runs the impersonation exchange with the real user's refresh token. On failure the
// real session is restored and the exchange error is returned.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.State(ctx)
	if err != nil {
		return err
	}
	if !state.Active {
		return ErrNotImpersonating
	}
	return c.exchangeLocked(ctx, state)
}

// Stop restores the session captured when impersonation started and clears all impersonation
// state.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.State(ctx)
	if err != nil {
		return err
	}
	if !state.Active {
		return ErrNotImpersonating
	}
	return c.revertLocked(ctx, state)
}

// Reset drops impersonation flags and the snapshot without touching the active session.
func (c *Controller) Reset(ctx context.Context) error {
	for _, key := range []string{storage.KeyImpersonationActive, storage.KeyImpersonationUser, storage.KeyImpersonationRealSession} {
		if err := c.keys.Remove(ctx, key); err != nil {
			return errors.Wrap(err, "[Controller.Reset]")
		}
	}
	return nil
}

func (c *Controller) exchangeLocked(ctx context.Context, state State) error {
	resp, err := c.exchange.Impersonate(ctx, state.TargetUserID, state.SavedRealSession.RefreshToken)
	if err == nil {
		_, err = c.sessions.Set(ctx, resp)
	}
	if err == nil {
		return nil
	}

	c.log.Warn().Err(err).Str("target_user_id", state.TargetUserID).Msg("impersonation exchange failed, reverting")
	if revertErr := c.revertLocked(ctx, state); revertErr != nil {
		c.log.Error().Err(revertErr).Msg("failed to revert impersonation")
	}
	return errors.Wrap(err, "[Controller] impersonation exchange")
}

func (c *Controller) revertLocked(ctx context.Context, state State) error {
	if err := c.sessions.Restore(ctx, state.SavedRealSession); err != nil {
		return errors.Wrap(err, "[Controller] restore real session")
	}
	return c.Reset(ctx)
}

func (c *Controller) persist(ctx context.Context, userID string, realSession session.Session) error {
	data, err := json.Marshal(realSession)
	if err != nil {
		return errors.Wrap(err, "[Controller.Start] marshal snapshot")
	}
	if _, err := c.keys.Set(ctx, storage.KeyImpersonationRealSession, string(data)); err != nil {
		return errors.Wrap(err, "[Controller.Start] snapshot")
	}
	if _, err := c.keys.Set(ctx, storage.KeyImpersonationUser, userID); err != nil {
		return errors.Wrap(err, "[Controller.Start] target user")
	}
	if _, err := c.keys.Set(ctx, storage.KeyImpersonationActive, activeValue); err != nil {
		return errors.Wrap(err, "[Controller.Start] active flag")
	}
	return nil
}
