package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-stitch-auth/internal/metrics"
	"github.com/jrsteele09/go-stitch-auth/internal/utils"
	"github.com/jrsteele09/go-stitch-auth/session"
	"github.com/jrsteele09/go-stitch-auth/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	headerAuthorization = "Authorization"
	headerRequestID     = "X-Request-Id"
	refreshFlightKey    = "refresh"
)

// Refresher obtains a new access token and stores it in the session.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context) error

func (f RefresherFunc) Refresh(ctx context.Context) error {
	return f(ctx)
}

type requestConfig struct {
	noAuth           bool
	useRefreshToken  bool
	refreshOnFailure *bool
}

// RequestOption adjusts how a single call is authenticated.
type RequestOption func(*requestConfig)

// WithNoAuth sends the request without attaching a session token. An Authorization header already
// on the request is sent unchanged.
func WithNoAuth() RequestOption {
	return func(c *requestConfig) {
		c.noAuth = true
	}
}

// WithRefreshToken authenticates with the refresh token instead of the access token.
func WithRefreshToken() RequestOption {
	return func(c *requestConfig) {
		c.useRefreshToken = true
	}
}

// WithRefreshOnFailure controls whether an invalid session triggers a refresh and retry.
// Defaults to true.
func WithRefreshOnFailure(refresh bool) RequestOption {
	return func(c *requestConfig) {
		c.refreshOnFailure = utils.Ptr(refresh)
	}
}

// Executor sends authenticated requests and recovers from an invalid session with at most one
// refresh and retry per call.
type Executor struct {
	transport       transport.Transport
	sessions        *session.Store
	refresher       Refresher
	metrics         *metrics.Metrics
	log             zerolog.Logger
	proactiveWindow time.Duration
	newRequestID    func() string

	refreshes singleflight.Group
}

// ExecutorOption defines a function type to modify the Executor instance.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the logger.
func WithExecutorLogger(logger zerolog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.log = logger
	}
}

// WithMetrics sets the collectors the Executor reports to.
func WithMetrics(m *metrics.Metrics) ExecutorOption {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithRefreshWindow refreshes before sending when the access token expires within window.
func WithRefreshWindow(window time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.proactiveWindow = window
	}
}

// WithRequestID sets the generator for X-Request-Id values (primarily for testing)
func WithRequestID(newID func() string) ExecutorOption {
	return func(e *Executor) {
		e.newRequestID = newID
	}
}

func NewExecutor(t transport.Transport, sessions *session.Store, refresher Refresher, options ...ExecutorOption) *Executor {
	e := &Executor{
		transport:    t,
		sessions:     sessions,
		refresher:    refresher,
		log:          log.Logger.With().Str("component", "executor").Logger(),
		newRequestID: uuid.NewString,
	}
	for _, opt := range options {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.New(nil)
	}
	return e
}

// Do sends req, attaching the bearer token selected by options. A response reporting an invalid
// session triggers one refresh after which req is sent once more with refresh disabled. Every
// other failure is returned as is.
func (e *Executor) Do(ctx context.Context, req *transport.Request, options ...RequestOption) (*transport.Response, error) {
	cfg := requestConfig{}
	for _, opt := range options {
		opt(&cfg)
	}
	refreshAllowed := !cfg.noAuth && utils.ValueOr(cfg.refreshOnFailure, true)

	requestID := e.newRequestID()
	logger := e.log.With().Str("request_id", requestID).Str("method", req.Method).Str("url", req.URL).Logger()

	if refreshAllowed && !cfg.useRefreshToken && e.proactiveWindow > 0 &&
		e.sessions.IsAccessTokenExpired(ctx, e.proactiveWindow) {
		logger.Debug().Dur("window", e.proactiveWindow).Msg("access token about to expire, refreshing first")
		refreshAllowed = false
		if err := e.refresh(ctx); err != nil {
			e.metrics.RequestsTotal.WithLabelValues(metrics.OutcomeAPIError).Inc()
			return nil, err
		}
	}

	for attempt := 1; ; attempt++ {
		resp, err := e.send(ctx, req, cfg, requestID)
		if errors.Is(err, ErrUnauthorized) {
			e.metrics.RequestsTotal.WithLabelValues(metrics.OutcomeUnauthorized).Inc()
			return nil, err
		}
		if err != nil {
			e.metrics.RequestsTotal.WithLabelValues(metrics.OutcomeTransport).Inc()
			return nil, err
		}

		logger.Debug().Int("attempt", attempt).Int("status", resp.StatusCode).Msg("response")
		if resp.IsSuccess() {
			e.metrics.RequestsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
			return resp, nil
		}

		failure := classify(resp)
		if refreshAllowed && errors.Is(failure, ErrInvalidSession) {
			refreshAllowed = false
			if err := e.refresh(ctx); err != nil {
				logger.Warn().Err(err).Msg("refresh after invalid session failed")
				e.metrics.RequestsTotal.WithLabelValues(metrics.OutcomeAPIError).Inc()
				return nil, err
			}
			e.metrics.RetriesTotal.Inc()
			continue
		}

		var transportErr *TransportError
		if errors.As(failure, &transportErr) {
			e.metrics.RequestsTotal.WithLabelValues(metrics.OutcomeTransport).Inc()
		} else {
			e.metrics.RequestsTotal.WithLabelValues(metrics.OutcomeAPIError).Inc()
		}
		return nil, failure
	}
}

func (e *Executor) send(ctx context.Context, req *transport.Request, cfg requestConfig, requestID string) (*transport.Response, error) {
	out := req.Clone()
	out.Header.Set(headerRequestID, requestID)

	if !cfg.noAuth {
		token, err := e.bearer(ctx, cfg.useRefreshToken)
		if err != nil {
			return nil, err
		}
		out.Header.Set(headerAuthorization, "Bearer "+token)
	}

	start := time.Now()
	resp, err := e.transport.Send(ctx, out)
	e.metrics.RequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, errors.Wrap(err, "[Executor.Do] send")
	}
	return resp, nil
}

func (e *Executor) bearer(ctx context.Context, useRefreshToken bool) (string, error) {
	var (
		token string
		err   error
	)
	if useRefreshToken {
		token, err = e.sessions.RefreshToken(ctx)
	} else {
		token, err = e.sessions.AccessToken(ctx)
	}
	if err != nil {
		return "", errors.Wrap(err, "[Executor.Do] read token")
	}
	if token == "" {
		return "", ErrUnauthorized
	}
	return token, nil
}

// refresh runs the Refresher, sharing one in-flight refresh among concurrent callers. The shared
// refresh is not cancelled with the caller that started it; each caller stops waiting when its
// own ctx is done.
func (e *Executor) refresh(ctx context.Context) error {
	results := e.refreshes.DoChan(refreshFlightKey, func() (any, error) {
		return nil, e.refresher.Refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-results:
		if res.Shared {
			e.log.Debug().Msg("joined in-flight refresh")
		}
		if res.Err != nil {
			return &RefreshError{Err: res.Err}
		}
		return nil
	case <-ctx.Done():
		return &RefreshError{Err: ctx.Err()}
	}
}
