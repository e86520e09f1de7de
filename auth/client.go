// Package auth is the authenticated session manager: it executes requests with the current
// credentials, refreshes them when the server reports an invalid session and exposes login,
// logout, impersonation and redirect delivery.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/go-stitch-auth/impersonation"
	"github.com/jrsteele09/go-stitch-auth/internal/metrics"
	"github.com/jrsteele09/go-stitch-auth/oauthmodel"
	"github.com/jrsteele09/go-stitch-auth/redirect"
	"github.com/jrsteele09/go-stitch-auth/session"
	"github.com/jrsteele09/go-stitch-auth/storage"
	"github.com/jrsteele09/go-stitch-auth/storage/memory"
	"github.com/jrsteele09/go-stitch-auth/transport"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	clientAPIPath = "/api/client/v2.0"
	adminAPIPath  = "/api/admin/v3.0"

	refreshKindSession       = "session"
	refreshKindImpersonation = "impersonation"
)

// Config identifies the API and application a Client authenticates against.
type Config struct {
	BaseURL   string // e.g. https://stitch.mongodb.com
	AppID     string
	Namespace string // storage namespace, defaults to AppID
}

// Client is the session manager for one application.
type Client struct {
	cfg           Config
	keys          *storage.Store
	sessions      *session.Store
	impersonation *impersonation.Controller
	executor      *Executor
	extractor     *redirect.Extractor
	metrics       *metrics.Metrics
	log           zerolog.Logger

	// construction options
	transport     transport.Transport
	backend       storage.Backend
	registerer    prometheus.Registerer
	nowTime       func() time.Time
	refreshWindow time.Duration
	strictState   bool
	location      redirect.Location
	cookies       redirect.Cookies

	mu          sync.Mutex
	redirectErr error
}

// Option defines a function type to modify the Client instance.
type Option func(*Client)

// WithTransport sets the transport requests are sent through. Defaults to net/http.
func WithTransport(t transport.Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithBackend sets the physical storage. Defaults to an in-memory backend.
func WithBackend(backend storage.Backend) Option {
	return func(c *Client) {
		c.backend = backend
	}
}

// WithLogger sets the base logger; each component adds its own component field.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.log = logger
	}
}

// WithRegisterer registers the client's Prometheus collectors with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Client) {
		c.registerer = reg
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

// WithProactiveRefresh refreshes before a request when the access token expires within window.
func WithProactiveRefresh(window time.Duration) Option {
	return func(c *Client) {
		c.refreshWindow = window
	}
}

// WithStrictState rejects redirects whose echoed state does not match.
func WithStrictState() Option {
	return func(c *Client) {
		c.strictState = true
	}
}

// WithLocation handles credentials in loc's fragment when the client is created.
func WithLocation(loc redirect.Location) Option {
	return func(c *Client) {
		c.location = loc
	}
}

// WithCookies handles the session cookie when the client is created.
func WithCookies(cookies redirect.Cookies) Option {
	return func(c *Client) {
		c.cookies = cookies
	}
}

// New wires a Client. Redirect and cookie delivery configured through WithLocation and
// WithCookies run once here; their failures are logged and kept in RedirectError.
func New(ctx context.Context, cfg Config, options ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("[auth.New] base URL is required")
	}
	if cfg.AppID == "" {
		return nil, errors.New("[auth.New] app id is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Namespace == "" {
		cfg.Namespace = cfg.AppID
	}

	c := &Client{
		cfg:     cfg,
		log:     log.Logger,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	if c.transport == nil {
		c.transport = transport.NewHTTP(nil)
	}
	if c.backend == nil {
		c.backend = memory.New()
	}

	componentLogger := func(name string) zerolog.Logger {
		return c.log.With().Str("component", name).Str("app_id", cfg.AppID).Logger()
	}

	keys, err := storage.New(c.backend, cfg.Namespace, storage.WithLogger(componentLogger("storage")))
	if err != nil {
		return nil, errors.Wrap(err, "[auth.New] storage")
	}
	c.keys = keys
	c.metrics = metrics.New(c.registerer)
	c.sessions = session.NewStore(keys,
		session.WithNowTime(c.nowTime),
		session.WithLogger(componentLogger("session")),
	)
	c.executor = NewExecutor(c.transport, c.sessions, RefresherFunc(c.refresh),
		WithExecutorLogger(componentLogger("executor")),
		WithMetrics(c.metrics),
		WithRefreshWindow(c.refreshWindow),
	)
	c.impersonation = impersonation.NewController(keys, c.sessions,
		impersonation.ExchangerFunc(c.exchangeImpersonation),
		impersonation.WithLogger(componentLogger("impersonation")),
	)

	extractorOptions := []redirect.Option{redirect.WithLogger(componentLogger("redirect"))}
	if c.strictState {
		extractorOptions = append(extractorOptions, redirect.WithStrictState())
	}
	c.extractor = redirect.NewExtractor(keys, c.sessions, extractorOptions...)

	if c.location != nil {
		if _, err := c.HandleRedirect(ctx, c.location); err != nil {
			c.recordRedirectError(err)
		}
	}
	if c.cookies != nil {
		if _, err := c.HandleCookie(ctx, c.cookies); err != nil {
			c.recordRedirectError(err)
		}
	}
	return c, nil
}

func (c *Client) recordRedirectError(err error) {
	c.log.Warn().Err(err).Msg("out-of-band credential delivery failed")
	c.mu.Lock()
	c.redirectErr = err
	c.mu.Unlock()
}

// RedirectError returns the failure of the redirect or cookie handling run by New, if any.
func (c *Client) RedirectError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.redirectErr
}

// Config returns the normalized configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// AccessToken returns the current access token, or "".
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	return c.sessions.AccessToken(ctx)
}

// RefreshToken returns the current refresh token, or "".
func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	return c.sessions.RefreshToken(ctx)
}

// AuthedID returns the authenticated user ID, or "".
func (c *Client) AuthedID(ctx context.Context) (string, error) {
	return c.sessions.AuthedID(ctx)
}

// IsAuthenticated reports whether an access token is held.
func (c *Client) IsAuthenticated(ctx context.Context) (bool, error) {
	return c.sessions.IsAuthenticated(ctx)
}

// Session returns the complete current session.
func (c *Client) Session(ctx context.Context) (session.Session, error) {
	return c.sessions.Full(ctx)
}

// IsAccessTokenExpired reports whether the access token expires within the window.
func (c *Client) IsAccessTokenExpired(ctx context.Context, within time.Duration) bool {
	return c.sessions.IsAccessTokenExpired(ctx, within)
}

// Do executes req with the current credentials.
func (c *Client) Do(ctx context.Context, req *transport.Request, options ...RequestOption) (*transport.Response, error) {
	return c.executor.Do(ctx, req, options...)
}

// Login authenticates with creds and stores the resulting session. An anonymous login while
// already authenticated returns the current session without calling the server. A failed login
// leaves the current session and any impersonation untouched.
func (c *Client) Login(ctx context.Context, creds oauthmodel.Credentials) (session.Session, error) {
	if creds.Provider() == oauthmodel.ProviderAnonymous {
		authed, err := c.sessions.IsAuthenticated(ctx)
		if err != nil {
			return session.Session{}, errors.Wrap(err, "[Client.Login]")
		}
		if authed {
			return c.sessions.Full(ctx)
		}
	}

	deviceID, err := c.sessions.DeviceID(ctx)
	if err != nil {
		return session.Session{}, errors.Wrap(err, "[Client.Login] device id")
	}
	req, err := transport.NewJSONRequest(http.MethodPost, c.loginURL(creds.Provider()), oauthmodel.NewLoginRequest(creds, deviceID))
	if err != nil {
		return session.Session{}, errors.Wrap(err, "[Client.Login]")
	}

	raw, err := c.doJSON(ctx, req, WithNoAuth(), WithRefreshOnFailure(false))
	if err != nil {
		return session.Session{}, errors.Wrap(err, "[Client.Login]")
	}

	// A successful login replaces any impersonation in progress
	if err := c.impersonation.Reset(ctx); err != nil {
		return session.Session{}, errors.Wrap(err, "[Client.Login] reset impersonation")
	}
	if _, err := c.sessions.Set(ctx, raw); err != nil {
		return session.Session{}, errors.Wrap(err, "[Client.Login] store session")
	}

	c.log.Info().Str("provider", creds.Provider()).Msg("logged in")
	return c.sessions.Full(ctx)
}

// Logout revokes the session on the server and clears it locally. The local session is cleared
// even when the server call fails; that failure is then returned.
func (c *Client) Logout(ctx context.Context) error {
	refreshToken, err := c.sessions.RefreshToken(ctx)
	if err != nil {
		return errors.Wrap(err, "[Client.Logout]")
	}

	var sendErr error
	if refreshToken != "" {
		req := &transport.Request{Method: http.MethodDelete, URL: c.sessionURL(), Header: http.Header{}}
		_, sendErr = c.executor.Do(ctx, req, WithRefreshToken(), WithRefreshOnFailure(false))
	}

	if err := c.sessions.Clear(ctx); err != nil {
		return errors.Wrap(err, "[Client.Logout] clear")
	}
	if sendErr != nil {
		return errors.Wrap(sendErr, "[Client.Logout] revoke session")
	}
	c.log.Info().Msg("logged out")
	return nil
}

// StartImpersonation switches to userID's session, keeping the current one to restore.
func (c *Client) StartImpersonation(ctx context.Context, userID string) error {
	return c.impersonation.Start(ctx, userID)
}

// StopImpersonation restores the session held before StartImpersonation.
func (c *Client) StopImpersonation(ctx context.Context) error {
	return c.impersonation.Stop(ctx)
}

// IsImpersonating reports whether an impersonation is active.
func (c *Client) IsImpersonating(ctx context.Context) (bool, error) {
	return c.impersonation.IsImpersonating(ctx)
}

// HandleRedirect applies credentials delivered in loc's fragment.
func (c *Client) HandleRedirect(ctx context.Context, loc redirect.Location) (redirect.Result, error) {
	return c.extractor.HandleRedirect(ctx, loc)
}

// HandleCookie applies credentials delivered in the session cookie.
func (c *Client) HandleCookie(ctx context.Context, cookies redirect.Cookies) (redirect.Result, error) {
	return c.extractor.HandleCookie(ctx, cookies)
}

// AuthorizeURL returns the URL that starts a redirect login with provider. The provider sends the
// user agent back to redirectURL with the session in the fragment.
func (c *Client) AuthorizeURL(ctx context.Context, provider, redirectURL string) (string, error) {
	return c.extractor.AuthorizeURL(ctx, c.cfg.AppID, c.loginURL(provider), redirectURL)
}

// refresh is the Executor's Refresher: impersonation refresh while impersonating, otherwise a
// session refresh with the refresh token.
func (c *Client) refresh(ctx context.Context) error {
	impersonating, err := c.impersonation.IsImpersonating(ctx)
	if err != nil {
		return err
	}

	kind := refreshKindSession
	if impersonating {
		kind = refreshKindImpersonation
		err = c.impersonation.Refresh(ctx)
	} else {
		err = c.refreshSession(ctx)
	}

	if err != nil {
		c.metrics.RefreshesTotal.WithLabelValues(kind, metrics.RefreshFailed).Inc()
		c.log.Warn().Err(err).Str("kind", kind).Msg("refresh failed")
		return err
	}
	c.metrics.RefreshesTotal.WithLabelValues(kind, metrics.RefreshOK).Inc()
	c.log.Debug().Str("kind", kind).Msg("session refreshed")
	return nil
}

func (c *Client) refreshSession(ctx context.Context) error {
	req := &transport.Request{Method: http.MethodPost, URL: c.sessionURL(), Header: http.Header{}}
	raw, err := c.doJSON(ctx, req, WithRefreshToken(), WithRefreshOnFailure(false))
	if err != nil {
		return errors.Wrap(err, "[Client.refresh]")
	}
	if _, err := c.sessions.Set(ctx, raw); err != nil {
		return errors.Wrap(err, "[Client.refresh] store session")
	}
	return nil
}

// exchangeImpersonation calls the admin impersonation endpoint authenticated with the real user's
// refresh token, which need not be the stored one.
func (c *Client) exchangeImpersonation(ctx context.Context, userID, realRefreshToken string) (oauthmodel.RawObject, error) {
	req := &transport.Request{Method: http.MethodPost, URL: c.impersonateURL(userID), Header: http.Header{}}
	req.Header.Set(headerAuthorization, "Bearer "+realRefreshToken)
	raw, err := c.doJSON(ctx, req, WithNoAuth(), WithRefreshOnFailure(false))
	if err != nil {
		return nil, errors.Wrap(err, "[Client.exchangeImpersonation]")
	}
	return raw, nil
}

func (c *Client) doJSON(ctx context.Context, req *transport.Request, options ...RequestOption) (oauthmodel.RawObject, error) {
	resp, err := c.executor.Do(ctx, req, options...)
	if err != nil {
		return nil, err
	}
	raw := oauthmodel.RawObject{}
	if len(resp.Body) == 0 {
		return raw, nil
	}
	if err := resp.JSON(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) loginURL(provider string) string {
	return fmt.Sprintf("%s%s/app/%s/auth/providers/%s/login",
		c.cfg.BaseURL, clientAPIPath, url.PathEscape(c.cfg.AppID), url.PathEscape(provider))
}

func (c *Client) sessionURL() string {
	return c.cfg.BaseURL + clientAPIPath + "/auth/session"
}

func (c *Client) impersonateURL(userID string) string {
	return fmt.Sprintf("%s%s/users/%s/impersonate", c.cfg.BaseURL, adminAPIPath, url.PathEscape(userID))
}
