// Package redirect extracts credentials delivered out of band: in the URL fragment after an OAuth
// redirect, or in a short-lived cookie.
package redirect

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/jrsteele09/go-stitch-auth/session"
	"github.com/jrsteele09/go-stitch-auth/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Keys recognised in the redirect fragment
const (
	FragmentErrorKey = "_stitch_error"
	FragmentUserAuth = "_stitch_ua"
	FragmentStateKey = "_stitch_state"
	FragmentLinkKey  = "_stitch_link"
)

// CookieName is the cookie carrying an embedded session.
const CookieName = "stitch_ua"

const embeddedSeparator = "$"

// Result describes what a redirect or cookie delivered.
type Result struct {
	Applied      bool            // a session was stored
	Session      session.Session // the delivered session when Applied
	StateChecked bool            // the fragment echoed a state
	StateValid   bool            // the echoed state matched the stored one
	Linked       bool            // the redirect completed an account link
}

// Extractor applies out-of-band credentials to a session Store.
type Extractor struct {
	keys        *storage.Store
	sessions    *session.Store
	strictState bool
	log         zerolog.Logger

	mu      sync.Mutex
	lastErr error
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithStrictState rejects a redirect whose echoed state does not match instead of only
// recording the mismatch.
func WithStrictState() Option {
	return func(e *Extractor) {
		e.strictState = true
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Extractor) {
		e.log = logger
	}
}

func NewExtractor(keys *storage.Store, sessions *session.Store, options ...Option) *Extractor {
	e := &Extractor{
		keys:     keys,
		sessions: sessions,
		log:      log.Logger.With().Str("component", "redirect").Logger(),
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// LastError returns the most recent delivery failure, including state mismatches that were not
// returned to the caller.
func (e *Extractor) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

func (e *Extractor) record(err error) {
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
}

// Prepare generates and stores a fresh anti-forgery state for a redirect login.
func (e *Extractor) Prepare(ctx context.Context) (string, error) {
	state, err := NewState()
	if err != nil {
		return "", err
	}
	if _, err := e.keys.Set(ctx, storage.KeyState, state); err != nil {
		return "", errors.Wrap(err, "[Extractor.Prepare] store state")
	}
	return state, nil
}

// AuthorizeURL prepares a state and returns the provider login URL the user agent should be sent
// to. The provider redirects back to redirectURL with the credentials in the fragment.
func (e *Extractor) AuthorizeURL(ctx context.Context, clientID, loginURL, redirectURL string) (string, error) {
	state, err := e.Prepare(ctx)
	if err != nil {
		return "", err
	}

	cfg := oauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURL,
		Endpoint:    oauth2.Endpoint{AuthURL: loginURL},
	}
	opts := []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("redirect", redirectURL)}

	deviceID, err := e.sessions.DeviceID(ctx)
	if err != nil {
		return "", errors.Wrap(err, "[Extractor.AuthorizeURL] device id")
	}
	if deviceID != "" {
		device, err := json.Marshal(map[string]string{"deviceId": deviceID})
		if err != nil {
			return "", errors.Wrap(err, "[Extractor.AuthorizeURL] device")
		}
		opts = append(opts, oauth2.SetAuthURLParam("device", base64.StdEncoding.EncodeToString(device)))
	}
	return cfg.AuthCodeURL(state, opts...), nil
}

type fragment struct {
	values map[string]string
}

func (f fragment) get(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

func (f fragment) recognised() bool {
	for _, key := range []string{FragmentErrorKey, FragmentUserAuth, FragmentStateKey, FragmentLinkKey} {
		if _, ok := f.values[key]; ok {
			return true
		}
	}
	return false
}

// parseFragment splits an escaped fragment into '&'-separated key=value pairs. Values are
// percent-decoded ('+' stays a plus); pairs that fail to decode are skipped.
func parseFragment(escaped string) fragment {
	f := fragment{values: map[string]string{}}
	for _, pair := range strings.Split(escaped, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		decoded, err := url.PathUnescape(value)
		if err != nil {
			continue
		}
		f.values[key] = decoded
	}
	return f
}

// HandleRedirect applies credentials found in loc's fragment and strips the fragment. A fragment
// without recognised keys is left alone.
func (e *Extractor) HandleRedirect(ctx context.Context, loc Location) (Result, error) {
	u := loc.URL()
	if u.Fragment == "" {
		return Result{}, nil
	}

	found := parseFragment(u.EscapedFragment())
	if !found.recognised() {
		return Result{}, nil
	}
	defer stripFragment(loc, u)

	if msg, ok := found.get(FragmentErrorKey); ok {
		err := &Error{Kind: KindProvider, Message: msg}
		e.record(err)
		e.log.Warn().Str("error", msg).Msg("redirect carried a provider error")
		return Result{}, err
	}

	_, linked := found.get(FragmentLinkKey)
	result := Result{Linked: linked}

	if state, ok := found.get(FragmentStateKey); ok {
		valid, err := e.checkState(ctx, state)
		if err != nil {
			return result, err
		}
		result.StateChecked, result.StateValid = true, valid
		if !valid {
			mismatch := &Error{Kind: KindStateMismatch, Message: "echoed state does not match stored state"}
			e.record(mismatch)
			e.log.Warn().Bool("strict", e.strictState).Msg("redirect state mismatch")
			if e.strictState {
				return result, mismatch
			}
		}
	}

	if ua, ok := found.get(FragmentUserAuth); ok {
		applied, err := e.apply(ctx, ua)
		if err != nil {
			return result, err
		}
		result.Applied, result.Session = true, applied
	}
	return result, nil
}

// HandleCookie applies the embedded session in the stitch_ua cookie, expiring the cookie first.
// A missing cookie is a no-op.
func (e *Extractor) HandleCookie(ctx context.Context, cookies Cookies) (Result, error) {
	value, ok := cookies.Get(CookieName)
	if !ok || value == "" {
		return Result{}, nil
	}
	cookies.Expire(CookieName)

	decoded, err := url.PathUnescape(value)
	if err != nil {
		malformed := &Error{Kind: KindMalformed, Message: fmt.Sprintf("cookie is not URL encoded: %v", err)}
		e.record(malformed)
		return Result{}, malformed
	}

	applied, err := e.apply(ctx, decoded)
	if err != nil {
		return Result{}, err
	}
	return Result{Applied: true, Session: applied}, nil
}

// checkState compares the echoed state with the stored one. The stored state is single use and
// is removed either way.
func (e *Extractor) checkState(ctx context.Context, echoed string) (bool, error) {
	stored, ok, err := e.keys.Get(ctx, storage.KeyState)
	if err != nil {
		return false, errors.Wrap(err, "[Extractor] read state")
	}
	if err := e.keys.Remove(ctx, storage.KeyState); err != nil {
		return false, errors.Wrap(err, "[Extractor] remove state")
	}
	return ok && stored == echoed, nil
}

func (e *Extractor) apply(ctx context.Context, embedded string) (session.Session, error) {
	delivered, err := parseEmbedded(embedded)
	if err != nil {
		e.record(err)
		return session.Session{}, err
	}
	if _, err := e.sessions.Apply(ctx, delivered); err != nil {
		return session.Session{}, errors.Wrap(err, "[Extractor] apply session")
	}
	return delivered, nil
}

// parseEmbedded decodes "access$refresh$user$device".
func parseEmbedded(value string) (session.Session, error) {
	parts := strings.Split(value, embeddedSeparator)
	if len(parts) != 4 {
		return session.Session{}, &Error{
			Kind:    KindMalformed,
			Message: fmt.Sprintf("embedded session has %d parts, expected 4", len(parts)),
		}
	}
	return session.Session{
		AccessToken:  parts[0],
		RefreshToken: parts[1],
		UserID:       parts[2],
		DeviceID:     parts[3],
	}, nil
}

func stripFragment(loc Location, u *url.URL) {
	stripped := *u
	stripped.Fragment = ""
	stripped.RawFragment = ""
	loc.Replace(&stripped)
}
