package auth_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jrsteele09/go-stitch-auth/auth"
	"github.com/jrsteele09/go-stitch-auth/oauthmodel"
	"github.com/jrsteele09/go-stitch-auth/redirect"
	"github.com/jrsteele09/go-stitch-auth/session"
	"github.com/jrsteele09/go-stitch-auth/storage/memory"
	"github.com/jrsteele09/go-stitch-auth/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const testAppID = "app-1"

// fakeAPI is an in-process auth API. Tokens are issued from the maps below.
type fakeAPI struct {
	mu sync.Mutex

	// access token -> valid
	validAccess map[string]bool
	// refresh token -> access token issued on refresh
	refreshes map[string]string
	// real refresh token -> impersonation response
	impersonations map[string]map[string]any

	logins      []map[string]any
	authHeaders map[string][]string
	loginFail   bool
	logoutFail  bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		validAccess:    map[string]bool{},
		refreshes:      map[string]string{},
		impersonations: map[string]map[string]any{},
		authHeaders:    map[string][]string{},
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (a *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	key := r.Method + " " + r.URL.Path
	a.authHeaders[key] = append(a.authHeaders[key], bearer)

	invalid := func() {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid session", "error_code": "InvalidSession"})
	}

	switch {
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/api/client/v2.0/app/"+testAppID+"/auth/providers/"):
		body, _ := io.ReadAll(r.Body)
		var login map[string]any
		_ = json.Unmarshal(body, &login)
		a.logins = append(a.logins, login)
		if a.loginFail {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid username/password", "error_code": "InvalidPassword"})
			return
		}
		a.validAccess["a1"] = true
		a.refreshes["r1"] = "a2"
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "a1",
			"refresh_token": "r1",
			"user_id":       "u1",
			"device_id":     "d1",
		})

	case r.Method == http.MethodPost && r.URL.Path == "/api/client/v2.0/auth/session":
		next, ok := a.refreshes[bearer]
		if !ok {
			invalid()
			return
		}
		a.validAccess[next] = true
		writeJSON(w, http.StatusCreated, map[string]any{"access_token": next})

	case r.Method == http.MethodDelete && r.URL.Path == "/api/client/v2.0/auth/session":
		if a.logoutFail {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("boom"))
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/impersonate"):
		resp, ok := a.impersonations[bearer]
		if !ok {
			writeJSON(w, http.StatusForbidden, map[string]any{"error": "not an admin", "error_code": "Forbidden"})
			return
		}
		a.validAccess[resp["access_token"].(string)] = true
		writeJSON(w, http.StatusOK, resp)

	case r.URL.Path == "/api/data":
		if !a.validAccess[bearer] {
			invalid()
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"token": bearer})

	default:
		http.NotFound(w, r)
	}
}

func (a *fakeAPI) expire(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.validAccess, token)
}

func (a *fakeAPI) bearers(key string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.authHeaders[key]...)
}

type clientFixture struct {
	api     *fakeAPI
	server  *httptest.Server
	backend *memory.Backend
	client  *auth.Client
}

func setupClientFixture(t *testing.T, options ...auth.Option) *clientFixture {
	t.Helper()

	f := &clientFixture{api: newFakeAPI(), backend: memory.New()}
	f.server = httptest.NewServer(f.api)
	t.Cleanup(f.server.Close)

	options = append([]auth.Option{
		auth.WithBackend(f.backend),
		auth.WithTransport(transport.NewHTTP(f.server.Client())),
	}, options...)

	client, err := auth.New(context.Background(), auth.Config{BaseURL: f.server.URL + "/", AppID: testAppID}, options...)
	require.NoError(t, err)
	f.client = client
	return f
}

func (f *clientFixture) dataRequest() *transport.Request {
	return &transport.Request{Method: http.MethodGet, URL: f.server.URL + "/api/data", Header: http.Header{}}
}

func (f *clientFixture) login(t *testing.T) {
	t.Helper()
	_, err := f.client.Login(context.Background(), oauthmodel.UserPasswordCredentials{Username: "ada@example.com", Password: "secret"})
	require.NoError(t, err)
}

func TestNew_Validation(t *testing.T) {
	_, err := auth.New(context.Background(), auth.Config{AppID: testAppID})
	require.Error(t, err)

	_, err = auth.New(context.Background(), auth.Config{BaseURL: "https://stitch.example.com"})
	require.Error(t, err)

	client, err := auth.New(context.Background(), auth.Config{BaseURL: "https://stitch.example.com/", AppID: testAppID})
	require.NoError(t, err)
	require.Equal(t, "https://stitch.example.com", client.Config().BaseURL)
	require.Equal(t, testAppID, client.Config().Namespace)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	f := setupClientFixture(t)

	got, err := f.client.Login(ctx, oauthmodel.UserPasswordCredentials{Username: "ada@example.com", Password: "secret"})
	require.NoError(t, err)
	require.Equal(t, session.Session{AccessToken: "a1", RefreshToken: "r1", UserID: "u1", DeviceID: "d1"}, got)

	loginPath := "POST /api/client/v2.0/app/" + testAppID + "/auth/providers/local-userpass/login"
	require.Equal(t, []string{""}, f.api.bearers(loginPath))
	require.Equal(t, "ada@example.com", f.api.logins[0]["username"])
	require.NotContains(t, f.api.logins[0], "options")

	authed, err := f.client.IsAuthenticated(ctx)
	require.NoError(t, err)
	require.True(t, authed)

	t.Run("device id is sent on the next login", func(t *testing.T) {
		_, err := f.client.Login(ctx, oauthmodel.APIKeyCredentials{Key: "k1"})
		require.NoError(t, err)

		options, ok := f.api.logins[1]["options"].(map[string]any)
		require.True(t, ok)
		require.Equal(t, map[string]any{"deviceId": "d1"}, options["device"])
		require.Equal(t, "k1", f.api.logins[1]["key"])
	})

	t.Run("anonymous login keeps the current session", func(t *testing.T) {
		got, err := f.client.Login(ctx, oauthmodel.AnonymousCredentials{})
		require.NoError(t, err)
		require.Equal(t, "u1", got.UserID)
		require.Len(t, f.api.logins, 2)
	})
}

func TestLogin_Failure(t *testing.T) {
	ctx := context.Background()
	f := setupClientFixture(t)
	f.api.loginFail = true

	_, err := f.client.Login(ctx, oauthmodel.UserPasswordCredentials{Username: "ada@example.com", Password: "wrong"})
	var apiErr *auth.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, oauthmodel.ErrorCode("InvalidPassword"), apiErr.Code)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	authed, err := f.client.IsAuthenticated(ctx)
	require.NoError(t, err)
	require.False(t, authed)
}

func TestDo_RefreshesSession(t *testing.T) {
	ctx := context.Background()
	f := setupClientFixture(t)
	f.login(t)
	f.api.expire("a1")

	resp, err := f.client.Do(ctx, f.dataRequest())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"token":"a2"}`, string(resp.Body))

	require.Equal(t, []string{"r1"}, f.api.bearers("POST /api/client/v2.0/auth/session"))

	access, err := f.client.AccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "a2", access)

	refresh, err := f.client.RefreshToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "r1", refresh)
}

func TestClient_RefreshFailure(t *testing.T) {
	f := setupClientFixture(t)
	f.login(t)
	f.api.expire("a1")
	f.api.mu.Lock()
	delete(f.api.refreshes, "r1")
	f.api.mu.Unlock()

	_, err := f.client.Do(context.Background(), f.dataRequest())
	require.ErrorIs(t, err, auth.ErrRefreshFailed)
}

func TestImpersonation(t *testing.T) {
	ctx := context.Background()
	f := setupClientFixture(t)
	f.login(t)
	f.api.impersonations["r1"] = map[string]any{
		"access_token":  "ia1",
		"refresh_token": "ir1",
		"user_id":       "u2",
	}

	before, err := f.client.Session(ctx)
	require.NoError(t, err)

	require.NoError(t, f.client.StartImpersonation(ctx, "u2"))
	require.Equal(t, []string{"r1"}, f.api.bearers("POST /api/admin/v3.0/users/u2/impersonate"))

	impersonating, err := f.client.IsImpersonating(ctx)
	require.NoError(t, err)
	require.True(t, impersonating)

	userID, err := f.client.AuthedID(ctx)
	require.NoError(t, err)
	require.Equal(t, "u2", userID)

	require.ErrorIs(t, f.client.StartImpersonation(ctx, "u3"), auth.ErrAlreadyImpersonating)

	t.Run("refresh re-runs the exchange with the real refresh token", func(t *testing.T) {
		f.api.mu.Lock()
		f.api.impersonations["r1"] = map[string]any{"access_token": "ia2"}
		f.api.mu.Unlock()
		f.api.expire("ia1")

		resp, err := f.client.Do(ctx, f.dataRequest())
		require.NoError(t, err)
		require.JSONEq(t, `{"token":"ia2"}`, string(resp.Body))
		require.Equal(t, []string{"r1", "r1"}, f.api.bearers("POST /api/admin/v3.0/users/u2/impersonate"))
		require.Empty(t, f.api.bearers("POST /api/client/v2.0/auth/session"))
	})

	require.NoError(t, f.client.StopImpersonation(ctx))
	after, err := f.client.Session(ctx)
	require.NoError(t, err)
	require.Equal(t, before, after)

	require.ErrorIs(t, f.client.StopImpersonation(ctx), auth.ErrNotImpersonating)
}

func TestImpersonation_RefreshFailureReverts(t *testing.T) {
	ctx := context.Background()
	f := setupClientFixture(t)
	f.login(t)
	f.api.impersonations["r1"] = map[string]any{"access_token": "ia1", "user_id": "u2"}
	require.NoError(t, f.client.StartImpersonation(ctx, "u2"))

	f.api.mu.Lock()
	delete(f.api.impersonations, "r1")
	f.api.mu.Unlock()
	f.api.expire("ia1")

	_, err := f.client.Do(ctx, f.dataRequest())
	require.ErrorIs(t, err, auth.ErrRefreshFailed)

	impersonating, err := f.client.IsImpersonating(ctx)
	require.NoError(t, err)
	require.False(t, impersonating)

	userID, err := f.client.AuthedID(ctx)
	require.NoError(t, err)
	require.Equal(t, "u1", userID)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()

	t.Run("revokes and clears", func(t *testing.T) {
		f := setupClientFixture(t)
		f.login(t)

		require.NoError(t, f.client.Logout(ctx))
		require.Equal(t, []string{"r1"}, f.api.bearers("DELETE /api/client/v2.0/auth/session"))

		authed, err := f.client.IsAuthenticated(ctx)
		require.NoError(t, err)
		require.False(t, authed)

		got, err := f.client.Session(ctx)
		require.NoError(t, err)
		require.Equal(t, session.Session{DeviceID: "d1"}, got)
	})

	t.Run("clears even when the server fails", func(t *testing.T) {
		f := setupClientFixture(t)
		f.login(t)
		f.api.logoutFail = true

		err := f.client.Logout(ctx)
		var transportErr *auth.TransportError
		require.ErrorAs(t, err, &transportErr)
		require.Equal(t, http.StatusInternalServerError, transportErr.StatusCode)

		authed, err := f.client.IsAuthenticated(ctx)
		require.NoError(t, err)
		require.False(t, authed)
	})

	t.Run("logout while impersonating drops impersonation", func(t *testing.T) {
		f := setupClientFixture(t)
		f.login(t)
		f.api.impersonations["r1"] = map[string]any{"access_token": "ia1", "refresh_token": "ir1", "user_id": "u2"}
		require.NoError(t, f.client.StartImpersonation(ctx, "u2"))

		require.NoError(t, f.client.Logout(ctx))
		impersonating, err := f.client.IsImpersonating(ctx)
		require.NoError(t, err)
		require.False(t, impersonating)
	})

	t.Run("without a session is a local clear", func(t *testing.T) {
		f := setupClientFixture(t)
		require.NoError(t, f.client.Logout(ctx))
		require.Empty(t, f.api.bearers("DELETE /api/client/v2.0/auth/session"))
	})
}

func TestNew_HandlesRedirect(t *testing.T) {
	ctx := context.Background()

	t.Run("applies the fragment session", func(t *testing.T) {
		loc, err := redirect.NewStaticLocation("https://app.example.com/cb#_stitch_ua=tok%24rtok%24uid%24did")
		require.NoError(t, err)

		f := setupClientFixture(t, auth.WithLocation(loc))
		require.NoError(t, f.client.RedirectError())

		got, err := f.client.Session(ctx)
		require.NoError(t, err)
		require.Equal(t, session.Session{AccessToken: "tok", RefreshToken: "rtok", UserID: "uid", DeviceID: "did"}, got)
		require.Equal(t, "https://app.example.com/cb", loc.URL().String())
	})

	t.Run("keeps the failure", func(t *testing.T) {
		loc, err := redirect.NewStaticLocation("https://app.example.com/cb#_stitch_error=denied")
		require.NoError(t, err)

		f := setupClientFixture(t, auth.WithLocation(loc))
		require.ErrorIs(t, f.client.RedirectError(), auth.ErrRedirectState)

		authed, err := f.client.IsAuthenticated(ctx)
		require.NoError(t, err)
		require.False(t, authed)
	})
}

func TestAuthorizeURL(t *testing.T) {
	f := setupClientFixture(t)

	raw, err := f.client.AuthorizeURL(context.Background(), "oauth2-google", "https://app.example.com/cb")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(raw, f.server.URL+"/api/client/v2.0/app/"+testAppID+"/auth/providers/oauth2-google/login?"))
	require.Contains(t, raw, "state=")
}

func TestNew_Registerer(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := setupClientFixture(t, auth.WithRegisterer(reg))
	f.login(t)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestLogin_WhileImpersonating(t *testing.T) {
	ctx := context.Background()
	realSession := session.Session{AccessToken: "a1", RefreshToken: "r1", UserID: "u1", DeviceID: "d1"}

	setup := func(t *testing.T) *clientFixture {
		t.Helper()
		f := setupClientFixture(t)
		f.login(t)
		f.api.impersonations["r1"] = map[string]any{
			"access_token":  "ia1",
			"refresh_token": "ir1",
			"user_id":       "u2",
		}
		require.NoError(t, f.client.StartImpersonation(ctx, "u2"))
		return f
	}

	t.Run("failed login keeps the impersonation", func(t *testing.T) {
		f := setup(t)
		f.api.mu.Lock()
		f.api.loginFail = true
		f.api.mu.Unlock()

		_, err := f.client.Login(ctx, oauthmodel.UserPasswordCredentials{Username: "ada@example.com", Password: "wrong"})
		require.Error(t, err)

		impersonating, err := f.client.IsImpersonating(ctx)
		require.NoError(t, err)
		require.True(t, impersonating)

		require.NoError(t, f.client.StopImpersonation(ctx))
		got, err := f.client.Session(ctx)
		require.NoError(t, err)
		require.Equal(t, realSession, got)
	})

	t.Run("successful login ends the impersonation", func(t *testing.T) {
		f := setup(t)

		got, err := f.client.Login(ctx, oauthmodel.UserPasswordCredentials{Username: "ada@example.com", Password: "secret"})
		require.NoError(t, err)
		require.Equal(t, "u1", got.UserID)

		impersonating, err := f.client.IsImpersonating(ctx)
		require.NoError(t, err)
		require.False(t, impersonating)
		require.ErrorIs(t, f.client.StopImpersonation(ctx), auth.ErrNotImpersonating)
	})
}
