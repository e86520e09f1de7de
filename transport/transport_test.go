package transport_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-stitch-auth/transport"
	"github.com/stretchr/testify/require"
)

func TestHTTP_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer a1", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.JSONEq(t, `{"name":"x"}`, string(body))

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))
	defer srv.Close()

	req, err := transport.NewJSONRequest(http.MethodPost, srv.URL+"/things", map[string]string{"name": "x"})
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer a1")

	resp, err := transport.NewHTTP(srv.Client()).Send(context.Background(), req)
	require.NoError(t, err)
	require.True(t, resp.IsSuccess())
	require.True(t, resp.IsJSON())

	var out map[string]string
	require.NoError(t, resp.JSON(&out))
	require.Equal(t, "1", out["id"])
}

func TestHTTP_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	req, err := transport.NewJSONRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := transport.NewHTTP(nil).Send(context.Background(), req)
	require.NoError(t, err)
	require.False(t, resp.IsSuccess())
	require.False(t, resp.IsJSON())
	require.Equal(t, "502 Bad Gateway", resp.StatusText())
}

func TestRequest_Clone(t *testing.T) {
	req := &transport.Request{Method: http.MethodGet, URL: "http://x"}
	clone := req.Clone()
	clone.Header.Set("Authorization", "Bearer t")
	require.Nil(t, req.Header)
	require.Equal(t, "Bearer t", clone.Header.Get("Authorization"))
}
