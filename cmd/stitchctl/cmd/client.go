package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/jrsteele09/go-stitch-auth/auth"
	"github.com/jrsteele09/go-stitch-auth/internal/config"
	"github.com/jrsteele09/go-stitch-auth/storage"
	"github.com/jrsteele09/go-stitch-auth/storage/boltstore"
	"github.com/jrsteele09/go-stitch-auth/storage/memory"
	"github.com/jrsteele09/go-stitch-auth/storage/redisstore"
	"github.com/jrsteele09/go-stitch-auth/transport"
	"github.com/rs/zerolog/log"
)

const boltFileName = "stitch.db"

// openBackend opens the storage selected by STITCH_STORAGE. The returned close function is never nil.
func openBackend(ctx context.Context, c config.Config) (storage.Backend, func() error, error) {
	noop := func() error { return nil }

	switch c.GetStorageKind() {
	case config.StorageMemory:
		return memory.New(), noop, nil

	case config.StorageRedis:
		backend, err := redisstore.NewFromAddr(ctx, c.GetRedisAddr())
		if err != nil {
			return nil, noop, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return backend, backend.Close, nil

	default:
		if err := os.MkdirAll(c.GetDataFolder(), 0o700); err != nil {
			return nil, noop, fmt.Errorf("failed to create data directory: %w", err)
		}
		backend, err := boltstore.NewFromFile(filepath.Join(c.GetDataFolder(), boltFileName), nil)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open session storage: %w", err)
		}
		return backend, backend.Close, nil
	}
}

// newClient builds an auth.Client from flags and configuration.
func newClient(ctx context.Context, options ...auth.Option) (*auth.Client, func() error, error) {
	if appID == "" {
		return nil, nil, fmt.Errorf("an app id is required (--app-id or STITCH_APP_ID)")
	}

	backend, closeBackend, err := openBackend(ctx, appConfig)
	if err != nil {
		return nil, nil, err
	}

	namespace := appConfig.GetNamespace()
	if namespace == "" {
		namespace = appID
	}

	options = append([]auth.Option{
		auth.WithBackend(backend),
		auth.WithTransport(transport.NewHTTP(&http.Client{Timeout: appConfig.GetHTTPTimeout()})),
		auth.WithProactiveRefresh(appConfig.GetExpiryWindow()),
		auth.WithLogger(log.Logger),
	}, options...)

	client, err := auth.New(ctx, auth.Config{BaseURL: baseURL, AppID: appID, Namespace: namespace}, options...)
	if err != nil {
		_ = closeBackend()
		return nil, nil, err
	}
	return client, closeBackend, nil
}
