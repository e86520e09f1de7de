package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-stitch-auth/internal/config"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	t.Setenv("STITCH_BASE_URL", "")
	t.Setenv("STITCH_EXPIRY_WINDOW", "")
	t.Setenv("STITCH_STORAGE", "")
	t.Setenv("STITCH_NAMESPACE", "")
	t.Setenv("STITCH_APP_ID", "my-app")

	c := config.New()
	require.Equal(t, "https://stitch.mongodb.com", c.GetBaseURL())
	require.Equal(t, 10*time.Second, c.GetExpiryWindow())
	require.Equal(t, config.StorageBolt, c.GetStorageKind())
	require.Equal(t, "my-app", c.GetNamespace())
}

func TestConfigOverrides(t *testing.T) {
	t.Setenv("STITCH_BASE_URL", "http://localhost:9090/")
	t.Setenv("STITCH_EXPIRY_WINDOW", "1m")
	t.Setenv("STITCH_HTTP_TIMEOUT", "not-a-duration")
	t.Setenv("STITCH_STORAGE", "redis")
	t.Setenv("LOG_LEVEL", "DEBUG")

	c := config.New()
	require.Equal(t, "http://localhost:9090", c.GetBaseURL())
	require.Equal(t, time.Minute, c.GetExpiryWindow())
	require.Equal(t, 30*time.Second, c.GetHTTPTimeout())
	require.Equal(t, config.StorageRedis, c.GetStorageKind())
	require.Equal(t, "debug", c.GetLogLevel())
}
