package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-stitch-auth/internal/config"
	"github.com/jrsteele09/go-stitch-auth/storage/boltstore"
	"github.com/jrsteele09/go-stitch-auth/storage/memory"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		t.Setenv("STITCH_STORAGE", config.StorageMemory)

		backend, closeBackend, err := openBackend(ctx, config.New())
		require.NoError(t, err)
		require.IsType(t, &memory.Backend{}, backend)
		require.NoError(t, closeBackend())
	})

	t.Run("bolt", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "data")
		t.Setenv("STITCH_STORAGE", config.StorageBolt)
		t.Setenv("FOLDER", dir)

		backend, closeBackend, err := openBackend(ctx, config.New())
		require.NoError(t, err)
		require.IsType(t, &boltstore.Backend{}, backend)

		require.NoError(t, backend.Set(ctx, "k", "v"))
		require.NoError(t, closeBackend())

		_, err = os.Stat(filepath.Join(dir, boltFileName))
		require.NoError(t, err)
	})
}

func TestNewClient_RequiresAppID(t *testing.T) {
	previous := appID
	t.Cleanup(func() { appID = previous })
	appID = ""

	_, _, err := newClient(context.Background())
	require.Error(t, err)
}
