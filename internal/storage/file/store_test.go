package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CristianMarastoni/GameThrive-Unity-SDK/internal/storage/file"
	"github.com/CristianMarastoni/GameThrive-Unity-SDK/pkg/push"
)

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested", "gamethrive")
	store := file.New(dir)

	t.Run("Load before save is not found", func(t *testing.T) {
		_, err := store.Load(ctx, "app-1")
		assert.ErrorIs(t, err, push.ErrIdentityNotFound)
	})

	t.Run("Save survives a new store instance", func(t *testing.T) {
		identity := push.Identity{AppID: "app-1", PlayerID: "P1", DeviceToken: "tok", InstallationID: "inst"}
		require.NoError(t, store.Save(ctx, identity))

		reopened := file.New(dir)
		got, err := reopened.Load(ctx, "app-1")
		require.NoError(t, err)
		assert.Equal(t, identity, *got)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temp files must not be left behind")

		info, err := os.Stat(filepath.Join(dir, entries[0].Name()))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	})

	t.Run("App ids are isolated and sanitised", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, push.Identity{AppID: "../evil", PlayerID: "P2"}))

		got, err := store.Load(ctx, "../evil")
		require.NoError(t, err)
		assert.Equal(t, "P2", got.PlayerID)

		_, err = os.Stat(filepath.Join(dir, "identity-.._evil.json"))
		assert.NoError(t, err)
	})

	t.Run("Clear is idempotent", func(t *testing.T) {
		require.NoError(t, store.Clear(ctx, "app-1"))
		require.NoError(t, store.Clear(ctx, "app-1"))

		_, err := store.Load(ctx, "app-1")
		assert.ErrorIs(t, err, push.ErrIdentityNotFound)
	})

	t.Run("Corrupt file is reported", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "identity-broken.json"), []byte("{"), 0600))
		_, err := store.Load(ctx, "broken")
		require.Error(t, err)
		assert.NotErrorIs(t, err, push.ErrIdentityNotFound)
	})
}
