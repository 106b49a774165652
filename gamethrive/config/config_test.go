package config_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CristianMarastoni/GameThrive-Unity-SDK/gamethrive/config"
	"github.com/CristianMarastoni/GameThrive-Unity-SDK/pkg/push"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUpdateConfigWithEnvOverrides(t *testing.T) {
	logger := newTestLogger()

	baseConfig := func() *config.Config {
		return &config.Config{
			AppID:         "base-app",
			APIURL:        "https://base.example/api/v1/",
			AutoRegister:  true,
			DeviceType:    push.DeviceTypeAndroid,
			TagFlushDelay: time.Second,
			Store:         config.StoreConfig{Driver: config.StoreMemory},
		}
	}

	t.Run("Success - All overrides applied", func(t *testing.T) {
		cfg := baseConfig()

		t.Setenv("GAMETHRIVE_APP_ID", "env-app")
		t.Setenv("GAMETHRIVE_API_URL", "http://localhost:8080/api/v1/")
		t.Setenv("GAMETHRIVE_REST_API_KEY", "env-key")
		t.Setenv("GAMETHRIVE_AUTO_REGISTER", "false")
		t.Setenv("GAMETHRIVE_DEVICE_TYPE", "web")
		t.Setenv("GAMETHRIVE_TAG_FLUSH_DELAY", "10ms")
		t.Setenv("GAMETHRIVE_REQUEST_TIMEOUT", "5s")
		t.Setenv("GAMETHRIVE_STORE_DRIVER", "sqlite")
		t.Setenv("GAMETHRIVE_STORE_URL", "sqlite:///tmp/gt.db")
		t.Setenv("REDIS_ADDR", "localhost:6379")
		t.Setenv("REDIS_DB", "2")
		t.Setenv("FCM_VALIDATE", "true")
		t.Setenv("FCM_PROJECT_ID", "fcm-project")
		t.Setenv("APNS_SANDBOX", "true")

		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)

		assert.Equal(t, "env-app", finalCfg.AppID)
		assert.Equal(t, "http://localhost:8080/api/v1/", finalCfg.APIURL)
		assert.Equal(t, "env-key", finalCfg.RESTAPIKey)
		assert.False(t, finalCfg.AutoRegister)
		assert.Equal(t, push.DeviceTypeWeb, finalCfg.DeviceType)
		assert.Equal(t, 10*time.Millisecond, finalCfg.TagFlushDelay)
		assert.Equal(t, 5*time.Second, finalCfg.RequestTimeout)
		assert.Equal(t, config.StoreSQLite, finalCfg.Store.Driver)
		assert.Equal(t, "sqlite:///tmp/gt.db", finalCfg.Store.URL)
		assert.True(t, finalCfg.Redis.Enabled)
		assert.Equal(t, 2, finalCfg.Redis.DB)
		assert.Equal(t, config.DefaultRedisTTL, finalCfg.Redis.TTL)
		assert.True(t, finalCfg.FCM.Validate)
		assert.True(t, finalCfg.APNS.Sandbox)
	})

	t.Run("Success - Defaults preserved", func(t *testing.T) {
		cfg := baseConfig()
		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)

		assert.Equal(t, "base-app", finalCfg.AppID)
		assert.True(t, finalCfg.AutoRegister)
		assert.Equal(t, time.Second, finalCfg.TagFlushDelay)
		assert.Equal(t, config.DefaultRequestTimeout, finalCfg.RequestTimeout)
		assert.Equal(t, "en", finalCfg.Language)
	})

	t.Run("Defaults store driver to file", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Store.Driver = ""
		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)
		assert.Equal(t, config.StoreFile, finalCfg.Store.Driver)
	})

	validationCases := []struct {
		name   string
		mutate func(c *config.Config)
		env    map[string]string
	}{
		{name: "Missing AppID", mutate: func(c *config.Config) { c.AppID = "" }},
		{name: "Unknown device type", env: map[string]string{"GAMETHRIVE_DEVICE_TYPE": "windows-phone"}},
		{name: "Unknown store", mutate: func(c *config.Config) { c.Store.Driver = "etcd" }},
		{name: "Postgres without URL", mutate: func(c *config.Config) { c.Store.Driver = config.StorePostgres }},
		{name: "Firestore without project", mutate: func(c *config.Config) { c.Store.Driver = config.StoreFirestore }},
		{name: "Redis without address", mutate: func(c *config.Config) { c.Redis.Enabled = true }},
		{name: "FCM validation without project", mutate: func(c *config.Config) { c.FCM.Validate = true }},
	}
	for _, tc := range validationCases {
		t.Run("Validation Failure - "+tc.name, func(t *testing.T) {
			cfg := baseConfig()
			if tc.mutate != nil {
				tc.mutate(cfg)
			}
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
			assert.Error(t, err)
		})
	}
}
