package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/CristianMarastoni/GameThrive-Unity-SDK/gamethrive/config"
	"github.com/CristianMarastoni/GameThrive-Unity-SDK/pkg/push"
)

const sampleYaml = `
app_id: "yaml-app"
api_url: "http://localhost:8080/api/v1/"
auto_register: false
device_type: "ios"
game_version: "2.0.1"
tag_flush_delay: "100ms"
store:
  driver: "sqlite"
  url: "sqlite:///var/lib/gt.db"
redis:
  enabled: true
  addr: "localhost:6379"
  ttl: "1h"
apns:
  key_id: "KEY"
  team_id: "TEAM"
  bundle_id: "com.example.game"
  p8_file: "/secrets/key.p8"
`

func TestNewConfigFromYaml(t *testing.T) {
	logger := newTestLogger()

	t.Run("Success - maps all fields correctly", func(t *testing.T) {
		var yamlCfg config.YamlConfig
		require.NoError(t, yaml.Unmarshal([]byte(sampleYaml), &yamlCfg))

		cfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// 1. Direct Field Mapping
		assert.Equal(t, "yaml-app", cfg.AppID)
		assert.Equal(t, "http://localhost:8080/api/v1/", cfg.APIURL)
		assert.False(t, cfg.AutoRegister)
		assert.Equal(t, push.DeviceTypeIOS, cfg.DeviceType)
		assert.Equal(t, "2.0.1", cfg.GameVersion)

		// 2. Durations
		assert.Equal(t, 100*time.Millisecond, cfg.TagFlushDelay)
		assert.Equal(t, config.DefaultRequestTimeout, cfg.RequestTimeout)
		assert.Equal(t, time.Hour, cfg.Redis.TTL)

		// 3. Nested blocks
		assert.Equal(t, config.StoreSQLite, cfg.Store.Driver)
		assert.True(t, cfg.Redis.Enabled)
		assert.True(t, cfg.APNS.Enabled())
	})

	t.Run("Defaults when fields are absent", func(t *testing.T) {
		cfg, err := config.NewConfigFromYaml(&config.YamlConfig{AppID: "a"}, logger)
		require.NoError(t, err)
		assert.True(t, cfg.AutoRegister)
		assert.Equal(t, push.DeviceTypeAndroid, cfg.DeviceType)
		assert.Equal(t, config.DefaultTagFlushDelay, cfg.TagFlushDelay)
		assert.False(t, cfg.APNS.Enabled())
	})

	t.Run("Failure - bad values", func(t *testing.T) {
		_, err := config.NewConfigFromYaml(&config.YamlConfig{DeviceType: "palm"}, logger)
		assert.Error(t, err)

		_, err = config.NewConfigFromYaml(&config.YamlConfig{TagFlushDelay: "soon"}, logger)
		assert.Error(t, err)
	})
}
