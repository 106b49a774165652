package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/CristianMarastoni/GameThrive-Unity-SDK/pkg/push"
)

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
	TTL      string `yaml:"ttl"`
}

type YamlStoreConfig struct {
	Driver           string `yaml:"driver"`
	Path             string `yaml:"path"`
	URL              string `yaml:"url"`
	FirestoreProject string `yaml:"firestore_project"`
}

type YamlFCMConfig struct {
	Validate  bool   `yaml:"validate"`
	ProjectID string `yaml:"project_id"`
}

type YamlAPNSConfig struct {
	KeyID    string `yaml:"key_id"`
	TeamID   string `yaml:"team_id"`
	BundleID string `yaml:"bundle_id"`
	P8File   string `yaml:"p8_file"`
	Sandbox  bool   `yaml:"sandbox"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	AppID          string          `yaml:"app_id"`
	APIURL         string          `yaml:"api_url"`
	RESTAPIKey     string          `yaml:"rest_api_key"`
	AutoRegister   *bool           `yaml:"auto_register"`
	DeviceType     string          `yaml:"device_type"`
	GameVersion    string          `yaml:"game_version"`
	Language       string          `yaml:"language"`
	TagFlushDelay  string          `yaml:"tag_flush_delay"`
	RequestTimeout string          `yaml:"request_timeout"`
	StoreConfig    YamlStoreConfig `yaml:"store"`
	RedisConfig    YamlRedisConfig `yaml:"redis"`
	FCMConfig      YamlFCMConfig   `yaml:"fcm"`
	APNSConfig     YamlAPNSConfig  `yaml:"apns"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		AppID:        baseCfg.AppID,
		APIURL:       baseCfg.APIURL,
		RESTAPIKey:   baseCfg.RESTAPIKey,
		AutoRegister: true,
		DeviceType:   push.DeviceTypeAndroid,
		GameVersion:  baseCfg.GameVersion,
		Language:     baseCfg.Language,
		Store: StoreConfig{
			Driver:           baseCfg.StoreConfig.Driver,
			Path:             baseCfg.StoreConfig.Path,
			URL:              baseCfg.StoreConfig.URL,
			FirestoreProject: baseCfg.StoreConfig.FirestoreProject,
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
		},
		FCM: FCMConfig{
			Validate:  baseCfg.FCMConfig.Validate,
			ProjectID: baseCfg.FCMConfig.ProjectID,
		},
		APNS: APNSConfig{
			KeyID:    baseCfg.APNSConfig.KeyID,
			TeamID:   baseCfg.APNSConfig.TeamID,
			BundleID: baseCfg.APNSConfig.BundleID,
			P8File:   baseCfg.APNSConfig.P8File,
			Sandbox:  baseCfg.APNSConfig.Sandbox,
		},
	}

	if baseCfg.AutoRegister != nil {
		cfg.AutoRegister = *baseCfg.AutoRegister
	}
	if baseCfg.DeviceType != "" {
		dt, ok := push.ParseDeviceType(baseCfg.DeviceType)
		if !ok {
			return nil, fmt.Errorf("device_type %q is not one of ios, android, web", baseCfg.DeviceType)
		}
		cfg.DeviceType = dt
	}

	var err error
	if cfg.TagFlushDelay, err = parseDuration("tag_flush_delay", baseCfg.TagFlushDelay, DefaultTagFlushDelay); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = parseDuration("request_timeout", baseCfg.RequestTimeout, DefaultRequestTimeout); err != nil {
		return nil, err
	}
	if cfg.Redis.TTL, err = parseDuration("redis.ttl", baseCfg.RedisConfig.TTL, DefaultRedisTTL); err != nil {
		return nil, err
	}

	logger.Debug("YAML config mapping complete",
		"app_id", cfg.AppID,
		"api_url", cfg.APIURL,
		"device_type", cfg.DeviceType.String(),
		"store", cfg.Store.Driver,
	)

	return cfg, nil
}

func parseDuration(key, raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
