package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/CristianMarastoni/GameThrive-Unity-SDK/pkg/push"
)

const (
	DefaultAPIURL         = "https://gamethrive.com/api/v1/"
	DefaultTagFlushDelay  = 250 * time.Millisecond
	DefaultRequestTimeout = 30 * time.Second
	DefaultRedisTTL       = 24 * time.Hour
)

// Store drivers.
const (
	StoreMemory    = "memory"
	StoreFile      = "file"
	StoreSQLite    = "sqlite"
	StorePostgres  = "postgres"
	StoreFirestore = "firestore"
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type StoreConfig struct {
	Driver           string
	Path             string
	URL              string
	FirestoreProject string
}

type FCMConfig struct {
	Validate  bool
	ProjectID string
}

type APNSConfig struct {
	KeyID    string
	TeamID   string
	BundleID string
	P8File   string
	Sandbox  bool
}

// Enabled reports whether enough credentials are present to probe tokens.
func (a APNSConfig) Enabled() bool {
	return a.KeyID != "" && a.TeamID != "" && a.BundleID != "" && a.P8File != ""
}

// Config defines the *single*, authoritative configuration.
// A zero TagFlushDelay means DefaultTagFlushDelay, even when the Config is built directly.
type Config struct {
	AppID          string
	APIURL         string
	RESTAPIKey     string
	AutoRegister   bool
	DeviceType     push.DeviceType
	GameVersion    string
	Language       string
	TagFlushDelay  time.Duration
	RequestTimeout time.Duration

	Store StoreConfig
	Redis RedisConfig
	FCM   FCMConfig
	APNS  APNSConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("GAMETHRIVE_APP_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "GAMETHRIVE_APP_ID", "source", "env")
		cfg.AppID = val
	}
	if val := os.Getenv("GAMETHRIVE_API_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "GAMETHRIVE_API_URL", "source", "env")
		cfg.APIURL = val
	}
	if val := os.Getenv("GAMETHRIVE_REST_API_KEY"); val != "" {
		logger.Debug("Overriding config value", "key", "GAMETHRIVE_REST_API_KEY", "source", "env")
		cfg.RESTAPIKey = val
	}
	if val := os.Getenv("GAMETHRIVE_AUTO_REGISTER"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			logger.Debug("Overriding config value", "key", "GAMETHRIVE_AUTO_REGISTER", "source", "env")
			cfg.AutoRegister = enabled
		}
	}
	if val := os.Getenv("GAMETHRIVE_DEVICE_TYPE"); val != "" {
		dt, ok := push.ParseDeviceType(val)
		if !ok {
			return nil, fmt.Errorf("GAMETHRIVE_DEVICE_TYPE %q is not one of ios, android, web", val)
		}
		logger.Debug("Overriding config value", "key", "GAMETHRIVE_DEVICE_TYPE", "source", "env")
		cfg.DeviceType = dt
	}
	if val := os.Getenv("GAMETHRIVE_TAG_FLUSH_DELAY"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d >= 0 {
			logger.Debug("Overriding config value", "key", "GAMETHRIVE_TAG_FLUSH_DELAY", "source", "env")
			cfg.TagFlushDelay = d
		}
	}
	if val := os.Getenv("GAMETHRIVE_REQUEST_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			logger.Debug("Overriding config value", "key", "GAMETHRIVE_REQUEST_TIMEOUT", "source", "env")
			cfg.RequestTimeout = d
		}
	}

	// Store Overrides
	if val := os.Getenv("GAMETHRIVE_STORE_DRIVER"); val != "" {
		cfg.Store.Driver = val
	}
	if val := os.Getenv("GAMETHRIVE_STORE_PATH"); val != "" {
		cfg.Store.Path = val
	}
	if val := os.Getenv("GAMETHRIVE_STORE_URL"); val != "" {
		cfg.Store.URL = val
	}
	if val := os.Getenv("GAMETHRIVE_FIRESTORE_PROJECT"); val != "" {
		cfg.Store.FirestoreProject = val
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// Platform Overrides
	if val := os.Getenv("FCM_VALIDATE"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.FCM.Validate = enabled
	}
	if val := os.Getenv("FCM_PROJECT_ID"); val != "" {
		cfg.FCM.ProjectID = val
	}
	if val := os.Getenv("APNS_KEY_ID"); val != "" {
		cfg.APNS.KeyID = val
	}
	if val := os.Getenv("APNS_TEAM_ID"); val != "" {
		cfg.APNS.TeamID = val
	}
	if val := os.Getenv("APNS_BUNDLE_ID"); val != "" {
		cfg.APNS.BundleID = val
	}
	if val := os.Getenv("APNS_P8_FILE"); val != "" {
		cfg.APNS.P8File = val
	}
	if val := os.Getenv("APNS_SANDBOX"); val != "" {
		sandbox, _ := strconv.ParseBool(val)
		cfg.APNS.Sandbox = sandbox
	}

	// 2. Final Validation
	if cfg.AppID == "" {
		return nil, fmt.Errorf("app_id is required (set via YAML or GAMETHRIVE_APP_ID env var)")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.TagFlushDelay <= 0 {
		cfg.TagFlushDelay = DefaultTagFlushDelay
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis is enabled but no address is set (REDIS_ADDR)")
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = DefaultRedisTTL
	}
	if cfg.FCM.Validate && cfg.FCM.ProjectID == "" {
		return nil, fmt.Errorf("fcm validation needs a project id (FCM_PROJECT_ID)")
	}

	switch cfg.Store.Driver {
	case "":
		cfg.Store.Driver = StoreFile
	case StoreMemory, StoreFile:
	case StoreSQLite, StorePostgres:
		if cfg.Store.URL == "" {
			return nil, fmt.Errorf("store driver %s needs a url (GAMETHRIVE_STORE_URL)", cfg.Store.Driver)
		}
	case StoreFirestore:
		if cfg.Store.FirestoreProject == "" {
			return nil, fmt.Errorf("firestore store needs a project (GAMETHRIVE_FIRESTORE_PROJECT)")
		}
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
