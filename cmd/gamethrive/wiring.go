package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"gopkg.in/yaml.v3"

	"github.com/CristianMarastoni/GameThrive-Unity-SDK/gamethrive/config"
	"github.com/CristianMarastoni/GameThrive-Unity-SDK/internal/platform/apns"
	"github.com/CristianMarastoni/GameThrive-Unity-SDK/internal/platform/fcm"
	"github.com/CristianMarastoni/GameThrive-Unity-SDK/internal/platform/web"
	"github.com/CristianMarastoni/GameThrive-Unity-SDK/internal/storage/cache"
	"github.com/CristianMarastoni/GameThrive-Unity-SDK/internal/storage/file"
	fsStore "github.com/CristianMarastoni/GameThrive-Unity-SDK/internal/storage/firestore"
	"github.com/CristianMarastoni/GameThrive-Unity-SDK/internal/storage/memory"
	"github.com/CristianMarastoni/GameThrive-Unity-SDK/internal/storage/sqlstore"
	"github.com/CristianMarastoni/GameThrive-Unity-SDK/pkg/push"
)

// cleanup collects Close functions in reverse acquisition order.
type cleanup []func() error

func (c *cleanup) add(fn func() error) {
	*c = append(*c, fn)
}

func (c cleanup) run(logger *slog.Logger) {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			logger.Warn("Cleanup failed", "err", err)
		}
	}
}

// --- Config Loading ---

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal embedded yaml config: %w", err)
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		return nil, err
	}
	return config.UpdateConfigWithEnvOverrides(baseCfg, logger)
}

// --- Identity Store (Decorated) ---

func newIdentityStore(ctx context.Context, cfg *config.Config, closers *cleanup, logger *slog.Logger) (push.IdentityStore, error) {
	var store push.IdentityStore

	switch cfg.Store.Driver {
	case config.StoreMemory:
		store = memory.New()

	case config.StoreFile, "":
		dir := cfg.Store.Path
		if dir == "" {
			dir = file.DefaultDir()
		}
		store = file.New(dir)

	case config.StoreSQLite, config.StorePostgres:
		db, err := sqlstore.Open(cfg.Store.URL)
		if err != nil {
			return nil, err
		}
		closers.add(db.Close)
		sqlStore, err := sqlstore.New(ctx, db)
		if err != nil {
			return nil, err
		}
		store = sqlStore

	case config.StoreFirestore:
		fsClient, err := firestore.NewClient(ctx, cfg.Store.FirestoreProject)
		if err != nil {
			return nil, fmt.Errorf("firestore client failed: %w", err)
		}
		closers.add(fsClient.Close)
		store = fsStore.NewIdentityStore(fsClient)

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	logger.Debug("IdentityStore initialized", "type", cfg.Store.Driver)

	if cfg.Redis.Enabled {
		logger.Debug("Initializing Redis Cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		closers.add(redisClient.Close)
		store = cache.NewCachedIdentityStore(store, redisClient, cfg.Redis.TTL, logger)
		logger.Debug("IdentityStore upgraded", "type", "redis_cached_"+cfg.Store.Driver)
	}

	return store, nil
}

// --- Token Source ---

// tokenOptions carries the token given on the command line.
type tokenOptions struct {
	token        string
	subscription string
}

func newTokenSource(ctx context.Context, cfg *config.Config, opts tokenOptions, logger *slog.Logger) (push.TokenSource, error) {
	switch cfg.DeviceType {
	case push.DeviceTypeWeb:
		if opts.subscription != "" {
			return web.NewFileTokenSource(opts.subscription), nil
		}
		return push.StaticToken(opts.token), nil

	case push.DeviceTypeIOS:
		var raw []byte
		if opts.token != "" {
			parsed, err := apns.ParseDeviceToken(opts.token)
			if err != nil {
				return nil, err
			}
			raw = parsed
		}
		var source push.TokenSource = apns.NewTokenSource(func(context.Context) ([]byte, error) {
			return raw, nil
		})
		if !cfg.APNS.Enabled() {
			return source, nil
		}
		key, err := os.ReadFile(cfg.APNS.P8File)
		if err != nil {
			return nil, fmt.Errorf("failed to read APNs key: %w", err)
		}
		prober, err := apns.NewProber(apns.Config{
			KeyID:        cfg.APNS.KeyID,
			TeamID:       cfg.APNS.TeamID,
			BundleID:     cfg.APNS.BundleID,
			P8KeyContent: string(key),
			Sandbox:      cfg.APNS.Sandbox,
		}, logger)
		if err != nil {
			return nil, err
		}
		logger.Debug("APNs token probing enabled", "bundle_id", cfg.APNS.BundleID, "sandbox", cfg.APNS.Sandbox)
		return apns.NewValidatingTokenSource(source, prober), nil

	default:
		source := push.StaticToken(opts.token)
		if !cfg.FCM.Validate {
			return source, nil
		}
		messagingClient, err := fcm.NewMessagingClient(ctx, cfg.FCM.ProjectID)
		if err != nil {
			return nil, err
		}
		logger.Debug("FCM token validation enabled", "project_id", cfg.FCM.ProjectID)
		return fcm.NewValidatingTokenSource(source, messagingClient, logger), nil
	}
}
