package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CristianMarastoni/GameThrive-Unity-SDK/pkg/push"
)

// ErrCacheMiss is returned by CacheClient.Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get returns the value or ErrCacheMiss if not found.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// CachedIdentityStore is a Decorator that adds Read-Aside caching to any IdentityStore.
type CachedIdentityStore struct {
	realStore push.IdentityStore
	cache     CacheClient
	ttl       time.Duration
	logger    *slog.Logger
}

var _ push.IdentityStore = (*CachedIdentityStore)(nil)

// NewCachedIdentityStore creates the decorator.
func NewCachedIdentityStore(realStore push.IdentityStore, cache CacheClient, ttl time.Duration, logger *slog.Logger) *CachedIdentityStore {
	return &CachedIdentityStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
		logger:    logger.With("component", "CachedIdentityStore"),
	}
}

// --- READ PATH (Read-Aside) ---

func (s *CachedIdentityStore) Load(ctx context.Context, appID string) (*push.Identity, error) {
	key := s.cacheKey(appID)

	// 1. Try Cache
	var cached push.Identity
	err := s.cache.Get(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.logger.Warn("Identity cache read failed, falling back to store", "app_id", appID, "err", err)
	}

	// 2. Fallback to Real Store
	fresh, err := s.realStore.Load(ctx, appID)
	if err != nil {
		return nil, err
	}

	// 3. Populate Cache; a cache outage only costs latency
	if err := s.cache.Set(ctx, key, fresh, s.ttl); err != nil {
		s.logger.Warn("Identity cache populate failed", "app_id", appID, "err", err)
	}

	return fresh, nil
}

// --- WRITE PATHS (Invalidate-on-Write) ---

func (s *CachedIdentityStore) Save(ctx context.Context, identity push.Identity) error {
	// 1. Write to Source of Truth
	if err := s.realStore.Save(ctx, identity); err != nil {
		return err
	}
	// 2. Invalidate Cache
	return s.invalidate(ctx, identity.AppID)
}

func (s *CachedIdentityStore) Clear(ctx context.Context, appID string) error {
	if err := s.realStore.Clear(ctx, appID); err != nil {
		return err
	}
	return s.invalidate(ctx, appID)
}

// --- Helpers ---

func (s *CachedIdentityStore) invalidate(ctx context.Context, appID string) error {
	// The next Load is forced back to the real store so a new player id is never shadowed.
	if err := s.cache.Del(ctx, s.cacheKey(appID)); err != nil {
		return fmt.Errorf("identity cache invalidation failed: %w", err)
	}
	return nil
}

func (s *CachedIdentityStore) cacheKey(appID string) string {
	return fmt.Sprintf("gamethrive:identity:%s", appID)
}
