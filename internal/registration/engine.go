// Package registration turns a platform push token into a persisted GameThrive player id.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/CristianMarastoni/GameThrive-Unity-SDK/internal/transport"
	"github.com/CristianMarastoni/GameThrive-Unity-SDK/pkg/push"
)

const registerKey = "register"

// Config holds the values sent with every registration.
type Config struct {
	AppID       string
	DeviceType  push.DeviceType
	GameVersion string
	Language    string
}

// Engine drives token acquisition, player create/update and identity persistence.
// A single registration is in flight at any time. Concurrent callers with the same
// token source share its result; a registration for another token waits and then
// updates the player the first one created.
type Engine struct {
	cfg       Config
	requester push.Requester
	tokens    push.TokenSource
	store     push.IdentityStore
	logger    *slog.Logger

	// base outlives any single caller so a shared registration is not
	// cancelled when the caller that started it gives up.
	base  context.Context
	group singleflight.Group
	regMu sync.Mutex
	now   func() time.Time

	mu        sync.RWMutex
	identity  push.Identity
	ready     chan struct{}
	readyOnce sync.Once
	observers []func(push.Identity)
}

// New loads (or creates) the persisted identity for cfg.AppID.
// It fails with push.ErrAppIDMismatch when the store holds a different app id.
func New(
	base context.Context,
	cfg Config,
	requester push.Requester,
	tokens push.TokenSource,
	store push.IdentityStore,
	logger *slog.Logger,
) (*Engine, error) {
	if cfg.AppID == "" {
		return nil, errors.New("registration: app id is required")
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}

	e := &Engine{
		cfg:       cfg,
		requester: requester,
		tokens:    tokens,
		store:     store,
		logger:    logger.With("component", "RegistrationEngine", "app_id", cfg.AppID),
		base:      base,
		now:       time.Now,
		ready:     make(chan struct{}),
	}

	identity, err := e.loadIdentity(base)
	if err != nil {
		return nil, err
	}
	e.identity = identity
	if _, ok := identity.Player(); ok {
		e.markReady()
	}
	return e, nil
}

func (e *Engine) loadIdentity(ctx context.Context) (push.Identity, error) {
	stored, err := e.store.Load(ctx, e.cfg.AppID)
	switch {
	case err == nil:
		if stored.AppID != e.cfg.AppID {
			return push.Identity{}, fmt.Errorf("%w: persisted %q, configured %q", push.ErrAppIDMismatch, stored.AppID, e.cfg.AppID)
		}
		if stored.InstallationID != "" {
			return *stored, nil
		}
		// Identities written before installation ids existed get one now.
		stored.InstallationID = newInstallationID()
		if err := e.store.Save(ctx, *stored); err != nil {
			return push.Identity{}, fmt.Errorf("failed to persist installation id: %w", err)
		}
		return *stored, nil

	case errors.Is(err, push.ErrIdentityNotFound):
		fresh := push.Identity{AppID: e.cfg.AppID, InstallationID: newInstallationID()}
		if err := e.store.Save(ctx, fresh); err != nil {
			return push.Identity{}, fmt.Errorf("failed to persist new identity: %w", err)
		}
		e.logger.Info("Created installation identity", "installation_id", fresh.InstallationID)
		return fresh, nil

	default:
		return push.Identity{}, fmt.Errorf("failed to load identity: %w", err)
	}
}

func newInstallationID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// --- Public API ---

// Register acquires a token from the platform source and registers it.
func (e *Engine) Register(ctx context.Context) (string, error) {
	return e.shared(ctx, registerKey, func(ctx context.Context) (string, error) {
		token, err := e.tokens.Token(ctx)
		if err != nil {
			return "", push.TokenError(err)
		}
		if token == "" {
			return "", push.TokenError(push.ErrTokenSourceUnavailable)
		}
		return token, nil
	})
}

// RegisterToken registers a caller-supplied device token.
func (e *Engine) RegisterToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", push.TokenError(push.ErrTokenSourceUnavailable)
	}
	return e.shared(ctx, registerKey+":"+token, func(context.Context) (string, error) {
		return token, nil
	})
}

// OnFocus reports an app lifecycle transition. It is a no-op until a player id exists.
func (e *Engine) OnFocus(ctx context.Context, state string) error {
	playerID, ok := e.Identity().Player()
	if !ok {
		return nil
	}

	switch state {
	case "resume", "focus":
		body := map[string]any{"app_id": e.cfg.AppID, "state": state}
		if _, err := e.requester.Do(ctx, http.MethodPost, transport.SessionPath(playerID), body); err != nil {
			return fmt.Errorf("session update failed: %w", err)
		}
		e.logger.Debug("Session updated", "player_id", playerID, "state", state)
	default:
		e.logger.Debug("Ignoring focus state", "state", state)
	}
	return nil
}

// WaitPlayerID blocks until a player id is assigned or ctx ends.
func (e *Engine) WaitPlayerID(ctx context.Context) (string, error) {
	select {
	case <-e.ready:
		id, _ := e.Identity().Player()
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Identity returns a snapshot of the current identity.
func (e *Engine) Identity() push.Identity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.identity
}

// OnIdentity registers fn to be called after every successful registration.
// If a player id is already known fn is called immediately with the current identity.
func (e *Engine) OnIdentity(fn func(push.Identity)) {
	e.mu.Lock()
	e.observers = append(e.observers, fn)
	current := e.identity
	e.mu.Unlock()

	if _, ok := current.Player(); ok {
		fn(current)
	}
}

// --- Registration flow ---

func (e *Engine) shared(ctx context.Context, key string, token func(context.Context) (string, error)) (string, error) {
	ch := e.group.DoChan(key, func() (interface{}, error) {
		return e.register(e.base, token)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (e *Engine) register(ctx context.Context, acquire func(context.Context) (string, error)) (string, error) {
	// 1. Acquire the device token; nothing is sent if this fails
	token, err := acquire(ctx)
	if err != nil {
		e.logger.Warn("Push token unavailable, registration skipped", "err", err)
		return "", err
	}

	// 2. Create or update the player record. The identity is read under regMu so a
	// registration queued behind a create sees its player id.
	e.regMu.Lock()
	defer e.regMu.Unlock()
	current := e.Identity()
	body := e.registrationBody(current, token)

	playerID, existing := current.Player()
	if existing {
		if _, err := e.requester.Do(ctx, http.MethodPut, transport.PlayerPath(playerID), body); err != nil {
			e.logger.Error("Player update failed", "player_id", playerID, "err", err)
			return "", err
		}
	} else {
		resp, err := e.requester.Do(ctx, http.MethodPost, transport.PlayersPath(), body)
		if err != nil {
			e.logger.Error("Player create failed", "err", err)
			return "", err
		}
		id, _ := resp["id"].(string)
		if id == "" {
			return "", &push.Error{Kind: push.KindSerialization, Message: "registration response has no player id"}
		}
		playerID = id
	}

	// 3. Persist before publishing so a restart never loses the id
	updated := current
	updated.PlayerID = playerID
	updated.DeviceToken = token
	if err := e.store.Save(ctx, updated); err != nil {
		return "", fmt.Errorf("failed to persist identity: %w", err)
	}

	// 4. Publish
	e.mu.Lock()
	e.identity = updated
	observers := append([]func(push.Identity){}, e.observers...)
	e.mu.Unlock()
	e.markReady()

	e.logger.Info("Registered device", "player_id", playerID, "created", !existing)
	for _, fn := range observers {
		fn(updated)
	}
	return playerID, nil
}

func (e *Engine) registrationBody(identity push.Identity, token string) map[string]any {
	_, offset := e.now().Zone()
	return map[string]any{
		"app_id":       e.cfg.AppID,
		"identifier":   token,
		"device_type":  int(e.cfg.DeviceType),
		"ad_id":        identity.InstallationID,
		"game_version": e.cfg.GameVersion,
		"language":     e.cfg.Language,
		"timezone":     offset,
		"sdk":          transport.SDKVersion,
	}
}

func (e *Engine) markReady() {
	e.readyOnce.Do(func() { close(e.ready) })
}
