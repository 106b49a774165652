// Package gamethrive is the entry point of the GameThrive device client.
//
// A Client owns one registration engine and one tag synchronizer. Every
// operation that talks to the service returns immediately and reports its
// outcome through an optional push.Callbacks pair; exactly one of the two
// callbacks runs, exactly once.
package gamethrive

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"sync"

	"github.com/CristianMarastoni/GameThrive-Unity-SDK/gamethrive/config"
	"github.com/CristianMarastoni/GameThrive-Unity-SDK/internal/notification"
	"github.com/CristianMarastoni/GameThrive-Unity-SDK/internal/registration"
	"github.com/CristianMarastoni/GameThrive-Unity-SDK/internal/tags"
	"github.com/CristianMarastoni/GameThrive-Unity-SDK/internal/transport"
	"github.com/CristianMarastoni/GameThrive-Unity-SDK/pkg/push"
)

// Client is safe for concurrent use.
type Client struct {
	cfg       *config.Config
	requester push.Requester
	engine    *registration.Engine
	tags      *tags.Synchronizer
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
	latest  *push.NotificationPayload
}

// New assembles the client. A nil httpClient gets a default one bounded by cfg.RequestTimeout.
// With cfg.AutoRegister the first registration starts immediately.
func New(
	cfg *config.Config,
	tokens push.TokenSource,
	store push.IdentityStore,
	httpClient *http.Client,
	logger *slog.Logger,
) (*Client, error) {
	requester := transport.NewClient(transport.Config{
		BaseURL:    cfg.APIURL,
		AppID:      cfg.AppID,
		RESTAPIKey: cfg.RESTAPIKey,
		Timeout:    cfg.RequestTimeout,
	}, httpClient, logger)

	return newClient(cfg, requester, tokens, store, logger)
}

func newClient(
	cfg *config.Config,
	requester push.Requester,
	tokens push.TokenSource,
	store push.IdentityStore,
	logger *slog.Logger,
) (*Client, error) {
	ctx, cancel := context.WithCancel(context.Background())

	// 1. Registration Engine (loads the persisted identity)
	engine, err := registration.New(ctx, registration.Config{
		AppID:       cfg.AppID,
		DeviceType:  cfg.DeviceType,
		GameVersion: cfg.GameVersion,
		Language:    cfg.Language,
	}, requester, tokens, store, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialise identity: %w", err)
	}

	// 2. Tag Synchronizer, released whenever a player id is known
	flushDelay := cfg.TagFlushDelay
	if flushDelay <= 0 {
		flushDelay = config.DefaultTagFlushDelay
	}
	tagSync := tags.New(ctx, cfg.AppID, requester, flushDelay, logger)
	engine.OnIdentity(func(id push.Identity) {
		tagSync.SetPlayerID(id.PlayerID)
	})

	c := &Client{
		cfg:       cfg,
		requester: requester,
		engine:    engine,
		tags:      tagSync,
		logger:    logger.With("component", "GameThriveClient", "app_id", cfg.AppID),
		ctx:       ctx,
		cancel:    cancel,
	}

	// 3. Auto registration
	if cfg.AutoRegister {
		c.RegisterForPushNotifications(push.Callbacks[string]{
			OnFailure: func(err error) {
				c.logger.Warn("Automatic registration failed", "err", err, "retryable", push.Retryable(err))
			},
		})
	}

	c.logger.Info("Client ready", "auto_register", cfg.AutoRegister, "device_type", cfg.DeviceType.String())
	return c, nil
}

// --- Registration ---

// RegisterForPushNotifications acquires a push token and registers this device.
// OnSuccess receives the player id.
func (c *Client) RegisterForPushNotifications(cb push.Callbacks[string]) {
	run(c, cb, c.engine.Register)
}

// RegisterDeviceToken registers a token the caller obtained itself.
func (c *Client) RegisterDeviceToken(token string, cb push.Callbacks[string]) {
	run(c, cb, func(ctx context.Context) (string, error) {
		return c.engine.RegisterToken(ctx, token)
	})
}

// IdsAvailable calls fn once, on its own goroutine, as soon as both the player id and
// the push token are known. It is never called if token acquisition fails.
func (c *Client) IdsAvailable(fn push.IdsAvailableFunc) {
	var once sync.Once
	c.engine.OnIdentity(func(id push.Identity) {
		playerID, hasPlayer := id.Player()
		token, hasToken := id.Token()
		if !hasPlayer || !hasToken {
			return
		}
		once.Do(func() { go fn(playerID, token) })
	})
}

// OnFocus reports an app lifecycle transition ("resume", "focus", ...).
// Failures are logged.
func (c *Client) OnFocus(state string) {
	c.ReportFocus(state, push.Callbacks[struct{}]{
		OnFailure: func(err error) {
			c.logger.Warn("Focus update failed", "state", state, "err", err)
		},
	})
}

// ReportFocus is OnFocus with an outcome. Before registration it succeeds without sending.
func (c *Client) ReportFocus(state string, cb push.Callbacks[struct{}]) {
	run(c, cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.engine.OnFocus(ctx, state)
	})
}

// PlayerID returns the assigned player id, if any.
func (c *Client) PlayerID() (string, bool) {
	return c.engine.Identity().Player()
}

// DeviceToken returns the last registered push token, if any.
func (c *Client) DeviceToken() (string, bool) {
	return c.engine.Identity().Token()
}

// Identity returns a snapshot of the persisted identity.
func (c *Client) Identity() push.Identity {
	return c.engine.Identity()
}

// --- Tags ---

// SendTag sets one tag. See SendTags.
func (c *Client) SendTag(key, value string, cb push.Callbacks[map[string]string]) {
	c.SendTags(map[string]string{key: value}, cb)
}

// SendTags merges tagSet into the player's tags. Calls made before the batch is flushed
// coalesce; OnSuccess receives tagSet once the batch carrying it is acknowledged.
func (c *Client) SendTags(tagSet map[string]string, cb push.Callbacks[map[string]string]) {
	sent := maps.Clone(tagSet)
	cb = cb.Once()
	c.tags.Send(sent, func(err error) {
		cb.Complete(push.Result[map[string]string]{Value: sent, Err: c.closedErr(err)})
	})
}

// DeleteTag removes one tag. See DeleteTags.
func (c *Client) DeleteTag(key string, cb push.Callbacks[[]string]) {
	c.DeleteTags([]string{key}, cb)
}

// DeleteTags removes keys from the player's tags.
func (c *Client) DeleteTags(keys []string, cb push.Callbacks[[]string]) {
	deleted := append([]string(nil), keys...)
	cb = cb.Once()
	c.tags.Delete(deleted, func(err error) {
		cb.Complete(push.Result[[]string]{Value: deleted, Err: c.closedErr(err)})
	})
}

// GetTags fetches the tags the service has committed. Writes still pending locally
// are not reflected.
func (c *Client) GetTags(cb push.Callbacks[map[string]string]) {
	run(c, cb, func(ctx context.Context) (map[string]string, error) {
		if _, err := c.engine.WaitPlayerID(ctx); err != nil {
			return nil, err
		}
		return c.tags.Get(ctx)
	})
}

// Flush sends pending tag writes now and waits for the outcome.
func (c *Client) Flush(ctx context.Context) error {
	return c.tags.Flush(ctx)
}

// --- Events ---

// SendPurchase reports a purchase of amount once a player id is available.
func (c *Client) SendPurchase(amount float64, cb push.Callbacks[map[string]any]) {
	run(c, cb, func(ctx context.Context) (map[string]any, error) {
		playerID, err := c.engine.WaitPlayerID(ctx)
		if err != nil {
			return nil, err
		}
		body := map[string]any{"app_id": c.cfg.AppID, "amount": amount}
		return c.requester.Do(ctx, http.MethodPost, transport.PurchasePath(playerID), body)
	})
}

// NotificationOpened parses a received notification, keeps it as the latest one and
// reports the open to the service. OnSuccess receives the parsed payload.
func (c *Client) NotificationOpened(raw map[string]any, cb push.Callbacks[push.NotificationPayload]) {
	payload, err := notification.Parse(raw)
	c.reportOpened(payload, err, cb)
}

// NotificationOpenedJSON is NotificationOpened for an undecoded payload.
func (c *Client) NotificationOpenedJSON(raw []byte, cb push.Callbacks[push.NotificationPayload]) {
	payload, err := notification.ParseJSON(raw)
	c.reportOpened(payload, err, cb)
}

func (c *Client) reportOpened(payload push.NotificationPayload, err error, cb push.Callbacks[push.NotificationPayload]) {
	if err != nil {
		cb.Once().Complete(push.Result[push.NotificationPayload]{Err: err})
		return
	}

	c.mu.Lock()
	c.latest = &payload
	c.mu.Unlock()

	run(c, cb, func(ctx context.Context) (push.NotificationPayload, error) {
		playerID, err := c.engine.WaitPlayerID(ctx)
		if err != nil {
			return payload, err
		}
		body := map[string]any{"app_id": c.cfg.AppID, "player_id": playerID, "opened": true}
		if _, err := c.requester.Do(ctx, http.MethodPost, transport.NotificationOpenPath(payload.NotificationID), body); err != nil {
			return payload, err
		}
		return payload, nil
	})
}

// AdditionalData returns the custom data of the latest opened notification.
func (c *Client) AdditionalData() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return nil
	}
	return c.latest.AdditionalData()
}

// MessageString returns the text of the latest opened notification.
func (c *Client) MessageString() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return ""
	}
	return c.latest.Message
}

// --- Lifecycle ---

// Close cancels outstanding work. Operations still pending complete with
// push.ErrClientClosed. Close waits for their requests to stop, not for their
// callbacks, so it may be called from inside a callback.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.tags.Close()
	c.pending.Wait()
	c.logger.Info("Client closed")
	return nil
}

// run executes op on its own goroutine under the client context and completes cb once.
func run[T any](c *Client, cb push.Callbacks[T], op func(ctx context.Context) (T, error)) {
	cb = cb.Once()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cb.Complete(push.Result[T]{Err: push.ErrClientClosed})
		return
	}
	c.pending.Add(1)
	c.mu.Unlock()

	go func() {
		v, err := op(c.ctx)
		err = c.closedErr(err)
		c.pending.Done()
		cb.Complete(push.Result[T]{Value: v, Err: err})
	}()
}

// closedErr reports failures caused by Close as push.ErrClientClosed.
func (c *Client) closedErr(err error) error {
	if err != nil && c.ctx.Err() != nil {
		return push.ErrClientClosed
	}
	return err
}
