package gamethrive_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CristianMarastoni/GameThrive-Unity-SDK/gamethrive"
	"github.com/CristianMarastoni/GameThrive-Unity-SDK/gamethrive/config"
	"github.com/CristianMarastoni/GameThrive-Unity-SDK/internal/api"
	"github.com/CristianMarastoni/GameThrive-Unity-SDK/internal/storage/memory"
	"github.com/CristianMarastoni/GameThrive-Unity-SDK/pkg/push"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	svc    *api.PlayerAPI
	store  *memory.Store
	cfg    *config.Config
	client *gamethrive.Client
}

func newHarness(t *testing.T, tokens push.TokenSource, autoRegister bool) *harness {
	t.Helper()
	logger := newTestLogger()

	svc := api.NewPlayerAPI("", logger)
	server := httptest.NewServer(api.NewRouter(svc))
	t.Cleanup(server.Close)

	cfg := &config.Config{
		AppID:          "X",
		APIURL:         server.URL + "/api/v1/",
		AutoRegister:   autoRegister,
		DeviceType:     push.DeviceTypeAndroid,
		GameVersion:    "1.0.0",
		Language:       "en",
		TagFlushDelay:  20 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
	}
	store := memory.New()

	client, err := gamethrive.New(cfg, tokens, store, server.Client(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return &harness{svc: svc, store: store, cfg: cfg, client: client}
}

// await turns a callback pair into a channel of its single result.
func await[T any]() (push.Callbacks[T], <-chan push.Result[T]) {
	ch := make(chan push.Result[T], 2)
	return push.Callbacks[T]{
		OnSuccess: func(v T) { ch <- push.Result[T]{Value: v} },
		OnFailure: func(err error) { ch <- push.Result[T]{Err: err} },
	}, ch
}

func receive[T any](t *testing.T, ch <-chan push.Result[T]) push.Result[T] {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for callback")
		return push.Result[T]{}
	}
}

func TestClient_AutoRegisterAndIdsAvailable(t *testing.T) {
	h := newHarness(t, push.StaticToken("tok123"), true)

	type ids struct{ player, token string }
	got := make(chan ids, 2)
	h.client.IdsAvailable(func(playerID, pushToken string) {
		got <- ids{playerID, pushToken}
	})

	var first ids
	select {
	case first = <-got:
	case <-time.After(3 * time.Second):
		t.Fatal("IdsAvailable never fired")
	}
	assert.NotEmpty(t, first.player)
	assert.Equal(t, "tok123", first.token)

	player, ok := h.svc.Player(first.player)
	require.True(t, ok)
	assert.Equal(t, "X", player.AppID)
	assert.Equal(t, "tok123", player.Identifier)
	assert.Equal(t, int(push.DeviceTypeAndroid), player.DeviceType)

	stored, err := h.store.Load(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, first.player, stored.PlayerID)
	assert.Equal(t, "tok123", stored.DeviceToken)
	assert.NotEmpty(t, stored.InstallationID)

	// A second registration updates the same player and does not re-fire
	cb, ch := await[string]()
	h.client.RegisterForPushNotifications(cb)
	r := receive(t, ch)
	require.NoError(t, r.Err)
	assert.Equal(t, first.player, r.Value)
	assert.Equal(t, 1, h.svc.Count(api.RouteCreatePlayer))

	select {
	case extra := <-got:
		t.Fatalf("IdsAvailable fired twice: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClient_TokenFailureSkipsRegistration(t *testing.T) {
	failing := push.TokenSourceFunc(func(context.Context) (string, error) {
		return "", push.ErrPermissionDenied
	})
	h := newHarness(t, failing, false)

	fired := make(chan struct{}, 1)
	h.client.IdsAvailable(func(string, string) { fired <- struct{}{} })

	cb, ch := await[string]()
	h.client.RegisterForPushNotifications(cb)
	r := receive(t, ch)

	assert.ErrorIs(t, r.Err, push.ErrTokenUnavailable)
	assert.ErrorIs(t, r.Err, push.ErrPermissionDenied)
	assert.Equal(t, 0, h.svc.Count(api.RouteCreatePlayer))
	_, ok := h.client.PlayerID()
	assert.False(t, ok)

	select {
	case <-fired:
		t.Fatal("IdsAvailable fired without a token")
	case <-time.After(50 * time.Millisecond):
	}
}

// register completes one explicit registration and returns the player id.
func register(t *testing.T, c *gamethrive.Client) string {
	t.Helper()
	cb, ch := await[string]()
	c.RegisterForPushNotifications(cb)
	r := receive(t, ch)
	require.NoError(t, r.Err)
	return r.Value
}

func TestClient_TagsCoalesceIntoOneUpdate(t *testing.T) {
	h := newHarness(t, push.StaticToken("tok123"), false)
	register(t, h.client)

	first, ch1 := await[map[string]string]()
	second, ch2 := await[map[string]string]()
	h.client.SendTag("level", "5", first)
	h.client.SendTag("level", "6", second)

	r1, r2 := receive(t, ch1), receive(t, ch2)
	require.NoError(t, r1.Err)
	require.NoError(t, r2.Err)
	assert.Equal(t, map[string]string{"level": "6"}, r2.Value)
	assert.Equal(t, 1, h.svc.Count(api.RouteUpdatePlayer))

	get, ch := await[map[string]string]()
	h.client.GetTags(get)
	r := receive(t, ch)
	require.NoError(t, r.Err)
	assert.Equal(t, map[string]string{"level": "6"}, r.Value)

	// Delete then read back
	del, delCh := await[[]string]()
	h.client.DeleteTag("level", del)
	require.NoError(t, receive(t, delCh).Err)

	get, ch = await[map[string]string]()
	h.client.GetTags(get)
	r = receive(t, ch)
	require.NoError(t, r.Err)
	assert.Empty(t, r.Value)
}

func TestClient_TagsBufferedUntilRegistered(t *testing.T) {
	h := newHarness(t, push.StaticToken("tok123"), false)

	sent, sentCh := await[map[string]string]()
	h.client.SendTags(map[string]string{"a": "1", "b": "2"}, sent)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, h.svc.Count(api.RouteUpdatePlayer))

	playerID := register(t, h.client)
	require.NoError(t, receive(t, sentCh).Err)

	player, ok := h.svc.Player(playerID)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, player.Tags)
}

func TestClient_GetTagsIgnoresPendingWrites(t *testing.T) {
	h := newHarness(t, push.StaticToken("tok123"), false)
	h.cfg.TagFlushDelay = time.Hour
	client, err := gamethrive.New(h.cfg, push.StaticToken("tok123"), h.store, nil, newTestLogger())
	require.NoError(t, err)
	defer client.Close()
	register(t, client)

	client.SendTag("a", "1", push.Callbacks[map[string]string]{})
	require.NoError(t, client.Flush(context.Background()))
	client.SendTag("a", "2", push.Callbacks[map[string]string]{})

	get, getCh := await[map[string]string]()
	client.GetTags(get)
	r := receive(t, getCh)
	require.NoError(t, r.Err)
	assert.Equal(t, map[string]string{"a": "1"}, r.Value)

	require.NoError(t, client.Flush(context.Background()))

	get, getCh = await[map[string]string]()
	client.GetTags(get)
	r = receive(t, getCh)
	require.NoError(t, r.Err)
	assert.Equal(t, map[string]string{"a": "2"}, r.Value)
}

func TestClient_SendPurchase(t *testing.T) {
	h := newHarness(t, push.StaticToken("tok123"), true)

	cb, ch := await[map[string]any]()
	h.client.SendPurchase(4.99, cb)
	require.NoError(t, receive(t, ch).Err)

	playerID, ok := h.client.PlayerID()
	require.True(t, ok)
	player, ok := h.svc.Player(playerID)
	require.True(t, ok)
	assert.InDelta(t, 4.99, player.AmountSpent, 0.0001)
}

func TestClient_NotificationOpened(t *testing.T) {
	h := newHarness(t, push.StaticToken("tok123"), true)

	cb, ch := await[push.NotificationPayload]()
	h.client.NotificationOpened(map[string]any{
		"id":       "n-42",
		"contents": "Hi",
		"data":     map[string]any{"foo": "bar"},
	}, cb)

	// The payload is available before the report completes
	assert.Equal(t, "Hi", h.client.MessageString())
	assert.Equal(t, map[string]any{"foo": "bar"}, h.client.AdditionalData())

	r := receive(t, ch)
	require.NoError(t, r.Err)
	assert.Equal(t, "n-42", r.Value.NotificationID)

	playerID, _ := h.client.PlayerID()
	opens := h.svc.Opens()
	require.Len(t, opens, 1)
	assert.Equal(t, "n-42", opens[0].NotificationID)
	assert.Equal(t, playerID, opens[0].PlayerID)
	assert.Equal(t, "X", opens[0].AppID)
}

func TestClient_NotificationOpenedMalformed(t *testing.T) {
	h := newHarness(t, push.StaticToken("tok123"), false)

	cb, ch := await[push.NotificationPayload]()
	h.client.NotificationOpenedJSON([]byte(`{not json`), cb)

	r := receive(t, ch)
	assert.ErrorIs(t, r.Err, push.ErrSerialization)
	assert.Empty(t, h.client.MessageString())
	assert.Nil(t, h.client.AdditionalData())
}

func TestClient_ServiceFailureIsReported(t *testing.T) {
	h := newHarness(t, push.StaticToken("tok123"), false)
	h.svc.FailNext(api.RouteCreatePlayer, 500)

	cb, ch := await[string]()
	h.client.RegisterForPushNotifications(cb)
	r := receive(t, ch)
	assert.ErrorIs(t, r.Err, push.ErrService)
	_, ok := h.client.PlayerID()
	assert.False(t, ok)

	// A retry succeeds
	cb, ch = await[string]()
	h.client.RegisterForPushNotifications(cb)
	r = receive(t, ch)
	require.NoError(t, r.Err)
	assert.NotEmpty(t, r.Value)
}

func TestClient_CloseCompletesPendingOperations(t *testing.T) {
	h := newHarness(t, push.StaticToken("tok123"), false)

	// Without registration the purchase waits for a player id
	cb, ch := await[map[string]any]()
	h.client.SendPurchase(1, cb)
	tagCb, tagCh := await[map[string]string]()
	h.client.SendTag("a", "1", tagCb)

	require.NoError(t, h.client.Close())
	require.NoError(t, h.client.Close())

	assert.ErrorIs(t, receive(t, ch).Err, push.ErrClientClosed)
	assert.ErrorIs(t, receive(t, tagCh).Err, push.ErrClientClosed)

	after, afterCh := await[string]()
	h.client.RegisterForPushNotifications(after)
	assert.ErrorIs(t, receive(t, afterCh).Err, push.ErrClientClosed)
	assert.Equal(t, 0, h.svc.Count(api.RoutePurchase))
}

func TestClient_CloseFromCallback(t *testing.T) {
	h := newHarness(t, push.StaticToken("tok123"), false)

	closed := make(chan error, 1)
	h.client.RegisterForPushNotifications(push.Callbacks[string]{
		OnSuccess: func(string) { closed <- h.client.Close() },
		OnFailure: func(error) { closed <- h.client.Close() },
	})

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Close inside a callback did not return")
	}

	after, afterCh := await[map[string]any]()
	h.client.SendPurchase(1, after)
	assert.ErrorIs(t, receive(t, afterCh).Err, push.ErrClientClosed)
}

func TestClient_ZeroFlushDelayStillCoalesces(t *testing.T) {
	h := newHarness(t, push.StaticToken("tok123"), false)
	h.cfg.TagFlushDelay = 0
	client, err := gamethrive.New(h.cfg, push.StaticToken("tok123"), h.store, nil, newTestLogger())
	require.NoError(t, err)
	defer client.Close()
	register(t, client)

	first, ch1 := await[map[string]string]()
	second, ch2 := await[map[string]string]()
	client.SendTag("a", "1", first)
	client.SendTag("b", "2", second)

	require.NoError(t, receive(t, ch1).Err)
	require.NoError(t, receive(t, ch2).Err)
	assert.Equal(t, 1, h.svc.Count(api.RouteUpdatePlayer))
}

func TestClient_ExactlyOnceCallbacks(t *testing.T) {
	h := newHarness(t, push.StaticToken("tok123"), true)

	cb, ch := await[string]()
	h.client.RegisterForPushNotifications(cb)
	require.NoError(t, receive(t, ch).Err)
	_ = h.client.Close()

	select {
	case extra := <-ch:
		t.Fatalf("callback ran twice: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDefaultClient(t *testing.T) {
	h := newHarness(t, push.StaticToken("tok123"), false)
	t.Cleanup(func() { gamethrive.SetDefaultClient(nil) })

	assert.Nil(t, gamethrive.DefaultClient())
	gamethrive.SetDefaultClient(h.client)
	assert.Same(t, h.client, gamethrive.DefaultClient())
}
