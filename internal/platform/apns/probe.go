package apns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/CristianMarastoni/GameThrive-Unity-SDK/pkg/push"
)

// APNSClient defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type APNSClient interface {
	Push(n *apns2.Notification) (*apns2.Response, error)
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw string content of the .p8 file
	P8KeyContent string
	Sandbox      bool
}

// Prober checks a device token by sending it a silent background push.
type Prober struct {
	client APNSClient
	topic  string
	logger *slog.Logger
}

// NewProber parses the P8 key immediately to fail fast on bad credentials.
func NewProber(cfg Config, logger *slog.Logger) (*Prober, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Sandbox {
		client = client.Development()
	} else {
		client = client.Production()
	}
	return NewProberWithClient(client, cfg.BundleID, logger), nil
}

func NewProberWithClient(client APNSClient, bundleID string, logger *slog.Logger) *Prober {
	return &Prober{
		client: client,
		topic:  bundleID,
		logger: logger.With("component", "APNSProber"),
	}
}

// Probe reports push.ErrTokenSourceUnavailable when APNs says the token is dead.
// Transport failures and configuration rejections are logged and do not fail the token.
func (p *Prober) Probe(_ context.Context, deviceToken string) error {
	n := &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       p.topic,
		PushType:    apns2.PushTypeBackground,
		Priority:    apns2.PriorityLow,
		Payload:     payload.NewPayload().ContentAvailable(),
	}

	res, err := p.client.Push(n)
	if err != nil {
		p.logger.Warn("APNs probe transport failed, keeping token", "err", err)
		return nil
	}
	if res.Sent() {
		return nil
	}

	switch res.Reason {
	case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
		return fmt.Errorf("%w: apns rejected token: %s", push.ErrTokenSourceUnavailable, res.Reason)
	default:
		p.logger.Warn("APNs probe rejected", "reason", res.Reason, "status", res.StatusCode)
		return nil
	}
}

// ValidatingTokenSource probes every token from upstream before handing it out.
type ValidatingTokenSource struct {
	upstream push.TokenSource
	prober   *Prober
}

func NewValidatingTokenSource(upstream push.TokenSource, prober *Prober) *ValidatingTokenSource {
	return &ValidatingTokenSource{upstream: upstream, prober: prober}
}

func (s *ValidatingTokenSource) Token(ctx context.Context) (string, error) {
	tok, err := s.upstream.Token(ctx)
	if err != nil {
		return "", err
	}
	if err := s.prober.Probe(ctx, tok); err != nil {
		return "", err
	}
	return tok, nil
}
