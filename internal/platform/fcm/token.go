// Package fcm validates Android registration tokens with Firebase Cloud Messaging.
package fcm

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"

	"github.com/CristianMarastoni/GameThrive-Unity-SDK/pkg/push"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// *messaging.Client satisfies it.
type MessagingClient interface {
	SendDryRun(ctx context.Context, message *messaging.Message) (string, error)
}

// NewMessagingClient builds a Firebase messaging client for projectID using
// application default credentials.
func NewMessagingClient(ctx context.Context, projectID string) (*messaging.Client, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create FCM messaging client: %w", err)
	}
	return client, nil
}

// ValidatingTokenSource dry-runs a message to every token from upstream and
// refuses tokens FCM reports as unregistered or malformed.
type ValidatingTokenSource struct {
	upstream push.TokenSource
	client   MessagingClient
	logger   *slog.Logger
}

var _ push.TokenSource = (*ValidatingTokenSource)(nil)

func NewValidatingTokenSource(upstream push.TokenSource, client MessagingClient, logger *slog.Logger) *ValidatingTokenSource {
	return &ValidatingTokenSource{
		upstream: upstream,
		client:   client,
		logger:   logger.With("component", "FCMTokenValidator"),
	}
}

func (s *ValidatingTokenSource) Token(ctx context.Context) (string, error) {
	tok, err := s.upstream.Token(ctx)
	if err != nil {
		return "", err
	}

	msg := &messaging.Message{
		Token: tok,
		Data:  map[string]string{"gamethrive": "validate"},
	}
	if _, err := s.client.SendDryRun(ctx, msg); err != nil {
		if messaging.IsRegistrationTokenNotRegistered(err) || messaging.IsInvalidArgument(err) {
			return "", fmt.Errorf("%w: fcm rejected token: %v", push.ErrTokenSourceUnavailable, err)
		}
		// Auth or network trouble says nothing about the token itself.
		s.logger.Warn("FCM dry run failed, keeping token", "err", err)
	}
	return tok, nil
}
