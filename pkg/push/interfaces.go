// Package push contains the public contracts and domain models shared by the
// GameThrive device client and its pluggable collaborators.
package push

import (
	"context"
)

// TokenSource abstracts the host platform's push-token mechanism (APNs, FCM, Web Push).
// Implementations may block until the platform answers and should fail with
// ErrPermissionDenied or ErrTokenSourceUnavailable.
type TokenSource interface {
	// Token returns the device push token for this installation.
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts an ordinary function to a TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

// Token calls f(ctx).
func (f TokenSourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (s StaticToken) Token(_ context.Context) (string, error) {
	if s == "" {
		return "", ErrTokenSourceUnavailable
	}
	return string(s), nil
}

// IdentityStore persists the installation identity across process restarts.
// There is one identity per application id.
type IdentityStore interface {
	// Load returns the persisted identity, or ErrIdentityNotFound.
	Load(ctx context.Context, appID string) (*Identity, error)

	// Save upserts the identity keyed by its AppID.
	Save(ctx context.Context, identity Identity) error

	// Clear removes the persisted identity (app reset).
	Clear(ctx context.Context, appID string) error
}

// Requester is the transport capability the engines depend on.
type Requester interface {
	// Do sends body as JSON and returns the decoded response object.
	// Errors are *Error values classified by Kind.
	Do(ctx context.Context, method, path string, body any) (map[string]any, error)
}
