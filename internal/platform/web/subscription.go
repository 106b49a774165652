// Package web turns a browser Push API subscription into a registration token.
package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/CristianMarastoni/GameThrive-Unity-SDK/pkg/push"
)

// p256dh keys are uncompressed P-256 points.
const p256dhLen = 65

// SubscriptionFunc returns the browser's current push subscription.
type SubscriptionFunc func(ctx context.Context) (*webpush.Subscription, error)

// TokenSource serialises the subscription as JSON, which is the web "device token".
type TokenSource struct {
	fetch SubscriptionFunc
}

var _ push.TokenSource = (*TokenSource)(nil)

func NewTokenSource(fetch SubscriptionFunc) *TokenSource {
	return &TokenSource{fetch: fetch}
}

// NewFileTokenSource reads a subscription JSON file (as produced by PushSubscription.toJSON()).
func NewFileTokenSource(path string) *TokenSource {
	return NewTokenSource(func(context.Context) (*webpush.Subscription, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", push.ErrTokenSourceUnavailable, err)
		}
		return ParseSubscription(data)
	})
}

func (s *TokenSource) Token(ctx context.Context) (string, error) {
	sub, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return "", push.ErrTokenSourceUnavailable
	}
	if err := Validate(sub); err != nil {
		return "", err
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return "", fmt.Errorf("failed to encode subscription: %w", err)
	}
	return string(data), nil
}

// ParseSubscription decodes and validates subscription JSON.
func ParseSubscription(data []byte) (*webpush.Subscription, error) {
	var sub webpush.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("%w: malformed subscription: %v", push.ErrTokenSourceUnavailable, err)
	}
	if err := Validate(&sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Validate checks the endpoint is an https URL and both keys decode to sane lengths.
func Validate(sub *webpush.Subscription) error {
	u, err := url.Parse(sub.Endpoint)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%w: subscription endpoint %q is not an https URL", push.ErrTokenSourceUnavailable, sub.Endpoint)
	}

	p256dh, err := decodeKey(sub.Keys.P256dh)
	if err != nil || len(p256dh) != p256dhLen {
		return fmt.Errorf("%w: invalid p256dh key", push.ErrTokenSourceUnavailable)
	}
	auth, err := decodeKey(sub.Keys.Auth)
	if err != nil || len(auth) == 0 {
		return fmt.Errorf("%w: invalid auth secret", push.ErrTokenSourceUnavailable)
	}
	return nil
}

// Browsers emit unpadded base64url, but padded and standard encodings turn up too.
func decodeKey(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.StdEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("key is not base64")
}
