// Package apns adapts iOS device tokens for registration and optionally probes them against APNs.
package apns

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/CristianMarastoni/GameThrive-Unity-SDK/pkg/push"
)

// DeviceTokenFunc returns the raw device token bytes handed to the app by the OS.
type DeviceTokenFunc func(ctx context.Context) ([]byte, error)

// TokenSource hex-encodes the OS-provided token bytes.
type TokenSource struct {
	fetch DeviceTokenFunc
}

var _ push.TokenSource = (*TokenSource)(nil)

func NewTokenSource(fetch DeviceTokenFunc) *TokenSource {
	return &TokenSource{fetch: fetch}
}

func (s *TokenSource) Token(ctx context.Context) (string, error) {
	raw, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", push.ErrTokenSourceUnavailable
	}
	return FormatDeviceToken(raw), nil
}

// FormatDeviceToken renders token bytes as lowercase hex, the form APNs expects.
func FormatDeviceToken(raw []byte) string {
	return hex.EncodeToString(raw)
}

// NormalizeToken accepts a hex token in any of the forms iOS has printed over the years
// ("<abcd 1234>", upper case, spaced) and returns it as lowercase hex.
func NormalizeToken(token string) (string, error) {
	cleaned := strings.NewReplacer("<", "", ">", "", " ", "").Replace(token)
	cleaned = strings.ToLower(cleaned)
	if cleaned == "" {
		return "", push.ErrTokenSourceUnavailable
	}
	if _, err := hex.DecodeString(cleaned); err != nil {
		return "", fmt.Errorf("%w: device token is not hex: %v", push.ErrTokenSourceUnavailable, err)
	}
	return cleaned, nil
}

// ParseDeviceToken turns a printed token (any form NormalizeToken accepts) back into
// the raw bytes the OS hands to the app.
func ParseDeviceToken(token string) ([]byte, error) {
	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(normalized)
}
