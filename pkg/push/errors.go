package push

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced to callers.
type Kind int

const (
	KindUnknown Kind = iota
	KindTokenUnavailable
	KindNetwork
	KindService
	KindSerialization
)

func (k Kind) String() string {
	switch k {
	case KindTokenUnavailable:
		return "token_unavailable"
	case KindNetwork:
		return "network_failure"
	case KindService:
		return "service_error"
	case KindSerialization:
		return "serialization_error"
	default:
		return "unknown"
	}
}

// Kind sentinels; errors.Is(err, ErrService) matches any *Error of that kind.
var (
	ErrTokenUnavailable = &Error{Kind: KindTokenUnavailable, Message: "push token unavailable"}
	ErrNetwork          = &Error{Kind: KindNetwork, Message: "network failure"}
	ErrService          = &Error{Kind: KindService, Message: "service error"}
	ErrSerialization    = &Error{Kind: KindSerialization, Message: "malformed response"}
)

var (
	// ErrPermissionDenied indicates the user or OS refused push permission.
	ErrPermissionDenied = errors.New("push permission denied")

	// ErrTokenSourceUnavailable indicates the platform could not issue a token.
	ErrTokenSourceUnavailable = errors.New("push token source unavailable")

	// ErrIdentityNotFound is returned by IdentityStore.Load when nothing is persisted.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrAppIDMismatch indicates the configured app id differs from the persisted one.
	ErrAppIDMismatch = errors.New("app id differs from persisted identity")

	// ErrNoPlayerID indicates an operation needs a player id that is not yet assigned.
	ErrNoPlayerID = errors.New("player id not yet available")

	// ErrClientClosed completes operations still pending when the client is closed.
	ErrClientClosed = errors.New("client closed")
)

// Error is a classified failure. StatusCode and RawBody are set for service errors.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	RawBody    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("HTTP %d: %s", e.StatusCode, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// TokenError wraps a token source failure as KindTokenUnavailable.
func TokenError(err error) error {
	var pe *Error
	if errors.As(err, &pe) && pe.Kind == KindTokenUnavailable {
		return err
	}
	return &Error{Kind: KindTokenUnavailable, Message: "could not acquire push token", Err: err}
}

// KindOf returns the Kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// Retryable reports whether err is worth retrying later: a transport-level failure,
// a 5xx or a 429. Nothing inside the client retries on its own.
func Retryable(err error) bool {
	var pe *Error
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Kind {
	case KindNetwork:
		return true
	case KindService:
		return pe.StatusCode >= 500 || pe.StatusCode == 429
	default:
		return false
	}
}
