package push

import (
	"maps"
	"sync"
)

// DeviceType is the numeric platform code the service expects in registrations.
type DeviceType int

const (
	DeviceTypeIOS     DeviceType = 0
	DeviceTypeAndroid DeviceType = 1
	DeviceTypeWeb     DeviceType = 5
)

// ParseDeviceType maps a config name ("ios", "android", "web") to its DeviceType.
func ParseDeviceType(name string) (DeviceType, bool) {
	switch name {
	case "ios", "iOS", "IOS":
		return DeviceTypeIOS, true
	case "android", "Android":
		return DeviceTypeAndroid, true
	case "web", "Web":
		return DeviceTypeWeb, true
	default:
		return 0, false
	}
}

func (d DeviceType) String() string {
	switch d {
	case DeviceTypeIOS:
		return "ios"
	case DeviceTypeAndroid:
		return "android"
	case DeviceTypeWeb:
		return "web"
	default:
		return "unknown"
	}
}

// Identity is the persisted installation identity.
// PlayerID and DeviceToken are empty until the service / platform has supplied them.
type Identity struct {
	AppID          string `json:"app_id" firestore:"app_id" db:"app_id"`
	PlayerID       string `json:"player_id,omitempty" firestore:"player_id,omitempty" db:"player_id"`
	DeviceToken    string `json:"device_token,omitempty" firestore:"device_token,omitempty" db:"device_token"`
	InstallationID string `json:"installation_id,omitempty" firestore:"installation_id,omitempty" db:"installation_id"`
}

// Player returns the player id and whether one has been assigned.
func (i Identity) Player() (string, bool) {
	return i.PlayerID, i.PlayerID != ""
}

// Token returns the device token and whether one is known.
func (i Identity) Token() (string, bool) {
	return i.DeviceToken, i.DeviceToken != ""
}

// NotificationPayload is the parsed content of an opened notification.
type NotificationPayload struct {
	NotificationID string
	Message        string
	additionalData map[string]any
}

// NewNotificationPayload copies data so the payload cannot be mutated after construction.
func NewNotificationPayload(id, message string, data map[string]any) NotificationPayload {
	return NotificationPayload{
		NotificationID: id,
		Message:        message,
		additionalData: maps.Clone(data),
	}
}

// AdditionalData returns a shallow copy of the custom key/values sent with the notification.
func (p NotificationPayload) AdditionalData() map[string]any {
	if p.additionalData == nil {
		return nil
	}
	return maps.Clone(p.additionalData)
}

// Result is the outcome of an asynchronous operation: a value or an error, never both.
type Result[T any] struct {
	Value T
	Err   error
}

// OK reports whether the result carries a value.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Callbacks is an optional success/failure pair. For every operation exactly one of
// the two is invoked, exactly once. Nil members are skipped.
type Callbacks[T any] struct {
	OnSuccess func(T)
	OnFailure func(error)
}

// Complete invokes the matching callback for r.
func (c Callbacks[T]) Complete(r Result[T]) {
	if r.Err != nil {
		if c.OnFailure != nil {
			c.OnFailure(r.Err)
		}
		return
	}
	if c.OnSuccess != nil {
		c.OnSuccess(r.Value)
	}
}

// Once wraps c so that repeated Complete calls after the first are ignored.
func (c Callbacks[T]) Once() Callbacks[T] {
	var once sync.Once
	return Callbacks[T]{
		OnSuccess: func(v T) { once.Do(func() { c.Complete(Result[T]{Value: v}) }) },
		OnFailure: func(err error) { once.Do(func() { c.Complete(Result[T]{Err: err}) }) },
	}
}

// IdsAvailableFunc receives the player id and push token once both are known.
type IdsAvailableFunc func(playerID, pushToken string)
