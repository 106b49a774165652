// Package notification turns a received push payload into a push.NotificationPayload.
//
// Three shapes are accepted:
//
//	flat:    {"contents": "Hi", "data": {...}, "id": "N1"}
//	iOS:     {"aps": {"alert": "Hi" | {"body": "Hi"}}, "custom": {"i": "N1", "a": {...}}}
//	Android: {"alert": "Hi", "custom": "{\"i\":\"N1\",\"a\":{...}}"}
package notification

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/CristianMarastoni/GameThrive-Unity-SDK/pkg/push"
)

// ParseJSON decodes raw and parses it.
func ParseJSON(raw []byte) (push.NotificationPayload, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return push.NotificationPayload{}, serializationError("notification is not a JSON object", err)
	}
	return Parse(obj)
}

// Parse extracts id, message and additional data from a decoded payload.
func Parse(raw map[string]any) (push.NotificationPayload, error) {
	if raw == nil {
		return push.NotificationPayload{}, serializationError("empty notification", nil)
	}

	// 1. GameThrive envelope (iOS object or Android string)
	if custom, ok := raw["custom"]; ok {
		env, err := decodeCustom(custom)
		if err != nil {
			return push.NotificationPayload{}, err
		}
		message := alertText(raw["alert"])
		if aps, ok := raw["aps"].(map[string]any); ok {
			message = alertText(aps["alert"])
		}
		id, _ := env["i"].(string)
		data, _ := env["a"].(map[string]any)
		return push.NewNotificationPayload(id, message, data), nil
	}

	// 2. Flat form
	id, _ := raw["id"].(string)
	data, ok := raw["data"].(map[string]any)
	if !ok && raw["data"] != nil {
		return push.NotificationPayload{}, serializationError(fmt.Sprintf("data is %T, not an object", raw["data"]), nil)
	}
	return push.NewNotificationPayload(id, contentsText(raw["contents"]), data), nil
}

func decodeCustom(custom any) (map[string]any, error) {
	switch c := custom.(type) {
	case map[string]any:
		return c, nil
	case string:
		var env map[string]any
		if err := json.Unmarshal([]byte(c), &env); err != nil {
			return nil, serializationError("custom field is not valid JSON", err)
		}
		return env, nil
	default:
		return nil, serializationError(fmt.Sprintf("custom is %T", custom), nil)
	}
}

// alertText accepts "Hi" or {"body": "Hi", "title": ...}.
func alertText(alert any) string {
	switch a := alert.(type) {
	case string:
		return a
	case map[string]any:
		body, _ := a["body"].(string)
		return body
	default:
		return ""
	}
}

// contentsText accepts "Hi" or a language map {"en": "Hi", ...}, preferring English.
func contentsText(contents any) string {
	switch c := contents.(type) {
	case string:
		return c
	case map[string]any:
		if en, ok := c["en"].(string); ok {
			return en
		}
		for _, lang := range slices.Sorted(maps.Keys(c)) {
			if s, ok := c[lang].(string); ok {
				return s
			}
		}
	}
	return ""
}

func serializationError(msg string, err error) error {
	return &push.Error{Kind: push.KindSerialization, Message: msg, Err: err}
}
