package transport

import (
	"fmt"
	"net/url"
)

// Paths of the GameThrive REST surface, relative to the base URL.

func PlayersPath() string {
	return "players"
}

func PlayerPath(playerID string) string {
	return fmt.Sprintf("players/%s", url.PathEscape(playerID))
}

func PurchasePath(playerID string) string {
	return fmt.Sprintf("players/%s/on_purchase", url.PathEscape(playerID))
}

func SessionPath(playerID string) string {
	return fmt.Sprintf("players/%s/on_session", url.PathEscape(playerID))
}

// NotificationOpenPath falls back to notifications/open when the id is unknown.
func NotificationOpenPath(notificationID string) string {
	if notificationID == "" {
		return "notifications/open"
	}
	return fmt.Sprintf("notifications/%s/open", url.PathEscape(notificationID))
}
