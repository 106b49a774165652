package gamethrive

import "sync/atomic"

var defaultClient atomic.Pointer[Client]

// SetDefaultClient installs c as the process-wide client. The last call wins.
func SetDefaultClient(c *Client) {
	defaultClient.Store(c)
}

// DefaultClient returns the process-wide client, or nil if none has been set.
func DefaultClient() *Client {
	return defaultClient.Load()
}
