package realtime

import (
	"time"

	"relay/cmd/identity/ids"
)

// NewSessionID returns a ULID identifying one websocket connection in logs.
// Two connections for the same user id get distinct session ids.
func NewSessionID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
