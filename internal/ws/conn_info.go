package ws

import "time"

// ConnInfo carries identity and diagnostics for a registered feed connection.
type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
