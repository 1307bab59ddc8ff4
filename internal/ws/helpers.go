package ws

import (
	"crypto/rand"
	"encoding/hex"
)

// newConnID mints a random identifier for one feed connection. It only labels
// events and log lines, so a rand failure degrades to a fixed marker rather
// than an error path.
func newConnID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "conn-unknown"
	}
	return hex.EncodeToString(buf[:])
}
