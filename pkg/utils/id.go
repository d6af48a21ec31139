package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateSessionID generates a unique session ID.
func GenerateSessionID() string {
	return GenerateID("session")
}

// GenerateRelayID mints a fresh cloud-relay identifier.
func GenerateRelayID() string {
	return GenerateID("relay")
}

// GenerateHandshakeNonce generates the random identifier placed in a
// handshake payload.
func GenerateHandshakeNonce() string {
	return uuid.NewString()
}

// GenerateID generates a prefixed unique identifier.
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}

// Timestamp returns the current time in unix milliseconds, the unit
// used in handshake payloads.
func Timestamp() int64 {
	return time.Now().UnixMilli()
}
