package domain

import "time"

// AccountEndpoint is a cloud-relay binding for an account. Created on
// first negotiation for that account, refreshed periodically from the
// persisted store, removed only by explicit account removal.
type AccountEndpoint struct {
	AccountID      AccountID
	RelayID        string
	ThroughputMbps float64
	Latency        time.Duration
	LastUpdated    time.Time
}
