package domain

import "time"

// LinkQuality is a normalized quality record for one transport medium,
// published every time a link is (re-)estimated. Negotiation uses it to
// prefer the better candidate; the session manager uses it to drive the
// adaptive capture parameters.
type LinkQuality struct {
	Hint             TransportHint
	Latency          time.Duration
	ThroughputMbps   float64
	IsDirect         bool
	SupportsLossless bool
	MeasuredAt       time.Time
}
