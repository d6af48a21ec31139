package domain

import "time"

// ConnectionStats is a point-in-time snapshot recomputed once per second
// from raw OS counters plus session aggregates. Consumed by the adaptive
// controller, never persisted.
type ConnectionStats struct {
	Timestamp time.Time

	BytesSent       uint64
	BytesReceived   uint64
	PacketsSent     uint64
	PacketsReceived uint64
	PacketsLost     uint64

	RTT    time.Duration
	Jitter time.Duration

	BitrateKbps int
	FrameRate   float64
	FrameWidth  int
	FrameHeight int

	CPUUsage    float64 // 0..1
	MemoryUsage uint64  // bytes
}

// LossRatio is the fraction of sent packets reported lost.
func (s ConnectionStats) LossRatio() float64 {
	if s.PacketsSent == 0 {
		return 0
	}
	return float64(s.PacketsLost) / float64(s.PacketsSent)
}
