package ports

import (
	"context"
	"time"
)

// DiscoveredPeer is the raw result a platform discovery collaborator
// reports for one nearby device.
type DiscoveredPeer struct {
	Name             string
	Address          string
	IPAddress        string
	SignalLevel      int
	LinkSpeedMbps    float64
	HasLosslessRadio bool
}

// WifiDirectConnector wraps the platform's WiFi-Direct peer API. The
// core consumes its results only; discovery itself is out of scope.
type WifiDirectConnector interface {
	DiscoverPeers(ctx context.Context) ([]DiscoveredPeer, error)
	// Connect performs the platform peer-connect handshake and returns
	// the negotiated group-owner address.
	Connect(ctx context.Context, address string) (string, error)
	Disconnect(ctx context.Context, address string) error
}

// BondedDevice is one entry of the platform's Bluetooth bonded list.
type BondedDevice struct {
	Name        string
	Identifier  string
	SignalLevel int
}

// BluetoothRegistry exposes the platform's bonded-device list.
type BluetoothRegistry interface {
	BondedDevices(ctx context.Context) ([]BondedDevice, error)
}

// NfcAdapter reports whether the NFC radio is enabled.
type NfcAdapter interface {
	Enabled() bool
}

// ReachabilityProber checks whether a host answers on a port within a
// short timeout, returning the observed round trip.
type ReachabilityProber interface {
	Probe(ctx context.Context, address string, port int, timeout time.Duration) (time.Duration, error)
}

// Frame is one captured (and possibly hardware-encoded) screen frame.
type Frame struct {
	Data       []byte
	Width      int
	Height     int
	Hardware   bool
	CapturedAt time.Time
}

// FrameSource is the software fallback capture path: grab a raw frame
// and compress it at the given quality on each tick.
type FrameSource interface {
	Capture(ctx context.Context, width, height, quality int) (*Frame, error)
	// Release frees the capture surface. Safe to call more than once.
	Release()
}

// HardwareEncoder drives directly off the platform's screen-capture
// surface and buffers encoded frames.
type HardwareEncoder interface {
	// NextFrame returns a buffered encoded frame, or false when none is
	// ready yet.
	NextFrame(ctx context.Context) (*Frame, bool)
	// SetBitrate pushes a new target bitrate into the running encoder
	// without restarting the pipeline.
	SetBitrate(kbps int)
	// Release frees the encoder and its surface. Safe to call more than
	// once.
	Release()
}

// EncoderFactory prepares a hardware encoder for the given mode. A
// preparation error means the caller falls back to the software path.
type EncoderFactory interface {
	NewHardwareEncoder(ctx context.Context, width, height, fps, bitrateKbps int) (HardwareEncoder, error)
}

// SystemSample carries raw OS counters for one sampling tick.
type SystemSample struct {
	CPUUsage        float64
	MemoryUsage     uint64
	BytesSent       uint64
	BytesReceived   uint64
	PacketsSent     uint64
	PacketsReceived uint64
}

// SystemSampler reads cumulative OS-level CPU and network counters.
type SystemSampler interface {
	Sample(ctx context.Context) (SystemSample, error)
}

// SessionAggregates is the session manager's per-tick contribution to a
// stats snapshot.
type SessionAggregates struct {
	ActiveSessions int
	AverageFPS     float64
	TargetFPS      float64
	AverageLatency time.Duration
	BitrateKbps    int
	FrameWidth     int
	FrameHeight    int
	PacketsLost    uint64
}

// SessionAggregator exposes the live session table's aggregates to the
// performance feedback loop.
type SessionAggregator interface {
	Aggregates() SessionAggregates
}
