package domain

import "time"

// SessionState tracks one mirroring session's lifecycle.
type SessionState string

const (
	SessionConnecting  SessionState = "connecting"
	SessionHandshaking SessionState = "handshaking"
	SessionStreaming   SessionState = "streaming"
	SessionClosing     SessionState = "closing"
	SessionClosed      SessionState = "closed"
)

// ServerState tracks the mirror server endpoint's lifecycle.
type ServerState string

const (
	ServerStopped  ServerState = "stopped"
	ServerStarting ServerState = "starting"
	ServerRunning  ServerState = "running"
	ServerStopping ServerState = "stopping"
)

// RemoteSession is one connected mirroring client. Created on accept,
// mutated by the frame-send loop each frame, removed when the
// connection drops or the server stops.
type RemoteSession struct {
	SessionID         SessionID
	ClientAddress     string
	ClientPort        int
	State             SessionState
	IsActive          bool
	StartTime         time.Time
	LastActivity      time.Time
	BytesTransmitted  uint64
	FramesTransmitted uint64
	CurrentFPS        float64
	CurrentBitrate    int // kbps
	Latency           time.Duration
}
