package streaming

import (
	"context"
	"net"
	"sync"
	"time"

	"skybridge/internal/core/domain"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxConsecutiveCaptureErrors bounds how long a session limps on a
// failing capture source before it is abandoned.
const maxConsecutiveCaptureErrors = 30

// session is one connected mirroring client: its socket, its pipeline,
// and its live counters. The frame loop is paced by a rate limiter
// whose limit is the adaptive target fps, so sleeping always uses the
// current interval rather than a fixed one.
type session struct {
	conn     net.Conn
	quic     *quicLayer // nil unless the secondary transport came up
	pipeline *Pipeline
	limiter  *rate.Limiter

	writeTimeout time.Duration
	logger       *zap.SugaredLogger
	onFrame      func(bytes int) // nil-safe metrics hook

	mu   sync.Mutex
	info domain.RemoteSession

	// achieved-fps window
	windowStart  time.Time
	windowFrames int
}

func newSession(id domain.SessionID, conn net.Conn, pipeline *Pipeline, targetFPS float64, writeTimeout time.Duration, logger *zap.SugaredLogger) *session {
	host, port := splitHostPort(conn.RemoteAddr().String())
	now := time.Now()
	return &session{
		conn:         conn,
		pipeline:     pipeline,
		limiter:      rate.NewLimiter(rate.Limit(targetFPS), 1),
		writeTimeout: writeTimeout,
		logger:       logger,
		info: domain.RemoteSession{
			SessionID:     id,
			ClientAddress: host,
			ClientPort:    port,
			State:         domain.SessionConnecting,
			IsActive:      true,
			StartTime:     now,
			LastActivity:  now,
			CurrentFPS:    targetFPS,
		},
		windowStart: now,
	}
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	port := 0
	for _, c := range portStr {
		if c < '0' || c > '9' {
			return host, 0
		}
		port = port*10 + int(c-'0')
	}
	return host, port
}

func (s *session) setState(state domain.SessionState) {
	s.mu.Lock()
	s.info.State = state
	if state == domain.SessionClosed {
		s.info.IsActive = false
	}
	s.mu.Unlock()
}

func (s *session) setLatency(d time.Duration) {
	s.mu.Lock()
	s.info.Latency = d
	s.mu.Unlock()
}

// setTargetFPS repaces the frame loop. Takes effect on the next tick.
func (s *session) setTargetFPS(fps float64) {
	if fps <= 0 {
		return
	}
	s.limiter.SetLimit(rate.Limit(fps))
}

func (s *session) targetFPS() float64 {
	return float64(s.limiter.Limit())
}

func (s *session) setBitrate(kbps int) {
	s.pipeline.SetBitrate(kbps)
	s.mu.Lock()
	s.info.CurrentBitrate = kbps
	s.mu.Unlock()
}

// snapshot returns a copy of the session record.
func (s *session) snapshot() domain.RemoteSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// run is the adaptive frame loop: capture, transmit, account, pace.
// Returns when the context is cancelled or the connection fails.
func (s *session) run(ctx context.Context) error {
	s.setState(domain.SessionStreaming)

	captureErrors := 0
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil
		}

		frame, err := s.pipeline.NextFrame(ctx)
		if err != nil {
			captureErrors++
			if captureErrors >= maxConsecutiveCaptureErrors {
				s.logger.Warnw("capture failing persistently, abandoning session",
					"session", s.info.SessionID, "error", err)
				return err
			}
			continue
		}
		captureErrors = 0

		if err := s.sendFrame(ctx, frame.Data); err != nil {
			return err
		}
		s.account(len(frame.Data))
	}
}

// sendFrame uses the secondary transport when active, otherwise the
// length-prefixed framing over the primary stream socket.
func (s *session) sendFrame(ctx context.Context, payload []byte) error {
	if s.quic != nil {
		return s.quic.SendFrame(ctx, payload)
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return WriteFrame(s.conn, payload)
}

func (s *session) account(payloadLen int) {
	now := time.Now()
	if s.onFrame != nil {
		s.onFrame(payloadLen + 4)
	}

	s.mu.Lock()
	s.info.BytesTransmitted += uint64(payloadLen) + 4
	s.info.FramesTransmitted++
	s.info.LastActivity = now

	s.windowFrames++
	if elapsed := now.Sub(s.windowStart); elapsed >= time.Second {
		s.info.CurrentFPS = float64(s.windowFrames) / elapsed.Seconds()
		s.windowFrames = 0
		s.windowStart = now
	}
	s.mu.Unlock()
}

// close tears the session down deterministically: pipeline resources
// first, then transports. Idempotent through the pipeline's own
// release guard.
func (s *session) close() {
	s.setState(domain.SessionClosing)
	if s.pipeline != nil {
		s.pipeline.Release()
	}
	if s.quic != nil {
		s.quic.Close()
	}
	_ = s.conn.Close()
	s.setState(domain.SessionClosed)
}
