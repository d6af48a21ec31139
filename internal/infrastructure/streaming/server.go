package streaming

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"skybridge/internal/core/domain"
	"skybridge/internal/core/ports"
	"skybridge/pkg/observe"
	"skybridge/pkg/utils"

	"go.uber.org/zap"
)

// Config carries everything the mirror server needs at construction.
type Config struct {
	Port             int
	HandshakeSecret  []byte
	HandshakeTimeout time.Duration
	HandshakePenalty time.Duration
	WriteTimeout     time.Duration

	MinBitrateKbps int
	MaxBitrateKbps int
	InitialQuality int
	HardwareEncode bool

	QUICEnabled bool
	QUICPort    int
	QUICTimeout time.Duration

	DeviceWidth  int
	DeviceHeight int
	Tier         domain.Tier
}

// CaptureProvider prepares one software capture source per session.
type CaptureProvider interface {
	NewFrameSource(ctx context.Context) (ports.FrameSource, error)
}

// MetricsRecorder receives streaming lifecycle counters. A nil recorder
// is allowed; the server guards every call.
type MetricsRecorder interface {
	SessionStarted()
	SessionEnded()
	FrameSent(bytes int)
	SetBitrate(kbps int)
	SetTargetFPS(fps float64)
}

// SessionEvent is one lifecycle notification pushed to the event feed.
type SessionEvent struct {
	Type      string           `json:"type"`
	SessionID domain.SessionID `json:"session_id"`
	Client    string           `json:"client,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// EventSink receives session lifecycle events. Nil-safe on the server
// side, same as MetricsRecorder.
type EventSink interface {
	Publish(event SessionEvent)
}

// PerformanceLoop is the slice of the feedback monitor the server
// drives while running.
type PerformanceLoop interface {
	Run(ctx context.Context, interval time.Duration)
}

// MirrorServer owns the TCP listener, the live session table and the
// adaptation loop that repaces every session when the link quality or
// the recommended bitrate moves.
type MirrorServer struct {
	cfg      Config
	hs       *Handshaker
	factory  ports.EncoderFactory
	capture  CaptureProvider
	monitor  PerformanceLoop
	quality  *observe.Value[domain.LinkQuality]
	bitrate  *observe.Value[int]
	metrics  MetricsRecorder
	events   EventSink
	logger   *zap.SugaredLogger

	state *observe.Value[domain.ServerState]
	mode  domain.ResolutionMode

	mu       sync.Mutex
	sessions map[domain.SessionID]*session
	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// current adaptation targets, applied to new sessions at admission
	targetMu    sync.Mutex
	targetFPS   float64
	qualityPct  int // compression quality percent
	bitrateKbps int
}

// NewMirrorServer wires the server. quality is the link estimator's
// observable, recommended the feedback monitor's bitrate output; either
// may start empty.
func NewMirrorServer(
	cfg Config,
	factory ports.EncoderFactory,
	capture CaptureProvider,
	monitor PerformanceLoop,
	quality *observe.Value[domain.LinkQuality],
	recommended *observe.Value[int],
	metrics MetricsRecorder,
	events EventSink,
	logger *zap.SugaredLogger,
) *MirrorServer {
	profile := domain.DefaultTierProfiles()[cfg.Tier]
	mode := profile.SelectMode(cfg.DeviceWidth, cfg.DeviceHeight)

	s := &MirrorServer{
		cfg:         cfg,
		hs:          NewHandshaker(cfg.HandshakeSecret, cfg.HandshakeTimeout, cfg.HandshakePenalty),
		factory:     factory,
		capture:     capture,
		monitor:     monitor,
		quality:     quality,
		bitrate:     recommended,
		metrics:     metrics,
		events:      events,
		logger:      logger,
		state:       observe.NewValue[domain.ServerState](),
		mode:        mode,
		sessions:    make(map[domain.SessionID]*session),
		targetFPS:   float64(mode.MaxFrameRate()),
		qualityPct:  cfg.InitialQuality,
		bitrateKbps: cfg.MinBitrateKbps,
	}
	s.state.Set(domain.ServerStopped)
	return s
}

// AttachFeedback wires the feedback monitor and its recommended-bitrate
// observable after construction, since the monitor aggregates session
// stats from this server. Must be called before StartServer.
func (s *MirrorServer) AttachFeedback(monitor PerformanceLoop, recommended *observe.Value[int]) {
	s.monitor = monitor
	if recommended != nil {
		s.bitrate = recommended
	}
}

// State returns the current lifecycle state.
func (s *MirrorServer) State() domain.ServerState {
	state, ok := s.state.Get()
	if !ok {
		return domain.ServerStopped
	}
	return state
}

// StateChanges exposes the lifecycle observable for subscribers.
func (s *MirrorServer) StateChanges() *observe.Value[domain.ServerState] { return s.state }

// Mode returns the resolution mode selected for this device and tier.
func (s *MirrorServer) Mode() domain.ResolutionMode { return s.mode }

// StartServer binds the listener and starts the accept, monitoring and
// adaptation loops. Returns false when the server is already running or
// the port cannot be bound; the failure is logged, not returned.
func (s *MirrorServer) StartServer(ctx context.Context, port int) bool {
	s.mu.Lock()
	if s.listener != nil {
		s.mu.Unlock()
		s.logger.Warnw("start ignored, server already running")
		return false
	}
	s.state.Set(domain.ServerStarting)

	if port <= 0 {
		port = s.cfg.Port
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		s.state.Set(domain.ServerStopped)
		s.mu.Unlock()
		s.logger.Errorw("failed to bind stream port", "port", port, "error", err)
		return false
	}
	s.listener = ln

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(2)
	go s.acceptLoop(runCtx, ln)
	go s.adaptLoop(runCtx)

	if s.monitor != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.monitor.Run(runCtx, time.Second)
		}()
	}

	s.state.Set(domain.ServerRunning)
	s.logger.Infow("mirror server listening",
		"port", port,
		"mode", s.mode.Name,
		"width", s.mode.Width,
		"height", s.mode.Height)
	return true
}

// StopServer tears everything down: listener, live sessions, loops.
// Safe to call when not running or more than once.
func (s *MirrorServer) StopServer() {
	s.mu.Lock()
	ln := s.listener
	cancel := s.cancel
	s.listener = nil
	s.cancel = nil
	s.mu.Unlock()

	if ln == nil {
		return
	}
	s.state.Set(domain.ServerStopping)

	cancel()
	_ = ln.Close()

	s.mu.Lock()
	for _, sess := range s.sessions {
		_ = sess.conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.sessions = make(map[domain.SessionID]*session)
	s.mu.Unlock()

	s.state.Set(domain.ServerStopped)
	s.logger.Infow("mirror server stopped")
}

// Addr returns the bound listener address, or nil when stopped.
func (s *MirrorServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Sessions returns a snapshot of the live session table.
func (s *MirrorServer) Sessions() []domain.RemoteSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RemoteSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.snapshot())
	}
	return out
}

// Aggregates implements ports.SessionAggregator for the feedback loop.
func (s *MirrorServer) Aggregates() ports.SessionAggregates {
	s.mu.Lock()
	snaps := make([]domain.RemoteSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		snaps = append(snaps, sess.snapshot())
	}
	s.mu.Unlock()

	s.targetMu.Lock()
	target := s.targetFPS
	bitrate := s.bitrateKbps
	s.targetMu.Unlock()

	agg := ports.SessionAggregates{
		TargetFPS:   target,
		BitrateKbps: bitrate,
		FrameWidth:  s.mode.Width,
		FrameHeight: s.mode.Height,
	}
	if len(snaps) == 0 {
		return agg
	}

	var fps float64
	var latency time.Duration
	for _, snap := range snaps {
		fps += snap.CurrentFPS
		latency += snap.Latency
	}
	agg.ActiveSessions = len(snaps)
	agg.AverageFPS = fps / float64(len(snaps))
	agg.AverageLatency = latency / time.Duration(len(snaps))
	return agg
}

func (s *MirrorServer) acceptLoop(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warnw("accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// adaptLoop repaces every live session when the link quality or the
// recommended bitrate changes.
func (s *MirrorServer) adaptLoop(ctx context.Context) {
	defer s.wg.Done()

	qualityCh, cancelQuality := s.quality.Subscribe()
	defer cancelQuality()
	bitrateCh, cancelBitrate := s.bitrate.Subscribe()
	defer cancelBitrate()

	for {
		select {
		case <-ctx.Done():
			return
		case lq := <-qualityCh:
			s.applyQuality(lq)
		case kbps := <-bitrateCh:
			s.applyBitrate(kbps)
		}
	}
}

func (s *MirrorServer) applyQuality(lq domain.LinkQuality) {
	fps := float64(s.mode.NearestFrameRate(float64(s.mode.MaxFrameRate()) * fpsMultiplier(lq)))
	quality := compressionQuality(lq)

	s.targetMu.Lock()
	s.targetFPS = fps
	s.qualityPct = quality
	s.targetMu.Unlock()

	s.mu.Lock()
	for _, sess := range s.sessions {
		sess.setTargetFPS(fps)
		sess.pipeline.SetQuality(quality)
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetTargetFPS(fps)
	}
	s.logger.Infow("link quality changed, retargeting sessions",
		"hint", lq.Hint,
		"throughput_mbps", lq.ThroughputMbps,
		"lossless", lq.SupportsLossless,
		"target_fps", fps,
		"quality", quality)
}

func (s *MirrorServer) applyBitrate(kbps int) {
	if kbps < s.cfg.MinBitrateKbps {
		kbps = s.cfg.MinBitrateKbps
	}
	if kbps > s.cfg.MaxBitrateKbps {
		kbps = s.cfg.MaxBitrateKbps
	}

	s.targetMu.Lock()
	s.bitrateKbps = kbps
	s.targetMu.Unlock()

	s.mu.Lock()
	for _, sess := range s.sessions {
		sess.setBitrate(kbps)
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetBitrate(kbps)
	}
}

// fpsMultiplier maps a link estimate to the fraction of the mode's top
// frame rate a session may run at. Lossless-capable links always run
// flat out.
func fpsMultiplier(lq domain.LinkQuality) float64 {
	switch {
	case lq.SupportsLossless, lq.ThroughputMbps >= 200:
		return 1.0
	case lq.ThroughputMbps >= 100:
		return 0.9
	case lq.ThroughputMbps >= 50:
		return 0.75
	default:
		return 0.5
	}
}

// compressionQuality maps a link estimate to the software-path JPEG
// quality percent.
func compressionQuality(lq domain.LinkQuality) int {
	switch {
	case lq.SupportsLossless:
		return 95
	case lq.ThroughputMbps >= 200:
		return 85
	case lq.ThroughputMbps >= 100:
		return 75
	case lq.ThroughputMbps >= 50:
		return 65
	default:
		return 50
	}
}

func (s *MirrorServer) handleConn(ctx context.Context, conn net.Conn) {
	id := domain.SessionID(utils.GenerateSessionID())

	s.targetMu.Lock()
	targetFPS := s.targetFPS
	quality := s.qualityPct
	bitrate := s.bitrateKbps
	s.targetMu.Unlock()

	sess := newSession(id, conn, nil, targetFPS, s.cfg.WriteTimeout, s.logger)

	sess.setState(domain.SessionHandshaking)
	latency, verified, err := s.hs.ServerHandshake(conn, string(id))
	if err != nil {
		s.logger.Warnw("handshake failed, dropping connection",
			"remote", conn.RemoteAddr().String(), "error", err)
		sess.close()
		return
	}
	if !verified {
		s.logger.Infow("handshake unverified, admitting with penalty latency",
			"session", id, "latency", latency)
	}

	lq, _ := s.quality.Get()

	source, err := s.capture.NewFrameSource(ctx)
	if err != nil {
		s.logger.Errorw("capture source unavailable", "session", id, "error", err)
		sess.close()
		return
	}

	pipeline := NewPipeline(ctx, s.factory, source, lq, s.cfg.HardwareEncode, s.mode, quality, bitrate, s.logger)
	sess.pipeline = pipeline

	if s.metrics != nil {
		sess.onFrame = s.metrics.FrameSent
	}
	sess.setLatency(latency)
	sess.setBitrate(bitrate)

	if s.cfg.QUICEnabled {
		host, _ := splitHostPort(conn.RemoteAddr().String())
		q, qerr := dialQUIC(ctx, host, s.cfg.QUICPort, s.cfg.QUICTimeout)
		if qerr != nil {
			s.logger.Debugw("secondary transport unavailable, staying on stream socket",
				"session", id, "error", qerr)
		} else {
			sess.quic = q
		}
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SessionStarted()
	}
	s.publish("session_started", sess)

	s.logger.Infow("session admitted",
		"session", id,
		"client", conn.RemoteAddr().String(),
		"verified", verified,
		"hardware", pipeline.Hardware(),
		"target_fps", targetFPS)

	runErr := sess.run(ctx)

	// teardown is per-session: a mid-stream failure removes only this
	// session and its resources.
	sess.close()
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SessionEnded()
	}
	s.publish("session_ended", sess)

	if runErr != nil && ctx.Err() == nil {
		s.logger.Warnw("session ended on error", "session", id, "error", runErr)
	} else {
		s.logger.Infow("session closed", "session", id)
	}
}

func (s *MirrorServer) publish(eventType string, sess *session) {
	if s.events == nil {
		return
	}
	snap := sess.snapshot()
	s.events.Publish(SessionEvent{
		Type:      eventType,
		SessionID: snap.SessionID,
		Client:    snap.ClientAddress,
		Timestamp: time.Now(),
	})
}
