package streaming

import (
	"context"
	"net"
	"testing"
	"time"

	"skybridge/internal/core/domain"
	"skybridge/internal/core/ports"
	"skybridge/pkg/observe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeCapture struct{}

func (fakeCapture) NewFrameSource(_ context.Context) (ports.FrameSource, error) {
	return &fakeSource{}, nil
}

func newTestServer(t *testing.T) (*MirrorServer, *observe.Value[domain.LinkQuality], *observe.Value[int]) {
	t.Helper()
	cfg := Config{
		Port:             0,
		HandshakeSecret:  []byte("test-secret"),
		HandshakeTimeout: 2 * time.Second,
		HandshakePenalty: 750 * time.Millisecond,
		WriteTimeout:     2 * time.Second,
		MinBitrateKbps:   500,
		MaxBitrateKbps:   20000,
		InitialQuality:   70,
		HardwareEncode:   false,
		QUICEnabled:      false,
		DeviceWidth:      1920,
		DeviceHeight:     1080,
		Tier:             domain.TierStandard,
	}
	quality := observe.NewValue[domain.LinkQuality]()
	recommended := observe.NewValue[int]()
	logger := zaptest.NewLogger(t).Sugar()
	srv := NewMirrorServer(cfg, nil, fakeCapture{}, nil, quality, recommended, nil, nil, logger)
	return srv, quality, recommended
}

func dialAndHandshake(t *testing.T, srv *MirrorServer) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)

	hs := NewHandshaker([]byte("test-secret"), 2*time.Second, 750*time.Millisecond)
	ack, err := hs.ClientHandshake(conn)
	require.NoError(t, err)
	require.Equal(t, "accepted", ack.Status)
	return conn
}

func TestServerLifecycle(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ctx := context.Background()

	assert.Equal(t, domain.ServerStopped, srv.State())

	require.True(t, srv.StartServer(ctx, 0))
	assert.Equal(t, domain.ServerRunning, srv.State())

	// a second start while running is refused
	assert.False(t, srv.StartServer(ctx, 0))

	srv.StopServer()
	assert.Equal(t, domain.ServerStopped, srv.State())

	// stopping again is a no-op
	srv.StopServer()
}

func TestServerStreamsFramesToClient(t *testing.T) {
	srv, _, _ := newTestServer(t)
	require.True(t, srv.StartServer(context.Background(), 0))
	defer srv.StopServer()

	conn := dialAndHandshake(t, srv)
	defer conn.Close()

	// frames arrive length-prefixed on the same socket
	for i := 0; i < 3; i++ {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		payload, err := ReadFrame(conn)
		require.NoError(t, err)
		assert.NotEmpty(t, payload)
	}

	sessions := srv.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, domain.SessionStreaming, sessions[0].State)
	assert.True(t, sessions[0].IsActive)
	assert.Greater(t, sessions[0].FramesTransmitted, uint64(0))
}

func TestServerRemovesSessionOnDisconnect(t *testing.T) {
	srv, _, _ := newTestServer(t)
	require.True(t, srv.StartServer(context.Background(), 0))
	defer srv.StopServer()

	conn := dialAndHandshake(t, srv)

	require.Eventually(t, func() bool {
		return len(srv.Sessions()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return len(srv.Sessions()) == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestServerRetargetsSessionsOnQualityChange(t *testing.T) {
	srv, quality, _ := newTestServer(t)
	require.True(t, srv.StartServer(context.Background(), 0))
	defer srv.StopServer()

	conn := dialAndHandshake(t, srv)
	defer conn.Close()
	go drainFrames(conn)

	require.Eventually(t, func() bool {
		return len(srv.Sessions()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	quality.Set(domain.LinkQuality{
		Hint:             domain.HintWifiDirect,
		ThroughputMbps:   400,
		IsDirect:         true,
		SupportsLossless: true,
	})

	maxFPS := float64(srv.Mode().MaxFrameRate())
	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		for _, sess := range srv.sessions {
			return sess.targetFPS() == maxFPS && sess.pipeline.Quality() == 95
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	quality.Set(domain.LinkQuality{
		Hint:           domain.HintLan,
		ThroughputMbps: 60,
	})

	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		for _, sess := range srv.sessions {
			return sess.targetFPS() < maxFPS && sess.pipeline.Quality() < 95
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServerClampsRecommendedBitrate(t *testing.T) {
	srv, _, recommended := newTestServer(t)
	require.True(t, srv.StartServer(context.Background(), 0))
	defer srv.StopServer()

	conn := dialAndHandshake(t, srv)
	defer conn.Close()
	go drainFrames(conn)

	require.Eventually(t, func() bool {
		return len(srv.Sessions()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	recommended.Set(100)
	require.Eventually(t, func() bool {
		sessions := srv.Sessions()
		return len(sessions) == 1 && sessions[0].CurrentBitrate == 500
	}, 2*time.Second, 10*time.Millisecond)

	recommended.Set(50000)
	require.Eventually(t, func() bool {
		sessions := srv.Sessions()
		return len(sessions) == 1 && sessions[0].CurrentBitrate == 20000
	}, 2*time.Second, 10*time.Millisecond)
}

func TestProximityQualityOutranksConstrainedLink(t *testing.T) {
	strong := domain.LinkQuality{ThroughputMbps: 400, SupportsLossless: true}
	weak := domain.LinkQuality{ThroughputMbps: 60}

	assert.GreaterOrEqual(t, fpsMultiplier(strong), fpsMultiplier(weak))
	assert.GreaterOrEqual(t, compressionQuality(strong), compressionQuality(weak))
	assert.Equal(t, 1.0, fpsMultiplier(strong))
}

func TestServerAggregates(t *testing.T) {
	srv, _, _ := newTestServer(t)
	require.True(t, srv.StartServer(context.Background(), 0))
	defer srv.StopServer()

	agg := srv.Aggregates()
	assert.Zero(t, agg.ActiveSessions)
	assert.Equal(t, srv.Mode().Width, agg.FrameWidth)
	assert.Equal(t, srv.Mode().Height, agg.FrameHeight)

	conn := dialAndHandshake(t, srv)
	defer conn.Close()
	go drainFrames(conn)

	require.Eventually(t, func() bool {
		return srv.Aggregates().ActiveSessions == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Greater(t, srv.Aggregates().TargetFPS, 0.0)
}

func drainFrames(conn net.Conn) {
	for {
		if _, err := ReadFrame(conn); err != nil {
			return
		}
	}
}
