package streaming

import (
	"context"
	"net"
	"testing"
	"time"

	"skybridge/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSessionStateProgression(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	sess := newSession("sess-1", server, nil, 30, time.Second, zaptest.NewLogger(t).Sugar())
	assert.Equal(t, domain.SessionConnecting, sess.snapshot().State)

	sess.setState(domain.SessionHandshaking)
	assert.Equal(t, domain.SessionHandshaking, sess.snapshot().State)

	// close before a pipeline is attached must not panic
	sess.close()
	assert.Equal(t, domain.SessionClosed, sess.snapshot().State)
	assert.False(t, sess.snapshot().IsActive)
}

func TestServerDropsConnectionOnBadToken(t *testing.T) {
	srv, _, _ := newTestServer(t)
	require.True(t, srv.StartServer(context.Background(), 0))
	defer srv.StopServer()

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	hs := NewHandshaker([]byte("wrong-secret"), 2*time.Second, 750*time.Millisecond)
	_, err = hs.ClientHandshake(conn)
	require.Error(t, err)

	// the rejected connection leaves no session behind and the server
	// keeps admitting well-formed clients
	assert.Empty(t, srv.Sessions())

	good := dialAndHandshake(t, srv)
	defer good.Close()
	require.Eventually(t, func() bool {
		return len(srv.Sessions()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
