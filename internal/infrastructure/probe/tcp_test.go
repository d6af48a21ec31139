package probe

import (
	"context"
	"net"
	"testing"
	"time"

	"skybridge/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPProbeReachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	rtt, err := NewTCPProber().Probe(context.Background(), "127.0.0.1", port, time.Second)
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))
	assert.Less(t, rtt, time.Second)
}

func TestTCPProbeUnreachable(t *testing.T) {
	// bind then close to get a port nothing listens on
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	_, err = NewTCPProber().Probe(context.Background(), "127.0.0.1", port, 200*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProbeFailed)
}
