// Package probe implements reachability probing against candidate
// stream endpoints.
package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"skybridge/internal/core/domain"
)

// TCPProber measures reachability by completing a TCP handshake against
// the candidate's probe port. The observed connect time doubles as the
// link's round-trip estimate.
type TCPProber struct{}

func NewTCPProber() *TCPProber {
	return &TCPProber{}
}

func (p *TCPProber) Probe(ctx context.Context, address string, port int, timeout time.Duration) (time.Duration, error) {
	dialer := net.Dialer{Timeout: timeout}
	target := net.JoinHostPort(address, fmt.Sprintf("%d", port))

	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", domain.ErrProbeFailed, target, err)
	}
	rtt := time.Since(start)
	_ = conn.Close()
	return rtt, nil
}
