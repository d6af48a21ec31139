package streaming

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/quic-go/quic-go"
)

const quicProto = "skybridge-mirror"

// quicLayer is the optional secondary low-latency transport layered
// over the negotiated channel. Frames travel one per unidirectional
// stream, so no length framing is needed.
type quicLayer struct {
	conn quic.Connection
}

// dialQUIC attempts to open the secondary transport to the client's
// QUIC endpoint. Failure is not a session error; the caller simply
// stays on the primary stream socket.
//
// Transport trust is supplied by the sibling trust subsystem; this
// layer does not verify peer certificates itself.
func dialQUIC(ctx context.Context, address string, port int, timeout time.Duration) (*quicLayer, error) {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tlsConf := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{quicProto},
	}
	conn, err := quic.DialAddr(dialCtx, fmt.Sprintf("%s:%d", address, port), tlsConf, &quic.Config{})
	if err != nil {
		return nil, fmt.Errorf("quic dial %s:%d: %w", address, port, err)
	}
	return &quicLayer{conn: conn}, nil
}

// SendFrame ships one encoded frame on its own stream.
func (q *quicLayer) SendFrame(ctx context.Context, payload []byte) error {
	stream, err := q.conn.OpenUniStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("quic open stream: %w", err)
	}
	if _, err := stream.Write(payload); err != nil {
		stream.CancelWrite(0)
		return fmt.Errorf("quic write frame: %w", err)
	}
	return stream.Close()
}

func (q *quicLayer) Close() {
	_ = q.conn.CloseWithError(0, "session closed")
}
