package streaming

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"skybridge/pkg/utils"

	"github.com/golang-jwt/jwt/v5"
)

// The handshake exchanges one small signed payload: a token carrying a
// random nonce and an issue timestamp, acknowledged by a status field.

// HandshakeAck is the server's reply to a client token.
type HandshakeAck struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

const (
	handshakeAccepted = "accepted"

	claimNonce = "nonce"
	claimTS    = "ts"
)

// Handshaker performs the per-connection handshake on both ends.
type Handshaker struct {
	secret  []byte
	timeout time.Duration
	penalty time.Duration
}

func NewHandshaker(secret []byte, timeout, penalty time.Duration) *Handshaker {
	return &Handshaker{secret: secret, timeout: timeout, penalty: penalty}
}

// NewToken mints a signed handshake payload.
func (h *Handshaker) NewToken() (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		claimNonce: utils.GenerateHandshakeNonce(),
		claimTS:    utils.Timestamp(),
	})
	return token.SignedString(h.secret)
}

// ServerHandshake reads the client's token and acknowledges it.
//
// NOTE: a read timeout is deliberately a SOFT ACCEPT, not a failure.
// Proximity links legitimately show high jitter during bring-up, so the
// session proceeds with the configured penalty latency instead of being
// dropped. This mirrors long-standing field behavior; do not "fix" it
// into a hard failure.
func (h *Handshaker) ServerHandshake(conn net.Conn, sessionID string) (time.Duration, bool, error) {
	if err := conn.SetReadDeadline(time.Now().Add(h.timeout)); err != nil {
		return 0, false, err
	}
	defer conn.SetReadDeadline(time.Time{})

	payload, err := ReadFrame(conn)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() || errors.Is(err, os.ErrDeadlineExceeded) {
			return h.penalty, false, nil
		}
		return 0, false, fmt.Errorf("handshake read: %w", err)
	}

	latency := h.penalty
	token, err := jwt.Parse(string(payload), func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return h.secret, nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("handshake token: %w", err)
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok {
		if ts, ok := claims[claimTS].(float64); ok {
			if d := time.Since(time.UnixMilli(int64(ts))); d > 0 && d < h.timeout {
				latency = d
			}
		}
	}

	ack, err := json.Marshal(HandshakeAck{Status: handshakeAccepted, SessionID: sessionID})
	if err != nil {
		return 0, false, err
	}
	if err := WriteFrame(conn, ack); err != nil {
		return 0, false, fmt.Errorf("handshake ack: %w", err)
	}
	return latency, true, nil
}

// ClientHandshake sends a token and waits for the ack.
func (h *Handshaker) ClientHandshake(conn net.Conn) (HandshakeAck, error) {
	var ack HandshakeAck

	token, err := h.NewToken()
	if err != nil {
		return ack, err
	}
	if err := WriteFrame(conn, []byte(token)); err != nil {
		return ack, fmt.Errorf("handshake send: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(h.timeout)); err != nil {
		return ack, err
	}
	defer conn.SetReadDeadline(time.Time{})

	payload, err := ReadFrame(conn)
	if err != nil {
		return ack, fmt.Errorf("handshake ack read: %w", err)
	}
	if err := json.Unmarshal(payload, &ack); err != nil {
		return ack, fmt.Errorf("handshake ack decode: %w", err)
	}
	return ack, nil
}
