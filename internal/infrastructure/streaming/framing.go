package streaming

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Software-path wire framing: a 4-byte big-endian length prefix
// followed by the encoded frame payload.

// maxFramePayload bounds a single frame so a corrupt prefix cannot
// trigger an unbounded allocation.
const maxFramePayload = 64 << 20

// WriteFrame writes one length-prefixed frame payload.
func WriteFrame(w io.Writer, payload []byte) error {
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write frame prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(prefix[:])
	if size > maxFramePayload {
		return nil, fmt.Errorf("frame payload %d exceeds limit", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}
