package streaming

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFraming_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("encoded-frame-bytes")

	require.NoError(t, WriteFrame(&buf, payload))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFraming_PrefixIsBigEndian(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte{0xAB, 0xCD}))

	raw := buf.Bytes()
	require.GreaterOrEqual(t, len(raw), 4)
	assert.Equal(t, uint32(2), binary.BigEndian.Uint32(raw[:4]))
}

func TestFraming_PreservesSendOrder(t *testing.T) {
	var buf bytes.Buffer
	frames := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, f := range frames {
		require.NoError(t, WriteFrame(&buf, f))
	}
	for _, want := range frames {
		got, err := ReadFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestReadFrame_RejectsOversizedPrefix(t *testing.T) {
	var buf bytes.Buffer
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], maxFramePayload+1)
	buf.Write(prefix[:])

	_, err := ReadFrame(&buf)
	assert.Error(t, err)
}

func TestReadFrame_EOFOnEmptyStream(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}
