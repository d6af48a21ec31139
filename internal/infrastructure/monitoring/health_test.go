package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthCheckerAllHealthy(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("stream_server", func(_ context.Context) (bool, error) { return true, nil }, time.Second)
	h.AddCheck("negotiator", func(_ context.Context) (bool, error) { return true, nil }, time.Second)

	status := h.CheckAll(context.Background())
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "healthy", status.Checks["stream_server"])
	assert.Equal(t, "healthy", status.Checks["negotiator"])
}

func TestHealthCheckerReportsFailure(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("stream_server", func(_ context.Context) (bool, error) { return true, nil }, time.Second)
	h.AddCheck("redis", func(_ context.Context) (bool, error) { return false, errors.New("dial refused") }, time.Second)

	status := h.CheckAll(context.Background())
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "dial refused", status.Checks["redis"])
	assert.Equal(t, "healthy", status.Checks["stream_server"])
}
