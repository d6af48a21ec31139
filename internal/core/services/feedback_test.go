package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"skybridge/internal/core/domain"
	"skybridge/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSampler struct {
	mu     sync.Mutex
	sample ports.SystemSample
}

func (f *fakeSampler) Sample(ctx context.Context) (ports.SystemSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sample, nil
}

type fakeAggregator struct {
	mu  sync.Mutex
	agg ports.SessionAggregates
}

func (f *fakeAggregator) Aggregates() ports.SessionAggregates {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.agg
}

func newTestMonitor(t *testing.T) (*PerformanceMonitor, *fakeSampler, *fakeAggregator) {
	sampler := &fakeSampler{}
	agg := &fakeAggregator{}
	m := NewPerformanceMonitor(sampler, agg, 500, 20000, 4000, zaptest.NewLogger(t).Sugar())
	return m, sampler, agg
}

func TestRecommendBitrate_DegradesUnderCongestion(t *testing.T) {
	m, _, _ := newTestMonitor(t)

	highRTT := domain.ConnectionStats{RTT: 300 * time.Millisecond, FrameRate: 30}
	assert.Equal(t, int(4000*degradeFactor), m.RecommendBitrate(highRTT, 4000, 30))

	highJitter := domain.ConnectionStats{Jitter: 100 * time.Millisecond, FrameRate: 30}
	assert.Equal(t, int(4000*degradeFactor), m.RecommendBitrate(highJitter, 4000, 30))

	lossy := domain.ConnectionStats{PacketsSent: 100, PacketsLost: 10, FrameRate: 30}
	assert.Equal(t, int(4000*degradeFactor), m.RecommendBitrate(lossy, 4000, 30))
}

func TestRecommendBitrate_BoostsWhenHealthy(t *testing.T) {
	m, _, _ := newTestMonitor(t)

	healthy := domain.ConnectionStats{
		RTT:       20 * time.Millisecond,
		Jitter:    5 * time.Millisecond,
		FrameRate: 29,
	}
	assert.Equal(t, int(4000*boostFactor), m.RecommendBitrate(healthy, 4000, 30))
}

func TestRecommendBitrate_HoldsInBetween(t *testing.T) {
	m, _, _ := newTestMonitor(t)

	middling := domain.ConnectionStats{
		RTT:       120 * time.Millisecond,
		Jitter:    30 * time.Millisecond,
		FrameRate: 30,
	}
	assert.Equal(t, 4000, m.RecommendBitrate(middling, 4000, 30))
}

func TestRecommendBitrate_FpsShortfallCorrection(t *testing.T) {
	m, _, _ := newTestMonitor(t)

	// Link looks healthy but the pipeline only achieves half the target
	// frame rate: the correction applies on top of the boost.
	starved := domain.ConnectionStats{
		RTT:       20 * time.Millisecond,
		Jitter:    5 * time.Millisecond,
		FrameRate: 15,
	}
	want := int(float64(4000) * degradeFactor)
	assert.Equal(t, want, m.RecommendBitrate(starved, 4000, 30))
}

func TestRecommendBitrate_ClampsToBand(t *testing.T) {
	m, _, _ := newTestMonitor(t)

	// Pathological all-zero stats repeated must never leave the band.
	bitrate := 4000
	for i := 0; i < 100; i++ {
		bitrate = m.RecommendBitrate(domain.ConnectionStats{}, bitrate, 30)
	}
	assert.GreaterOrEqual(t, bitrate, 500)

	// All-maximum inputs likewise.
	worst := domain.ConnectionStats{
		RTT:         10 * time.Second,
		Jitter:      10 * time.Second,
		PacketsSent: 1,
		PacketsLost: 1,
	}
	bitrate = 4000
	for i := 0; i < 100; i++ {
		bitrate = m.RecommendBitrate(worst, bitrate, 30)
	}
	assert.Equal(t, 500, bitrate)

	best := domain.ConnectionStats{
		RTT:       time.Millisecond,
		Jitter:    time.Millisecond,
		FrameRate: 30,
	}
	bitrate = 4000
	for i := 0; i < 200; i++ {
		bitrate = m.RecommendBitrate(best, bitrate, 30)
	}
	assert.Equal(t, 20000, bitrate)
}

func TestTick_ComputesCounterDeltas(t *testing.T) {
	m, sampler, agg := newTestMonitor(t)
	ctx := context.Background()

	sampler.sample = ports.SystemSample{BytesSent: 1000, PacketsSent: 10}
	agg.agg = ports.SessionAggregates{AverageLatency: 50 * time.Millisecond, TargetFPS: 30, AverageFPS: 30}
	m.Tick(ctx)

	sampler.mu.Lock()
	sampler.sample = ports.SystemSample{BytesSent: 6000, PacketsSent: 25}
	sampler.mu.Unlock()
	stats := m.Tick(ctx)

	assert.Equal(t, uint64(5000), stats.BytesSent)
	assert.Equal(t, uint64(15), stats.PacketsSent)
}

func TestTick_PublishesStatsAndRecommendation(t *testing.T) {
	m, _, agg := newTestMonitor(t)
	agg.agg = ports.SessionAggregates{AverageLatency: 20 * time.Millisecond, TargetFPS: 30, AverageFPS: 30}

	m.Tick(context.Background())

	_, ok := m.Stats().Get()
	require.True(t, ok)
	rec, ok := m.Recommended().Get()
	require.True(t, ok)
	assert.GreaterOrEqual(t, rec, 500)
	assert.LessOrEqual(t, rec, 20000)
}

func TestTick_CounterResetTreatedAsZeroDelta(t *testing.T) {
	m, sampler, _ := newTestMonitor(t)
	ctx := context.Background()

	sampler.sample = ports.SystemSample{BytesSent: 9000}
	m.Tick(ctx)

	sampler.mu.Lock()
	sampler.sample = ports.SystemSample{BytesSent: 100} // reboot reset
	sampler.mu.Unlock()
	stats := m.Tick(ctx)

	assert.Equal(t, uint64(0), stats.BytesSent)
}
