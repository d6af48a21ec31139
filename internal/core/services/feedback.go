package services

import (
	"context"
	"sync"
	"time"

	"skybridge/internal/core/domain"
	"skybridge/internal/core/ports"
	"skybridge/pkg/observe"

	"go.uber.org/zap"
)

const (
	// Bitrate adjustment steps.
	degradeFactor = 0.82 // −18% under congestion
	boostFactor   = 1.08 // +8% when the link is healthy

	// Achieved frame rate below this share of target triggers an
	// independent downward correction.
	fpsShortfallRatio = 0.6

	// Achieved frame rate must be at least this share of target before
	// a boost is considered.
	fpsHealthyRatio = 0.9
)

// FeedbackThresholds are the fixed congestion/health cutoffs.
type FeedbackThresholds struct {
	MaxRTT     time.Duration
	MaxJitter  time.Duration
	MaxLoss    float64
	GoodRTT    time.Duration
	GoodJitter time.Duration
}

func DefaultFeedbackThresholds() FeedbackThresholds {
	return FeedbackThresholds{
		MaxRTT:     200 * time.Millisecond,
		MaxJitter:  60 * time.Millisecond,
		MaxLoss:    0.05,
		GoodRTT:    80 * time.Millisecond,
		GoodJitter: 20 * time.Millisecond,
	}
}

// PerformanceMonitor samples OS counters and session aggregates once
// per second, producing ConnectionStats snapshots and a bitrate
// recommendation for the adaptive controller.
type PerformanceMonitor struct {
	sampler    ports.SystemSampler
	sessions   ports.SessionAggregator
	thresholds FeedbackThresholds
	logger     *zap.SugaredLogger

	minBitrate int
	maxBitrate int

	stats       *observe.Value[domain.ConnectionStats]
	recommended *observe.Value[int]

	mu          sync.Mutex
	lastSample  ports.SystemSample
	lastAt      time.Time
	hasLast     bool
	lastLatency time.Duration
	bitrate     int
}

func NewPerformanceMonitor(
	sampler ports.SystemSampler,
	sessions ports.SessionAggregator,
	minBitrateKbps, maxBitrateKbps, initialBitrateKbps int,
	logger *zap.SugaredLogger,
) *PerformanceMonitor {
	if initialBitrateKbps < minBitrateKbps {
		initialBitrateKbps = minBitrateKbps
	}
	if initialBitrateKbps > maxBitrateKbps {
		initialBitrateKbps = maxBitrateKbps
	}
	return &PerformanceMonitor{
		sampler:     sampler,
		sessions:    sessions,
		thresholds:  DefaultFeedbackThresholds(),
		logger:      logger,
		minBitrate:  minBitrateKbps,
		maxBitrate:  maxBitrateKbps,
		stats:       observe.NewValue[domain.ConnectionStats](),
		recommended: observe.NewValue[int](),
		bitrate:     initialBitrateKbps,
	}
}

// Stats is the once-per-second snapshot observable.
func (m *PerformanceMonitor) Stats() *observe.Value[domain.ConnectionStats] {
	return m.stats
}

// Recommended is the bitrate recommendation observable (kbps).
func (m *PerformanceMonitor) Recommended() *observe.Value[int] {
	return m.recommended
}

// Run samples on the given interval until the context is cancelled.
func (m *PerformanceMonitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick performs one sampling iteration.
func (m *PerformanceMonitor) Tick(ctx context.Context) domain.ConnectionStats {
	sample, err := m.sampler.Sample(ctx)
	if err != nil {
		m.logger.Warnw("system sample failed", "error", err)
	}
	agg := m.sessions.Aggregates()

	m.mu.Lock()
	now := time.Now()

	stats := domain.ConnectionStats{
		Timestamp:   now,
		RTT:         agg.AverageLatency,
		BitrateKbps: agg.BitrateKbps,
		FrameRate:   agg.AverageFPS,
		FrameWidth:  agg.FrameWidth,
		FrameHeight: agg.FrameHeight,
		PacketsLost: agg.PacketsLost,
		CPUUsage:    sample.CPUUsage,
		MemoryUsage: sample.MemoryUsage,
	}

	if m.hasLast {
		elapsed := now.Sub(m.lastAt).Seconds()
		if elapsed > 0 {
			stats.BytesSent = delta(sample.BytesSent, m.lastSample.BytesSent)
			stats.BytesReceived = delta(sample.BytesReceived, m.lastSample.BytesReceived)
			stats.PacketsSent = delta(sample.PacketsSent, m.lastSample.PacketsSent)
			stats.PacketsReceived = delta(sample.PacketsReceived, m.lastSample.PacketsReceived)
		}
		// Coarse jitter estimate from latency variation between ticks.
		j := agg.AverageLatency - m.lastLatency
		if j < 0 {
			j = -j
		}
		stats.Jitter = j
	}

	m.lastSample = sample
	m.lastAt = now
	m.hasLast = true
	m.lastLatency = agg.AverageLatency

	m.bitrate = m.RecommendBitrate(stats, m.bitrate, agg.TargetFPS)
	rec := m.bitrate
	m.mu.Unlock()

	m.stats.Set(stats)
	m.recommended.Set(rec)
	return stats
}

func delta(now, prev uint64) uint64 {
	if now < prev {
		return 0 // counter reset
	}
	return now - prev
}

// RecommendBitrate applies the adaptation rule: degrade under high
// RTT/jitter/loss, boost when the link is healthy and the achieved
// frame rate is near target, with an independent downward correction
// when achieved fps falls below the shortfall ratio. The result is
// always clamped to the configured band.
func (m *PerformanceMonitor) RecommendBitrate(stats domain.ConnectionStats, current int, targetFPS float64) int {
	t := m.thresholds
	next := current

	switch {
	case stats.RTT > t.MaxRTT || stats.Jitter > t.MaxJitter || stats.LossRatio() > t.MaxLoss:
		next = int(float64(current) * degradeFactor)
	case stats.RTT < t.GoodRTT && stats.Jitter < t.GoodJitter &&
		(targetFPS <= 0 || stats.FrameRate >= fpsHealthyRatio*targetFPS):
		next = int(float64(current) * boostFactor)
	}

	if targetFPS > 0 && stats.FrameRate < fpsShortfallRatio*targetFPS {
		next = int(float64(next) * degradeFactor)
	}

	if next < m.minBitrate {
		next = m.minBitrate
	}
	if next > m.maxBitrate {
		next = m.maxBitrate
	}
	return next
}
