package monitoring

import (
	"skybridge/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector publishes the mirroring counters on the Prometheus
// registry. It satisfies streaming.MetricsRecorder.
type Collector struct {
	sessionsActive   prometheus.Gauge
	sessionsTotal    prometheus.Counter
	framesSentTotal  prometheus.Counter
	bytesSentTotal   prometheus.Counter
	bitrateKbps      prometheus.Gauge
	targetFPS        prometheus.Gauge
	negotiationTotal *prometheus.CounterVec
	probeLatency     prometheus.Histogram
}

func NewCollector() *Collector {
	return &Collector{
		sessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "skybridge_sessions_active",
			Help: "Number of currently connected mirroring sessions",
		}),

		sessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "skybridge_sessions_total",
			Help: "Total number of mirroring sessions admitted",
		}),

		framesSentTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "skybridge_frames_sent_total",
			Help: "Total number of frames transmitted",
		}),

		bytesSentTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "skybridge_bytes_sent_total",
			Help: "Total number of stream bytes transmitted",
		}),

		bitrateKbps: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "skybridge_bitrate_kbps",
			Help: "Current target bitrate in kilobits per second",
		}),

		targetFPS: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "skybridge_target_fps",
			Help: "Current adaptive frame rate target",
		}),

		negotiationTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "skybridge_negotiations_total",
			Help: "Transport negotiation outcomes by transport kind",
		}, []string{"kind", "medium"}),

		probeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "skybridge_probe_latency_seconds",
			Help:    "Reachability probe round-trip latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}
}

func (c *Collector) SessionStarted() {
	c.sessionsActive.Inc()
	c.sessionsTotal.Inc()
}

func (c *Collector) SessionEnded() {
	c.sessionsActive.Dec()
}

func (c *Collector) FrameSent(bytes int) {
	c.framesSentTotal.Inc()
	c.bytesSentTotal.Add(float64(bytes))
}

func (c *Collector) SetBitrate(kbps int) {
	c.bitrateKbps.Set(float64(kbps))
}

func (c *Collector) SetTargetFPS(fps float64) {
	c.targetFPS.Set(fps)
}

// RecordNegotiation counts one negotiation outcome.
func (c *Collector) RecordNegotiation(transport domain.Transport) {
	medium := ""
	switch transport.Kind {
	case domain.TransportDirectHotspot:
		if transport.DirectHotspot != nil {
			medium = string(transport.DirectHotspot.Medium)
		}
	case domain.TransportPeripheral:
		if transport.Peripheral != nil {
			medium = string(transport.Peripheral.Medium)
		}
	}
	c.negotiationTotal.WithLabelValues(string(transport.Kind), medium).Inc()
}

func (c *Collector) RecordProbeLatency(seconds float64) {
	c.probeLatency.Observe(seconds)
}
