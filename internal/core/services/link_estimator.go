package services

import (
	"context"
	"strings"
	"time"

	"skybridge/internal/core/domain"
	"skybridge/internal/core/ports"
	"skybridge/pkg/observe"

	"go.uber.org/zap"
)

// Throughput factors applied to a link's declared speed. Direct links
// keep most of the declared bandwidth; LAN pays for the extra hop.
const (
	factorUltraWideband = 0.90
	factorWifiDirect    = 0.70
	factorLan           = 0.50

	minThroughputMbps = 10.0

	// Lossless eligibility: signal and declared speed must both clear
	// these, unless a dedicated lossless radio is present.
	losslessSignalLevel = 3
	losslessMinLinkMbps = 400.0

	directFormedLatency = 8 * time.Millisecond

	bluetoothBaseMbps    = 2.0
	bluetoothBaseLatency = 40 * time.Millisecond
	nfcBaseMbps          = 0.4
	nfcBaseLatency       = 25 * time.Millisecond

	airplayMbps    = 200.0
	airplayLatency = 12 * time.Millisecond

	cloudMbps    = 25.0
	cloudLatency = 120 * time.Millisecond
)

// airplayKeywords mark peers reachable over the AirPlay family.
var airplayKeywords = []string{"airplay", "apple tv", "appletv", "homepod"}

// LinkEstimator produces normalized quality records per medium. Every
// estimate is published to the shared current-quality observable the
// session manager subscribes to.
type LinkEstimator struct {
	prober  ports.ReachabilityProber
	quality *observe.Value[domain.LinkQuality]
	logger  *zap.SugaredLogger

	probePort    int
	probeTimeout time.Duration
}

func NewLinkEstimator(prober ports.ReachabilityProber, probePort int, probeTimeout time.Duration, logger *zap.SugaredLogger) *LinkEstimator {
	return &LinkEstimator{
		prober:       prober,
		quality:      observe.NewValue[domain.LinkQuality](),
		logger:       logger,
		probePort:    probePort,
		probeTimeout: probeTimeout,
	}
}

// Quality is the shared current-quality observable.
func (e *LinkEstimator) Quality() *observe.Value[domain.LinkQuality] {
	return e.quality
}

func (e *LinkEstimator) publish(q domain.LinkQuality) domain.LinkQuality {
	q.MeasuredAt = time.Now()
	e.quality.Set(q)
	e.logger.Debugw("link quality estimated",
		"hint", q.Hint,
		"throughput_mbps", q.ThroughputMbps,
		"latency", q.Latency,
		"lossless", q.SupportsLossless,
	)
	return q
}

// EstimateWifiDirect rates a WiFi-Direct link. directFormed marks a
// freshly formed group whose latency is known rather than probed.
func (e *LinkEstimator) EstimateWifiDirect(ctx context.Context, peer *domain.PeerDevice, linkSpeedMbps float64, directFormed bool) domain.LinkQuality {
	factor := factorWifiDirect
	if peer.Capabilities.Has(domain.HintUltraWideband) || peer.HasLosslessRadio {
		factor = factorUltraWideband
	}

	throughput := linkSpeedMbps * factor
	if throughput < minThroughputMbps {
		throughput = minThroughputMbps
	}

	latency := directFormedLatency
	if !directFormed && peer.IPAddress != "" {
		if rtt, err := e.prober.Probe(ctx, peer.IPAddress, e.probePort, e.probeTimeout); err == nil {
			latency = rtt
		}
	}

	lossless := peer.HasLosslessRadio ||
		(peer.SignalLevel >= losslessSignalLevel && linkSpeedMbps >= losslessMinLinkMbps)

	return e.publish(domain.LinkQuality{
		Hint:             domain.HintWifiDirect,
		Latency:          latency,
		ThroughputMbps:   throughput,
		IsDirect:         true,
		SupportsLossless: lossless,
	})
}

// EstimateLan rates a LAN path to the given address, probing for the
// round trip.
func (e *LinkEstimator) EstimateLan(ctx context.Context, peer *domain.PeerDevice, address string, linkSpeedMbps float64) domain.LinkQuality {
	throughput := linkSpeedMbps * factorLan
	if throughput < minThroughputMbps {
		throughput = minThroughputMbps
	}

	latency := directFormedLatency
	if rtt, err := e.prober.Probe(ctx, address, e.probePort, e.probeTimeout); err == nil {
		latency = rtt
	}

	return e.publish(domain.LinkQuality{
		Hint:           domain.HintLan,
		Latency:        latency,
		ThroughputMbps: throughput,
		IsDirect:       false,
	})
}

// signalScale maps an ordinal 0..4 signal level onto a coarse factor.
func signalScale(level int) float64 {
	if level < 0 {
		level = 0
	}
	if level > 4 {
		level = 4
	}
	return 0.4 + 0.15*float64(level)
}

// EstimateBluetooth rates a bonded Bluetooth link. Never lossless.
func (e *LinkEstimator) EstimateBluetooth(peer *domain.PeerDevice) domain.LinkQuality {
	scale := signalScale(peer.SignalLevel)
	return e.publish(domain.LinkQuality{
		Hint:           domain.HintBluetooth,
		Latency:        time.Duration(float64(bluetoothBaseLatency) / scale),
		ThroughputMbps: bluetoothBaseMbps * scale,
		IsDirect:       true,
	})
}

// EstimateNfc rates an NFC proximity link. Never lossless.
func (e *LinkEstimator) EstimateNfc(peer *domain.PeerDevice) domain.LinkQuality {
	scale := signalScale(peer.SignalLevel)
	return e.publish(domain.LinkQuality{
		Hint:           domain.HintNfc,
		Latency:        time.Duration(float64(nfcBaseLatency) / scale),
		ThroughputMbps: nfcBaseMbps * scale,
		IsDirect:       true,
	})
}

// IsAirPlayPeer reports whether a peer's name or account id belongs to
// the AirPlay family.
func IsAirPlayPeer(nameOrAccount string) bool {
	name := strings.ToLower(nameOrAccount)
	for _, kw := range airplayKeywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// EstimateAirPlay rates an AirPlay link with fixed optimistic values.
func (e *LinkEstimator) EstimateAirPlay(peer *domain.PeerDevice) domain.LinkQuality {
	return e.publish(domain.LinkQuality{
		Hint:             domain.HintAirPlay,
		Latency:          airplayLatency,
		ThroughputMbps:   airplayMbps,
		IsDirect:         true,
		SupportsLossless: true,
	})
}

// universalBridgeTable interpolates quality from whichever stronger
// hints are simultaneously present on a peer of unknown platform.
var universalBridgeTable = []struct {
	hint       domain.TransportHint
	throughput float64
	latency    time.Duration
	lossless   bool
}{
	{domain.HintUltraWideband, 400, 6 * time.Millisecond, true},
	{domain.HintWifiDirect, 160, 15 * time.Millisecond, false},
	{domain.HintLan, 80, 20 * time.Millisecond, false},
	{domain.HintBluetooth, bluetoothBaseMbps, bluetoothBaseLatency, false},
}

// EstimateUniversalBridge rates the fallback umbrella medium from the
// strongest co-present hints so an unknown peer still gets a reasonable
// estimate instead of worst-case.
func (e *LinkEstimator) EstimateUniversalBridge(peer *domain.PeerDevice) domain.LinkQuality {
	q := domain.LinkQuality{
		Hint:           domain.HintUniversalBridge,
		Latency:        60 * time.Millisecond,
		ThroughputMbps: minThroughputMbps,
		IsDirect:       true,
	}
	for _, row := range universalBridgeTable {
		if peer.Capabilities.Has(row.hint) {
			q.ThroughputMbps = row.throughput
			q.Latency = row.latency
			q.SupportsLossless = row.lossless
			break
		}
	}
	return e.publish(q)
}

// CloudQuality publishes the conservative fixed estimate used for the
// relay path.
func (e *LinkEstimator) CloudQuality() domain.LinkQuality {
	return e.publish(domain.LinkQuality{
		Hint:           domain.HintCloud,
		Latency:        cloudLatency,
		ThroughputMbps: cloudMbps,
		IsDirect:       false,
	})
}
