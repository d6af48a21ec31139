package services

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"skybridge/internal/core/domain"
	"skybridge/internal/core/ports"
	"skybridge/pkg/observe"
	"skybridge/pkg/tracing"
	"skybridge/pkg/utils"

	"go.uber.org/zap"
)

// NegotiatorConfig carries the coordinator's tunables. Ports and
// channel numbers are overridable via configuration, not protocol
// requirements.
type NegotiatorConfig struct {
	ServerPort       int
	ProbePort        int
	ProbeTimeout     time.Duration
	ConnectTimeout   time.Duration
	PeerRefresh      time.Duration
	AccountRefresh   time.Duration
	DefaultAccountID domain.AccountID
	RelayPort        int
	BluetoothChannel int
	NfcChannel       int
	AirPlayChannel   int
}

// Negotiator is the transport negotiation coordinator. It owns the live
// peer directory, the account-endpoint cache and the current-transport
// observable; everyone else only reads them.
type Negotiator struct {
	cfg       NegotiatorConfig
	directory ports.PeerDirectory
	accounts  ports.AccountEndpointStore
	resolver  *CapabilityResolver
	estimator *LinkEstimator
	wifi      ports.WifiDirectConnector
	bluetooth ports.BluetoothRegistry
	nfc       ports.NfcAdapter
	prober    ports.ReachabilityProber
	logger    *zap.SugaredLogger

	transport *observe.Value[domain.Transport]

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	releaseOnce sync.Once
}

func NewNegotiator(
	cfg NegotiatorConfig,
	directory ports.PeerDirectory,
	accounts ports.AccountEndpointStore,
	resolver *CapabilityResolver,
	estimator *LinkEstimator,
	wifi ports.WifiDirectConnector,
	bluetooth ports.BluetoothRegistry,
	nfc ports.NfcAdapter,
	prober ports.ReachabilityProber,
	logger *zap.SugaredLogger,
) *Negotiator {
	ctx, cancel := context.WithCancel(context.Background())

	n := &Negotiator{
		cfg:       cfg,
		directory: directory,
		accounts:  accounts,
		resolver:  resolver,
		estimator: estimator,
		wifi:      wifi,
		bluetooth: bluetooth,
		nfc:       nfc,
		prober:    prober,
		logger:    logger,
		transport: observe.NewValue[domain.Transport](),
		cancel:    cancel,
	}

	n.wg.Add(2)
	go n.peerRefreshLoop(ctx)
	go n.accountRefreshLoop(ctx)

	return n
}

// Transport is the current-transport observable, published atomically
// on every successful negotiation.
func (n *Negotiator) Transport() *observe.Value[domain.Transport] {
	return n.transport
}

// Release cancels the coordinator's background loops and waits for them
// to stop. Safe to call more than once.
func (n *Negotiator) Release() {
	n.releaseOnce.Do(func() {
		n.cancel()
		n.wg.Wait()
	})
}

// NegotiateTransport picks the best available transport to the target
// peer, falling back to LAN and finally to a cloud relay. Probe
// failures advance to the next candidate; the call cannot fail outright
// and only returns an error when the context is cancelled.
func (n *Negotiator) NegotiateTransport(ctx context.Context, target domain.DeviceID, fallbackAccount domain.AccountID) (domain.Transport, error) {
	ctx, span := tracing.TraceNegotiation(ctx, string(target))
	defer span.End()

	var peer *domain.PeerDevice
	if target != "" {
		p, err := n.directory.GetByID(ctx, target)
		if err == nil {
			peer = p
		} else {
			n.logger.Debugw("negotiation target not in directory", "device_id", target)
		}
	}

	if peer != nil {
		if t, ok := n.tryProximity(ctx, peer); ok {
			return n.adopt(t), nil
		}
	}

	if err := ctx.Err(); err != nil {
		return domain.Transport{}, err
	}

	if t, ok := n.tryLan(ctx, peer); ok {
		return n.adopt(t), nil
	}

	if err := ctx.Err(); err != nil {
		return domain.Transport{}, err
	}

	t, err := n.cloudFallback(ctx, fallbackAccount)
	if err != nil {
		return domain.Transport{}, err
	}
	return n.adopt(t), nil
}

func (n *Negotiator) adopt(t domain.Transport) domain.Transport {
	n.transport.Set(t)
	n.logger.Infow("transport negotiated", "kind", t.Kind)
	return t
}

// tryProximity attempts peer-specific media in strict priority order:
// WiFi-Direct, Bluetooth, NFC, AirPlay, UniversalBridge. The first
// medium that is both hinted and connectable wins.
func (n *Negotiator) tryProximity(ctx context.Context, peer *domain.PeerDevice) (domain.Transport, bool) {
	if peer.Capabilities.Has(domain.HintWifiDirect) {
		if t, ok := n.tryWifiDirect(ctx, peer); ok {
			return t, true
		}
	}
	if peer.Capabilities.Has(domain.HintBluetooth) {
		if t, ok := n.tryBluetooth(ctx, peer); ok {
			return t, true
		}
	}
	if peer.Capabilities.Has(domain.HintNfc) && n.nfc.Enabled() {
		q := n.estimator.EstimateNfc(peer)
		return peripheralFrom(peer, domain.HintNfc, n.cfg.NfcChannel, q), true
	}
	if peer.Capabilities.Has(domain.HintAirPlay) {
		q := n.estimator.EstimateAirPlay(peer)
		return peripheralFrom(peer, domain.HintAirPlay, n.cfg.AirPlayChannel, q), true
	}
	if peer.Capabilities.Has(domain.HintUniversalBridge) {
		q := n.estimator.EstimateUniversalBridge(peer)
		return peripheralFrom(peer, domain.HintUniversalBridge, 0, q), true
	}
	return domain.Transport{}, false
}

func (n *Negotiator) tryWifiDirect(ctx context.Context, peer *domain.PeerDevice) (domain.Transport, bool) {
	probeCtx, span := tracing.TraceProbe(ctx, string(domain.HintWifiDirect))
	defer span.End()

	connectCtx, cancel := context.WithTimeout(probeCtx, n.cfg.ConnectTimeout)
	defer cancel()

	groupOwner, err := n.wifi.Connect(connectCtx, peer.Address)
	if err != nil {
		tracing.RecordError(probeCtx, err)
		n.logger.Debugw("wifi-direct connect failed", "peer", peer.DeviceID, "error", err)
		return domain.Transport{}, false
	}

	q := n.estimator.EstimateWifiDirect(probeCtx, peer, peer.LinkSpeedMbps, true)
	medium := domain.HintWifiDirect
	if q.SupportsLossless && peer.HasLosslessRadio {
		medium = domain.HintUltraWideband
	}

	return domain.NewDirectHotspot(domain.DirectHotspot{
		GroupOwnerAddress:  groupOwner,
		Port:               n.cfg.ServerPort,
		Medium:             medium,
		ThroughputHintMbps: q.ThroughputMbps,
		LatencyHintMs:      float64(q.Latency.Milliseconds()),
	}), true
}

func (n *Negotiator) tryBluetooth(ctx context.Context, peer *domain.PeerDevice) (domain.Transport, bool) {
	probeCtx, span := tracing.TraceProbe(ctx, string(domain.HintBluetooth))
	defer span.End()

	bonded, err := n.bluetooth.BondedDevices(probeCtx)
	if err != nil {
		tracing.RecordError(probeCtx, err)
		return domain.Transport{}, false
	}
	for _, d := range bonded {
		if d.Identifier == peer.Address || d.Name == peer.DisplayName {
			q := n.estimator.EstimateBluetooth(peer)
			return peripheralFrom(peer, domain.HintBluetooth, n.cfg.BluetoothChannel, q), true
		}
	}
	return domain.Transport{}, false
}

func peripheralFrom(peer *domain.PeerDevice, medium domain.TransportHint, channel int, q domain.LinkQuality) domain.Transport {
	return domain.NewPeripheral(domain.Peripheral{
		Medium:             medium,
		Identifier:         peer.Address,
		Channel:            channel,
		ThroughputHintMbps: q.ThroughputMbps,
		LatencyHintMs:      float64(q.Latency.Milliseconds()),
	})
}

// tryLan probes candidate IPs (the peer's known address, then gateway
// derived guesses) with a short-timeout connect; first reachable wins.
func (n *Negotiator) tryLan(ctx context.Context, peer *domain.PeerDevice) (domain.Transport, bool) {
	probeCtx, span := tracing.TraceProbe(ctx, string(domain.HintLan))
	defer span.End()

	for _, ip := range n.lanCandidates(peer) {
		if _, err := n.prober.Probe(probeCtx, ip, n.cfg.ProbePort, n.cfg.ProbeTimeout); err != nil {
			continue
		}
		linkSpeed := 0.0
		var qPeer domain.PeerDevice
		if peer != nil {
			linkSpeed = peer.LinkSpeedMbps
			qPeer = *peer
		}
		n.estimator.EstimateLan(probeCtx, &qPeer, ip, linkSpeed)
		return domain.NewLocalLan(domain.LocalLan{IPAddress: ip, Port: n.cfg.ServerPort}), true
	}
	return domain.Transport{}, false
}

func (n *Negotiator) lanCandidates(peer *domain.PeerDevice) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(ip string) {
		if ip != "" && !seen[ip] {
			seen[ip] = true
			out = append(out, ip)
		}
	}
	if peer != nil {
		add(peer.IPAddress)
	}
	for _, ip := range gatewayGuesses() {
		add(ip)
	}
	return out
}

// gatewayGuesses derives likely gateway addresses (.1 of each local
// IPv4 subnet) from the host's interfaces.
func gatewayGuesses() []string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	var out []string
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil {
			continue
		}
		base := ip4.Mask(ipNet.Mask)
		base[3] |= 1
		out = append(out, base.String())
	}
	return out
}

// cloudFallback is the transport of last resort: a relay bound to the
// fallback account, the first cached account, or the fixed default.
func (n *Negotiator) cloudFallback(ctx context.Context, fallbackAccount domain.AccountID) (domain.Transport, error) {
	account := fallbackAccount
	if account == "" {
		if cached, err := n.accounts.List(ctx); err == nil && len(cached) > 0 {
			account = cached[0].AccountID
		}
	}
	if account == "" {
		account = n.cfg.DefaultAccountID
	}

	endpoint, err := n.ensureAccountEndpoint(ctx, account)
	if err != nil {
		return domain.Transport{}, fmt.Errorf("cloud fallback for %s: %w", account, err)
	}

	n.estimator.CloudQuality()
	return domain.NewCloudRelay(domain.CloudRelay{
		RelayID:        endpoint.RelayID,
		AccountID:      account,
		NegotiatedPort: n.cfg.RelayPort,
	}), nil
}

func (n *Negotiator) ensureAccountEndpoint(ctx context.Context, account domain.AccountID) (*domain.AccountEndpoint, error) {
	if ep, err := n.accounts.Get(ctx, account); err == nil {
		return ep, nil
	}

	q := n.estimator.CloudQuality()
	ep := &domain.AccountEndpoint{
		AccountID:      account,
		RelayID:        utils.GenerateRelayID(),
		ThroughputMbps: q.ThroughputMbps,
		Latency:        q.Latency,
		LastUpdated:    time.Now(),
	}
	if err := n.accounts.Put(ctx, ep); err != nil {
		return nil, err
	}
	n.logger.Infow("account endpoint created", "account", account, "relay", ep.RelayID)
	return ep, nil
}

// ForceAccountBridge unconditionally mints a new relay id for the
// account, replacing any cached entry. Used when the caller wants a
// cloud path regardless of proximity.
func (n *Negotiator) ForceAccountBridge(ctx context.Context, account domain.AccountID) (*domain.AccountEndpoint, error) {
	if account == "" {
		account = n.cfg.DefaultAccountID
	}

	q := n.estimator.CloudQuality()
	ep := &domain.AccountEndpoint{
		AccountID:      account,
		RelayID:        utils.GenerateRelayID(),
		ThroughputMbps: q.ThroughputMbps,
		Latency:        q.Latency,
		LastUpdated:    time.Now(),
	}
	if err := n.accounts.Put(ctx, ep); err != nil {
		return nil, fmt.Errorf("force account bridge: %w", err)
	}

	n.transport.Set(domain.NewCloudRelay(domain.CloudRelay{
		RelayID:        ep.RelayID,
		AccountID:      account,
		NegotiatedPort: n.cfg.RelayPort,
	}))
	n.logger.Infow("account bridge forced", "account", account, "relay", ep.RelayID)
	return ep, nil
}

// peerRefreshLoop re-runs discovery and capability classification for
// the coordinator's lifetime.
func (n *Negotiator) peerRefreshLoop(ctx context.Context) {
	defer n.wg.Done()

	ticker := time.NewTicker(n.cfg.PeerRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.refreshPeers(ctx)
		}
	}
}

func (n *Negotiator) refreshPeers(ctx context.Context) {
	refreshCtx, cancel := context.WithTimeout(ctx, n.cfg.ConnectTimeout)
	defer cancel()

	byName := make(map[string]*domain.PeerDevice)
	var peers []*domain.PeerDevice

	discovered, err := n.wifi.DiscoverPeers(refreshCtx)
	if err != nil {
		n.logger.Warnw("wifi-direct discovery failed", "error", err)
	}
	for _, dp := range discovered {
		if n.resolver.ShouldExclude(dp.Name) {
			continue
		}
		peer := n.classify(dp)
		peers = append(peers, peer)
		byName[peer.DisplayName] = peer
	}

	bonded, err := n.bluetooth.BondedDevices(refreshCtx)
	if err != nil {
		n.logger.Debugw("bonded device listing failed", "error", err)
	}
	for _, d := range bonded {
		if n.resolver.ShouldExclude(d.Name) {
			continue
		}
		if existing, ok := byName[d.Name]; ok {
			existing.Capabilities.Add(domain.HintBluetooth)
			continue
		}
		platform := n.resolver.ResolvePlatform(d.Name)
		peer := &domain.PeerDevice{
			DeviceID:     domain.DeviceID(d.Identifier),
			DisplayName:  d.Name,
			Address:      d.Identifier,
			SignalLevel:  d.SignalLevel,
			LastSeen:     time.Now(),
			Capabilities: domain.NewHintSet(domain.HintBluetooth),
			Platform:     platform,
			Remark:       remarkFor(platform, domain.NewHintSet(domain.HintBluetooth)),
		}
		peers = append(peers, peer)
		byName[d.Name] = peer
	}

	if !n.nfc.Enabled() {
		for _, p := range peers {
			delete(p.Capabilities, domain.HintNfc)
		}
	}

	if err := n.directory.ReplaceAll(ctx, peers); err != nil {
		n.logger.Warnw("peer directory refresh failed", "error", err)
		return
	}
	n.logger.Debugw("peer directory refreshed", "peers", len(peers))
}

func (n *Negotiator) classify(dp ports.DiscoveredPeer) *domain.PeerDevice {
	platform := n.resolver.ResolvePlatform(dp.Name)
	hints := n.resolver.TransportsFor(platform)
	if dp.HasLosslessRadio {
		hints.Add(domain.HintUltraWideband)
	}
	if IsAirPlayPeer(dp.Name) {
		hints.Add(domain.HintAirPlay)
	}
	return &domain.PeerDevice{
		DeviceID:         domain.DeviceID(dp.Address),
		DisplayName:      dp.Name,
		Address:          dp.Address,
		IPAddress:        dp.IPAddress,
		SignalLevel:      dp.SignalLevel,
		LastSeen:         time.Now(),
		LinkSpeedMbps:    dp.LinkSpeedMbps,
		Capabilities:     hints,
		Platform:         platform,
		Remark:           remarkFor(platform, hints),
		HasLosslessRadio: dp.HasLosslessRadio,
	}
}

func remarkFor(platform domain.Platform, hints domain.HintSet) string {
	switch {
	case hints.Has(domain.HintUltraWideband):
		return "lossless-capable direct link"
	case hints.Has(domain.HintWifiDirect):
		return "direct hotspot capable"
	case hints.Has(domain.HintAirPlay):
		return "airplay receiver"
	case platform == domain.PlatformUnknown:
		return "unknown platform, universal bridge only"
	default:
		return fmt.Sprintf("%s over lan or cloud", platform)
	}
}

// accountRefreshLoop rewarms the account-endpoint cache from persisted
// storage for the coordinator's lifetime.
func (n *Negotiator) accountRefreshLoop(ctx context.Context) {
	defer n.wg.Done()

	ticker := time.NewTicker(n.cfg.AccountRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r, ok := n.accounts.(interface{ Refresh(context.Context) error }); ok {
				if err := r.Refresh(ctx); err != nil {
					n.logger.Warnw("account cache refresh failed", "error", err)
				}
				continue
			}
			if _, err := n.accounts.List(ctx); err != nil {
				n.logger.Warnw("account cache refresh failed", "error", err)
			}
		}
	}
}
