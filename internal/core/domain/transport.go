package domain

// TransportKind tags the active variant of a Transport.
type TransportKind string

const (
	TransportDirectHotspot TransportKind = "direct_hotspot"
	TransportLocalLan      TransportKind = "local_lan"
	TransportCloudRelay    TransportKind = "cloud_relay"
	TransportPeripheral    TransportKind = "peripheral"
)

// Transport is the negotiation's final output: a closed union over the
// four channel shapes a session can run on. Exactly one variant field is
// non-nil, matching Kind. Switching variants requires tearing down and
// rebuilding the capture pipeline.
type Transport struct {
	Kind TransportKind

	DirectHotspot *DirectHotspot
	LocalLan      *LocalLan
	CloudRelay    *CloudRelay
	Peripheral    *Peripheral
}

type DirectHotspot struct {
	GroupOwnerAddress  string
	Port               int
	Medium             TransportHint
	ThroughputHintMbps float64
	LatencyHintMs      float64
}

type LocalLan struct {
	IPAddress string
	Port      int
}

type CloudRelay struct {
	RelayID        string
	AccountID      AccountID
	NegotiatedPort int
}

type Peripheral struct {
	Medium             TransportHint
	Identifier         string
	Channel            int
	ThroughputHintMbps float64
	LatencyHintMs      float64
}

func NewDirectHotspot(d DirectHotspot) Transport {
	return Transport{Kind: TransportDirectHotspot, DirectHotspot: &d}
}

func NewLocalLan(l LocalLan) Transport {
	return Transport{Kind: TransportLocalLan, LocalLan: &l}
}

func NewCloudRelay(c CloudRelay) Transport {
	return Transport{Kind: TransportCloudRelay, CloudRelay: &c}
}

func NewPeripheral(p Peripheral) Transport {
	return Transport{Kind: TransportPeripheral, Peripheral: &p}
}

// IsProximity reports whether the transport is a direct or peripheral
// medium. Proximity transports always outrank LAN, which outranks the
// cloud relay.
func (t Transport) IsProximity() bool {
	return t.Kind == TransportDirectHotspot || t.Kind == TransportPeripheral
}
