package domain

import "time"

type DeviceID string
type AccountID string
type SessionID string

// TransportHint marks a medium a peer is known to support. Hints are
// attached to discovered peers and drive negotiation ordering.
type TransportHint string

const (
	HintWifiDirect      TransportHint = "wifi_direct"
	HintLan             TransportHint = "lan"
	HintCloud           TransportHint = "cloud"
	HintUltraWideband   TransportHint = "ultra_wideband"
	HintBluetooth       TransportHint = "bluetooth"
	HintNfc             TransportHint = "nfc"
	HintAirPlay         TransportHint = "airplay"
	HintUniversalBridge TransportHint = "universal_bridge"
)

// HintSet is the set of transport hints attached to a peer.
type HintSet map[TransportHint]bool

func NewHintSet(hints ...TransportHint) HintSet {
	s := make(HintSet, len(hints))
	for _, h := range hints {
		s[h] = true
	}
	return s
}

func (s HintSet) Has(h TransportHint) bool { return s[h] }

func (s HintSet) Add(h TransportHint) { s[h] = true }

type Platform string

const (
	PlatformIOS      Platform = "ios"
	PlatformIPadOS   Platform = "ipados"
	PlatformMacOS    Platform = "macos"
	PlatformWindows  Platform = "windows"
	PlatformLinux    Platform = "linux"
	PlatformChromeOS Platform = "chromeos"
	PlatformAndroid  Platform = "android"
	PlatformUnknown  Platform = "unknown"
)

// PeerDevice is one entry in the live peer directory. Entries are
// created or refreshed each discovery cycle and age out implicitly when
// a refresh no longer reports them.
type PeerDevice struct {
	DeviceID      DeviceID
	DisplayName   string
	Address       string
	IPAddress     string
	SignalLevel   int // ordinal, platform-normalized 0..4
	LastSeen      time.Time
	LinkSpeedMbps float64
	Capabilities  HintSet
	Platform      Platform
	Remark        string
	// HasLosslessRadio reports a dedicated high-bandwidth radio that
	// qualifies the link for lossless streaming regardless of signal.
	HasLosslessRadio bool
}
