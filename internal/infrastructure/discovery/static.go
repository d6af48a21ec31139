// Package discovery provides configuration-seeded stand-ins for the
// platform discovery collaborators. Hosts with a native WiFi-Direct or
// Bluetooth stack plug their own implementations into the same ports.
package discovery

import (
	"context"
	"fmt"
	"sync"

	"skybridge/internal/core/ports"
	"skybridge/pkg/config"
)

// StaticWifiDirect serves a fixed peer list from configuration. Connect
// succeeds for any listed peer and reports its IP as the group owner.
type StaticWifiDirect struct {
	mu    sync.RWMutex
	peers []ports.DiscoveredPeer
}

func NewStaticWifiDirect(peers []config.StaticPeer) *StaticWifiDirect {
	w := &StaticWifiDirect{}
	w.SetPeers(peers)
	return w
}

// SetPeers replaces the served peer list. Used by tests and by hosts
// that refresh the list out of band.
func (w *StaticWifiDirect) SetPeers(peers []config.StaticPeer) {
	converted := make([]ports.DiscoveredPeer, 0, len(peers))
	for _, p := range peers {
		converted = append(converted, ports.DiscoveredPeer{
			Name:             p.Name,
			Address:          p.Address,
			IPAddress:        p.IPAddress,
			SignalLevel:      p.SignalLevel,
			LinkSpeedMbps:    p.LinkSpeedMbps,
			HasLosslessRadio: p.HasLosslessRadio,
		})
	}
	w.mu.Lock()
	w.peers = converted
	w.mu.Unlock()
}

func (w *StaticWifiDirect) DiscoverPeers(ctx context.Context) ([]ports.DiscoveredPeer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]ports.DiscoveredPeer, len(w.peers))
	copy(out, w.peers)
	return out, nil
}

func (w *StaticWifiDirect) Connect(ctx context.Context, address string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, p := range w.peers {
		if p.Address == address {
			return p.IPAddress, nil
		}
	}
	return "", fmt.Errorf("wifi-direct connect: unknown peer %s", address)
}

func (w *StaticWifiDirect) Disconnect(ctx context.Context, address string) error {
	return ctx.Err()
}

// StaticBluetooth serves a fixed bonded-device list from configuration.
type StaticBluetooth struct {
	mu      sync.RWMutex
	devices []ports.BondedDevice
}

func NewStaticBluetooth(devices []config.StaticBondedDevice) *StaticBluetooth {
	b := &StaticBluetooth{}
	b.SetDevices(devices)
	return b
}

func (b *StaticBluetooth) SetDevices(devices []config.StaticBondedDevice) {
	converted := make([]ports.BondedDevice, 0, len(devices))
	for _, d := range devices {
		converted = append(converted, ports.BondedDevice{
			Name:        d.Name,
			Identifier:  d.Identifier,
			SignalLevel: d.SignalLevel,
		})
	}
	b.mu.Lock()
	b.devices = converted
	b.mu.Unlock()
}

func (b *StaticBluetooth) BondedDevices(ctx context.Context) ([]ports.BondedDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]ports.BondedDevice, len(b.devices))
	copy(out, b.devices)
	return out, nil
}

// StaticNfc reports a fixed radio state.
type StaticNfc struct {
	enabled bool
}

func NewStaticNfc(enabled bool) *StaticNfc {
	return &StaticNfc{enabled: enabled}
}

func (n *StaticNfc) Enabled() bool {
	return n.enabled
}
