package memory

import (
	"context"
	"sync"

	"skybridge/internal/core/domain"
	"skybridge/internal/core/ports"
)

// PeerDirectory is the in-memory live peer directory. The negotiation
// coordinator is the only writer; readers get copies.
type PeerDirectory struct {
	peers map[domain.DeviceID]*domain.PeerDevice
	mu    sync.RWMutex
}

func NewPeerDirectory() ports.PeerDirectory {
	return &PeerDirectory{
		peers: make(map[domain.DeviceID]*domain.PeerDevice),
	}
}

func (d *PeerDirectory) Upsert(ctx context.Context, peer *domain.PeerDevice) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.peers[peer.DeviceID] = peer
	return nil
}

func (d *PeerDirectory) GetByID(ctx context.Context, id domain.DeviceID) (*domain.PeerDevice, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	peer, exists := d.peers[id]
	if !exists {
		return nil, domain.ErrPeerNotFound
	}
	copied := *peer
	return &copied, nil
}

func (d *PeerDirectory) List(ctx context.Context) ([]*domain.PeerDevice, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*domain.PeerDevice, 0, len(d.peers))
	for _, peer := range d.peers {
		copied := *peer
		out = append(out, &copied)
	}
	return out, nil
}

// ReplaceAll swaps the directory in one step; a discovery refresh is
// observed atomically and absent peers expire implicitly.
func (d *PeerDirectory) ReplaceAll(ctx context.Context, peers []*domain.PeerDevice) error {
	next := make(map[domain.DeviceID]*domain.PeerDevice, len(peers))
	for _, peer := range peers {
		next[peer.DeviceID] = peer
	}

	d.mu.Lock()
	d.peers = next
	d.mu.Unlock()
	return nil
}

func (d *PeerDirectory) Remove(ctx context.Context, id domain.DeviceID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.peers[id]; !exists {
		return domain.ErrPeerNotFound
	}
	delete(d.peers, id)
	return nil
}
