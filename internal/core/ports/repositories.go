package ports

import (
	"context"

	"skybridge/internal/core/domain"
)

// PeerDirectory is the live directory of discovered peers. Single
// writer (the negotiation coordinator), many readers.
type PeerDirectory interface {
	Upsert(ctx context.Context, peer *domain.PeerDevice) error
	GetByID(ctx context.Context, id domain.DeviceID) (*domain.PeerDevice, error)
	List(ctx context.Context) ([]*domain.PeerDevice, error)
	// ReplaceAll swaps the whole directory in one step so a discovery
	// refresh is observed atomically.
	ReplaceAll(ctx context.Context, peers []*domain.PeerDevice) error
	Remove(ctx context.Context, id domain.DeviceID) error
}

// AccountEndpointStore persists cloud-relay bindings per account.
type AccountEndpointStore interface {
	Get(ctx context.Context, id domain.AccountID) (*domain.AccountEndpoint, error)
	Put(ctx context.Context, endpoint *domain.AccountEndpoint) error
	List(ctx context.Context) ([]*domain.AccountEndpoint, error)
	Remove(ctx context.Context, id domain.AccountID) error
}
