package ports

import (
	"context"

	"skybridge/internal/core/domain"
)

// TransportNegotiator picks the best available transport to a peer or
// account. It never fails outright; the cloud relay is the transport of
// last resort.
type TransportNegotiator interface {
	NegotiateTransport(ctx context.Context, target domain.DeviceID, fallbackAccount domain.AccountID) (domain.Transport, error)
	ForceAccountBridge(ctx context.Context, account domain.AccountID) (*domain.AccountEndpoint, error)
	Release()
}

// SessionController is the mirror server surface the presentation layer
// talks to.
type SessionController interface {
	StartServer(ctx context.Context, port int) bool
	StopServer()
	State() domain.ServerState
	Sessions() []domain.RemoteSession
}
