package memory

import (
	"context"
	"sync"
	"time"

	"skybridge/internal/core/domain"
	"skybridge/internal/core/ports"
)

type cachedEndpoint struct {
	endpoint  *domain.AccountEndpoint
	expiresAt time.Time
}

// AccountCache is a TTL cache of account endpoints, optionally backed
// by a persisted store. Reads fall through to the backing store on miss
// or expiry; writes go through. Entries never expire from the backing
// store, only from the cache, so Refresh can rewarm them.
type AccountCache struct {
	entries map[domain.AccountID]cachedEndpoint
	backing ports.AccountEndpointStore
	ttl     time.Duration
	mu      sync.RWMutex
}

// NewAccountCache builds a cache with the given TTL. backing may be nil
// for a purely in-memory store; entries then never expire.
func NewAccountCache(backing ports.AccountEndpointStore, ttl time.Duration) *AccountCache {
	return &AccountCache{
		entries: make(map[domain.AccountID]cachedEndpoint),
		backing: backing,
		ttl:     ttl,
	}
}

func (c *AccountCache) expiry() time.Time {
	if c.backing == nil || c.ttl <= 0 {
		return time.Time{} // zero means never expires
	}
	return time.Now().Add(c.ttl)
}

func (c *AccountCache) Get(ctx context.Context, id domain.AccountID) (*domain.AccountEndpoint, error) {
	c.mu.RLock()
	entry, ok := c.entries[id]
	c.mu.RUnlock()

	if ok && (entry.expiresAt.IsZero() || time.Now().Before(entry.expiresAt)) {
		copied := *entry.endpoint
		return &copied, nil
	}

	if c.backing == nil {
		return nil, domain.ErrAccountNotFound
	}

	endpoint, err := c.backing.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[id] = cachedEndpoint{endpoint: endpoint, expiresAt: c.expiry()}
	c.mu.Unlock()

	copied := *endpoint
	return &copied, nil
}

func (c *AccountCache) Put(ctx context.Context, endpoint *domain.AccountEndpoint) error {
	if c.backing != nil {
		if err := c.backing.Put(ctx, endpoint); err != nil {
			return err
		}
	}

	copied := *endpoint
	c.mu.Lock()
	c.entries[endpoint.AccountID] = cachedEndpoint{endpoint: &copied, expiresAt: c.expiry()}
	c.mu.Unlock()
	return nil
}

func (c *AccountCache) List(ctx context.Context) ([]*domain.AccountEndpoint, error) {
	if c.backing != nil {
		return c.backing.List(ctx)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*domain.AccountEndpoint, 0, len(c.entries))
	for _, entry := range c.entries {
		copied := *entry.endpoint
		out = append(out, &copied)
	}
	return out, nil
}

func (c *AccountCache) Remove(ctx context.Context, id domain.AccountID) error {
	if c.backing != nil {
		if err := c.backing.Remove(ctx, id); err != nil {
			return err
		}
	}

	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
	return nil
}

// Refresh rewarms the cache from the backing store. Called on a fixed
// interval by the negotiation coordinator.
func (c *AccountCache) Refresh(ctx context.Context) error {
	if c.backing == nil {
		return nil
	}

	endpoints, err := c.backing.List(ctx)
	if err != nil {
		return err
	}

	next := make(map[domain.AccountID]cachedEndpoint, len(endpoints))
	for _, ep := range endpoints {
		copied := *ep
		next[ep.AccountID] = cachedEndpoint{endpoint: &copied, expiresAt: c.expiry()}
	}

	c.mu.Lock()
	c.entries = next
	c.mu.Unlock()
	return nil
}
