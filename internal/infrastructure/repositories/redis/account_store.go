package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"skybridge/internal/core/domain"
	"skybridge/internal/core/ports"
	"skybridge/pkg/distributed"

	"github.com/redis/go-redis/v9"
)

const (
	accountKeyPrefix = "skybridge:account:"
	accountIndexKey  = "skybridge:accounts"
	accountLockTTL   = 5 * time.Second
	accountLockWait  = 2 * time.Second
)

// AccountStore persists cloud-relay account endpoints as JSON values
// under a per-account key, with a set indexing all known accounts.
// Writes take a short distributed lock so two devices rebinding the
// same account do not interleave.
type AccountStore struct {
	client *redis.Client
	locks  *distributed.LockManager
}

func NewAccountStore(client *redis.Client) ports.AccountEndpointStore {
	return &AccountStore{
		client: client,
		locks:  distributed.NewLockManager(client, "skybridge:lock:"),
	}
}

func (s *AccountStore) accountKey(id domain.AccountID) string {
	return accountKeyPrefix + string(id)
}

func (s *AccountStore) Get(ctx context.Context, id domain.AccountID) (*domain.AccountEndpoint, error) {
	data, err := s.client.Get(ctx, s.accountKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account endpoint from Redis: %w", err)
	}

	var endpoint domain.AccountEndpoint
	if err := json.Unmarshal([]byte(data), &endpoint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account endpoint: %w", err)
	}
	return &endpoint, nil
}

func (s *AccountStore) Put(ctx context.Context, endpoint *domain.AccountEndpoint) error {
	data, err := json.Marshal(endpoint)
	if err != nil {
		return fmt.Errorf("failed to marshal account endpoint: %w", err)
	}

	lock := s.locks.AcquireLock("account:"+string(endpoint.AccountID), accountLockTTL)
	if err := lock.LockWithTimeout(ctx, accountLockWait); err != nil {
		return fmt.Errorf("failed to lock account %s: %w", endpoint.AccountID, err)
	}
	defer func() { _ = lock.Unlock(ctx) }()

	if err := s.client.Set(ctx, s.accountKey(endpoint.AccountID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set account endpoint in Redis: %w", err)
	}
	if err := s.client.SAdd(ctx, accountIndexKey, string(endpoint.AccountID)).Err(); err != nil {
		return fmt.Errorf("failed to index account endpoint: %w", err)
	}
	return nil
}

func (s *AccountStore) List(ctx context.Context) ([]*domain.AccountEndpoint, error) {
	ids, err := s.client.SMembers(ctx, accountIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list account endpoints from Redis: %w", err)
	}

	endpoints := make([]*domain.AccountEndpoint, 0, len(ids))
	for _, id := range ids {
		endpoint, err := s.Get(ctx, domain.AccountID(id))
		if err != nil {
			// index entries may outlive their values
			continue
		}
		endpoints = append(endpoints, endpoint)
	}
	return endpoints, nil
}

func (s *AccountStore) Remove(ctx context.Context, id domain.AccountID) error {
	if err := s.client.SRem(ctx, accountIndexKey, string(id)).Err(); err != nil {
		return fmt.Errorf("failed to unindex account endpoint: %w", err)
	}
	if err := s.client.Del(ctx, s.accountKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete account endpoint from Redis: %w", err)
	}
	return nil
}
