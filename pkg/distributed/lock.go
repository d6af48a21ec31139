// Package distributed provides a Redis-backed mutual-exclusion lock,
// used to serialize account rebinds across skybridge instances.
package distributed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the key only when it still carries our holder
// tag, so an expired lock reacquired by another instance survives.
const unlockScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

const acquireRetryInterval = 100 * time.Millisecond

// Lock is a single-holder lock on one Redis key. The key is tagged
// with a random holder value and its TTL is renewed in the background
// while the lock is held.
type Lock struct {
	client *redis.Client
	key    string
	holder string
	ttl    time.Duration
	done   chan struct{}
}

func newLock(client *redis.Client, key string, ttl time.Duration) *Lock {
	return &Lock{
		client: client,
		key:    key,
		holder: newHolderTag(),
		ttl:    ttl,
		done:   make(chan struct{}),
	}
}

func newHolderTag() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// LockWithTimeout acquires the lock, polling until the wait budget or
// the context runs out.
func (l *Lock) LockWithTimeout(ctx context.Context, wait time.Duration) error {
	deadline := time.Now().Add(wait)

	for {
		acquired, err := l.client.SetNX(ctx, l.key, l.holder, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
		}
		if acquired {
			go l.renew(ctx)
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("lock %s: acquisition timed out after %s", l.key, wait)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(acquireRetryInterval):
		}
	}
}

// Unlock releases the lock and stops the renewal loop. Releasing a
// lock that expired and changed hands returns an error.
func (l *Lock) Unlock(ctx context.Context) error {
	close(l.done)

	result, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.holder).Result()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if result.(int64) == 0 {
		return fmt.Errorf("lock %s was not held by this instance", l.key)
	}
	return nil
}

// renew extends the TTL at half-life intervals until the lock is
// released, lost or the context ends.
func (l *Lock) renew(ctx context.Context) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			current, err := l.client.Get(ctx, l.key).Result()
			if err != nil || current != l.holder {
				return
			}
			l.client.Expire(ctx, l.key, l.ttl)
		case <-l.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// LockManager mints locks under a shared key prefix.
type LockManager struct {
	client *redis.Client
	prefix string
}

func NewLockManager(client *redis.Client, prefix string) *LockManager {
	return &LockManager{client: client, prefix: prefix}
}

// AcquireLock prepares a lock for the given key. The lock is not held
// until LockWithTimeout succeeds.
func (m *LockManager) AcquireLock(key string, ttl time.Duration) *Lock {
	return newLock(m.client, m.prefix+key, ttl)
}
