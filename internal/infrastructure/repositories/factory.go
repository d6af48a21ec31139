package repositories

import (
	"context"
	"time"

	"skybridge/internal/core/ports"
	"skybridge/internal/infrastructure/reliability"
	"skybridge/internal/infrastructure/repositories/memory"
	redisrepo "skybridge/internal/infrastructure/repositories/redis"
	"skybridge/pkg/circuitbreaker"
	"skybridge/pkg/config"
	"skybridge/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// accountCacheTTL bounds how stale a cached relay binding may get
// before the next read falls through to the persistent store.
const accountCacheTTL = 5 * time.Minute

// Factory creates the peer directory and account store, persisting to
// Redis when it is configured and reachable and degrading to memory
// otherwise.
type Factory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

func NewFactory(cfg *config.Config, logger *zap.SugaredLogger) (*Factory, error) {
	factory := &Factory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory stores",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis-backed account store")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory stores")
	}

	return factory, nil
}

// CreatePeerDirectory returns the live peer directory. Discovery data
// is ephemeral per run, so the directory is always in memory.
func (f *Factory) CreatePeerDirectory() ports.PeerDirectory {
	return memory.NewPeerDirectory()
}

// CreateAccountStore returns the account endpoint store: a TTL cache in
// front of Redis when available, a plain memory cache otherwise. The
// Redis path is decorated with retry and a circuit breaker.
func (f *Factory) CreateAccountStore() *memory.AccountCache {
	if f.useRedis && f.redisClient != nil {
		store := reliability.NewAccountStoreWrapper(
			redisrepo.NewAccountStore(f.redisClient),
			retry.DefaultConfig(),
			circuitbreaker.DefaultConfig(),
			f.logger,
		)
		return memory.NewAccountCache(store, accountCacheTTL)
	}
	return memory.NewAccountCache(nil, 0)
}

// RedisClient exposes the shared connection for components that need
// raw pub/sub access. Nil when running on memory stores.
func (f *Factory) RedisClient() *redis.Client {
	if !f.useRedis {
		return nil
	}
	return f.redisClient
}

// Close closes the Redis connection if one was opened.
func (f *Factory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseClient(f.redisClient)
	}
	return nil
}

// HealthCheck pings Redis when it is in use.
func (f *Factory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
