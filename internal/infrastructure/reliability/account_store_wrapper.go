package reliability

import (
	"context"

	"skybridge/internal/core/domain"
	"skybridge/internal/core/ports"
	"skybridge/pkg/circuitbreaker"
	"skybridge/pkg/retry"

	"go.uber.org/zap"
)

// AccountStoreWrapper decorates a persistent account endpoint store
// with retry logic and a circuit breaker.
type AccountStoreWrapper struct {
	store   ports.AccountEndpointStore
	logger  *zap.SugaredLogger
	retries retry.Config
	breaker *circuitbreaker.CircuitBreaker
}

func NewAccountStoreWrapper(
	store ports.AccountEndpointStore,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *AccountStoreWrapper {
	// a missing endpoint is an answer, not a backend failure
	retryConfig.NonRetryableErrors = append(retryConfig.NonRetryableErrors, domain.ErrAccountNotFound)

	w := &AccountStoreWrapper{
		store:   store,
		logger:  logger,
		retries: retryConfig,
		breaker: circuitbreaker.New(cbConfig),
	}

	w.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("account store circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})

	return w
}

func (w *AccountStoreWrapper) Get(ctx context.Context, id domain.AccountID) (*domain.AccountEndpoint, error) {
	return retry.RetryWithResult(ctx, w.retries, func() (*domain.AccountEndpoint, error) {
		return circuitbreaker.Do(ctx, w.breaker, func() (*domain.AccountEndpoint, error) {
			return w.store.Get(ctx, id)
		})
	})
}

func (w *AccountStoreWrapper) Put(ctx context.Context, endpoint *domain.AccountEndpoint) error {
	return retry.Retry(ctx, w.retries, func() error {
		return w.breaker.Execute(ctx, func() error {
			return w.store.Put(ctx, endpoint)
		})
	})
}

func (w *AccountStoreWrapper) List(ctx context.Context) ([]*domain.AccountEndpoint, error) {
	return retry.RetryWithResult(ctx, w.retries, func() ([]*domain.AccountEndpoint, error) {
		return circuitbreaker.Do(ctx, w.breaker, func() ([]*domain.AccountEndpoint, error) {
			return w.store.List(ctx)
		})
	})
}

func (w *AccountStoreWrapper) Remove(ctx context.Context, id domain.AccountID) error {
	return retry.Retry(ctx, w.retries, func() error {
		return w.breaker.Execute(ctx, func() error {
			return w.store.Remove(ctx, id)
		})
	})
}

// BreakerState exposes the breaker state for health reporting.
func (w *AccountStoreWrapper) BreakerState() circuitbreaker.State {
	return w.breaker.GetState()
}
