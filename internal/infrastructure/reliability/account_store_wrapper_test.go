package reliability

import (
	"context"
	"testing"
	"time"

	"skybridge/internal/core/domain"
	"skybridge/pkg/circuitbreaker"
	"skybridge/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type flakyStore struct {
	getErrs  []error
	getCalls int
	putErrs  []error
	putCalls int
	endpoint *domain.AccountEndpoint
}

func (s *flakyStore) Get(_ context.Context, _ domain.AccountID) (*domain.AccountEndpoint, error) {
	s.getCalls++
	if len(s.getErrs) > 0 {
		err := s.getErrs[0]
		s.getErrs = s.getErrs[1:]
		return nil, err
	}
	return s.endpoint, nil
}

func (s *flakyStore) Put(_ context.Context, _ *domain.AccountEndpoint) error {
	s.putCalls++
	if len(s.putErrs) > 0 {
		err := s.putErrs[0]
		s.putErrs = s.putErrs[1:]
		return err
	}
	return nil
}

func (s *flakyStore) List(_ context.Context) ([]*domain.AccountEndpoint, error) {
	return []*domain.AccountEndpoint{s.endpoint}, nil
}

func (s *flakyStore) Remove(_ context.Context, _ domain.AccountID) error { return nil }

func fastRetry() retry.Config {
	return retry.Config{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func newWrapper(t *testing.T, store *flakyStore) *AccountStoreWrapper {
	t.Helper()
	return NewAccountStoreWrapper(store, fastRetry(), circuitbreaker.DefaultConfig(), zaptest.NewLogger(t).Sugar())
}

func TestGetRetriesTransientBackendError(t *testing.T) {
	store := &flakyStore{
		getErrs:  []error{domain.ErrProbeFailed},
		endpoint: &domain.AccountEndpoint{AccountID: "team_account", RelayID: "relay-1"},
	}
	w := newWrapper(t, store)

	got, err := w.Get(context.Background(), "team_account")
	require.NoError(t, err)
	assert.Equal(t, "relay-1", got.RelayID)
	assert.Equal(t, 2, store.getCalls)
}

func TestGetDoesNotRetryMissingAccount(t *testing.T) {
	store := &flakyStore{
		getErrs: []error{domain.ErrAccountNotFound, domain.ErrAccountNotFound, domain.ErrAccountNotFound},
	}
	w := newWrapper(t, store)

	_, err := w.Get(context.Background(), "ghost_account")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	// a miss is an answer, not a backend failure
	assert.Equal(t, 1, store.getCalls)
}

func TestBreakerOpensAfterPersistentPutFailures(t *testing.T) {
	store := &flakyStore{}
	for i := 0; i < 20; i++ {
		store.putErrs = append(store.putErrs, domain.ErrProbeFailed)
	}
	w := newWrapper(t, store)

	endpoint := &domain.AccountEndpoint{AccountID: "team_account", RelayID: "relay-1"}
	for i := 0; i < 3; i++ {
		_ = w.Put(context.Background(), endpoint)
	}

	assert.Equal(t, circuitbreaker.StateOpen, w.BreakerState())

	// with the breaker open the backend is no longer hit
	before := store.putCalls
	_ = w.Put(context.Background(), endpoint)
	assert.Equal(t, before, store.putCalls)
}
