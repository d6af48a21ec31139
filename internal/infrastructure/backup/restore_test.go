package backup

import (
	"context"
	"testing"
	"time"

	"skybridge/internal/core/domain"
	"skybridge/internal/infrastructure/repositories/memory"
	"skybridge/pkg/backup"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSnapshotAndRestoreAccounts(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	storage, err := backup.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	svc := backup.NewSnapshotService(storage, "1.0")

	ctx := context.Background()
	source := memory.NewAccountCache(nil, 0)
	require.NoError(t, source.Put(ctx, &domain.AccountEndpoint{
		AccountID:      "team_account",
		RelayID:        "relay-7",
		ThroughputMbps: 25,
		Latency:        120 * time.Millisecond,
		LastUpdated:    time.Now(),
	}))

	scheduler := NewScheduler(svc, source, Config{Interval: time.Hour, RetentionDays: 7}, logger)
	scheduler.runSnapshot(ctx)

	names, err := svc.ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, names, 1)

	// restore into an empty store
	target := memory.NewAccountCache(nil, 0)
	restore := NewRestoreService(svc, target, logger)
	require.NoError(t, restore.RestoreLatest(ctx, RestoreOptions{}))

	endpoint, err := target.Get(ctx, "team_account")
	require.NoError(t, err)
	assert.Equal(t, "relay-7", endpoint.RelayID)
}

func TestRestoreSkipsExistingWithoutOverwrite(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	storage, err := backup.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	svc := backup.NewSnapshotService(storage, "1.0")

	ctx := context.Background()
	source := memory.NewAccountCache(nil, 0)
	require.NoError(t, source.Put(ctx, &domain.AccountEndpoint{AccountID: "acct", RelayID: "old"}))

	scheduler := NewScheduler(svc, source, Config{Interval: time.Hour, RetentionDays: 7}, logger)
	scheduler.runSnapshot(ctx)

	target := memory.NewAccountCache(nil, 0)
	require.NoError(t, target.Put(ctx, &domain.AccountEndpoint{AccountID: "acct", RelayID: "live"}))

	restore := NewRestoreService(svc, target, logger)
	require.NoError(t, restore.RestoreLatest(ctx, RestoreOptions{}))

	endpoint, err := target.Get(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, "live", endpoint.RelayID)

	require.NoError(t, restore.RestoreLatest(ctx, RestoreOptions{OverwriteExisting: true}))
	endpoint, err = target.Get(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, "old", endpoint.RelayID)
}
