package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"skybridge/internal/core/domain"
	"skybridge/internal/core/ports"
	"skybridge/pkg/backup"

	"go.uber.org/zap"
)

// RestoreService reloads relay bindings from a snapshot into the
// account endpoint store.
type RestoreService struct {
	snapshots *backup.SnapshotService
	accounts  ports.AccountEndpointStore
	logger    *zap.SugaredLogger
}

func NewRestoreService(
	snapshots *backup.SnapshotService,
	accounts ports.AccountEndpointStore,
	logger *zap.SugaredLogger,
) *RestoreService {
	return &RestoreService{
		snapshots: snapshots,
		accounts:  accounts,
		logger:    logger,
	}
}

type RestoreOptions struct {
	// OverwriteExisting replaces bindings that already exist in the
	// store; otherwise they are kept and the snapshot entry is skipped.
	OverwriteExisting bool
}

// RestoreLatest restores the most recent snapshot, if any exists.
func (rs *RestoreService) RestoreLatest(ctx context.Context, options RestoreOptions) error {
	names, err := rs.snapshots.ListSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}
	if len(names) == 0 {
		rs.logger.Debug("no snapshots to restore")
		return nil
	}
	sort.Strings(names)
	return rs.RestoreFromSnapshot(ctx, names[len(names)-1], options)
}

// RestoreFromSnapshot restores one named snapshot.
func (rs *RestoreService) RestoreFromSnapshot(ctx context.Context, name string, options RestoreOptions) error {
	data, err := rs.snapshots.LoadSnapshot(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	if data.Version == "" {
		return fmt.Errorf("invalid snapshot %q: missing version", name)
	}

	restored := 0
	for id, raw := range data.Accounts {
		accountID := domain.AccountID(id)

		if !options.OverwriteExisting {
			if _, err := rs.accounts.Get(ctx, accountID); err == nil {
				continue
			}
		}

		encoded, err := json.Marshal(raw)
		if err != nil {
			return fmt.Errorf("failed to re-encode account %s: %w", id, err)
		}
		var endpoint domain.AccountEndpoint
		if err := json.Unmarshal(encoded, &endpoint); err != nil {
			return fmt.Errorf("failed to decode account %s: %w", id, err)
		}
		if endpoint.AccountID == "" {
			endpoint.AccountID = accountID
		}

		if err := rs.accounts.Put(ctx, &endpoint); err != nil {
			return fmt.Errorf("failed to restore account %s: %w", id, err)
		}
		restored++
	}

	rs.logger.Infow("snapshot restored", "name", name, "restored", restored)
	return nil
}
