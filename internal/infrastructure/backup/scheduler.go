package backup

import (
	"context"
	"fmt"
	"time"

	"skybridge/internal/core/ports"
	"skybridge/pkg/backup"

	"go.uber.org/zap"
)

// Scheduler periodically snapshots the account endpoint store so relay
// bindings survive a wipe of the persistent backend.
type Scheduler struct {
	snapshots     *backup.SnapshotService
	accounts      ports.AccountEndpointStore
	interval      time.Duration
	retentionDays int
	logger        *zap.SugaredLogger
	stopChan      chan struct{}
}

type Config struct {
	Interval      time.Duration
	RetentionDays int
}

func NewScheduler(
	snapshots *backup.SnapshotService,
	accounts ports.AccountEndpointStore,
	cfg Config,
	logger *zap.SugaredLogger,
) *Scheduler {
	return &Scheduler{
		snapshots:     snapshots,
		accounts:      accounts,
		interval:      cfg.Interval,
		retentionDays: cfg.RetentionDays,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start runs the snapshot loop until the context ends or Stop is
// called. The first snapshot is taken immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runSnapshot(ctx)

	for {
		select {
		case <-ticker.C:
			s.runSnapshot(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopChan)
}

func (s *Scheduler) runSnapshot(ctx context.Context) {
	data, err := s.collect(ctx)
	if err != nil {
		s.logger.Errorw("failed to collect snapshot data", "error", err)
		return
	}

	name, err := s.snapshots.CreateSnapshot(ctx, data)
	if err != nil {
		s.logger.Errorw("failed to create snapshot", "error", err)
		return
	}
	s.logger.Infow("account snapshot written", "name", name, "accounts", len(data.Accounts))

	if err := s.cleanupOldSnapshots(ctx); err != nil {
		s.logger.Warnw("failed to clean up old snapshots", "error", err)
	}
}

func (s *Scheduler) collect(ctx context.Context) (*backup.SnapshotData, error) {
	endpoints, err := s.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list account endpoints: %w", err)
	}

	data := &backup.SnapshotData{
		Accounts: make(map[string]interface{}, len(endpoints)),
		Metadata: map[string]interface{}{
			"account_count": len(endpoints),
		},
	}
	for _, endpoint := range endpoints {
		data.Accounts[string(endpoint.AccountID)] = endpoint
	}
	return data, nil
}

func (s *Scheduler) cleanupOldSnapshots(ctx context.Context) error {
	names, err := s.snapshots.ListSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	for _, name := range names {
		ts, err := backup.SnapshotTime(name)
		if err != nil {
			s.logger.Warnw("skipping malformed snapshot name", "name", name, "error", err)
			continue
		}
		if ts.Before(cutoff) {
			if err := s.snapshots.DeleteSnapshot(ctx, name); err != nil {
				s.logger.Warnw("failed to delete old snapshot", "name", name, "error", err)
				continue
			}
			s.logger.Infow("deleted old snapshot", "name", name)
		}
	}
	return nil
}
