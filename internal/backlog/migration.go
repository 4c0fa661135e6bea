package backlog

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"backlog/internal/games"
	"backlog/internal/guest"
)

// MigrationBatchSize bounds how many entries one bulk-insert call carries.
const MigrationBatchSize = 50

var (
	// ErrMigrationInFlight is returned when a migration is triggered while
	// another run is active. Callers treat it as a no-op.
	ErrMigrationInFlight = errors.New("backlog: migration already in flight")

	errMissingLocalStore    = errors.New("backlog: local store is required")
	errMissingBatchInserter = errors.New("backlog: batch inserter is required")
)

// BatchInserter is the remote half of the migration flow. Each call
// persists one batch atomically under the authenticated owner.
type BatchInserter interface {
	InsertBatch(ctx context.Context, owner games.OwnerID, payloads []games.NewGame) ([]games.Game, error)
}

// BatchError reports which migration batch failed and why. Batches before
// the failing index are confirmed persisted remotely; the local slot is
// left intact.
type BatchError struct {
	Batch   int
	Batches int
	Err     error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("backlog: migration batch %d of %d failed: %v", e.Batch+1, e.Batches, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// MigrationResult summarizes a completed migration run.
type MigrationResult struct {
	// Migrated counts the entries now persisted remotely by this run.
	Migrated int
	// Dropped counts stored entries discarded during normalization.
	Dropped int
}

// MigratorConfig describes the migration flow dependencies.
type MigratorConfig struct {
	Local     *guest.Store
	Remote    BatchInserter
	Logger    *zap.Logger
	BatchSize int
}

// Migrator performs the one-shot transfer of guest entries into the
// authenticated remote collection. Runs are serialized: a trigger while
// one run is active is refused with ErrMigrationInFlight.
type Migrator struct {
	local     *guest.Store
	remote    BatchInserter
	logger    *zap.Logger
	batchSize int
	inFlight  atomic.Bool
}

// NewMigrator constructs the migration flow.
func NewMigrator(cfg MigratorConfig) (*Migrator, error) {
	if cfg.Local == nil {
		return nil, errMissingLocalStore
	}
	if cfg.Remote == nil {
		return nil, errMissingBatchInserter
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = MigrationBatchSize
	}
	return &Migrator{
		local:     cfg.Local,
		remote:    cfg.Remote,
		logger:    logger,
		batchSize: batchSize,
	}, nil
}

// Run migrates the guest collection to the remote store for the given
// owner. Batches are submitted strictly in sequence; on a batch failure
// the remaining batches are abandoned, the local slot is preserved, and a
// *BatchError is returned. The slot is cleared only after every batch is
// confirmed. A retry after partial failure re-submits everything and may
// duplicate the already-persisted batches; that is accepted behavior.
func (m *Migrator) Run(ctx context.Context, owner games.OwnerID) (MigrationResult, error) {
	if !m.inFlight.CompareAndSwap(false, true) {
		return MigrationResult{}, ErrMigrationInFlight
	}
	defer m.inFlight.Store(false)

	stored, err := m.local.Load(ctx)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("backlog: load guest collection: %w", err)
	}
	if len(stored) == 0 {
		return MigrationResult{}, nil
	}

	normalized := Normalize(stored)
	dropped := len(stored) - len(normalized)
	if len(normalized) == 0 {
		// Nothing usable survived; an empty collection is terminal.
		if err := m.local.Clear(ctx); err != nil {
			return MigrationResult{}, err
		}
		m.logger.Info("guest migration cleared unusable collection",
			zap.String("owner_id", owner.String()),
			zap.Int("dropped", dropped))
		return MigrationResult{Dropped: dropped}, nil
	}

	batches := partition(normalized, m.batchSize)
	migrated := 0
	for index, batch := range batches {
		if _, err := m.remote.InsertBatch(ctx, owner, batch); err != nil {
			m.logger.Error("guest migration batch failed",
				zap.String("owner_id", owner.String()),
				zap.Int("batch", index),
				zap.Int("batches", len(batches)),
				zap.Int("migrated", migrated),
				zap.Error(err))
			return MigrationResult{Migrated: migrated, Dropped: dropped},
				&BatchError{Batch: index, Batches: len(batches), Err: err}
		}
		migrated += len(batch)
	}

	if err := m.local.Clear(ctx); err != nil {
		// The remote collection is authoritative now; a lingering slot
		// only means the next sign-in migrates duplicates.
		m.logger.Warn("guest migration could not clear local slot", zap.Error(err))
		return MigrationResult{Migrated: migrated, Dropped: dropped}, err
	}

	m.logger.Info("guest migration completed",
		zap.String("owner_id", owner.String()),
		zap.Int("migrated", migrated),
		zap.Int("dropped", dropped),
		zap.Int("batches", len(batches)))
	return MigrationResult{Migrated: migrated, Dropped: dropped}, nil
}

func partition(payloads []games.NewGame, size int) [][]games.NewGame {
	batches := make([][]games.NewGame, 0, (len(payloads)+size-1)/size)
	for start := 0; start < len(payloads); start += size {
		end := start + size
		if end > len(payloads) {
			end = len(payloads)
		}
		batches = append(batches, payloads[start:end])
	}
	return batches
}
