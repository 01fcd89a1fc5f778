/**
 * @description
 * Capital-share lock-in migration: a batch repair over capital_share_entries
 * that recomputes the 25% locked / 75% transferable split from the stored
 * amount. Only rows whose stored split differs from the recomputed one are
 * written, which makes the run idempotent — a second pass over the same data
 * performs zero writes.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/damayan/ledger-service/internal/domain"
)

// MigrationSummary reports what a lock-in migration run did.
type MigrationSummary struct {
	Scanned int
	Updated int
}

// MigrateCapitalShareLockIn recomputes the lock-in split for every capital
// share entry and rewrites the rows that are out of line.
func (s *Service) MigrateCapitalShareLockIn(ctx context.Context) (*MigrationSummary, error) {
	entries, err := s.repo.ListCapitalShareEntries(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MigrationSummary{Scanned: len(entries)}
	for _, entry := range entries {
		lockIn, transferable := domain.CapitalShareSplit(entry.Amount)
		if entry.LockInPortion.Equal(lockIn) && entry.TransferablePortion.Equal(transferable) {
			continue
		}
		if err := s.repo.UpdateCapitalShareSplit(ctx, entry.ID, lockIn, transferable, time.Now().UTC()); err != nil {
			return summary, err
		}
		summary.Updated++
		log.Printf("level=info component=app op=capital_lockin_migration entry_id=%s amount=%s lock_in=%s transferable=%s",
			entry.ID, entry.Amount, lockIn, transferable)
	}

	return summary, nil
}
