// Package retention removes invitation tokens nobody will redeem anymore.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Pruner deletes unused invites that expired more than olderThan ago.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// RunRetentionJob deletes unused invites that expired more than
// retentionDays ago. Used invites are kept as the registration record.
// The function is idempotent - safe to run repeatedly.
func RunRetentionJob(ctx context.Context, p Pruner, retentionDays int) error {
	if retentionDays < 0 {
		return fmt.Errorf("retention days must not be negative (got: %d)", retentionDays)
	}

	log.Info().
		Int("invite_retention_days", retentionDays).
		Msg("Starting retention job")

	startTime := time.Now()

	deleted, err := p.Prune(ctx, time.Duration(retentionDays)*24*time.Hour)
	if err != nil {
		log.Error().Err(err).Msg("Failed to prune expired invites")
		return fmt.Errorf("invite cleanup failed: %w", err)
	}

	log.Info().
		Int64("invites_deleted", deleted).
		Dur("duration", time.Since(startTime)).
		Msg("Retention job completed")

	return nil
}
