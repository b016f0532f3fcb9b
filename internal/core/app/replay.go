package app

import (
	"context"
	"log/slog"
	"time"

	"mixmirror/internal/core/ports"
	"mixmirror/internal/shared/observability"
)

// ReplayResult summarizes one pass over the dead-letter spool.
type ReplayResult struct {
	Applied int
	Failed  int
	// Superseded counts older rows dropped because a later row for the
	// same object was applied.
	Superseded int
}

// ReplayDeadLetters applies spooled mutations directly to store. It must run
// while no actor owns store, typically before the actor starts. Rows that
// fail again are rescheduled with exponential backoff. Rows are applied in
// spool order, and each success drops the older rows for its object so a
// stale snapshot is never written after a newer one.
func ReplayDeadLetters(ctx context.Context, spool ports.DeadLetterSpool, store ports.GraphStore, cfg BackoffConfig, batchSize int) (ReplayResult, error) {
	var result ReplayResult
	if spool == nil || store == nil {
		return result, nil
	}
	if batchSize <= 0 {
		batchSize = 64
	}

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		rows, err := spool.DequeueBatch(ctx, batchSize)
		if err != nil {
			return result, err
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			applyErr := safeApply(ctx, store, row.Mutation)
			if applyErr == nil {
				if err := spool.Ack([]int64{row.ID}); err != nil {
					return result, err
				}
				result.Applied++
				purged, err := spool.Purge(ctx, row.Mutation.Target(), row.ID)
				if err != nil {
					return result, err
				}
				result.Superseded += purged
				continue
			}
			result.Failed++
			slog.Warn("dead letter replay failed",
				"id", row.ID,
				"kind", row.Mutation.Kind(),
				"object_id", uint32(row.Mutation.Target()),
				"attempts", row.Attempts+1,
				"error", applyErr,
			)
			next := time.Now().Add(backoffDelay(cfg, row.Attempts+1))
			if err := spool.Nack([]ports.SpoolRow{row}, next, applyErr.Error()); err != nil {
				return result, err
			}
		}
	}

	updateDeadLetterDepth(ctx, spool)
	return result, nil
}

func updateDeadLetterDepth(ctx context.Context, spool ports.DeadLetterSpool) {
	if spool == nil {
		return
	}
	if count, err := spool.PendingCount(ctx); err == nil {
		observability.DeadLetterDepth.Set(float64(count))
	}
}
