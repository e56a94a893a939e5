package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearJournal truncates the traffic journal. The schema is preserved.
func ClearJournal(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing traffic journal", clearLogPrefix))

	if _, err := pool.Exec(ctx, `TRUNCATE TABLE traffic_journal`); err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Traffic journal cleared", clearLogPrefix))
	return nil
}

// PruneJournal deletes journal rows recorded before cutoff and returns how many were removed.
func PruneJournal(ctx context.Context, pool *pgxpool.Pool, cutoff time.Time) (int64, error) {
	tag, err := pool.Exec(ctx, `DELETE FROM traffic_journal WHERE recorded < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("%s - prune failed: %w", clearLogPrefix, err)
	}
	n := tag.RowsAffected()
	if n > 0 {
		slog.Info(fmt.Sprintf("%s - Pruned %d journal rows older than %s", clearLogPrefix, n, cutoff.UTC().Format(time.RFC3339)))
	}
	return n, nil
}
