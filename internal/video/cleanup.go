package video

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lingoreel/lingoreel/internal/database"
)

const purgeBatchSize = 50

// PurgeDeletedSubtitleSources removes archived SRT objects whose source rows
// were marked deleted, then records the purge.
func PurgeDeletedSubtitleSources(ctx context.Context, db database.DBTX, storage ObjectStorage) {
	rows, err := db.Query(ctx,
		`SELECT id, object_key FROM subtitle_sources
		 WHERE deleted_at IS NOT NULL AND purged_at IS NULL
		 ORDER BY deleted_at
		 LIMIT $1`, purgeBatchSize)
	if err != nil {
		slog.Error("cleanup: failed to query deleted subtitle sources", "error", err)
		return
	}

	type source struct{ id, key string }
	var sources []source
	for rows.Next() {
		var s source
		if err := rows.Scan(&s.id, &s.key); err != nil {
			slog.Error("cleanup: failed to scan subtitle source", "error", err)
			continue
		}
		sources = append(sources, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		slog.Error("cleanup: row iteration error", "error", err)
	}

	for _, s := range sources {
		if err := deleteWithRetry(ctx, storage, s.key, 3); err != nil {
			slog.Error("cleanup: failed to delete subtitle file", "key", s.key, "error", err)
			continue
		}
		if _, err := db.Exec(ctx, `UPDATE subtitle_sources SET purged_at = now() WHERE id = $1`, s.id); err != nil {
			slog.Error("cleanup: failed to mark purged", "key", s.key, "error", err)
		}
	}
}

// PruneRefreshTokens drops refresh tokens that can no longer be used.
func PruneRefreshTokens(ctx context.Context, db database.DBTX) {
	tag, err := db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < now() OR revoked = true`)
	if err != nil {
		slog.Error("cleanup: failed to prune refresh tokens", "error", err)
		return
	}
	if n := tag.RowsAffected(); n > 0 {
		slog.Info("cleanup: pruned refresh tokens", "count", n)
	}
}

func StartCleanupLoop(ctx context.Context, db database.DBTX, storage ObjectStorage, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("cleanup: shutting down")
				return
			case <-ticker.C:
				if storage != nil {
					PurgeDeletedSubtitleSources(ctx, db, storage)
				}
				PruneRefreshTokens(ctx, db)
			}
		}
	}()
}

func deleteWithRetry(ctx context.Context, storage ObjectStorage, key string, maxAttempts int) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		lastErr = storage.DeleteObject(ctx, key)
		if lastErr == nil {
			return nil
		}
		slog.Error("storage: delete attempt failed", "attempt", attempt+1, "max_attempts", maxAttempts, "key", key, "error", lastErr)
	}
	return fmt.Errorf("all %d delete attempts failed for %s: %w", maxAttempts, key, lastErr)
}
