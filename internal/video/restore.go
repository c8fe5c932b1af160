package video

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lingoreel/lingoreel/internal/database"
	"github.com/lingoreel/lingoreel/internal/srt"
	"github.com/lingoreel/lingoreel/internal/stream"
)

var ErrNoArchivedSource = errors.New("video has no archived subtitle file")

// ObjectReader fetches archived subtitle files.
type ObjectReader interface {
	GetObject(ctx context.Context, key string, maxBytes int64) ([]byte, error)
}

type RestoreResult struct {
	ObjectKey string
	Filename  string
	Encoding  srt.Encoding
	Cues      int
	Warnings  []string
}

// RestoreSubtitles re-parses the newest archived upload of a video and,
// unless dryRun is set, replaces the stored cues with it. Hand edits made
// since that upload are lost.
func RestoreSubtitles(ctx context.Context, db database.DBTX, objects ObjectReader, videoID string, maxBytes int64, dryRun bool) (*RestoreResult, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxSRTBytes
	}

	var res RestoreResult
	err := db.QueryRow(ctx,
		`SELECT object_key, filename FROM subtitle_sources
		 WHERE video_id = $1 AND deleted_at IS NULL
		 ORDER BY created_at DESC LIMIT 1`, videoID,
	).Scan(&res.ObjectKey, &res.Filename)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoArchivedSource
	}
	if err != nil {
		return nil, fmt.Errorf("find archived source: %w", err)
	}

	raw, err := objects.GetObject(ctx, res.ObjectKey, maxBytes)
	if err != nil {
		return nil, err
	}
	parsed, err := srt.ParseBytes(raw, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", res.Filename, err)
	}
	if err := srt.CheckCues(parsed.Entries); err != nil {
		return nil, fmt.Errorf("%s: %w", res.Filename, err)
	}
	if err := srt.CheckDuplicates(parsed.Entries); err != nil {
		return nil, fmt.Errorf("%s: %w", res.Filename, err)
	}
	res.Encoding = parsed.Encoding
	res.Cues = len(parsed.Entries)
	res.Warnings = parsed.Warnings
	if dryRun {
		return &res, nil
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM subtitles WHERE video_id = $1`, videoID); err != nil {
		return nil, fmt.Errorf("clear subtitles: %w", err)
	}
	if err := InsertSubtitles(ctx, tx, videoID, parsed.Entries); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &res, nil
}

// AssetLister enumerates the Stream account.
type AssetLister interface {
	ListVideos(ctx context.Context) ([]stream.Video, error)
}

// OrphanAssets returns the Stream assets that no video row points at,
// typically left behind by abandoned direct uploads or failed deletes.
func OrphanAssets(ctx context.Context, db database.DBTX, assets AssetLister) ([]stream.Video, error) {
	all, err := assets.ListVideos(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}

	uids := make([]string, len(all))
	for i, a := range all {
		uids[i] = a.UID
	}
	rows, err := db.Query(ctx, `SELECT stream_uid FROM videos WHERE stream_uid = ANY($1)`, uids)
	if err != nil {
		return nil, fmt.Errorf("match stream assets: %w", err)
	}
	defer rows.Close()

	known := make(map[string]bool, len(uids))
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		known[uid] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var orphans []stream.Video
	for _, a := range all {
		if !known[a.UID] {
			orphans = append(orphans, a)
		}
	}
	return orphans, nil
}
