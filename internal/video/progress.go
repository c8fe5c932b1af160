package video

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lingoreel/lingoreel/internal/auth"
	"github.com/lingoreel/lingoreel/internal/httputil"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

const upsertProgressSQL = `INSERT INTO user_video_progress (user_id, video_id, last_position, completed)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, video_id) DO UPDATE SET
	last_position = EXCLUDED.last_position,
	completed = user_video_progress.completed OR EXCLUDED.completed,
	updated_at = now()`

var errVideoMissing = errors.New("video not found")

func progressKey(userID, videoID string) string {
	return userID + ":" + videoID
}

func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	userID := auth.UserIDFromContext(r.Context())
	if !validID(videoID) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	p, err := h.loadProgress(r.Context(), userID, videoID)
	if err != nil {
		slog.Error("progress: load failed", "video_id", videoID, "user_id", userID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not load progress")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

type saveProgressRequest struct {
	LastPosition *float64 `json:"lastPosition"`
	Completed    bool     `json:"completed"`
}

// SaveProgress records the caller's watch position. With a progress saver
// configured the write is deferred until the player has been quiet for a
// moment, so only the last position in a burst is persisted.
func (h *Handler) SaveProgress(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	userID := auth.UserIDFromContext(r.Context())
	if !validID(videoID) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	var req saveProgressRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.LastPosition == nil {
		httputil.WriteError(w, http.StatusBadRequest, "lastPosition is required")
		return
	}
	pos := *req.LastPosition
	if pos < 0 || math.IsNaN(pos) || math.IsInf(pos, 0) {
		httputil.WriteError(w, http.StatusBadRequest, "lastPosition must be a non-negative number")
		return
	}
	if !h.publishedVideoExists(w, r, videoID) {
		return
	}

	if h.saver != nil && !req.Completed {
		h.saver.Push(progressKey(userID, videoID), func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := h.writeProgress(ctx, userID, videoID, pos, false); err != nil {
				slog.Error("progress: deferred save failed", "video_id", videoID, "user_id", userID, "error", err)
			}
		})
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if h.saver != nil {
		h.saver.Cancel(progressKey(userID, videoID))
	}
	h.respondWrite(w, h.writeProgress(r.Context(), userID, videoID, pos, req.Completed), videoID)
}

// Complete marks the video finished. Completion is sticky: later position
// updates never clear it.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	userID := auth.UserIDFromContext(r.Context())
	if !h.publishedVideoExists(w, r, videoID) {
		return
	}
	if h.saver != nil {
		h.saver.Cancel(progressKey(userID, videoID))
	}

	_, err := h.db.Exec(r.Context(),
		`INSERT INTO user_video_progress (user_id, video_id, completed) VALUES ($1, $2, true)
		 ON CONFLICT (user_id, video_id) DO UPDATE SET completed = true, updated_at = now()`,
		userID, videoID)
	h.respondWrite(w, classifyWriteError(err), videoID)
}

// ResetProgress rewinds the video to the start and clears completion.
func (h *Handler) ResetProgress(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	userID := auth.UserIDFromContext(r.Context())
	if !validID(videoID) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	if h.saver != nil {
		h.saver.Cancel(progressKey(userID, videoID))
	}

	_, err := h.db.Exec(r.Context(),
		`INSERT INTO user_video_progress (user_id, video_id, last_position, completed) VALUES ($1, $2, 0, false)
		 ON CONFLICT (user_id, video_id) DO UPDATE SET last_position = 0, completed = false, updated_at = now()`,
		userID, videoID)
	h.respondWrite(w, classifyWriteError(err), videoID)
}

func (h *Handler) writeProgress(ctx context.Context, userID, videoID string, pos float64, completed bool) error {
	_, err := h.db.Exec(ctx, upsertProgressSQL, userID, videoID, pos, completed)
	return classifyWriteError(err)
}

func classifyWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return errVideoMissing
	}
	return err
}

func (h *Handler) respondWrite(w http.ResponseWriter, err error, videoID string) {
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, errVideoMissing):
		httputil.WriteError(w, http.StatusNotFound, "video not found")
	default:
		slog.Error("progress: save failed", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not save progress")
	}
}

type recentVideo struct {
	VideoID      string    `json:"videoId"`
	Title        string    `json:"title"`
	ThumbnailURL *string   `json:"thumbnailUrl"`
	Duration     float64   `json:"duration"`
	LastPosition float64   `json:"lastPosition"`
	Completed    bool      `json:"completed"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Recent lists the caller's most recently watched published videos.
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	limit := defaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, maxRecentLimit)
		}
	}

	rows, err := h.db.Query(r.Context(),
		`SELECT v.id, v.title, v.thumbnail_url, v.duration, p.last_position, p.completed, p.updated_at
		 FROM user_video_progress p
		 JOIN videos v ON v.id = p.video_id
		 WHERE p.user_id = $1 AND v.status = $2
		 ORDER BY p.updated_at DESC
		 LIMIT $3`, userID, StatusPublished, limit)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not load progress")
		return
	}
	defer rows.Close()

	items := []recentVideo{}
	for rows.Next() {
		var item recentVideo
		if err := rows.Scan(&item.VideoID, &item.Title, &item.ThumbnailURL, &item.Duration,
			&item.LastPosition, &item.Completed, &item.UpdatedAt); err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "could not load progress")
			return
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not load progress")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}
