package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lingoreel/lingoreel/internal/auth"
	"github.com/lingoreel/lingoreel/internal/httputil"
	"github.com/lingoreel/lingoreel/internal/notify"
	"github.com/lingoreel/lingoreel/internal/playback"
	"github.com/lingoreel/lingoreel/internal/srt"
	"github.com/lingoreel/lingoreel/internal/stream"
	"github.com/lingoreel/lingoreel/internal/validate"
)

const (
	StatusDraft     = "draft"
	StatusPublished = "published"

	defaultDifficulty = "intermediate"
	defaultPageSize   = 12
	maxPageSize       = 100
)

const videoColumns = `id, title, description, thumbnail_url, stream_uid, stream_state, status, difficulty, duration, published_at, created_at, updated_at`

type Video struct {
	ID            string               `json:"id"`
	Title         string               `json:"title"`
	Description   *string              `json:"description"`
	ThumbnailURL  *string              `json:"thumbnailUrl"`
	StreamUID     string               `json:"streamUid"`
	StreamState   string               `json:"streamState"`
	Status        string               `json:"status"`
	Difficulty    string               `json:"difficulty"`
	Duration      float64              `json:"duration"`
	PublishedAt   *time.Time           `json:"publishedAt"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
	SubtitleCount *int                 `json:"subtitleCount,omitempty"`
	Playback      *stream.PlaybackURLs `json:"playback,omitempty"`
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVideo(row scanner, extra ...any) (Video, error) {
	var v Video
	dest := []any{&v.ID, &v.Title, &v.Description, &v.ThumbnailURL, &v.StreamUID, &v.StreamState,
		&v.Status, &v.Difficulty, &v.Duration, &v.PublishedAt, &v.CreatedAt, &v.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Video{}, err
	}
	if v.ThumbnailURL == nil && v.StreamUID != "" {
		thumb := stream.ThumbnailURL(v.StreamUID, stream.ThumbnailOptions{Width: 640})
		v.ThumbnailURL = &thumb
	}
	return v, nil
}

type videoFilter struct {
	where []string
	args  []any
}

// add appends a condition whose single placeholder is written as $%d.
func (f *videoFilter) add(cond string, arg any) {
	f.args = append(f.args, arg)
	f.where = append(f.where, fmt.Sprintf(cond, len(f.args)))
}

func (f *videoFilter) clause() string {
	if len(f.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.where, " AND ")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// List returns published videos, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	f := &videoFilter{}
	f.add("status = $%d", StatusPublished)
	if !h.applyCommonFilters(w, r, f) {
		return
	}
	h.writeVideoPage(w, r, f, false)
}

// AdminList returns videos of every status with their subtitle counts.
func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	f := &videoFilter{}
	if status := r.URL.Query().Get("status"); status != "" {
		if msg := validate.VideoStatus(status); msg != "" {
			httputil.WriteError(w, http.StatusBadRequest, msg)
			return
		}
		f.add("status = $%d", status)
	}
	if !h.applyCommonFilters(w, r, f) {
		return
	}
	h.writeVideoPage(w, r, f, true)
}

func (h *Handler) applyCommonFilters(w http.ResponseWriter, r *http.Request, f *videoFilter) bool {
	if d := r.URL.Query().Get("difficulty"); d != "" {
		if msg := validate.Difficulty(d); msg != "" {
			httputil.WriteError(w, http.StatusBadRequest, msg)
			return false
		}
		f.add("difficulty = $%d", d)
	}
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		f.add("title ILIKE $%d", "%"+escapeLike(q)+"%")
	}
	return true
}

func (h *Handler) writeVideoPage(w http.ResponseWriter, r *http.Request, f *videoFilter, withCounts bool) {
	p := httputil.ParsePagination(r, defaultPageSize, maxPageSize)

	var total int
	if err := h.db.QueryRow(r.Context(), "SELECT COUNT(*) FROM videos"+f.clause(), f.args...).Scan(&total); err != nil {
		slog.Error("video: count failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not list videos")
		return
	}

	columns := videoColumns
	if withCounts {
		columns += ", (SELECT COUNT(*) FROM subtitles s WHERE s.video_id = videos.id)"
	}
	args := append(append([]any{}, f.args...), p.Limit, p.Offset())
	query := fmt.Sprintf("SELECT %s FROM videos%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		columns, f.clause(), len(args)-1, len(args))

	rows, err := h.db.Query(r.Context(), query, args...)
	if err != nil {
		slog.Error("video: list failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not list videos")
		return
	}
	defer rows.Close()

	videos := make([]Video, 0, p.Limit)
	for rows.Next() {
		var count int
		var extra []any
		if withCounts {
			extra = append(extra, &count)
		}
		v, err := scanVideo(rows, extra...)
		if err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "could not list videos")
			return
		}
		if withCounts {
			v.SubtitleCount = &count
		}
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not list videos")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPage(videos, p, total))
}

type progressResponse struct {
	LastPosition float64    `json:"lastPosition"`
	Completed    bool       `json:"completed"`
	ShouldResume bool       `json:"shouldResume"`
	UpdatedAt    *time.Time `json:"updatedAt"`
}

type videoDetail struct {
	Video
	Subtitles []srt.Entry      `json:"subtitles"`
	Stats     srt.Stats        `json:"stats"`
	Progress  progressResponse `json:"progress"`
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Get returns a published video with its subtitles and the caller's saved
// position, and records a view.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	userID := auth.UserIDFromContext(r.Context())
	if !validID(videoID) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	v, err := scanVideo(h.db.QueryRow(r.Context(),
		"SELECT "+videoColumns+" FROM videos WHERE id = $1 AND status = $2", videoID, StatusPublished))
	if errors.Is(err, pgx.ErrNoRows) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	if err != nil {
		slog.Error("video: load failed", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not load video")
		return
	}

	entries, err := h.loadSubtitles(r.Context(), videoID)
	if err != nil {
		slog.Error("video: load subtitles failed", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not load subtitles")
		return
	}

	progress, err := h.loadProgress(r.Context(), userID, videoID)
	if err != nil {
		slog.Error("progress: load failed", "video_id", videoID, "user_id", userID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not load progress")
		return
	}

	v.Playback = h.playbackFor(v.StreamUID)
	h.recordView(r, videoID, userID)

	httputil.WriteJSON(w, http.StatusOK, videoDetail{
		Video:     v,
		Subtitles: entries,
		Stats:     srt.NewTrack(entries).Stats(),
		Progress:  progress,
	})
}

func (h *Handler) loadProgress(ctx context.Context, userID, videoID string) (progressResponse, error) {
	var p progressResponse
	var updatedAt time.Time
	err := h.db.QueryRow(ctx,
		`SELECT last_position, completed, updated_at FROM user_video_progress WHERE user_id = $1 AND video_id = $2`,
		userID, videoID,
	).Scan(&p.LastPosition, &p.Completed, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return p, err
	}
	p.UpdatedAt = &updatedAt
	p.ShouldResume = playback.ShouldResume(p.LastPosition, 0)
	return p, nil
}

type createVideoRequest struct {
	Title              string `json:"title"`
	Description        string `json:"description"`
	Difficulty         string `json:"difficulty"`
	ThumbnailURL       string `json:"thumbnailUrl"`
	StreamURL          string `json:"streamUrl"`
	MaxDurationSeconds int    `json:"maxDurationSeconds"`
}

type createVideoResponse struct {
	ID        string `json:"id"`
	StreamUID string `json:"streamUid"`
	UploadURL string `json:"uploadUrl,omitempty"`
}

// Create inserts a draft video. With streamUrl the row is linked to an
// existing Stream asset; otherwise a direct-upload URL is reserved when
// Stream is configured.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createVideoRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	req.ThumbnailURL = strings.TrimSpace(req.ThumbnailURL)
	if req.Difficulty == "" {
		req.Difficulty = defaultDifficulty
	}
	if msg := validate.First(
		validate.Title(req.Title),
		validate.Description(req.Description),
		validate.ThumbnailURL(req.ThumbnailURL),
		validate.Difficulty(req.Difficulty),
	); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	resp := createVideoResponse{}
	state := stream.StatePendingUpload
	switch {
	case req.StreamURL != "":
		uid := strings.TrimSpace(req.StreamURL)
		if !stream.IsStreamUID(uid) {
			extracted, ok := stream.ExtractUID(uid)
			if !ok {
				httputil.WriteError(w, http.StatusBadRequest, "streamUrl is not a Cloudflare Stream video")
				return
			}
			uid = extracted
		}
		resp.StreamUID = uid
		state = stream.StateQueued
	case h.streamConfigured():
		maxDuration := req.MaxDurationSeconds
		if maxDuration <= 0 {
			maxDuration = defaultMaxDurationSeconds
		}
		upload, err := h.stream.CreateDirectUpload(r.Context(), req.Title, maxDuration)
		if err != nil {
			slog.Error("stream: direct upload failed", "error", err)
			httputil.WriteError(w, http.StatusBadGateway, "failed to create stream upload")
			return
		}
		resp.StreamUID = upload.UID
		resp.UploadURL = upload.UploadURL
	}

	var createdBy *string
	if userID := auth.UserIDFromContext(r.Context()); userID != "" {
		createdBy = &userID
	}

	err := h.db.QueryRow(r.Context(),
		`INSERT INTO videos (title, description, difficulty, thumbnail_url, stream_uid, stream_state, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		req.Title, nilIfEmpty(req.Description), req.Difficulty, nilIfEmpty(req.ThumbnailURL), resp.StreamUID, state, createdBy,
	).Scan(&resp.ID)
	if err != nil {
		slog.Error("video: insert failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not create video")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, resp)
}

type updateVideoRequest struct {
	Title        *string `json:"title"`
	Description  *string `json:"description"`
	Difficulty   *string `json:"difficulty"`
	ThumbnailURL *string `json:"thumbnailUrl"`
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	if !validID(videoID) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	var req updateVideoRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Title == nil && req.Description == nil && req.Difficulty == nil && req.ThumbnailURL == nil {
		httputil.WriteError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	var msgs []string
	if req.Title != nil {
		*req.Title = strings.TrimSpace(*req.Title)
		msgs = append(msgs, validate.Title(*req.Title))
	}
	if req.Description != nil {
		msgs = append(msgs, validate.Description(*req.Description))
	}
	if req.Difficulty != nil {
		msgs = append(msgs, validate.Difficulty(*req.Difficulty))
	}
	if req.ThumbnailURL != nil {
		msgs = append(msgs, validate.ThumbnailURL(*req.ThumbnailURL))
	}
	if msg := validate.First(msgs...); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	tag, err := h.db.Exec(r.Context(),
		`UPDATE videos SET title = COALESCE($2, title), description = COALESCE($3, description),
		 difficulty = COALESCE($4, difficulty), thumbnail_url = COALESCE($5, thumbnail_url), updated_at = now()
		 WHERE id = $1`,
		videoID, req.Title, req.Description, req.Difficulty, req.ThumbnailURL,
	)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not update video")
		return
	}
	if tag.RowsAffected() == 0 {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	h.setPublished(w, r, chi.URLParam(r, "id"), true)
}

func (h *Handler) Unpublish(w http.ResponseWriter, r *http.Request) {
	h.setPublished(w, r, chi.URLParam(r, "id"), false)
}

// Toggle flips a video between draft and published.
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	if !validID(videoID) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	var status string
	if err := h.db.QueryRow(r.Context(), `SELECT status FROM videos WHERE id = $1`, videoID).Scan(&status); err != nil {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	h.setPublished(w, r, videoID, status != StatusPublished)
}

func (h *Handler) setPublished(w http.ResponseWriter, r *http.Request, videoID string, publish bool) {
	if !validID(videoID) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	if !publish {
		tag, err := h.db.Exec(r.Context(),
			`UPDATE videos SET status = $2, updated_at = now() WHERE id = $1`, videoID, StatusDraft)
		if err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "could not update video")
			return
		}
		if tag.RowsAffected() == 0 {
			httputil.WriteError(w, http.StatusNotFound, "video not found")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": StatusDraft})
		return
	}

	var title, uid, state string
	var duration float64
	var subtitleCount int
	err := h.db.QueryRow(r.Context(),
		`SELECT v.title, v.stream_uid, v.stream_state, v.duration,
		 (SELECT COUNT(*) FROM subtitles s WHERE s.video_id = v.id)
		 FROM videos v WHERE v.id = $1`, videoID,
	).Scan(&title, &uid, &state, &duration, &subtitleCount)
	if errors.Is(err, pgx.ErrNoRows) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not load video")
		return
	}

	if subtitleCount == 0 {
		httputil.WriteError(w, http.StatusConflict, "video has no subtitles")
		return
	}

	if h.streamConfigured() {
		if uid == "" {
			httputil.WriteError(w, http.StatusConflict, "video has no stream asset")
			return
		}
		asset, err := h.stream.GetVideo(r.Context(), uid)
		if err != nil {
			slog.Error("stream: status check failed", "video_id", videoID, "error", err)
			httputil.WriteError(w, http.StatusBadGateway, "failed to check stream status")
			return
		}
		if !asset.Ready() {
			httputil.WriteError(w, http.StatusConflict, "video is still processing")
			return
		}
		state = stream.StateReady
		if asset.Duration > 0 {
			duration = asset.Duration
		}
	}

	if _, err := h.db.Exec(r.Context(),
		`UPDATE videos SET status = $2, stream_state = $3, duration = $4,
		 published_at = COALESCE(published_at, now()), updated_at = now() WHERE id = $1`,
		videoID, StatusPublished, state, duration,
	); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not update video")
		return
	}

	notify.Go(h.notifier, notify.NewEvent(notify.VideoPublished, map[string]any{
		"videoId": videoID,
		"title":   title,
	}))
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": StatusPublished})
}

type syncResponse struct {
	StreamState string  `json:"streamState"`
	Duration    float64 `json:"duration"`
	Ready       bool    `json:"ready"`
}

// Sync refreshes processing state, duration and thumbnail from Stream.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	if !validID(videoID) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	var uid string
	if err := h.db.QueryRow(r.Context(), `SELECT stream_uid FROM videos WHERE id = $1`, videoID).Scan(&uid); err != nil {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	if !h.streamConfigured() {
		httputil.WriteError(w, http.StatusServiceUnavailable, "stream not configured")
		return
	}
	if uid == "" {
		httputil.WriteError(w, http.StatusConflict, "video has no stream asset")
		return
	}

	asset, err := h.stream.GetVideo(r.Context(), uid)
	if errors.Is(err, stream.ErrNotFound) {
		httputil.WriteError(w, http.StatusNotFound, "stream asset not found")
		return
	}
	if err != nil {
		slog.Error("stream: sync failed", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusBadGateway, "failed to fetch stream asset")
		return
	}

	resp := syncResponse{StreamState: asset.Status.State, Duration: asset.Duration, Ready: asset.Ready()}
	if resp.Ready {
		resp.StreamState = stream.StateReady
	}
	var thumb *string
	if asset.Thumbnail != "" {
		thumb = &asset.Thumbnail
	}

	if _, err := h.db.Exec(r.Context(),
		`UPDATE videos SET stream_state = $2, duration = $3, thumbnail_url = COALESCE(thumbnail_url, $4), updated_at = now()
		 WHERE id = $1`,
		videoID, resp.StreamState, resp.Duration, thumb,
	); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not update video")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Delete removes the video rows and, best effort, the Stream asset.
// Archived subtitle files are marked for the cleanup worker.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	if !validID(videoID) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	var uid string
	if err := h.db.QueryRow(r.Context(), `SELECT stream_uid FROM videos WHERE id = $1`, videoID).Scan(&uid); err != nil {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	if uid != "" && h.streamConfigured() {
		// The asset may already be gone on Cloudflare's side; the rows go
		// regardless and an orphaned asset is only a storage cost.
		if err := h.stream.DeleteVideo(r.Context(), uid); err != nil {
			slog.Warn("stream: delete failed, removing video anyway", "video_id", videoID, "stream_uid", uid, "error", err)
		}
	}

	tx, err := h.db.Begin(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not delete video")
		return
	}
	if _, err := tx.Exec(r.Context(),
		`UPDATE subtitle_sources SET deleted_at = now() WHERE video_id = $1 AND deleted_at IS NULL`, videoID,
	); err != nil {
		_ = tx.Rollback(r.Context())
		httputil.WriteError(w, http.StatusInternalServerError, "could not delete video")
		return
	}
	if _, err := tx.Exec(r.Context(), `DELETE FROM videos WHERE id = $1`, videoID); err != nil {
		_ = tx.Rollback(r.Context())
		httputil.WriteError(w, http.StatusInternalServerError, "could not delete video")
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not delete video")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
