package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/lingoreel/lingoreel/internal/auth"
	"github.com/lingoreel/lingoreel/internal/httputil"
	"github.com/lingoreel/lingoreel/internal/notify"
	"github.com/lingoreel/lingoreel/internal/srt"
	"github.com/lingoreel/lingoreel/internal/storage"
	"github.com/lingoreel/lingoreel/internal/validate"
)

const subtitleBatchSize = 100

func (h *Handler) loadSubtitles(ctx context.Context, videoID string) ([]srt.Entry, error) {
	rows, err := h.db.Query(ctx,
		`SELECT id, start_time, end_time, english_text, chinese_text
		 FROM subtitles WHERE video_id = $1 ORDER BY start_time, seq`, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []srt.Entry{}
	for rows.Next() {
		var e srt.Entry
		var chinese *string
		if err := rows.Scan(&e.ID, &e.Start, &e.End, &e.English, &chinese); err != nil {
			return nil, err
		}
		if chinese != nil {
			e.Chinese = *chinese
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Subtitles lists the cues of a published video.
func (h *Handler) Subtitles(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	if !h.publishedVideoExists(w, r, videoID) {
		return
	}
	entries, err := h.loadSubtitles(r.Context(), videoID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not load subtitles")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) publishedVideoExists(w http.ResponseWriter, r *http.Request, videoID string) bool {
	if !validID(videoID) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return false
	}
	var exists bool
	err := h.db.QueryRow(r.Context(),
		`SELECT EXISTS (SELECT 1 FROM videos WHERE id = $1 AND status = $2)`, videoID, StatusPublished,
	).Scan(&exists)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not load video")
		return false
	}
	if !exists {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return false
	}
	return true
}

var unsafeFilenameChars = regexp.MustCompile(`[^\p{L}\p{N}._ -]+`)

func exportFilename(title string, lang srt.Language) string {
	base := strings.Trim(unsafeFilenameChars.ReplaceAllString(title, ""), " .")
	if base == "" {
		base = "subtitles"
	}
	return fmt.Sprintf("%s.%s.srt", base, lang)
}

// Export downloads the cues of a video as an SRT file.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	lang, err := srt.ParseLanguage(r.URL.Query().Get("language"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "language must be english, chinese, or bilingual")
		return
	}
	if !validID(videoID) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	var title string
	err = h.db.QueryRow(r.Context(),
		`SELECT title FROM videos WHERE id = $1 AND status = $2`, videoID, StatusPublished,
	).Scan(&title)
	if errors.Is(err, pgx.ErrNoRows) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	if err != nil {
		slog.Error("subtitles: export lookup failed", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not load video")
		return
	}

	entries, err := h.loadSubtitles(r.Context(), videoID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not load subtitles")
		return
	}
	if len(entries) == 0 {
		httputil.WriteError(w, http.StatusNotFound, "video has no subtitles")
		return
	}

	w.Header().Set("Content-Type", "application/x-subrip; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(title, lang)))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, srt.Export(entries, lang))
}

type subtitleUpload struct {
	result   *srt.Result
	raw      []byte
	filename string
}

type entriesRequest struct {
	Entries []srt.Entry `json:"entries"`
	Offset  float64     `json:"offset"`
}

// readSubtitleUpload accepts either a multipart SRT file or a JSON cue list.
// On failure it returns the HTTP status and message to report.
func (h *Handler) readSubtitleUpload(w http.ResponseWriter, r *http.Request) (*subtitleUpload, int, string) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return h.readSubtitleFile(w, r)
	}

	var req entriesRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		return nil, http.StatusBadRequest, err.Error()
	}
	entries := make([]srt.Entry, 0, len(req.Entries))
	for _, e := range req.Entries {
		entries = append(entries, srt.Entry{
			Start:   e.Start + req.Offset,
			End:     e.End + req.Offset,
			English: strings.TrimSpace(e.English),
			Chinese: strings.TrimSpace(e.Chinese),
		})
	}
	sorted := srt.NewTrack(entries).Entries()
	return &subtitleUpload{
		result: &srt.Result{Entries: sorted, Warnings: []string{}, Blocks: len(sorted), Encoding: srt.UTF8},
	}, 0, ""
}

func (h *Handler) readSubtitleFile(w http.ResponseWriter, r *http.Request) (*subtitleUpload, int, string) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxSRTBytes+(1<<20))
	if err := r.ParseMultipartForm(h.maxSRTBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, "subtitle file too large"
		}
		return nil, http.StatusBadRequest, "invalid multipart form"
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, http.StatusBadRequest, "file is required"
	}
	defer func() { _ = file.Close() }()

	filename := filepath.Base(header.Filename)
	if msg := validate.SubtitleFilename(filename); msg != "" {
		return nil, http.StatusBadRequest, msg
	}
	if !strings.EqualFold(filepath.Ext(filename), ".srt") {
		return nil, http.StatusBadRequest, "only .srt files are supported"
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxSRTBytes+1))
	if err != nil {
		return nil, http.StatusBadRequest, "could not read subtitle file"
	}
	if int64(len(data)) > h.maxSRTBytes {
		return nil, http.StatusRequestEntityTooLarge, "subtitle file too large"
	}

	var offset float64
	if v := strings.TrimSpace(r.FormValue("offset")); v != "" {
		offset, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, http.StatusBadRequest, "offset must be a number"
		}
	}

	res, err := srt.ParseBytes(data, offset)
	if errors.Is(err, srt.ErrEmpty) || errors.Is(err, srt.ErrNoBlocks) {
		return nil, http.StatusBadRequest, strings.TrimPrefix(err.Error(), "srt: ")
	}
	if err != nil {
		return nil, http.StatusBadRequest, "could not read subtitle file"
	}
	return &subtitleUpload{result: res, raw: data, filename: filename}, 0, ""
}

type previewResponse struct {
	Entries  []srt.Entry  `json:"entries"`
	Warnings []string     `json:"warnings"`
	Problems []string     `json:"problems"`
	Encoding srt.Encoding `json:"encoding"`
	Stats    srt.Stats    `json:"stats"`
}

// Preview parses an upload without storing anything.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	upload, status, msg := h.readSubtitleUpload(w, r)
	if upload == nil {
		httputil.WriteError(w, status, msg)
		return
	}
	problems := srt.Validate(upload.result.Entries)
	if problems == nil {
		problems = []string{}
	}
	if err := srt.CheckDuplicates(upload.result.Entries); err != nil {
		problems = append(problems, err.Error())
	}
	httputil.WriteJSON(w, http.StatusOK, previewResponse{
		Entries:  upload.result.Entries,
		Warnings: upload.result.Warnings,
		Problems: problems,
		Encoding: upload.result.Encoding,
		Stats:    srt.NewTrack(upload.result.Entries).Stats(),
	})
}

type uploadResponse struct {
	Inserted int          `json:"inserted"`
	Warnings []string     `json:"warnings"`
	Encoding srt.Encoding `json:"encoding"`
}

// Upload replaces every cue of a video with the uploaded ones.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	if !validID(videoID) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	upload, status, msg := h.readSubtitleUpload(w, r)
	if upload == nil {
		httputil.WriteError(w, status, msg)
		return
	}
	entries := upload.result.Entries

	if err := srt.CheckDuplicates(entries); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := srt.CheckCues(entries); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	for i, e := range entries {
		if msg := validate.First(validate.SubtitleText(e.English), validate.SubtitleText(e.Chinese)); msg != "" {
			httputil.WriteError(w, http.StatusBadRequest, fmt.Sprintf("cue %d: %s", i+1, msg))
			return
		}
	}

	var title string
	if err := h.db.QueryRow(r.Context(), `SELECT title FROM videos WHERE id = $1`, videoID).Scan(&title); err != nil {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	objectKey := h.archiveSubtitleFile(r.Context(), videoID, upload)

	if err := h.replaceSubtitles(r.Context(), videoID, entries, upload, objectKey); err != nil {
		slog.Error("subtitles: replace failed", "video_id", videoID, "error", err)
		if objectKey != "" {
			// No subtitle_sources row references the object, so the
			// cleanup worker would never find it.
			if err := h.storage.DeleteObject(context.WithoutCancel(r.Context()), objectKey); err != nil {
				slog.Warn("subtitles: orphaned archive not removed", "video_id", videoID, "key", objectKey, "error", err)
			}
		}
		httputil.WriteError(w, http.StatusInternalServerError, "could not save subtitles")
		return
	}

	warnings := append([]string{}, upload.result.Warnings...)
	for _, p := range srt.Validate(entries) {
		if !slices.Contains(warnings, p) {
			warnings = append(warnings, p)
		}
	}
	notify.Go(h.notifier, notify.NewEvent(notify.SubtitlesUploaded, map[string]any{
		"videoId":  videoID,
		"title":    title,
		"inserted": len(entries),
		"warnings": len(warnings),
	}))

	httputil.WriteJSON(w, http.StatusCreated, uploadResponse{
		Inserted: len(entries),
		Warnings: warnings,
		Encoding: upload.result.Encoding,
	})
}

// archiveSubtitleFile keeps the original upload bytes. It returns "" when
// nothing was archived; archiving is best effort.
func (h *Handler) archiveSubtitleFile(ctx context.Context, videoID string, upload *subtitleUpload) string {
	if h.storage == nil || upload.raw == nil {
		return ""
	}
	key := storage.SubtitleKey(videoID, upload.filename)
	if err := h.storage.PutObject(ctx, key, upload.raw, "application/x-subrip"); err != nil {
		slog.Error("subtitles: archive failed", "video_id", videoID, "error", err)
		return ""
	}
	return key
}

func (h *Handler) replaceSubtitles(ctx context.Context, videoID string, entries []srt.Entry, upload *subtitleUpload, objectKey string) error {
	tx, err := h.db.Begin(ctx)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM subtitles WHERE video_id = $1`, videoID); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("clear subtitles: %w", err)
	}

	if err := InsertSubtitles(ctx, tx, videoID, entries); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if objectKey != "" {
		var uploadedBy *string
		if userID := auth.UserIDFromContext(ctx); userID != "" {
			uploadedBy = &userID
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO subtitle_sources (video_id, object_key, filename, encoding, cue_count, uploaded_by)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			videoID, objectKey, upload.filename, string(upload.result.Encoding), len(entries), uploadedBy,
		); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("record subtitle source: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// InsertSubtitles writes cues in multi-row batches, numbering them from 1. It
// does not clear existing cues; callers do that inside the same transaction.
func InsertSubtitles(ctx context.Context, tx pgx.Tx, videoID string, entries []srt.Entry) error {
	for start := 0; start < len(entries); start += subtitleBatchSize {
		end := min(start+subtitleBatchSize, len(entries))

		var sb strings.Builder
		sb.WriteString("INSERT INTO subtitles (video_id, seq, start_time, end_time, english_text, chinese_text) VALUES ")
		args := make([]any, 0, (end-start)*6)
		for i, e := range entries[start:end] {
			if i > 0 {
				sb.WriteString(", ")
			}
			n := len(args)
			fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6)
			args = append(args, videoID, start+i+1, e.Start, e.End, e.English, nilIfEmpty(e.Chinese))
		}

		if _, err := tx.Exec(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("insert subtitles %d-%d: %w", start+1, end, err)
		}
	}
	return nil
}

type updateSubtitleRequest struct {
	Start   *float64 `json:"startTime"`
	End     *float64 `json:"endTime"`
	English *string  `json:"english"`
	Chinese *string  `json:"chinese"`
}

// UpdateSubtitle edits a single cue.
func (h *Handler) UpdateSubtitle(w http.ResponseWriter, r *http.Request) {
	subtitleID, err := strconv.ParseInt(chi.URLParam(r, "subtitleId"), 10, 64)
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "subtitle not found")
		return
	}

	var req updateSubtitleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var e srt.Entry
	var chinese *string
	err = h.db.QueryRow(r.Context(),
		`SELECT id, start_time, end_time, english_text, chinese_text FROM subtitles WHERE id = $1`, subtitleID,
	).Scan(&e.ID, &e.Start, &e.End, &e.English, &chinese)
	if errors.Is(err, pgx.ErrNoRows) {
		httputil.WriteError(w, http.StatusNotFound, "subtitle not found")
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not load subtitle")
		return
	}
	if chinese != nil {
		e.Chinese = *chinese
	}

	if req.Start != nil {
		e.Start = *req.Start
	}
	if req.End != nil {
		e.End = *req.End
	}
	if req.English != nil {
		e.English = strings.TrimSpace(*req.English)
	}
	if req.Chinese != nil {
		e.Chinese = strings.TrimSpace(*req.Chinese)
	}

	if err := srt.CheckCues([]srt.Entry{e}); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), "cue 1: "))
		return
	}
	if msg := validate.First(validate.SubtitleText(e.English), validate.SubtitleText(e.Chinese)); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	if _, err := h.db.Exec(r.Context(),
		`UPDATE subtitles SET start_time = $2, end_time = $3, english_text = $4, chinese_text = $5 WHERE id = $1`,
		e.ID, e.Start, e.End, e.English, nilIfEmpty(e.Chinese),
	); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not update subtitle")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) DeleteSubtitle(w http.ResponseWriter, r *http.Request) {
	subtitleID, err := strconv.ParseInt(chi.URLParam(r, "subtitleId"), 10, 64)
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "subtitle not found")
		return
	}
	tag, err := h.db.Exec(r.Context(), `DELETE FROM subtitles WHERE id = $1`, subtitleID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not delete subtitle")
		return
	}
	if tag.RowsAffected() == 0 {
		httputil.WriteError(w, http.StatusNotFound, "subtitle not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAllSubtitles clears every cue of a video.
func (h *Handler) DeleteAllSubtitles(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	if !validID(videoID) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	tag, err := h.db.Exec(r.Context(), `DELETE FROM subtitles WHERE video_id = $1`, videoID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not delete subtitles")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"deleted": tag.RowsAffected()})
}

type subtitleStatsResponse struct {
	srt.Stats
	Problems []string `json:"problems"`
}

// SubtitleStats summarises the stored cues of a video of any status.
func (h *Handler) SubtitleStats(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	if !validID(videoID) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	entries, err := h.loadSubtitles(r.Context(), videoID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not load subtitles")
		return
	}
	problems := []string{}
	if len(entries) > 0 {
		problems = append(problems, srt.Validate(entries)...)
	}
	httputil.WriteJSON(w, http.StatusOK, subtitleStatsResponse{
		Stats:    srt.NewTrack(entries).Stats(),
		Problems: problems,
	})
}

type subtitleSource struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Encoding    string    `json:"encoding"`
	CueCount    int       `json:"cueCount"`
	CreatedAt   time.Time `json:"createdAt"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
}

// SubtitleSources lists archived uploads with short-lived download links.
func (h *Handler) SubtitleSources(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	if !validID(videoID) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	rows, err := h.db.Query(r.Context(),
		`SELECT id, object_key, filename, encoding, cue_count, created_at FROM subtitle_sources
		 WHERE video_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, videoID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not list subtitle sources")
		return
	}
	defer rows.Close()

	sources := []subtitleSource{}
	for rows.Next() {
		var s subtitleSource
		var key string
		if err := rows.Scan(&s.ID, &key, &s.Filename, &s.Encoding, &s.CueCount, &s.CreatedAt); err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "could not list subtitle sources")
			return
		}
		if h.storage != nil {
			url, err := h.storage.GenerateDownloadURLWithDisposition(r.Context(), key, s.Filename, 15*time.Minute)
			if err != nil {
				slog.Error("subtitles: presign failed", "key", key, "error", err)
			}
			s.DownloadURL = url
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not list subtitle sources")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sources)
}
