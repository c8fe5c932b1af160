// Package collection keeps each learner's personal vocabulary list.
package collection

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lingoreel/lingoreel/internal/auth"
	"github.com/lingoreel/lingoreel/internal/database"
	"github.com/lingoreel/lingoreel/internal/httputil"
	"github.com/lingoreel/lingoreel/internal/validate"
	"github.com/lingoreel/lingoreel/internal/video"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Item struct {
	ID                int64     `json:"id"`
	Word              string    `json:"word"`
	VideoID           *string   `json:"videoId"`
	VideoTitle        *string   `json:"videoTitle"`
	SubtitleID        *int64    `json:"subtitleId"`
	ChineseDefinition *string   `json:"chineseDefinition"`
	CreatedAt         time.Time `json:"createdAt"`
}

type Handler struct {
	db database.DBTX
}

func NewHandler(db database.DBTX) *Handler {
	return &Handler{db: db}
}

// List returns the caller's collected words, newest first. The definition
// comes from the word card of the video the word was collected from.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	p := httputil.ParsePagination(r, defaultPageSize, maxPageSize)

	var total int
	if err := h.db.QueryRow(r.Context(),
		`SELECT COUNT(*) FROM user_collections WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to count collection")
		return
	}

	rows, err := h.db.Query(r.Context(),
		`SELECT c.id, c.word, c.video_id, v.title, c.subtitle_id, wc.chinese_definition, c.created_at
		 FROM user_collections c
		 LEFT JOIN videos v ON v.id = c.video_id
		 LEFT JOIN word_cards wc ON wc.video_id = c.video_id AND wc.word = c.word
		 WHERE c.user_id = $1
		 ORDER BY c.created_at DESC, c.id DESC
		 LIMIT $2 OFFSET $3`,
		userID, p.Limit, p.Offset(),
	)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list collection")
		return
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Word, &it.VideoID, &it.VideoTitle, &it.SubtitleID, &it.ChineseDefinition, &it.CreatedAt); err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "failed to scan collection")
			return
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list collection")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPage(items, p, total))
}

type addRequest struct {
	Word       string  `json:"word"`
	VideoID    *string `json:"videoId"`
	SubtitleID *int64  `json:"subtitleId"`
}

func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req addRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	word := video.NormalizeWord(req.Word)
	if msg := validate.Word(word); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}
	if req.VideoID != nil && *req.VideoID == "" {
		req.VideoID = nil
	}
	if req.VideoID != nil {
		if _, err := uuid.Parse(*req.VideoID); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid videoId")
			return
		}
	}
	if req.SubtitleID != nil {
		if req.VideoID == nil {
			httputil.WriteError(w, http.StatusBadRequest, "videoId is required with subtitleId")
			return
		}
		var ok bool
		if err := h.db.QueryRow(r.Context(),
			`SELECT EXISTS (SELECT 1 FROM subtitles WHERE id = $1 AND video_id = $2)`,
			*req.SubtitleID, *req.VideoID,
		).Scan(&ok); err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "failed to check subtitle")
			return
		}
		if !ok {
			httputil.WriteError(w, http.StatusBadRequest, "subtitle does not belong to this video")
			return
		}
	}

	it := Item{Word: word, VideoID: req.VideoID, SubtitleID: req.SubtitleID}
	err := h.db.QueryRow(r.Context(),
		`INSERT INTO user_collections (user_id, word, video_id, subtitle_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		userID, word, req.VideoID, req.SubtitleID,
	).Scan(&it.ID, &it.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				httputil.WriteError(w, http.StatusConflict, "word already collected")
				return
			case "23503":
				httputil.WriteError(w, http.StatusNotFound, "video not found")
				return
			}
		}
		slog.Error("collection: add failed", "user_id", userID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to collect word")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, it)
}

// Check reports whether the caller has collected a word.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	raw, err := url.PathUnescape(chi.URLParam(r, "word"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid word")
		return
	}
	word := video.NormalizeWord(raw)
	if msg := validate.Word(word); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	var collected bool
	if err := h.db.QueryRow(r.Context(),
		`SELECT EXISTS (SELECT 1 FROM user_collections WHERE user_id = $1 AND word = $2)`,
		userID, word,
	).Scan(&collected); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to check collection")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"collected": collected})
}

func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	word := video.NormalizeWord(r.URL.Query().Get("word"))
	if msg := validate.Word(word); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	tag, err := h.db.Exec(r.Context(),
		`DELETE FROM user_collections WHERE user_id = $1 AND word = $2`, userID, word)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to remove word")
		return
	}
	if tag.RowsAffected() == 0 {
		httputil.WriteError(w, http.StatusNotFound, "word not in collection")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
