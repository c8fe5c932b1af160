package video

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lingoreel/lingoreel/internal/auth"
	"github.com/lingoreel/lingoreel/internal/httputil"
	"github.com/lingoreel/lingoreel/internal/validate"
)

type WordCard struct {
	ID                  string    `json:"id"`
	VideoID             string    `json:"videoId"`
	Word                string    `json:"word"`
	Phonetic            *string   `json:"phonetic"`
	ChineseDefinition   string    `json:"chineseDefinition"`
	EnglishDefinition   *string   `json:"englishDefinition"`
	ExampleFromVideo    *string   `json:"exampleFromVideo"`
	ExampleTranslation  *string   `json:"exampleTranslation"`
	SubtitleID          *int64    `json:"subtitleId"`
	FirstAppearanceTime float64   `json:"firstAppearanceTime"`
	CreatedAt           time.Time `json:"createdAt"`
	Collected           bool      `json:"collected"`
}

// NormalizeWord is the canonical form used for word cards and collections.
func NormalizeWord(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// WordPattern is a PostgreSQL regex matching word only as a whole word,
// so "art" does not match inside "start".
func WordPattern(word string) string {
	return `\m` + regexp.QuoteMeta(word) + `\M`
}

// ContainsWord reports whether text contains word as a whole word, ignoring
// case. It mirrors WordPattern for callers that match in memory.
func ContainsWord(text, word string) bool {
	text, word = strings.ToLower(text), strings.ToLower(word)
	if word == "" {
		return false
	}
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], word)
		if i < 0 {
			return false
		}
		i += from
		end := i + len(word)
		before, _ := utf8.DecodeLastRuneInString(text[:i])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (i == 0 || !isWordRune(before)) && (end == len(text) || !isWordRune(after)) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		from = i + size
	}
	return false
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Words lists the word cards of a published video in order of appearance,
// flagging the ones the caller has collected.
func (h *Handler) Words(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	userID := auth.UserIDFromContext(r.Context())
	if !h.publishedVideoExists(w, r, videoID) {
		return
	}

	rows, err := h.db.Query(r.Context(),
		`SELECT w.id, w.video_id, w.word, w.phonetic, w.chinese_definition, w.english_definition,
		        w.example_from_video, w.example_translation, w.subtitle_id, w.first_appearance_time, w.created_at,
		        EXISTS (SELECT 1 FROM user_collections c WHERE c.user_id = $2 AND c.word = w.word)
		 FROM word_cards w
		 WHERE w.video_id = $1
		 ORDER BY w.first_appearance_time, w.word`, videoID, userID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not load words")
		return
	}
	defer rows.Close()

	cards := []WordCard{}
	for rows.Next() {
		var c WordCard
		if err := rows.Scan(&c.ID, &c.VideoID, &c.Word, &c.Phonetic, &c.ChineseDefinition, &c.EnglishDefinition,
			&c.ExampleFromVideo, &c.ExampleTranslation, &c.SubtitleID, &c.FirstAppearanceTime, &c.CreatedAt,
			&c.Collected); err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "could not load words")
			return
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not load words")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cards)
}

type createWordRequest struct {
	Word               string `json:"word"`
	Phonetic           string `json:"phonetic"`
	ChineseDefinition  string `json:"chineseDefinition"`
	EnglishDefinition  string `json:"englishDefinition"`
	ExampleFromVideo   string `json:"exampleFromVideo"`
	ExampleTranslation string `json:"exampleTranslation"`
	SubtitleID         *int64 `json:"subtitleId"`
}

// CreateWord adds a word card. Without a subtitleId the first cue whose
// English text contains the word is used as its first appearance.
func (h *Handler) CreateWord(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	if !validID(videoID) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	var req createWordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Word = NormalizeWord(req.Word)
	req.ChineseDefinition = strings.TrimSpace(req.ChineseDefinition)

	if msg := validate.First(
		validate.Word(req.Word),
		validate.Phonetic(req.Phonetic),
		validate.Definition(req.ChineseDefinition),
		validate.Definition(req.EnglishDefinition),
		validate.Example(req.ExampleFromVideo),
		validate.Example(req.ExampleTranslation),
	); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}
	if req.ChineseDefinition == "" {
		httputil.WriteError(w, http.StatusBadRequest, "chineseDefinition is required")
		return
	}

	subtitleID, appearance, err := h.firstAppearance(r.Context(), videoID, req.Word, req.SubtitleID)
	if errors.Is(err, pgx.ErrNoRows) {
		httputil.WriteError(w, http.StatusBadRequest, "subtitle does not belong to this video")
		return
	}
	if err != nil {
		slog.Error("words: lookup appearance failed", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not create word")
		return
	}

	card := WordCard{
		VideoID:             videoID,
		Word:                req.Word,
		Phonetic:            nilIfEmpty(strings.TrimSpace(req.Phonetic)),
		ChineseDefinition:   req.ChineseDefinition,
		EnglishDefinition:   nilIfEmpty(strings.TrimSpace(req.EnglishDefinition)),
		ExampleFromVideo:    nilIfEmpty(strings.TrimSpace(req.ExampleFromVideo)),
		ExampleTranslation:  nilIfEmpty(strings.TrimSpace(req.ExampleTranslation)),
		SubtitleID:          subtitleID,
		FirstAppearanceTime: appearance,
	}
	err = h.db.QueryRow(r.Context(),
		`INSERT INTO word_cards (video_id, word, phonetic, chinese_definition, english_definition,
		                         example_from_video, example_translation, subtitle_id, first_appearance_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at`,
		card.VideoID, card.Word, card.Phonetic, card.ChineseDefinition, card.EnglishDefinition,
		card.ExampleFromVideo, card.ExampleTranslation, card.SubtitleID, card.FirstAppearanceTime,
	).Scan(&card.ID, &card.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				httputil.WriteError(w, http.StatusConflict, "word already exists for this video")
				return
			case "23503":
				httputil.WriteError(w, http.StatusNotFound, "video not found")
				return
			}
		}
		slog.Error("words: insert failed", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not create word")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, card)
}

// firstAppearance resolves where a word is first heard. An explicit
// subtitle must belong to the video; otherwise the earliest matching cue is
// used, or nothing when the word never appears.
func (h *Handler) firstAppearance(ctx context.Context, videoID, word string, subtitleID *int64) (*int64, float64, error) {
	var start float64
	if subtitleID != nil {
		err := h.db.QueryRow(ctx,
			`SELECT start_time FROM subtitles WHERE id = $1 AND video_id = $2`, *subtitleID, videoID,
		).Scan(&start)
		if err != nil {
			return nil, 0, err
		}
		return subtitleID, start, nil
	}

	var id int64
	err := h.db.QueryRow(ctx,
		`SELECT id, start_time FROM subtitles
		 WHERE video_id = $1 AND english_text ~* $2
		 ORDER BY start_time, seq LIMIT 1`, videoID, WordPattern(word),
	).Scan(&id, &start)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return &id, start, nil
}

func (h *Handler) DeleteWord(w http.ResponseWriter, r *http.Request) {
	wordID := chi.URLParam(r, "wordId")
	if !validID(wordID) {
		httputil.WriteError(w, http.StatusNotFound, "word not found")
		return
	}
	tag, err := h.db.Exec(r.Context(), `DELETE FROM word_cards WHERE id = $1`, wordID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not delete word")
		return
	}
	if tag.RowsAffected() == 0 {
		httputil.WriteError(w, http.StatusNotFound, "word not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
