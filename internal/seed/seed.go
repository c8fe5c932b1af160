// Package seed loads a catalog of videos, subtitles and word cards from a
// YAML manifest into the database.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"

	"github.com/lingoreel/lingoreel/internal/database"
	"github.com/lingoreel/lingoreel/internal/srt"
	"github.com/lingoreel/lingoreel/internal/stream"
	"github.com/lingoreel/lingoreel/internal/validate"
	"github.com/lingoreel/lingoreel/internal/video"
	"gopkg.in/yaml.v3"
)

// Manifest is the top-level seed document.
//
//	videos:
//	  - title: Ordering Coffee
//	    difficulty: beginner
//	    stream: https://customer-abc.cloudflarestream.com/<uid>/watch
//	    published: true
//	    subtitles: coffee.srt
//	    words:
//	      - word: latte
//	        chinese: 拿铁
type Manifest struct {
	Videos []Video `yaml:"videos"`
}

type Video struct {
	Title        string  `yaml:"title"`
	Description  string  `yaml:"description"`
	Difficulty   string  `yaml:"difficulty"`
	ThumbnailURL string  `yaml:"thumbnailUrl"`
	Stream       string  `yaml:"stream"`
	Duration     float64 `yaml:"duration"`
	Published    bool    `yaml:"published"`
	// Subtitles is an SRT path relative to the manifest.
	Subtitles string  `yaml:"subtitles"`
	Offset    float64 `yaml:"offset"`
	Words     []Word  `yaml:"words"`

	streamUID string
	cues      []srt.Entry
}

type Word struct {
	Word               string `yaml:"word"`
	Phonetic           string `yaml:"phonetic"`
	Chinese            string `yaml:"chinese"`
	English            string `yaml:"english"`
	Example            string `yaml:"example"`
	ExampleTranslation string `yaml:"exampleTranslation"`
}

// Cues returns the parsed subtitle cues for v.
func (v *Video) Cues() []srt.Entry {
	return v.cues
}

type Summary struct {
	Videos    int
	Subtitles int
	Words     int
	Skipped   int
}

// Load reads and validates the manifest at name, parsing every referenced
// subtitle file from fsys. Unknown keys are rejected.
func Load(fsys fs.FS, name string) (*Manifest, error) {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Videos) == 0 {
		return nil, errors.New("manifest lists no videos")
	}

	dir := path.Dir(name)
	for i := range m.Videos {
		v := &m.Videos[i]
		if err := v.prepare(fsys, dir); err != nil {
			return nil, fmt.Errorf("video %d (%q): %w", i+1, v.Title, err)
		}
	}
	return &m, nil
}

func (v *Video) prepare(fsys fs.FS, dir string) error {
	v.Title = strings.TrimSpace(v.Title)
	if v.Difficulty == "" {
		v.Difficulty = "intermediate"
	}
	if v.Title == "" {
		return errors.New("title is required")
	}
	if msg := validate.First(
		validate.Title(v.Title),
		validate.Description(v.Description),
		validate.ThumbnailURL(v.ThumbnailURL),
		validate.Difficulty(v.Difficulty),
	); msg != "" {
		return errors.New(msg)
	}

	if s := strings.TrimSpace(v.Stream); s != "" {
		if stream.IsStreamUID(s) {
			v.streamUID = s
		} else if uid, ok := stream.ExtractUID(s); ok {
			v.streamUID = uid
		} else {
			return fmt.Errorf("stream %q is not a Cloudflare Stream video", s)
		}
	}

	if v.Subtitles != "" {
		raw, err := fs.ReadFile(fsys, path.Join(dir, v.Subtitles))
		if err != nil {
			return fmt.Errorf("read subtitles: %w", err)
		}
		res, err := srt.ParseBytes(raw, v.Offset)
		if err != nil {
			return err
		}
		if err := srt.CheckCues(res.Entries); err != nil {
			return err
		}
		if err := srt.CheckDuplicates(res.Entries); err != nil {
			return err
		}
		for _, w := range res.Warnings {
			slog.Warn("seed: subtitle warning", "title", v.Title, "file", v.Subtitles, "warning", w)
		}
		v.cues = res.Entries
		if v.Duration == 0 {
			v.Duration = srt.NewTrack(v.cues).Stats().TotalDuration
		}
	}
	if v.Published && len(v.cues) == 0 {
		return errors.New("a published video needs subtitles")
	}

	seen := make(map[string]bool, len(v.Words))
	for i := range v.Words {
		w := &v.Words[i]
		w.Word = video.NormalizeWord(w.Word)
		w.Chinese = strings.TrimSpace(w.Chinese)
		if msg := validate.First(
			validate.Word(w.Word),
			validate.Phonetic(w.Phonetic),
			validate.Definition(w.Chinese),
			validate.Definition(w.English),
			validate.Example(w.Example),
			validate.Example(w.ExampleTranslation),
		); msg != "" {
			return fmt.Errorf("word %d: %s", i+1, msg)
		}
		if w.Chinese == "" {
			return fmt.Errorf("word %q: chinese definition is required", w.Word)
		}
		if seen[w.Word] {
			return fmt.Errorf("word %q is listed twice", w.Word)
		}
		seen[w.Word] = true
	}
	return nil
}

// firstAppearance returns the 1-based sequence of the earliest cue whose
// English text contains word as a whole word, or 0 when it never appears.
func firstAppearance(cues []srt.Entry, word string) (int, float64) {
	for i, c := range cues {
		if video.ContainsWord(c.English, word) {
			return i + 1, c.Start
		}
	}
	return 0, 0
}

// Import writes every video in m that is not already present. A video is
// matched by title; each one is written in its own transaction.
func Import(ctx context.Context, db database.DBTX, m *Manifest) (Summary, error) {
	var sum Summary
	for i := range m.Videos {
		v := &m.Videos[i]

		var exists bool
		if err := db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM videos WHERE title = $1)`, v.Title,
		).Scan(&exists); err != nil {
			return sum, fmt.Errorf("check %q: %w", v.Title, err)
		}
		if exists {
			slog.Info("seed: video exists, skipping", "title", v.Title)
			sum.Skipped++
			continue
		}

		if err := importVideo(ctx, db, v); err != nil {
			return sum, fmt.Errorf("import %q: %w", v.Title, err)
		}
		sum.Videos++
		sum.Subtitles += len(v.cues)
		sum.Words += len(v.Words)
	}
	return sum, nil
}

func importVideo(ctx context.Context, db database.DBTX, v *Video) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	status := "draft"
	if v.Published {
		status = "published"
	}
	state := stream.StatePendingUpload
	if v.streamUID != "" {
		state = stream.StateQueued
	}

	var videoID string
	err = tx.QueryRow(ctx,
		`INSERT INTO videos (title, description, difficulty, thumbnail_url, stream_uid, stream_state, duration, status, published_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CASE WHEN $8 = 'published' THEN now() END) RETURNING id`,
		v.Title, nilIfEmpty(v.Description), v.Difficulty, nilIfEmpty(v.ThumbnailURL), v.streamUID, state, v.Duration, status,
	).Scan(&videoID)
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}

	if len(v.cues) > 0 {
		if err := video.InsertSubtitles(ctx, tx, videoID, v.cues); err != nil {
			return err
		}
	}

	for _, w := range v.Words {
		var seq *int
		seqN, start := firstAppearance(v.cues, w.Word)
		if seqN > 0 {
			seq = &seqN
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO word_cards (video_id, word, phonetic, chinese_definition, english_definition,
			                         example_from_video, example_translation, subtitle_id, first_appearance_time)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, (SELECT id FROM subtitles WHERE video_id = $1 AND seq = $8), $9)`,
			videoID, w.Word, nilIfEmpty(w.Phonetic), w.Chinese, nilIfEmpty(w.English),
			nilIfEmpty(w.Example), nilIfEmpty(w.ExampleTranslation), seq, start,
		); err != nil {
			return fmt.Errorf("insert word %q: %w", w.Word, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	slog.Info("seed: imported video", "video_id", videoID, "title", v.Title, "cues", len(v.cues), "words", len(v.Words))
	return nil
}

func nilIfEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
