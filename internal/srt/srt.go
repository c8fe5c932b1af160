// Package srt parses bilingual SubRip subtitle files into time-ordered cues.
//
// A cue's text may carry English, Chinese, or both languages on separate
// lines. Parse splits them so the player can show the translation on demand.
package srt

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

var (
	ErrEmpty    = errors.New("srt: content is empty")
	ErrNoBlocks = errors.New("srt: no subtitle blocks found")
)

// Entry is one subtitle cue. ID is zero for freshly parsed cues and holds the
// database id once stored.
type Entry struct {
	ID      int64   `json:"id,omitempty"`
	Start   float64 `json:"startTime"`
	End     float64 `json:"endTime"`
	English string  `json:"english"`
	Chinese string  `json:"chinese,omitempty"`
}

func (e Entry) Duration() float64 {
	return e.End - e.Start
}

type Result struct {
	Entries  []Entry  `json:"entries"`
	Warnings []string `json:"warnings"`
	Blocks   int      `json:"blocks"`
	Encoding Encoding `json:"encoding,omitempty"`
}

var (
	blockSeparator = regexp.MustCompile(`\n\s*\n`)
	timeLine       = regexp.MustCompile(`(\d{2}:\d{2}:\d{2}[,.]\d{3})\s*-->\s*(\d{2}:\d{2}:\d{2}[,.]\d{3})`)
	latinLetter    = regexp.MustCompile(`[a-zA-Z]`)
)

// ParseBytes decodes raw file bytes and parses them.
func ParseBytes(b []byte, offset float64) (*Result, error) {
	content, enc, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("decode subtitle file: %w", err)
	}
	res, err := Parse(content, offset)
	if err != nil {
		return nil, err
	}
	res.Encoding = enc
	return res, nil
}

// Parse parses SRT text, shifting every cue by offset seconds. Malformed
// blocks are skipped and reported in Result.Warnings; only empty input is an
// error.
func Parse(content string, offset float64) (*Result, error) {
	clean := strings.ReplaceAll(content, "\r\n", "\n")
	clean = strings.ReplaceAll(clean, "\r", "\n")
	clean = strings.TrimPrefix(clean, "\ufeff")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return nil, ErrEmpty
	}

	var blocks []string
	for _, b := range blockSeparator.Split(clean, -1) {
		if strings.TrimSpace(b) != "" {
			blocks = append(blocks, b)
		}
	}
	if len(blocks) == 0 {
		return nil, ErrNoBlocks
	}

	res := &Result{Entries: make([]Entry, 0, len(blocks)), Warnings: []string{}, Blocks: len(blocks)}
	for i, block := range blocks {
		entry, err := parseBlock(block, offset)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("block %d: %v", i+1, err))
			continue
		}
		res.Entries = append(res.Entries, entry)
	}

	sort.SliceStable(res.Entries, func(a, b int) bool {
		return res.Entries[a].Start < res.Entries[b].Start
	})

	for i := 0; i+1 < len(res.Entries); i++ {
		if res.Entries[i].End > res.Entries[i+1].Start {
			res.Warnings = append(res.Warnings, fmt.Sprintf("cues %d and %d overlap", i+1, i+2))
		}
	}

	return res, nil
}

func parseBlock(block string, offset float64) (Entry, error) {
	var lines []string
	for _, l := range strings.Split(strings.TrimSpace(block), "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) < 3 {
		return Entry{}, errors.New("incomplete block")
	}

	if _, err := strconv.Atoi(strings.TrimSpace(lines[0])); err != nil {
		return Entry{}, fmt.Errorf("invalid sequence number %q", lines[0])
	}

	m := timeLine.FindStringSubmatch(lines[1])
	if m == nil {
		return Entry{}, fmt.Errorf("invalid time line %q", lines[1])
	}
	start, err := ParseTimestamp(m[1])
	if err != nil {
		return Entry{}, err
	}
	end, err := ParseTimestamp(m[2])
	if err != nil {
		return Entry{}, err
	}
	start += offset
	end += offset

	if start >= end {
		return Entry{}, errors.New("start time must be before end time")
	}
	if start < 0 || end < 0 {
		return Entry{}, errors.New("time must not be negative")
	}

	text := strings.TrimSpace(strings.Join(lines[2:], "\n"))
	if text == "" {
		return Entry{}, errors.New("empty text")
	}

	english, chinese := SplitBilingual(text)
	return Entry{
		Start:   start,
		End:     end,
		English: strings.TrimSpace(english),
		Chinese: strings.TrimSpace(chinese),
	}, nil
}

// SplitBilingual separates cue text into its English and Chinese parts.
// Text in only one language is returned unchanged as English; pure Chinese
// text is returned as both so learners always have a primary line.
func SplitBilingual(text string) (english, chinese string) {
	hasLatin := latinLetter.MatchString(text)
	hasCJK := ContainsCJK(text)

	switch {
	case hasLatin && hasCJK:
		var en, zh []string
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			// A line carrying any CJK is a translation line, even with an
			// embedded Latin name; lines with neither script go to both.
			switch {
			case ContainsCJK(line):
				zh = append(zh, line)
			case latinLetter.MatchString(line):
				en = append(en, line)
			default:
				en = append(en, line)
				zh = append(zh, line)
			}
		}
		english = text
		if len(en) > 0 {
			english = strings.Join(en, " ")
		}
		return english, strings.Join(zh, "")
	case hasCJK:
		return text, text
	}
	return text, ""
}

// ContainsCJK reports whether s holds CJK ideographs or CJK/full-width punctuation.
func ContainsCJK(s string) bool {
	for _, r := range s {
		if isCJK(r) {
			return true
		}
	}
	return false
}

func isCJK(r rune) bool {
	switch {
	case r >= 0x4e00 && r <= 0x9fff,
		r >= 0x3400 && r <= 0x4dbf,
		r >= 0xf900 && r <= 0xfaff,
		r >= 0x3000 && r <= 0x303f,
		r >= 0xff00 && r <= 0xffef:
		return true
	}
	return false
}

func containsIdeograph(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}
