package srt

import "sort"

// Track is an immutable, start-ordered cue list with time lookups.
type Track struct {
	entries []Entry
}

type Stats struct {
	TotalCount    int     `json:"totalCount"`
	TotalDuration float64 `json:"totalDuration"`
	HasChinese    bool    `json:"hasChinese"`
	HasEnglish    bool    `json:"hasEnglish"`
}

func NewTrack(entries []Entry) *Track {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Start < sorted[b].Start
	})
	return &Track{entries: sorted}
}

func (t *Track) Entries() []Entry {
	return t.entries
}

func (t *Track) Len() int {
	return len(t.entries)
}

// At returns the index of the first cue active at time ts (start <= ts < end), or -1.
func (t *Track) At(ts float64) int {
	for i, e := range t.entries {
		if e.Start > ts {
			break
		}
		if ts < e.End {
			return i
		}
	}
	return -1
}

// Cue returns the entry at index i.
func (t *Track) Cue(i int) (Entry, bool) {
	if i < 0 || i >= len(t.entries) {
		return Entry{}, false
	}
	return t.entries[i], true
}

func (t *Track) IndexOf(id int64) int {
	for i, e := range t.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// Next returns the index of the cue following the one active at ts. Between
// cues it is the first cue starting after ts.
func (t *Track) Next(ts float64) int {
	if i := t.At(ts); i >= 0 {
		if i+1 < len(t.entries) {
			return i + 1
		}
		return -1
	}
	for i, e := range t.entries {
		if e.Start > ts {
			return i
		}
	}
	return -1
}

// Previous returns the index of the cue before the one active at ts. Between
// cues it is the last cue that already ended.
func (t *Track) Previous(ts float64) int {
	if i := t.At(ts); i >= 0 {
		return i - 1
	}
	prev := -1
	for i, e := range t.entries {
		if e.Start > ts {
			break
		}
		if e.End <= ts {
			prev = i
		}
	}
	return prev
}

func (t *Track) Stats() Stats {
	s := Stats{TotalCount: len(t.entries), HasEnglish: len(t.entries) > 0}
	for _, e := range t.entries {
		if e.End > s.TotalDuration {
			s.TotalDuration = e.End
		}
		if e.Chinese != "" {
			s.HasChinese = true
		}
	}
	return s
}
