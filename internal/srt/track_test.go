package srt

import "testing"

func newTestTrack() *Track {
	return NewTrack([]Entry{
		{ID: 3, Start: 10, End: 12, English: "third"},
		{ID: 1, Start: 0, End: 2, English: "first"},
		{ID: 2, Start: 4, End: 6, Chinese: "第二", English: "second"},
	})
}

func TestTrack_SortsByStart(t *testing.T) {
	tr := newTestTrack()
	for i, want := range []int64{1, 2, 3} {
		if tr.Entries()[i].ID != want {
			t.Errorf("entry %d: expected id %d, got %d", i, want, tr.Entries()[i].ID)
		}
	}
}

func TestTrack_At(t *testing.T) {
	tr := newTestTrack()
	tests := []struct {
		ts   float64
		want int
	}{
		{0, 0},
		{1.999, 0},
		{2, -1},
		{3, -1},
		{4, 1},
		{11, 2},
		{12, -1},
		{-1, -1},
	}
	for _, tt := range tests {
		if got := tr.At(tt.ts); got != tt.want {
			t.Errorf("At(%v): expected %d, got %d", tt.ts, tt.want, got)
		}
	}
}

func TestTrack_NextPrevious(t *testing.T) {
	tr := newTestTrack()
	tests := []struct {
		ts       float64
		wantNext int
		wantPrev int
	}{
		{1, 1, -1},
		{3, 1, 0},
		{5, 2, 0},
		{8, 2, 1},
		{11, -1, 1},
		{20, -1, 2},
	}
	for _, tt := range tests {
		if got := tr.Next(tt.ts); got != tt.wantNext {
			t.Errorf("Next(%v): expected %d, got %d", tt.ts, tt.wantNext, got)
		}
		if got := tr.Previous(tt.ts); got != tt.wantPrev {
			t.Errorf("Previous(%v): expected %d, got %d", tt.ts, tt.wantPrev, got)
		}
	}
}

func TestTrack_CueAndIndexOf(t *testing.T) {
	tr := newTestTrack()
	if _, ok := tr.Cue(3); ok {
		t.Error("expected out of range cue to be missing")
	}
	if c, ok := tr.Cue(1); !ok || c.ID != 2 {
		t.Errorf("expected cue id 2, got %+v", c)
	}
	if got := tr.IndexOf(3); got != 2 {
		t.Errorf("expected index 2, got %d", got)
	}
	if got := tr.IndexOf(99); got != -1 {
		t.Errorf("expected -1 for unknown id, got %d", got)
	}
}

func TestTrack_Stats(t *testing.T) {
	s := newTestTrack().Stats()
	if s.TotalCount != 3 || s.TotalDuration != 12 || !s.HasChinese || !s.HasEnglish {
		t.Errorf("unexpected stats: %+v", s)
	}

	empty := NewTrack(nil).Stats()
	if empty.TotalCount != 0 || empty.HasEnglish {
		t.Errorf("unexpected empty stats: %+v", empty)
	}
}
