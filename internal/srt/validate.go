package srt

import (
	"errors"
	"fmt"
	"strings"
)

// Validate reports every problem in a cue list that would make it unusable
// for playback. An empty result means the list can be stored.
func Validate(entries []Entry) []string {
	if len(entries) == 0 {
		return []string{"subtitle list is empty"}
	}

	var problems []string
	for i, e := range entries {
		n := i + 1
		if e.Start < 0 {
			problems = append(problems, fmt.Sprintf("cue %d: start time must not be negative", n))
		}
		if e.End <= e.Start {
			problems = append(problems, fmt.Sprintf("cue %d: end time must be after start time", n))
		}
		if strings.TrimSpace(e.English) == "" {
			problems = append(problems, fmt.Sprintf("cue %d: english text must not be empty", n))
		}
		if i+1 < len(entries) && e.End > entries[i+1].Start {
			problems = append(problems, fmt.Sprintf("cues %d and %d overlap", n, n+1))
		}
	}
	return problems
}

// CheckDuplicates rejects lists where two cues share the same time range.
func CheckDuplicates(entries []Entry) error {
	seen := make(map[[2]float64]struct{}, len(entries))
	for _, e := range entries {
		key := [2]float64{e.Start, e.End}
		if _, ok := seen[key]; ok {
			return fmt.Errorf("duplicate time range: %gs - %gs", e.Start, e.End)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// CheckCues returns the first cue that cannot be stored. Overlapping cues
// are accepted here; Validate reports them.
func CheckCues(entries []Entry) error {
	if len(entries) == 0 {
		return errors.New("subtitle list is empty")
	}
	for i, e := range entries {
		switch {
		case e.Start < 0:
			return fmt.Errorf("cue %d: start time must not be negative", i+1)
		case e.End <= e.Start:
			return fmt.Errorf("cue %d: end time must be after start time", i+1)
		case strings.TrimSpace(e.English) == "":
			return fmt.Errorf("cue %d: english text must not be empty", i+1)
		}
	}
	return nil
}
