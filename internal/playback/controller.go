// Package playback holds the cue-driven player rules used by the learning
// page: reading mode pauses at the end of a chosen cue, repeat mode replays a
// cue a fixed number of times. The controller never touches a real player; it
// returns the Action the player should take.
package playback

import (
	"fmt"
	"math"

	"github.com/lingoreel/lingoreel/internal/srt"
)

const (
	DefaultRepeatTimes = 3
	MaxRepeatTimes     = 10

	// ResumeThreshold is how far a saved position must be from the current one
	// before the player jumps to it.
	ResumeThreshold = 5.0
)

// Action is what the player should do after an event. The zero value means
// keep going.
type Action struct {
	Seek  bool    `json:"seek"`
	To    float64 `json:"to,omitempty"`
	Play  bool    `json:"play"`
	Pause bool    `json:"pause"`
}

func (a Action) IsZero() bool {
	return a == Action{}
}

func (a Action) String() string {
	switch {
	case a.Seek && a.Play:
		return fmt.Sprintf("seek %s, play", srt.FormatTimestamp(a.To))
	case a.Seek && a.Pause:
		return fmt.Sprintf("seek %s, pause", srt.FormatTimestamp(a.To))
	case a.Seek:
		return fmt.Sprintf("seek %s", srt.FormatTimestamp(a.To))
	case a.Pause:
		return "pause"
	case a.Play:
		return "play"
	}
	return "continue"
}

// Controller is not safe for concurrent use; one controller drives one player.
type Controller struct {
	track *srt.Track

	reading bool
	repeat  bool

	repeatTimes  int
	repeatCue    *srt.Entry
	repeatPlayed int

	selected  *srt.Entry
	targetEnd float64
	hasTarget bool

	playing bool
}

func NewController(track *srt.Track) *Controller {
	if track == nil {
		track = srt.NewTrack(nil)
	}
	return &Controller{track: track, repeatTimes: DefaultRepeatTimes}
}

func (c *Controller) Track() *srt.Track {
	return c.track
}

func (c *Controller) Reading() bool { return c.reading }
func (c *Controller) Repeat() bool  { return c.repeat }
func (c *Controller) Playing() bool { return c.playing }

// RepeatProgress returns how many times the repeat cue has played and the target count.
func (c *Controller) RepeatProgress() (played, total int) {
	return c.repeatPlayed, c.repeatTimes
}

// SetReading toggles reading mode. Turning it off drops the highlighted cue.
func (c *Controller) SetReading(on bool) {
	c.reading = on
	if !on {
		c.selected = nil
		c.hasTarget = false
	}
}

// SetRepeat toggles repeat mode. Turning it off forgets the cue being repeated.
func (c *Controller) SetRepeat(on bool) {
	c.repeat = on
	if !on {
		c.clearRepeat()
	}
}

func (c *Controller) SetRepeatTimes(n int) error {
	if n < 1 || n > MaxRepeatTimes {
		return fmt.Errorf("repeat times must be between 1 and %d", MaxRepeatTimes)
	}
	c.repeatTimes = n
	return nil
}

// SetPlaying records a play/pause event from the player. Resuming normal
// playback clears a stale reading-mode highlight.
func (c *Controller) SetPlaying(playing bool) {
	c.playing = playing
	if playing && !c.reading && !c.hasTarget {
		c.selected = nil
	}
}

// Select handles a click on a cue. Repeat mode takes precedence over reading mode.
func (c *Controller) Select(cue srt.Entry) Action {
	switch {
	case c.repeat:
		c.repeatCue = &cue
		c.repeatPlayed = 1
	case c.reading:
		c.selected = &cue
		c.targetEnd = cue.End
		c.hasTarget = true
	default:
		c.selected = nil
		c.hasTarget = false
	}
	c.playing = true
	return Action{Seek: true, To: cue.Start, Play: true}
}

// Tick processes a player time update.
func (c *Controller) Tick(t float64) Action {
	if c.repeat && c.repeatCue != nil && t >= c.repeatCue.End {
		if c.repeatPlayed < c.repeatTimes {
			c.repeatPlayed++
			return Action{Seek: true, To: c.repeatCue.Start}
		}
		c.playing = false
		c.clearRepeat()
		return Action{Pause: true}
	}

	if c.reading && c.hasTarget && t >= c.targetEnd {
		end := c.targetEnd
		c.hasTarget = false
		c.playing = false
		return Action{Seek: true, To: end, Pause: true}
	}

	return Action{}
}

// JumpTo plays the cue with the given id in reading mode, as when a learner
// opens a word card's example sentence.
func (c *Controller) JumpTo(id int64) (Action, bool) {
	i := c.track.IndexOf(id)
	if i < 0 {
		return Action{}, false
	}
	cue, _ := c.track.Cue(i)

	c.reading = true
	c.repeat = false
	c.clearRepeat()
	return c.Select(cue), true
}

// Active returns the cue to highlight at time t. A reading-mode selection
// stays highlighted after the player pauses; otherwise the cue under t is
// used once playback has started.
func (c *Controller) Active(t float64) (srt.Entry, bool) {
	if c.reading && c.selected != nil {
		return *c.selected, true
	}
	if t <= 0 {
		return srt.Entry{}, false
	}
	return c.track.Cue(c.track.At(t))
}

func (c *Controller) clearRepeat() {
	c.repeatCue = nil
	c.repeatPlayed = 0
}

// ShouldResume reports whether the player should jump to a saved position.
func ShouldResume(saved, current float64) bool {
	return saved > 0 && math.Abs(current-saved) > ResumeThreshold
}
