package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/lingoreel/lingoreel/internal/database"
	"github.com/lingoreel/lingoreel/internal/playback"
	"github.com/lingoreel/lingoreel/internal/srt"
	"github.com/lingoreel/lingoreel/internal/video"
	"github.com/spf13/cobra"
)

// maxSimulatedTicks bounds srt play so a cue that never ends cannot spin.
const maxSimulatedTicks = 100000

func newSRTCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "srt",
		Short: "Inspect, convert and restore subtitle files",
	}
	cmd.AddCommand(newSRTCheckCmd(), newSRTExportCmd(), newSRTPlayCmd(), newSRTRestoreCmd(opts))
	return cmd
}

func parseFile(path string, offset float64) (*srt.Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return srt.ParseBytes(raw, offset)
}

func newSRTCheckCmd() *cobra.Command {
	var offset float64
	cmd := &cobra.Command{
		Use:   "check <file>...",
		Short: "Parse SRT files and report problems that would block an upload",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				if !checkFile(cmd.OutOrStdout(), path, offset) {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files have problems", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&offset, "offset", 0, "Seconds to shift every cue by")
	return cmd
}

// checkFile prints a report for one file and reports whether it can be
// uploaded as is.
func checkFile(out io.Writer, path string, offset float64) bool {
	res, err := parseFile(path, offset)
	if err != nil {
		fmt.Fprintf(out, "ERROR %s: %v\n", path, err)
		return false
	}

	stats := srt.NewTrack(res.Entries).Stats()
	fmt.Fprintf(out, "%s: encoding=%s blocks=%d cues=%d duration=%s chinese=%t\n",
		path, res.Encoding, res.Blocks, stats.TotalCount, srt.FormatTimestamp(stats.TotalDuration), stats.HasChinese)
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}

	ok := true
	for _, err := range []error{srt.CheckCues(res.Entries), srt.CheckDuplicates(res.Entries)} {
		if err != nil {
			fmt.Fprintf(out, "  error: %v\n", err)
			ok = false
		}
	}
	return ok
}

func newSRTExportCmd() *cobra.Command {
	var lang string
	var offset float64
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Rewrite an SRT file as English, Chinese or bilingual cues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			language, err := srt.ParseLanguage(lang)
			if err != nil {
				return err
			}
			res, err := parseFile(args[0], offset)
			if err != nil {
				return err
			}
			if len(res.Entries) == 0 {
				return errors.New("no usable cues")
			}
			_, err = io.WriteString(cmd.OutOrStdout(), srt.Export(res.Entries, language))
			return err
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "bilingual", "english, chinese or bilingual")
	cmd.Flags().Float64Var(&offset, "offset", 0, "Seconds to shift every cue by")
	return cmd
}

func newSRTPlayCmd() *cobra.Command {
	var (
		cue    int
		mode   string
		times  int
		step   float64
		offset float64
	)
	cmd := &cobra.Command{
		Use:   "play <file>",
		Short: "Dry-run reading or repeat mode on one cue and print the player actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := parseFile(args[0], offset)
			if err != nil {
				return err
			}
			return simulatePlay(cmd.OutOrStdout(), res.Entries, cue, mode, times, step)
		},
	}
	cmd.Flags().IntVar(&cue, "cue", 1, "1-based cue to select")
	cmd.Flags().StringVar(&mode, "mode", "reading", "reading or repeat")
	cmd.Flags().IntVar(&times, "times", playback.DefaultRepeatTimes, "Plays per cue in repeat mode")
	cmd.Flags().Float64Var(&step, "step", 0.25, "Seconds between simulated time updates")
	cmd.Flags().Float64Var(&offset, "offset", 0, "Seconds to shift every cue by")
	return cmd
}

// simulatePlay drives a playback controller the way the learning page does:
// the learner clicks a cue, then the player reports its time every step
// seconds until the controller pauses it.
func simulatePlay(out io.Writer, entries []srt.Entry, index int, mode string, times int, step float64) error {
	if step <= 0 {
		return errors.New("--step must be positive")
	}
	track := srt.NewTrack(entries)
	cue, ok := track.Cue(index - 1)
	if !ok {
		return fmt.Errorf("cue %d out of range (file has %d)", index, track.Len())
	}

	c := playback.NewController(track)
	switch mode {
	case "reading":
		c.SetReading(true)
	case "repeat":
		c.SetRepeat(true)
		if err := c.SetRepeatTimes(times); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown mode %q: want reading or repeat", mode)
	}

	a := c.Select(cue)
	fmt.Fprintf(out, "select cue %d %q: %s\n", index, cue.English, a)
	t := a.To
	for range maxSimulatedTicks {
		t += step
		a := c.Tick(t)
		if a.IsZero() {
			continue
		}
		line := srt.FormatTimestamp(t) + "  " + a.String()
		if played, total := c.RepeatProgress(); a.Seek && c.Repeat() {
			line += fmt.Sprintf(" (play %d/%d)", played, total)
		}
		fmt.Fprintln(out, line)
		if a.Seek {
			t = a.To
		}
		if a.Pause {
			return nil
		}
	}
	return errors.New("player never paused")
}

func newSRTRestoreCmd(opts *options) *cobra.Command {
	var (
		dryRun   bool
		maxBytes int64
	)
	cmd := &cobra.Command{
		Use:   "restore <video-id>",
		Short: "Replace a video's cues with its newest archived upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := uuid.Parse(args[0]); err != nil {
				return fmt.Errorf("invalid video id %q", args[0])
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			objects, err := objectStore(ctx)
			if err != nil {
				return err
			}
			db, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			return restoreSubtitles(ctx, cmd.OutOrStdout(), db.Pool, objects, args[0], maxBytes, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Parse the archived file without touching the stored cues")
	cmd.Flags().Int64Var(&maxBytes, "max-bytes", video.DefaultMaxSRTBytes, "Largest archived file to read")
	return cmd
}

func restoreSubtitles(ctx context.Context, out io.Writer, db database.DBTX, objects video.ObjectReader, videoID string, maxBytes int64, dryRun bool) error {
	res, err := video.RestoreSubtitles(ctx, db, objects, videoID, maxBytes, dryRun)
	if err != nil {
		return err
	}
	verb := "restored"
	if dryRun {
		verb = "would restore"
	}
	fmt.Fprintf(out, "%s %d cues from %s (%s, %s)\n", verb, res.Cues, res.Filename, res.Encoding, res.ObjectKey)
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
	return nil
}
