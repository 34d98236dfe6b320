package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/mgpai22/subtrack/internal/engine"
	"github.com/mgpai22/subtrack/internal/overlay"
	"github.com/mgpai22/subtrack/internal/settings"
	"github.com/mgpai22/subtrack/internal/subtitle"
)

var playCmd = &cobra.Command{
	Use:   "play [file...]",
	Short: "Play subtitles against a simulated clock",
	Long: `Load one or more subtitle sources into a session and print every
overlay event as it is delivered. Sources share one queue, so text,
teletext and captions interleave the way a renderer would see them.

The appearance file given with --settings is reloaded while playing.

Examples:
  subtrack play movie.srt --speed 10
  subtrack play movie.idx --from 10m --duration 2m
  subtrack play capture.ts --delay 500ms --settings look.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().Float64("speed", 1, "Media seconds per wall second")
	playCmd.Flags().Duration("from", 0, "Media time to start at")
	playCmd.Flags().Duration("duration", 0, "Media time to play (0 plays until interrupted)")
	playCmd.Flags().Duration("delay", 0, "Subtitle delay, positive shows subtitles later")
	addSourceFlags(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	speed, _ := cmd.Flags().GetFloat64("speed")
	from, _ := cmd.Flags().GetDuration("from")
	duration, _ := cmd.Flags().GetDuration("duration")
	delay, _ := cmd.Flags().GetDuration("delay")

	opts, err := engineOptions(cmd)
	if err != nil {
		return err
	}
	appearance, err := loadAppearance()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	session := engine.NewSession(settings.NewStore(appearance), logger)
	defer session.Close()
	session.Delay = delay

	for _, path := range args {
		if err := openSource(ctx, session, path, opts); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	logger.Infow("Playing",
		"sources", len(args),
		"from", from,
		"duration", duration,
		"speed", speed,
	)

	p := &eventPrinter{w: cmd.OutOrStdout()}
	return session.Run(ctx, engine.RunOptions{
		Clock: engine.Clock{
			From:     from,
			Duration: duration,
			Speed:    speed,
		},
		Deliver:      p.print,
		SettingsPath: settingsPath,
	})
}

// writes one line per delivered event
type eventPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *eventPrinter) print(e *overlay.Event) {
	defer e.Release()
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, describeEvent(e))
}

func describeEvent(e *overlay.Event) string {
	switch e.Kind {
	case overlay.KindFlush:
		return fmt.Sprintf("[flush] layer %d", e.Layer)
	case overlay.KindTimedFlush:
		return fmt.Sprintf("[timed-flush] %s layer %d", formatTime(e.Start), e.Layer)
	case overlay.KindBitmap:
		return fmt.Sprintf("[%s] %s --> %s layer %d bitmap %dx%d at %d,%d",
			e.Kind, formatTime(e.Start), formatTime(e.Stop), e.Layer,
			e.Bitmap.Width, e.Bitmap.Height, e.X, e.Y)
	default:
		stop := formatTime(e.Stop)
		if e.StopEstimated {
			stop += "~"
		}
		text := strings.ReplaceAll(e.Text.Text(), "\n", " | ")
		return fmt.Sprintf("[%s] %s --> %s layer %d %q", e.Kind, formatTime(e.Start), stop, e.Layer, text)
	}
}

func formatTime(d time.Duration) string {
	if d == subtitle.Unset {
		return "--:--:--,---"
	}
	if d < 0 {
		return "-" + subtitle.FormatSRTTime(-d)
	}
	return subtitle.FormatSRTTime(d)
}
