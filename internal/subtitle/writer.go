package subtitle

import (
	"fmt"
	"io"
	"time"
)

// writes a human readable cue listing, one block per cue
func WriteListing(w io.Writer, track *Track, showOps bool) error {
	for i, c := range track.Cues {
		stop := FormatSRTTime(c.Stop)
		if c.StopEstimated {
			stop += " (estimated)"
		}
		if _, err := fmt.Fprintf(w, "%d\n%s --> %s\n", i+1, FormatSRTTime(c.Start), stop); err != nil {
			return err
		}

		body := c.PlainText()
		if showOps {
			body = c.Text.String()
		}
		if _, err := fmt.Fprintf(w, "%s\n\n", body); err != nil {
			return err
		}
	}
	return nil
}

// formats "HH:MM:SS,mmm"
func FormatSRTTime(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	millis := int(d.Milliseconds()) % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, millis)
}
