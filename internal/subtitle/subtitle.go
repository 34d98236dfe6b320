package subtitle

import (
	"errors"
	"math"
	"slices"
	"time"

	"github.com/mgpai22/subtrack/internal/overlay"
)

// load-level failures, checked with errors.Is
var (
	ErrUnknownFormat = errors.New("unknown subtitle format")
	ErrLoad          = errors.New("could not load subtitles")
	ErrDecompress    = errors.New("decompression failed")
)

// marks a stop time that has to be derived from the text length
const Unset = time.Duration(math.MinInt64)

// represents supported subtitle formats
type Format string

const (
	FormatUnknown   Format = ""
	FormatSRT       Format = "srt"
	FormatVTT       Format = "vtt"
	FormatASS       Format = "ass"
	FormatTTML      Format = "ttml"
	FormatTimedText Format = "timedtext"
	FormatMicroDVD  Format = "microdvd"
	FormatMPL2      Format = "mpl2"
	FormatTXT       Format = "txt"
	FormatTMP       Format = "tmp"
	FormatMovText   Format = "mov_text"
)

// represents single timed subtitle entry.
// The embedded event is the template copied on every delivery.
type Cue struct {
	overlay.Event
}

// plain text of the cue with styling dropped
func (c *Cue) PlainText() string {
	return c.Text.Text()
}

// represents complete subtitle track, cues ordered by (start, stop)
type Track struct {
	Format Format
	Cues   []*Cue

	// set for ASS documents
	Script *ASSScript
}

func (t *Track) Len() int {
	return len(t.Cues)
}

// stable sort by start then stop. With trimStop no stop extends past the
// next cue's start.
func (t *Track) Sort(trimStop bool) {
	slices.SortStableFunc(t.Cues, func(a, b *Cue) int {
		if a.Start != b.Start {
			return cmpDuration(a.Start, b.Start)
		}
		return cmpDuration(a.Stop, b.Stop)
	})

	if !trimStop {
		return
	}
	for i := 0; i < len(t.Cues)-1; i++ {
		t.Cues[i].Stop = min(t.Cues[i].Stop, t.Cues[i+1].Start)
	}
}

func (t *Track) add(c *Cue) {
	if c != nil {
		t.Cues = append(t.Cues, c)
	}
}

func cmpDuration(a, b time.Duration) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// display time for text whose stop is unknown: two seconds plus five per
// 74 characters, truncated to whole seconds
func EstimateDuration(textLen int) time.Duration {
	secs := int(2 + float64(textLen)/74.0*5)
	return time.Duration(secs) * time.Second
}
