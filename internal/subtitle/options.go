package subtitle

import (
	"time"

	"github.com/mgpai22/subtrack/internal/logging"
	"github.com/mgpai22/subtrack/internal/overlay"
	"github.com/mgpai22/subtrack/internal/settings"
	"github.com/mgpai22/subtrack/internal/textstyle"
)

// extension point for formats outside the built-in set.
// Providers are consulted after every built-in detector has declined.
type Provider interface {
	Name() string
	Probe(buf []byte) bool
	Load(buf []byte, opts Options) (*Track, error)
}

type Options struct {
	// charset used when the input is not valid UTF-8, windows-1252 if empty
	Charset string

	// frames per second for frame-numbered formats, 0 for the format default
	FrameRate float64

	// appearance applied to plain-text cues; nil means settings.Default()
	Appearance *settings.Appearance

	// font family forced onto every cue, empty to keep document fonts
	FontOverride string

	Fonts     *textstyle.FontRegistry
	Logger    *logging.Logger
	Providers []Provider
}

func (o Options) appearance() settings.Appearance {
	if o.Appearance == nil {
		return settings.Default()
	}
	return o.Appearance.Clamp()
}

func (o Options) logger() *logging.Logger {
	return logging.OrNop(o.Logger)
}

func (o Options) fonts() *textstyle.FontRegistry {
	if o.Fonts == nil {
		return textstyle.DefaultFonts()
	}
	return o.Fonts
}

// builds a text cue the way every plain-text format does: user appearance
// prefix, legacy markup and an estimated stop when none is known
func renderCleartext(text string, start, stop time.Duration, flags textstyle.Flags, opts Options) *Cue {
	c := &Cue{Event: overlay.Event{Kind: overlay.KindText}}

	if text != "" {
		prefix := opts.appearance().TextPrefix()
		if opts.FontOverride != "" {
			prefix = append(prefix, textstyle.Cmd(textstyle.FontFamily, opts.fonts().ID(opts.FontOverride)))
		}
		c.Text = textstyle.Parse(text, flags, prefix, opts.fonts())
		c.Padding.Left = -1
	}

	if stop == Unset {
		stop = start + EstimateDuration(len(text))
		c.StopEstimated = true
	}
	c.Start = start
	c.Stop = stop
	return c
}
