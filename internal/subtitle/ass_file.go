package subtitle

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/mgpai22/subtrack/internal/linereader"
	"github.com/mgpai22/subtrack/internal/overlay"
	"github.com/mgpai22/subtrack/internal/textstyle"
)

// represents one V4+ style record
type ASSStyle struct {
	Name           string
	FontName       string
	PrimaryColor   uint32 // &HAABBGGRR
	SecondaryColor uint32
	OutlineColor   uint32
	BackColor      uint32
	FontSize       int
	Bold           bool
	Italic         bool
	Outline        int
	Shadow         int
	Alignment      int
	MarginLeft     int
	MarginRight    int
	MarginVertical int
	Encoding       int
}

// style used for dialogue that names no known style
var defaultASSStyle = ASSStyle{
	PrimaryColor:   0xffffff,
	Shadow:         1,
	Outline:        1,
	Bold:           true,
	Alignment:      1,
	MarginLeft:     20,
	MarginRight:    20,
	MarginVertical: 20,
	FontSize:       48,
}

type assSection int

const (
	sectionNone assSection = iota
	sectionScriptInfo
	sectionStyles
	sectionEvents
)

// header state of an ASS/SSA document: script info, styles and the event
// schema. Also used to decode single dialogue packets from a container.
type ASSScript struct {
	PlayResX              int
	PlayResY              int
	ScaledBorderAndShadow bool

	// newest definition first so duplicates shadow older ones
	styles      []*ASSStyle
	styleFormat string
	eventFormat string
	section     assSection
}

func isASS(buf []byte) bool {
	return bytes.Contains(buf, []byte("[Script Info]")) &&
		bytes.Contains(buf, []byte("[Events]"))
}

// parses document lines, handing each Dialogue body to dialogue.
// With a nil handler parsing stops at the first Dialogue line.
func (s *ASSScript) decodeLines(buf []byte, dialogue func(line string)) {
	lr := linereader.New(buf)
	for lr.Next() != linereader.EOF {
		line := string(lr.Line())
		if line == "" {
			continue
		}

		switch line {
		case "[Script Info]":
			s.section = sectionScriptInfo
			continue
		case "[V4+ Styles]", "[V4 Styles]":
			s.section = sectionStyles
			continue
		case "[Events]":
			s.section = sectionEvents
			continue
		}
		if line[0] == '[' {
			s.section = sectionNone
			continue
		}

		switch s.section {
		case sectionScriptInfo:
			if v, ok := strings.CutPrefix(line, "PlayResX:"); ok {
				s.PlayResX = atoi(v)
			} else if v, ok := strings.CutPrefix(line, "PlayResY:"); ok {
				s.PlayResY = atoi(v)
			} else if v, ok := strings.CutPrefix(line, "ScaledBorderAndShadow:"); ok {
				v = strings.TrimSpace(v)
				s.ScaledBorderAndShadow = atoi(v) > 0 || strings.EqualFold(v, "yes")
			}

		case sectionStyles:
			if v, ok := strings.CutPrefix(line, "Format:"); ok {
				s.styleFormat = v
			} else if v, ok := strings.CutPrefix(line, "Style:"); ok {
				s.parseStyle(v)
			}

		case sectionEvents:
			if v, ok := strings.CutPrefix(line, "Format:"); ok {
				s.eventFormat = v
			} else if v, ok := strings.CutPrefix(line, "Dialogue:"); ok {
				if dialogue == nil {
					return
				}
				dialogue(v)
			}
		}
	}
}

// next comma separated token with surrounding spaces removed
func getToken(src string) (string, string) {
	src = strings.TrimLeft(src, " ")
	tok := src
	rest := ""
	if i := strings.IndexByte(src, ','); i >= 0 {
		tok, rest = src[:i], src[i+1:]
	}
	return strings.TrimRight(tok, " "), rest
}

func (s *ASSScript) parseStyle(line string) {
	if s.styleFormat == "" {
		return
	}

	as := &ASSStyle{PrimaryColor: 0x00ffffff}
	format := s.styleFormat
	var key, val string
	for format != "" && line != "" {
		key, format = getToken(format)
		val, line = getToken(line)

		switch strings.ToLower(key) {
		case "name":
			as.Name = val
		case "alignment":
			as.Alignment = atoi(val)
			if as.Alignment < 1 || as.Alignment > 9 {
				as.Alignment = 1
			}
		case "marginl":
			as.MarginLeft = atoi(val)
		case "marginr":
			as.MarginRight = atoi(val)
		case "marginv":
			as.MarginVertical = atoi(val)
		case "bold":
			as.Bold = atoi(val) != 0
		case "italic":
			as.Italic = atoi(val) != 0
		case "primarycolour":
			as.PrimaryColor = textstyle.ParseASSColor(val)
		case "secondarycolour":
			as.SecondaryColor = textstyle.ParseASSColor(val)
		case "outlinecolour":
			as.OutlineColor = textstyle.ParseASSColor(val)
		case "backcolour":
			as.BackColor = textstyle.ParseASSColor(val)
		case "outline":
			as.Outline = clampUnsigned(atoi(val), 4)
		case "shadow":
			as.Shadow = clampUnsigned(atoi(val), 4)
		case "fontsize":
			as.FontSize = atoi(val)
		case "fontname":
			as.FontName = val
		case "encoding":
			as.Encoding = atoi(val)
		}
	}
	s.styles = append([]*ASSStyle{as}, s.styles...)
}

// case-insensitive lookup, a leading '*' is ignored
func (s *ASSScript) Style(name string) *ASSStyle {
	name = strings.TrimPrefix(name, "*")
	for _, as := range s.styles {
		if strings.EqualFold(as.Name, name) {
			return as
		}
	}
	return &defaultASSStyle
}

func (s *ASSScript) Styles() []*ASSStyle {
	return s.styles
}

// source canvas for positioned text
func (s *ASSScript) Canvas() (int, int) {
	x, y := s.PlayResX, s.PlayResY
	switch {
	case x == 0 && y == 0:
		return 384, 288
	case x == 1280 && y == 0, x == 0 && y == 1024:
		return 1280, 1024
	case x != 0 && y != 0:
		return x, y
	case x != 0:
		return x, x * 3 / 4
	default:
		return y * 4 / 3, y
	}
}

// parses "H:MM:SS.cc", exactly ten characters
func parseASSTimestamp(s string) (time.Duration, bool) {
	if len(s) != 10 || s[1] != ':' || s[4] != ':' || s[7] != '.' {
		return 0, false
	}
	h, ok1 := linereader.ParseUint([]byte(s[0:1]))
	m, ok2 := linereader.ParseUint([]byte(s[2:4]))
	sec, ok3 := linereader.ParseUint([]byte(s[5:7]))
	cs, ok4 := linereader.ParseUint([]byte(s[8:10]))
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return 0, false
	}
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second +
		time.Duration(cs)*10*time.Millisecond, true
}

// compiles the body of a Dialogue line against the event schema.
// Returns nil for malformed lines and unsupported drawing commands.
func (s *ASSScript) decodeDialogue(line string, opts Options) *Cue {
	if s.eventFormat == "" {
		return nil
	}

	var (
		layer      int
		start      = Unset
		stop       = Unset
		text       string
		haveText   bool
		style      = &defaultASSStyle
		key, value string
	)

	format := s.eventFormat
	line = strings.TrimRight(line, "\r\n")
	for format != "" && line != "" {
		key, format = getToken(format)
		if strings.EqualFold(key, "text") {
			text = line
			haveText = true
			break
		}
		value, line = getToken(line)

		switch strings.ToLower(key) {
		case "layer":
			layer = atoi(value)
		case "start":
			if ts, ok := parseASSTimestamp(value); ok {
				start = ts
			}
		case "end":
			if ts, ok := parseASSTimestamp(value); ok {
				stop = ts
			}
		case "style":
			style = s.Style(value)
		}
	}

	if start == Unset || stop == Unset || !haveText {
		return nil
	}

	prefix := s.stylePrefix(style, opts)
	ops, ov := textstyle.CompileASS(text, prefix, opts.fonts())
	if ov.Unsupported {
		opts.logger().Debugw("Dropping dialogue with drawing commands", "start", start)
		return nil
	}

	c := &Cue{Event: overlay.Event{
		Kind:     overlay.KindText,
		Start:    start,
		Stop:     stop,
		Text:     ops,
		FadeIn:   ov.FadeIn,
		FadeOut:  ov.FadeOut,
		X:        ov.X,
		Y:        ov.Y,
		Absolute: ov.Absolute,
		Layer:    layer,
	}}

	c.Alignment = style.Alignment
	if ov.Alignment != 0 {
		c.Alignment = ov.Alignment
	}
	c.Padding.Left = style.MarginLeft
	c.Padding.Right = style.MarginRight
	switch c.Alignment {
	case 7, 8, 9:
		c.Padding.Top = style.MarginVertical
	case 1, 2, 3:
		c.Padding.Bottom = style.MarginVertical
	}

	c.CanvasWidth, c.CanvasHeight = s.Canvas()
	return c
}

// ops every dialogue of a style starts with. The user's appearance wins
// for the default style and when style override is on.
func (s *ASSScript) stylePrefix(as *ASSStyle, opts Options) textstyle.Stream {
	var p textstyle.Stream
	fonts := opts.fonts()

	if as.Bold {
		p = append(p, textstyle.Op{Code: textstyle.BoldOn})
	}
	if as.Italic {
		p = append(p, textstyle.Op{Code: textstyle.ItalicOn})
	}
	if opts.FontOverride != "" {
		p = append(p, textstyle.Cmd(textstyle.FontFamily, fonts.ID(opts.FontOverride)))
	} else if as.FontName != "" {
		p = append(p, textstyle.Cmd(textstyle.FontFamily, fonts.ID(as.FontName)))
	}

	app := opts.appearance()
	if as == &defaultASSStyle || app.StyleOverride {
		return append(p,
			textstyle.Cmd(textstyle.Color, int(app.Color)),
			textstyle.Cmd(textstyle.OutlineColor, int(app.OutlineColor)),
			textstyle.Cmd(textstyle.ShadowColor, int(app.ShadowColor)),
			textstyle.Cmd(textstyle.Shadow, app.ShadowOffset),
			textstyle.Cmd(textstyle.Outline, app.OutlineSize),
		)
	}

	p = append(p,
		textstyle.Cmd(textstyle.SizePx, as.FontSize),
		textstyle.Cmd(textstyle.Color, int(as.PrimaryColor&0xffffff)),
		textstyle.Cmd(textstyle.Alpha, 255-int(as.PrimaryColor>>24)),
		textstyle.Cmd(textstyle.OutlineColor, int(as.OutlineColor&0xffffff)),
		textstyle.Cmd(textstyle.OutlineAlpha, 255-int(as.OutlineColor>>24)),
		textstyle.Cmd(textstyle.ShadowColor, int(as.BackColor&0xffffff)),
		textstyle.Cmd(textstyle.ShadowAlpha, 255-int(as.BackColor>>24)),
	)
	if as.Shadow != 0 {
		p = append(p, textstyle.Cmd(textstyle.Shadow, as.Shadow))
	}
	if as.Outline != 0 {
		p = append(p, textstyle.Cmd(textstyle.Outline, as.Outline))
	}
	return p
}

func loadASS(buf []byte, opts Options) *Track {
	script := &ASSScript{}
	track := &Track{Format: FormatASS, Script: script}
	script.decodeLines(buf, func(line string) {
		track.add(script.decodeDialogue(line, opts))
	})
	return track
}

// parses codec private data of an embedded ASS stream
func ParseASSHeader(header []byte) *ASSScript {
	script := &ASSScript{}
	script.decodeLines(header, nil)
	return script
}

func atoi(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	v, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return v
}

// negative values wrap to large unsigned ones before clamping
func clampUnsigned(v, hi int) int {
	if v < 0 {
		return hi
	}
	return min(v, hi)
}
