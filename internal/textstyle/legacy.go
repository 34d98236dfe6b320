package textstyle

import (
	"html"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/mgpai22/subtrack/internal/linereader"
)

// selects which inline markup the legacy parser understands
type Flags uint

const (
	HTMLTags     Flags = 1 << iota // <b> <i> <font ...> <br> ...
	HTMLEntities                   // &amp; &lt; ...
	SloppyTags                     // unknown tags are kept as text
	SubTags                        // MicroDVD {y:b} {c:$BBGGRR}
	SlashPrefix                    // leading '/' turns on italics
)

const maxEntityLen = 32

// state carried across a line for the lowercase MicroDVD tags
type lineResets struct {
	color  bool
	bold   bool
	italic bool
}

// compiles text with legacy markup into an opcode stream.
// The prefix is emitted first; its last Color op is the default color
// restored at end of line after a {c:...} tag.
func Parse(text string, flags Flags, prefix Stream, fonts *FontRegistry) Stream {
	fonts = fontsOrDefault(fonts)

	defaultColor := 0xffffff
	for _, op := range prefix {
		if op.Code == Color {
			defaultColor = op.Arg
		}
	}

	out := make(Stream, len(prefix), len(prefix)+len(text))
	copy(out, prefix)

	var resets lineResets
	prev := rune(-1)
	sol := true

	for i := 0; i < len(text); {
		c, size := utf8.DecodeRuneInString(text[i:])
		i += size

		switch {
		case c == '\r':
			continue

		case c == '\n':
			sol = true
			if resets.color {
				out = append(out, Cmd(Color, defaultColor))
				resets.color = false
			}
			if resets.bold {
				out = append(out, Op{Code: BoldOff})
				resets.bold = false
			}
			if resets.italic {
				out = append(out, Op{Code: ItalicOff})
				resets.italic = false
			}
			out = append(out, Op{Code: Newline})
			prev = -1
			continue

		case flags&SlashPrefix != 0 && sol && c == '/':
			out = append(out, Op{Code: ItalicOn})
			sol = false
			continue

		case flags&HTMLTags != 0 && c == '<':
			end := strings.IndexByte(text[i:], '>')
			if end < 0 {
				break
			}
			if ops, ok := htmlTag(text[i:i+end], flags, fonts); ok {
				out = append(out, ops...)
				prev = -1
				i += end + 1
				continue
			}

		case flags&SubTags != 0 && c == '{':
			end := strings.IndexByte(text[i:], '}')
			if end < 0 {
				break
			}
			if ops, ok := subTag(text[i:i+end], flags, &resets); ok {
				out = append(out, ops...)
				prev = -1
				i += end + 1
				continue
			}

		case flags&HTMLEntities != 0 && c == '&':
			end := strings.IndexByte(text[i:], ';')
			if end < 0 || end > maxEntityLen {
				break
			}
			name := text[i : i+end]
			i += end + 1
			decoded := html.UnescapeString("&" + name + ";")
			if decoded == "&"+name+";" {
				// unknown entity, dropped
				continue
			}
			for _, r := range decoded {
				out = append(out, Lit(r))
				prev = r
			}
			sol = false
			continue
		}

		if prev != -1 && unicode.Is(unicode.Mn, c) {
			if composed, ok := compose(prev, c); ok {
				out[len(out)-1] = Lit(composed)
				prev = -1
				continue
			}
		}
		prev = c
		out = append(out, Lit(c))
		sol = false
	}

	return out
}

// compose merges a base letter and a combining mark when NFC has a
// precomposed form for the pair.
func compose(base, mark rune) (rune, bool) {
	s := norm.NFC.String(string([]rune{base, mark}))
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) {
		return 0, false
	}
	return r, true
}

// compiles the inside of <...>. ok is false when the tag is unknown and
// sloppy parsing asks for it to be kept as text.
func htmlTag(tag string, flags Flags, fonts *FontRegistry) (Stream, bool) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, true
	}

	end := false
	if tag[0] == '/' {
		end = true
		tag = strings.TrimSpace(tag[1:])
	}
	lower := strings.ToLower(tag)

	switch {
	case lower == "ruby":
		if end {
			return Stream{{Code: FontReset}}, true
		}
		return Stream{{Code: ItalicOn}}, true
	case lower == "rt":
		return Stream{{Code: ItalicOff}, {Code: Start}}, true
	case !end && lower == "p":
		return Stream{{Code: Start}}, true
	case !end && (lower == "br" || lower == "br/"):
		return Stream{{Code: Newline}}, true
	case !end && lower == "hr":
		return Stream{{Code: HR}}, true
	case !end && lower == "margin":
		return Stream{{Code: SetMargin}}, true
	case lower == "center":
		if end {
			return Stream{{Code: CenterOff}}, true
		}
		return Stream{{Code: CenterOn}}, true
	case lower == "i":
		if end {
			return Stream{{Code: ItalicOff}}, true
		}
		return Stream{{Code: ItalicOn}}, true
	case lower == "b":
		if end {
			return Stream{{Code: BoldOff}}, true
		}
		return Stream{{Code: BoldOn}}, true
	case strings.HasPrefix(lower, "font"):
		if end {
			return Stream{{Code: FontReset}}, true
		}
		return parseAttribs(tag[4:], func(key, value string) (Op, bool) {
			switch key {
			case "size":
				return Cmd(FontSize, clamp(atoi(value), 1, 7)), true
			case "face":
				return Cmd(FontFamily, fonts.ID(value)), true
			case "color":
				return Cmd(Color, ParseHTMLColor(value)), true
			}
			return Op{}, false
		}), true
	case strings.HasPrefix(lower, "outline"):
		if end {
			return Stream{{Code: Outline}}, true
		}
		return parseAttribs(tag[7:], func(key, value string) (Op, bool) {
			switch key {
			case "size":
				return Cmd(Outline, min(atoi(value), 10)), true
			case "color":
				return Cmd(OutlineColor, ParseHTMLColor(value)), true
			}
			return Op{}, false
		}), true
	case strings.HasPrefix(lower, "shadow"):
		if end {
			return Stream{{Code: Shadow}}, true
		}
		return parseAttribs(tag[6:], func(key, value string) (Op, bool) {
			switch key {
			case "displacement":
				return Cmd(Shadow, min(atoi(value), 10)), true
			case "color":
				return Cmd(ShadowColor, ParseHTMLColor(value)), true
			}
			return Op{}, false
		}), true
	}

	if flags&SloppyTags != 0 {
		return nil, false
	}
	return nil, true
}

// walks key="value" pairs, stopping at the first malformed one
func parseAttribs(s string, fn func(key, value string) (Op, bool)) Stream {
	var out Stream
	for {
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			return out
		}
		eq := strings.IndexAny(s, " \t=")
		if eq < 0 {
			return out
		}
		key := strings.ToLower(s[:eq])
		s = strings.TrimLeft(s[eq:], " \t")
		if s == "" || s[0] != '=' {
			return out
		}
		s = strings.TrimLeft(s[1:], " \t")
		if s == "" || (s[0] != '"' && s[0] != '\'') {
			return out
		}
		quote := s[0]
		s = s[1:]
		closing := strings.IndexByte(s, quote)
		if closing < 0 {
			return out
		}
		value := s[:closing]
		s = s[closing+1:]
		if op, ok := fn(key, value); ok {
			out = append(out, op)
		}
	}
}

// compiles the inside of {...} for MicroDVD style tags
func subTag(tag string, flags Flags, resets *lineResets) (Stream, bool) {
	tag = strings.TrimLeft(tag, " ")
	if tag == "" {
		return nil, true
	}

	bad := func() (Stream, bool) {
		if flags&SloppyTags != 0 {
			return nil, false
		}
		return nil, true
	}

	switch tag[0] {
	case 'y', 'Y':
		if len(tag) < 2 || tag[1] != ':' {
			return bad()
		}
		reset := tag[0] == 'y'
		var out Stream
		for i := 2; i < len(tag); i++ {
			switch tag[i] {
			case 'b':
				out = append(out, Op{Code: BoldOn})
				resets.bold = reset
			case 'i':
				out = append(out, Op{Code: ItalicOn})
				resets.italic = reset
			}
		}
		return out, true

	case 'c', 'C':
		if len(tag) < 3 || tag[1] != ':' || tag[2] != '$' {
			return bad()
		}
		if tag[0] == 'c' {
			resets.color = true
		}
		if len(tag) < 9 {
			return nil, true
		}
		v := 0
		for _, ch := range []byte(tag[3:9]) {
			v = v<<4 | linereader.HexValue(ch)
		}
		return Stream{Cmd(Color, v)}, true
	}
	return bad()
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

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
