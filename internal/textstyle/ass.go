package textstyle

import (
	"strings"
	"time"
	"unicode/utf8"
)

// positioning and timing picked up from ASS override blocks
type ASSOverrides struct {
	FadeIn    time.Duration
	FadeOut   time.Duration
	X, Y      int
	Absolute  bool
	Alignment int // 0 when no \an was seen

	// set when the text uses drawing commands; such dialogue is dropped
	Unsupported bool
}

// compiles the text field of an ASS Dialogue line. The prefix carries the
// style defaults and is emitted first.
func CompileASS(text string, prefix Stream, fonts *FontRegistry) (Stream, ASSOverrides) {
	fonts = fontsOrDefault(fonts)

	var ov ASSOverrides
	out := make(Stream, len(prefix), len(prefix)+len(text))
	copy(out, prefix)

	for i := 0; i < len(text); {
		c, size := utf8.DecodeRuneInString(text[i:])
		i += size

		if c == '\\' && i < len(text) {
			switch text[i] {
			case 'n', 'N':
				i++
				out = append(out, Op{Code: Newline})
				continue
			case 'h':
				i++
				out = append(out, Lit(' '))
				continue
			}
		}

		if c == '{' {
			end := strings.IndexByte(text[i:], '}')
			if end < 0 {
				break
			}
			out = assOverride(out, text[i:i+end], &ov, fonts)
			if ov.Unsupported {
				return nil, ov
			}
			i += end + 1
			continue
		}

		out = append(out, Lit(c))
	}
	return out, ov
}

func assOverride(out Stream, block string, ov *ASSOverrides, fonts *FontRegistry) Stream {
	if len(block) > 1000 {
		return out
	}

	s := block
	for {
		idx := strings.IndexByte(s, '\\')
		if idx < 0 {
			return out
		}
		s = s[idx+1:]

		switch {
		case len(s) > 1 && s[0] == 'i' && isDigit(s[1]):
			out = append(out, Op{Code: onOff(s[1] == '1', ItalicOn, ItalicOff)})

		case len(s) > 1 && s[0] == 'b' && isDigit(s[1]):
			out = append(out, Op{Code: onOff(s[1] == '1', BoldOn, BoldOff)})

		case strings.HasPrefix(s, "fad("):
			if a, b, ok := scanPair(s[4:]); ok {
				ov.FadeIn = time.Duration(a) * time.Millisecond
				ov.FadeOut = time.Duration(b) * time.Millisecond
				out = append(out, Op{Code: Fade, Arg: a, Arg2: b})
			}

		case strings.HasPrefix(s, "pos("):
			if x, y, ok := scanPair(s[4:]); ok {
				ov.X, ov.Y = x, y
				ov.Absolute = true
				out = append(out, Op{Code: Position, Arg: x, Arg2: y})
			}

		case strings.HasPrefix(s, "fscx"), strings.HasPrefix(s, "fscy"):
			if v := atoi(s[4:]); v > 0 {
				out = append(out, Cmd(SizePx, v&0xff))
			}

		case len(s) > 2 && s[0] == 'f' && s[1] == 's' && isDigit(s[2]):
			if v := atoi(s[2:]); v > 3 {
				out = append(out, Cmd(SizePx, v&0xff))
			}

		case strings.HasPrefix(s, "c&"), strings.HasPrefix(s, "1c"):
			out = append(out, Cmd(Color, int(ParseASSColor(s[2:])&0xffffff)))

		case strings.HasPrefix(s, "3c"):
			out = append(out, Cmd(OutlineColor, int(ParseASSColor(s[2:])&0xffffff)))

		case strings.HasPrefix(s, "4c"):
			out = append(out, Cmd(ShadowColor, int(ParseASSColor(s[2:])&0xffffff)))

		case strings.HasPrefix(s, "fn"):
			name := s[2:]
			if j := strings.IndexByte(name, '\\'); j >= 0 {
				name = name[:j]
			}
			out = append(out, Cmd(FontFamily, fonts.ID(name)))

		case strings.HasPrefix(s, "an"):
			ov.Alignment = atoi(s[2:])

		case strings.HasPrefix(s, "t("):
			// animated transforms are not rendered
			j := strings.IndexByte(s, ')')
			if j < 0 {
				return out
			}
			s = s[j:]

		case len(s) > 1 && s[0] == 'p' && isDigit(s[1]):
			ov.Unsupported = true
			return out
		}
	}
}

// parses "%d,%d" the way sscanf would, trailing text ignored
func scanPair(s string) (int, int, bool) {
	a, n := scanInt(s)
	if n == 0 {
		return 0, 0, false
	}
	s = s[n:]
	if s == "" || s[0] != ',' {
		return 0, 0, false
	}
	b, m := scanInt(s[1:])
	if m == 0 {
		return 0, 0, false
	}
	return a, b, true
}

func scanInt(s string) (int, int) {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	neg := false
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		neg = s[i] == '-'
		i++
	}
	start := i
	v := 0
	for i < len(s) && isDigit(s[i]) {
		v = v*10 + int(s[i]-'0')
		i++
	}
	if i == start {
		return 0, 0
	}
	if neg {
		v = -v
	}
	return v, i
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func onOff(on bool, a, b Code) Code {
	if on {
		return a
	}
	return b
}
