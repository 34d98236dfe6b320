package textstyle

import (
	"fmt"
	"strings"
)

// kind of a single opcode in a compiled text stream
type Code uint8

const (
	Literal Code = iota // Arg: code point
	Newline
	Color        // Arg: packed 0xBBGGRR
	OutlineColor // Arg: packed 0xBBGGRR
	ShadowColor  // Arg: packed 0xBBGGRR
	Alpha        // Arg: 0-255
	OutlineAlpha
	ShadowAlpha
	BoldOn
	BoldOff
	ItalicOn
	ItalicOff
	FontFamily // Arg: id from a FontRegistry
	FontSize   // Arg: relative size 1-7
	SizePx     // Arg: pixels
	FontReset
	Start // paragraph start
	HR
	SetMargin
	CenterOn
	CenterOff
	Shadow   // Arg: displacement
	Outline  // Arg: thickness
	Fade     // Arg: fade in ms, Arg2: fade out ms
	Position // Arg: x, Arg2: y
)

var codeNames = map[Code]string{
	Newline:      "nl",
	Color:        "color",
	OutlineColor: "outline-color",
	ShadowColor:  "shadow-color",
	Alpha:        "alpha",
	OutlineAlpha: "outline-alpha",
	ShadowAlpha:  "shadow-alpha",
	BoldOn:       "b+",
	BoldOff:      "b-",
	ItalicOn:     "i+",
	ItalicOff:    "i-",
	FontFamily:   "font",
	FontSize:     "size",
	SizePx:       "px",
	FontReset:    "font-reset",
	Start:        "start",
	HR:           "hr",
	SetMargin:    "margin",
	CenterOn:     "center+",
	CenterOff:    "center-",
	Shadow:       "shadow",
	Outline:      "outline",
	Fade:         "fade",
	Position:     "pos",
}

func (c Code) String() string {
	if c == Literal {
		return "literal"
	}
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", uint8(c))
}

// single opcode
type Op struct {
	Code Code
	Arg  int
	Arg2 int
}

// compiled text, immutable once attached to a cue
type Stream []Op

func Lit(r rune) Op {
	return Op{Code: Literal, Arg: int(r)}
}

func Cmd(c Code, arg int) Op {
	return Op{Code: c, Arg: arg}
}

// appends every rune of s as a literal
func (s Stream) AppendText(text string) Stream {
	for _, r := range text {
		if r == '\n' {
			s = append(s, Op{Code: Newline})
			continue
		}
		s = append(s, Lit(r))
	}
	return s
}

// plain text with style directives dropped
func (s Stream) Text() string {
	var sb strings.Builder
	for _, op := range s {
		switch op.Code {
		case Literal:
			sb.WriteRune(rune(op.Arg))
		case Newline:
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// debug rendering, literals inline and directives in brackets
func (s Stream) String() string {
	var sb strings.Builder
	for _, op := range s {
		switch op.Code {
		case Literal:
			sb.WriteRune(rune(op.Arg))
		case Newline:
			sb.WriteString("[nl]")
		case BoldOn, BoldOff, ItalicOn, ItalicOff, FontReset, Start, HR,
			SetMargin, CenterOn, CenterOff:
			sb.WriteString("[" + op.Code.String() + "]")
		case Color, OutlineColor, ShadowColor:
			fmt.Fprintf(&sb, "[%s=%06x]", op.Code, op.Arg)
		case Fade, Position:
			fmt.Fprintf(&sb, "[%s=%d,%d]", op.Code, op.Arg, op.Arg2)
		default:
			fmt.Fprintf(&sb, "[%s=%d]", op.Code, op.Arg)
		}
	}
	return sb.String()
}

// reports whether the stream holds at least one literal
func (s Stream) HasText() bool {
	for _, op := range s {
		if op.Code == Literal {
			return true
		}
	}
	return false
}

// returns the codes present, in order, literals excluded
func (s Stream) Codes() []Code {
	var out []Code
	for _, op := range s {
		if op.Code != Literal {
			out = append(out, op.Code)
		}
	}
	return out
}
