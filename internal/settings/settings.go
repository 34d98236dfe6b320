package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mgpai22/subtrack/internal/linereader"
	"github.com/mgpai22/subtrack/internal/textstyle"
)

// horizontal placement override for text overlays
type Alignment string

const (
	AlignAuto   Alignment = "auto"
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"
)

// packed 0xBBGGRR, written as "RRGGBB" in JSON
type Color int

func (c Color) MarshalJSON() ([]byte, error) {
	rgb := textstyle.RGBToBGR(int(c))
	return json.Marshal(fmt.Sprintf("%06X", rgb))
}

func (c *Color) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("color must be a hex string: %w", err)
	}
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	v, ok := linereader.ParseHex([]byte(s))
	if !ok || len(s) != 6 {
		return fmt.Errorf("invalid color %q, expected RRGGBB", s)
	}
	*c = Color(textstyle.RGBToBGR(int(v)))
	return nil
}

// user subtitle appearance, applied on top of document styling
type Appearance struct {
	Color                  Color     `json:"color"`
	ShadowColor            Color     `json:"shadow_color"`
	ShadowOffset           int       `json:"shadow_offset"`
	OutlineColor           Color     `json:"outline_color"`
	OutlineSize            int       `json:"outline_size"`
	StyleOverride          bool      `json:"style_override"`
	Scale                  int       `json:"scale"`
	Alignment              Alignment `json:"alignment"`
	VerticalDisplacement   int       `json:"vertical_displacement"`
	HorizontalDisplacement int       `json:"horizontal_displacement"`
}

func Default() Appearance {
	return Appearance{
		Color:        0xffffff,
		ShadowOffset: 2,
		OutlineSize:  1,
		Scale:        100,
		Alignment:    AlignAuto,
	}
}

// returns a copy with every field forced into its valid range
func (a Appearance) Clamp() Appearance {
	a.Color &= 0xffffff
	a.ShadowColor &= 0xffffff
	a.OutlineColor &= 0xffffff
	a.ShadowOffset = clamp(a.ShadowOffset, 0, 10)
	a.OutlineSize = clamp(a.OutlineSize, 0, 4)
	a.Scale = clamp(a.Scale, 30, 500)
	a.VerticalDisplacement = clamp(a.VerticalDisplacement, -300, 300)
	a.HorizontalDisplacement = clamp(a.HorizontalDisplacement, -300, 300)
	switch a.Alignment {
	case AlignLeft, AlignCenter, AlignRight:
	default:
		a.Alignment = AlignAuto
	}
	return a
}

// style ops placed in front of plain-text cues
func (a Appearance) TextPrefix() textstyle.Stream {
	return textstyle.Stream{
		textstyle.Cmd(textstyle.Color, int(a.Color)),
		textstyle.Cmd(textstyle.Shadow, a.ShadowOffset),
		textstyle.Cmd(textstyle.ShadowColor, int(a.ShadowColor)),
		textstyle.Cmd(textstyle.Outline, a.OutlineSize),
		textstyle.Cmd(textstyle.OutlineColor, int(a.OutlineColor)),
	}
}

// reads an appearance file; fields missing from the file keep their defaults
func Load(path string) (Appearance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Appearance{}, fmt.Errorf("failed to read settings file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Appearance, error) {
	a := Default()
	if err := json.Unmarshal(data, &a); err != nil {
		return Appearance{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	return a.Clamp(), nil
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
