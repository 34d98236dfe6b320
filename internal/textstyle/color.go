package textstyle

import "github.com/mgpai22/subtrack/internal/linereader"

// parses an ASS color such as "&H00BBGGRR&".
// The leading '&' and 'H' are optional, up to 8 hex digits are read and
// right-aligned so missing leading digits count as zero.
func ParseASSColor(s string) uint32 {
	if len(s) > 0 && s[0] == '&' {
		s = s[1:]
	}
	if len(s) > 0 && (s[0] == 'h' || s[0] == 'H') {
		s = s[1:]
	}

	n := 0
	for n < len(s) && linereader.IsHex(s[n]) {
		n++
	}
	if n > 8 {
		n = 8
	}

	var v uint32
	for i := 0; i < n; i++ {
		v = v<<4 | uint32(linereader.HexValue(s[i]))
	}
	return v
}

// parses "#rgb" or "#rrggbb" into packed 0xBBGGRR, 0 when malformed
func ParseHTMLColor(s string) int {
	if len(s) > 0 && s[0] == '#' {
		s = s[1:]
	}
	var r, g, b int
	switch len(s) {
	case 3:
		r = linereader.HexValue(s[0]) * 0x11
		g = linereader.HexValue(s[1]) * 0x11
		b = linereader.HexValue(s[2]) * 0x11
	case 6:
		r = linereader.HexValue(s[0])<<4 | linereader.HexValue(s[1])
		g = linereader.HexValue(s[2])<<4 | linereader.HexValue(s[3])
		b = linereader.HexValue(s[4])<<4 | linereader.HexValue(s[5])
	default:
		return 0
	}
	return b<<16 | g<<8 | r
}

// converts packed 0xRRGGBB into packed 0xBBGGRR
func RGBToBGR(v int) int {
	return (v&0xff0000)>>16 | v&0xff00 | (v&0xff)<<16
}
