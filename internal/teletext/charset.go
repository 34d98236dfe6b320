package teletext

import (
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Latin G0 primary set from 0x20
var g0Latin = [96]rune{
	' ', '!', '"', '£', '$', '%', '&', '\'', '(', ')', '*', '+', ',', '-', '.', '/',
	'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', ':', ';', '<', '=', '>', '?',
	'@', 'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M', 'N', 'O',
	'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z', '«', '½', '»', '^', '#',
	'-', 'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n', 'o',
	'p', 'q', 'r', 's', 't', 'u', 'v', 'w', 'x', 'y', 'z', '¼', '¦', '¾', '÷', 0x7f,
}

// G0 positions replaced by a national option subset
var nationalPositions = [13]int{
	0x03, 0x04, 0x20, 0x3b, 0x3c, 0x3d, 0x3e, 0x3f, 0x40, 0x5b, 0x5c, 0x5d, 0x5e,
}

type nationalSubset struct {
	language string
	chars    [13]rune
}

var nationalSubsets = []nationalSubset{
	{"English", [13]rune{'£', '$', '@', '«', '½', '»', '^', '#', '-', '¼', '¦', '¾', '÷'}},
	{"French", [13]rune{'é', 'ï', 'à', 'ë', 'ê', 'ù', 'î', '#', 'è', 'â', 'ô', 'û', 'ç'}},
	{"Swedish, Finnish, Hungarian", [13]rune{'#', '¤', 'É', 'Ä', 'Ö', 'Å', 'Ü', '_', 'é', 'ä', 'ö', 'å', 'ü'}},
	{"Czech, Slovak", [13]rune{'#', 'ů', 'č', 'ť', 'ž', 'ý', 'í', 'ř', 'é', 'á', 'ě', 'ú', 'š'}},
	{"German", [13]rune{'#', '$', '§', 'Ä', 'Ö', 'Ü', '^', '_', '°', 'ä', 'ö', 'ü', 'ß'}},
	{"Portuguese, Spanish", [13]rune{'ç', '$', '¡', 'á', 'é', 'í', 'ó', 'ú', '¿', 'ü', 'ñ', 'è', 'à'}},
	{"Italian", [13]rune{'£', '$', 'é', '°', 'ç', '»', '^', '#', 'ù', 'à', 'ò', 'è', 'ì'}},
	{"Rumanian", [13]rune{'#', '¤', 'Ţ', 'Â', 'Ş', 'Ă', 'Î', 'ı', 'ţ', 'â', 'ş', 'ă', 'î'}},
	{"Polish", [13]rune{'#', 'ń', 'ą', 'Ż', 'Ś', 'Ł', 'ć', 'ó', 'ę', 'ż', 'ś', 'ł', 'ź'}},
	{"Turkish", [13]rune{'T', 'ğ', 'İ', 'Ş', 'Ö', 'Ç', 'Ü', 'Ğ', 'ı', 'ş', 'ö', 'ç', 'ü'}},
	{"Serbian, Croatian, Slovenian", [13]rune{'#', 'Ë', 'Č', 'Ć', 'Ž', 'Đ', 'Š', 'ë', 'č', 'ć', 'ž', 'đ', 'š'}},
	{"Estonian", [13]rune{'#', 'õ', 'Š', 'Ä', 'Ö', 'Ž', 'Ü', 'Õ', 'š', 'ä', 'ö', 'ž', 'ü'}},
	{"Lettish, Lithuanian", [13]rune{'#', '$', 'Š', 'ė', 'ę', 'Ž', 'č', 'ū', 'š', 'ą', 'ų', 'ž', 'į'}},
}

const noSubset = 0xff

// 7-bit character set designation (group<<3 | option) to national subset
var subsetMap = [56]byte{
	// western europe
	0, 1, 2, 3, 4, 5, 6, noSubset,
	// polish group
	8, 1, 2, 3, 4, noSubset, 6, noSubset,
	// turkish group
	0, 1, 2, 9, 4, 5, 6, noSubset,
	// south-eastern europe
	noSubset, noSubset, noSubset, noSubset, noSubset, 10, noSubset, 7,
	// baltic and cyrillic group
	noSubset, noSubset, 11, 3, 4, noSubset, 12, noSubset,
	noSubset, noSubset, noSubset, noSubset, noSubset, noSubset, noSubset, noSubset,
	noSubset, noSubset, noSubset, noSubset, noSubset, noSubset, noSubset, noSubset,
}

// Latin G2 supplementary set from 0x20
var g2Latin = [96]rune{
	' ', '¡', '¢', '£', '$', '¥', '#', '§', '¤', '‘', '“', '«', '←', '↑', '→', '↓',
	'°', '±', '²', '³', '×', 'µ', '¶', '·', '÷', '’', '”', '»', '¼', '½', '¾', '¿',
	' ', 0x300, 0x301, 0x302, 0x303, 0x304, 0x306, 0x307, 0x308, 0, 0x30a, 0x327, '_', 0x30b, 0x328, 0x30c,
	'―', '¹', '®', '©', '™', '♪', '€', '‰', 'α', 0, 0, 0, '⅛', '⅜', '⅝', '⅞',
	'Ω', 'Æ', 'Đ', 'ª', 'Ħ', 0, 'Ĳ', 'Ŀ', 'Ł', 'Ø', 'Œ', 'º', 'Þ', 'Ŧ', 'Ŋ', 'ŉ',
	'ĸ', 'æ', 'đ', 'ð', 'ħ', 'ı', 'ĳ', 'ŀ', 'ł', 'ø', 'œ', 'ß', 'þ', 'ŧ', 'ŋ', ' ',
}

// composed letters for diacritical marks 1-15 over A-Z then a-z
var accents [15][52]rune

func init() {
	for mark := range accents {
		// marks sit in G2 column 4
		combining := g2Latin[0x21+mark]
		for i := range accents[mark] {
			base := 'A' + rune(i)
			if i >= 26 {
				base = 'a' + rune(i-26)
			}
			accents[mark][i] = base
			if combining == 0 || combining == '_' {
				continue
			}
			if r, ok := compose(base, combining); ok {
				accents[mark][i] = r
			}
		}
	}
}

// active primary character set of one decoder
type charset struct {
	g0 [96]rune

	// designation currently applied, noSubset for plain Latin
	current byte
}

func newCharset() charset {
	return charset{g0: g0Latin, current: noSubset}
}

// applies the national subset of designation c; unknown designations keep
// the current table
func (cs *charset) remap(c byte) bool {
	if c == cs.current {
		return true
	}
	if int(c) >= len(subsetMap) || subsetMap[c] == noSubset {
		return false
	}
	cs.g0 = g0Latin
	for i, pos := range nationalPositions {
		cs.g0[pos] = nationalSubsets[subsetMap[c]].chars[i]
	}
	cs.current = c
	return true
}

// language served by the designation c, empty when unknown
func subsetLanguage(c byte) string {
	if int(c) >= len(subsetMap) || subsetMap[c] == noSubset {
		return ""
	}
	return nationalSubsets[subsetMap[c]].language
}

// maps a parity-protected character byte through G0, a space on parity
// error. Control codes below 0x20 are kept as is.
func (cs *charset) char(b byte) rune {
	if !checkParity(b) {
		return ' '
	}
	b &= 0x7f
	if b >= 0x20 {
		return cs.g0[b-0x20]
	}
	return rune(b)
}

func g2(data byte) rune {
	if data < 0x20 || data > 0x7f {
		return 0
	}
	return g2Latin[data-0x20]
}

// letter with diacritic mark (1-15), or 0 when base is not a Latin letter
func accented(mark, base byte) rune {
	if mark < 1 || mark > 15 {
		return 0
	}
	switch {
	case base >= 'A' && base <= 'Z':
		return accents[mark-1][base-'A']
	case base >= 'a' && base <= 'z':
		return accents[mark-1][base-'a'+26]
	}
	return 0
}

func compose(base, mark rune) (rune, bool) {
	buf := make([]byte, 0, 8)
	buf = utf8.AppendRune(buf, base)
	buf = utf8.AppendRune(buf, mark)
	s := norm.NFC.String(string(buf))
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) {
		return 0, false
	}
	return r, true
}
