package vobsub

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mgpai22/subtrack/internal/linereader"
	"github.com/mgpai22/subtrack/internal/textstyle"
)

var (
	ErrNoEntries = errors.New("vobsub: no entries for the selected track")
	ErrStuffing  = errors.New("vobsub: pack stuffing not supported")
	ErrRLE       = errors.New("vobsub: corrupt run-length data")
)

// selects the first track of an index without "index:" numbering
const AnyTrack = -1

// one timestamp/filepos pair of the selected track
type Entry struct {
	PTS time.Duration
	Pos int64
}

// one "id:" line of an index
type TrackInfo struct {
	Language string
	Index    int // -1 when the line carries no index
}

// parsed .idx sidecar, restricted to the selected track
type Index struct {
	// packed 0xBBGGRR
	Palette [16]uint32
	Width   int
	Height  int

	// track named by "langidx:", -1 if absent
	LangIdx int
	Tracks  []TrackInfo
	Entries []Entry

	// end of the last entry's byte range
	Stop int64
}

// entry i spans [Entries[i].Pos, End(i))
func (x *Index) End(i int) int64 {
	if i+1 < len(x.Entries) {
		return x.Entries[i+1].Pos
	}
	return x.Stop
}

// stop time of entry i is the start of the next one
func (x *Index) StopTime(i int) time.Duration {
	if i+1 < len(x.Entries) {
		return x.Entries[i+1].PTS
	}
	return time.Duration(math.MaxInt64)
}

// parses an index document. selected is the "index:" number of the
// wanted track, or AnyTrack; with AnyTrack a "langidx:" line names the
// track, otherwise the first "id:" line is used. subSize is the size of the companion .sub file,
// the end of the last entry when no later track bounds it.
func ParseIndex(buf []byte, selected int, subSize int64) (*Index, error) {
	x := &Index{LangIdx: -1, Stop: -1}

	if selected == AnyTrack {
		if v, ok := findLangIdx(buf); ok {
			selected = v
		}
	}

	parsing := false
	lr := linereader.New(buf)
	for lr.Next() != linereader.EOF {
		line := string(lr.Line())

		if v, ok := strings.CutPrefix(line, "palette:"); ok {
			x.Palette = decodePalette(v)
			continue
		}
		if v, ok := strings.CutPrefix(line, "size:"); ok {
			x.Width, x.Height = decodeSize(x.Width, x.Height, v)
			continue
		}
		if v, ok := strings.CutPrefix(line, "langidx:"); ok {
			x.LangIdx = atoi(v)
			continue
		}

		if v, ok := strings.CutPrefix(line, "id:"); ok {
			info := parseID(v)
			x.Tracks = append(x.Tracks, info)
			if selected == AnyTrack {
				parsing = len(x.Tracks) == 1
			} else {
				parsing = info.Index == selected
			}
			continue
		}

		v, ok := strings.CutPrefix(line, "timestamp:")
		if !ok {
			continue
		}
		v = strings.TrimLeft(v, " ")
		ts, ok := parseTimestamp(v)
		if !ok {
			continue
		}
		i := strings.Index(v, "filepos:")
		if i < 0 {
			continue
		}
		pos, err := strconv.ParseInt(strings.TrimSpace(v[i+len("filepos:"):]), 16, 64)
		if err != nil {
			continue
		}

		if parsing {
			x.Entries = append(x.Entries, Entry{PTS: ts, Pos: pos})
		} else if len(x.Entries) > 0 && x.Stop < 0 {
			// first entry of a later track bounds the selected one
			x.Stop = pos
		}
	}

	if len(x.Entries) == 0 {
		return nil, fmt.Errorf("%w (index %d)", ErrNoEntries, selected)
	}
	if x.Stop < 0 {
		x.Stop = subSize
	}
	return x, nil
}

func findLangIdx(buf []byte) (int, bool) {
	lr := linereader.New(buf)
	for lr.Next() != linereader.EOF {
		if v, ok := strings.CutPrefix(string(lr.Line()), "langidx:"); ok {
			return atoi(v), true
		}
	}
	return 0, false
}

// "id: en, index: 0"
func parseID(v string) TrackInfo {
	info := TrackInfo{Index: -1}
	v = strings.TrimLeft(v, " ")
	lang, rest, _ := strings.Cut(v, ",")
	info.Language = strings.TrimSpace(lang)
	if i := strings.Index(rest, "index:"); i >= 0 {
		info.Index = atoi(rest[i+len("index:"):])
	}
	return info
}

// up to 16 comma separated RRGGBB values, converted to packed BGR
func decodePalette(v string) [16]uint32 {
	var clut [16]uint32
	for i, f := range strings.Split(v, ",") {
		if i == len(clut) {
			break
		}
		c, err := strconv.ParseUint(strings.TrimSpace(f), 16, 32)
		if err != nil {
			continue
		}
		clut[i] = uint32(textstyle.RGBToBGR(int(c)))
	}
	return clut
}

// "WxH"; keeps the previous values unless both sides are positive
func decodeSize(w, h int, v string) (int, int) {
	ws, hs, ok := strings.Cut(strings.TrimSpace(v), "x")
	if !ok {
		return w, h
	}
	nw, nh := atoi(ws), atoi(hs)
	if nw > 0 && nh > 0 {
		return nw, nh
	}
	return w, h
}

// "HH:MM:SS:mmm"
func parseTimestamp(s string) (time.Duration, bool) {
	if len(s) < 12 || s[2] != ':' || s[5] != ':' || s[8] != ':' {
		return 0, false
	}
	h, ok1 := linereader.ParseUint([]byte(s[0:2]))
	m, ok2 := linereader.ParseUint([]byte(s[3:5]))
	sec, ok3 := linereader.ParseUint([]byte(s[6:8]))
	ms, ok4 := linereader.ParseUint([]byte(s[9:12]))
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return 0, false
	}
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second +
		time.Duration(ms)*time.Millisecond, true
}

func atoi(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && s[end] == '-') {
		end++
	}
	v, _ := strconv.Atoi(s[:end])
	return v
}
