package subtitle

import (
	"strconv"
	"strings"
	"time"

	"github.com/mgpai22/subtrack/internal/linereader"
	"github.com/mgpai22/subtrack/internal/textstyle"
)

const (
	microDVDDefaultFPS = 25
	mpl2FPS            = 10
)

// parses "{start}{stop}" or "[start][stop]" at the start of s and returns
// the number of bytes consumed, or -1
func frameTimestamps(s string, left, right byte) (int, int, int) {
	if s == "" || s[0] != left {
		return 0, 0, -1
	}
	i := 1
	start, n := linereader.ScanUint([]byte(s[i:]))
	i += n
	if i+1 >= len(s) || s[i] != right || s[i+1] != left {
		return 0, 0, -1
	}
	i += 2
	stop, n := linereader.ScanUint([]byte(s[i:]))
	i += n
	if i >= len(s) || s[i] != right {
		return 0, 0, -1
	}
	return start, stop, i + 1
}

func isMicroDVD(buf []byte) bool {
	_, _, n := frameTimestamps(firstLine(buf), '{', '}')
	return n != -1
}

func isMPL2(buf []byte) bool {
	_, _, n := frameTimestamps(firstLine(buf), '[', ']')
	return n != -1
}

// MicroDVD counts frames, MPL2 counts deciseconds
func loadFramed(buf []byte, opts Options, mpl bool) *Track {
	left, right := byte('{'), byte('}')
	fps := opts.FrameRate
	flags := textstyle.SubTags
	track := &Track{Format: FormatMicroDVD}

	if mpl {
		left, right = '[', ']'
		fps = mpl2FPS
		flags |= textstyle.SlashPrefix
		track.Format = FormatMPL2
	} else if fps <= 0 {
		fps = microDVDDefaultFPS
	}

	lr := linereader.New(buf)
	for lr.Next() != linereader.EOF {
		line := string(lr.Line())
		start, stop, n := frameTimestamps(line, left, right)
		if n <= 0 {
			continue
		}
		text := line[n:]

		if !mpl && start == 1 && stop == 1 {
			if v, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil && v > 0 {
				fps = v
			}
			continue
		}

		text = strings.ReplaceAll(text, "|", "\n")
		track.add(renderCleartext(text, frameTime(start, fps), frameTime(stop, fps), flags, opts))
	}
	return track
}

func frameTime(frame int, fps float64) time.Duration {
	return time.Duration(float64(frame) / fps * float64(time.Second))
}

// matches s against a pattern where 'd' reads one or two digits after
// optional blanks, ' ' skips any blanks and other bytes match literally
func scanDigits(s, pattern string) ([]int, bool) {
	var vals []int
	i := 0
	for p := 0; p < len(pattern); p++ {
		switch pattern[p] {
		case 'd':
			for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
				i++
			}
			j := i
			for j < len(s) && j-i < 2 && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			if j == i {
				return nil, false
			}
			v, _ := strconv.Atoi(s[i:j])
			vals = append(vals, v)
			i = j
		case ' ':
			for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
				i++
			}
		default:
			if i >= len(s) || s[i] != pattern[p] {
				return nil, false
			}
			i++
		}
	}
	return vals, true
}

const (
	txtPattern = "d:d:d:d d:d:d:d "
	tmpPattern = "d:d:d:"
)

func isTXT(buf []byte) bool {
	_, ok := scanDigits(firstLine(buf), txtPattern)
	return ok
}

func isTMP(buf []byte) bool {
	_, ok := scanDigits(firstLine(buf), tmpPattern)
	return ok
}

// copies src up to the first control character, replacing each separator
// with a newline
func cueBody(src, sep string) string {
	var sb strings.Builder
	for len(src) > 0 {
		if src[0] < 32 {
			break
		}
		if strings.HasPrefix(src, sep) {
			sb.WriteByte('\n')
			src = src[len(sep):]
			continue
		}
		sb.WriteByte(src[0])
		src = src[1:]
	}
	return sb.String()
}

// "HH:MM:SS:cc HH:MM:SS:cc text" with times in centiseconds
func loadTXT(buf []byte, opts Options) *Track {
	track := &Track{Format: FormatTXT}
	lr := linereader.New(buf)
	for lr.Next() != linereader.EOF {
		line := string(lr.Line())
		s, ok := scanDigits(line, txtPattern)
		if !ok || len(line) < 24 {
			continue
		}
		start := s[0]*360000 + s[1]*6000 + s[2]*100 + s[3]
		stop := s[4]*360000 + s[5]*6000 + s[6]*100 + s[7]
		text := cueBody(line[24:], "//")
		track.add(renderCleartext(text,
			time.Duration(start)*10*time.Millisecond,
			time.Duration(stop)*10*time.Millisecond,
			0, opts))
	}
	return track
}

// "HH:MM:SS:text" with no stop time. The display time grows with the
// line length and is trimmed to the next cue after sorting.
func loadTMP(buf []byte, opts Options) *Track {
	track := &Track{Format: FormatTMP}
	lr := linereader.New(buf)
	for lr.Next() != linereader.EOF {
		line := string(lr.Line())
		s, ok := scanDigits(line, tmpPattern)
		if !ok || len(line) < 9 {
			continue
		}
		start := time.Duration(s[0]*3600+s[1]*60+s[2]) * time.Second
		body := line[9:]
		delay := max(int(float64(len(body))/14.7), 2)
		c := renderCleartext(cueBody(body, "|"), start,
			start+time.Duration(delay)*time.Second,
			textstyle.SlashPrefix, opts)
		c.StopEstimated = true
		track.add(c)
	}
	return track
}

func firstLine(buf []byte) string {
	lr := linereader.New(buf)
	if lr.Next() == linereader.EOF {
		return ""
	}
	return string(lr.Line())
}
