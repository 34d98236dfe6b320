package subtitle

import (
	"bytes"
	"time"

	"github.com/mgpai22/subtrack/internal/linereader"
	"github.com/mgpai22/subtrack/internal/textstyle"
)

const srtTagFlags = textstyle.HTMLTags | textstyle.HTMLEntities |
	textstyle.SloppyTags | textstyle.SubTags

func isWebVTT(buf []byte) bool {
	return len(buf) > 6 && bytes.HasPrefix(buf, []byte("WEBVTT"))
}

// the WEBVTT header block and leading control characters are not part of
// the cues
func skipSRTPreamble(buf []byte) []byte {
	if isWebVTT(buf) {
		lr := linereader.New(buf)
		for lr.Next() > 0 {
		}
		buf = lr.Rest()
	}
	for len(buf) > 0 && buf[0] != 0 && buf[0] <= 32 {
		buf = buf[1:]
	}
	return buf
}

// first record must be an index line followed by a timestamp line whose
// stop does not precede its start. WebVTT cues may omit the index.
func isSRT(buf []byte) bool {
	lr := linereader.New(skipSRTPreamble(buf))

	if lr.Next() == linereader.EOF {
		return false
	}
	if isWebVTT(buf) {
		if start, stop, ok := parseSRTTimestamps(lr.Line()); ok {
			return stop >= start
		}
	}
	if _, ok := linereader.ParseUint(lr.Line()); !ok {
		return false
	}
	if lr.Next() == linereader.EOF {
		return false
	}
	start, stop, ok := parseSRTTimestamps(lr.Line())
	return ok && stop >= start
}

// parses "HH:MM:SS,mmm --> HH:MM:SS,mmm"; '.' is accepted in place of ','
func parseSRTTimestamps(line []byte) (time.Duration, time.Duration, bool) {
	if len(line) < 29 || string(line[12:17]) != " --> " {
		return 0, 0, false
	}
	start, ok := parseSRTTimestamp(line[0:12])
	if !ok {
		return 0, 0, false
	}
	stop, ok := parseSRTTimestamp(line[17:29])
	if !ok {
		return 0, 0, false
	}
	return start, stop, true
}

func parseSRTTimestamp(b []byte) (time.Duration, bool) {
	if b[2] != ':' || b[5] != ':' || (b[8] != ',' && b[8] != '.') {
		return 0, false
	}
	h, ok1 := linereader.ParseUint(b[0:2])
	m, ok2 := linereader.ParseUint(b[3:5])
	s, ok3 := linereader.ParseUint(b[6:8])
	ms, ok4 := linereader.ParseUint(b[9:12])
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return 0, false
	}

	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(ms)*time.Millisecond, true
}

// a cue's text is every line after its timestamp line up to the last
// blank line before the next timestamp, which drops the next index line
func loadSRT(buf []byte, opts Options) *Track {
	logger := opts.logger()
	track := &Track{Format: FormatSRT}
	if isWebVTT(buf) {
		track.Format = FormatVTT
	}

	var (
		text       []byte
		cut        = -1
		start      time.Duration
		stop       time.Duration
		inCue      bool
		lineNumber int
	)

	emit := func() {
		if !inCue {
			return
		}
		body := text
		if cut >= 0 {
			body = text[:cut]
		}
		body = bytes.TrimSuffix(body, []byte("\n"))
		track.add(renderCleartext(string(body), start, stop, srtTagFlags, opts))
	}

	lr := linereader.New(skipSRTPreamble(buf))
	for lr.Next() != linereader.EOF {
		lineNumber++
		line := lr.Line()

		if s, e, ok := parseSRTTimestamps(line); ok {
			emit()
			start, stop = s, e
			inCue = true
			text = text[:0]
			cut = -1
			continue
		}
		if len(line) >= 29 && string(line[12:17]) == " --> " {
			// looked like a timing line but did not parse, skip the record
			logger.Debugw("Skipping malformed SRT timing", "line", lineNumber)
			emit()
			inCue = false
			continue
		}
		if !inCue {
			continue
		}

		if len(line) == 0 && len(text) > 0 {
			cut = len(text) - 1
		}
		text = append(text, line...)
		text = append(text, '\n')
	}
	emit()

	return track
}
