package subtitle

import (
	"errors"
	"fmt"
	"os"
)

// reads and parses a subtitle file of any supported format
func Open(path string, opts Options) (*Track, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, path, err)
	}

	track, err := Load(buf, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	opts.logger().Debugw("Loaded subtitles", "path", path, "format", track.Format, "cues", track.Len())
	return track, nil
}

// parses an in-memory subtitle document. Zip and gzip wrapped documents
// are unpacked first; for zip the first member that loads wins.
func Load(buf []byte, opts Options) (*Track, error) {
	logger := opts.logger()

	if isZip(buf) {
		members, err := zipMembers(buf)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			logger.Debugw("Probing archive member", "name", m.name)
			track, err := Load(m.data, opts)
			if err == nil {
				return track, nil
			}
		}
		return nil, fmt.Errorf("%w: no subtitles in archive", ErrUnknownFormat)
	}

	if isGzip(buf) {
		inflated, err := gunzip(buf)
		if err != nil {
			return nil, err
		}
		buf = inflated
	}

	track, err := create(buf, opts)
	if err != nil {
		if errors.Is(err, ErrUnknownFormat) {
			logger.Warnw("Unknown subtitle format", "bytes", len(buf), "head", head(buf, 64))
		}
		return nil, err
	}
	return track, nil
}

// sniffs the format without parsing. Formats are tried in load order.
func Detect(buf []byte) Format {
	if isTTML(buf) {
		return FormatTTML
	}
	if isTimedText(buf) {
		return FormatTimedText
	}

	b := toUTF8(buf, "", nil)
	switch {
	case isSRT(b):
		if isWebVTT(b) {
			return FormatVTT
		}
		return FormatSRT
	case isASS(b):
		return FormatASS
	case isMicroDVD(b):
		return FormatMicroDVD
	case isMPL2(b):
		return FormatMPL2
	case isTXT(b):
		return FormatTXT
	case isTMP(b):
		return FormatTMP
	}
	return FormatUnknown
}

func create(buf []byte, opts Options) (*Track, error) {
	switch {
	case isTTML(buf):
		return sorted(ParseTTML(buf, 0, opts))
	case isTimedText(buf):
		return sorted(parseTimedText(buf, opts))
	}

	b := toUTF8(buf, opts.Charset, opts.logger())

	var track *Track
	trimStop := false
	switch {
	case isSRT(b):
		track = loadSRT(b, opts)
	case isASS(b):
		track = loadASS(b, opts)
	case isMicroDVD(b):
		track = loadFramed(b, opts, false)
	case isMPL2(b):
		track = loadFramed(b, opts, true)
	case isTXT(b):
		track = loadTXT(b, opts)
	case isTMP(b):
		track = loadTMP(b, opts)
		trimStop = true
	}

	if track == nil {
		for _, p := range opts.Providers {
			if !p.Probe(b) {
				continue
			}
			t, err := p.Load(b, opts)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrLoad, p.Name(), err)
			}
			track = t
			break
		}
	}

	if track == nil {
		return nil, fmt.Errorf("%w (%d bytes)", ErrUnknownFormat, len(buf))
	}
	track.Sort(trimStop)
	return track, nil
}

func sorted(track *Track, err error) (*Track, error) {
	if err != nil {
		return nil, err
	}
	track.Sort(false)
	return track, nil
}

func head(buf []byte, n int) string {
	return fmt.Sprintf("%q", buf[:min(len(buf), n)])
}
