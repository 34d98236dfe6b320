package mp4sub

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/mgpai22/subtrack/internal/logging"
	"github.com/mgpai22/subtrack/internal/subtitle"
)

var (
	ErrNotFragmented = errors.New("mp4 file is not fragmented")
	ErrNoTrack       = errors.New("no subtitle track")
)

type Options struct {
	// TTML times count from the start of each sample instead of the
	// media timeline, as in Smooth Streaming segments
	Relative bool

	Subtitle subtitle.Options
}

// Open reads a fragmented MP4 file, or an init segment followed by its
// media segments, and returns the cues of its subtitle track.
func Open(path string, opts Options) (*subtitle.Track, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", subtitle.ErrLoad, path, err)
	}
	defer fd.Close()

	track, err := Load(fd, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return track, nil
}

func Load(r io.Reader, opts Options) (*subtitle.Track, error) {
	f, err := mp4.DecodeFile(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode mp4 file: %v", subtitle.ErrLoad, err)
	}
	if !f.IsFragmented() {
		return nil, ErrNotFragmented
	}
	if f.Init == nil || f.Init.Moov == nil || f.Init.Moov.Trak == nil {
		return nil, fmt.Errorf("%w: missing init segment", ErrNoTrack)
	}

	trak := f.Init.Moov.Trak
	for _, t := range f.Init.Moov.Traks {
		if c := sampleEntry(t); c == "stpp" || c == "tx3g" {
			trak = t
			break
		}
	}
	timescale := trak.Mdia.Mdhd.Timescale
	if timescale == 0 {
		return nil, fmt.Errorf("%w: zero timescale", subtitle.ErrLoad)
	}
	codec := sampleEntry(trak)

	var trex *mp4.TrexBox
	if mvex := f.Init.Moov.Mvex; mvex != nil {
		trex = mvex.Trex
		for _, t := range mvex.Trexs {
			if t.TrackID == trak.Tkhd.TrackID {
				trex = t
			}
		}
	}

	d := decoder{
		codec:     codec,
		timescale: timescale,
		trackID:   trak.Tkhd.TrackID,
		opts:      opts,
		logger:    logging.OrNop(opts.Subtitle.Logger).Named("mp4sub"),
	}
	switch codec {
	case "stpp":
		d.track = &subtitle.Track{Format: subtitle.FormatTTML}
	case "tx3g":
		d.track = &subtitle.Track{Format: subtitle.FormatMovText}
	default:
		return nil, fmt.Errorf("%w: unsupported sample entry %q", subtitle.ErrUnknownFormat, codec)
	}

	for _, seg := range f.Segments {
		for _, frag := range seg.Fragments {
			if err := d.fragment(frag, trex); err != nil {
				return nil, err
			}
		}
	}

	d.track.Sort(codec == "tx3g")
	d.logger.Debugw("Loaded mp4 subtitles", "codec", codec, "timescale", timescale, "cues", d.track.Len())
	return d.track, nil
}

func sampleEntry(trak *mp4.TrakBox) string {
	stbl := trak.Mdia.Minf.Stbl
	if stbl == nil || stbl.Stsd == nil || len(stbl.Stsd.Children) == 0 {
		return ""
	}
	return stbl.Stsd.Children[0].Type()
}

type decoder struct {
	codec     string
	timescale uint32
	trackID   uint32
	opts      Options
	logger    *logging.Logger
	track     *subtitle.Track
}

func (d *decoder) fragment(frag *mp4.Fragment, trex *mp4.TrexBox) error {
	if frag.Moof == nil || frag.Moof.Traf == nil {
		return nil
	}
	if id := frag.Moof.Traf.Tfhd.TrackID; id != d.trackID {
		d.logger.Debugw("Skipping fragment of another track", "track", id)
		return nil
	}

	samples, err := frag.GetFullSamples(trex)
	if err != nil {
		return fmt.Errorf("%w: failed to read samples: %v", subtitle.ErrLoad, err)
	}
	for i := range samples {
		d.sample(&samples[i])
	}
	return nil
}

func (d *decoder) sample(s *mp4.FullSample) {
	start := d.duration(int64(s.DecodeTime) + int64(s.CompositionTimeOffset))
	stop := start + d.duration(int64(s.Dur))

	switch d.codec {
	case "stpp":
		var offset time.Duration
		if d.opts.Relative {
			offset = start
		}
		doc, err := subtitle.ParseTTML(s.Data, offset, d.opts.Subtitle)
		if err != nil {
			d.logger.Debugw("Skipping TTML sample", "start", start, "error", err)
			return
		}
		d.track.Cues = append(d.track.Cues, doc.Cues...)

	case "tx3g":
		text, ok := subtitle.MovText(s.Data)
		if !ok || text == "" {
			// empty samples fill the gaps between cues
			return
		}
		if s.Dur == 0 {
			stop = subtitle.Unset
		}
		d.track.Cues = append(d.track.Cues, subtitle.PacketCue(text, start, stop, d.opts.Subtitle))
	}
}

// media ticks to time without overflowing on long timelines
func (d *decoder) duration(ticks int64) time.Duration {
	ts := int64(d.timescale)
	return time.Duration(ticks/ts)*time.Second + time.Duration(ticks%ts)*time.Second/time.Duration(ts)
}
