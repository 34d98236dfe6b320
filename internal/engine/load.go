package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mgpai22/subtrack/internal/captions"
	"github.com/mgpai22/subtrack/internal/logging"
	"github.com/mgpai22/subtrack/internal/mp4sub"
	"github.com/mgpai22/subtrack/internal/overlay"
	"github.com/mgpai22/subtrack/internal/picker"
	"github.com/mgpai22/subtrack/internal/subtitle"
	"github.com/mgpai22/subtrack/internal/teletext"
	"github.com/mgpai22/subtrack/internal/tsdemux"
	"github.com/mgpai22/subtrack/internal/vobsub"
)

// what a file on disk turned out to be
type Kind string

const (
	KindText      Kind = "text"
	KindVobSub    Kind = "vobsub"
	KindTransport Kind = "mpegts"
	KindMP4       Kind = "mp4"
)

// decides the source kind from the file extension
func DetectKind(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".idx":
		return KindVobSub
	case ".ts", ".m2ts", ".mts":
		return KindTransport
	case ".mp4", ".m4s", ".cmft", ".ismt":
		return KindMP4
	}
	return KindText
}

type Options struct {
	Subtitle subtitle.Options

	// VobSub "index:" number, vobsub.AnyTrack for the default one
	VobSubTrack int
	YUVPalette  bool

	// teletext page as magazine<<8 | BCD page, 0 for the announced or
	// first flagged page
	TeletextPage int

	// closed caption channel, 0 for every channel; negative disables
	// caption decoding
	CaptionChannel int

	// TTML samples in MP4 are timed from their own start
	RelativeTTML bool
}

func (o Options) logger() *logging.Logger {
	return logging.OrNop(o.Subtitle.Logger).Named("engine")
}

// cue track bound for one overlay layer
type LayerTrack struct {
	Name  string
	Layer int
	Track *subtitle.Track
}

// ReadTracks decodes every cue track in a text, MP4 or transport stream
// file. VobSub files hold bitmaps and are only available through Load.
func ReadTracks(ctx context.Context, path string, opts Options) ([]LayerTrack, error) {
	switch DetectKind(path) {
	case KindVobSub:
		return nil, fmt.Errorf("%s: vobsub tracks are bitmap only", path)

	case KindTransport:
		return readTransport(ctx, path, opts)

	case KindMP4:
		track, err := mp4sub.Open(path, mp4sub.Options{Relative: opts.RelativeTTML, Subtitle: opts.Subtitle})
		if err != nil {
			return nil, err
		}
		return []LayerTrack{{Name: string(track.Format), Layer: overlay.LayerSubtitles, Track: track}}, nil
	}

	track, err := subtitle.Open(path, opts.Subtitle)
	if err != nil {
		return nil, err
	}
	return []LayerTrack{{Name: string(track.Format), Layer: overlay.LayerSubtitles, Track: track}}, nil
}

// Load opens path as a playback source delivering into queue
func Load(ctx context.Context, path string, queue *overlay.Queue, opts Options) (Source, error) {
	logger := opts.logger()

	if DetectKind(path) == KindVobSub {
		track, err := vobsub.Open(path, "", queue, vobsub.Options{
			Track:      opts.VobSubTrack,
			YUVPalette: opts.YUVPalette,
			Layer:      overlay.LayerSubtitles,
			Logger:     opts.Subtitle.Logger,
		})
		if err != nil {
			return nil, err
		}
		logger.Infow("Loaded vobsub", "path", path, "entries", len(track.Index().Entries))
		return track, nil
	}

	tracks, err := ReadTracks(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	var sources multiSource
	for _, lt := range tracks {
		logger.Infow("Loaded track", "path", path, "track", lt.Name, "layer", lt.Layer, "cues", lt.Track.Len())
		sources = append(sources, picker.New(lt.Track, queue, lt.Layer, opts.Subtitle.Logger))
	}
	if len(sources) == 1 {
		return sources[0], nil
	}
	return sources, nil
}

// teletext and closed captions out of an MPEG transport stream, each on
// its own layer
func readTransport(ctx context.Context, path string, opts Options) ([]LayerTrack, error) {
	logger := opts.logger()

	fd, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", subtitle.ErrLoad, path, err)
	}
	defer fd.Close()

	ttx := &subtitle.Track{Format: "teletext"}
	cc := &subtitle.Track{Format: "cea608"}

	var (
		ttxPID  = -1
		videoID = -1
		pages   *teletext.Decoder
		capDec  *captions.Decoder
	)
	if opts.CaptionChannel >= 0 {
		capDec = captions.NewDecoder(captions.Options{
			Channel:    opts.CaptionChannel,
			OnCue:      func(c *subtitle.Cue) { cc.Cues = append(cc.Cues, c) },
			Appearance: opts.Subtitle.Appearance,
			Logger:     opts.Subtitle.Logger,
		})
	}

	dmx := tsdemux.New(fd, tsdemux.Options{
		Rebase: true,
		Logger: opts.Subtitle.Logger,
		OnTeletext: func(s *tsdemux.Stream, payload []byte, pts time.Duration) {
			if ttxPID == -1 {
				page := opts.TeletextPage
				if page == 0 {
					page = s.Page
				}
				ttxPID = int(s.PID)
				pages = teletext.NewDecoder(teletext.Options{
					Page:       page,
					OnCue:      func(c *subtitle.Cue) { ttx.Cues = append(ttx.Cues, c) },
					Appearance: opts.Subtitle.Appearance,
					Fonts:      opts.Subtitle.Fonts,
					Logger:     opts.Subtitle.Logger,
				})
			}
			if int(s.PID) == ttxPID {
				pages.DecodePES(payload, pts)
			}
		},
		OnVideo: func(s *tsdemux.Stream, payload []byte, pts time.Duration) {
			if capDec == nil {
				return
			}
			if videoID == -1 {
				videoID = int(s.PID)
			}
			if int(s.PID) != videoID {
				return
			}
			if s.Kind == tsdemux.KindH265 {
				capDec.DecodeH265(payload, pts)
			} else {
				capDec.DecodeH264(payload, pts)
			}
		},
	})
	if err := dmx.Run(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", subtitle.ErrLoad, path, err)
	}
	if pages != nil {
		pages.Flush()
	}
	if capDec != nil {
		capDec.Flush()
	}

	var out []LayerTrack
	if len(ttx.Cues) > 0 {
		ttx.Sort(false)
		out = append(out, LayerTrack{Name: "teletext", Layer: overlay.LayerTeletext, Track: ttx})
	}
	if len(cc.Cues) > 0 {
		cc.Sort(false)
		out = append(out, LayerTrack{Name: "captions", Layer: overlay.LayerCaptions, Track: cc})
	}
	logger.Debugw("Read transport stream", "path", path, "streams", len(dmx.Streams()), "tracks", len(out))
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s: no teletext or captions found", subtitle.ErrUnknownFormat, path)
	}
	return out, nil
}
