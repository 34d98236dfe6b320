package tsdemux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/asticode/go-astits"

	"github.com/mgpai22/subtrack/internal/logging"
)

// PMT stream types the demuxer cares about
const (
	streamTypePrivateData = 0x06
	streamTypeH264        = 0x1b
	streamTypeH265        = 0x24
)

// consecutive demux errors tolerated before giving up
const maxFailures = 1000

// private_stream_1, which carries teletext
const streamIDPrivate1 = 0xbd

// EBU teletext data_identifier range
const (
	dataIDTeletextFirst = 0x10
	dataIDTeletextLast  = 0x1f
)

type Kind int

const (
	KindOther Kind = iota
	KindTeletext
	KindH264
	KindH265
	KindDVBSubtitle
)

func (k Kind) String() string {
	switch k {
	case KindTeletext:
		return "teletext"
	case KindH264:
		return "h264"
	case KindH265:
		return "h265"
	case KindDVBSubtitle:
		return "dvbsub"
	}
	return "other"
}

// elementary stream found in a PMT
type Stream struct {
	PID        uint16
	StreamType uint8
	Kind       Kind
	Language   string

	// subtitle page announced by the teletext descriptor as
	// magazine<<8 | BCD page, 0 when none
	Page int
}

func (s *Stream) String() string {
	out := fmt.Sprintf("pid %d (%#x) %s", s.PID, s.PID, s.Kind)
	if s.Language != "" {
		out += " [" + s.Language + "]"
	}
	if s.Page != 0 {
		out += fmt.Sprintf(" page %03x", s.Page)
	}
	return out
}

// payload handler; pts is on the demuxer clock (see Options.Rebase)
type Handler func(s *Stream, payload []byte, pts time.Duration)

type Options struct {
	OnTeletext Handler
	OnVideo    Handler

	// called once per stream when its PMT entry is first seen
	OnStream func(s *Stream)

	// shift timestamps so the first PTS of the file is zero
	Rebase bool

	Logger *logging.Logger
}

// Demuxer reads an MPEG transport stream and hands teletext and video PES
// payloads to the handlers, with 33-bit PTS wraps unrolled.
type Demuxer struct {
	r       io.Reader
	opts    Options
	logger  *logging.Logger
	streams map[uint16]*Stream
	order   []*Stream
	clock   clock
}

func New(r io.Reader, opts Options) *Demuxer {
	return &Demuxer{
		r:       r,
		opts:    opts,
		logger:  logging.OrNop(opts.Logger).Named("tsdemux"),
		streams: map[uint16]*Stream{},
		clock:   clock{rebase: opts.Rebase},
	}
}

// streams discovered so far, in PMT order
func (d *Demuxer) Streams() []*Stream {
	return d.order
}

// Run demuxes until the end of the input or until ctx is done
func (d *Demuxer) Run(ctx context.Context) error {
	dmx := astits.NewDemuxer(ctx, d.r)
	var parsed, failures int
	for {
		data, err := dmx.NextData()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, astits.ErrNoMorePackets) || errors.Is(err, io.EOF) {
				return nil
			}
			if parsed == 0 {
				return fmt.Errorf("not a transport stream: %w", err)
			}
			if failures++; failures > maxFailures {
				return fmt.Errorf("too many corrupt packets: %w", err)
			}
			d.logger.Debugw("Skipping corrupt packet", "error", err)
			continue
		}
		parsed++
		failures = 0

		if data.PMT != nil {
			d.pmt(data.PMT)
			continue
		}
		if data.PES == nil || data.FirstPacket == nil {
			continue
		}
		d.pes(data.FirstPacket.Header.PID, data.PES)
	}
}

// Probe reads until the first PMT and returns its streams
func Probe(ctx context.Context, r io.Reader) ([]*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d := New(r, Options{})
	dmx := astits.NewDemuxer(ctx, r)
	for {
		data, err := dmx.NextData()
		if err != nil {
			if errors.Is(err, astits.ErrNoMorePackets) || errors.Is(err, io.EOF) {
				return d.order, nil
			}
			return d.order, fmt.Errorf("failed to read transport stream: %w", err)
		}
		if data.PMT != nil {
			d.pmt(data.PMT)
			return d.order, nil
		}
	}
}

func (d *Demuxer) pmt(pmt *astits.PMTData) {
	for _, es := range pmt.ElementaryStreams {
		if _, ok := d.streams[es.ElementaryPID]; ok {
			continue
		}

		s := &Stream{PID: es.ElementaryPID, StreamType: uint8(es.StreamType)}
		switch s.StreamType {
		case streamTypeH264:
			s.Kind = KindH264
		case streamTypeH265:
			s.Kind = KindH265
		}
		for _, desc := range es.ElementaryStreamDescriptors {
			switch {
			case desc.Teletext != nil:
				s.Kind = KindTeletext
				for _, item := range desc.Teletext.Items {
					if s.Language == "" {
						s.Language = string(item.Language[:])
					}
					if s.Page == 0 && isSubtitlePage(item.Type) {
						s.Page = TeletextPage(item.Magazine, item.Page)
						s.Language = string(item.Language[:])
					}
				}
			case desc.Subtitling != nil && s.Kind == KindOther:
				s.Kind = KindDVBSubtitle
				if len(desc.Subtitling.Items) > 0 {
					s.Language = string(desc.Subtitling.Items[0].Language[:])
				}
			case desc.ISO639LanguageAndAudioType != nil && s.Language == "":
				s.Language = string(desc.ISO639LanguageAndAudioType.Language[:])
			}
		}

		d.streams[s.PID] = s
		d.order = append(d.order, s)
		d.logger.Infow("Found stream", "pid", s.PID, "kind", s.Kind, "language", s.Language)
		if d.opts.OnStream != nil {
			d.opts.OnStream(s)
		}
	}
}

// teletext descriptor types 0x02 (subtitles) and 0x05 (subtitles for the
// hearing impaired)
func isSubtitlePage(t uint8) bool {
	return t == 0x02 || t == 0x05
}

// TeletextPage converts a descriptor's magazine and decimal page number to
// the magazine<<8 | BCD page form used by the teletext decoder
func TeletextPage(magazine, page uint8) int {
	m := int(magazine & 0x07)
	if m == 0 {
		m = 8
	}
	return m<<8 | int(page/10%10)<<4 | int(page%10)
}

func (d *Demuxer) pes(pid uint16, pes *astits.PESData) {
	s, ok := d.streams[pid]
	if !ok {
		return
	}

	pts, ok := d.pts(pes)
	if !ok {
		d.logger.Debugw("PES without PTS", "pid", pid)
		return
	}

	switch s.Kind {
	case KindTeletext:
		if d.opts.OnTeletext != nil {
			d.opts.OnTeletext(s, pes.Data, pts)
		}
	case KindH264, KindH265:
		if d.opts.OnVideo != nil {
			d.opts.OnVideo(s, pes.Data, pts)
		}
	case KindOther:
		// private streams without a descriptor: sniff for EBU teletext
		if s.StreamType == streamTypePrivateData && pes.Header != nil &&
			pes.Header.StreamID == streamIDPrivate1 && isTeletextPayload(pes.Data) {
			s.Kind = KindTeletext
			d.logger.Infow("Detected teletext without descriptor", "pid", pid)
			if d.opts.OnTeletext != nil {
				d.opts.OnTeletext(s, pes.Data, pts)
			}
		}
	}
}

func isTeletextPayload(b []byte) bool {
	return len(b) > 0 && b[0] >= dataIDTeletextFirst && b[0] <= dataIDTeletextLast
}

func (d *Demuxer) pts(pes *astits.PESData) (time.Duration, bool) {
	if pes.Header == nil || pes.Header.OptionalHeader == nil || pes.Header.OptionalHeader.PTS == nil {
		return 0, false
	}
	return d.clock.time(pes.Header.OptionalHeader.PTS.Base), true
}
