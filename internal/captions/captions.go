package captions

import (
	"slices"
	"time"

	"github.com/zsiec/ccx"

	"github.com/mgpai22/subtrack/internal/logging"
	"github.com/mgpai22/subtrack/internal/overlay"
	"github.com/mgpai22/subtrack/internal/settings"
	"github.com/mgpai22/subtrack/internal/subtitle"
	"github.com/mgpai22/subtrack/internal/textstyle"
)

const (
	nalTypeSEI       = 6
	nalTypeHEVCSEI   = 39
	hevcHeaderLength = 2
)

// CEA-708 services are numbered after the four CEA-608 channels
const serviceChannelBase = 6

type Options struct {
	// CC1-CC4 are 1-4, CEA-708 services are 7 and up; 0 decodes all
	Channel int

	// receives every finished caption; nil pushes it to Queue
	OnCue func(c *subtitle.Cue)
	Queue *overlay.Queue

	Appearance *settings.Appearance
	Logger     *logging.Logger
}

// caption shown on one channel until the next one replaces it
type pending struct {
	text  string
	start time.Duration
}

// Decoder turns caption data carried in H.264 SEI messages into text
// cues on the captions layer. Not safe for concurrent use.
type Decoder struct {
	opts   Options
	logger *logging.Logger
	prefix textstyle.Stream

	cea608 map[int]*ccx.CEA608Decoder
	cea708 map[int]*ccx.CEA708Service
	dtvcc  []byte

	// control pairs are sent twice; the repeat is dropped per field
	lastCtrl [2][2]byte
	wasCtrl  [2]bool

	shown   map[int]*pending
	lastPTS time.Duration
}

func NewDecoder(opts Options) *Decoder {
	a := settings.Default()
	if opts.Appearance != nil {
		a = opts.Appearance.Clamp()
	}
	d := &Decoder{
		opts:   opts,
		logger: logging.OrNop(opts.Logger).Named("captions"),
		prefix: a.TextPrefix(),
		cea608: map[int]*ccx.CEA608Decoder{},
		cea708: map[int]*ccx.CEA708Service{},
		shown:  map[int]*pending{},
	}
	for ch := 1; ch <= 4; ch++ {
		d.cea608[ch] = ccx.NewCEA608Decoder()
	}
	for svc := 1; svc <= 6; svc++ {
		d.cea708[svc] = ccx.NewCEA708Service()
	}
	return d
}

// DecodeH264 scans an Annex B access unit for caption SEI messages
func (d *Decoder) DecodeH264(data []byte, pts time.Duration) {
	for _, nal := range nalUnits(data, 1) {
		if nal[0]&0x1f == nalTypeSEI {
			d.DecodeSEI(nal, pts)
		}
	}
}

// DecodeH265 is DecodeH264 for HEVC prefix SEI units
func (d *Decoder) DecodeH265(data []byte, pts time.Duration) {
	for _, nal := range nalUnits(data, hevcHeaderLength+1) {
		if (nal[0]>>1)&0x3f == nalTypeHEVCSEI {
			d.DecodeSEI(nal, pts)
		}
	}
}

// DecodeSEI handles one SEI NAL unit, header byte included
func (d *Decoder) DecodeSEI(nal []byte, pts time.Duration) {
	d.lastPTS = pts
	cd := ccx.ExtractCaptions(nal)
	if cd == nil {
		return
	}

	for _, pair := range cd.CC608Pairs {
		cc1, cc2 := pair.Data[0], pair.Data[1]
		f := pair.Field & 1
		if cc1 >= 0x10 && cc1 <= 0x1f {
			cp := [2]byte{cc1, cc2}
			if d.wasCtrl[f] && d.lastCtrl[f] == cp {
				d.wasCtrl[f] = false
				continue
			}
			d.lastCtrl[f] = cp
			d.wasCtrl[f] = true
		} else {
			d.wasCtrl[f] = false
		}

		dec := d.cea608[pair.Channel]
		if dec == nil {
			continue
		}
		if text := dec.Decode(cc1, cc2); text != "" {
			d.caption(pair.Channel, text, pts)
		}
	}

	for _, t := range cd.DTVCC {
		if t.Start {
			d.drainDTVCC(pts)
			d.dtvcc = d.dtvcc[:0]
		}
		d.dtvcc = append(d.dtvcc, t.Data[0], t.Data[1])
	}
}

func (d *Decoder) drainDTVCC(pts time.Duration) {
	if len(d.dtvcc) < 1 {
		return
	}
	size := ccx.DTVCCPacketSize(d.dtvcc[0])
	if len(d.dtvcc) < size {
		d.logger.Debugw("Short DTVCC packet", "have", len(d.dtvcc), "want", size)
		return
	}
	defer func() { d.dtvcc = d.dtvcc[size:] }()
	for _, block := range ccx.ParseDTVCCPacket(d.dtvcc[:size]) {
		svc := d.cea708[block.ServiceNum]
		if svc == nil || !svc.ProcessBlock(block.Data) {
			continue
		}
		if text := svc.DisplayText(); text != "" {
			d.caption(block.ServiceNum+serviceChannelBase, text, pts)
		}
	}
}

// a new text on a channel replaces what it showed before
func (d *Decoder) caption(channel int, text string, pts time.Duration) {
	if d.opts.Channel != 0 && channel != d.opts.Channel {
		return
	}
	if prev := d.shown[channel]; prev != nil {
		if prev.text == text {
			return
		}
		d.emit(channel, prev, pts)
	}
	d.shown[channel] = &pending{text: text, start: pts}
}

// Flush emits the captions still on screen, for end of stream
func (d *Decoder) Flush() {
	d.drainDTVCC(d.lastPTS)
	d.dtvcc = d.dtvcc[:0]
	for ch, p := range d.shown {
		d.emit(ch, p, subtitle.Unset)
		delete(d.shown, ch)
	}
}

func (d *Decoder) emit(channel int, p *pending, next time.Duration) {
	c := &subtitle.Cue{Event: overlay.Event{
		Kind:    overlay.KindText,
		Start:   p.start,
		Layer:   overlay.LayerCaptions,
		Padding: overlay.Padding{Left: -1},
		Text:    slices.Clip(d.prefix).AppendText(p.text),
	}}

	est := p.start + subtitle.EstimateDuration(len(p.text))
	c.Stop = est
	c.StopEstimated = true
	if next != subtitle.Unset && next < est {
		c.Stop = next
		c.StopEstimated = false
	}
	if c.Stop <= c.Start {
		c.Stop = c.Start + time.Millisecond
	}

	d.logger.Debugw("Caption", "channel", channel, "start", c.Start, "stop", c.Stop, "text", p.text)
	switch {
	case d.opts.OnCue != nil:
		d.opts.OnCue(c)
	case d.opts.Queue != nil:
		d.opts.Queue.Push(&c.Event)
	}
}
