package teletext

import (
	"fmt"
	"time"

	"github.com/mgpai22/subtrack/internal/logging"
	"github.com/mgpai22/subtrack/internal/overlay"
	"github.com/mgpai22/subtrack/internal/settings"
	"github.com/mgpai22/subtrack/internal/subtitle"
	"github.com/mgpai22/subtrack/internal/textstyle"
)

// EBU data unit ids
const (
	UnitNonSubtitle = 0x02
	UnitSubtitle    = 0x03
)

// size of a data unit payload: clock run-in, framing code, 2 address
// bytes and 40 data bytes
const UnitSize = 44

const (
	rows = 25
	cols = 40
)

// a header closing a page hides it this long before its own timestamp
const headerLead = 40 * time.Millisecond

type transmissionMode int

const (
	modeParallel transmissionMode = iota
	modeSerial
)

func (m transmissionMode) String() string {
	if m == modeSerial {
		return "serial"
	}
	return "parallel"
}

// page buffer with its display interval
type Page struct {
	Number int // magazine<<8 | BCD page, e.g. 0x888
	Show   time.Duration
	Hide   time.Duration
	Text   [rows][cols]rune

	tainted bool
}

func (p *Page) reset() {
	p.Text = [rows][cols]rune{}
	p.tainted = false
}

type Options struct {
	// page to decode as magazine<<8 | BCD page number; 0 selects the first
	// page flagged as subtitles
	Page int

	// receives every finished page; nil pushes the rendered cue to Queue
	OnCue func(c *subtitle.Cue)
	Queue *overlay.Queue

	Appearance *settings.Appearance
	Fonts      *textstyle.FontRegistry
	Logger     *logging.Logger
}

// Decoder holds everything one teletext elementary stream needs between
// packets. It is not safe for concurrent use; separate streams get separate
// decoders.
type Decoder struct {
	opts   Options
	logger *logging.Logger
	prefix textstyle.Stream

	page      int
	page0     Page
	receiving bool
	mode      transmissionMode
	cs        charset

	// X/28 and M/29 designations, noSubset when not seen
	x28 byte
	m29 byte

	// bit (m-1) set in entry i when page m<<8|i is flagged as subtitles
	ccMap [256]byte

	// timestamp of the latest data unit, stop of a page flushed at end of
	// stream
	lastTS time.Duration
}

func NewDecoder(opts Options) *Decoder {
	a := settings.Default()
	if opts.Appearance != nil {
		a = opts.Appearance.Clamp()
	}
	if opts.Fonts == nil {
		opts.Fonts = textstyle.DefaultFonts()
	}
	return &Decoder{
		opts:   opts,
		logger: logging.OrNop(opts.Logger).Named("teletext"),
		prefix: a.TextPrefix(),
		page:   opts.Page,
		cs:     newCharset(),
		x28:    noSubset,
		m29:    noSubset,
		lastTS: subtitle.Unset,
	}
}

// page being decoded, 0 until one is selected
func (d *Decoder) Page() int {
	return d.page
}

// Decode handles one bit-reversed data unit payload of UnitSize bytes
// stamped with ts.
func (d *Decoder) Decode(unit byte, data []byte, ts time.Duration) {
	if len(data) < UnitSize {
		d.logger.Debugw("Short data unit", "size", len(data))
		return
	}
	d.lastTS = ts

	a0, ok0 := Unham84(data[2])
	a1, ok1 := Unham84(data[3])
	if !ok0 || !ok1 {
		d.logger.Debugw("Dropping packet with damaged address", "ts", ts)
		return
	}
	address := a1<<4 | a0
	m := int(address & 0x07)
	if m == 0 {
		m = 8
	}
	y := int(address >> 3 & 0x1f)
	payload := data[4:UnitSize]

	var designation byte
	if y > 25 {
		designation = unham(payload[0])
	}

	switch {
	case y == 0:
		d.header(unit, m, payload, ts)

	case y >= 1 && y <= 23:
		if m != d.magazine() || !d.receiving {
			return
		}
		for i, b := range payload {
			if d.page0.Text[y][i] == 0 {
				d.page0.Text[y][i] = d.cs.char(b)
			}
		}
		d.page0.tainted = true

	case y == 26:
		if m != d.magazine() || !d.receiving {
			return
		}
		d.enhancement(payload)

	case y == 28:
		if m != d.magazine() || !d.receiving || (designation != 0 && designation != 4) {
			return
		}
		t, ok := triplet(payload[1:])
		if !ok {
			d.logger.Debugw("Unrecoverable X/28 triplet", "ts", ts)
			return
		}
		if t&0x0f == 0 {
			d.x28 = byte(t & 0x3f80 >> 7)
			d.remap(d.x28)
		}

	case y == 29:
		if m != d.magazine() || (designation != 0 && designation != 4) {
			return
		}
		t, ok := triplet(payload[1:])
		if !ok {
			d.logger.Debugw("Unrecoverable M/29 triplet", "ts", ts)
			return
		}
		if t&0xff == 0 {
			d.m29 = byte(t & 0x3f80 >> 7)
			if d.x28 == noSubset {
				d.remap(d.m29)
			}
		}

	case y == 30 && m == 8:
		d.serviceData(payload)
	}
}

func (d *Decoder) magazine() int {
	m := d.page >> 8 & 0x0f
	if m == 0 {
		m = 8
	}
	return m
}

func (d *Decoder) header(unit byte, m int, payload []byte, ts time.Duration) {
	units := int(unham(payload[1]))<<4 | int(unham(payload[0]))
	flag := unham(payload[5]) & 0x08 >> 3
	d.ccMap[units] |= flag << (m - 1)

	if d.page == 0 && flag == 1 && units < 0xff {
		d.page = m<<8 | units
		d.logger.Infow("Tracking subtitle page", "page", fmt.Sprintf("%03x", d.page))
	}

	number := m<<8 | units
	control := unham(payload[7])
	charset := control & 0x0e >> 1
	mode := modeParallel
	if control&0x01 == 1 {
		mode = modeSerial
	}
	if mode != d.mode {
		d.logger.Debugw("Transmission mode", "mode", mode)
		d.mode = mode
	}

	if d.mode == modeParallel && unit != UnitSubtitle {
		return
	}

	if d.receiving && number != d.page &&
		(d.mode == modeSerial || m == d.magazine()) {
		d.receiving = false
		return
	}
	if number != d.page {
		return
	}

	if d.page0.tainted {
		d.page0.Hide = ts - headerLead
		d.emit()
	}

	d.page0.reset()
	d.page0.Number = number
	d.page0.Show = ts
	d.page0.Hide = subtitle.Unset
	d.receiving = true
	d.x28 = noSubset
	if d.m29 != noSubset {
		d.remap(d.m29)
	} else {
		d.remap(charset)
	}
}

func (d *Decoder) remap(c byte) {
	if c == d.cs.current {
		return
	}
	if !d.cs.remap(c) {
		d.logger.Debugw("Unsupported character set", "designation", fmt.Sprintf("%#x", c))
		return
	}
	d.logger.Debugw("Character set", "designation", fmt.Sprintf("%#x", c), "language", subsetLanguage(c))
}

// reads the Hamming 24/18 triplet stored LSB first in b[0:3]
func triplet(b []byte) (uint32, bool) {
	return Unham2418(uint32(b[2])<<16 | uint32(b[1])<<8 | uint32(b[0]))
}

// applies the X/26 triplets: row/column addressing, G2 symbols and
// accented letters written over the page
func (d *Decoder) enhancement(payload []byte) {
	row, col := 0, 0
	for j, i := 0, 1; i+2 < len(payload) && j < 13; j, i = j+1, i+3 {
		t, ok := triplet(payload[i:])
		if !ok {
			d.logger.Debugw("Skipping damaged X/26 triplet", "triplet", j)
			continue
		}

		data := byte(t & 0x3f800 >> 11)
		mode := byte(t & 0x7c0 >> 6)
		address := int(t & 0x3f)
		rowGroup := address >= 40 && address <= 63

		switch {
		case mode == 0x04 && rowGroup:
			row = address - 40
			if row == 0 {
				row = 24
			}
			col = 0

		case mode >= 0x11 && mode <= 0x1f && rowGroup:
			return

		case mode == 0x0f && !rowGroup:
			col = address
			if data > 31 && row > 0 {
				d.page0.Text[row][col] = g2(data)
			}

		case mode >= 0x11 && mode <= 0x1f && !rowGroup:
			col = address
			if row == 0 {
				continue
			}
			if r := accented(mode-0x10, data); r != 0 {
				d.page0.Text[row][col] = r
			} else {
				d.page0.Text[row][col] = d.cs.char(data | parityBit(data))
			}
		}
	}
}

// sets bit 7 so a 7-bit value passes the odd parity check
func parityBit(b byte) byte {
	if parity8[b&0x7f] == 1 {
		return 0
	}
	return 0x80
}

// logs the programme label of broadcast service data packet 8/30
func (d *Decoder) serviceData(payload []byte) {
	designation := unham(payload[0])
	if designation > 1 {
		return
	}
	label := make([]rune, 0, 20)
	for _, b := range payload[20:40] {
		r := g0Latin[0]
		if c := b & 0x7f; c >= 0x20 {
			r = g0Latin[c-0x20]
		}
		label = append(label, r)
	}
	d.logger.Debugw("Programme", "label", string(label))
}

// Flush emits the page still being received, for end of stream
func (d *Decoder) Flush() {
	if !d.page0.tainted {
		return
	}
	d.emit()
	d.page0.reset()
	d.receiving = false
}

func (d *Decoder) emit() {
	p := &d.page0
	markup := Render(p)
	if markup == "" {
		p.tainted = false
		return
	}

	c := &subtitle.Cue{Event: overlay.Event{
		Kind:    overlay.KindText,
		Start:   p.Show,
		Stop:    p.Hide,
		Layer:   overlay.LayerTeletext,
		Padding: overlay.Padding{Left: -1},
		Text:    textstyle.Parse(markup, textstyle.HTMLTags|textstyle.HTMLEntities, d.prefix, d.opts.Fonts),
	}}
	switch {
	case p.Hide == subtitle.Unset && d.lastTS > p.Show:
		c.Stop = d.lastTS
	case p.Hide == subtitle.Unset, p.Hide <= p.Show:
		c.Stop = p.Show + time.Millisecond
	}
	p.tainted = false

	d.logger.Debugw("Page", "page", fmt.Sprintf("%03x", p.Number),
		"show", p.Show, "hide", c.Stop, "text", c.PlainText())

	switch {
	case d.opts.OnCue != nil:
		d.opts.OnCue(c)
	case d.opts.Queue != nil:
		d.opts.Queue.Push(&c.Event)
	}
}
