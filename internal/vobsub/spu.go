package vobsub

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/mgpai22/subtrack/internal/overlay"
)

// SPU display control commands
const (
	cmdForceStart = 0x00
	cmdStart      = 0x01
	cmdStop       = 0x02
	cmdPalette    = 0x03
	cmdAlpha      = 0x04
	cmdWindow     = 0x05
	cmdOffsets    = 0x06
	cmdChangeCon  = 0x07
)

// decoded subpicture: indexed pixels plus the display controls
type Picture struct {
	// relative to the unit's timestamp; Stop is 0 when the unit never
	// ends the display
	Start time.Duration
	Stop  time.Duration

	X, Y          int
	Width, Height int

	// 2-bit pixel value to clut index and 4-bit alpha
	Palette [4]uint8
	Alpha   [4]uint8

	// one clut-relative index per pixel
	Pix []byte
}

// parses the control sequences of a subpicture unit and inflates its
// bitmap. A field with corrupt run lengths is left blank and reported
// through the returned error; the picture is still usable.
func decodeSPU(data []byte) (*Picture, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("vobsub: subpicture unit of %d bytes", len(data))
	}

	p := &Picture{}
	var (
		x1, y1, x2, y2 int
		offset1        = -1
		offset2        = -1
	)

	cmdPos := int(binary.BigEndian.Uint16(data[2:]))
	for seen := 0; cmdPos+4 <= len(data) && seen < 64; seen++ {
		date := int(binary.BigEndian.Uint16(data[cmdPos:]))
		next := int(binary.BigEndian.Uint16(data[cmdPos+2:]))
		at := ticksToDuration(int64(date) << 10)

		pos := cmdPos + 4
	commands:
		for pos < len(data) {
			cmd := data[pos]
			pos++
			switch cmd {
			case cmdForceStart, cmdStart:
				p.Start = at
			case cmdStop:
				p.Stop = at
			case cmdPalette:
				if len(data)-pos < 2 {
					break commands
				}
				p.Palette = nibbles(data[pos:])
				pos += 2
			case cmdAlpha:
				if len(data)-pos < 2 {
					break commands
				}
				p.Alpha = nibbles(data[pos:])
				pos += 2
			case cmdWindow:
				if len(data)-pos < 6 {
					break commands
				}
				b := data[pos:]
				x1 = int(b[0])<<4 | int(b[1])>>4
				x2 = int(b[1]&0x0f)<<8 | int(b[2])
				y1 = int(b[3])<<4 | int(b[4])>>4
				y2 = int(b[4]&0x0f)<<8 | int(b[5])
				pos += 6
			case cmdOffsets:
				if len(data)-pos < 4 {
					break commands
				}
				offset1 = int(binary.BigEndian.Uint16(data[pos:]))
				offset2 = int(binary.BigEndian.Uint16(data[pos+2:]))
				pos += 4
			case cmdChangeCon:
				// color/contrast changes per line are not rendered
				if len(data)-pos < 2 {
					break commands
				}
				pos += int(binary.BigEndian.Uint16(data[pos:]))
			default:
				break commands
			}
		}

		if next == cmdPos {
			break
		}
		cmdPos = next
	}

	p.X, p.Y = x1, y1
	p.Width = x2 - x1 + 1
	p.Height = y2 - y1 + 1
	if offset1 < 0 || offset2 < 0 || p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("vobsub: subpicture without bitmap")
	}

	p.Pix = make([]byte, p.Width*p.Height)
	even := (p.Height + 1) / 2
	odd := p.Height / 2
	err1 := decodeRLE(p.Pix, p.Width*2, p.Width, even, data, offset1*2)
	if err1 != nil {
		p.clearField(0)
	}
	var err2 error
	if odd > 0 {
		err2 = decodeRLE(p.Pix[p.Width:], p.Width*2, p.Width, odd, data, offset2*2)
		if err2 != nil {
			p.clearField(1)
		}
	}
	return p, errors.Join(err1, err2)
}

// blanks every other row starting at first
func (p *Picture) clearField(first int) {
	for y := first; y < p.Height; y += 2 {
		clear(p.Pix[y*p.Width : (y+1)*p.Width])
	}
}

// high nibble of the first byte is entry 3
func nibbles(b []byte) [4]uint8 {
	return [4]uint8{b[1] & 0x0f, b[1] >> 4, b[0] & 0x0f, b[0] >> 4}
}

// renders the indexed picture through clut (packed 0xBBGGRR) into an
// RGBA bitmap; the 4-bit alpha is scaled to 8 bits
func (p *Picture) Render(clut *[16]uint32) *overlay.Bitmap {
	bm := overlay.NewBitmap(p.Width, p.Height)
	var rgba [4][4]byte
	for i := range rgba {
		c := clut[p.Palette[i]&0x0f]
		rgba[i] = [4]byte{byte(c), byte(c >> 8), byte(c >> 16), p.Alpha[i] * 0x11}
	}
	for i, v := range p.Pix {
		copy(bm.Pix[i*4:i*4+4], rgba[v&3][:])
	}
	return bm
}
