package vobsub

import (
	"encoding/binary"
	"time"
)

const sectorSize = 2048

// PTS is unknown for this payload
const noPTS = time.Duration(-1)

// subtitle payload of one PES packet
type pesPayload struct {
	data []byte
	pts  time.Duration
}

// splits buf into program stream sectors and returns the subpicture
// payloads in stream order. Sectors that cannot be handled are skipped;
// their count is reported through skipped.
func demuxSectors(buf []byte, skipped func(sector int, err error)) []pesPayload {
	var out []pesPayload
	for n := 0; len(buf) >= sectorSize; n++ {
		payloads, err := demuxSector(buf[:sectorSize])
		if err != nil {
			skipped(n, err)
		}
		out = append(out, payloads...)
		buf = buf[sectorSize:]
	}
	return out
}

func demuxSector(buf []byte) ([]pesPayload, error) {
	if buf[13]&7 != 0 {
		return nil, ErrStuffing
	}
	buf = buf[14:]

	var out []pesPayload
	for len(buf) >= 6 {
		startcode := binary.BigEndian.Uint32(buf)
		pesLen := int(binary.BigEndian.Uint16(buf[4:]))
		buf = buf[6:]
		if pesLen < 3 || pesLen > len(buf) {
			break
		}

		switch {
		case startcode == 0x1bd, startcode == 0x1bf,
			startcode >= 0x1c0 && startcode <= 0x1df,
			startcode >= 0x1e0 && startcode <= 0x1ef:
			if p, ok := demuxPES(startcode, buf[:pesLen]); ok {
				out = append(out, p)
			}
		}
		buf = buf[pesLen:]
	}
	return out, nil
}

// strips the MPEG-2 PES header and the private stream id
func demuxPES(startcode uint32, buf []byte) (pesPayload, bool) {
	marker, flags, hlen := buf[0], buf[1], int(buf[2])
	buf = buf[3:]
	if len(buf) < hlen || marker&0xc0 != 0x80 {
		return pesPayload{}, false
	}

	pts := noPTS
	switch flags & 0xc0 {
	case 0xc0:
		if hlen < 10 {
			return pesPayload{}, false
		}
		pts = readPTS(buf)
	case 0x80:
		if hlen < 5 {
			return pesPayload{}, false
		}
		pts = readPTS(buf)
	}
	buf = buf[hlen:]

	if startcode == 0x1bd {
		if len(buf) < 1 {
			return pesPayload{}, false
		}
		startcode = uint32(buf[0])
		buf = buf[1:]
	}
	if startcode < 0x20 || startcode > 0x3f {
		return pesPayload{}, false
	}
	return pesPayload{data: buf, pts: pts}, true
}

// 33-bit 90 kHz timestamp spread over five bytes with marker bits
func readPTS(b []byte) time.Duration {
	v := int64(b[0]>>1&0x07) << 30
	v |= int64(binary.BigEndian.Uint16(b[1:])>>1) << 15
	v |= int64(binary.BigEndian.Uint16(b[3:]) >> 1)
	return ticksToDuration(v)
}

func ticksToDuration(ticks int64) time.Duration {
	return time.Duration(ticks) * time.Second / 90000
}

// reassembles subpicture units that span several PES packets. The first
// two bytes of a unit give its total size.
type spuAssembler struct {
	buf  []byte
	size int
	pts  time.Duration
}

// feeds one payload and returns the units it completes
func (a *spuAssembler) push(p pesPayload) []spuUnit {
	var out []spuUnit
	data := p.data
	pts := p.pts
	for len(data) > 0 {
		if len(a.buf) == 0 {
			if len(data) < 2 {
				return out
			}
			a.size = int(binary.BigEndian.Uint16(data))
			a.pts = pts
			if a.size < 4 {
				return out
			}
		}
		n := min(a.size-len(a.buf), len(data))
		a.buf = append(a.buf, data[:n]...)
		data = data[n:]
		pts = noPTS

		if len(a.buf) == a.size {
			out = append(out, spuUnit{data: a.buf, pts: a.pts})
			a.buf = nil
		}
	}
	return out
}

// one complete subpicture unit
type spuUnit struct {
	data []byte
	pts  time.Duration
}
