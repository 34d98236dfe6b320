package subtitle

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/mgpai22/subtrack/internal/overlay"
	"github.com/mgpai22/subtrack/internal/textstyle"
)

// codec of a subtitle stream muxed into a media container
type Codec int

const (
	CodecText    Codec = iota // plain or SubRip-style markup
	CodecMovText              // 3GPP timed text, 16-bit length prefix
	CodecASS
)

// one subtitle access unit from a container
type Packet struct {
	Data     []byte
	PTS      time.Duration
	Duration time.Duration // 0 when unknown
}

const packetTagFlags = textstyle.HTMLTags | textstyle.HTMLEntities | textstyle.SloppyTags

// turns container packets into overlay events as they arrive
type PacketDecoder struct {
	codec  Codec
	script *ASSScript
	opts   Options
	queue  *overlay.Queue
}

// header is the codec private data, only used for ASS
func NewPacketDecoder(codec Codec, header []byte, queue *overlay.Queue, opts Options) *PacketDecoder {
	d := &PacketDecoder{codec: codec, opts: opts, queue: queue}
	if codec == CodecASS {
		d.script = ParseASSHeader(header)
	}
	return d
}

func (d *PacketDecoder) Decode(pkt Packet) {
	switch d.codec {
	case CodecASS:
		// nothing earlier than this packet can still be pending
		d.queue.TimedFlush(pkt.PTS)
		line, ok := bytes.CutPrefix(pkt.Data, []byte("Dialogue:"))
		if !ok {
			return
		}
		if c := d.script.decodeDialogue(string(line), d.opts); c != nil {
			d.queue.Push(&c.Event)
		}

	default:
		text := string(pkt.Data)
		if d.codec == CodecMovText {
			var ok bool
			if text, ok = MovText(pkt.Data); !ok {
				return
			}
		}

		stop := Unset
		if pkt.Duration > 0 {
			stop = pkt.PTS + pkt.Duration
		}
		c := PacketCue(text, pkt.PTS, stop, d.opts)
		d.queue.Push(&c.Event)
	}
}

// text of a 3GPP timed text sample with its style boxes dropped
func MovText(data []byte) (string, bool) {
	if len(data) < 2 {
		return "", false
	}
	n := int(binary.BigEndian.Uint16(data))
	data = data[2:]
	if n < len(data) {
		data = data[:n]
	}
	return string(data), true
}

// cue for the text of one container packet; stop may be Unset
func PacketCue(text string, start, stop time.Duration, opts Options) *Cue {
	return renderCleartext(text, start, stop, packetTagFlags, opts)
}
