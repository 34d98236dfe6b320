package subtitle

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/mgpai22/subtrack/internal/overlay"
)

func movTextSample(text string, trailer []byte) []byte {
	buf := binary.BigEndian.AppendUint16(nil, uint16(len(text)))
	buf = append(buf, text...)
	return append(buf, trailer...)
}

func TestMovText(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		want   string
		wantOK bool
	}{
		{"plain", movTextSample("Hello", nil), "Hello", true},
		{"style box dropped", movTextSample("Hi", []byte{0, 0, 0, 12, 's', 't', 'y', 'l'}), "Hi", true},
		{"empty sample", movTextSample("", nil), "", true},
		{"truncated", []byte{0}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MovText(tt.data)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("MovText() = %q, %v, want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestPacketDecoderText(t *testing.T) {
	queue := overlay.NewQueue()
	dec := NewPacketDecoder(CodecMovText, nil, queue, Options{})

	dec.Decode(Packet{Data: movTextSample("<i>Hello</i>", nil), PTS: time.Second, Duration: 2 * time.Second})
	dec.Decode(Packet{Data: movTextSample("Open ended", nil), PTS: 5 * time.Second})
	dec.Decode(Packet{Data: []byte{1}, PTS: 9 * time.Second})

	if queue.Len() != 2 {
		t.Fatalf("queue holds %d events, want 2", queue.Len())
	}
	first := queue.Pop()
	if first.Text.Text() != "Hello" || first.Start != time.Second || first.Stop != 3*time.Second {
		t.Errorf("first event = %q %v-%v", first.Text.Text(), first.Start, first.Stop)
	}
	second := queue.Pop()
	if !second.StopEstimated || second.Stop != 5*time.Second+EstimateDuration(len("Open ended")) {
		t.Errorf("second event stop = %v estimated=%v", second.Stop, second.StopEstimated)
	}
}

func TestPacketDecoderASS(t *testing.T) {
	header := []byte(`[Script Info]
PlayResX: 640
PlayResY: 480

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, Bold, Italic, Alignment, MarginL, MarginR, MarginV
Style: Default,Arial,20,&H00FFFFFF,0,0,2,10,10,10

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`)
	queue := overlay.NewQueue()
	dec := NewPacketDecoder(CodecASS, header, queue, Options{})

	dec.Decode(Packet{
		Data: []byte("Dialogue: 0,0:00:01.00,0:00:02.50,Default,,0,0,0,,Hello\\Nthere"),
		PTS:  time.Second,
	})
	dec.Decode(Packet{Data: []byte("Comment: ignored"), PTS: 2 * time.Second})

	events := queue.Peek()
	if len(events) != 3 {
		t.Fatalf("queue holds %d events, want timed flush, dialogue, timed flush", len(events))
	}
	if events[0].Kind != overlay.KindTimedFlush || events[0].Start != time.Second {
		t.Errorf("first event = %s at %v", events[0].Kind, events[0].Start)
	}
	dlg := events[1]
	if dlg.Kind != overlay.KindText || dlg.Text.Text() != "Hello\nthere" {
		t.Errorf("dialogue = %s %q", dlg.Kind, dlg.Text.Text())
	}
	if dlg.Start != time.Second || dlg.Stop != 2500*time.Millisecond {
		t.Errorf("dialogue times = %v-%v", dlg.Start, dlg.Stop)
	}
	if dlg.CanvasWidth != 640 || dlg.CanvasHeight != 480 {
		t.Errorf("canvas = %dx%d", dlg.CanvasWidth, dlg.CanvasHeight)
	}
}
