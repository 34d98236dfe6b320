package mp4sub

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/mgpai22/subtrack/internal/subtitle"
)

const ttmlNamespace = "http://www.w3.org/ns/ttml"

type testSample struct {
	decodeTime uint64
	dur        uint32
	data       []byte
}

func ttmlDoc(begin, end, text string) []byte {
	return fmt.Appendf(nil, `<?xml version="1.0" encoding="UTF-8"?>
<tt xmlns="%s"><body><div><p begin="%s" end="%s">%s</p></div></body></tt>`, ttmlNamespace, begin, end, text)
}

// fragmented MP4 with one stpp track at a 1000 Hz timescale, one sample
// per fragment
func buildSTPP(t *testing.T, samples []testSample) []byte {
	t.Helper()
	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(1000, "subtitle", "eng")
	trak := init.Moov.Trak
	if err := trak.SetStppDescriptor(ttmlNamespace, "", ""); err != nil {
		t.Fatalf("SetStppDescriptor: %v", err)
	}

	var buf bytes.Buffer
	if err := init.Encode(&buf); err != nil {
		t.Fatalf("encode init: %v", err)
	}

	seg := mp4.NewMediaSegment()
	for i, s := range samples {
		frag, err := mp4.CreateFragment(uint32(i+1), trak.Tkhd.TrackID)
		if err != nil {
			t.Fatalf("CreateFragment: %v", err)
		}
		frag.AddFullSample(mp4.FullSample{
			Sample: mp4.Sample{
				Flags: mp4.SyncSampleFlags,
				Dur:   s.dur,
				Size:  uint32(len(s.data)),
			},
			DecodeTime: s.decodeTime,
			Data:       s.data,
		})
		seg.AddFragment(frag)
	}
	if err := seg.Encode(&buf); err != nil {
		t.Fatalf("encode segment: %v", err)
	}
	return buf.Bytes()
}

func TestLoadSTPP(t *testing.T) {
	samples := []testSample{
		{decodeTime: 0, dur: 2000, data: ttmlDoc("00:00:00.500", "00:00:01.500", "First")},
		{decodeTime: 10000, dur: 2000, data: ttmlDoc("00:00:00.250", "00:00:01.000", "Second")},
	}
	data := buildSTPP(t, samples)

	tests := []struct {
		name     string
		relative bool
		want     [][2]time.Duration
	}{
		{
			name: "absolute",
			want: [][2]time.Duration{
				{250 * time.Millisecond, time.Second},
				{500 * time.Millisecond, 1500 * time.Millisecond},
			},
		},
		{
			name:     "relative",
			relative: true,
			want: [][2]time.Duration{
				{500 * time.Millisecond, 1500 * time.Millisecond},
				{10250 * time.Millisecond, 11 * time.Second},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			track, err := Load(bytes.NewReader(data), Options{Relative: tt.relative})
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if track.Format != subtitle.FormatTTML {
				t.Errorf("format = %s, want ttml", track.Format)
			}
			if track.Len() != len(tt.want) {
				t.Fatalf("got %d cues, want %d", track.Len(), len(tt.want))
			}
			for i, w := range tt.want {
				c := track.Cues[i]
				if c.Start != w[0] || c.Stop != w[1] {
					t.Errorf("cue %d %q = %v-%v, want %v-%v", i, c.PlainText(), c.Start, c.Stop, w[0], w[1])
				}
			}
		})
	}
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subs.mp4")
	data := buildSTPP(t, []testSample{{dur: 1000, data: ttmlDoc("00:00:01.000", "00:00:02.000", "Hi")}})
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	track, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if track.Len() != 1 || track.Cues[0].PlainText() != "Hi" {
		t.Errorf("cues = %v", track.Cues)
	}

	if _, err := Open(filepath.Join(t.TempDir(), "missing.mp4"), Options{}); !errors.Is(err, subtitle.ErrLoad) {
		t.Errorf("missing file error = %v, want ErrLoad", err)
	}
}

func TestLoadRejectsPlainFiles(t *testing.T) {
	free := []byte{0, 0, 0, 8, 'f', 'r', 'e', 'e'}
	if _, err := Load(bytes.NewReader(free), Options{}); !errors.Is(err, ErrNotFragmented) {
		t.Errorf("error = %v, want ErrNotFragmented", err)
	}
}

func movText(text string) []byte {
	b := binary.BigEndian.AppendUint16(nil, uint16(len(text)))
	b = append(b, text...)
	// trailing style box
	return append(b, 0, 0, 0, 8, 's', 't', 'y', 'l')
}

func TestTx3gSamples(t *testing.T) {
	d := decoder{
		codec:     "tx3g",
		timescale: 90000,
		track:     &subtitle.Track{Format: subtitle.FormatMovText},
	}
	d.sample(&mp4.FullSample{Sample: mp4.Sample{Dur: 180000}, DecodeTime: 90000, Data: movText("Hello")})
	d.sample(&mp4.FullSample{Sample: mp4.Sample{Dur: 45000}, DecodeTime: 270000, Data: movText("")})
	d.sample(&mp4.FullSample{Sample: mp4.Sample{Dur: 0}, DecodeTime: 315000, Data: movText("open")})

	if d.track.Len() != 2 {
		t.Fatalf("got %d cues, want 2", d.track.Len())
	}
	c := d.track.Cues[0]
	if c.PlainText() != "Hello" || c.Start != time.Second || c.Stop != 3*time.Second {
		t.Errorf("cue 0 = %q %v-%v", c.PlainText(), c.Start, c.Stop)
	}
	c = d.track.Cues[1]
	if c.Start != 3500*time.Millisecond || !c.StopEstimated {
		t.Errorf("cue 1 = %v estimated=%v, want an estimated stop", c.Start, c.StopEstimated)
	}
}

func TestDuration(t *testing.T) {
	d := decoder{timescale: 90000}
	tests := []struct {
		ticks int64
		want  time.Duration
	}{
		{0, 0},
		{45000, 500 * time.Millisecond},
		{90000 * 3600 * 24 * 365, 24 * 365 * time.Hour},
	}
	for _, tt := range tests {
		if got := d.duration(tt.ticks); got != tt.want {
			t.Errorf("duration(%d) = %v, want %v", tt.ticks, got, tt.want)
		}
	}
}
