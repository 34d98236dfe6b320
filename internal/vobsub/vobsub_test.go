package vobsub

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mgpai22/subtrack/internal/overlay"
)

// writes run-length codes nibble by nibble
type nibbleWriter struct {
	buf  []byte
	half bool
}

func (w *nibbleWriter) put(n int) {
	if !w.half {
		w.buf = append(w.buf, byte(n<<4))
	} else {
		w.buf[len(w.buf)-1] |= byte(n & 0xf)
	}
	w.half = !w.half
}

func (w *nibbleWriter) code(length, color int) {
	v := length<<2 | color
	switch {
	case length == 0:
		w.put(0)
		w.put(0)
		w.put(0)
		w.put(color)
	case length < 4:
		w.put(v)
	case length < 16:
		w.put(v >> 4)
		w.put(v)
	case length < 64:
		w.put(v >> 8)
		w.put(v >> 4)
		w.put(v)
	default:
		w.put(v >> 12)
		w.put(v >> 8)
		w.put(v >> 4)
		w.put(v)
	}
}

func (w *nibbleWriter) align() {
	if w.half {
		w.half = false
	}
}

// encodes rows of pix (one byte per pixel, values 0-3) the way DVD
// subpictures do, taking every stride'th row
func encodeRLE(pix []byte, width, first, height int) []byte {
	w := &nibbleWriter{}
	for y := first; y < height; y += 2 {
		row := pix[y*width : (y+1)*width]
		for x := 0; x < width; {
			c := row[x]
			n := 1
			for x+n < width && row[x+n] == c {
				n++
			}
			switch {
			case x+n == width && n > 255:
				w.code(0, int(c))
			case n > 255:
				n = 255
				w.code(n, int(c))
			default:
				w.code(n, int(c))
			}
			x += n
		}
		w.align()
	}
	return w.buf
}

// builds a subpicture unit with a start sequence at date 0 and a stop
// sequence at stopDate (90kHz/1024 ticks)
func buildSPU(pix []byte, x, y, width, height int, palette, alpha [4]uint8, stopDate int) []byte {
	f1 := encodeRLE(pix, width, 0, height)
	f2 := encodeRLE(pix, width, 1, height)
	off1 := 4
	off2 := off1 + len(f1)
	ctrl := off2 + len(f2)

	x2, y2 := x+width-1, y+height-1
	seq1 := []byte{
		0, 0, 0, 0, // date, next (patched)
		cmdPalette, palette[3]<<4 | palette[2], palette[1]<<4 | palette[0],
		cmdAlpha, alpha[3]<<4 | alpha[2], alpha[1]<<4 | alpha[0],
		cmdWindow,
		byte(x >> 4), byte(x&0xf)<<4 | byte(x2>>8), byte(x2),
		byte(y >> 4), byte(y&0xf)<<4 | byte(y2>>8), byte(y2),
		cmdOffsets, byte(off1 >> 8), byte(off1), byte(off2 >> 8), byte(off2),
		cmdStart,
		0xff,
	}
	seq2Pos := ctrl + len(seq1)
	binary.BigEndian.PutUint16(seq1[2:], uint16(seq2Pos))
	seq2 := []byte{byte(stopDate >> 8), byte(stopDate), byte(seq2Pos >> 8), byte(seq2Pos), cmdStop, 0xff}

	var b bytes.Buffer
	b.Write([]byte{0, 0, 0, 0})
	b.Write(f1)
	b.Write(f2)
	b.Write(seq1)
	b.Write(seq2)
	out := b.Bytes()
	binary.BigEndian.PutUint16(out[0:], uint16(len(out)))
	binary.BigEndian.PutUint16(out[2:], uint16(ctrl))
	return out
}

func encodePTS(d time.Duration) []byte {
	pts := int64(d * 90000 / time.Second)
	return []byte{
		byte(0x21 | (pts>>29)&0x0e),
		byte(pts >> 22),
		byte((pts>>14)&0xfe | 1),
		byte(pts >> 7),
		byte((pts<<1)&0xfe | 1),
	}
}

// wraps payload into one 2048 byte program stream sector
func buildSector(payload []byte, pts time.Duration, stuffing bool) []byte {
	sector := make([]byte, 0, sectorSize)
	pack := []byte{0, 0, 1, 0xba, 0x44, 0, 4, 0, 4, 1, 0x01, 0x89, 0xc3, 0xf8}
	if stuffing {
		pack[13] |= 3
	}
	sector = append(sector, pack...)

	hdr := encodePTS(pts)
	pesLen := 3 + len(hdr) + 1 + len(payload)
	sector = append(sector, 0, 0, 1, 0xbd, byte(pesLen>>8), byte(pesLen), 0x81, 0x80, byte(len(hdr)))
	sector = append(sector, hdr...)
	sector = append(sector, 0x20)
	sector = append(sector, payload...)

	pad := sectorSize - len(sector) - 6
	sector = append(sector, 0, 0, 1, 0xbe, byte(pad>>8), byte(pad))
	return append(sector, make([]byte, pad)...)
}

func TestParseIndexStopBoundary(t *testing.T) {
	idx := `# VobSub index file, v7 (do not modify this line!)
size: 720x480
palette: ff0000, 00ff00, 0000ff, ffffff
id: en, index: 0
timestamp: 00:00:01:000, filepos: 000000000
timestamp: 00:00:04:500, filepos: 000001000
timestamp: 00:0x:04:500, filepos: 000001800
id: de, index: 1
timestamp: 00:00:02:000, filepos: 000002800
`
	x, err := ParseIndex([]byte(idx), 0, 0x10000)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if len(x.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(x.Entries))
	}
	if x.Entries[1].PTS != 4500*time.Millisecond || x.Entries[1].Pos != 0x1000 {
		t.Errorf("unexpected second entry %+v", x.Entries[1])
	}
	if x.Stop != 0x2800 {
		t.Errorf("expected stop at the next track's filepos 0x2800, got %#x", x.Stop)
	}
	if x.End(1) != 0x2800 || x.End(0) != 0x1000 {
		t.Errorf("unexpected ranges %#x %#x", x.End(0), x.End(1))
	}
	if x.StopTime(0) != 4500*time.Millisecond {
		t.Errorf("expected entry 0 to stop at 4.5s, got %v", x.StopTime(0))
	}
	if x.Width != 720 || x.Height != 480 {
		t.Errorf("unexpected size %dx%d", x.Width, x.Height)
	}
	if x.Palette[0] != 0x0000ff || x.Palette[2] != 0xff0000 {
		t.Errorf("expected palette converted to BGR, got %06x %06x", x.Palette[0], x.Palette[2])
	}
	if len(x.Tracks) != 2 || x.Tracks[1].Language != "de" || x.Tracks[1].Index != 1 {
		t.Errorf("unexpected tracks %+v", x.Tracks)
	}
}

func TestParseIndexSelection(t *testing.T) {
	idx := `langidx: 1
id: en, index: 0
timestamp: 00:00:01:000, filepos: 000000000
id: de, index: 1
timestamp: 00:00:02:000, filepos: 000000800
timestamp: 00:00:03:000, filepos: 000001000
`
	tests := []struct {
		name     string
		selected int
		wantPos  int64
		wantStop int64
		wantErr  error
	}{
		{"explicit first", 0, 0, 0x800, nil},
		{"langidx default", AnyTrack, 0x800, 0x4000, nil},
		{"missing", 7, 0, 0, ErrNoEntries},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, err := ParseIndex([]byte(idx), tt.selected, 0x4000)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if x.Entries[0].Pos != tt.wantPos {
				t.Errorf("expected first pos %#x, got %#x", tt.wantPos, x.Entries[0].Pos)
			}
			if x.Stop != tt.wantStop {
				t.Errorf("expected stop %#x, got %#x", tt.wantStop, x.Stop)
			}
		})
	}
}

func TestParseIndexAnyTrack(t *testing.T) {
	tests := []struct {
		name     string
		idx      string
		wantPos  int64
		wantStop int64
	}{
		{
			name: "indexed without langidx",
			idx: "id: en, index: 0\ntimestamp: 00:00:01:000, filepos: 000000000\n" +
				"id: de, index: 1\ntimestamp: 00:00:02:000, filepos: 000000800\n",
			wantPos:  0,
			wantStop: 0x800,
		},
		{
			name: "first track not numbered zero",
			idx: "id: fr, index: 3\ntimestamp: 00:00:01:000, filepos: 000001000\n" +
				"id: it, index: 4\ntimestamp: 00:00:02:000, filepos: 000001800\n",
			wantPos:  0x1000,
			wantStop: 0x1800,
		},
		{
			name:     "no index field",
			idx:      "id: en\ntimestamp: 00:00:01:000, filepos: 000000400\n",
			wantPos:  0x400,
			wantStop: 0x4000,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, err := ParseIndex([]byte(tt.idx), AnyTrack, 0x4000)
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if len(x.Entries) != 1 || x.Entries[0].Pos != tt.wantPos {
				t.Errorf("expected one entry at %#x, got %+v", tt.wantPos, x.Entries)
			}
			if x.Stop != tt.wantStop {
				t.Errorf("expected stop %#x, got %#x", tt.wantStop, x.Stop)
			}
		})
	}
}

func TestRLERoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		width int
		runs  [][2]int // length, color per row
	}{
		{"one nibble", 9, [][2]int{{1, 0}, {3, 1}, {2, 2}, {3, 3}}},
		{"two nibbles", 20, [][2]int{{4, 1}, {15, 2}, {1, 3}}},
		{"three nibbles", 80, [][2]int{{16, 3}, {63, 0}, {1, 1}}},
		{"four nibbles", 300, [][2]int{{64, 2}, {200, 1}, {36, 3}}},
		{"rest of line", 600, [][2]int{{10, 1}, {590, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var row []byte
			for _, r := range tt.runs {
				row = append(row, bytes.Repeat([]byte{byte(r[1])}, r[0])...)
			}
			if len(row) != tt.width {
				t.Fatalf("fixture row has %d pixels, want %d", len(row), tt.width)
			}
			height := 3
			pix := bytes.Repeat(row, height)
			pix[tt.width] = 3 // vary the odd field

			enc := encodeRLE(pix, tt.width, 0, height)
			got := make([]byte, len(pix))
			if err := decodeRLE(got, tt.width*2, tt.width, 2, enc, 0); err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			enc2 := encodeRLE(pix, tt.width, 1, height)
			if err := decodeRLE(got[tt.width:], tt.width*2, tt.width, 1, enc2, 0); err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if !bytes.Equal(got, pix) {
				t.Errorf("round trip mismatch")
			}
		})
	}
}

func TestRLEErrors(t *testing.T) {
	dst := make([]byte, 4)

	// run of 3 in a row of 2
	if err := decodeRLE(dst, 2, 2, 1, []byte{0xd0}, 0); !errors.Is(err, ErrRLE) {
		t.Errorf("expected ErrRLE for overflowing run, got %v", err)
	}
	// truncated data
	if err := decodeRLE(dst, 4, 4, 1, []byte{0x40}, 0); !errors.Is(err, ErrRLE) {
		t.Errorf("expected ErrRLE for truncated data, got %v", err)
	}
}

func TestDecodeSPUDamagedField(t *testing.T) {
	width, height := 4, 2
	pix := []byte{1, 1, 1, 1, 2, 2, 2, 2}
	spu := buildSPU(pix, 10, 20, width, height, [4]uint8{0, 1, 2, 3}, [4]uint8{0, 15, 15, 15}, 100)

	// corrupt the odd field: its single code becomes a run of 15
	f1 := encodeRLE(pix, width, 0, height)
	spu[4+len(f1)] = 0x3e

	p, err := decodeSPU(spu)
	if p == nil {
		t.Fatalf("expected a picture, got error %v", err)
	}
	if !errors.Is(err, ErrRLE) {
		t.Errorf("expected ErrRLE, got %v", err)
	}
	if !bytes.Equal(p.Pix[:4], []byte{1, 1, 1, 1}) {
		t.Errorf("expected even field intact, got %v", p.Pix[:4])
	}
	if !bytes.Equal(p.Pix[4:], []byte{0, 0, 0, 0}) {
		t.Errorf("expected odd field blank, got %v", p.Pix[4:])
	}
}

func TestYUVToBGR(t *testing.T) {
	tests := []struct {
		yuv  uint32
		want uint32
	}{
		{0xeb8080, 0xffffff},
		{0x108080, 0x000000},
		{0x51f05a, 0x0000ff},
	}
	for _, tt := range tests {
		if got := YUVToBGR(tt.yuv); got != tt.want {
			t.Errorf("%06x: expected %06x, got %06x", tt.yuv, tt.want, got)
		}
	}
}

func TestDemuxSectors(t *testing.T) {
	payload := []byte{0, 6, 0, 4, 0xff, 0xff}
	good := buildSector(payload, 3*time.Second, false)
	bad := buildSector(payload, 3*time.Second, true)

	var skipped []error
	out := demuxSectors(append(bad, good...), func(_ int, err error) {
		skipped = append(skipped, err)
	})
	if len(skipped) != 1 || !errors.Is(skipped[0], ErrStuffing) {
		t.Errorf("expected one stuffing error, got %v", skipped)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(out))
	}
	if out[0].pts != 3*time.Second {
		t.Errorf("expected pts 3s, got %v", out[0].pts)
	}
	if !bytes.Equal(out[0].data, payload) {
		t.Errorf("unexpected payload %x", out[0].data)
	}
}

func TestSPUAssembler(t *testing.T) {
	unit := make([]byte, 10)
	binary.BigEndian.PutUint16(unit, 10)
	for i := 2; i < 10; i++ {
		unit[i] = byte(i)
	}

	var a spuAssembler
	if got := a.push(pesPayload{data: unit[:4], pts: time.Second}); len(got) != 0 {
		t.Fatalf("expected no unit from a partial payload")
	}
	got := a.push(pesPayload{data: unit[4:], pts: noPTS})
	if len(got) != 1 {
		t.Fatalf("expected 1 unit, got %d", len(got))
	}
	if got[0].pts != time.Second || !bytes.Equal(got[0].data, unit) {
		t.Errorf("unexpected unit %+v", got[0])
	}
}

func writePair(t *testing.T, spus [][]byte, times []time.Duration) string {
	t.Helper()
	dir := t.TempDir()

	var sub bytes.Buffer
	var idx strings.Builder
	idx.WriteString("# VobSub index file, v7 (do not modify this line!)\n")
	idx.WriteString("size: 720x576\n")
	idx.WriteString("palette: 000000, ff0000, 00ff00, 0000ff, ffffff\n")
	idx.WriteString("id: en, index: 0\n")
	for i, spu := range spus {
		ts := times[i]
		fmt.Fprintf(&idx, "timestamp: %02d:%02d:%02d:%03d, filepos: %09x\n",
			int(ts.Hours()), int(ts.Minutes())%60, int(ts.Seconds())%60, ts.Milliseconds()%1000, sub.Len())
		sub.Write(buildSector(spu, ts, false))
	}

	idxPath := filepath.Join(dir, "movie.idx")
	if err := os.WriteFile(idxPath, []byte(idx.String()), 0644); err != nil {
		t.Fatalf("failed to write index: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "movie.sub"), sub.Bytes(), 0644); err != nil {
		t.Fatalf("failed to write sub: %v", err)
	}
	return idxPath
}

func waitEvent(t *testing.T, q *overlay.Queue) *overlay.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if e := q.Pop(); e != nil {
			return e
		}
		select {
		case <-q.Notify():
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out waiting for an overlay event")
		}
	}
}

func TestTrackDeliversBitmaps(t *testing.T) {
	width, height := 6, 3
	pix := []byte{
		0, 1, 1, 1, 1, 0,
		0, 2, 2, 2, 2, 0,
		3, 3, 3, 3, 3, 3,
	}
	palette := [4]uint8{0, 1, 2, 4}
	alpha := [4]uint8{0, 15, 8, 15}
	// 2 seconds = 2*90000/1024 ticks, rounded down
	spu := buildSPU(pix, 100, 400, width, height, palette, alpha, 175)
	idxPath := writePair(t, [][]byte{spu, spu}, []time.Duration{time.Second, 10 * time.Second})

	q := overlay.NewQueue()
	track, err := Open(idxPath, "", q, Options{Track: 0, Layer: overlay.LayerSubtitles})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer track.Close()

	track.Pick(500*time.Millisecond, 500*time.Millisecond)
	if q.Len() != 0 {
		t.Fatalf("expected nothing before the first entry")
	}

	track.Pick(1500*time.Millisecond, 2500*time.Millisecond)
	e := waitEvent(t, q)
	if e.Kind != overlay.KindBitmap {
		t.Fatalf("expected bitmap event, got %s", e.Kind)
	}
	if e.Start != 2*time.Second {
		t.Errorf("expected start shifted to 2s, got %v", e.Start)
	}
	wantStop := 2*time.Second + ticksToDuration(175<<10)
	if e.Stop != wantStop || e.StopEstimated {
		t.Errorf("expected stop %v from the SPU, got %v (estimated %v)", wantStop, e.Stop, e.StopEstimated)
	}
	if e.X != 100 || e.Y != 400 || e.CanvasWidth != 720 || e.CanvasHeight != 576 {
		t.Errorf("unexpected geometry %d,%d on %dx%d", e.X, e.Y, e.CanvasWidth, e.CanvasHeight)
	}
	bm := e.Bitmap
	if bm.Width != width || bm.Height != height {
		t.Fatalf("unexpected bitmap size %dx%d", bm.Width, bm.Height)
	}
	px := func(x, y int) []byte {
		i := (y*width + x) * 4
		return bm.Pix[i : i+4]
	}
	// index 1 -> clut 1 (ff0000 red), opaque
	if !bytes.Equal(px(1, 0), []byte{0xff, 0, 0, 0xff}) {
		t.Errorf("unexpected pixel %v", px(1, 0))
	}
	// index 2 -> clut 2 (green), alpha 8 scaled
	if !bytes.Equal(px(1, 1), []byte{0, 0xff, 0, 0x88}) {
		t.Errorf("unexpected pixel %v", px(1, 1))
	}
	// index 3 -> clut 4 (white)
	if !bytes.Equal(px(0, 2), []byte{0xff, 0xff, 0xff, 0xff}) {
		t.Errorf("unexpected pixel %v", px(0, 2))
	}
	if px(0, 0)[3] != 0 {
		t.Errorf("expected transparent background, got %v", px(0, 0))
	}

	// same entry again: nothing new
	track.Pick(1600*time.Millisecond, 2600*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	if q.Len() != 0 {
		t.Errorf("expected no redelivery of the active entry")
	}

	track.Seek()
	if e := q.Pop(); e == nil || e.Kind != overlay.KindFlush {
		t.Fatalf("expected flush after seek, got %v", e)
	}
	track.Pick(10*time.Second, 10*time.Second)
	e = waitEvent(t, q)
	if e.Start != 10*time.Second {
		t.Errorf("expected second entry at 10s, got %v", e.Start)
	}

	if err := track.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := track.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}

func TestTrackDecode(t *testing.T) {
	pix := []byte{1, 2, 3, 1}
	spu := buildSPU(pix, 0, 0, 2, 2, [4]uint8{0, 1, 2, 3}, [4]uint8{15, 15, 15, 15}, 0)
	idxPath := writePair(t, [][]byte{spu}, []time.Duration{3 * time.Second})

	track, err := Open(idxPath, "", overlay.NewQueue(), Options{Track: AnyTrack})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer track.Close()

	events, err := track.Decode(0)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Start != 3*time.Second || e.Stop != 8*time.Second || !e.StopEstimated {
		t.Errorf("expected estimated 3s-8s for the last entry, got %v-%v (%v)", e.Start, e.Stop, e.StopEstimated)
	}

	if _, err := track.Decode(5); err == nil {
		t.Errorf("expected out of range error")
	}
}

func TestDecodeClampsBackwardStop(t *testing.T) {
	pix := []byte{1, 2, 3, 1}
	spu := buildSPU(pix, 0, 0, 2, 2, [4]uint8{0, 1, 2, 3}, [4]uint8{15, 15, 15, 15}, 0)
	idxPath := writePair(t, [][]byte{spu, spu}, []time.Duration{3 * time.Second, 2 * time.Second})

	track, err := Open(idxPath, "", overlay.NewQueue(), Options{Track: 0})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer track.Close()

	events, err := track.Decode(0)
	if err != nil || len(events) != 1 {
		t.Fatalf("decode = %d events, %v", len(events), err)
	}
	e := events[0]
	if e.Start != 3*time.Second || e.Stop <= e.Start {
		t.Errorf("expected stop after start 3s, got %v-%v", e.Start, e.Stop)
	}
}

// ReaderAt that parks the worker inside a read until released
type gatedReader struct {
	data    []byte
	entered chan struct{}
	release chan struct{}
}

func (r *gatedReader) ReadAt(p []byte, off int64) (int, error) {
	r.entered <- struct{}{}
	<-r.release
	return copy(p, r.data[off:]), nil
}

func TestSeekDropsDecodeInFlight(t *testing.T) {
	pix := []byte{1, 2, 3, 1}
	spu := buildSPU(pix, 0, 0, 2, 2, [4]uint8{0, 1, 2, 3}, [4]uint8{15, 15, 15, 15}, 0)
	data := buildSector(spu, time.Second, false)
	index := &Index{
		Width:   720,
		Height:  576,
		LangIdx: -1,
		Entries: []Entry{{PTS: time.Second, Pos: 0}},
		Stop:    int64(len(data)),
	}
	r := &gatedReader{data: data, entered: make(chan struct{}), release: make(chan struct{})}

	q := overlay.NewQueue()
	track := NewTrack(index, r, q, Options{})

	track.Pick(1500*time.Millisecond, 1500*time.Millisecond)
	select {
	case <-r.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker never started reading")
	}

	track.Seek()
	close(r.release)
	if err := track.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	events := q.Peek()
	if len(events) != 1 || events[0].Kind != overlay.KindFlush {
		kinds := make([]string, len(events))
		for i, e := range events {
			kinds[i] = e.Kind.String()
		}
		t.Errorf("expected only the flush marker, got %v", kinds)
	}
}

func TestOpenMissingSub(t *testing.T) {
	dir := t.TempDir()
	idxPath := filepath.Join(dir, "lonely.idx")
	os.WriteFile(idxPath, []byte("id: en, index: 0\ntimestamp: 00:00:01:000, filepos: 000000000\n"), 0644)
	if _, err := Open(idxPath, "", overlay.NewQueue(), Options{}); err == nil {
		t.Errorf("expected error for missing sub file")
	}
}
