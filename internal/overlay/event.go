package overlay

import (
	"sync"
	"time"

	"github.com/mgpai22/subtrack/internal/textstyle"
)

// what an event asks the renderer to do
type Kind int

const (
	KindBitmap Kind = iota
	KindText
	KindFlush      // drop everything on screen
	KindTimedFlush // drop overlays whose stop is at or before Start
)

func (k Kind) String() string {
	switch k {
	case KindBitmap:
		return "bitmap"
	case KindText:
		return "text"
	case KindFlush:
		return "flush"
	case KindTimedFlush:
		return "timed-flush"
	}
	return "unknown"
}

// layers for stacking independent tracks
const (
	LayerSubtitles = 0
	LayerTeletext  = 1
	LayerCaptions  = 2
)

// RGBA pixels, 4 bytes per pixel, rows packed without padding
type Bitmap struct {
	Width  int
	Height int
	Pix    []byte
}

// box of margins around a text overlay; -1 means automatic
type Padding struct {
	Left, Top, Right, Bottom int
}

// unit handed to the renderer. The renderer owns a popped event and calls
// Release when it is done with it.
type Event struct {
	Kind          Kind
	Start         time.Duration
	Stop          time.Duration
	StopEstimated bool

	// source canvas; the renderer rescales against the video frame
	CanvasWidth  int
	CanvasHeight int

	// bitmap origin, or the text anchor when Absolute is set
	X, Y     int
	Absolute bool

	// user displacement applied after layout, positive Y moves up
	DisplaceX, DisplaceY int

	Bitmap *Bitmap
	Text   textstyle.Stream

	Alignment int // 1-9 numpad layout, 0 for the renderer default
	Padding   Padding
	Layer     int
	FadeIn    time.Duration
	FadeOut   time.Duration
	Scale     int // percent, 0 means 100
}

// reports whether the event covers t
func (e *Event) Covers(t time.Duration) bool {
	return e.Start <= t && t < e.Stop
}

// deep copy shifted by offset. Text streams are immutable and shared,
// bitmap pixels are copied.
func (e *Event) Dup(offset time.Duration) *Event {
	dup := *e
	dup.Start += offset
	dup.Stop += offset
	if e.Bitmap != nil {
		dup.Bitmap = NewBitmap(e.Bitmap.Width, e.Bitmap.Height)
		copy(dup.Bitmap.Pix, e.Bitmap.Pix)
	}
	return &dup
}

// returns pixel memory to the shared pool
func (e *Event) Release() {
	if e.Bitmap != nil {
		releasePix(e.Bitmap.Pix)
		e.Bitmap = nil
	}
	e.Text = nil
}

var pixPool sync.Pool

// allocates a zeroed bitmap, reusing pooled pixel memory when possible
func NewBitmap(width, height int) *Bitmap {
	n := width * height * 4
	if p, ok := pixPool.Get().(*[]byte); ok && cap(*p) >= n {
		pix := (*p)[:n]
		clear(pix)
		return &Bitmap{Width: width, Height: height, Pix: pix}
	}
	return &Bitmap{Width: width, Height: height, Pix: make([]byte, n)}
}

func releasePix(pix []byte) {
	if cap(pix) == 0 {
		return
	}
	pixPool.Put(&pix)
}
