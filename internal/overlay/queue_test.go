package overlay

import (
	"sync"
	"testing"
	"time"

	"github.com/mgpai22/subtrack/internal/textstyle"
)

func textEvent(start, stop time.Duration, text string) *Event {
	return &Event{
		Kind:  KindText,
		Start: start,
		Stop:  stop,
		Text:  textstyle.Stream{}.AppendText(text),
	}
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	q.Push(textEvent(0, time.Second, "a"))
	q.Push(textEvent(time.Second, 2*time.Second, "b"))

	if q.Len() != 2 {
		t.Fatalf("expected 2 events, got %d", q.Len())
	}
	if got := q.Pop().Text.Text(); got != "a" {
		t.Errorf("expected a first, got %q", got)
	}
	if got := q.Pop().Text.Text(); got != "b" {
		t.Errorf("expected b second, got %q", got)
	}
	if e := q.Pop(); e != nil {
		t.Errorf("expected empty queue, got %+v", e)
	}
}

func TestFlushIsIdempotent(t *testing.T) {
	q := NewQueue()
	q.Push(textEvent(0, time.Second, "a"))
	q.Push(&Event{Kind: KindBitmap, Bitmap: NewBitmap(2, 2)})

	for i := 0; i < 2; i++ {
		q.Flush(true)
		events := q.Peek()
		if len(events) != 1 || events[0].Kind != KindFlush {
			t.Fatalf("flush %d: expected a single flush marker, got %d events", i, len(events))
		}
	}

	q.Flush(false)
	if q.Len() != 0 {
		t.Errorf("expected empty queue after silent flush, got %d", q.Len())
	}
}

func TestTimedFlush(t *testing.T) {
	q := NewQueue()
	q.TimedFlush(3 * time.Second)
	e := q.Pop()
	if e == nil || e.Kind != KindTimedFlush || e.Start != 3*time.Second {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestNotify(t *testing.T) {
	q := NewQueue()
	q.Push(textEvent(0, time.Second, "a"))
	q.Push(textEvent(0, time.Second, "b"))

	select {
	case <-q.Notify():
	default:
		t.Fatalf("expected a notification after push")
	}
	select {
	case <-q.Notify():
		t.Errorf("expected pushes to coalesce into one notification")
	default:
	}
}

func TestConcurrentPushPop(t *testing.T) {
	q := NewQueue()
	const producers, perProducer = 4, 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(textEvent(0, time.Second, "x"))
			}
		}()
	}

	popped := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		if e := q.Pop(); e != nil {
			e.Release()
			popped++
			continue
		}
		select {
		case <-done:
			for q.Pop() != nil {
				popped++
			}
			if popped != producers*perProducer {
				t.Fatalf("expected %d events, got %d", producers*perProducer, popped)
			}
			return
		case <-q.Notify():
		}
	}
}

func TestDupShiftsAndCopiesPixels(t *testing.T) {
	src := &Event{
		Kind:   KindBitmap,
		Start:  time.Second,
		Stop:   2 * time.Second,
		Bitmap: NewBitmap(1, 1),
	}
	src.Bitmap.Pix[0] = 0xaa

	dup := src.Dup(500 * time.Millisecond)
	if dup.Start != 1500*time.Millisecond || dup.Stop != 2500*time.Millisecond {
		t.Errorf("unexpected shifted times %v-%v", dup.Start, dup.Stop)
	}
	dup.Bitmap.Pix[0] = 0x55
	if src.Bitmap.Pix[0] != 0xaa {
		t.Errorf("expected dup to own its pixels")
	}
}

func TestNewBitmapIsZeroed(t *testing.T) {
	e := &Event{Bitmap: NewBitmap(4, 4)}
	for i := range e.Bitmap.Pix {
		e.Bitmap.Pix[i] = 0xff
	}
	e.Release()

	b := NewBitmap(2, 2)
	if len(b.Pix) != 16 {
		t.Fatalf("expected 16 bytes, got %d", len(b.Pix))
	}
	for i, v := range b.Pix {
		if v != 0 {
			t.Fatalf("byte %d not zeroed: %#x", i, v)
		}
	}
}
