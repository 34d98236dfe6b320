package picker

import (
	"testing"
	"time"

	"github.com/mgpai22/subtrack/internal/overlay"
	"github.com/mgpai22/subtrack/internal/subtitle"
)

func load(t *testing.T, doc string) *subtitle.Track {
	t.Helper()
	track, err := subtitle.Load([]byte(doc), subtitle.Options{})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return track
}

func drain(q *overlay.Queue) []*overlay.Event {
	var out []*overlay.Event
	for e := q.Pop(); e != nil; e = q.Pop() {
		out = append(out, e)
	}
	return out
}

const twoCues = "1\n00:00:01,000 --> 00:00:03,000\nHello\n\n2\n00:00:04,000 --> 00:00:05,000\nWorld\n"

func TestPickScenario(t *testing.T) {
	q := overlay.NewQueue()
	p := New(load(t, twoCues), q, overlay.LayerSubtitles, nil)

	p.Pick(2*time.Second, 2*time.Second)
	events := drain(q)
	if len(events) != 1 {
		t.Fatalf("expected 1 event at 2s, got %d", len(events))
	}
	if got := events[0].Text.Text(); got != "Hello" {
		t.Errorf("expected Hello, got %q", got)
	}
	if p.State() != Active {
		t.Errorf("expected active state, got %s", p.State())
	}

	p.Pick(3500*time.Millisecond, 3500*time.Millisecond)
	if events := drain(q); len(events) != 0 {
		t.Errorf("expected no event at 3.5s, got %d", len(events))
	}
	if p.State() != Idle || p.Current() != nil {
		t.Errorf("expected idle state at 3.5s")
	}

	p.Pick(4*time.Second, 4*time.Second)
	events = drain(q)
	if len(events) != 1 || events[0].Text.Text() != "World" {
		t.Fatalf("expected World at 4s, got %v", events)
	}
}

func TestPickDeliversOnce(t *testing.T) {
	q := overlay.NewQueue()
	p := New(load(t, twoCues), q, overlay.LayerSubtitles, nil)

	for ts := time.Second; ts < 3*time.Second; ts += 100 * time.Millisecond {
		p.Pick(ts, ts)
	}
	if n := len(drain(q)); n != 1 {
		t.Errorf("expected a single delivery while the cue is active, got %d", n)
	}
}

func TestPickMonotonic(t *testing.T) {
	doc := "1\n00:00:01,000 --> 00:00:10,000\nlong\n\n" +
		"2\n00:00:01,500 --> 00:00:02,000\nshort\n\n" +
		"3\n00:00:01,700 --> 00:00:09,000\noverlap\n\n" +
		"4\n00:00:05,000 --> 00:00:06,000\nlater\n\n" +
		"5\n00:00:05,000 --> 00:00:07,000\nsame start\n\n" +
		"6\n00:00:20,000 --> 00:00:21,000\nend\n"

	q := overlay.NewQueue()
	p := New(load(t, doc), q, overlay.LayerSubtitles, nil)

	var starts []time.Duration
	for ts := time.Duration(0); ts < 25*time.Second; ts += 50 * time.Millisecond {
		p.Pick(ts, ts)
		for _, e := range drain(q) {
			starts = append(starts, e.Start)
		}
	}

	if len(starts) != 6 {
		t.Fatalf("expected every cue delivered once, got %d: %v", len(starts), starts)
	}
	for i := 1; i < len(starts); i++ {
		if starts[i] < starts[i-1] {
			t.Fatalf("start times not monotonic: %v", starts)
		}
	}
}

func TestPickSimultaneousCues(t *testing.T) {
	doc := "1\n00:00:01,000 --> 00:00:03,000\ntop\n\n" +
		"2\n00:00:01,000 --> 00:00:03,000\nbottom\n\n" +
		"3\n00:00:01,000 --> 00:00:01,500\ngone\n"

	q := overlay.NewQueue()
	p := New(load(t, doc), q, overlay.LayerSubtitles, nil)

	p.Pick(2*time.Second, 2*time.Second)
	events := drain(q)
	if len(events) != 2 {
		t.Fatalf("expected both running cues, got %d", len(events))
	}
	if events[0].Text.Text() != "top" || events[1].Text.Text() != "bottom" {
		t.Errorf("unexpected delivery order %q %q", events[0].Text.Text(), events[1].Text.Text())
	}
}

func TestPickShiftsToPresentationClock(t *testing.T) {
	q := overlay.NewQueue()
	p := New(load(t, twoCues), q, overlay.LayerTeletext, nil)

	// subtitle delay of -500ms: user time runs behind pts
	p.Pick(2*time.Second, 2500*time.Millisecond)
	events := drain(q)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Start != 1500*time.Millisecond || e.Stop != 3500*time.Millisecond {
		t.Errorf("expected shifted 1.5s-3.5s, got %v-%v", e.Start, e.Stop)
	}
	if e.Layer != overlay.LayerTeletext {
		t.Errorf("expected layer %d, got %d", overlay.LayerTeletext, e.Layer)
	}
}

func TestSeek(t *testing.T) {
	doc := "1\n00:00:01,000 --> 00:00:30,000\nlong\n\n" +
		"2\n00:00:10,000 --> 00:00:12,000\nmiddle\n"

	tests := []struct {
		name   string
		target time.Duration
		want   []string
	}{
		{"into cue start", 10500 * time.Millisecond, []string{"middle"}},
		{"deep into long cue", 20 * time.Second, nil},
		{"back to start", 1200 * time.Millisecond, []string{"long"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := overlay.NewQueue()
			p := New(load(t, doc), q, overlay.LayerSubtitles, nil)
			p.Pick(25*time.Second, 25*time.Second)
			drain(q)

			p.Seek()
			p.Pick(tt.target, tt.target)
			events := drain(q)
			if len(events) == 0 || events[0].Kind != overlay.KindFlush {
				t.Fatalf("expected a flush first, got %v", events)
			}
			var got []string
			for _, e := range events[1:] {
				got = append(got, e.Text.Text())
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestSeekFlushIsIdempotent(t *testing.T) {
	q := overlay.NewQueue()
	p := New(load(t, twoCues), q, overlay.LayerSubtitles, nil)
	p.Pick(2*time.Second, 2*time.Second)

	p.Seek()
	p.Seek()
	events := drain(q)
	if len(events) != 1 || events[0].Kind != overlay.KindFlush {
		t.Errorf("expected a single flush marker, got %v", events)
	}
}

func TestPickJoinsRunningCue(t *testing.T) {
	doc := "1\n00:00:01,000 --> 00:00:10,000\nlong\n\n" +
		"2\n00:00:12,000 --> 00:00:13,000\nnext\n"

	tests := []struct {
		name  string
		first time.Duration
		want  string
	}{
		{"near start", 1500 * time.Millisecond, "long"},
		{"well inside", 5 * time.Second, "long"},
		{"just before stop", 9999 * time.Millisecond, "long"},
		{"between cues", 11 * time.Second, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := overlay.NewQueue()
			p := New(load(t, doc), q, overlay.LayerSubtitles, nil)

			p.Pick(tt.first, tt.first)
			events := drain(q)
			if tt.want == "" {
				if len(events) != 0 || p.State() != Idle {
					t.Fatalf("expected idle with no events, got %d events", len(events))
				}
				return
			}
			if len(events) != 1 || events[0].Text.Text() != tt.want {
				t.Fatalf("expected %q, got %v", tt.want, events)
			}

			// still running: no redelivery, picker stays active
			p.Pick(tt.first+time.Millisecond/2, tt.first+time.Millisecond/2)
			if n := len(drain(q)); n != 0 || p.State() != Active {
				t.Errorf("expected active without redelivery, got %d events, %s", n, p.State())
			}
		})
	}
}

func TestPickClockJumpsBack(t *testing.T) {
	q := overlay.NewQueue()
	p := New(load(t, twoCues), q, overlay.LayerSubtitles, nil)

	p.Pick(4500*time.Millisecond, 4500*time.Millisecond)
	if events := drain(q); len(events) != 1 || events[0].Text.Text() != "World" {
		t.Fatalf("expected World, got %v", events)
	}

	p.Pick(2*time.Second, 2*time.Second)
	events := drain(q)
	if len(events) != 1 || events[0].Text.Text() != "Hello" {
		t.Fatalf("expected Hello after jumping back, got %v", events)
	}
}
