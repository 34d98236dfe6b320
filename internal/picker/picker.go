package picker

import (
	"sort"
	"time"

	"github.com/mgpai22/subtrack/internal/logging"
	"github.com/mgpai22/subtrack/internal/overlay"
	"github.com/mgpai22/subtrack/internal/subtitle"
)

type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// maps a forward moving clock onto the cues of one track and pushes the
// active ones to the delivery queue. Not safe for concurrent use; only the
// playback goroutine calls it.
type Picker struct {
	cues   []*subtitle.Cue
	queue  *overlay.Queue
	layer  int
	logger *logging.Logger

	// index of the last delivered cue, -1 when idle
	current int
	// lowest index that may still be delivered before the next seek
	next int
	// set until the first pick after a discontinuity
	resync bool
	// clock of the previous pick
	last time.Duration
}

// the track must already be sorted, which every loader guarantees
func New(track *subtitle.Track, queue *overlay.Queue, layer int, logger *logging.Logger) *Picker {
	return &Picker{
		cues:    track.Cues,
		queue:   queue,
		layer:   layer,
		logger:  logging.OrNop(logger).Named("picker"),
		current: -1,
		resync:  true,
	}
}

func (p *Picker) State() State {
	if p.current < 0 {
		return Idle
	}
	return Active
}

// cue delivered last, nil when idle
func (p *Picker) Current() *subtitle.Cue {
	if p.current < 0 {
		return nil
	}
	return p.cues[p.current]
}

// Pick delivers the cues becoming active at userTime, the track's own
// clock. Delivered events are shifted by pts-userTime onto the
// presentation clock.
func (p *Picker) Pick(userTime, pts time.Duration) {
	if p.resync || userTime < p.last {
		p.resync = false
		p.next = p.search(userTime)
	}
	p.last = userTime

	// ended cues can never become active again on a forward clock
	for p.next < len(p.cues) && p.cues[p.next].Stop <= userTime {
		p.next++
	}

	// the following cues win over a still running one
	for i := p.next; i < len(p.cues); i++ {
		c := p.cues[i]
		if c.Start > userTime {
			break
		}
		if c.Covers(userTime) {
			p.deliver(i, userTime, pts)
			return
		}
	}

	if p.current >= 0 && p.cues[p.current].Covers(userTime) {
		return
	}

	if p.current >= 0 {
		p.logger.Debugw("No active cue", "time", userTime)
	}
	p.current = -1
}

// first index of the group sharing the latest start at or before t, so a
// running cue with that start is found by the forward scan
func (p *Picker) search(t time.Duration) int {
	i := sort.Search(len(p.cues), func(i int) bool {
		return p.cues[i].Start > t
	}) - 1
	if i < 0 {
		return 0
	}
	for i > 0 && p.cues[i-1].Start == p.cues[i].Start {
		i--
	}
	return i
}

// pushes cue i and the cues sharing its start that are still running
func (p *Picker) deliver(i int, userTime, pts time.Duration) {
	offset := pts - userTime
	first := p.cues[i].Start
	last := i
	for j := i; j < len(p.cues) && p.cues[j].Start == first; j++ {
		c := p.cues[j]
		if c.Stop <= userTime {
			continue
		}
		e := c.Dup(offset)
		if p.layer != overlay.LayerSubtitles {
			e.Layer = p.layer
		}
		p.queue.Push(e)
		last = j
	}

	p.current = last
	p.next = last + 1
	p.logger.Debugw("Delivered cue", "index", last, "start", first, "time", userTime)
}

// forgets the delivery position after a discontinuity and tells the
// renderer to clear the screen
func (p *Picker) Seek() {
	p.current = -1
	p.next = 0
	p.resync = true
	p.queue.Flush(true)
}

// Tick and Close let a picker stand in as an engine source
func (p *Picker) Tick(userTime, pts time.Duration) {
	p.Pick(userTime, pts)
}

func (p *Picker) Close() error {
	return nil
}
