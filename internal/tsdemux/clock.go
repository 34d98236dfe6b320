package tsdemux

import "time"

const (
	ptsHz   = 90000
	ptsWrap = int64(1) << 33
)

// turns 33-bit PTS values into a monotonic time line. A jump back by more
// than half the PTS range is taken as a wrap.
type clock struct {
	rebase bool

	started bool
	first   int64
	last    int64
	offset  int64
}

func (c *clock) time(pts int64) time.Duration {
	pts &= ptsWrap - 1
	if !c.started {
		c.started = true
		c.first = pts
		c.last = pts
	}

	switch d := pts - c.last; {
	case d < -ptsWrap/2:
		c.offset += ptsWrap
	case d > ptsWrap/2:
		// late packet from before the last wrap
		pts -= ptsWrap
	}
	if pts >= 0 {
		c.last = pts
	}

	ticks := pts + c.offset
	if c.rebase {
		ticks -= c.first
	}
	return time.Duration(ticks/ptsHz)*time.Second + time.Duration(ticks%ptsHz)*time.Second/ptsHz
}
