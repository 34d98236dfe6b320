package vobsub

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mgpai22/subtrack/internal/logging"
	"github.com/mgpai22/subtrack/internal/overlay"
)

// canvas assumed when the index carries no size line
const (
	defaultWidth  = 720
	defaultHeight = 576
)

// display time of a last subpicture that never stops itself
const lastEntryDuration = 5 * time.Second

type Options struct {
	// "index:" number of the wanted track, AnyTrack for the first one or
	// the one named by langidx
	Track int

	// palette values are YUV as stored on DVDs instead of RGB
	YUVPalette bool

	Layer  int
	Logger *logging.Logger
}

// read request for the worker; a zero size stops it
type command struct {
	entry  int
	offset int64
	size   int64
	shift  time.Duration
	// seek generation the request was made in
	gen uint64
}

// a loaded VobSub track. Pick runs on the playback goroutine and only
// queues read requests; a worker owned by the track reads and decodes the
// byte ranges and pushes bitmap events to the queue.
type Track struct {
	index  *Index
	clut   [16]uint32
	sub    io.ReaderAt
	closer io.Closer
	queue  *overlay.Queue
	layer  int
	logger *logging.Logger

	// entry delivered last, -1 when idle
	current int

	mu   sync.Mutex
	cmds []command
	// bumped by Seek; results of older requests are dropped
	gen uint64
	wake chan struct{}
	done chan struct{}

	closeOnce sync.Once
}

// opens an .idx/.sub pair. An empty subPath means the .idx path with a
// .sub extension.
func Open(idxPath, subPath string, queue *overlay.Queue, opts Options) (*Track, error) {
	if subPath == "" {
		subPath = strings.TrimSuffix(idxPath, filepath.Ext(idxPath)) + ".sub"
	}

	idx, err := os.ReadFile(idxPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}

	f, err := os.Open(subPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sub file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat sub file: %w", err)
	}

	index, err := ParseIndex(idx, opts.Track, st.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", idxPath, err)
	}

	t := NewTrack(index, f, queue, opts)
	t.closer = f
	t.logger.Infow("Loaded VobSub track", "index", idxPath, "entries", len(index.Entries),
		"size", fmt.Sprintf("%dx%d", index.Width, index.Height))
	return t, nil
}

// starts a track over an already parsed index and its subpicture stream
func NewTrack(index *Index, sub io.ReaderAt, queue *overlay.Queue, opts Options) *Track {
	t := &Track{
		index:   index,
		clut:    index.Palette,
		sub:     sub,
		queue:   queue,
		layer:   opts.Layer,
		logger:  logging.OrNop(opts.Logger).Named("vobsub"),
		current: -1,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	if opts.YUVPalette {
		t.clut = YUVPalette(index.Palette)
	}
	go t.worker()
	return t
}

func (t *Track) Index() *Index {
	return t.index
}

func (t *Track) covers(i int, pts time.Duration) bool {
	return t.index.Entries[i].PTS <= pts && pts < t.index.StopTime(i)
}

// Pick activates the entry covering userTime and requests its decode.
// Events come out shifted by pts-userTime.
func (t *Track) Pick(userTime, pts time.Duration) {
	if t.current >= 0 && t.covers(t.current, userTime) {
		return
	}

	if t.current >= 0 && t.current+1 < len(t.index.Entries) && t.covers(t.current+1, userTime) {
		t.deliver(t.current+1, userTime, pts)
		return
	}

	i := sort.Search(len(t.index.Entries), func(i int) bool {
		return t.index.Entries[i].PTS > userTime
	}) - 1
	if i >= 0 && t.covers(i, userTime) {
		t.deliver(i, userTime, pts)
		return
	}
	t.current = -1
}

func (t *Track) deliver(i int, userTime, pts time.Duration) {
	t.current = i
	e := t.index.Entries[i]
	size := t.index.End(i) - e.Pos
	if size <= 0 {
		return
	}
	t.send(command{entry: i, offset: e.Pos, size: size, shift: pts - userTime})
}

func (t *Track) send(c command) {
	t.mu.Lock()
	c.gen = t.gen
	t.cmds = append(t.cmds, c)
	t.mu.Unlock()
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// drops pending reads, clears the screen and forgets the active entry
func (t *Track) Seek() {
	t.mu.Lock()
	t.cmds = t.cmds[:0]
	t.gen++
	t.queue.Flush(true)
	t.mu.Unlock()
	t.current = -1
}

func (t *Track) Tick(userTime, pts time.Duration) {
	t.Pick(userTime, pts)
}

// stops the worker, waits for it and closes the sub file
func (t *Track) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.send(command{})
		<-t.done
		if t.closer != nil {
			err = t.closer.Close()
		}
	})
	return err
}

func (t *Track) worker() {
	defer close(t.done)
	for {
		t.mu.Lock()
		if len(t.cmds) == 0 {
			t.mu.Unlock()
			<-t.wake
			continue
		}
		c := t.cmds[0]
		t.cmds = t.cmds[1:]
		t.mu.Unlock()

		if c.size == 0 {
			return
		}

		events, err := t.load(c.entry, c.offset, c.size)
		if err != nil {
			t.logger.Warnw("Failed to load subpicture", "entry", c.entry, "offset", c.offset, "error", err)
			continue
		}
		t.publish(c, events)
	}
}

// pushes decoded events unless a seek happened since the request; holding
// mu keeps them ahead of any FLUSH a concurrent Seek enqueues
func (t *Track) publish(c command, events []*overlay.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c.gen != t.gen {
		t.logger.Debugw("Dropping subpicture decoded before seek", "entry", c.entry)
		for _, e := range events {
			e.Release()
		}
		return
	}
	for _, e := range events {
		e.Start += c.shift
		e.Stop += c.shift
		t.queue.Push(e)
	}
}

// Decode reads and decodes entry i synchronously, on the index clock
func (t *Track) Decode(i int) ([]*overlay.Event, error) {
	if i < 0 || i >= len(t.index.Entries) {
		return nil, fmt.Errorf("vobsub: entry %d out of range", i)
	}
	e := t.index.Entries[i]
	size := t.index.End(i) - e.Pos
	if size <= 0 {
		return nil, nil
	}
	return t.load(i, e.Pos, size)
}

func (t *Track) load(entry int, offset, size int64) ([]*overlay.Event, error) {
	buf := make([]byte, size)
	n, err := t.sub.ReadAt(buf, offset)
	if n < len(buf) {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read %d bytes at %#x: %w", size, offset, err)
	}
	return t.decodeRange(entry, buf), nil
}

// demuxes the sectors of one entry and turns every complete subpicture
// into a bitmap event
func (t *Track) decodeRange(entry int, buf []byte) []*overlay.Event {
	base := t.index.Entries[entry].PTS
	payloads := demuxSectors(buf, func(sector int, err error) {
		t.logger.Debugw("Skipping sector", "entry", entry, "sector", sector, "error", err)
	})

	var (
		asm      spuAssembler
		firstPTS = noPTS
		events   []*overlay.Event
	)
	for _, p := range payloads {
		for _, u := range asm.push(p) {
			at := base
			if u.pts != noPTS {
				if firstPTS == noPTS {
					firstPTS = u.pts
				}
				at += u.pts - firstPTS
			}

			pic, err := decodeSPU(u.data)
			if pic == nil {
				t.logger.Debugw("Dropping subpicture", "entry", entry, "error", err)
				continue
			}
			if err != nil {
				t.logger.Debugw("Subpicture field damaged", "entry", entry, "error", err)
			}
			events = append(events, t.event(entry, at, pic))
		}
	}
	return events
}

func (t *Track) event(entry int, at time.Duration, pic *Picture) *overlay.Event {
	e := &overlay.Event{
		Kind:         overlay.KindBitmap,
		Start:        at + pic.Start,
		X:            pic.X,
		Y:            pic.Y,
		Bitmap:       pic.Render(&t.clut),
		Layer:        t.layer,
		CanvasWidth:  t.index.Width,
		CanvasHeight: t.index.Height,
	}
	if e.CanvasWidth == 0 || e.CanvasHeight == 0 {
		e.CanvasWidth, e.CanvasHeight = defaultWidth, defaultHeight
	}

	switch next := t.index.StopTime(entry); {
	case pic.Stop > pic.Start:
		e.Stop = at + pic.Stop
	case next != time.Duration(math.MaxInt64):
		e.Stop = next
		e.StopEstimated = true
	default:
		e.Stop = e.Start + lastEntryDuration
		e.StopEstimated = true
	}
	// duplicate or out of order index timestamps
	if e.Stop <= e.Start {
		e.Stop = e.Start + time.Millisecond
	}
	return e
}
