package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mgpai22/subtrack/internal/logging"
	"github.com/mgpai22/subtrack/internal/overlay"
	"github.com/mgpai22/subtrack/internal/settings"
)

// anything the playback clock drives: pickers, VobSub tracks
type Source interface {
	Tick(userTime, pts time.Duration)
	Seek()
	Close() error
}

// several sources sharing one queue, one per layer
type multiSource []Source

func (m multiSource) Tick(userTime, pts time.Duration) {
	for _, s := range m {
		s.Tick(userTime, pts)
	}
}

func (m multiSource) Seek() {
	for _, s := range m {
		s.Seek()
	}
}

func (m multiSource) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Session owns the delivery queue and the sources feeding it. The playback
// goroutine calls Tick and Seek; the renderer side calls Next.
type Session struct {
	queue  *overlay.Queue
	store  *settings.Store
	logger *logging.Logger

	// subtitle delay: userTime = pts - Delay
	Delay time.Duration

	mu      sync.Mutex
	sources multiSource
}

func NewSession(store *settings.Store, logger *logging.Logger) *Session {
	if store == nil {
		store = settings.NewStore(settings.Default())
	}
	return &Session{
		queue:  overlay.NewQueue(),
		store:  store,
		logger: logging.OrNop(logger).Named("session"),
	}
}

func (s *Session) Queue() *overlay.Queue {
	return s.queue
}

func (s *Session) Settings() *settings.Store {
	return s.store
}

func (s *Session) Add(src Source) {
	s.mu.Lock()
	s.sources = append(s.sources, src)
	s.mu.Unlock()
}

// Open loads path and adds it as a source
func (s *Session) Open(ctx context.Context, path string, opts Options) error {
	if opts.Subtitle.Logger == nil {
		opts.Subtitle.Logger = s.logger
	}
	if opts.Subtitle.Appearance == nil {
		a := s.store.Get()
		opts.Subtitle.Appearance = &a
	}
	src, err := Load(ctx, path, s.queue, opts)
	if err != nil {
		return err
	}
	s.Add(src)
	return nil
}

// Tick advances every source to the presentation time pts
func (s *Session) Tick(pts time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources.Tick(pts-s.Delay, pts)
}

// Seek flushes pending events and resets every source
func (s *Session) Seek() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources.Seek()
	s.queue.Flush(true)
}

// Next pops the next event with the current appearance applied, nil when
// the queue is empty
func (s *Session) Next() *overlay.Event {
	e := s.queue.Pop()
	if e != nil {
		Apply(e, s.store.Get())
	}
	return e
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.sources.Close()
	s.sources = nil
	s.queue.Flush(false)
	return err
}

// simulated playback clock
type Clock struct {
	From     time.Duration
	Duration time.Duration // 0 runs until ctx is done
	Speed    float64       // media seconds per wall second, 0 means 1
	Interval time.Duration // wall time between ticks, 0 means 40ms
}

// RunOptions configure Session.Run
type RunOptions struct {
	Clock Clock

	// receives every delivered event; it owns the event afterwards
	Deliver func(e *overlay.Event)

	// settings file reloaded while playing, empty to skip
	SettingsPath string
}

// Run plays the session: a clock goroutine ticks the sources, a delivery
// goroutine drains the queue and an optional watcher reloads appearance
// settings. It returns when the clock runs out or ctx is done.
func (s *Session) Run(ctx context.Context, opts RunOptions) error {
	clk := opts.Clock
	if clk.Speed <= 0 {
		clk.Speed = 1
	}
	if clk.Interval <= 0 {
		clk.Interval = 40 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		ticker := time.NewTicker(clk.Interval)
		defer ticker.Stop()

		began := time.Now()
		for {
			media := clk.From + time.Duration(float64(time.Since(began))*clk.Speed)
			if clk.Duration > 0 && media > clk.From+clk.Duration {
				s.logger.Debugw("Clock finished", "at", media)
				return nil
			}
			s.Tick(media)
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				s.drain(opts.Deliver)
				return nil
			case <-s.queue.Notify():
				s.drain(opts.Deliver)
			}
		}
	})

	if opts.SettingsPath != "" {
		g.Go(func() error {
			return s.store.Watch(ctx, opts.SettingsPath, s.logger)
		})
	}

	return g.Wait()
}

func (s *Session) drain(deliver func(e *overlay.Event)) {
	for e := s.Next(); e != nil; e = s.Next() {
		if deliver != nil {
			deliver(e)
		} else {
			e.Release()
		}
	}
}

// Apply adds the user appearance the renderer does not take from the
// text itself: scale, horizontal alignment override and displacement.
func Apply(e *overlay.Event, a settings.Appearance) {
	if e.Kind != overlay.KindText && e.Kind != overlay.KindBitmap {
		return
	}
	a = a.Clamp()

	e.DisplaceX = a.HorizontalDisplacement
	e.DisplaceY = a.VerticalDisplacement

	if e.Kind != overlay.KindText || e.Absolute {
		return
	}

	scale := e.Scale
	if scale == 0 {
		scale = 100
	}
	e.Scale = scale * a.Scale / 100

	var col int
	switch a.Alignment {
	case settings.AlignLeft:
		col = 1
	case settings.AlignCenter:
		col = 2
	case settings.AlignRight:
		col = 3
	default:
		return
	}
	row := 0
	if e.Alignment > 0 {
		row = (e.Alignment - 1) / 3
	}
	e.Alignment = row*3 + col
}
