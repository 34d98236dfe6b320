package settings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mgpai22/subtrack/internal/logging"
)

const (
	reloadDebounce = 200 * time.Millisecond
	reloadRetries  = 3
	retryDelay     = 100 * time.Millisecond
)

// holds the current appearance; safe for concurrent use
type Store struct {
	mu      sync.RWMutex
	current Appearance
}

func NewStore(a Appearance) *Store {
	return &Store{current: a.Clamp()}
}

// current snapshot
func (s *Store) Get() Appearance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Store) Set(a Appearance) {
	s.mu.Lock()
	s.current = a.Clamp()
	s.mu.Unlock()
}

// reloads path into the store whenever it is written or recreated.
// Blocks until ctx is cancelled.
func (s *Store) Watch(ctx context.Context, path string, logger *logging.Logger) error {
	logger = logging.OrNop(logger)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create settings watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch settings file: %w", err)
	}

	var (
		debounceMu    sync.Mutex
		debounceTimer *time.Timer
	)
	defer func() {
		debounceMu.Lock()
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			debounceMu.Lock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(reloadDebounce, func() {
				s.reload(path, logger)
			})
			debounceMu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("Settings watcher error", "error", err)
		}
	}
}

// editors often truncate before writing, so a failed parse is retried
func (s *Store) reload(path string, logger *logging.Logger) {
	var lastErr error
	for i := 0; i < reloadRetries; i++ {
		a, err := Load(path)
		if err == nil {
			s.Set(a)
			logger.Infow("Settings reloaded", "path", path)
			return
		}
		lastErr = err
		time.Sleep(retryDelay)
	}
	logger.Warnw("Failed to reload settings", "path", path, "error", lastErr)
}
