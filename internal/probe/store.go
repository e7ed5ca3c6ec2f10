package probe

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Store holds the current probe set and reloads it from its Source.
type Store struct {
	source   Source
	logger   *slog.Logger
	validate func(*Set) error

	mu       sync.RWMutex
	current  *Set
	onChange []func(*Set)
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithValidator rejects loaded sets for which fn returns an error. It runs on
// the initial load and on every reload.
func WithValidator(fn func(*Set) error) StoreOption {
	return func(s *Store) { s.validate = fn }
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a Store and performs the initial load.
func NewStore(ctx context.Context, src Source, opts ...StoreOption) (*Store, error) {
	s := &Store{source: src, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "probe_store")
	set, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.current = set
	return s, nil
}

// Current returns the latest probe set.
func (s *Store) Current() *Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// OnChange registers a callback invoked whenever the probe set is replaced.
func (s *Store) OnChange(fn func(*Set)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// Reload forces an immediate re-read of the source. The current set is kept
// when loading or validation fails.
func (s *Store) Reload(ctx context.Context) (*Set, error) {
	set, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.current = set
	callbacks := make([]func(*Set), len(s.onChange))
	copy(callbacks, s.onChange)
	s.mu.Unlock()
	for _, fn := range callbacks {
		fn(set)
	}
	return set, nil
}

// Watch reloads the probe file whenever it changes on disk. It only applies
// to FileSource. Call the returned stop function to clean up.
func (s *Store) Watch() (stop func(), err error) {
	fs, ok := s.source.(*FileSource)
	if !ok {
		return nil, fmt.Errorf("probe watcher: source %T is not a file", s.source)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("probe watcher: %w", err)
	}
	// Watch the directory so that editors replacing the file are noticed.
	dir := filepath.Dir(fs.Path())
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("probe watcher add %s: %w", dir, err)
	}
	target := filepath.Clean(fs.Path())

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if set, err := s.Reload(context.Background()); err != nil {
						s.logger.Warn("probe reload skipped", "path", target, "err", err)
					} else {
						s.logger.Info("probes reloaded", "path", target, "probes", set.Len())
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Warn("probe watcher error", "err", err)
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

// Poll reloads the probe set every interval until ctx is done.
func (s *Store) Poll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Reload(ctx); err != nil {
				s.logger.Warn("probe reload skipped", "err", err)
			}
		}
	}
}

func (s *Store) load(ctx context.Context) (*Set, error) {
	set, err := s.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	if s.validate != nil {
		if err := s.validate(set); err != nil {
			return nil, fmt.Errorf("probe validation: %w", err)
		}
	}
	return set, nil
}
