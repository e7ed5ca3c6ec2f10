// Package logtest provides an slog handler that records entries for assertions.
package logtest

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// Entry is one recorded log record.
type Entry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// Recorder is an slog.Handler keeping every record in memory.
type Recorder struct {
	mu      *sync.Mutex
	entries *[]Entry
	attrs   []slog.Attr
}

// New returns a Recorder and a logger writing to it.
func New() (*Recorder, *slog.Logger) {
	r := &Recorder{mu: &sync.Mutex{}, entries: &[]Entry{}}
	return r, slog.New(r)
}

func (r *Recorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *Recorder) Handle(_ context.Context, rec slog.Record) error {
	e := Entry{Level: rec.Level, Message: rec.Message, Attrs: make(map[string]any)}
	for _, a := range r.attrs {
		e.Attrs[a.Key] = a.Value.Any()
	}
	rec.Attrs(func(a slog.Attr) bool {
		e.Attrs[a.Key] = a.Value.Any()
		return true
	})
	r.mu.Lock()
	*r.entries = append(*r.entries, e)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *r
	next.attrs = append(append([]slog.Attr(nil), r.attrs...), attrs...)
	return &next
}

// WithGroup ignores groups; recorded attributes stay flat.
func (r *Recorder) WithGroup(string) slog.Handler { return r }

// Entries returns a copy of the recorded entries.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), *r.entries...)
}

// Count returns the number of entries recorded at level.
func (r *Recorder) Count(level slog.Level) int {
	n := 0
	for _, e := range r.Entries() {
		if e.Level == level {
			n++
		}
	}
	return n
}

// Discard returns a logger dropping everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
