package watch

import (
	"context"
	"sync"

	"github.com/logflow/procflow/internal/model"
	"github.com/logflow/procflow/pkg/session"
)

// LoadFunc reads every watched log.
type LoadFunc func(ctx context.Context) ([]model.Event, error)

// Reloader swaps in a freshly built session whenever the logs change.
// A failed reload keeps the last good session. Reloads run one at a time,
// so the session swapped in last was also loaded last.
type Reloader struct {
	reloading sync.Mutex
	mu        sync.RWMutex
	current   *session.Session
	load      LoadFunc

	// OnReload, if set, receives every new session.
	OnReload func(*session.Session)
}

// NewReloader starts from an already built session.
func NewReloader(initial *session.Session, load LoadFunc) *Reloader {
	return &Reloader{current: initial, load: load}
}

// Current returns the latest good session.
func (r *Reloader) Current() *session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Reload loads the logs and rebuilds the graph wholesale.
func (r *Reloader) Reload(ctx context.Context) error {
	r.reloading.Lock()
	defer r.reloading.Unlock()

	events, err := r.load(ctx)
	if err != nil {
		return err
	}

	next, err := r.Current().Reload(events)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.current = next
	r.mu.Unlock()

	if r.OnReload != nil {
		r.OnReload(next)
	}
	return nil
}

// Bind makes w reload r on every change.
func (r *Reloader) Bind(ctx context.Context, w *Watcher) {
	w.OnChange = func(string) error {
		return r.Reload(ctx)
	}
}
