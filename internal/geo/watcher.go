// Package geo provides continuous location sampling with error
// classification. A failed sample never erases the last good fix; both are
// tracked independently so submission can use a stale fix while the UI
// reports the current error.
package geo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rescueline/internal/domain"
)

// ErrorKind classifies why a location sample failed.
type ErrorKind string

const (
	KindPermissionDenied ErrorKind = "PERMISSION_DENIED"
	KindUnavailable      ErrorKind = "POSITION_UNAVAILABLE"
	KindTimeout          ErrorKind = "TIMEOUT"
	KindOther            ErrorKind = "OTHER"
)

// Message is the user-facing text for each kind.
func (k ErrorKind) Message() string {
	switch k {
	case KindPermissionDenied:
		return "Location permission denied. Enable location access to share your position."
	case KindUnavailable:
		return "Location is currently unavailable."
	case KindTimeout:
		return "Timed out waiting for a location fix."
	}
	return "Could not determine location."
}

type WatchError struct {
	Kind   ErrorKind
	Detail string
}

func (e *WatchError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("geo: %s", e.Kind)
	}
	return fmt.Sprintf("geo: %s: %s", e.Kind, e.Detail)
}

// Sample is one reading from a watcher: either a fix or a classified error.
type Sample struct {
	Coords *domain.Coordinates
	Err    *WatchError
}

// Watcher emits samples until the context is cancelled. The channel closes
// on cancellation.
type Watcher interface {
	Watch(ctx context.Context) (<-chan Sample, error)
}

// Tracker consumes a watcher and retains the latest state. Errors and fixes
// are stored separately: an error marks the position as unreliable but the
// previous fix stays readable.
type Tracker struct {
	mu      sync.RWMutex
	coords  *domain.Coordinates
	lastErr *WatchError
}

func (t *Tracker) Apply(s Sample) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s.Err != nil {
		t.lastErr = s.Err
		return
	}
	if s.Coords != nil {
		c := *s.Coords
		t.coords = &c
		t.lastErr = nil
	}
}

// Last returns the most recent fix, or nil if none was ever obtained.
func (t *Tracker) Last() *domain.Coordinates {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.coords == nil {
		return nil
	}
	c := *t.coords
	return &c
}

// Err returns the current error state, nil while samples are healthy.
func (t *Tracker) Err() *WatchError {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastErr
}

// Run drains the watcher into the tracker until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context, w Watcher) error {
	ch, err := w.Watch(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-ch:
			if !ok {
				return nil
			}
			t.Apply(s)
		}
	}
}

// Follow subscribes the tracker to w. The first sample is applied before
// returning so callers read a settled state; the rest drain in the background
// until ctx is cancelled.
func (t *Tracker) Follow(ctx context.Context, w Watcher) error {
	ch, err := w.Watch(ctx)
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s, ok := <-ch:
		if ok {
			t.Apply(s)
		}
	}
	go func() {
		for s := range ch {
			t.Apply(s)
		}
	}()
	return nil
}

// Static emits a fixed coordinate once and then blocks until cancellation.
// Used for CLI-supplied positions.
type Static struct {
	Coords domain.Coordinates
}

func (s Static) Watch(ctx context.Context) (<-chan Sample, error) {
	ch := make(chan Sample, 1)
	ch <- Sample{Coords: &s.Coords}
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

// Func polls a source at a fixed interval. An initial sample is taken
// immediately so callers see a state before the first tick.
type Func struct {
	Interval time.Duration
	Source   func(ctx context.Context) Sample
}

func (f Func) Watch(ctx context.Context) (<-chan Sample, error) {
	if f.Source == nil {
		return nil, fmt.Errorf("geo: no sample source")
	}
	interval := f.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ch := make(chan Sample)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		emit := func() bool {
			select {
			case ch <- f.Source(ctx):
				return true
			case <-ctx.Done():
				return false
			}
		}
		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !emit() {
					return
				}
			}
		}
	}()
	return ch, nil
}
