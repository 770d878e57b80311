// Package responder drives the dispatcher-side flow: watching for incoming
// requests and advancing them through arrival and completion.
package responder

import (
	"context"
	"log"
	"sync"
	"time"

	"rescueline/internal/domain"
	"rescueline/internal/engine"
	"rescueline/internal/poll"
	"rescueline/internal/store"
)

// Controller maintains the responder's view of the active request. State
// changes it performs itself are applied locally from the engine's returned
// record, so the dashboard never waits a poll cycle for its own action.
type Controller struct {
	Store    store.Store
	Engine   engine.Engine
	Interval time.Duration
	Logger   *log.Logger

	mu   sync.RWMutex
	view *domain.RescueRequest
}

// Active returns the current view, nil when no case is on the board.
func (c *Controller) Active() *domain.RescueRequest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.view == nil {
		return nil
	}
	cp := *c.view
	return &cp
}

// Watch polls the store until ctx is cancelled, invoking onChange whenever
// the view is replaced or cleared. An immediate first poll precedes the
// ticker so the board is populated without waiting an interval.
func (c *Controller) Watch(ctx context.Context, onChange func(*domain.RescueRequest)) error {
	if err := c.pollOnce(ctx, onChange); err != nil {
		c.logf("responder: poll failed: %v", err)
	}
	ticker := time.NewTicker(c.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.pollOnce(ctx, onChange); err != nil {
				c.logf("responder: poll failed: %v", err)
			}
		}
	}
}

func (c *Controller) pollOnce(ctx context.Context, onChange func(*domain.RescueRequest)) error {
	remote, err := store.LoadRequest(ctx, c.Store)
	if err != nil {
		return err
	}
	c.mu.Lock()
	next, changed := poll.Responder(c.view, remote)
	c.view = next
	c.mu.Unlock()
	if changed && onChange != nil {
		onChange(c.Active())
	}
	return nil
}

// Arrive marks the active request ARRIVED.
func (c *Controller) Arrive(ctx context.Context, id string) (domain.RescueRequest, error) {
	return c.advance(ctx, id, domain.StatusArrived)
}

// Complete marks the active request COMPLETED and drops it from the board.
func (c *Controller) Complete(ctx context.Context, id string) (domain.RescueRequest, error) {
	return c.advance(ctx, id, domain.StatusCompleted)
}

func (c *Controller) advance(ctx context.Context, id string, status domain.Status) (domain.RescueRequest, error) {
	updated, err := c.Engine.Advance(ctx, id, status)
	if err != nil {
		return updated, err
	}
	c.mu.Lock()
	if updated.Status.Terminal() {
		c.view = nil
	} else {
		cp := updated
		c.view = &cp
	}
	c.mu.Unlock()
	return updated, nil
}

func (c *Controller) interval() time.Duration {
	if c.Interval > 0 {
		return c.Interval
	}
	return 2 * time.Second
}

func (c *Controller) logf(format string, args ...any) {
	if c.Logger != nil {
		c.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
