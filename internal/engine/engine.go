// Package engine implements the rescue-request lifecycle state machine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"rescueline/internal/config"
	"rescueline/internal/domain"
	"rescueline/internal/events"
	"rescueline/internal/store"
)

var (
	// ErrActiveRequest rejects a second submission while one episode is
	// still open. The store holds at most one non-terminal request.
	ErrActiveRequest = errors.New("an active rescue request already exists")
	// ErrNoActiveRequest means the active slot is empty or holds a
	// different request than the one being advanced.
	ErrNoActiveRequest = errors.New("no matching active rescue request")
	// ErrInvalidTransition guards the one-directional status order.
	ErrInvalidTransition = errors.New("invalid status transition")
)

type Engine struct {
	Store  store.Store
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
	Intn   func(n int) int
}

func New(st store.Store, ev events.Writer, cfg *config.Config) Engine {
	return Engine{
		Store:  st,
		Events: ev,
		Config: cfg,
		Now:    time.Now,
		Intn:   rand.Intn,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) intn(n int) int {
	if e.Intn != nil {
		return e.Intn(n)
	}
	return rand.Intn(n)
}

// Create opens a new episode. The triage result is frozen in as given and
// never re-evaluated; the caller classified exactly once before calling.
// Requests start DISPATCHED with a pseudo-random ETA in the configured range.
func (e Engine) Create(ctx context.Context, victim domain.VictimData, loc *domain.Coordinates, tri *domain.TriageResult) (domain.RescueRequest, error) {
	if e.Config == nil {
		return domain.RescueRequest{}, errors.New("config not loaded")
	}
	if strings.TrimSpace(victim.Symptoms) == "" {
		return domain.RescueRequest{}, errors.New("symptoms are required")
	}
	cur, err := store.LoadRequest(ctx, e.Store)
	if err != nil {
		return domain.RescueRequest{}, err
	}
	if cur != nil && !cur.Status.Terminal() {
		return domain.RescueRequest{}, fmt.Errorf("%w: %s", ErrActiveRequest, cur.ID)
	}

	req := domain.RescueRequest{
		ID:         uuid.New().String(),
		Timestamp:  e.now().UnixMilli(),
		Victim:     victim,
		Location:   loc,
		Triage:     tri,
		Status:     domain.StatusDispatched,
		ETAMinutes: e.etaMinutes(),
	}
	if err := store.SaveRequest(ctx, e.Store, req); err != nil {
		return domain.RescueRequest{}, err
	}
	payload := events.EventPayload{"status": req.Status, "eta_minutes": req.ETAMinutes}
	if tri != nil {
		payload["severity"] = tri.Severity
	}
	if err := e.Events.Append(ctx, "request.created", req.ID, "patient", payload); err != nil {
		return domain.RescueRequest{}, err
	}
	return req, nil
}

// Advance moves the active request forward. The returned record is the exact
// object written to the store, so callers can apply it locally without a
// read-back (write-then-local-apply).
func (e Engine) Advance(ctx context.Context, id string, newStatus domain.Status) (domain.RescueRequest, error) {
	cur, err := store.LoadRequest(ctx, e.Store)
	if err != nil {
		return domain.RescueRequest{}, err
	}
	if cur == nil || cur.ID != id {
		return domain.RescueRequest{}, fmt.Errorf("%w: %s", ErrNoActiveRequest, id)
	}
	if err := ensureStatusTransition(cur.Status, newStatus); err != nil {
		return *cur, err
	}

	updated := *cur
	updated.Status = newStatus
	switch newStatus {
	case domain.StatusArrived:
		updated.ETAMinutes = 0
		if err := store.SaveRequest(ctx, e.Store, updated); err != nil {
			return *cur, err
		}
		if err := e.Events.Append(ctx, "request.arrived", updated.ID, "responder", nil); err != nil {
			return updated, err
		}
	case domain.StatusCompleted:
		// Terminal: the active slot is cleared and the record lives on
		// only in history, which the patient side reconciles.
		if err := store.ClearRequest(ctx, e.Store); err != nil {
			return *cur, err
		}
		if err := e.Events.Append(ctx, "request.completed", updated.ID, "responder", nil); err != nil {
			return updated, err
		}
	}
	return updated, nil
}

func ensureStatusTransition(oldStatus, newStatus domain.Status) error {
	switch oldStatus {
	case domain.StatusPending, domain.StatusDispatched:
		if newStatus == domain.StatusArrived || newStatus == domain.StatusCompleted {
			return nil
		}
	case domain.StatusArrived:
		if newStatus == domain.StatusCompleted {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, oldStatus, newStatus)
}

func (e Engine) etaMinutes() int {
	min, max := 5, 15
	if e.Config != nil && e.Config.ETA.MinMinutes > 0 && e.Config.ETA.MaxMinutes >= e.Config.ETA.MinMinutes {
		min, max = e.Config.ETA.MinMinutes, e.Config.ETA.MaxMinutes
	}
	return min + e.intn(max-min+1)
}
