package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"rescueline/internal/config"
	"rescueline/internal/domain"
	"rescueline/internal/engine"
	"rescueline/internal/events"
	"rescueline/internal/store"
)

type testEnv struct {
	Engine engine.Engine
	Store  *store.Memory
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	mem := store.NewMemory()
	eng := engine.New(mem, events.Writer{}, config.Default())
	eng.Now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }
	eng.Intn = func(n int) int { return 0 }
	return testEnv{Engine: eng, Store: mem, Ctx: context.Background()}
}

func submit(t *testing.T, env testEnv) domain.RescueRequest {
	t.Helper()
	req, err := env.Engine.Create(env.Ctx, domain.VictimData{Symptoms: "chest pain", Conscious: true}, nil, &domain.TriageResult{
		Severity: domain.SeverityHigh, Advice: "stay calm", Department: "Cardiology",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return req
}

func TestCreateAssignsIDStatusAndETA(t *testing.T) {
	env := newTestEnv(t)
	req := submit(t, env)
	if req.ID == "" {
		t.Fatal("expected generated id")
	}
	if req.Status != domain.StatusDispatched {
		t.Fatalf("status = %s, want DISPATCHED", req.Status)
	}
	if req.ETAMinutes < 5 || req.ETAMinutes > 15 {
		t.Fatalf("eta %d outside [5,15]", req.ETAMinutes)
	}
	if req.Timestamp != env.Engine.Now().UnixMilli() {
		t.Fatalf("timestamp = %d", req.Timestamp)
	}
	stored, err := store.LoadRequest(env.Ctx, env.Store)
	if err != nil || stored == nil {
		t.Fatalf("load stored: %v", err)
	}
	if stored.ID != req.ID {
		t.Fatalf("stored id %s != %s", stored.ID, req.ID)
	}
}

func TestCreateETACoversConfiguredRange(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Intn = func(n int) int {
		if n != 11 {
			t.Fatalf("intn bound = %d, want 11 for [5,15]", n)
		}
		return 10
	}
	req := submit(t, env)
	if req.ETAMinutes != 15 {
		t.Fatalf("eta = %d, want 15", req.ETAMinutes)
	}
}

func TestCreateRejectsSecondActiveRequest(t *testing.T) {
	env := newTestEnv(t)
	submit(t, env)
	_, err := env.Engine.Create(env.Ctx, domain.VictimData{Symptoms: "sprain", Conscious: true}, nil, nil)
	if !errors.Is(err, engine.ErrActiveRequest) {
		t.Fatalf("err = %v, want ErrActiveRequest", err)
	}
}

func TestCreateRequiresSymptoms(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Create(env.Ctx, domain.VictimData{Symptoms: "   "}, nil, nil)
	if err == nil {
		t.Fatal("expected error for empty symptoms")
	}
}

func TestAdvanceHappyPath(t *testing.T) {
	env := newTestEnv(t)
	req := submit(t, env)

	arrived, err := env.Engine.Advance(env.Ctx, req.ID, domain.StatusArrived)
	if err != nil {
		t.Fatalf("arrive: %v", err)
	}
	if arrived.Status != domain.StatusArrived || arrived.ETAMinutes != 0 {
		t.Fatalf("arrived = %+v", arrived)
	}

	completed, err := env.Engine.Advance(env.Ctx, req.ID, domain.StatusCompleted)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != domain.StatusCompleted {
		t.Fatalf("status = %s", completed.Status)
	}
	stored, err := store.LoadRequest(env.Ctx, env.Store)
	if err != nil {
		t.Fatal(err)
	}
	if stored != nil {
		t.Fatal("completion should clear the active slot")
	}
}

func TestAdvanceSkipArrivedIsAllowed(t *testing.T) {
	env := newTestEnv(t)
	req := submit(t, env)
	completed, err := env.Engine.Advance(env.Ctx, req.ID, domain.StatusCompleted)
	if err != nil {
		t.Fatalf("dispatch -> completed: %v", err)
	}
	if completed.Status != domain.StatusCompleted {
		t.Fatalf("status = %s", completed.Status)
	}
}

func TestAdvanceRejectsBackwardTransitions(t *testing.T) {
	env := newTestEnv(t)
	req := submit(t, env)
	if _, err := env.Engine.Advance(env.Ctx, req.ID, domain.StatusArrived); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.Advance(env.Ctx, req.ID, domain.StatusDispatched)
	if !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestAdvanceUnknownRequest(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Advance(env.Ctx, "missing", domain.StatusArrived)
	if !errors.Is(err, engine.ErrNoActiveRequest) {
		t.Fatalf("err = %v, want ErrNoActiveRequest", err)
	}

	submit(t, env)
	_, err = env.Engine.Advance(env.Ctx, "someone-else", domain.StatusArrived)
	if !errors.Is(err, engine.ErrNoActiveRequest) {
		t.Fatalf("err = %v, want ErrNoActiveRequest", err)
	}
}

func TestCompletedIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	req := submit(t, env)
	if _, err := env.Engine.Advance(env.Ctx, req.ID, domain.StatusCompleted); err != nil {
		t.Fatal(err)
	}
	// Active slot is gone, so any further advance is a no-active error.
	_, err := env.Engine.Advance(env.Ctx, req.ID, domain.StatusArrived)
	if !errors.Is(err, engine.ErrNoActiveRequest) {
		t.Fatalf("err = %v, want ErrNoActiveRequest", err)
	}
}

func TestTriageIsFrozenAtCreation(t *testing.T) {
	env := newTestEnv(t)
	req := submit(t, env)
	arrived, err := env.Engine.Advance(env.Ctx, req.ID, domain.StatusArrived)
	if err != nil {
		t.Fatal(err)
	}
	if arrived.Triage == nil || arrived.Triage.Severity != domain.SeverityHigh || arrived.Triage.Department != "Cardiology" {
		t.Fatalf("triage changed across transition: %+v", arrived.Triage)
	}
}

func TestCreateAllowedAfterCompletion(t *testing.T) {
	env := newTestEnv(t)
	first := submit(t, env)
	if _, err := env.Engine.Advance(env.Ctx, first.ID, domain.StatusCompleted); err != nil {
		t.Fatal(err)
	}
	second := submit(t, env)
	if second.ID == first.ID {
		t.Fatal("expected a fresh request id")
	}
}
