// Package poll reconciles a client's local view against the shared store.
// The comparison logic is pure so it can be tested without timers; the
// 2000 ms cadence lives in the controllers that call it.
package poll

import "rescueline/internal/domain"

// Responder decides the responder dashboard's next view. The incoming
// snapshot replaces the local view only when the id or status differs, so an
// unchanged payload never re-triggers downstream work. A nil remote clears
// the view (no active case).
func Responder(local, remote *domain.RescueRequest) (*domain.RescueRequest, bool) {
	if remote == nil {
		if local == nil {
			return nil, false
		}
		return nil, true
	}
	if local == nil || local.ID != remote.ID || local.Status != remote.Status {
		return remote, true
	}
	return local, false
}

// Patient decides the tracking view's next state for one tracked request.
// When the stored record matches the tracked id with a different status, the
// local view adopts it wholesale. An absent slot while tracking means the
// responder completed the episode and cleared it; the tracked copy is
// promoted to COMPLETED so the patient still observes the terminal state.
func Patient(tracked, remote *domain.RescueRequest) (*domain.RescueRequest, bool) {
	if tracked == nil {
		return nil, false
	}
	if remote == nil {
		if tracked.Status.Terminal() {
			return tracked, false
		}
		done := *tracked
		done.Status = domain.StatusCompleted
		return &done, true
	}
	if remote.ID != tracked.ID {
		return tracked, false
	}
	if remote.Status != tracked.Status {
		return remote, true
	}
	return tracked, false
}

// ReplaceInHistory swaps the entry matching req.ID in place, preserving
// order. It reports whether an entry was replaced.
func ReplaceInHistory(history []domain.RescueRequest, req domain.RescueRequest) ([]domain.RescueRequest, bool) {
	for i := range history {
		if history[i].ID == req.ID {
			history[i] = req
			return history, true
		}
	}
	return history, false
}
