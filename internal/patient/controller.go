// Package patient drives the victim-side flow: profile management,
// submission and tracking of an active rescue request.
package patient

import (
	"context"
	"log"
	"time"

	"rescueline/internal/domain"
	"rescueline/internal/engine"
	"rescueline/internal/geo"
	"rescueline/internal/poll"
	"rescueline/internal/store"
	"rescueline/internal/triage"
)

// Controller owns the patient side of the shared store. It is the only
// writer of the profile and history slots.
type Controller struct {
	Store      store.Store
	Engine     engine.Engine
	Classifier triage.Classifier
	Location   *geo.Tracker
	Interval   time.Duration
	Logger     *log.Logger
}

// SubmitOptions carries the submission form.
type SubmitOptions struct {
	Name      string
	Symptoms  string
	Conscious bool
	// UseProfile attaches a snapshot of the saved profile to the request.
	UseProfile bool
	// Location overrides the tracker's last fix when set.
	Location *domain.Coordinates
}

func (c *Controller) Profile(ctx context.Context) (*domain.PatientProfile, error) {
	return store.LoadProfile(ctx, c.Store)
}

func (c *Controller) SaveProfile(ctx context.Context, p domain.PatientProfile) error {
	return store.SaveProfile(ctx, c.Store, p)
}

func (c *Controller) History(ctx context.Context) ([]domain.RescueRequest, error) {
	return store.LoadHistory(ctx, c.Store)
}

func (c *Controller) Active(ctx context.Context) (*domain.RescueRequest, error) {
	return store.LoadRequest(ctx, c.Store)
}

// Submit classifies the symptoms once, creates the request and prepends it to
// history. The profile snapshot is copied by value so later edits never
// retroactively change a past request.
func (c *Controller) Submit(ctx context.Context, opts SubmitOptions) (domain.RescueRequest, error) {
	var snapshot *domain.PatientProfile
	profile, err := store.LoadProfile(ctx, c.Store)
	if err != nil {
		return domain.RescueRequest{}, err
	}
	if opts.UseProfile && profile != nil {
		cp := *profile
		snapshot = &cp
	}

	name := opts.Name
	if name == "" && snapshot != nil {
		name = snapshot.FullName
	}

	// Medical history only informs triage when the patient opted in.
	tri, err := c.Classifier.Classify(ctx, opts.Symptoms, opts.Conscious, snapshot)
	if err != nil {
		return domain.RescueRequest{}, err
	}

	loc := opts.Location
	if loc == nil && c.Location != nil {
		loc = c.Location.Last()
	}

	victim := domain.VictimData{
		Name:        name,
		Symptoms:    opts.Symptoms,
		Conscious:   opts.Conscious,
		ProfileData: snapshot,
	}
	req, err := c.Engine.Create(ctx, victim, loc, &tri)
	if err != nil {
		return domain.RescueRequest{}, err
	}

	history, err := store.LoadHistory(ctx, c.Store)
	if err != nil {
		return req, err
	}
	history = append([]domain.RescueRequest{req}, history...)
	if err := store.SaveHistory(ctx, c.Store, history); err != nil {
		return req, err
	}
	return req, nil
}

// Track follows the given request until it completes or ctx is cancelled.
// Each observed change is pushed to onUpdate and mirrored into history.
func (c *Controller) Track(ctx context.Context, req domain.RescueRequest, onUpdate func(domain.RescueRequest)) error {
	tracked := &req
	if onUpdate != nil {
		onUpdate(*tracked)
	}
	ticker := time.NewTicker(c.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			remote, err := store.LoadRequest(ctx, c.Store)
			if err != nil {
				c.logf("patient: poll failed: %v", err)
				continue
			}
			next, changed := poll.Patient(tracked, remote)
			if !changed {
				continue
			}
			tracked = next
			if err := c.recordInHistory(ctx, *tracked); err != nil {
				c.logf("patient: history update failed: %v", err)
			}
			if onUpdate != nil {
				onUpdate(*tracked)
			}
			if tracked.Status.Terminal() {
				return nil
			}
		}
	}
}

func (c *Controller) recordInHistory(ctx context.Context, req domain.RescueRequest) error {
	history, err := store.LoadHistory(ctx, c.Store)
	if err != nil {
		return err
	}
	history, replaced := poll.ReplaceInHistory(history, req)
	if !replaced {
		history = append([]domain.RescueRequest{req}, history...)
	}
	return store.SaveHistory(ctx, c.Store, history)
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
