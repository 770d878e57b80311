// Package app wires the shared store, engine and config into a runnable
// application instance used by the CLI and the server.
package app

import (
	"time"

	"rescueline/internal/config"
	"rescueline/internal/engine"
	"rescueline/internal/events"
	"rescueline/internal/migrate"
	"rescueline/internal/store"
)

type App struct {
	Workspace string
	Config    *config.Config
	Store     *store.DB
	Events    events.Writer
	Engine    engine.Engine
}

// Open loads the workspace config, opens the store and applies migrations.
func Open(workspace string) (*App, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	db, err := store.Open(store.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(db.Conn); err != nil {
		db.Close()
		return nil, err
	}
	ev := events.Writer{DB: db.Conn}
	return &App{
		Workspace: workspace,
		Config:    cfg,
		Store:     db,
		Events:    ev,
		Engine:    engine.New(db, ev, cfg),
	}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

// PollInterval converts the configured cadence.
func (a *App) PollInterval() time.Duration {
	if a.Config == nil || a.Config.Poll.IntervalMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(a.Config.Poll.IntervalMS) * time.Millisecond
}
