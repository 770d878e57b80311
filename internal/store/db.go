package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const defaultDBName = "rescueline.db"

type Config struct {
	Workspace string
}

func dbPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".rescueline", defaultDBName)
}

// EnsureWorkspace creates the workspace directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	path := filepath.Join(workspace, ".rescueline")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Open opens the SQLite database backing the shared store.
func Open(cfg Config) (*DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", dbPath(cfg.Workspace))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{Conn: conn, Now: time.Now}, nil
}

// Path returns the db path for the workspace.
func Path(workspace string) string {
	return dbPath(workspace)
}

// DB implements Store over a slots table. Both roles may open the same file;
// SQLite serializes the individual slot writes but offers no transaction
// across slots, matching the store's best-effort contract.
type DB struct {
	Conn *sql.DB
	Now  func() time.Time
}

func (d *DB) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := d.Conn.QueryRowContext(ctx, `SELECT value FROM slots WHERE key=?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (d *DB) Set(ctx context.Context, key string, value []byte) error {
	now := d.now().UTC().Format(time.RFC3339)
	_, err := d.Conn.ExecContext(ctx,
		`INSERT INTO slots(key,value,updated_at) VALUES (?,?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, now)
	return err
}

func (d *DB) Delete(ctx context.Context, key string) error {
	_, err := d.Conn.ExecContext(ctx, `DELETE FROM slots WHERE key=?`, key)
	return err
}

func (d *DB) Close() error { return d.Conn.Close() }

func (d *DB) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
