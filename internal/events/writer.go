package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends lifecycle events to the event log. A nil DB writer is a
// no-op so in-memory stores can run without a log.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

type Event struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts"`
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Actor     string `json:"actor"`
	Payload   string `json:"payload_json"`
}

func (w Writer) Append(ctx context.Context, evtType, requestID, actor string, payload EventPayload) error {
	if w.DB == nil {
		return nil
	}
	now := w.Now
	if now == nil {
		now = time.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = w.DB.ExecContext(ctx, `INSERT INTO events(ts,type,request_id,actor,payload_json) VALUES (?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), evtType, nullable(requestID), actor, string(data))
	return err
}

// Latest returns the most recent events, optionally filtered by request id.
func (w Writer) Latest(ctx context.Context, n int, requestID string) ([]Event, error) {
	if w.DB == nil {
		return nil, nil
	}
	if n <= 0 {
		n = 20
	}
	query := `SELECT id,ts,type,COALESCE(request_id,''),actor,payload_json FROM events`
	args := []any{}
	if requestID != "" {
		query += ` WHERE request_id=?`
		args = append(args, requestID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)
	rows, err := w.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.RequestID, &e.Actor, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
