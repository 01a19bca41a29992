package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Event kinds recorded by the poller and the gate machine.
const (
	KindRunStarted      = "run_started"
	KindResumed         = "resumed"
	KindGateEntered     = "gate_entered"
	KindGateApproved    = "gate_approved"
	KindClipRegenerated = "clip_regenerated"
	KindRunStopped      = "run_stopped"
)

// Kinds lists every event kind in lifecycle order.
var Kinds = []string{
	KindRunStarted,
	KindGateEntered,
	KindGateApproved,
	KindClipRegenerated,
	KindResumed,
	KindRunStopped,
}

// ValidKind reports whether kind may be logged.
func ValidKind(kind string) bool {
	for _, k := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Event represents a row in the run_events table.
type Event struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// LogEvent inserts an event.
func (d *DB) LogEvent(ctx context.Context, kind, detail string) error {
	if !ValidKind(kind) {
		return fmt.Errorf("log event: unknown kind %q", kind)
	}
	if _, err := d.pool.Exec(ctx,
		`INSERT INTO run_events (kind, detail) VALUES ($1, $2)`,
		kind, detail,
	); err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit events, newest first. An empty kind
// matches every kind.
func (d *DB) RecentEvents(ctx context.Context, kind string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.pool.Query(ctx,
		`SELECT id, kind, detail, created_at
		 FROM run_events
		 WHERE $1 = '' OR kind = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		kind, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	events, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Event])
	if err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return events, nil
}

// CountByKind returns how many events of each kind were logged since t.
func (d *DB) CountByKind(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT kind, COUNT(*) FROM run_events WHERE created_at >= $1 GROUP BY kind`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[kind] = n
	}
	return out, rows.Err()
}
