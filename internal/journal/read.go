package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/radiocap/internal/capability"
)

// Entry is a stored trace event.
type Entry struct {
	RunID   string
	Seq     int64
	Kind    capability.TraceKind
	Session capability.TransactionID
	Slot    int
	// Body is the canonical JSON rendering of the event.
	Body string
}

// Session summarizes one transaction id within a run.
type Session struct {
	ID     capability.TransactionID `json:"session"`
	Events int                      `json:"events"`
	// Outcome is "done", "aborted", or empty while unfinished.
	Outcome string `json:"outcome"`
}

// ListRuns returns every run, oldest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, started_at
		FROM runs
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		var started string
		if err := rows.Scan(&r.ID, &r.Name, &started); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, err = time.Parse(time.RFC3339Nano, started)
		if err != nil {
			return nil, fmt.Errorf("run %s: bad start time: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recent run. Returns sql.ErrNoRows if the
// journal is empty.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	runs, err := s.ListRuns(ctx)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, sql.ErrNoRows
	}
	return runs[len(runs)-1], nil
}

// ListSessions returns the transactions of a run in the order they began.
func (s *Store) ListSessions(ctx context.Context, runID string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session,
		       COUNT(*),
		       COALESCE(MAX(CASE WHEN kind IN ('done', 'aborted') THEN kind END), '')
		FROM events
		WHERE run_id = ? AND session != 0
		GROUP BY session
		ORDER BY MIN(seq) ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var ss Session
		var id int32
		if err := rows.Scan(&id, &ss.Events, &ss.Outcome); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		ss.ID = capability.TransactionID(id)
		sessions = append(sessions, ss)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadSession returns the events of one transaction in sequence order.
func (s *Store) ReadSession(ctx context.Context, runID string, session capability.TransactionID) ([]Entry, error) {
	return s.readEntries(ctx, `
		SELECT run_id, seq, kind, session, slot, body
		FROM events
		WHERE run_id = ? AND session = ?
		ORDER BY seq ASC
	`, runID, int32(session))
}

// ReadRun returns every event of a run in sequence order.
func (s *Store) ReadRun(ctx context.Context, runID string) ([]Entry, error) {
	return s.readEntries(ctx, `
		SELECT run_id, seq, kind, session, slot, body
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
}

func (s *Store) readEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var kind string
		var session int32
		if err := rows.Scan(&e.RunID, &e.Seq, &kind, &session, &e.Slot, &e.Body); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = capability.TraceKind(kind)
		e.Session = capability.TransactionID(session)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return entries, nil
}
