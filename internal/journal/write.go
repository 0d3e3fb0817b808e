package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/radiocap/internal/capability"
	"github.com/roach88/radiocap/internal/radio"
)

// Run identifies one manager run.
type Run struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartedAt time.Time `json:"started_at"`
}

// BeginRun records a new run. An empty id is replaced by a UUIDv7.
func (s *Store) BeginRun(ctx context.Context, id, name string, startedAt time.Time) (Run, error) {
	if id == "" {
		u, err := uuid.NewV7()
		if err != nil {
			return Run{}, fmt.Errorf("begin run: %w", err)
		}
		id = u.String()
	}
	run := Run{ID: id, Name: name, StartedAt: startedAt.UTC()}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, name, started_at)
		VALUES (?, ?, ?)
	`, run.ID, run.Name, run.StartedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Run{}, fmt.Errorf("begin run: %w", err)
	}
	return run, nil
}

// Append stores one trace event. Re-appending the same (run, seq) is a
// no-op.
func (s *Store) Append(ctx context.Context, runID string, e capability.TraceEvent) error {
	body, err := radio.MarshalCanonical(e.Fields())
	if err != nil {
		return fmt.Errorf("append event %d: %w", e.Seq, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (run_id, seq, kind, session, slot, body)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`, runID, e.Seq, string(e.Kind), int32(e.Session), e.Slot, string(body))
	if err != nil {
		return fmt.Errorf("append event %d: %w", e.Seq, err)
	}
	return nil
}

// Recorder is a capability.Tracer writing into one run. The manager cannot
// handle trace errors, so the first one is kept for Err.
type Recorder struct {
	store *Store
	ctx   context.Context
	runID string

	mu  sync.Mutex
	err error
	n   int
}

// Recorder returns a tracer appending to runID.
func (s *Store) Recorder(ctx context.Context, runID string) *Recorder {
	return &Recorder{store: s, ctx: ctx, runID: runID}
}

// Trace implements capability.Tracer.
func (r *Recorder) Trace(e capability.TraceEvent) {
	err := r.store.Append(r.ctx, r.runID, e)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		if r.err == nil {
			r.err = err
		}
		return
	}
	r.n++
}

// Err returns the first append failure.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Written returns the number of events stored.
func (r *Recorder) Written() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}
