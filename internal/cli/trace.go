package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/radiocap/internal/capability"
	"github.com/roach88/radiocap/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Run      string
	Session  int32
}

// TraceRun is the JSON payload when listing a run's transactions.
type TraceRun struct {
	Run      string            `json:"run"`
	Name     string            `json:"name"`
	Sessions []journal.Session `json:"sessions"`
}

// TraceSession is the JSON payload for one transaction's events.
type TraceSession struct {
	Run     string            `json:"run"`
	Session int32             `json:"session"`
	Events  []json.RawMessage `json:"events"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Read transactions back from a journal",
		Long: `Read a journal written by simulate --db or serve --db.

Without --session, lists the transactions of the run with their event
counts and outcomes. With --session, prints that transaction's events in
sequence order. --run defaults to the most recent run.

Examples:
  radiocap trace --db ./radiocap.db
  radiocap trace --db ./radiocap.db --session 2
  radiocap trace --db ./radiocap.db --run 0190... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Run, "run", "", "run id (default: latest)")
	cmd.Flags().Int32Var(&opts.Session, "session", 0, "transaction id to print")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Open creates missing files; a trace of a journal that does not exist
	// is a usage error.
	if _, err := os.Stat(opts.Database); err != nil {
		return out.Fail(ExitCommandError, ErrCodeJournal, fmt.Sprintf("journal not found: %s", opts.Database), nil, nil)
	}
	st, err := journal.Open(opts.Database)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeJournal, fmt.Sprintf("open journal: %v", err), nil, nil)
	}
	defer st.Close()

	run, err := findRun(ctx, st, opts.Run)
	if errors.Is(err, sql.ErrNoRows) {
		if opts.Run != "" {
			return out.Fail(ExitCommandError, ErrCodeJournal, fmt.Sprintf("run not found: %s", opts.Run), nil, nil)
		}
		return out.Success(TraceRun{Sessions: []journal.Session{}}, "No runs recorded.")
	}
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil, nil)
	}

	if opts.Session != 0 {
		return traceSession(ctx, out, st, run, capability.TransactionID(opts.Session))
	}

	sessions, err := st.ListSessions(ctx, run.ID)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil, nil)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s, started %s)\n", run.ID, run.Name, run.StartedAt.Format("2006-01-02 15:04:05"))
	if len(sessions) == 0 {
		b.WriteString("  no transactions")
	}
	for i, s := range sessions {
		outcome := s.Outcome
		if outcome == "" {
			outcome = "incomplete"
		}
		fmt.Fprintf(&b, "  session %-4d %3d events  %s", s.ID, s.Events, outcome)
		if i < len(sessions)-1 {
			b.WriteByte('\n')
		}
	}
	return out.Success(TraceRun{Run: run.ID, Name: run.Name, Sessions: sessions}, b.String())
}

func traceSession(ctx context.Context, out *OutputFormatter, st *journal.Store, run journal.Run, session capability.TransactionID) error {
	entries, err := st.ReadSession(ctx, run.ID, session)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil, nil)
	}
	if len(entries) == 0 {
		return out.Fail(ExitCommandError, ErrCodeJournal, fmt.Sprintf("session %d not found in run %s", session, run.ID), nil, nil)
	}

	events := make([]json.RawMessage, 0, len(entries))
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		events = append(events, json.RawMessage(e.Body))
		lines = append(lines, e.Body)
	}
	return out.Success(TraceSession{Run: run.ID, Session: int32(session), Events: events}, strings.Join(lines, "\n"))
}

func findRun(ctx context.Context, st *journal.Store, id string) (journal.Run, error) {
	if id == "" {
		return st.LatestRun(ctx)
	}
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return journal.Run{}, err
	}
	for _, r := range runs {
		if r.ID == id {
			return r, nil
		}
	}
	return journal.Run{}, sql.ErrNoRows
}
