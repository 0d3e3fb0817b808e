package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/radiocap/internal/harness"
	"github.com/roach88/radiocap/internal/journal"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Database string
	Trace    bool
}

// SimulateResult is the JSON payload of simulate.
type SimulateResult struct {
	Name         string   `json:"name"`
	Pass         bool     `json:"pass"`
	Outcome      string   `json:"outcome"`
	WireRequests int      `json:"wire_requests"`
	Events       int      `json:"events"`
	RunID        string   `json:"run_id,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <scenario>",
		Short: "Run one scenario on a simulated device",
		Long: `Run a scenario file on a simulated multi-SIM device and report the
outcome. With --db every trace event is appended to a SQLite journal
that the trace command can read back.

Exit codes:
  0 - All expectations held
  1 - An expectation failed
  2 - Command error (bad scenario, unwritable journal)

Examples:
  radiocap simulate scenarios/swap.yaml
  radiocap simulate scenarios/swap.yaml --trace
  radiocap simulate scenarios/swap.yaml --db ./radiocap.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "append the trace to this SQLite journal")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "print every trace event")

	return cmd
}

func runSimulate(opts *SimulateOptions, path string, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	logger := opts.Logger(cmd.ErrOrStderr())

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeScenario, err.Error(), nil, nil)
	}

	runOpts := []harness.Option{}
	if opts.Verbose {
		runOpts = append(runOpts, harness.WithLogger(logger))
	}

	var (
		rec   *journal.Recorder
		runID string
	)
	if opts.Database != "" {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		st, err := journal.Open(opts.Database)
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeJournal, fmt.Sprintf("open journal: %v", err), nil, nil)
		}
		defer st.Close()
		run, err := st.BeginRun(ctx, "", scenario.Name, time.Now())
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil, nil)
		}
		runID = run.ID
		rec = st.Recorder(ctx, run.ID)
		runOpts = append(runOpts, harness.WithTracer(rec))
		logger.Debug("journal run started", "run", run.ID, "db", opts.Database)
	}

	result, err := harness.Run(scenario, runOpts...)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeScenario, err.Error(), nil, nil)
	}
	if rec != nil {
		if err := rec.Err(); err != nil {
			return out.Fail(ExitCommandError, ErrCodeJournal, fmt.Sprintf("write journal: %v", err), nil, nil)
		}
	}

	res := SimulateResult{
		Name:         scenario.Name,
		Pass:         result.Pass,
		Outcome:      result.Outcome,
		WireRequests: result.WireRequests,
		Events:       len(result.Trace),
		RunID:        runID,
		Errors:       result.Errors,
	}

	if opts.Trace && !out.JSON() {
		lines, err := harness.RenderTrace(result.Trace)
		if err != nil {
			return WrapExitError(ExitCommandError, "render trace", err)
		}
		_, _ = cmd.OutOrStdout().Write(lines)
	}

	if !result.Pass {
		out.Printf("✗ %s: %s\n", res.Name, res.Outcome)
		for _, e := range res.Errors {
			out.Printf("  %s\n", e)
		}
		return out.Fail(ExitFailure, ErrCodeFailed, fmt.Sprintf("%d expectation(s) failed", len(res.Errors)), res, nil)
	}

	text := fmt.Sprintf("✓ %s: %s (%d events, %d wire requests)", res.Name, res.Outcome, res.Events, res.WireRequests)
	if runID != "" {
		text += "\n  journal run " + runID
	}
	return out.Success(res, text)
}
