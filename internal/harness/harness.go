package harness

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/radiocap/internal/capability"
	"github.com/roach88/radiocap/internal/config"
	"github.com/roach88/radiocap/internal/loop"
	"github.com/roach88/radiocap/internal/radio"
	"github.com/roach88/radiocap/internal/rpc"
	"github.com/roach88/radiocap/internal/sim"
	"github.com/roach88/radiocap/internal/testutil"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool `json:"pass"`

	// Trace holds every manager trace event in sequence order.
	Trace []capability.TraceEvent `json:"-"`

	// Status is the manager state after the final drain.
	Status capability.Status `json:"status"`

	// Outcome is the last terminal transaction result.
	Outcome string `json:"outcome"`

	// WireRequests counts SET_RADIO_CAPABILITY requests handled by the
	// modems.
	WireRequests int `json:"wire_requests"`

	Errors []string `json:"errors,omitempty"`
}

// AddError records a failed expectation.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Option configures Run.
type Option func(*runner)

// WithLogger routes manager and device logs to logger. Runs are silent by
// default.
func WithLogger(logger *slog.Logger) Option {
	return func(r *runner) { r.logger = logger }
}

// WithTracer also sends trace events to t, e.g. a journal recorder.
func WithTracer(t capability.Tracer) Option {
	return func(r *runner) { r.extra = append(r.extra, t) }
}

type runner struct {
	logger *slog.Logger
	extra  []capability.Tracer

	loop   *loop.Loop
	device *config.Device
	mgr    *capability.Manager
	tokens map[string]string
	trace  []capability.TraceEvent
}

// Run executes s on a fresh simulated device.
//
// An error is returned when the scenario cannot be executed at all (bad
// device, a step the manager rejects). Failed expectations are reported in
// Result.Errors instead.
func Run(s *Scenario, opts ...Option) (*Result, error) {
	r := &runner{logger: testutil.DiscardLogger(), tokens: map[string]string{}}
	for _, opt := range opts {
		opt(r)
	}

	mc, err := s.Device.ManagerConfig()
	if err != nil {
		return nil, fmt.Errorf("device: %w", err)
	}
	r.loop, _ = testutil.NewLoop()
	r.device, err = config.NewDevice(r.loop, s.Device, r.logger)
	if err != nil {
		return nil, fmt.Errorf("device: %w", err)
	}

	tracers := capability.MultiTracer{capability.TracerFunc(r.record)}
	tracers = append(tracers, r.extra...)
	r.mgr = capability.New(r.loop,
		capability.WithConfig(mc),
		capability.WithLogger(r.logger),
		capability.WithTracer(tracers),
		capability.WithSequence(loop.NewSequence()),
		capability.WithTokenGenerator(testutil.NewSequentialTokens("req")),
	)
	defer r.mgr.Close()

	for i, f := range s.Faults {
		ss, _ := r.device.Lookup(f.Slot)
		op, err := sim.ParseOp(f.Op)
		if err != nil {
			return nil, fmt.Errorf("faults[%d]: %w", i, err)
		}
		kind, err := sim.ParseFaultKind(f.Kind)
		if err != nil {
			return nil, fmt.Errorf("faults[%d]: %w", i, err)
		}
		ss.HAL.Inject(sim.Fault{Op: op, Kind: kind, Times: f.Times})
	}

	if err := r.device.Attach(r.mgr); err != nil {
		return nil, fmt.Errorf("attach device: %w", err)
	}
	for i, st := range s.Steps {
		if err := r.step(st); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	r.loop.Drain()

	res := &Result{
		Pass:         true,
		Trace:        r.trace,
		Status:       r.mgr.Status(),
		Outcome:      outcome(r.trace),
		WireRequests: r.device.WireRequests(rpc.CodeSetRadioCapability),
	}
	evaluate(res, s.Expect)
	return res, nil
}

func (r *runner) record(e capability.TraceEvent) {
	r.trace = append(r.trace, e)
}

func (r *runner) step(st Step) error {
	slotOf := func(index int) (*config.SimSlot, error) {
		ss, ok := r.device.Lookup(index)
		if !ok {
			return nil, fmt.Errorf("unknown slot %d", index)
		}
		return ss, nil
	}

	switch {
	case st.Request != nil:
		modes, err := radio.ParseModes(st.Request.Modes)
		if err != nil {
			return err
		}
		role, err := capability.ParseRole(st.Request.Role)
		if err != nil {
			return err
		}
		token, err := r.mgr.Request(st.Request.Slot, modes, role)
		if err != nil {
			return err
		}
		if st.Request.As != "" {
			r.tokens[st.Request.As] = token
		}

	case st.Release != "":
		token, ok := r.tokens[st.Release]
		if !ok {
			token = st.Release
		}
		return r.mgr.Release(token)

	case st.Online != nil:
		ss, err := slotOf(st.Online.Slot)
		if err != nil {
			return err
		}
		ss.Radio.SetOnline(st.Online.Value)

	case st.SIM != nil:
		ss, err := slotOf(st.SIM.Slot)
		if err != nil {
			return err
		}
		ss.SIM.SetPresent(st.SIM.Present, st.SIM.Present)
		if st.SIM.Present {
			ss.SIM.SetIdentity(st.SIM.Identity)
		}

	case st.SimIO != nil:
		ss, err := slotOf(st.SimIO.Slot)
		if err != nil {
			return err
		}
		ss.SIM.SetIOActive(st.SimIO.Value)

	case st.Modem != nil:
		ss, err := slotOf(st.Modem.Slot)
		if err != nil {
			return err
		}
		ss.Modem.SetPresent(st.Modem.Value)

	case st.Calls != nil:
		ss, err := slotOf(st.Calls.Slot)
		if err != nil {
			return err
		}
		ss.Data.SetCalls(st.Calls.IDs)

	case st.Remove != nil:
		return r.mgr.RemoveSlot(*st.Remove)

	case st.Run:
		r.loop.Drain()

	case st.Advance != "":
		d, err := time.ParseDuration(st.Advance)
		if err != nil {
			return err
		}
		r.loop.Advance(d)
	}
	return nil
}

// outcome maps the last terminal trace event to an outcome name.
func outcome(trace []capability.TraceEvent) string {
	for i := len(trace) - 1; i >= 0; i-- {
		switch trace[i].Kind {
		case capability.TraceDone:
			return OutcomeCommitted
		case capability.TraceAborted:
			return OutcomeAborted
		}
	}
	return OutcomeNone
}
