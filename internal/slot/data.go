package slot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/radiocap/internal/event"
	"github.com/roach88/radiocap/internal/rpc"
)

// ErrCancelled is reported to a queued data request dropped by its cancel
// policy.
var ErrCancelled = errors.New("data request cancelled")

// CancelPolicy decides which queued requests a later allow/disallow
// supersedes.
type CancelPolicy int

const (
	CancelNone CancelPolicy = iota
	// CancelOnAllowed drops the request if data is allowed before it is sent.
	CancelOnAllowed
	// CancelOnDisallowed drops the request if data is disallowed before it
	// is sent.
	CancelOnDisallowed
)

func (p CancelPolicy) String() string {
	switch p {
	case CancelNone:
		return "none"
	case CancelOnAllowed:
		return "cancel-on-allowed"
	case CancelOnDisallowed:
		return "cancel-on-disallowed"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// RequestState tracks a data request through the FIFO.
type RequestState int

const (
	StateIdle RequestState = iota
	StateSubmitted
	StateCompleted
)

func (s RequestState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitted:
		return "submitted"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type dataRequest struct {
	code   rpc.Code
	call   int32
	allow  bool
	owner  rpc.Owner
	policy CancelPolicy
	state  RequestState
	done   func(error)
}

// Data is an in-memory DataManager that talks to the modem over an
// rpc.Channel. Requests are sent one at a time in FIFO order.
type Data struct {
	notifier
	channel       rpc.Channel
	logger        *slog.Logger
	calls         []int32
	allowed       bool
	allowedNeeded bool

	queue   []*dataRequest
	current *dataRequest
}

// NewData creates a data manager for slot with the given active calls.
// allowedNeeded marks modems that must be told to disallow data before a
// capability switch.
func NewData(slot int, ch rpc.Channel, calls []int32, allowedNeeded bool, logger *slog.Logger) *Data {
	if logger == nil {
		logger = slog.Default()
	}
	return &Data{
		notifier:      notifier{slot: slot},
		channel:       ch,
		logger:        logger,
		calls:         slices.Clone(calls),
		allowed:       true,
		allowedNeeded: allowedNeeded,
	}
}

func (d *Data) ActiveCalls() []int32 { return slices.Clone(d.calls) }

func (d *Data) SetDataAllowedNeeded() bool { return d.allowedNeeded }

// DataAllowed reports the last acknowledged allow state.
func (d *Data) DataAllowed() bool { return d.allowed }

// SetCalls replaces the active call list.
func (d *Data) SetCalls(calls []int32) {
	if slices.Equal(d.calls, calls) {
		return
	}
	d.calls = slices.Clone(calls)
	d.emit(event.DataCallsChanged)
}

// Pending returns the number of requests queued or in flight.
func (d *Data) Pending() int {
	n := len(d.queue)
	if d.current != nil {
		n++
	}
	return n
}

// Deactivate tears down call.
func (d *Data) Deactivate(owner rpc.Owner, call int32, done func(error)) {
	d.enqueue(&dataRequest{code: rpc.CodeDeactivateDataCall, call: call, owner: owner, policy: CancelNone, done: done})
}

// DisallowData tells the modem to stop data. Queued allow requests are
// dropped.
func (d *Data) DisallowData(owner rpc.Owner, done func(error)) {
	d.cancelQueued(CancelOnDisallowed)
	d.enqueue(&dataRequest{code: rpc.CodeAllowData, allow: false, owner: owner, policy: CancelOnAllowed, done: done})
}

// AllowData re-enables data. Queued disallow requests are dropped.
func (d *Data) AllowData(owner rpc.Owner, done func(error)) {
	d.cancelQueued(CancelOnAllowed)
	d.enqueue(&dataRequest{code: rpc.CodeAllowData, allow: true, owner: owner, policy: CancelOnDisallowed, done: done})
}

func (d *Data) enqueue(r *dataRequest) {
	d.queue = append(d.queue, r)
	d.process()
}

func (d *Data) cancelQueued(policy CancelPolicy) {
	kept := d.queue[:0]
	var dropped []*dataRequest
	for _, r := range d.queue {
		if r.policy == policy {
			dropped = append(dropped, r)
			continue
		}
		kept = append(kept, r)
	}
	d.queue = kept
	for _, r := range dropped {
		r.state = StateCompleted
		d.logger.Debug("data request cancelled", "slot", d.slot, "code", r.code, "policy", r.policy)
		if r.done != nil {
			r.done(ErrCancelled)
		}
	}
}

func (d *Data) process() {
	if d.current != nil || len(d.queue) == 0 {
		return
	}
	r := d.queue[0]
	d.queue = d.queue[1:]
	d.current = r
	r.state = StateSubmitted

	var payload []byte
	if r.code == rpc.CodeDeactivateDataCall {
		payload = binary.LittleEndian.AppendUint32(nil, uint32(r.call))
	} else {
		v := uint32(0)
		if r.allow {
			v = 1
		}
		payload = binary.LittleEndian.AppendUint32(nil, v)
	}

	d.channel.Submit(rpc.Request{
		Code:    r.code,
		Payload: payload,
		Owner:   r.owner,
		Done:    func(resp rpc.Response) { d.complete(r, resp) },
	})
}

func (d *Data) complete(r *dataRequest, resp rpc.Response) {
	r.state = StateCompleted
	d.current = nil

	err := resp.Err(r.code)
	if err == nil {
		switch r.code {
		case rpc.CodeDeactivateDataCall:
			if i := slices.Index(d.calls, r.call); i >= 0 {
				d.calls = slices.Delete(d.calls, i, i+1)
				d.emit(event.DataCallsChanged)
			}
		case rpc.CodeAllowData:
			d.allowed = r.allow
		}
	} else {
		d.logger.Debug("data request failed", "slot", d.slot, "code", r.code, "error", err)
	}

	if r.done != nil {
		r.done(err)
	}
	d.process()
}
