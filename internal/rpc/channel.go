package rpc

import (
	"log/slog"
	"time"

	"github.com/roach88/radiocap/internal/event"
	"github.com/roach88/radiocap/internal/loop"
)

// DefaultTimeout is used when neither the request nor the channel sets one.
const DefaultTimeout = 30 * time.Second

// Handler answers requests on a SimChannel. Returning ok=false drops the
// attempt; the channel then waits for the attempt to time out.
type Handler interface {
	Handle(req Request, attempt int) (resp Response, ok bool)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(req Request, attempt int) (Response, bool)

func (f HandlerFunc) Handle(req Request, attempt int) (Response, bool) {
	return f(req, attempt)
}

// SimChannel is a Channel backed by a Handler and driven by a loop.Loop.
//
// All methods must be called from the loop goroutine.
type SimChannel struct {
	name    string
	loop    *loop.Loop
	handler Handler
	logger  *slog.Logger
	latency time.Duration
	timeout time.Duration

	queue    []*call
	inflight *call
	seq      uint64
	nextID   Handle
	dead     bool

	owner      Owner
	claim      Owner
	claimAfter uint64 // requests with seq <= claimAfter run before the claim

	events event.Dispatcher[Owner]
}

type call struct {
	id        Handle
	seq       uint64
	req       Request
	attempt   int
	cancelled bool
	timer     *loop.Timer
}

// SimOption configures a SimChannel.
type SimOption func(*SimChannel)

// WithLatency delays every answer by d.
func WithLatency(d time.Duration) SimOption {
	return func(c *SimChannel) { c.latency = d }
}

// WithDefaultTimeout sets the per-attempt timeout for requests that do not
// carry their own.
func WithDefaultTimeout(d time.Duration) SimOption {
	return func(c *SimChannel) { c.timeout = d }
}

// WithChannelLogger sets the logger.
func WithChannelLogger(logger *slog.Logger) SimOption {
	return func(c *SimChannel) { c.logger = logger }
}

// NewSimChannel creates a channel named name (used in logs).
func NewSimChannel(name string, l *loop.Loop, h Handler, opts ...SimOption) *SimChannel {
	c := &SimChannel{
		name:    name,
		loop:    l,
		handler: h,
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the channel name.
func (c *SimChannel) Name() string { return c.name }

// Submit queues req and returns its handle.
func (c *SimChannel) Submit(req Request) Handle {
	c.nextID++
	c.seq++
	cl := &call{id: c.nextID, seq: c.seq, req: req}

	if c.dead {
		c.loop.Post(func() { c.complete(cl, Response{Transport: TransportDead}) })
		return cl.id
	}

	c.queue = append(c.queue, cl)
	c.logger.Debug("rpc submitted", "channel", c.name, "code", req.Code, "handle", cl.id, "owner", req.Owner)
	c.kick()
	return cl.id
}

// Cancel drops a request. Its Done callback will not be called. Returns
// false if the handle is unknown or already completed.
func (c *SimChannel) Cancel(h Handle) bool {
	for i, cl := range c.queue {
		if cl.id == h {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			c.kick()
			return true
		}
	}
	if c.inflight != nil && c.inflight.id == h {
		c.inflight.cancelled = true
		c.inflight.timer.Stop()
		c.inflight = nil
		c.kick()
		return true
	}
	return false
}

// Acquire claims exclusive ownership for owner.
func (c *SimChannel) Acquire(owner Owner) BlockStatus {
	switch {
	case c.dead || owner == 0:
		return Refused
	case c.owner == owner:
		return Acquired
	case c.owner != 0:
		return Queued
	}

	if c.claim != 0 {
		// A repeated claim keeps its original place in the queue.
		return Queued
	}
	c.claim = owner
	c.claimAfter = c.seq
	if c.tryGrant() {
		return Acquired
	}
	c.logger.Debug("rpc ownership queued", "channel", c.name, "owner", owner)
	return Queued
}

// Release gives up ownership or a queued claim held by owner.
func (c *SimChannel) Release(owner Owner) {
	if owner == 0 {
		return
	}
	if c.claim == owner {
		c.claim = 0
		c.claimAfter = 0
	}
	if c.owner != owner {
		return
	}
	c.owner = 0
	c.logger.Debug("rpc ownership released", "channel", c.name, "owner", owner)
	c.events.Emit(event.OwnerChanged, 0)
	c.kick()
}

// Owner returns the current exclusive owner, or zero.
func (c *SimChannel) Owner() Owner { return c.owner }

func (c *SimChannel) Subscribe(kind event.Kind, fn func(Owner)) event.Token {
	return c.events.Subscribe(kind, fn)
}

func (c *SimChannel) Unsubscribe(tok event.Token) {
	c.events.Unsubscribe(tok)
}

// Queued returns the number of requests waiting behind the one in flight.
func (c *SimChannel) Queued() int { return len(c.queue) }

// Busy reports whether a request is in flight.
func (c *SimChannel) Busy() bool { return c.inflight != nil }

// Kill fails every queued and in-flight request with TransportDead and
// refuses further work.
func (c *SimChannel) Kill() {
	if c.dead {
		return
	}
	c.dead = true
	pending := c.queue
	c.queue = nil
	if c.inflight != nil {
		c.inflight.timer.Stop()
		pending = append([]*call{c.inflight}, pending...)
		c.inflight = nil
	}
	c.claim = 0
	hadOwner := c.owner != 0
	c.owner = 0
	for _, cl := range pending {
		c.complete(cl, Response{Transport: TransportDead})
	}
	if hadOwner {
		c.events.Emit(event.OwnerChanged, 0)
	}
}

// tryGrant promotes a queued claim once nothing submitted before it is
// still waiting or running.
func (c *SimChannel) tryGrant() bool {
	if c.claim == 0 || c.owner != 0 {
		return false
	}
	if c.inflight != nil && c.inflight.req.Owner != c.claim {
		return false
	}
	for _, cl := range c.queue {
		if cl.seq <= c.claimAfter && cl.req.Owner != c.claim {
			return false
		}
	}
	c.owner = c.claim
	c.claim = 0
	c.claimAfter = 0
	c.logger.Debug("rpc ownership granted", "channel", c.name, "owner", c.owner)
	return true
}

// eligible reports whether cl may be dispatched under the current
// ownership state.
func (c *SimChannel) eligible(cl *call) bool {
	if c.owner != 0 {
		return cl.req.Owner == c.owner
	}
	if c.claim != 0 {
		return cl.seq <= c.claimAfter || cl.req.Owner == c.claim
	}
	return true
}

func (c *SimChannel) kick() {
	if c.claim != 0 && c.tryGrant() {
		owner := c.owner
		c.loop.Post(func() {
			if c.owner == owner {
				c.events.Emit(event.OwnerChanged, owner)
			}
		})
	}
	if c.inflight != nil || c.dead {
		return
	}
	for i, cl := range c.queue {
		if !c.eligible(cl) {
			continue
		}
		c.queue = append(c.queue[:i], c.queue[i+1:]...)
		c.dispatch(cl)
		return
	}
}

func (c *SimChannel) dispatch(cl *call) {
	c.inflight = cl
	cl.attempt++
	attempt := cl.attempt

	timeout := cl.req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	cl.timer = c.loop.After(timeout, func() { c.onTimeout(cl, attempt) })

	c.loop.After(c.latency, func() {
		if c.inflight != cl || cl.attempt != attempt || cl.cancelled {
			return
		}
		resp, ok := c.handler.Handle(cl.req, attempt)
		if !ok {
			c.logger.Debug("rpc dropped", "channel", c.name, "code", cl.req.Code, "attempt", attempt)
			return
		}
		cl.timer.Stop()
		c.inflight = nil
		c.complete(cl, resp)
		c.kick()
	})
}

func (c *SimChannel) onTimeout(cl *call, attempt int) {
	if c.inflight != cl || cl.attempt != attempt {
		return
	}
	if cl.attempt <= cl.req.Retries {
		c.logger.Debug("rpc retry", "channel", c.name, "code", cl.req.Code, "attempt", cl.attempt+1)
		c.dispatch(cl)
		return
	}
	c.inflight = nil
	c.logger.Debug("rpc timed out", "channel", c.name, "code", cl.req.Code, "attempts", cl.attempt)
	c.complete(cl, Response{Transport: TransportTimeout})
	c.kick()
}

func (c *SimChannel) complete(cl *call, resp Response) {
	if cl.cancelled || cl.req.Done == nil {
		return
	}
	cl.req.Done(resp)
}
