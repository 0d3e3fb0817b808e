package loop

import "time"

// Deferred is a single debounced task. Any number of Schedule calls made
// before it runs collapse into one execution.
//
// Deferred is loop-confined: call its methods only from loop tasks (or
// before the loop starts).
type Deferred struct {
	loop  *Loop
	fn    func()
	gen   uint64
	armed bool
	timer *Timer
}

// NewDeferred binds fn to l.
func NewDeferred(l *Loop, fn func()) *Deferred {
	return &Deferred{loop: l, fn: fn}
}

// Schedule arms the task for the next idle turn. It is a no-op if the task
// is already armed, whether for an idle turn or a timer.
func (d *Deferred) Schedule() {
	if d.armed {
		return
	}
	d.arm()
	gen := d.gen
	d.loop.Idle(func() { d.fire(gen) })
}

// ScheduleAfter re-arms the task to run after delay, replacing any earlier
// arming.
func (d *Deferred) ScheduleAfter(delay time.Duration) {
	d.Cancel()
	d.arm()
	gen := d.gen
	d.timer = d.loop.After(delay, func() { d.fire(gen) })
}

// Cancel disarms the task.
func (d *Deferred) Cancel() {
	if !d.armed {
		return
	}
	d.armed = false
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Pending reports whether the task is armed.
func (d *Deferred) Pending() bool {
	return d.armed
}

func (d *Deferred) arm() {
	d.gen++
	d.armed = true
}

func (d *Deferred) fire(gen uint64) {
	if !d.armed || gen != d.gen {
		return
	}
	d.armed = false
	d.timer = nil
	d.fn()
}
