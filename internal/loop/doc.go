// Package loop provides the single-writer cooperative event loop that every
// stateful component in radiocap is confined to.
//
// Work enters the loop in three ways:
//
//   - Post: a FIFO task, safe to call from any goroutine.
//   - Idle: a task that runs only once the FIFO is empty, so listeners
//     reacting to the same burst of events settle first.
//   - After: a timer keyed to the loop's Clock.
//
// Run drives the loop until its context is cancelled or Stop is called.
// Tests and the scenario harness never call Run; they use Drain and
// Advance together with a ManualClock so that every step is deterministic.
//
// Deferred is the debounced "check soon" primitive built on top: a single
// re-armable, cancellable task.
package loop
