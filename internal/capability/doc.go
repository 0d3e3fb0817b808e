// Package capability reallocates radio capability between the slots of a
// multi-SIM device.
//
// # Records and the decision pass
//
// The Manager keeps one Record per slot, sorted by slot index, and the full
// set of N! permutations of those records. A permutation order reads "slot
// k would receive the capability currently held by slot order[k]". On any
// change notification from a slot's collaborators (radio power, SIM
// presence/identity/I/O, preferences, modem presence) or any data-role
// request/release, a single debounced decision pass is scheduled for the
// next idle loop turn. The pass:
//
//  1. Skips while a transaction is in flight.
//  2. Skips unless every enabled slot is offline, or online with a confirmed
//     capability and (when a SIM is present) a reported SIM identity.
//  3. Skips if every slot already reaches the same highest access mode.
//  4. Scores every permutation with Score and starts a transaction for the
//     best one unless it is the identity. Ties go to the lowest index.
//
// # Transactions
//
// A transaction first passes a barrier: SIM I/O on every participant must be
// idle, every participant's rpc.Channel must be exclusively owned, active
// data calls are deactivated and, where the modem needs it, data is
// disallowed. A barrier failure releases ownership, emits
// event.TransactionAborted and retries after Config.RetryDelay.
//
// The transaction itself runs START (old capability), APPLY (new) and
// FINISH/SUCCESS (new). A phase completes once every participant has no
// pending request. Any failure allocates a fresh transaction id and sends
// FINISH/FAIL with the old capability to every participant before
// emitting event.TransactionAborted and retrying later. Success adopts the
// new capability on every participant, emits event.CapabilityChanged per
// slot and then event.TransactionDone.
//
// At most one transaction id is live at a time, and no record is ever left
// half-migrated: its old/new/transaction fields are cleared together on
// commit and on abort.
//
// # Concurrency
//
// Everything runs on a loop.Loop. Callbacks never hold record pointers
// across a suspension; they resolve records by slot index and drop stale
// completions by transaction id.
package capability
