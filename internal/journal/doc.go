// Package journal persists capability trace events to SQLite.
//
// Every manager run gets a row in runs, identified by a UUIDv7. Trace events
// are appended to events keyed by (run_id, seq), where seq is the manager's
// logical sequence number. The body column holds the event rendered as
// canonical JSON, so two runs of the same scenario produce byte-identical
// rows apart from the run id.
//
// Reads are ordered by seq, never by wall-clock time.
package journal
