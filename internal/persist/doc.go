// Package persist defines the durable layer beneath the task context store.
//
// The [Store] interface models the persisted state layout: one JSON context
// record per task, one append-only JSONL message log per task, and the sets
// of currently-active and completed task ids. Two implementations are
// provided and selected at startup:
//
//   - [FileStore]: durable file-backed storage with cross-process locking
//     and atomic writes
//   - [NopStore]: discards everything; used when the system runs memory-only
//
// All call sites depend on the interface, never on a concrete backend, and
// treat durable-layer errors as degradation rather than failure.
package persist
