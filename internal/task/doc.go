// Package task defines the core data model for coordinated work: the
// TaskContext record, the typed Message log entries that make up its
// history, and the context hash that binds a task to its originating
// request.
//
// The types here are pure data. The store package owns their lifecycle
// and persistence; the event package wraps them in bus events.
package task
