package persist

import (
	"quorum/internal/task"
)

// Store is the durable layer beneath the task context store. Implementations
// must tolerate concurrent use from a single process; cross-process safety is
// implementation-defined.
type Store interface {
	// SaveContext writes the context record for a task (without its message
	// log, which is stored separately as an append-only stream).
	SaveContext(ctx *task.Context) error

	// LoadContext reads a context record by task id. Returns
	// (nil, nil) when no record exists.
	LoadContext(taskID string) (*task.Context, error)

	// AppendMessage appends one message to the task's log.
	AppendMessage(taskID string, msg task.Message) error

	// LoadMessages reads the full ordered message log for a task. Returns
	// (nil, nil) when no log exists.
	LoadMessages(taskID string) ([]task.Message, error)

	// RewriteMessages replaces the task's message log wholesale. Used only
	// for the ack flag, the single permitted in-place message mutation.
	RewriteMessages(taskID string, msgs []task.Message) error

	// MarkActive adds the task id to the active set and removes it from the
	// completed set.
	MarkActive(taskID string) error

	// MarkCompleted adds the task id to the completed set and removes it
	// from the active set.
	MarkCompleted(taskID string) error

	// ActiveIDs returns the current active task id set.
	ActiveIDs() ([]string, error)

	// CompletedIDs returns the completed task id set.
	CompletedIDs() ([]string, error)
}

// NopStore discards all writes and reports nothing stored. It backs
// memory-only coordination domains and tests.
type NopStore struct{}

// NewNopStore creates a NopStore.
func NewNopStore() *NopStore { return &NopStore{} }

func (*NopStore) SaveContext(*task.Context) error              { return nil }
func (*NopStore) LoadContext(string) (*task.Context, error)    { return nil, nil }
func (*NopStore) AppendMessage(string, task.Message) error     { return nil }
func (*NopStore) LoadMessages(string) ([]task.Message, error)  { return nil, nil }
func (*NopStore) RewriteMessages(string, []task.Message) error { return nil }
func (*NopStore) MarkActive(string) error                      { return nil }
func (*NopStore) MarkCompleted(string) error                   { return nil }
func (*NopStore) ActiveIDs() ([]string, error)                 { return nil, nil }
func (*NopStore) CompletedIDs() ([]string, error)              { return nil, nil }
