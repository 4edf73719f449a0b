package task

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

// Status represents the lifecycle state of a task context.
type Status string

const (
	// StatusActive indicates work on the task is in progress.
	StatusActive Status = "active"

	// StatusCompleted indicates the task finished successfully.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the task finished unsuccessfully.
	StatusFailed Status = "failed"

	// StatusBlocked indicates the task cannot proceed without intervention.
	StatusBlocked Status = "blocked"
)

// Terminal reports whether the status is a final state. Terminal contexts
// are never mutated again, only archived.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Deliverable is one child task's result, collected on the parent.
type Deliverable struct {
	TaskID  string `json:"task_id"`
	AgentID string `json:"agent_id"`
	Content string `json:"content"`
}

// Context is the canonical record of one unit of coordinated work.
// It is mutated only by store operations; the message log is append-only
// except for the Acked flag on individual messages.
type Context struct {
	ID               string        `json:"id"`
	ContextHash      string        `json:"context_hash"`
	OriginalRequest  string        `json:"original_request"`
	Status           Status        `json:"status"`
	Messages         []Message     `json:"messages"`
	ParentID         string        `json:"parent_id,omitempty"`
	ChildIDs         []string      `json:"child_ids,omitempty"`
	ChildrenComplete int           `json:"children_complete"`
	Aggregated       bool          `json:"aggregated,omitempty"`
	Deliverables     []Deliverable `json:"deliverables,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// AllChildrenComplete reports whether every registered child has completed.
// False for contexts with no children.
func (c *Context) AllChildrenComplete() bool {
	return len(c.ChildIDs) > 0 && c.ChildrenComplete == len(c.ChildIDs)
}

var idCounter atomic.Uint64

// GenerateID creates a unique task identifier.
func GenerateID() string {
	return fmt.Sprintf("task-%d-%d-%d", time.Now().UnixNano(), os.Getpid(), idCounter.Add(1))
}
