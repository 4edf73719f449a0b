package event

import (
	"time"

	"quorum/internal/task"
)

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "task.created", "consensus.reached")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type names. Handlers should subscribe with these constants rather
// than raw strings.
const (
	TypeTaskCreated       = "task.created"
	TypeTaskStatusChanged = "task.status_changed"
	TypeChildrenComplete  = "task.children_complete"

	// TypeBusMessage is the generic event published for every bus message.
	// Each message additionally produces a type-specific event named
	// "bus.<message type>" (e.g. "bus.handoff", "bus.blocker"); use
	// MessageEventType to derive those names.
	TypeBusMessage = "bus.message"

	TypeConsensusSessionCreated    = "consensus.session_created"
	TypeConsensusRoundStarted      = "consensus.round_started"
	TypeConsensusReviewRequested   = "consensus.review_requested"
	TypeConsensusVoteCast          = "consensus.vote_cast"
	TypeConsensusReached           = "consensus.reached"
	TypeConsensusDeadlocked        = "consensus.deadlocked"
	TypeConsensusRevisionNeeded    = "consensus.revision_needed"
	TypeConsensusDiscussionStarted = "consensus.discussion_started"
	TypeConsensusVoteTimeout       = "consensus.vote_timeout"

	TypeInternSpawned   = "intern.spawned"
	TypeInternCompleted = "intern.completed"
	TypeInternFailed    = "intern.failed"
)

// MessageEventType returns the type-specific event name for a message type,
// e.g. MessageEventType(task.MessageHandoff) == "bus.handoff".
func MessageEventType(t task.MessageType) string {
	return "bus." + string(t)
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Task Lifecycle Events
// -----------------------------------------------------------------------------

// TaskCreatedEvent is emitted when a task context is created.
type TaskCreatedEvent struct {
	baseEvent
	TaskID          string
	ParentID        string
	OriginalRequest string
	ContextHash     string
}

// NewTaskCreatedEvent creates a TaskCreatedEvent.
func NewTaskCreatedEvent(taskID, parentID, originalRequest, contextHash string) TaskCreatedEvent {
	return TaskCreatedEvent{
		baseEvent:       newBaseEvent(TypeTaskCreated),
		TaskID:          taskID,
		ParentID:        parentID,
		OriginalRequest: originalRequest,
		ContextHash:     contextHash,
	}
}

// TaskStatusChangedEvent is emitted when a task's status changes.
type TaskStatusChangedEvent struct {
	baseEvent
	TaskID    string
	OldStatus task.Status
	NewStatus task.Status
}

// NewTaskStatusChangedEvent creates a TaskStatusChangedEvent.
func NewTaskStatusChangedEvent(taskID string, oldStatus, newStatus task.Status) TaskStatusChangedEvent {
	return TaskStatusChangedEvent{
		baseEvent: newBaseEvent(TypeTaskStatusChanged),
		TaskID:    taskID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
	}
}

// ChildrenCompleteEvent is emitted exactly once per parent task, the instant
// its last child completes. It carries the full deliverable set.
type ChildrenCompleteEvent struct {
	baseEvent
	TaskID       string
	Deliverables []task.Deliverable
}

// NewChildrenCompleteEvent creates a ChildrenCompleteEvent.
func NewChildrenCompleteEvent(taskID string, deliverables []task.Deliverable) ChildrenCompleteEvent {
	return ChildrenCompleteEvent{
		baseEvent:    newBaseEvent(TypeChildrenComplete),
		TaskID:       taskID,
		Deliverables: deliverables,
	}
}

// -----------------------------------------------------------------------------
// Bus Message Events
// -----------------------------------------------------------------------------

// BusMessageEvent is the generic event published for every message appended
// to a task context. It carries the full message.
type BusMessageEvent struct {
	baseEvent
	Msg task.Message
}

// NewBusMessageEvent creates a BusMessageEvent.
func NewBusMessageEvent(msg task.Message) BusMessageEvent {
	return BusMessageEvent{
		baseEvent: newBaseEvent(TypeBusMessage),
		Msg:       msg,
	}
}

// TypedMessageEvent is the type-specific companion to BusMessageEvent. Its
// event type is derived from the message type ("bus.handoff", "bus.blocker",
// ...) so consumers can subscribe to a single kind of traffic.
type TypedMessageEvent struct {
	baseEvent
	Msg task.Message
}

// NewTypedMessageEvent creates a TypedMessageEvent for the message's type.
func NewTypedMessageEvent(msg task.Message) TypedMessageEvent {
	return TypedMessageEvent{
		baseEvent: newBaseEvent(MessageEventType(msg.Type)),
		Msg:       msg,
	}
}

// -----------------------------------------------------------------------------
// Consensus Events
// -----------------------------------------------------------------------------

// ConsensusSessionCreatedEvent is emitted when a consensus session is created.
type ConsensusSessionCreatedEvent struct {
	baseEvent
	SessionID string
	TaskID    string
	Prompt    string
	Agents    []string
}

// NewConsensusSessionCreatedEvent creates a ConsensusSessionCreatedEvent.
func NewConsensusSessionCreatedEvent(sessionID, taskID, prompt string, agents []string) ConsensusSessionCreatedEvent {
	return ConsensusSessionCreatedEvent{
		baseEvent: newBaseEvent(TypeConsensusSessionCreated),
		SessionID: sessionID,
		TaskID:    taskID,
		Prompt:    prompt,
		Agents:    agents,
	}
}

// ConsensusRoundStartedEvent is emitted when a revision round begins drafting.
type ConsensusRoundStartedEvent struct {
	baseEvent
	SessionID string
	Round     int
	AuthorID  string
}

// NewConsensusRoundStartedEvent creates a ConsensusRoundStartedEvent.
func NewConsensusRoundStartedEvent(sessionID string, round int, authorID string) ConsensusRoundStartedEvent {
	return ConsensusRoundStartedEvent{
		baseEvent: newBaseEvent(TypeConsensusRoundStarted),
		SessionID: sessionID,
		Round:     round,
		AuthorID:  authorID,
	}
}

// ConsensusReviewRequestedEvent is emitted once per non-author roster member
// when a work product is submitted for voting.
type ConsensusReviewRequestedEvent struct {
	baseEvent
	SessionID   string
	Round       int
	ReviewerID  string
	AuthorID    string
	WorkProduct string
	Prompt      string
}

// NewConsensusReviewRequestedEvent creates a ConsensusReviewRequestedEvent.
func NewConsensusReviewRequestedEvent(sessionID string, round int, reviewerID, authorID, workProduct, prompt string) ConsensusReviewRequestedEvent {
	return ConsensusReviewRequestedEvent{
		baseEvent:   newBaseEvent(TypeConsensusReviewRequested),
		SessionID:   sessionID,
		Round:       round,
		ReviewerID:  reviewerID,
		AuthorID:    authorID,
		WorkProduct: workProduct,
		Prompt:      prompt,
	}
}

// ConsensusVoteCastEvent is emitted for each recorded vote.
type ConsensusVoteCastEvent struct {
	baseEvent
	SessionID  string
	Round      int
	AgentID    string
	Approved   bool
	Confidence int
	Feedback   string
}

// NewConsensusVoteCastEvent creates a ConsensusVoteCastEvent.
func NewConsensusVoteCastEvent(sessionID string, round int, agentID string, approved bool, confidence int, feedback string) ConsensusVoteCastEvent {
	return ConsensusVoteCastEvent{
		baseEvent:  newBaseEvent(TypeConsensusVoteCast),
		SessionID:  sessionID,
		Round:      round,
		AgentID:    agentID,
		Approved:   approved,
		Confidence: confidence,
		Feedback:   feedback,
	}
}

// ConsensusReachedEvent is emitted when a round is approved. Terminal.
type ConsensusReachedEvent struct {
	baseEvent
	SessionID   string
	TaskID      string
	Round       int
	AuthorID    string
	WorkProduct string
}

// NewConsensusReachedEvent creates a ConsensusReachedEvent.
func NewConsensusReachedEvent(sessionID, taskID string, round int, authorID, workProduct string) ConsensusReachedEvent {
	return ConsensusReachedEvent{
		baseEvent:   newBaseEvent(TypeConsensusReached),
		SessionID:   sessionID,
		TaskID:      taskID,
		Round:       round,
		AuthorID:    authorID,
		WorkProduct: workProduct,
	}
}

// ConsensusDeadlockedEvent is emitted when the round limit is exhausted
// without approval. Terminal.
type ConsensusDeadlockedEvent struct {
	baseEvent
	SessionID string
	TaskID    string
	Rounds    int
	Feedback  string
}

// NewConsensusDeadlockedEvent creates a ConsensusDeadlockedEvent.
func NewConsensusDeadlockedEvent(sessionID, taskID string, rounds int, feedback string) ConsensusDeadlockedEvent {
	return ConsensusDeadlockedEvent{
		baseEvent: newBaseEvent(TypeConsensusDeadlocked),
		SessionID: sessionID,
		TaskID:    taskID,
		Rounds:    rounds,
		Feedback:  feedback,
	}
}

// ConsensusRevisionNeededEvent is emitted when a round is rejected but the
// round limit has not been reached. The expected reaction is a new draft via
// StartRound + SubmitWork.
type ConsensusRevisionNeededEvent struct {
	baseEvent
	SessionID string
	TaskID    string
	Round     int
	AuthorID  string
	Feedback  string
}

// NewConsensusRevisionNeededEvent creates a ConsensusRevisionNeededEvent.
func NewConsensusRevisionNeededEvent(sessionID, taskID string, round int, authorID, feedback string) ConsensusRevisionNeededEvent {
	return ConsensusRevisionNeededEvent{
		baseEvent: newBaseEvent(TypeConsensusRevisionNeeded),
		SessionID: sessionID,
		TaskID:    taskID,
		Round:     round,
		AuthorID:  authorID,
		Feedback:  feedback,
	}
}

// ConsensusDiscussionStartedEvent is emitted when dissenting voters are asked
// to elaborate concrete change proposals before a revision.
type ConsensusDiscussionStartedEvent struct {
	baseEvent
	SessionID  string
	Round      int
	Dissenters []string
}

// NewConsensusDiscussionStartedEvent creates a ConsensusDiscussionStartedEvent.
func NewConsensusDiscussionStartedEvent(sessionID string, round int, dissenters []string) ConsensusDiscussionStartedEvent {
	return ConsensusDiscussionStartedEvent{
		baseEvent:  newBaseEvent(TypeConsensusDiscussionStarted),
		SessionID:  sessionID,
		Round:      round,
		Dissenters: dissenters,
	}
}

// ConsensusVoteTimeoutEvent is emitted when a voting window elapses with
// votes still outstanding. It is an escalation signal, not a cancellation:
// late votes are still accepted and counted.
type ConsensusVoteTimeoutEvent struct {
	baseEvent
	SessionID string
	Round     int
	Missing   []string
}

// NewConsensusVoteTimeoutEvent creates a ConsensusVoteTimeoutEvent.
func NewConsensusVoteTimeoutEvent(sessionID string, round int, missing []string) ConsensusVoteTimeoutEvent {
	return ConsensusVoteTimeoutEvent{
		baseEvent: newBaseEvent(TypeConsensusVoteTimeout),
		SessionID: sessionID,
		Round:     round,
		Missing:   missing,
	}
}

// -----------------------------------------------------------------------------
// Intern Events
// -----------------------------------------------------------------------------

// InternSpawnedEvent is emitted when an ephemeral worker begins executing.
type InternSpawnedEvent struct {
	baseEvent
	InternID   string
	InternType string
	ManagerID  string
	Task       string
}

// NewInternSpawnedEvent creates an InternSpawnedEvent.
func NewInternSpawnedEvent(internID, internType, managerID, taskDesc string) InternSpawnedEvent {
	return InternSpawnedEvent{
		baseEvent:  newBaseEvent(TypeInternSpawned),
		InternID:   internID,
		InternType: internType,
		ManagerID:  managerID,
		Task:       taskDesc,
	}
}

// InternCompletedEvent is emitted when an ephemeral worker produces its
// deliverable.
type InternCompletedEvent struct {
	baseEvent
	InternID   string
	InternType string
	Cost       float64
	Duration   time.Duration
}

// NewInternCompletedEvent creates an InternCompletedEvent.
func NewInternCompletedEvent(internID, internType string, cost float64, duration time.Duration) InternCompletedEvent {
	return InternCompletedEvent{
		baseEvent:  newBaseEvent(TypeInternCompleted),
		InternID:   internID,
		InternType: internType,
		Cost:       cost,
		Duration:   duration,
	}
}

// InternFailedEvent is emitted when an ephemeral worker fails after retries.
type InternFailedEvent struct {
	baseEvent
	InternID   string
	InternType string
	Err        string
}

// NewInternFailedEvent creates an InternFailedEvent.
func NewInternFailedEvent(internID, internType, errText string) InternFailedEvent {
	return InternFailedEvent{
		baseEvent:  newBaseEvent(TypeInternFailed),
		InternID:   internID,
		InternType: internType,
		Err:        errText,
	}
}
