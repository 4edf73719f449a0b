package task

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the kind of bus message.
type MessageType string

const (
	// MessageDispatch assigns work to an agent.
	MessageDispatch MessageType = "dispatch"

	// MessageAssert shares a statement or finding on the task.
	MessageAssert MessageType = "assert"

	// MessageQuery asks another agent a question. Requires acknowledgment.
	MessageQuery MessageType = "query"

	// MessageValidate asks for confirmation of a claim.
	MessageValidate MessageType = "validate"

	// MessageCorrect points out an error. Requires acknowledgment.
	MessageCorrect MessageType = "correct"

	// MessageAck acknowledges a prior query or correction.
	MessageAck MessageType = "ack"

	// MessageHandoff transfers responsibility for a task to another agent.
	MessageHandoff MessageType = "handoff"

	// MessageComplete marks the task finished with a deliverable.
	MessageComplete MessageType = "complete"

	// MessageBlocker signals an agent cannot proceed.
	MessageBlocker MessageType = "blocker"

	// MessageKnowledge records a non-critical annotation.
	MessageKnowledge MessageType = "knowledge"

	// MessageSpawnHelper requests an ephemeral helper worker.
	MessageSpawnHelper MessageType = "spawn_helper"

	// MessagePropose submits a work product for consensus review.
	MessagePropose MessageType = "propose"

	// MessageVote records a consensus vote.
	MessageVote MessageType = "vote"

	// MessageRevise requests a revision with aggregated feedback.
	MessageRevise MessageType = "revise"
)

// Body is the typed payload of a Message. Each message type carries its own
// concrete body so handlers switch on the variant instead of inspecting
// loosely-typed content.
type Body interface {
	// Kind returns the message type this body belongs to.
	Kind() MessageType
}

// DispatchBody assigns instructions to a named agent.
type DispatchBody struct {
	AgentID      string `json:"agent_id"`
	Instructions string `json:"instructions"`
}

func (DispatchBody) Kind() MessageType { return MessageDispatch }

// AssertBody carries a statement shared on the task.
type AssertBody struct {
	Statement string `json:"statement"`
}

func (AssertBody) Kind() MessageType { return MessageAssert }

// QueryBody asks a target agent a question.
type QueryBody struct {
	Target   string `json:"target"`
	Question string `json:"question"`
}

func (QueryBody) Kind() MessageType { return MessageQuery }

// ValidateBody asks for confirmation of a claim.
type ValidateBody struct {
	Target string `json:"target"`
	Claim  string `json:"claim"`
}

func (ValidateBody) Kind() MessageType { return MessageValidate }

// CorrectBody points a target agent at an error.
type CorrectBody struct {
	Target     string `json:"target"`
	Correction string `json:"correction"`
}

func (CorrectBody) Kind() MessageType { return MessageCorrect }

// AckBody acknowledges the message with the given timestamp.
type AckBody struct {
	Target          string    `json:"target"`
	AckedTimestamp  time.Time `json:"acked_timestamp"`
	Acknowledgement string    `json:"acknowledgement,omitempty"`
}

func (AckBody) Kind() MessageType { return MessageAck }

// HandoffBody transfers the task to another agent.
type HandoffBody struct {
	ToAgent      string `json:"to_agent"`
	Instructions string `json:"instructions"`
}

func (HandoffBody) Kind() MessageType { return MessageHandoff }

// CompleteBody carries the finished deliverable.
type CompleteBody struct {
	Deliverable string `json:"deliverable"`
}

func (CompleteBody) Kind() MessageType { return MessageComplete }

// BlockerBody explains why the agent cannot proceed.
type BlockerBody struct {
	Reason string `json:"reason"`
}

func (BlockerBody) Kind() MessageType { return MessageBlocker }

// KnowledgeBody records a fact worth remembering on the task.
type KnowledgeBody struct {
	Fact string `json:"fact"`
}

func (KnowledgeBody) Kind() MessageType { return MessageKnowledge }

// SpawnHelperBody requests an ephemeral helper of a given type.
type SpawnHelperBody struct {
	HelperType string `json:"helper_type"`
	Task       string `json:"task"`
}

func (SpawnHelperBody) Kind() MessageType { return MessageSpawnHelper }

// ProposeBody submits a work product for review.
type ProposeBody struct {
	SessionID   string `json:"session_id"`
	Round       int    `json:"round"`
	WorkProduct string `json:"work_product"`
}

func (ProposeBody) Kind() MessageType { return MessagePropose }

// VoteBody records a consensus vote on a proposal.
type VoteBody struct {
	SessionID  string `json:"session_id"`
	Round      int    `json:"round"`
	Approved   bool   `json:"approved"`
	Confidence int    `json:"confidence"`
	Feedback   string `json:"feedback,omitempty"`
}

func (VoteBody) Kind() MessageType { return MessageVote }

// ReviseBody requests a new draft with the rejecters' aggregated feedback.
type ReviseBody struct {
	SessionID string `json:"session_id"`
	Round     int    `json:"round"`
	Feedback  string `json:"feedback"`
}

func (ReviseBody) Kind() MessageType { return MessageRevise }

// Message is one entry in a task context's log. Messages are immutable once
// appended except for the Acked flag, which is the single permitted in-place
// mutation.
type Message struct {
	ID          string
	Type        MessageType
	AgentID     string
	TaskID      string
	ContextHash string
	Body        Body
	RequiresAck bool
	Acked       bool
	Timestamp   time.Time
}

// NewMessage builds a message around the given body, stamping it with an ID
// and the current time. Query and Correct messages require acknowledgment.
func NewMessage(agentID, taskID, contextHash string, body Body) Message {
	kind := body.Kind()
	return Message{
		ID:          GenerateMessageID(),
		Type:        kind,
		AgentID:     agentID,
		TaskID:      taskID,
		ContextHash: contextHash,
		Body:        body,
		RequiresAck: kind == MessageQuery || kind == MessageCorrect,
		Timestamp:   time.Now(),
	}
}

// GenerateMessageID creates a unique message identifier.
func GenerateMessageID() string {
	return fmt.Sprintf("msg-%d-%d", time.Now().UnixNano(), idCounter.Add(1))
}

// messageEnvelope is the wire form of a Message. The body is kept as raw
// JSON until the type tag is known.
type messageEnvelope struct {
	ID          string          `json:"id"`
	Type        MessageType     `json:"type"`
	AgentID     string          `json:"agent_id"`
	TaskID      string          `json:"task_id"`
	ContextHash string          `json:"context_hash"`
	Body        json.RawMessage `json:"body"`
	RequiresAck bool            `json:"requires_ack,omitempty"`
	Acked       bool            `json:"acked,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// MarshalJSON implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	body, err := json.Marshal(m.Body)
	if err != nil {
		return nil, fmt.Errorf("task: marshal %s body: %w", m.Type, err)
	}
	return json.Marshal(messageEnvelope{
		ID:          m.ID,
		Type:        m.Type,
		AgentID:     m.AgentID,
		TaskID:      m.TaskID,
		ContextHash: m.ContextHash,
		Body:        body,
		RequiresAck: m.RequiresAck,
		Acked:       m.Acked,
		Timestamp:   m.Timestamp,
	})
}

// UnmarshalJSON implements json.Unmarshaler, decoding the body into the
// concrete variant named by the type tag.
func (m *Message) UnmarshalJSON(data []byte) error {
	var env messageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	body, err := decodeBody(env.Type, env.Body)
	if err != nil {
		return err
	}

	m.ID = env.ID
	m.Type = env.Type
	m.AgentID = env.AgentID
	m.TaskID = env.TaskID
	m.ContextHash = env.ContextHash
	m.Body = body
	m.RequiresAck = env.RequiresAck
	m.Acked = env.Acked
	m.Timestamp = env.Timestamp
	return nil
}

func decodeBody(t MessageType, raw json.RawMessage) (Body, error) {
	var body Body
	switch t {
	case MessageDispatch:
		body = &DispatchBody{}
	case MessageAssert:
		body = &AssertBody{}
	case MessageQuery:
		body = &QueryBody{}
	case MessageValidate:
		body = &ValidateBody{}
	case MessageCorrect:
		body = &CorrectBody{}
	case MessageAck:
		body = &AckBody{}
	case MessageHandoff:
		body = &HandoffBody{}
	case MessageComplete:
		body = &CompleteBody{}
	case MessageBlocker:
		body = &BlockerBody{}
	case MessageKnowledge:
		body = &KnowledgeBody{}
	case MessageSpawnHelper:
		body = &SpawnHelperBody{}
	case MessagePropose:
		body = &ProposeBody{}
	case MessageVote:
		body = &VoteBody{}
	case MessageRevise:
		body = &ReviseBody{}
	default:
		return nil, fmt.Errorf("task: unknown message type %q", t)
	}
	if err := json.Unmarshal(raw, body); err != nil {
		return nil, fmt.Errorf("task: decode %s body: %w", t, err)
	}
	return deref(body), nil
}

// deref normalizes pointer bodies back to values so decoded messages compare
// and switch the same way as freshly constructed ones.
func deref(b Body) Body {
	switch v := b.(type) {
	case *DispatchBody:
		return *v
	case *AssertBody:
		return *v
	case *QueryBody:
		return *v
	case *ValidateBody:
		return *v
	case *CorrectBody:
		return *v
	case *AckBody:
		return *v
	case *HandoffBody:
		return *v
	case *CompleteBody:
		return *v
	case *BlockerBody:
		return *v
	case *KnowledgeBody:
		return *v
	case *SpawnHelperBody:
		return *v
	case *ProposeBody:
		return *v
	case *VoteBody:
		return *v
	case *ReviseBody:
		return *v
	default:
		return b
	}
}

// Valid message types for validation.
var validMessageTypes = map[MessageType]bool{
	MessageDispatch:    true,
	MessageAssert:      true,
	MessageQuery:       true,
	MessageValidate:    true,
	MessageCorrect:     true,
	MessageAck:         true,
	MessageHandoff:     true,
	MessageComplete:    true,
	MessageBlocker:     true,
	MessageKnowledge:   true,
	MessageSpawnHelper: true,
	MessagePropose:     true,
	MessageVote:        true,
	MessageRevise:      true,
}

// ValidateMessageType returns true if the given type is a known message type.
func ValidateMessageType(t MessageType) bool {
	return validMessageTypes[t]
}
