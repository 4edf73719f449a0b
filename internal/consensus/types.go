package consensus

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

// Status represents the current state of a consensus session.
type Status string

const (
	// StatusInitialized indicates the session exists but no round has started.
	StatusInitialized Status = "initialized"

	// StatusDrafting indicates the round's author is producing a work product.
	StatusDrafting Status = "drafting"

	// StatusVoting indicates a work product is submitted and reviewers are voting.
	StatusVoting Status = "voting"

	// StatusDiscussing indicates dissenters are elaborating change proposals.
	StatusDiscussing Status = "discussing"

	// StatusRevising indicates a rejected round is awaiting a new draft.
	StatusRevising Status = "revising"

	// StatusApproved indicates the roster accepted a work product. Terminal.
	StatusApproved Status = "approved"

	// StatusDeadlocked indicates the round limit was exhausted without
	// approval. Terminal.
	StatusDeadlocked Status = "deadlocked"
)

// Terminal reports whether the session can make no further progress.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusDeadlocked
}

// Vote is one roster member's judgement of a round's work product.
type Vote struct {
	Approved   bool      `json:"approved"`
	Confidence int       `json:"confidence"` // 0-100
	Feedback   string    `json:"feedback,omitempty"`
	VotedAt    time.Time `json:"voted_at"`
}

// Revision is one author-submit-then-vote cycle within a session.
type Revision struct {
	Round          int             `json:"round"`
	Author         string          `json:"author"`
	WorkProduct    string          `json:"work_product,omitempty"`
	SubmittedAt    time.Time       `json:"submitted_at,omitempty"`
	Votes          map[string]Vote `json:"votes"`
	VotingComplete bool            `json:"voting_complete"`
}

// Comment is a dissenter's elaboration recorded during a discussion phase.
type Comment struct {
	AgentID  string    `json:"agent_id"`
	Round    int       `json:"round"`
	Proposal string    `json:"proposal"`
	At       time.Time `json:"at"`
}

// Config controls a session's termination and escalation behavior.
type Config struct {
	// MaxRounds bounds how many revision cycles run before deadlock.
	MaxRounds int

	// RequireUnanimity demands zero rejections for approval. When false,
	// strictly more approvals than rejections approves the round; a tie
	// does not.
	RequireUnanimity bool

	// EnableDiscussion inserts a discussion phase between a rejected vote
	// and the revision trigger, letting dissenters elaborate proposals.
	EnableDiscussion bool

	// VoteTimeout, when positive, bounds each round's voting window. On
	// expiry a vote_timeout event fires naming the missing voters; late
	// votes are still accepted.
	VoteTimeout time.Duration
}

// DefaultConfig returns the standard session configuration: three rounds,
// unanimity required, no discussion phase, no voting window.
func DefaultConfig() Config {
	return Config{
		MaxRounds:        3,
		RequireUnanimity: true,
	}
}

// Session is a voting round-table over one task context.
type Session struct {
	ID           string     `json:"id"`
	TaskID       string     `json:"task_id"`
	Prompt       string     `json:"prompt"`
	Agents       []string   `json:"agents"`
	CurrentRound int        `json:"current_round"`
	Config       Config     `json:"config"`
	Status       Status     `json:"status"`
	Revisions    []Revision `json:"revisions"`
	Comments     []Comment  `json:"comments,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`

	voteTimer *time.Timer
}

// CurrentRevision returns the revision record for the current round, or nil
// if no round has started.
func (s *Session) CurrentRevision() *Revision {
	if len(s.Revisions) == 0 {
		return nil
	}
	return &s.Revisions[len(s.Revisions)-1]
}

// HasAgent reports whether id is on the session's roster.
func (s *Session) HasAgent(id string) bool {
	for _, a := range s.Agents {
		if a == id {
			return true
		}
	}
	return false
}

var sessionCounter atomic.Int64

// GenerateSessionID creates a unique session identifier.
func GenerateSessionID() string {
	return fmt.Sprintf("session-%d-%d-%d", time.Now().UnixNano(), os.Getpid(), sessionCounter.Add(1))
}
