package intern

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"quorum/internal/errors"
	"quorum/internal/llm"
)

// Status represents an intern's execution state.
type Status string

const (
	// StatusWaiting indicates the intern is queued for a pool slot.
	StatusWaiting Status = "waiting"

	// StatusWorking indicates the intern holds a slot and is generating.
	StatusWorking Status = "working"

	// StatusComplete indicates the intern produced its deliverable.
	StatusComplete Status = "complete"

	// StatusFailed indicates the intern failed after exhausting retries.
	StatusFailed Status = "failed"
)

// Profile is a typed worker role: a fixed role prompt, the kind of
// deliverable it produces, and the model tier it runs on.
type Profile struct {
	Type            string
	RolePrompt      string
	DeliverableType string
	Tier            llm.Tier
}

var profiles = map[string]Profile{
	"researcher": {
		Type:            "researcher",
		RolePrompt:      "You are a research assistant. Investigate the task and report concrete findings with sources where possible.",
		DeliverableType: "research_summary",
		Tier:            llm.TierDefault,
	},
	"coder": {
		Type:            "coder",
		RolePrompt:      "You are a software engineer. Produce working code for the task, with brief notes on usage and limitations.",
		DeliverableType: "code",
		Tier:            llm.TierPowerful,
	},
	"reviewer": {
		Type:            "reviewer",
		RolePrompt:      "You are a critical reviewer. Assess the work described in the task and list concrete defects and improvements.",
		DeliverableType: "review",
		Tier:            llm.TierReasoning,
	},
	"summarizer": {
		Type:            "summarizer",
		RolePrompt:      "You are a summarizer. Condense the task's material into a short, accurate summary.",
		DeliverableType: "summary",
		Tier:            llm.TierFast,
	},
}

// ResolveProfile returns the worker profile for a given type.
func ResolveProfile(internType string) (Profile, error) {
	p, ok := profiles[internType]
	if !ok {
		return Profile{}, errors.NewValidationError("unknown intern type").WithField("type").WithValue(internType)
	}
	return p, nil
}

// ProfileTypes lists the known intern types.
func ProfileTypes() []string {
	out := make([]string, 0, len(profiles))
	for t := range profiles {
		out = append(out, t)
	}
	return out
}

// Deliverable is a costed generation result.
type Deliverable struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Content  string        `json:"content"`
	Usage    llm.Usage     `json:"usage"`
	Cost     float64       `json:"cost"`
	Duration time.Duration `json:"duration"`
}

// Intern is one ephemeral worker's execution record.
type Intern struct {
	ID          string       `json:"id"`
	Type        string       `json:"type"`
	Task        string       `json:"task"`
	ManagerID   string       `json:"manager_id,omitempty"`
	Status      Status       `json:"status"`
	StartTime   time.Time    `json:"start_time"`
	Deliverable *Deliverable `json:"deliverable,omitempty"`
	Err         string       `json:"error,omitempty"`
	Cost        float64      `json:"cost"`
}

var internCounter atomic.Int64

// GenerateInternID creates a unique intern identifier.
func GenerateInternID() string {
	return fmt.Sprintf("intern-%d-%d-%d", time.Now().UnixNano(), os.Getpid(), internCounter.Add(1))
}
