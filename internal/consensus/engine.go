package consensus

import (
	"strings"
	"sync"
	"time"

	"quorum/internal/errors"
	"quorum/internal/event"
	"quorum/internal/logging"
)

// Engine manages consensus sessions. It is a session-scoped state machine
// layered on the event bus: every transition publishes a consensus.* event,
// and the expected reactions (drafting a revision, casting reviews) are
// performed by external capabilities listening on the bus.
//
// All event publication happens after the engine's lock is released, so a
// handler may call back into the engine synchronously.
type Engine struct {
	mu       sync.Mutex
	sessions map[string]*Session
	bus      *event.Bus
	logger   *logging.Logger
}

// NewEngine creates a consensus engine publishing on bus.
func NewEngine(bus *event.Bus, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Engine{
		sessions: make(map[string]*Session),
		bus:      bus,
		logger:   logger.WithComponent("consensus"),
	}
}

// CreateSession allocates a session over taskID with a fixed agent roster.
func (e *Engine) CreateSession(taskID string, agents []string, prompt string, cfg Config) (*Session, error) {
	if taskID == "" {
		return nil, errors.NewValidationError("task id is required").WithField("taskID")
	}
	if len(agents) == 0 {
		return nil, errors.NewValidationError("session requires at least one agent").WithField("agents")
	}
	seen := make(map[string]bool, len(agents))
	for _, a := range agents {
		if a == "" || seen[a] {
			return nil, errors.NewValidationError("roster must be non-empty and unique").WithField("agents").WithValue(a)
		}
		seen[a] = true
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultConfig().MaxRounds
	}

	sess := &Session{
		ID:        GenerateSessionID(),
		TaskID:    taskID,
		Prompt:    prompt,
		Agents:    append([]string(nil), agents...),
		Config:    cfg,
		Status:    StatusInitialized,
		CreatedAt: time.Now(),
	}

	e.mu.Lock()
	e.sessions[sess.ID] = sess
	out := cloneSession(sess)
	e.mu.Unlock()

	e.logger.Info("consensus session created",
		"session_id", sess.ID, "task_id", taskID, "agents", len(agents))
	e.bus.Publish(event.NewConsensusSessionCreatedEvent(sess.ID, taskID, prompt, out.Agents))
	return out, nil
}

// GetSession returns a copy of the session's current state.
func (e *Engine) GetSession(sessionID string) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess, ok := e.sessions[sessionID]
	if !ok {
		return nil, errors.NewNotFoundError("session", sessionID)
	}
	return cloneSession(sess), nil
}

// StartRound begins a new revision cycle with authorID as the round's sole
// author. Valid from the initialized, revising, and discussing states.
func (e *Engine) StartRound(sessionID, authorID string) error {
	e.mu.Lock()
	sess, ok := e.sessions[sessionID]
	if !ok {
		e.mu.Unlock()
		return errors.NewNotFoundError("session", sessionID)
	}
	if sess.Status.Terminal() {
		e.mu.Unlock()
		return errors.NewValidationError("session is terminal").WithField("status").WithValue(string(sess.Status))
	}
	if sess.Status == StatusDrafting || sess.Status == StatusVoting {
		e.mu.Unlock()
		return errors.NewValidationError("a round is already in flight").WithField("status").WithValue(string(sess.Status))
	}
	if !sess.HasAgent(authorID) {
		e.mu.Unlock()
		return errors.NewValidationError("author is not on the roster").WithField("authorID").WithValue(authorID)
	}

	sess.CurrentRound++
	sess.Status = StatusDrafting
	sess.Revisions = append(sess.Revisions, Revision{
		Round:  sess.CurrentRound,
		Author: authorID,
		Votes:  make(map[string]Vote),
	})
	round := sess.CurrentRound
	e.mu.Unlock()

	e.bus.Publish(event.NewConsensusRoundStartedEvent(sessionID, round, authorID))
	return nil
}

// SubmitWork records the round's work product. Only the round's designated
// author may submit. The author's own approving vote is registered
// automatically and every other roster member receives a review request.
func (e *Engine) SubmitWork(sessionID, agentID, workProduct string) error {
	e.mu.Lock()
	sess, ok := e.sessions[sessionID]
	if !ok {
		e.mu.Unlock()
		return errors.NewNotFoundError("session", sessionID)
	}
	if sess.Status != StatusDrafting {
		e.mu.Unlock()
		return errors.NewValidationError("work can only be submitted while drafting").WithField("status").WithValue(string(sess.Status))
	}
	rev := sess.CurrentRevision()
	if agentID != rev.Author {
		e.mu.Unlock()
		return errors.NewValidationError("only the round's author may submit").WithField("agentID").WithValue(agentID)
	}

	rev.WorkProduct = workProduct
	rev.SubmittedAt = time.Now()
	rev.Votes[agentID] = Vote{Approved: true, Confidence: 100, VotedAt: rev.SubmittedAt}
	sess.Status = StatusVoting

	events := make([]event.Event, 0, len(sess.Agents))
	for _, reviewer := range sess.Agents {
		if reviewer == rev.Author {
			continue
		}
		events = append(events, event.NewConsensusReviewRequestedEvent(
			sessionID, rev.Round, reviewer, rev.Author, workProduct, sess.Prompt))
	}

	// A single-member roster has nothing to wait for.
	var tally []event.Event
	if len(rev.Votes) == len(sess.Agents) {
		rev.VotingComplete = true
		tally = e.checkConsensusLocked(sess)
	} else {
		e.armVoteTimerLocked(sess, rev.Round)
	}
	round := rev.Round
	e.mu.Unlock()

	e.logger.Info("work submitted", "session_id", sessionID, "round", round, "author", agentID)
	for _, ev := range append(events, tally...) {
		e.bus.Publish(ev)
	}
	return nil
}

// CastVote records a roster member's vote on the current round. Rejection
// without feedback is a validation error. Once every roster member has
// voted, the round is tallied.
func (e *Engine) CastVote(sessionID, agentID string, approved bool, feedback string, confidence int) error {
	if !approved && strings.TrimSpace(feedback) == "" {
		return errors.NewValidationError("rejection requires feedback").WithField("feedback")
	}

	e.mu.Lock()
	sess, ok := e.sessions[sessionID]
	if !ok {
		e.mu.Unlock()
		return errors.NewNotFoundError("session", sessionID)
	}
	if sess.Status != StatusVoting {
		e.mu.Unlock()
		return errors.NewValidationError("votes are only valid while voting").WithField("status").WithValue(string(sess.Status))
	}
	if !sess.HasAgent(agentID) {
		e.mu.Unlock()
		return errors.NewValidationError("voter is not on the roster").WithField("agentID").WithValue(agentID)
	}
	rev := sess.CurrentRevision()
	if agentID == rev.Author && !approved {
		e.mu.Unlock()
		return errors.NewValidationError("the author's vote always approves").WithField("agentID").WithValue(agentID)
	}

	rev.Votes[agentID] = Vote{
		Approved:   approved,
		Confidence: confidence,
		Feedback:   feedback,
		VotedAt:    time.Now(),
	}

	events := []event.Event{
		event.NewConsensusVoteCastEvent(sessionID, rev.Round, agentID, approved, confidence, feedback),
	}
	if len(rev.Votes) == len(sess.Agents) {
		rev.VotingComplete = true
		e.stopVoteTimerLocked(sess)
		events = append(events, e.checkConsensusLocked(sess)...)
	}
	e.mu.Unlock()

	for _, ev := range events {
		e.bus.Publish(ev)
	}
	return nil
}

// AddDiscussionComment records a dissenter's concrete change proposal during
// the discussion phase.
// RequestDiscussion moves a revising session into the discussion phase so
// dissenters can elaborate concrete change proposals before the next round.
// Sessions configured with EnableDiscussion enter this phase automatically;
// RequestDiscussion opts a single rejection into it after the fact.
func (e *Engine) RequestDiscussion(sessionID string) error {
	e.mu.Lock()
	sess, ok := e.sessions[sessionID]
	if !ok {
		e.mu.Unlock()
		return errors.NewNotFoundError("session", sessionID)
	}
	if sess.Status != StatusRevising {
		e.mu.Unlock()
		return errors.NewValidationError("discussion can only follow a rejected round").WithField("status").WithValue(string(sess.Status))
	}

	rev := sess.CurrentRevision()
	dissenters := make([]string, 0, len(sess.Agents))
	for _, a := range sess.Agents {
		if v, voted := rev.Votes[a]; voted && !v.Approved {
			dissenters = append(dissenters, a)
		}
	}
	sess.Status = StatusDiscussing
	ev := event.NewConsensusDiscussionStartedEvent(sessionID, rev.Round, dissenters)
	e.mu.Unlock()

	e.bus.Publish(ev)
	return nil
}

func (e *Engine) AddDiscussionComment(sessionID, agentID, proposal string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions[sessionID]
	if !ok {
		return errors.NewNotFoundError("session", sessionID)
	}
	if sess.Status != StatusDiscussing {
		return errors.NewValidationError("comments are only valid while discussing").WithField("status").WithValue(string(sess.Status))
	}
	rev := sess.CurrentRevision()
	if v, voted := rev.Votes[agentID]; !voted || v.Approved {
		return errors.NewValidationError("only dissenting voters may comment").WithField("agentID").WithValue(agentID)
	}

	sess.Comments = append(sess.Comments, Comment{
		AgentID:  agentID,
		Round:    rev.Round,
		Proposal: proposal,
		At:       time.Now(),
	})
	return nil
}

// ConcludeDiscussion ends the discussion phase and triggers the revision
// path: the session moves to revising and a revision_needed event carries
// the rejecters' feedback together with the discussion proposals.
func (e *Engine) ConcludeDiscussion(sessionID string) error {
	e.mu.Lock()
	sess, ok := e.sessions[sessionID]
	if !ok {
		e.mu.Unlock()
		return errors.NewNotFoundError("session", sessionID)
	}
	if sess.Status != StatusDiscussing {
		e.mu.Unlock()
		return errors.NewValidationError("session is not discussing").WithField("status").WithValue(string(sess.Status))
	}

	rev := sess.CurrentRevision()
	parts := []string{rejectionFeedback(sess.Agents, rev)}
	for _, c := range sess.Comments {
		if c.Round == rev.Round {
			parts = append(parts, c.AgentID+": "+c.Proposal)
		}
	}
	feedback := strings.Join(parts, "\n")
	sess.Status = StatusRevising
	ev := event.NewConsensusRevisionNeededEvent(sessionID, sess.TaskID, rev.Round, rev.Author, feedback)
	e.mu.Unlock()

	e.bus.Publish(ev)
	return nil
}

// checkConsensusLocked tallies the current round and transitions the
// session. The caller holds e.mu; returned events are published after
// release.
func (e *Engine) checkConsensusLocked(sess *Session) []event.Event {
	rev := sess.CurrentRevision()

	approvals, rejections := 0, 0
	for _, v := range rev.Votes {
		if v.Approved {
			approvals++
		} else {
			rejections++
		}
	}

	// Zero rejections approves in every mode. In majority mode a strict
	// majority is required: a tie is not a majority.
	approved := rejections == 0
	if !approved && !sess.Config.RequireUnanimity {
		approved = approvals > rejections
	}

	switch {
	case approved:
		sess.Status = StatusApproved
		e.logger.Info("consensus reached",
			"session_id", sess.ID, "round", rev.Round, "approvals", approvals, "rejections", rejections)
		return []event.Event{event.NewConsensusReachedEvent(sess.ID, sess.TaskID, rev.Round, rev.Author, rev.WorkProduct)}

	case sess.CurrentRound >= sess.Config.MaxRounds:
		sess.Status = StatusDeadlocked
		feedback := rejectionFeedback(sess.Agents, rev)
		e.logger.Warn("consensus deadlocked",
			"session_id", sess.ID, "rounds", sess.CurrentRound)
		return []event.Event{event.NewConsensusDeadlockedEvent(sess.ID, sess.TaskID, sess.CurrentRound, feedback)}

	case sess.Config.EnableDiscussion:
		sess.Status = StatusDiscussing
		var dissenters []string
		for _, a := range sess.Agents {
			if v, ok := rev.Votes[a]; ok && !v.Approved {
				dissenters = append(dissenters, a)
			}
		}
		return []event.Event{event.NewConsensusDiscussionStartedEvent(sess.ID, rev.Round, dissenters)}

	default:
		sess.Status = StatusRevising
		return []event.Event{event.NewConsensusRevisionNeededEvent(sess.ID, sess.TaskID, rev.Round, rev.Author, rejectionFeedback(sess.Agents, rev))}
	}
}

// armVoteTimerLocked starts the round's voting window if one is configured.
// Expiry publishes an escalation event naming the missing voters; it never
// cancels the round, and late votes still count.
func (e *Engine) armVoteTimerLocked(sess *Session, round int) {
	if sess.Config.VoteTimeout <= 0 {
		return
	}
	id := sess.ID
	sess.voteTimer = time.AfterFunc(sess.Config.VoteTimeout, func() {
		e.mu.Lock()
		s, ok := e.sessions[id]
		if !ok || s.Status != StatusVoting || s.CurrentRound != round {
			e.mu.Unlock()
			return
		}
		rev := s.CurrentRevision()
		var missing []string
		for _, a := range s.Agents {
			if _, voted := rev.Votes[a]; !voted {
				missing = append(missing, a)
			}
		}
		e.mu.Unlock()

		e.logger.Warn("voting window elapsed", "session_id", id, "round", round, "missing", missing)
		e.bus.Publish(event.NewConsensusVoteTimeoutEvent(id, round, missing))
	})
}

func (e *Engine) stopVoteTimerLocked(sess *Session) {
	if sess.voteTimer != nil {
		sess.voteTimer.Stop()
		sess.voteTimer = nil
	}
}

// rejectionFeedback concatenates the feedback of every rejecting voter in
// roster order, so the aggregate is deterministic.
func rejectionFeedback(agents []string, rev *Revision) string {
	var parts []string
	for _, a := range agents {
		if v, ok := rev.Votes[a]; ok && !v.Approved && v.Feedback != "" {
			parts = append(parts, v.Feedback)
		}
	}
	return strings.Join(parts, "\n")
}

func cloneSession(sess *Session) *Session {
	out := *sess
	out.voteTimer = nil
	out.Agents = append([]string(nil), sess.Agents...)
	out.Comments = append([]Comment(nil), sess.Comments...)
	out.Revisions = make([]Revision, len(sess.Revisions))
	for i, rev := range sess.Revisions {
		votes := make(map[string]Vote, len(rev.Votes))
		for k, v := range rev.Votes {
			votes[k] = v
		}
		rev.Votes = votes
		out.Revisions[i] = rev
	}
	return &out
}
