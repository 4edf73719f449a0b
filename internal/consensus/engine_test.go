package consensus

import (
	"strings"
	"testing"
	"time"

	"quorum/internal/errors"
	"quorum/internal/event"
	"quorum/internal/logging"
)

func newEngine() (*Engine, *event.Bus) {
	bus := event.NewBus()
	return NewEngine(bus, logging.NopLogger()), bus
}

func mustCreate(t *testing.T, e *Engine, agents []string, cfg Config) *Session {
	t.Helper()
	sess, err := e.CreateSession("task-1", agents, "Build X", cfg)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return sess
}

func TestCreateSessionValidation(t *testing.T) {
	e, _ := newEngine()

	cases := []struct {
		name   string
		taskID string
		agents []string
	}{
		{"empty task", "", []string{"a"}},
		{"empty roster", "task-1", nil},
		{"blank agent", "task-1", []string{"a", ""}},
		{"duplicate agent", "task-1", []string{"a", "a"}},
	}
	for _, tc := range cases {
		if _, err := e.CreateSession(tc.taskID, tc.agents, "prompt", DefaultConfig()); !errors.IsValidation(err) {
			t.Errorf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestCreateSessionPublishesEvent(t *testing.T) {
	e, bus := newEngine()

	var created event.ConsensusSessionCreatedEvent
	bus.Subscribe(event.TypeConsensusSessionCreated, func(ev event.Event) {
		created = ev.(event.ConsensusSessionCreatedEvent)
	})

	sess := mustCreate(t, e, []string{"a", "b"}, DefaultConfig())
	if created.SessionID != sess.ID || created.TaskID != "task-1" {
		t.Errorf("event = %+v", created)
	}
	if sess.Status != StatusInitialized || sess.CurrentRound != 0 {
		t.Errorf("session = %+v", sess)
	}
}

func TestUnanimousApprovalAnyRosterSize(t *testing.T) {
	for _, n := range []int{1, 2, 4} {
		e, bus := newEngine()
		var reached []event.ConsensusReachedEvent
		bus.Subscribe(event.TypeConsensusReached, func(ev event.Event) {
			reached = append(reached, ev.(event.ConsensusReachedEvent))
		})

		agents := make([]string, n)
		for i := range agents {
			agents[i] = string(rune('a' + i))
		}
		sess := mustCreate(t, e, agents, DefaultConfig())

		if err := e.StartRound(sess.ID, "a"); err != nil {
			t.Fatalf("roster %d: StartRound: %v", n, err)
		}
		if err := e.SubmitWork(sess.ID, "a", "draft"); err != nil {
			t.Fatalf("roster %d: SubmitWork: %v", n, err)
		}
		for _, reviewer := range agents[1:] {
			if err := e.CastVote(sess.ID, reviewer, true, "", 90); err != nil {
				t.Fatalf("roster %d: CastVote %s: %v", n, reviewer, err)
			}
		}

		got, _ := e.GetSession(sess.ID)
		if got.Status != StatusApproved {
			t.Errorf("roster %d: status = %s, want approved", n, got.Status)
		}
		if len(reached) != 1 || reached[0].WorkProduct != "draft" {
			t.Errorf("roster %d: reached events = %+v", n, reached)
		}
	}
}

func TestReviseThenApprove(t *testing.T) {
	e, bus := newEngine()

	var revisions []event.ConsensusRevisionNeededEvent
	var reached []event.ConsensusReachedEvent
	bus.Subscribe(event.TypeConsensusRevisionNeeded, func(ev event.Event) {
		revisions = append(revisions, ev.(event.ConsensusRevisionNeededEvent))
	})
	bus.Subscribe(event.TypeConsensusReached, func(ev event.Event) {
		reached = append(reached, ev.(event.ConsensusReachedEvent))
	})

	sess := mustCreate(t, e, []string{"a", "b"}, Config{MaxRounds: 3, RequireUnanimity: true})

	// Round 1: rejected with feedback.
	if err := e.StartRound(sess.ID, "a"); err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	if err := e.SubmitWork(sess.ID, "a", "draft1"); err != nil {
		t.Fatalf("SubmitWork: %v", err)
	}
	if err := e.CastVote(sess.ID, "b", false, "needs Y", 80); err != nil {
		t.Fatalf("CastVote: %v", err)
	}

	got, _ := e.GetSession(sess.ID)
	if got.Status != StatusRevising {
		t.Fatalf("status after rejection = %s, want revising", got.Status)
	}
	if len(revisions) != 1 || revisions[0].Feedback != "needs Y" {
		t.Fatalf("revision events = %+v", revisions)
	}

	// Round 2: approved.
	if err := e.StartRound(sess.ID, "a"); err != nil {
		t.Fatalf("StartRound round 2: %v", err)
	}
	if err := e.SubmitWork(sess.ID, "a", "draft2"); err != nil {
		t.Fatalf("SubmitWork round 2: %v", err)
	}
	if err := e.CastVote(sess.ID, "b", true, "", 95); err != nil {
		t.Fatalf("CastVote round 2: %v", err)
	}

	got, _ = e.GetSession(sess.ID)
	if got.Status != StatusApproved {
		t.Errorf("final status = %s, want approved", got.Status)
	}
	if len(reached) != 1 || reached[0].WorkProduct != "draft2" || reached[0].Round != 2 {
		t.Errorf("reached events = %+v", reached)
	}
}

func TestDeadlockAtMaxRounds(t *testing.T) {
	e, bus := newEngine()

	var deadlocked []event.ConsensusDeadlockedEvent
	bus.Subscribe(event.TypeConsensusDeadlocked, func(ev event.Event) {
		deadlocked = append(deadlocked, ev.(event.ConsensusDeadlockedEvent))
	})

	sess := mustCreate(t, e, []string{"a", "b"}, Config{MaxRounds: 2, RequireUnanimity: true})

	for round := 1; round <= 2; round++ {
		if err := e.StartRound(sess.ID, "a"); err != nil {
			t.Fatalf("round %d: StartRound: %v", round, err)
		}
		if err := e.SubmitWork(sess.ID, "a", "draft"); err != nil {
			t.Fatalf("round %d: SubmitWork: %v", round, err)
		}
		if err := e.CastVote(sess.ID, "b", false, "still wrong", 60); err != nil {
			t.Fatalf("round %d: CastVote: %v", round, err)
		}
	}

	got, _ := e.GetSession(sess.ID)
	if got.Status != StatusDeadlocked {
		t.Fatalf("status = %s, want deadlocked", got.Status)
	}
	if len(deadlocked) != 1 || deadlocked[0].Rounds != 2 || deadlocked[0].Feedback != "still wrong" {
		t.Errorf("deadlock events = %+v", deadlocked)
	}

	// A terminal session never loops further.
	if err := e.StartRound(sess.ID, "a"); !errors.IsValidation(err) {
		t.Errorf("StartRound on deadlocked session: %v", err)
	}
}

func TestRejectionRequiresFeedback(t *testing.T) {
	e, _ := newEngine()
	sess := mustCreate(t, e, []string{"a", "b"}, DefaultConfig())
	e.StartRound(sess.ID, "a")
	e.SubmitWork(sess.ID, "a", "draft")

	if err := e.CastVote(sess.ID, "b", false, "   ", 50); !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestStateViolations(t *testing.T) {
	e, _ := newEngine()
	sess := mustCreate(t, e, []string{"a", "b"}, DefaultConfig())

	// Voting before any round exists.
	if err := e.CastVote(sess.ID, "b", true, "", 90); !errors.IsValidation(err) {
		t.Errorf("vote while initialized: %v", err)
	}
	// Submitting before drafting.
	if err := e.SubmitWork(sess.ID, "a", "draft"); !errors.IsValidation(err) {
		t.Errorf("submit while initialized: %v", err)
	}

	e.StartRound(sess.ID, "a")

	// Only the designated author may submit.
	if err := e.SubmitWork(sess.ID, "b", "draft"); !errors.IsValidation(err) {
		t.Errorf("submit by non-author: %v", err)
	}
	// Outsiders may not author or vote.
	if err := e.StartRound(sess.ID, "z"); !errors.IsValidation(err) {
		t.Errorf("start by outsider: %v", err)
	}

	e.SubmitWork(sess.ID, "a", "draft")
	if err := e.CastVote(sess.ID, "z", true, "", 90); !errors.IsValidation(err) {
		t.Errorf("vote by outsider: %v", err)
	}
	// No second round while voting is open.
	if err := e.StartRound(sess.ID, "a"); !errors.IsValidation(err) {
		t.Errorf("start while voting: %v", err)
	}
	// The author cannot reject their own work.
	if err := e.CastVote(sess.ID, "a", false, "changed my mind", 10); !errors.IsValidation(err) {
		t.Errorf("author self-rejection: %v", err)
	}
}

func TestStartRoundWhileDraftingRejected(t *testing.T) {
	e, _ := newEngine()
	sess := mustCreate(t, e, []string{"a", "b"}, DefaultConfig())

	if err := e.StartRound(sess.ID, "a"); err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	// A second start would abandon the in-flight draft and burn a round
	// toward the deadlock limit.
	if err := e.StartRound(sess.ID, "b"); !errors.IsValidation(err) {
		t.Errorf("StartRound while drafting: %v", err)
	}

	got, err := e.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.CurrentRound != 1 || got.Status != StatusDrafting {
		t.Errorf("session = round %d, status %s, want round 1 drafting", got.CurrentRound, got.Status)
	}
}

func TestUnknownSession(t *testing.T) {
	e, _ := newEngine()
	if _, err := e.GetSession("missing"); !errors.Is(err, errors.ErrSessionNotFound) {
		t.Errorf("GetSession: %v", err)
	}
	if err := e.StartRound("missing", "a"); !errors.IsNotFound(err) {
		t.Errorf("StartRound: %v", err)
	}
}

func TestMajorityMode(t *testing.T) {
	e, _ := newEngine()
	cfg := Config{MaxRounds: 3, RequireUnanimity: false}

	// 2 approvals (author + reviewer) against 1 rejection is a strict
	// majority.
	sess := mustCreate(t, e, []string{"a", "b", "c"}, cfg)
	e.StartRound(sess.ID, "a")
	e.SubmitWork(sess.ID, "a", "draft")
	if err := e.CastVote(sess.ID, "b", true, "", 85); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if err := e.CastVote(sess.ID, "c", false, "disagree", 70); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	got, _ := e.GetSession(sess.ID)
	if got.Status != StatusApproved {
		t.Errorf("2-1 split: status = %s, want approved", got.Status)
	}
}

func TestMajorityTieDoesNotApprove(t *testing.T) {
	e, _ := newEngine()
	sess := mustCreate(t, e, []string{"a", "b"}, Config{MaxRounds: 3, RequireUnanimity: false})

	e.StartRound(sess.ID, "a")
	e.SubmitWork(sess.ID, "a", "draft")
	if err := e.CastVote(sess.ID, "b", false, "not convinced", 60); err != nil {
		t.Fatalf("CastVote: %v", err)
	}

	got, _ := e.GetSession(sess.ID)
	if got.Status != StatusRevising {
		t.Errorf("1-1 tie: status = %s, want revising", got.Status)
	}
}

func TestDiscussionPhase(t *testing.T) {
	e, bus := newEngine()

	var started []event.ConsensusDiscussionStartedEvent
	var revisions []event.ConsensusRevisionNeededEvent
	bus.Subscribe(event.TypeConsensusDiscussionStarted, func(ev event.Event) {
		started = append(started, ev.(event.ConsensusDiscussionStartedEvent))
	})
	bus.Subscribe(event.TypeConsensusRevisionNeeded, func(ev event.Event) {
		revisions = append(revisions, ev.(event.ConsensusRevisionNeededEvent))
	})

	sess := mustCreate(t, e, []string{"a", "b", "c"}, Config{
		MaxRounds:        3,
		RequireUnanimity: true,
		EnableDiscussion: true,
	})
	e.StartRound(sess.ID, "a")
	e.SubmitWork(sess.ID, "a", "draft")
	e.CastVote(sess.ID, "b", true, "", 90)
	if err := e.CastVote(sess.ID, "c", false, "needs pagination", 75); err != nil {
		t.Fatalf("CastVote: %v", err)
	}

	got, _ := e.GetSession(sess.ID)
	if got.Status != StatusDiscussing {
		t.Fatalf("status = %s, want discussing", got.Status)
	}
	if len(started) != 1 || len(started[0].Dissenters) != 1 || started[0].Dissenters[0] != "c" {
		t.Fatalf("discussion events = %+v", started)
	}

	// Only dissenters may elaborate.
	if err := e.AddDiscussionComment(sess.ID, "b", "looks fine"); !errors.IsValidation(err) {
		t.Errorf("approver comment: %v", err)
	}
	if err := e.AddDiscussionComment(sess.ID, "c", "add a cursor parameter"); err != nil {
		t.Fatalf("AddDiscussionComment: %v", err)
	}

	if err := e.ConcludeDiscussion(sess.ID); err != nil {
		t.Fatalf("ConcludeDiscussion: %v", err)
	}
	got, _ = e.GetSession(sess.ID)
	if got.Status != StatusRevising {
		t.Errorf("status = %s, want revising", got.Status)
	}
	if len(revisions) != 1 {
		t.Fatalf("revision events = %+v", revisions)
	}
	if !strings.Contains(revisions[0].Feedback, "needs pagination") ||
		!strings.Contains(revisions[0].Feedback, "add a cursor parameter") {
		t.Errorf("feedback = %q", revisions[0].Feedback)
	}
}

func TestRequestDiscussionOptsIn(t *testing.T) {
	e, bus := newEngine()

	var started []event.ConsensusDiscussionStartedEvent
	bus.Subscribe(event.TypeConsensusDiscussionStarted, func(ev event.Event) {
		started = append(started, ev.(event.ConsensusDiscussionStartedEvent))
	})

	// Discussion not enabled, so a rejection goes straight to revising.
	sess := mustCreate(t, e, []string{"a", "b"}, Config{MaxRounds: 3, RequireUnanimity: true})
	e.StartRound(sess.ID, "a")
	e.SubmitWork(sess.ID, "a", "draft")

	if err := e.RequestDiscussion(sess.ID); !errors.IsValidation(err) {
		t.Errorf("RequestDiscussion while voting: %v", err)
	}

	e.CastVote(sess.ID, "b", false, "missing error budget", 60)

	got, _ := e.GetSession(sess.ID)
	if got.Status != StatusRevising {
		t.Fatalf("status = %s, want revising", got.Status)
	}

	if err := e.RequestDiscussion(sess.ID); err != nil {
		t.Fatalf("RequestDiscussion: %v", err)
	}
	got, _ = e.GetSession(sess.ID)
	if got.Status != StatusDiscussing {
		t.Fatalf("status = %s, want discussing", got.Status)
	}
	if len(started) != 1 || len(started[0].Dissenters) != 1 || started[0].Dissenters[0] != "b" {
		t.Fatalf("discussion events = %+v", started)
	}

	if err := e.AddDiscussionComment(sess.ID, "b", "cap retries at three"); err != nil {
		t.Fatalf("AddDiscussionComment: %v", err)
	}
	if err := e.ConcludeDiscussion(sess.ID); err != nil {
		t.Fatalf("ConcludeDiscussion: %v", err)
	}

	if err := e.RequestDiscussion("session-missing-0-0"); !errors.IsNotFound(err) {
		t.Errorf("unknown session: %v", err)
	}
}

func TestVoteTimeoutEscalates(t *testing.T) {
	e, bus := newEngine()

	timeouts := make(chan event.ConsensusVoteTimeoutEvent, 1)
	bus.Subscribe(event.TypeConsensusVoteTimeout, func(ev event.Event) {
		timeouts <- ev.(event.ConsensusVoteTimeoutEvent)
	})

	sess := mustCreate(t, e, []string{"a", "b"}, Config{
		MaxRounds:        3,
		RequireUnanimity: true,
		VoteTimeout:      20 * time.Millisecond,
	})
	e.StartRound(sess.ID, "a")
	e.SubmitWork(sess.ID, "a", "draft")

	select {
	case ev := <-timeouts:
		if len(ev.Missing) != 1 || ev.Missing[0] != "b" {
			t.Errorf("missing voters = %v", ev.Missing)
		}
	case <-time.After(time.Second):
		t.Fatal("vote timeout never fired")
	}

	// The window is an escalation, not a kill: a late vote still counts.
	if err := e.CastVote(sess.ID, "b", true, "", 90); err != nil {
		t.Fatalf("late CastVote: %v", err)
	}
	got, _ := e.GetSession(sess.ID)
	if got.Status != StatusApproved {
		t.Errorf("status = %s, want approved", got.Status)
	}
}
