package hub

import (
	"context"
	"strings"
	"testing"
	"time"

	"quorum/internal/consensus"
	"quorum/internal/llm"
	"quorum/internal/orchestrator"
	"quorum/internal/task"
)

// scriptedGen returns canned replies keyed by a substring of the
// instructions, or fallback when nothing matches.
type scriptedGen struct {
	replies  map[string]string
	fallback string
}

func (g *scriptedGen) Generate(_ context.Context, _, instructions string, _ llm.Options) (llm.Result, error) {
	for key, reply := range g.replies {
		if strings.Contains(instructions, key) {
			return llm.Result{Content: reply, Model: "test-model"}, nil
		}
	}
	return llm.Result{Content: g.fallback, Model: "test-model"}, nil
}

func newHub(t *testing.T, opts ...Option) *Hub {
	t.Helper()
	opts = append([]Option{WithGenerator(&scriptedGen{fallback: "ok"})}, opts...)
	h, err := New(Config{}, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return h
}

func TestNew(t *testing.T) {
	h := newHub(t)

	if h.Bus() == nil {
		t.Error("Bus() returned nil")
	}
	if h.Store() == nil {
		t.Error("Store() returned nil")
	}
	if h.Consensus() == nil {
		t.Error("Consensus() returned nil")
	}
	if h.Pool() == nil {
		t.Error("Pool() returned nil")
	}
	if h.Orchestrator() == nil {
		t.Error("Orchestrator() returned nil")
	}
	if h.Running() {
		t.Error("new hub should not be running")
	}
}

func TestNew_Validation(t *testing.T) {
	// No generator and no LLM endpoint to build one from.
	_, err := New(Config{})
	if err == nil {
		t.Fatal("New() without generator or endpoint should fail")
	}

	// An endpoint is enough.
	h, err := New(Config{LLM: llm.Config{BaseURL: "http://localhost:8000"}})
	if err != nil {
		t.Fatalf("New() with endpoint error = %v", err)
	}
	if h == nil {
		t.Fatal("New() returned nil hub")
	}
}

func TestHub_StartStop(t *testing.T) {
	h := newHub(t, WithSweepInterval(time.Millisecond))

	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !h.Running() {
		t.Error("Running() = false after Start")
	}

	if err := h.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}

	if err := h.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if h.Running() {
		t.Error("Running() = true after Stop")
	}

	// Stop is idempotent.
	if err := h.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}

func TestHub_StopWithoutStart(t *testing.T) {
	h := newHub(t)
	if err := h.Stop(); err != nil {
		t.Fatalf("Stop() without Start error = %v", err)
	}
}

func TestHub_EndToEnd_DispatchComplete(t *testing.T) {
	gen := &scriptedGen{replies: map[string]string{
		"summarize": "[[COMPLETE: the summary]]",
	}}
	h, err := New(Config{}, WithGenerator(gen))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, err := h.Store().CreateTaskContext("summarize the findings", "")
	if err != nil {
		t.Fatalf("CreateTaskContext() error = %v", err)
	}

	if _, err := h.Store().Dispatch("manager", ctx.ID, "agent-1", "summarize the findings"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	h.Orchestrator().Wait()

	got, err := h.Store().GetTaskContext(ctx.ID)
	if err != nil {
		t.Fatalf("GetTaskContext() error = %v", err)
	}
	if got.Status != task.StatusCompleted {
		t.Errorf("Status = %q, want %q", got.Status, task.StatusCompleted)
	}

	var deliverable string
	for _, msg := range got.Messages {
		if body, ok := msg.Body.(task.CompleteBody); ok {
			deliverable = body.Deliverable
		}
	}
	if deliverable != "the summary" {
		t.Errorf("completion deliverable = %q, want %q", deliverable, "the summary")
	}

	route, _, ok := h.Orchestrator().Route(ctx.ID)
	if !ok || route != orchestrator.RouteComplete {
		t.Errorf("Route = %q, ok = %v, want %q", route, ok, orchestrator.RouteComplete)
	}
}

func TestHub_EndToEnd_ConsensusReviseApprove(t *testing.T) {
	h := newHub(t, WithConsensusDefaults(consensus.Config{MaxRounds: 3, RequireUnanimity: true}))

	ctx, err := h.Store().CreateTaskContext("draft the proposal", "")
	if err != nil {
		t.Fatalf("CreateTaskContext() error = %v", err)
	}

	sess, err := h.NewSession(ctx.ID, []string{"alice", "bob"}, "draft the proposal")
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	eng := h.Consensus()

	// Round 1: alice drafts, bob rejects.
	if err := eng.StartRound(sess.ID, "alice"); err != nil {
		t.Fatalf("StartRound() error = %v", err)
	}
	if err := eng.SubmitWork(sess.ID, "alice", "draft one"); err != nil {
		t.Fatalf("SubmitWork() error = %v", err)
	}
	if err := eng.CastVote(sess.ID, "bob", false, "needs a budget section", 70); err != nil {
		t.Fatalf("CastVote() error = %v", err)
	}

	got, err := eng.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Status != consensus.StatusRevising {
		t.Fatalf("Status after rejection = %q, want %q", got.Status, consensus.StatusRevising)
	}

	// Round 2: revised draft is approved unanimously.
	if err := eng.StartRound(sess.ID, "alice"); err != nil {
		t.Fatalf("StartRound() round 2 error = %v", err)
	}
	if err := eng.SubmitWork(sess.ID, "alice", "draft two with budget"); err != nil {
		t.Fatalf("SubmitWork() round 2 error = %v", err)
	}
	if err := eng.CastVote(sess.ID, "bob", true, "", 95); err != nil {
		t.Fatalf("CastVote() round 2 error = %v", err)
	}

	got, err = eng.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Status != consensus.StatusApproved {
		t.Errorf("Status = %q, want %q", got.Status, consensus.StatusApproved)
	}
	if got.CurrentRound != 2 {
		t.Errorf("CurrentRound = %d, want 2", got.CurrentRound)
	}
	if rev := got.CurrentRevision(); rev == nil || rev.WorkProduct != "draft two with budget" {
		t.Errorf("CurrentRevision() = %+v, want draft two with budget", rev)
	}
}

func TestHub_EndToEnd_QueryAck(t *testing.T) {
	// AutoComplete off so the queried task stays active.
	h := newHub(t, WithOrchestratorConfig(orchestrator.Config{AutoComplete: false}))

	ctx, err := h.Store().CreateTaskContext("investigate the outage", "")
	if err != nil {
		t.Fatalf("CreateTaskContext() error = %v", err)
	}

	q, err := h.Store().Query("agent-1", ctx.ID, "agent-2", "which region failed?")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if _, err := h.Store().Assert("agent-2", ctx.ID, "us-east failed"); err != nil {
		t.Fatalf("Assert() error = %v", err)
	}

	if _, err := h.Store().Ack("agent-2", ctx.ID, q.Timestamp, "answered"); err != nil {
		t.Fatalf("Ack() error = %v", err)
	}

	got, err := h.Store().GetTaskContext(ctx.ID)
	if err != nil {
		t.Fatalf("GetTaskContext() error = %v", err)
	}

	acked := 0
	for _, msg := range got.Messages {
		if msg.Acked {
			acked++
			if !msg.Timestamp.Equal(q.Timestamp) {
				t.Errorf("acked message timestamp = %v, want %v", msg.Timestamp, q.Timestamp)
			}
		}
	}
	if acked != 1 {
		t.Errorf("acked messages = %d, want exactly 1", acked)
	}
}

func TestHub_MonitorTask(t *testing.T) {
	gen := &scriptedGen{fallback: "helper findings"}
	h, err := New(Config{}, WithGenerator(gen), WithStallMultiplier(1.0))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, err := h.Store().CreateTaskContext("slow research", "")
	if err != nil {
		t.Fatalf("CreateTaskContext() error = %v", err)
	}

	timer := h.MonitorTask("manager", ctx.ID, time.Millisecond)
	defer timer.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := h.Store().GetTaskContext(ctx.ID)
		if err != nil {
			t.Fatalf("GetTaskContext() error = %v", err)
		}
		found := false
		for _, msg := range got.Messages {
			if msg.Type == task.MessageSpawnHelper {
				found = true
			}
		}
		if found {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("stalled task never produced a helper spawn")
}
