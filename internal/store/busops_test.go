package store

import (
	"testing"
	"time"

	"quorum/internal/errors"
	"quorum/internal/event"
	"quorum/internal/task"
)

func TestBusOperationsAppendTypedMessages(t *testing.T) {
	s, _ := newMemoryStore(t)
	ctx, err := s.CreateTaskContext("Build X", "")
	if err != nil {
		t.Fatalf("CreateTaskContext: %v", err)
	}

	ops := []struct {
		name string
		call func() (task.Message, error)
		typ  task.MessageType
	}{
		{"dispatch", func() (task.Message, error) { return s.Dispatch("coord", ctx.ID, "agent-b", "do it") }, task.MessageDispatch},
		{"assert", func() (task.Message, error) { return s.Assert("agent-a", ctx.ID, "done part 1") }, task.MessageAssert},
		{"query", func() (task.Message, error) { return s.Query("agent-a", ctx.ID, "agent-b", "which port?") }, task.MessageQuery},
		{"validate", func() (task.Message, error) { return s.Validate("agent-a", ctx.ID, "agent-b", "tests pass") }, task.MessageValidate},
		{"correct", func() (task.Message, error) { return s.Correct("agent-a", ctx.ID, "agent-b", "port is 8080") }, task.MessageCorrect},
		{"handoff", func() (task.Message, error) { return s.Handoff("agent-a", ctx.ID, "agent-b", "take over") }, task.MessageHandoff},
		{"blocker", func() (task.Message, error) { return s.Blocker("agent-a", ctx.ID, "missing creds") }, task.MessageBlocker},
		{"spawn_helper", func() (task.Message, error) { return s.SpawnHelper("agent-a", ctx.ID, "researcher", "find docs") }, task.MessageSpawnHelper},
		{"propose", func() (task.Message, error) { return s.Propose("agent-a", ctx.ID, "session-1", 1, "draft one") }, task.MessagePropose},
		{"vote", func() (task.Message, error) { return s.Vote("agent-b", ctx.ID, "session-1", 1, false, 60, "too vague") }, task.MessageVote},
		{"revise", func() (task.Message, error) { return s.Revise("agent-a", ctx.ID, "session-1", 1, "agent-b: too vague") }, task.MessageRevise},
	}

	for _, op := range ops {
		msg, err := op.call()
		if err != nil {
			t.Fatalf("%s: %v", op.name, err)
		}
		if msg.Type != op.typ {
			t.Errorf("%s: type = %s, want %s", op.name, msg.Type, op.typ)
		}
		if msg.ContextHash != ctx.ContextHash {
			t.Errorf("%s: message did not carry the task's context hash", op.name)
		}
	}

	got, _ := s.GetTaskContext(ctx.ID)
	if len(got.Messages) != len(ops) {
		t.Errorf("log holds %d messages, want %d", len(got.Messages), len(ops))
	}
}

func TestBusOperationUnknownTask(t *testing.T) {
	s, _ := newMemoryStore(t)
	if _, err := s.Assert("agent-a", "missing", "hello"); !errors.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestPublishesGenericAndTypedEvents(t *testing.T) {
	s, bus := newMemoryStore(t)
	ctx, _ := s.CreateTaskContext("Build X", "")

	var generic, typed int
	bus.Subscribe(event.TypeBusMessage, func(event.Event) { generic++ })
	bus.Subscribe(event.MessageEventType(task.MessageBlocker), func(e event.Event) {
		typed++
		msg := e.(event.TypedMessageEvent).Msg
		if msg.Type != task.MessageBlocker {
			t.Errorf("typed event carried %s", msg.Type)
		}
	})

	if _, err := s.Blocker("agent-a", ctx.ID, "stuck"); err != nil {
		t.Fatalf("Blocker: %v", err)
	}
	if generic != 1 || typed != 1 {
		t.Errorf("generic=%d typed=%d, want 1 each", generic, typed)
	}
}

func TestQueryAckScenario(t *testing.T) {
	s, _ := newMemoryStore(t)
	ctx, _ := s.CreateTaskContext("Build X", "")

	if _, err := s.Assert("agent-b", ctx.ID, "baseline"); err != nil {
		t.Fatalf("Assert: %v", err)
	}
	query, err := s.Query("agent-a", ctx.ID, "agent-b", "which port?")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !query.RequiresAck {
		t.Fatal("query should require acknowledgement")
	}

	if _, err := s.Ack("agent-b", ctx.ID, query.Timestamp, "port 8080"); err != nil {
		t.Fatalf("Ack: %v", err)
	}

	got, _ := s.GetTaskContext(ctx.ID)
	if len(got.Messages) != 3 {
		t.Fatalf("log holds %d messages, want 3", len(got.Messages))
	}
	for _, m := range got.Messages {
		switch {
		case m.Timestamp.Equal(query.Timestamp):
			if !m.Acked {
				t.Error("queried message was not marked acked")
			}
		case m.Type == task.MessageAck:
			body := m.Body.(task.AckBody)
			if !body.AckedTimestamp.Equal(query.Timestamp) {
				t.Error("ack body does not reference the query timestamp")
			}
		default:
			if m.Acked {
				t.Errorf("unrelated %s message was mutated", m.Type)
			}
		}
	}
}

func TestAckUnknownTimestamp(t *testing.T) {
	s, _ := newMemoryStore(t)
	ctx, _ := s.CreateTaskContext("Build X", "")

	_, err := s.Ack("agent-b", ctx.ID, time.Now().Add(time.Hour), "")
	if !errors.Is(err, errors.ErrMessageNotFound) {
		t.Errorf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestKnowledgeFailsSilently(t *testing.T) {
	s, _ := newMemoryStore(t)

	// Unknown task must not panic or surface an error.
	s.Knowledge("agent-a", "missing", "the sky is blue")

	ctx, _ := s.CreateTaskContext("Build X", "")
	s.Knowledge("agent-a", ctx.ID, "the sky is blue")

	got, _ := s.GetTaskContext(ctx.ID)
	if len(got.Messages) != 1 || got.Messages[0].Type != task.MessageKnowledge {
		t.Errorf("knowledge message not recorded: %+v", got.Messages)
	}
}

func TestChildrenCompleteFiresExactlyOnce(t *testing.T) {
	s, bus := newMemoryStore(t)

	parent, _ := s.CreateTaskContext("parent work", "")
	childA, _ := s.CreateTaskContext("part one", parent.ID)
	childB, _ := s.CreateTaskContext("part two", parent.ID)

	var fired []event.ChildrenCompleteEvent
	bus.Subscribe(event.TypeChildrenComplete, func(e event.Event) {
		fired = append(fired, e.(event.ChildrenCompleteEvent))
	})

	if _, err := s.Complete("agent-a", childA.ID, "result A"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(fired) != 0 {
		t.Fatal("children_complete fired before the last child completed")
	}

	if _, err := s.Complete("agent-b", childB.ID, "result B"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(fired) != 1 {
		t.Fatalf("children_complete fired %d times, want 1", len(fired))
	}
	if fired[0].TaskID != parent.ID || len(fired[0].Deliverables) != 2 {
		t.Errorf("event = %+v", fired[0])
	}

	// A repeated COMPLETE on an already terminal child must not re-fire
	// or double-count.
	if _, err := s.Complete("agent-b", childB.ID, "result B again"); err != nil {
		t.Fatalf("repeat Complete: %v", err)
	}
	if len(fired) != 1 {
		t.Errorf("children_complete re-fired on repeated completion")
	}

	got, _ := s.GetTaskContext(parent.ID)
	if got.ChildrenComplete != 2 {
		t.Errorf("ChildrenComplete = %d, want 2", got.ChildrenComplete)
	}
	if len(got.Deliverables) != 2 {
		t.Errorf("deliverables double-counted: %d", len(got.Deliverables))
	}
}

func TestChildrenCompleteNotRefiredByLateChild(t *testing.T) {
	s, bus := newMemoryStore(t)

	parent, _ := s.CreateTaskContext("parent work", "")
	first, _ := s.CreateTaskContext("part one", parent.ID)

	var fired int
	bus.Subscribe(event.TypeChildrenComplete, func(event.Event) { fired++ })

	if _, err := s.Complete("agent-a", first.ID, "result A"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if fired != 1 {
		t.Fatalf("children_complete fired %d times, want 1", fired)
	}

	// The aggregation already ran. A child registered afterwards still
	// counts toward the parent but must not re-fire the aggregate.
	second, err := s.CreateTaskContext("part two", parent.ID)
	if err != nil {
		t.Fatalf("CreateTaskContext late child: %v", err)
	}
	if _, err := s.Complete("agent-b", second.ID, "result B"); err != nil {
		t.Fatalf("Complete late child: %v", err)
	}
	if fired != 1 {
		t.Errorf("children_complete fired %d times total, want exactly 1 per parent", fired)
	}

	got, _ := s.GetTaskContext(parent.ID)
	if got.ChildrenComplete != 2 || len(got.Deliverables) != 2 {
		t.Errorf("parent accounting = %d complete, %d deliverables, want 2 and 2",
			got.ChildrenComplete, len(got.Deliverables))
	}
}

func TestCreateTaskContextRejectsTerminalParent(t *testing.T) {
	s, _ := newMemoryStore(t)

	parent, _ := s.CreateTaskContext("parent work", "")
	if _, err := s.Complete("agent-a", parent.ID, "done"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := s.CreateTaskContext("too late", parent.ID); !errors.IsValidation(err) {
		t.Errorf("child on terminal parent: %v", err)
	}
}

func TestCompleteWithoutParent(t *testing.T) {
	s, bus := newMemoryStore(t)
	ctx, _ := s.CreateTaskContext("solo work", "")

	var fired int
	bus.Subscribe(event.TypeChildrenComplete, func(event.Event) { fired++ })

	if _, err := s.Complete("agent-a", ctx.ID, "done"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, _ := s.GetTaskContext(ctx.ID)
	if got.Status != task.StatusCompleted {
		t.Errorf("status = %s", got.Status)
	}
	if fired != 0 {
		t.Error("children_complete fired for a task with no children")
	}
}
