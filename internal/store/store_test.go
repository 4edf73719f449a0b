package store

import (
	"testing"
	"time"

	"quorum/internal/errors"
	"quorum/internal/event"
	"quorum/internal/logging"
	"quorum/internal/persist"
	"quorum/internal/task"
)

func newMemoryStore(t *testing.T) (*Store, *event.Bus) {
	t.Helper()
	bus := event.NewBus()
	return New(bus, persist.NewNopStore(), logging.NopLogger()), bus
}

func TestCreateTaskContext(t *testing.T) {
	s, bus := newMemoryStore(t)

	var created event.TaskCreatedEvent
	bus.Subscribe(event.TypeTaskCreated, func(e event.Event) {
		created = e.(event.TaskCreatedEvent)
	})

	ctx, err := s.CreateTaskContext("Build X", "")
	if err != nil {
		t.Fatalf("CreateTaskContext: %v", err)
	}

	if ctx.ID == "" {
		t.Error("task ID should be allocated")
	}
	if ctx.Status != task.StatusActive {
		t.Errorf("status = %s, want active", ctx.Status)
	}
	if ctx.ContextHash != task.ContextHash("Build X", ctx.ID) {
		t.Error("context hash does not match ContextHash(request, id)")
	}
	if created.TaskID != ctx.ID {
		t.Errorf("task.created event carried %q, want %q", created.TaskID, ctx.ID)
	}
}

func TestCreateTaskContextEmptyRequest(t *testing.T) {
	s, _ := newMemoryStore(t)
	if _, err := s.CreateTaskContext("", ""); !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestCreateTaskContextRegistersWithParent(t *testing.T) {
	s, _ := newMemoryStore(t)

	parent, err := s.CreateTaskContext("parent work", "")
	if err != nil {
		t.Fatalf("CreateTaskContext: %v", err)
	}

	child, err := s.CreateTaskContext("child work", parent.ID)
	if err != nil {
		t.Fatalf("CreateTaskContext child: %v", err)
	}
	if child.ParentID != parent.ID {
		t.Errorf("child.ParentID = %q", child.ParentID)
	}

	got, err := s.GetTaskContext(parent.ID)
	if err != nil {
		t.Fatalf("GetTaskContext: %v", err)
	}
	if len(got.ChildIDs) != 1 || got.ChildIDs[0] != child.ID {
		t.Errorf("parent.ChildIDs = %v", got.ChildIDs)
	}
}

func TestCreateTaskContextUnknownParent(t *testing.T) {
	s, _ := newMemoryStore(t)
	if _, err := s.CreateTaskContext("child", "nope"); !errors.IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestGetTaskContextNotFound(t *testing.T) {
	s, _ := newMemoryStore(t)
	if _, err := s.GetTaskContext("missing"); !errors.Is(err, errors.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestGetTaskContextReturnsCopy(t *testing.T) {
	s, _ := newMemoryStore(t)

	ctx, err := s.CreateTaskContext("Build X", "")
	if err != nil {
		t.Fatalf("CreateTaskContext: %v", err)
	}

	got, err := s.GetTaskContext(ctx.ID)
	if err != nil {
		t.Fatalf("GetTaskContext: %v", err)
	}
	got.Status = task.StatusFailed
	got.ChildIDs = append(got.ChildIDs, "rogue")

	again, err := s.GetTaskContext(ctx.ID)
	if err != nil {
		t.Fatalf("GetTaskContext: %v", err)
	}
	if again.Status != task.StatusActive || len(again.ChildIDs) != 0 {
		t.Error("caller mutation leaked into canonical state")
	}
}

func TestUpdateTaskStatus(t *testing.T) {
	s, bus := newMemoryStore(t)

	var changed event.TaskStatusChangedEvent
	bus.Subscribe(event.TypeTaskStatusChanged, func(e event.Event) {
		changed = e.(event.TaskStatusChangedEvent)
	})

	ctx, err := s.CreateTaskContext("Build X", "")
	if err != nil {
		t.Fatalf("CreateTaskContext: %v", err)
	}

	if err := s.UpdateTaskStatus(ctx.ID, task.StatusBlocked); err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}

	if changed.OldStatus != task.StatusActive || changed.NewStatus != task.StatusBlocked {
		t.Errorf("status change event = %s -> %s", changed.OldStatus, changed.NewStatus)
	}

	got, _ := s.GetTaskContext(ctx.ID)
	if got.Status != task.StatusBlocked {
		t.Errorf("status = %s, want blocked", got.Status)
	}
}

func TestUpdateTaskStatusNotFound(t *testing.T) {
	s, _ := newMemoryStore(t)
	if err := s.UpdateTaskStatus("missing", task.StatusFailed); !errors.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestVerifyContext(t *testing.T) {
	s, _ := newMemoryStore(t)

	ctx, err := s.CreateTaskContext("Build X", "")
	if err != nil {
		t.Fatalf("CreateTaskContext: %v", err)
	}

	if !s.VerifyContext(ctx.ID, ctx.ContextHash) {
		t.Error("matching hash should verify")
	}
	if s.VerifyContext(ctx.ID, "drifted") {
		t.Error("drifted hash should not verify")
	}
	if s.VerifyContext("missing", ctx.ContextHash) {
		t.Error("unknown task should not verify")
	}
}

func TestRehydrateFromDurableLayer(t *testing.T) {
	dir := t.TempDir()
	bus := event.NewBus()
	fileStore := persist.NewFileStore(dir)

	first := New(bus, fileStore, logging.NopLogger())
	ctx, err := first.CreateTaskContext("Build X", "")
	if err != nil {
		t.Fatalf("CreateTaskContext: %v", err)
	}
	if _, err := first.Assert("agent-a", ctx.ID, "progress"); err != nil {
		t.Fatalf("Assert: %v", err)
	}

	// A fresh store over the same durable layer simulates a new process.
	second := New(event.NewBus(), fileStore, logging.NopLogger())
	got, err := second.GetTaskContext(ctx.ID)
	if err != nil {
		t.Fatalf("GetTaskContext after rehydrate: %v", err)
	}
	if got.OriginalRequest != "Build X" {
		t.Errorf("OriginalRequest = %q", got.OriginalRequest)
	}
	if len(got.Messages) != 1 || got.Messages[0].Type != task.MessageAssert {
		t.Errorf("message log not rehydrated: %+v", got.Messages)
	}
}

func TestMutateAfterRestartReadsThrough(t *testing.T) {
	dir := t.TempDir()
	fileStore := persist.NewFileStore(dir)

	first := New(event.NewBus(), fileStore, logging.NopLogger())
	ctx, err := first.CreateTaskContext("Build X", "")
	if err != nil {
		t.Fatalf("CreateTaskContext: %v", err)
	}

	// A fresh store over the same durable layer must accept operations on
	// the persisted task directly, with no GetTaskContext warming the index.
	second := New(event.NewBus(), fileStore, logging.NopLogger())
	if _, err := second.Assert("agent-a", ctx.ID, "picked up after restart"); err != nil {
		t.Fatalf("Assert after restart: %v", err)
	}
	if !second.VerifyContext(ctx.ID, ctx.ContextHash) {
		t.Error("hash should verify after restart")
	}

	// The same holds for sibling processes sharing the data dir: child
	// registration and status changes read through too.
	third := New(event.NewBus(), fileStore, logging.NopLogger())
	if _, err := third.CreateTaskContext("child work", ctx.ID); err != nil {
		t.Fatalf("CreateTaskContext under persisted parent: %v", err)
	}

	fourth := New(event.NewBus(), fileStore, logging.NopLogger())
	if err := fourth.UpdateTaskStatus(ctx.ID, task.StatusBlocked); err != nil {
		t.Fatalf("UpdateTaskStatus after restart: %v", err)
	}

	got, err := fourth.GetTaskContext(ctx.ID)
	if err != nil {
		t.Fatalf("GetTaskContext: %v", err)
	}
	if got.Status != task.StatusBlocked {
		t.Errorf("status = %s, want blocked", got.Status)
	}
	if len(got.Messages) != 1 || got.Messages[0].Type != task.MessageAssert {
		t.Errorf("message log lost across processes: %+v", got.Messages)
	}
	if len(got.ChildIDs) != 1 {
		t.Errorf("child registration lost: %v", got.ChildIDs)
	}
}

func TestArchiveEvictsOnlyOldTerminalContexts(t *testing.T) {
	s, _ := newMemoryStore(t)

	done, err := s.CreateTaskContext("finished work", "")
	if err != nil {
		t.Fatalf("CreateTaskContext: %v", err)
	}
	if _, err := s.Complete("agent-a", done.ID, "result"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	live, err := s.CreateTaskContext("ongoing work", "")
	if err != nil {
		t.Fatalf("CreateTaskContext: %v", err)
	}

	// Not old enough yet.
	if n := s.Archive(); n != 0 {
		t.Errorf("Archive evicted %d contexts before the age cutoff", n)
	}

	s.mu.Lock()
	s.contexts[done.ID].UpdatedAt = time.Now().Add(-48 * time.Hour)
	s.contexts[live.ID].UpdatedAt = time.Now().Add(-48 * time.Hour)
	s.mu.Unlock()

	if n := s.Archive(); n != 1 {
		t.Errorf("Archive = %d, want 1 (only the terminal context)", n)
	}

	// Archived context is still readable through the rehydration cache.
	got, err := s.GetTaskContext(done.ID)
	if err != nil {
		t.Fatalf("GetTaskContext after archive: %v", err)
	}
	if got.Status != task.StatusCompleted {
		t.Errorf("status = %s", got.Status)
	}
}

func TestDurableDegradationDoesNotFailOps(t *testing.T) {
	// A FileStore rooted at an unwritable path makes every durable write
	// fail; operations must still succeed in memory.
	bus := event.NewBus()
	s := New(bus, persist.NewFileStore("/proc/quorum-nonexistent"), logging.NopLogger())

	ctx, err := s.CreateTaskContext("Build X", "")
	if err != nil {
		t.Fatalf("CreateTaskContext should degrade, got %v", err)
	}
	if _, err := s.Assert("agent-a", ctx.ID, "still works"); err != nil {
		t.Fatalf("Assert should degrade, got %v", err)
	}

	got, err := s.GetTaskContext(ctx.ID)
	if err != nil {
		t.Fatalf("GetTaskContext: %v", err)
	}
	if len(got.Messages) != 1 {
		t.Errorf("in-memory log lost: %+v", got.Messages)
	}
}
