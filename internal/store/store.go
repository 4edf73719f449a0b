package store

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"quorum/internal/errors"
	"quorum/internal/event"
	"quorum/internal/logging"
	"quorum/internal/persist"
	"quorum/internal/task"
)

const (
	// defaultRehydrateCacheSize bounds the in-memory cache of contexts read
	// back from the durable layer after archival.
	defaultRehydrateCacheSize = 256

	// defaultArchiveAge is how long a terminal context stays in the hot
	// index before Archive may evict it.
	defaultArchiveAge = 24 * time.Hour
)

// Store is the task context store. It is safe for concurrent use.
type Store struct {
	mu         sync.Mutex
	contexts   map[string]*task.Context // hot index of live contexts
	rehydrated *lru.Cache[string, *task.Context]
	group      singleflight.Group

	bus        *event.Bus
	durable    persist.Store
	logger     *logging.Logger
	archiveAge time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithArchiveAge sets how long a terminal context stays in the hot index
// before Archive may evict it. Zero or negative values are ignored.
func WithArchiveAge(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.archiveAge = d
		}
	}
}

// WithRehydrateCacheSize sets the capacity of the rehydration cache.
func WithRehydrateCacheSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			cache, err := lru.New[string, *task.Context](n)
			if err == nil {
				s.rehydrated = cache
			}
		}
	}
}

// New creates a Store publishing on the given bus and writing through to the
// given durable layer. Pass a persist.NopStore for memory-only operation.
func New(bus *event.Bus, durable persist.Store, logger *logging.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = logging.NopLogger()
	}
	cache, _ := lru.New[string, *task.Context](defaultRehydrateCacheSize)
	s := &Store{
		contexts:   make(map[string]*task.Context),
		rehydrated: cache,
		bus:        bus,
		durable:    durable,
		logger:     logger.WithComponent("store"),
		archiveAge: defaultArchiveAge,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTaskContext allocates a new task context for the given request,
// registers it with its parent (if any), persists it, and publishes
// task.created.
func (s *Store) CreateTaskContext(originalRequest, parentTaskID string) (*task.Context, error) {
	if originalRequest == "" {
		return nil, errors.NewValidationError("original request is required").WithField("originalRequest")
	}

	id := task.GenerateID()
	now := time.Now()
	ctx := &task.Context{
		ID:              id,
		ContextHash:     task.ContextHash(originalRequest, id),
		OriginalRequest: originalRequest,
		Status:          task.StatusActive,
		ParentID:        parentTaskID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	s.mu.Lock()
	if parentTaskID != "" {
		parent := s.lookupForUpdate(parentTaskID)
		if parent == nil {
			s.mu.Unlock()
			return nil, errors.NewNotFoundError("task", parentTaskID)
		}
		if parent.Status.Terminal() {
			s.mu.Unlock()
			return nil, errors.NewValidationError("parent task is terminal").
				WithField("parentTaskID").WithValue(parentTaskID)
		}
		parent.ChildIDs = append(parent.ChildIDs, id)
		parent.UpdatedAt = now
		s.persistContext(parent)
	}
	s.contexts[id] = ctx
	s.persistContext(ctx)
	s.persistActive(id)
	snapshot := cloneContext(ctx)
	s.mu.Unlock()

	s.logger.Info("task context created", "task_id", id, "parent_id", parentTaskID)
	s.bus.Publish(event.NewTaskCreatedEvent(id, parentTaskID, originalRequest, ctx.ContextHash))
	return snapshot, nil
}

// GetTaskContext returns a copy of the task context, rehydrating from the
// durable layer when the hot index misses. Returns a not-found error only
// when neither layer has the task.
func (s *Store) GetTaskContext(taskID string) (*task.Context, error) {
	s.mu.Lock()
	if ctx, ok := s.contexts[taskID]; ok {
		snapshot := cloneContext(ctx)
		s.mu.Unlock()
		return snapshot, nil
	}
	if ctx, ok := s.rehydrated.Get(taskID); ok {
		snapshot := cloneContext(ctx)
		s.mu.Unlock()
		return snapshot, nil
	}
	s.mu.Unlock()

	// Collapse concurrent rehydrations of the same task into one durable read.
	v, err, _ := s.group.Do(taskID, func() (any, error) {
		return s.rehydrate(taskID)
	})
	if err != nil {
		return nil, err
	}
	return cloneContext(v.(*task.Context)), nil
}

// rehydrate loads a context record and its message log from the durable
// layer and repopulates the in-memory layer: live contexts go back into the
// hot index, terminal (archived) ones into the bounded rehydration cache.
func (s *Store) rehydrate(taskID string) (*task.Context, error) {
	ctx, err := s.durable.LoadContext(taskID)
	if err != nil {
		s.logger.Warn("durable layer read failed", "task_id", taskID, "error", err)
		return nil, errors.NewNotFoundError("task", taskID).WithCause(err)
	}
	if ctx == nil {
		return nil, errors.NewNotFoundError("task", taskID)
	}

	msgs, err := s.durable.LoadMessages(taskID)
	if err != nil {
		s.logger.Warn("durable message log read failed", "task_id", taskID, "error", err)
	}
	ctx.Messages = msgs

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another caller may have repopulated the index while we were reading.
	if existing, ok := s.contexts[taskID]; ok {
		return existing, nil
	}
	if ctx.Status.Terminal() {
		s.rehydrated.Add(taskID, ctx)
	} else {
		s.contexts[taskID] = ctx
	}
	s.logger.Debug("task context rehydrated", "task_id", taskID, "status", string(ctx.Status))
	return ctx, nil
}

// UpdateTaskStatus mutates the task's status, persists it, moves the id
// between the durable active and completed sets, and publishes
// task.status_changed.
func (s *Store) UpdateTaskStatus(taskID string, status task.Status) error {
	s.mu.Lock()
	ctx := s.lookupForUpdate(taskID)
	if ctx == nil {
		s.mu.Unlock()
		return errors.NewNotFoundError("task", taskID)
	}
	old := ctx.Status
	ctx.Status = status
	ctx.UpdatedAt = time.Now()
	s.persistContext(ctx)
	if status.Terminal() {
		s.persistCompleted(taskID)
	} else {
		s.persistActive(taskID)
	}
	s.mu.Unlock()

	s.logger.Info("task status changed", "task_id", taskID, "old", string(old), "new", string(status))
	s.bus.Publish(event.NewTaskStatusChangedEvent(taskID, old, status))
	return nil
}

// VerifyContext reports whether the provided hash matches the task's stored
// context hash. Messages whose sender's view of the task has drifted should
// be rejected by the caller.
func (s *Store) VerifyContext(taskID, providedHash string) bool {
	s.mu.Lock()
	ctx := s.lookupForUpdate(taskID)
	ok := ctx != nil && ctx.ContextHash == providedHash
	s.mu.Unlock()
	return ok
}

// Archive evicts terminal contexts older than the configured archive age
// from the hot index. The durable layer retains them; reads rehydrate
// through the LRU cache. Returns the number of contexts archived.
func (s *Store) Archive() int {
	cutoff := time.Now().Add(-s.archiveAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	archived := 0
	for id, ctx := range s.contexts {
		if ctx.Status.Terminal() && ctx.UpdatedAt.Before(cutoff) {
			s.rehydrated.Add(id, ctx)
			delete(s.contexts, id)
			archived++
		}
	}
	if archived > 0 {
		s.logger.Info("archived terminal contexts", "count", archived)
	}
	return archived
}

// ActiveCount returns the number of live contexts in the hot index.
func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ctx := range s.contexts {
		if ctx.Status == task.StatusActive {
			n++
		}
	}
	return n
}

// lookupForUpdate finds a context for mutation, reading through to the
// durable layer when both in-memory layers miss. A sibling process sharing
// the data dir (or a restart) must not require a prior GetTaskContext before
// operations succeed. The caller must hold s.mu on entry; the lock may be
// dropped and re-acquired around the durable read, and is held on return.
func (s *Store) lookupForUpdate(taskID string) *task.Context {
	if ctx := s.lookupLocked(taskID); ctx != nil {
		return ctx
	}
	s.mu.Unlock()
	_, _, _ = s.group.Do(taskID, func() (any, error) {
		return s.rehydrate(taskID)
	})
	s.mu.Lock()
	return s.lookupLocked(taskID)
}

// lookupLocked finds a context in memory: hot index first, then the
// rehydration cache (promoting the context back into the index, since
// mutation implies the task is live again). The caller must hold s.mu.
func (s *Store) lookupLocked(taskID string) *task.Context {
	if ctx, ok := s.contexts[taskID]; ok {
		return ctx
	}
	if ctx, ok := s.rehydrated.Get(taskID); ok {
		s.rehydrated.Remove(taskID)
		s.contexts[taskID] = ctx
		return ctx
	}
	return nil
}

// persistContext writes the context record through to the durable layer.
// Failures are logged and swallowed: the store degrades to memory-only
// rather than blocking the operation. The caller must hold s.mu.
func (s *Store) persistContext(ctx *task.Context) {
	if err := s.durable.SaveContext(ctx); err != nil {
		s.logger.Warn("durable context write failed; continuing memory-only",
			"task_id", ctx.ID, "error", err)
	}
}

func (s *Store) persistMessage(taskID string, msg task.Message) {
	if err := s.durable.AppendMessage(taskID, msg); err != nil {
		s.logger.Warn("durable message append failed; continuing memory-only",
			"task_id", taskID, "error", err)
	}
}

func (s *Store) persistActive(taskID string) {
	if err := s.durable.MarkActive(taskID); err != nil {
		s.logger.Warn("durable active set update failed", "task_id", taskID, "error", err)
	}
}

func (s *Store) persistCompleted(taskID string) {
	if err := s.durable.MarkCompleted(taskID); err != nil {
		s.logger.Warn("durable completed set update failed", "task_id", taskID, "error", err)
	}
}

// cloneContext returns a deep copy so callers can never mutate canonical
// state behind the store's back.
func cloneContext(ctx *task.Context) *task.Context {
	if ctx == nil {
		return nil
	}
	out := *ctx
	out.Messages = make([]task.Message, len(ctx.Messages))
	copy(out.Messages, ctx.Messages)
	out.ChildIDs = append([]string(nil), ctx.ChildIDs...)
	out.Deliverables = append([]task.Deliverable(nil), ctx.Deliverables...)
	return &out
}
