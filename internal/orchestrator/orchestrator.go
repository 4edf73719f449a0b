package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"quorum/internal/event"
	"quorum/internal/intern"
	"quorum/internal/llm"
	"quorum/internal/logging"
	"quorum/internal/notify"
	"quorum/internal/store"
	"quorum/internal/task"
)

// RouteStatus tracks a task through the orchestrator's pending index.
type RouteStatus string

const (
	RouteRouting    RouteStatus = "routing"
	RouteInProgress RouteStatus = "in_progress"
	RouteBlocked    RouteStatus = "blocked"
	RouteComplete   RouteStatus = "complete"
)

type pendingTask struct {
	TaskID        string
	Status        RouteStatus
	AssignedAgent string
	CreatedAt     time.Time
}

// Config tunes the orchestrator's default policies.
type Config struct {
	// AutoComplete completes a task when a dispatched agent's reply
	// carries no marker, so an unmarked reply cannot hang the task.
	AutoComplete bool

	// HelperType is the intern profile used for SPAWN_HELPER requests
	// that do not name one, and for progress escalations.
	HelperType string
}

// DefaultConfig returns the standard orchestrator policies.
func DefaultConfig() Config {
	return Config{AutoComplete: true, HelperType: "researcher"}
}

// Orchestrator routes dispatch and handoff traffic to agents, escalates
// blockers, and aggregates child results into parent tasks.
type Orchestrator struct {
	mu      sync.Mutex
	pending map[string]*pendingTask

	store    *store.Store
	bus      *event.Bus
	gen      llm.Generator
	pool     *intern.Pool
	notifier notify.Notifier
	logger   *logging.Logger
	cfg      Config

	wg sync.WaitGroup
}

// New creates an orchestrator and subscribes it to the bus. Subscriptions
// are registered at construction; there is no separate start step.
func New(st *store.Store, bus *event.Bus, gen llm.Generator, pool *intern.Pool, notifier notify.Notifier, logger *logging.Logger, cfg Config) *Orchestrator {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	if cfg.HelperType == "" {
		cfg.HelperType = DefaultConfig().HelperType
	}
	o := &Orchestrator{
		pending:  make(map[string]*pendingTask),
		store:    st,
		bus:      bus,
		gen:      gen,
		pool:     pool,
		notifier: notifier,
		logger:   logger.WithComponent("orchestrator"),
		cfg:      cfg,
	}

	bus.Subscribe(event.TypeTaskCreated, o.onTaskCreated)
	bus.Subscribe(event.MessageEventType(task.MessageDispatch), o.onDispatch)
	bus.Subscribe(event.MessageEventType(task.MessageHandoff), o.onHandoff)
	bus.Subscribe(event.MessageEventType(task.MessageBlocker), o.onBlocker)
	bus.Subscribe(event.MessageEventType(task.MessageSpawnHelper), o.onSpawnHelper)
	bus.Subscribe(event.TypeChildrenComplete, o.onChildrenComplete)
	return o
}

// Wait blocks until all in-flight asynchronous work finishes.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Route returns the pending index entry for a task.
func (o *Orchestrator) Route(taskID string) (RouteStatus, string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.pending[taskID]
	if !ok {
		return "", "", false
	}
	return p.Status, p.AssignedAgent, true
}

func (o *Orchestrator) onTaskCreated(ev event.Event) {
	e := ev.(event.TaskCreatedEvent)
	o.mu.Lock()
	o.pending[e.TaskID] = &pendingTask{
		TaskID:    e.TaskID,
		Status:    RouteRouting,
		CreatedAt: time.Now(),
	}
	o.mu.Unlock()
}

func (o *Orchestrator) onDispatch(ev event.Event) {
	msg := ev.(event.TypedMessageEvent).Msg
	body, ok := msg.Body.(task.DispatchBody)
	if !ok {
		return
	}
	o.setRoute(msg.TaskID, RouteInProgress, body.AgentID)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runAgent(body.AgentID, msg.TaskID, body.Instructions)
	}()
}

func (o *Orchestrator) onHandoff(ev event.Event) {
	msg := ev.(event.TypedMessageEvent).Msg
	body, ok := msg.Body.(task.HandoffBody)
	if !ok {
		return
	}
	o.setRoute(msg.TaskID, RouteInProgress, body.ToAgent)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runAgent(body.ToAgent, msg.TaskID, body.Instructions)
	}()
}

func (o *Orchestrator) onBlocker(ev event.Event) {
	msg := ev.(event.TypedMessageEvent).Msg
	body, _ := msg.Body.(task.BlockerBody)

	o.setRoute(msg.TaskID, RouteBlocked, msg.AgentID)
	if err := o.store.UpdateTaskStatus(msg.TaskID, task.StatusBlocked); err != nil {
		o.logger.Warn("failed to mark task blocked", "task_id", msg.TaskID, "error", err)
	}

	text := fmt.Sprintf("task %s blocked by %s: %s", msg.TaskID, msg.AgentID, body.Reason)
	if err := o.notifier.Notify(context.Background(), text); err != nil {
		o.logger.Warn("escalation delivery failed", "task_id", msg.TaskID, "error", err)
	}
}

func (o *Orchestrator) onSpawnHelper(ev event.Event) {
	if o.pool == nil {
		return
	}
	msg := ev.(event.TypedMessageEvent).Msg
	body, ok := msg.Body.(task.SpawnHelperBody)
	if !ok {
		return
	}
	helperType := body.HelperType
	if helperType == "" {
		helperType = o.cfg.HelperType
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		d, err := o.pool.Spawn(context.Background(), helperType, body.Task, intern.SpawnOptions{ManagerID: msg.AgentID})
		if err != nil {
			if _, berr := o.store.Blocker(helperType, msg.TaskID, "helper failed: "+err.Error()); berr != nil {
				o.logger.Warn("failed to report helper failure", "task_id", msg.TaskID, "error", berr)
			}
			return
		}
		if _, aerr := o.store.Assert(d.ID, msg.TaskID, d.Content); aerr != nil {
			o.logger.Warn("failed to post helper deliverable", "task_id", msg.TaskID, "error", aerr)
		}
	}()
}

// onChildrenComplete compiles a parent task's collected deliverables into a
// single aggregate completion. The store guarantees this fires exactly once
// per parent.
func (o *Orchestrator) onChildrenComplete(ev event.Event) {
	e := ev.(event.ChildrenCompleteEvent)

	var b strings.Builder
	for i, d := range e.Deliverables {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s by %s]\n%s", d.TaskID, d.AgentID, d.Content)
	}

	if _, err := o.store.Complete("orchestrator", e.TaskID, b.String()); err != nil {
		o.logger.Error("failed to aggregate children", "task_id", e.TaskID, "error", err)
		return
	}
	o.setRoute(e.TaskID, RouteComplete, "orchestrator")
}

// runAgent invokes the generation capability for an agent and interprets
// the reply. Panics and errors degrade to a BLOCKER publication.
func (o *Orchestrator) runAgent(agentID, taskID, instructions string) {
	defer func() {
		if r := recover(); r != nil {
			o.publishBlocker(agentID, taskID, fmt.Sprintf("agent panicked: %v", r))
		}
	}()

	ctx, err := o.store.GetTaskContext(taskID)
	if err != nil {
		o.logger.Warn("dispatch for unknown task", "task_id", taskID, "error", err)
		return
	}

	role := fmt.Sprintf("You are agent %q collaborating on a task. Original request: %s", agentID, ctx.OriginalRequest)
	result, err := o.gen.Generate(context.Background(), role, instructions, llm.Options{})
	if err != nil {
		o.publishBlocker(agentID, taskID, err.Error())
		return
	}

	r := parseReply(result.Content)
	switch r.kind {
	case replyComplete:
		if _, err := o.store.Complete(agentID, taskID, r.deliverable); err != nil {
			o.logger.Error("failed to complete task", "task_id", taskID, "error", err)
			return
		}
		o.setRoute(taskID, RouteComplete, agentID)

	case replyQuery:
		if _, err := o.store.Query(agentID, taskID, r.target, r.question); err != nil {
			o.logger.Error("failed to post query", "task_id", taskID, "error", err)
		}

	default:
		if _, err := o.store.Assert(agentID, taskID, r.deliverable); err != nil {
			o.logger.Error("failed to post assertion", "task_id", taskID, "error", err)
			return
		}
		// Default policy: an unmarked reply must not hang the task.
		if o.cfg.AutoComplete {
			if _, err := o.store.Complete(agentID, taskID, r.deliverable); err != nil {
				o.logger.Error("failed to auto-complete task", "task_id", taskID, "error", err)
				return
			}
			o.setRoute(taskID, RouteComplete, agentID)
		}
	}
}

func (o *Orchestrator) publishBlocker(agentID, taskID, reason string) {
	if _, err := o.store.Blocker(agentID, taskID, reason); err != nil {
		o.logger.Error("failed to publish blocker", "task_id", taskID, "error", err)
	}
}

// MonitorTaskProgress arms a one-shot timer at estimate x multiplier. If
// the task is still active when it fires, a SPAWN_HELPER message escalates
// so a second worker can be brought in; the original worker is never
// killed.
func (o *Orchestrator) MonitorTaskProgress(agentID, taskID string, estimate time.Duration, multiplier float64) *time.Timer {
	if multiplier <= 0 {
		multiplier = 1
	}
	threshold := time.Duration(float64(estimate) * multiplier)
	return time.AfterFunc(threshold, func() {
		ctx, err := o.store.GetTaskContext(taskID)
		if err != nil || ctx.Status != task.StatusActive {
			return
		}
		o.logger.Warn("task overdue, requesting helper",
			"task_id", taskID, "agent_id", agentID, "threshold", threshold)
		desc := fmt.Sprintf("assist %s with: %s", agentID, ctx.OriginalRequest)
		if _, err := o.store.SpawnHelper(agentID, taskID, o.cfg.HelperType, desc); err != nil {
			o.logger.Warn("failed to request helper", "task_id", taskID, "error", err)
		}
	})
}

func (o *Orchestrator) setRoute(taskID string, status RouteStatus, agent string) {
	o.mu.Lock()
	p, ok := o.pending[taskID]
	if !ok {
		p = &pendingTask{TaskID: taskID, CreatedAt: time.Now()}
		o.pending[taskID] = p
	}
	p.Status = status
	p.AssignedAgent = agent
	o.mu.Unlock()
}
