package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"quorum/internal/consensus"
	"quorum/internal/event"
	"quorum/internal/intern"
	"quorum/internal/llm"
	"quorum/internal/logging"
	"quorum/internal/notify"
	"quorum/internal/orchestrator"
	"quorum/internal/persist"
	"quorum/internal/store"
)

// Config holds required dependencies for creating a Hub.
type Config struct {
	// DataDir is the directory for durable task context and message logs.
	// If empty, the hub runs memory-only.
	DataDir string

	// LLM configures the model endpoint used to build the default
	// generator. Ignored when WithGenerator supplies one.
	LLM llm.Config

	// WebhookURL, when set, routes blocker escalations to an HTTP
	// endpoint instead of the log.
	WebhookURL string

	// Logger is the root logger. If nil, logging is disabled.
	Logger *logging.Logger
}

// Hub wires all coordination components together for a single domain.
// It owns the archival sweeper lifecycle.
type Hub struct {
	mu      sync.RWMutex
	started bool
	cancel  context.CancelFunc

	// sweepDone is closed when the archival sweeper goroutine exits.
	sweepDone chan struct{}

	// Components
	bus      *event.Bus
	store    *store.Store
	engine   *consensus.Engine
	pool     *intern.Pool
	orch     *orchestrator.Orchestrator
	notifier notify.Notifier
	logger   *logging.Logger

	consensusDefaults consensus.Config
	stallMultiplier   float64
	sweepInterval     time.Duration
}

// New creates a Hub that wires all coordination components together.
func New(cfg Config, opts ...Option) (*Hub, error) {
	hc := &hubConfig{
		sweepInterval:   time.Hour,
		stallMultiplier: 1.5,
	}
	for _, opt := range opts {
		opt(hc)
	}

	gen := hc.generator
	if gen == nil {
		if cfg.LLM.BaseURL == "" {
			return nil, errors.New("hub: LLM.BaseURL or WithGenerator is required")
		}
		gen = llm.NewClient(cfg.LLM, cfg.Logger)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	var durable persist.Store = persist.NewNopStore()
	if cfg.DataDir != "" {
		durable = persist.NewFileStore(cfg.DataDir)
	}

	// Build store options from hub config.
	var storeOpts []store.Option
	if hc.archiveAge > 0 {
		storeOpts = append(storeOpts, store.WithArchiveAge(hc.archiveAge))
	}
	if hc.rehydrateCacheSize > 0 {
		storeOpts = append(storeOpts, store.WithRehydrateCacheSize(hc.rehydrateCacheSize))
	}

	notifier := hc.notifier
	if notifier == nil {
		if cfg.WebhookURL != "" {
			notifier = notify.NewWebhookNotifier(cfg.WebhookURL)
		} else {
			notifier = notify.NewLogNotifier(logger)
		}
	}

	bus := event.NewBus()
	st := store.New(bus, durable, logger, storeOpts...)
	engine := consensus.NewEngine(bus, logger)
	pool := intern.NewPool(gen, bus, logger, hc.poolConfig)
	orch := orchestrator.New(st, bus, gen, pool, notifier, logger, hc.orchConfig)

	return &Hub{
		bus:               bus,
		store:             st,
		engine:            engine,
		pool:              pool,
		orch:              orch,
		notifier:          notifier,
		logger:            logger.WithComponent("hub"),
		consensusDefaults: hc.consensusDefaults,
		stallMultiplier:   hc.stallMultiplier,
		sweepInterval:     hc.sweepInterval,
	}, nil
}

// Bus returns the event bus shared by all components.
func (h *Hub) Bus() *event.Bus { return h.bus }

// Store returns the task context store.
func (h *Hub) Store() *store.Store { return h.store }

// Consensus returns the consensus engine.
func (h *Hub) Consensus() *consensus.Engine { return h.engine }

// Pool returns the intern worker pool.
func (h *Hub) Pool() *intern.Pool { return h.pool }

// Orchestrator returns the event-reactive orchestrator.
func (h *Hub) Orchestrator() *orchestrator.Orchestrator { return h.orch }

// NewSession creates a consensus session for a task using the hub's
// configured session defaults.
func (h *Hub) NewSession(taskID string, agents []string, prompt string) (*consensus.Session, error) {
	return h.engine.CreateSession(taskID, agents, prompt, h.consensusDefaults)
}

// MonitorTask schedules a stall check for an active task using the hub's
// configured stall multiplier. The returned timer may be stopped if the
// caller no longer needs the check.
func (h *Hub) MonitorTask(agentID, taskID string, estimate time.Duration) *time.Timer {
	return h.orch.MonitorTaskProgress(agentID, taskID, estimate, h.stallMultiplier)
}

// Start begins the archival sweeper.
// Returns an error if the hub is already started.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return errors.New("hub: already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.started = true
	h.sweepDone = make(chan struct{})

	go func() {
		defer close(h.sweepDone)
		h.sweep(ctx)
	}()

	return nil
}

// sweep evicts aged terminal contexts from the hot index on a fixed
// interval until the context is canceled.
func (h *Hub) sweep(ctx context.Context) {
	ticker := time.NewTicker(h.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := h.store.Archive(); n > 0 {
				h.logger.Info("archived terminal contexts", "count", n)
			}
		}
	}
}

// Stop stops the sweeper and waits for in-flight orchestrator work to
// settle. It is idempotent.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return nil
	}

	// Cancel context to unblock the sweeper goroutine.
	h.cancel()
	<-h.sweepDone

	// Let dispatched agents finish before tearing down.
	h.orch.Wait()

	h.started = false
	return nil
}

// Running returns whether the hub is currently started.
func (h *Hub) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.started
}
