package intern

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"quorum/internal/errors"
	"quorum/internal/event"
	"quorum/internal/llm"
	"quorum/internal/logging"
)

// Config controls the pool's admission, retry, and eviction behavior.
type Config struct {
	// MaxConcurrent bounds how many interns work simultaneously.
	MaxConcurrent int

	// MaxRetries bounds generation attempts per intern. Only transient
	// errors are retried.
	MaxRetries int

	// RetryBaseDelay is the first backoff delay; it doubles per attempt.
	RetryBaseDelay time.Duration

	// GracePeriod is how long finished intern records stay inspectable
	// before eviction.
	GracePeriod time.Duration
}

// DefaultConfig returns the standard pool configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:  5,
		MaxRetries:     3,
		RetryBaseDelay: 500 * time.Millisecond,
		GracePeriod:    2 * time.Minute,
	}
}

// Pool spawns ephemeral workers with bounded parallelism.
type Pool struct {
	mu      sync.Mutex
	active  int
	waiters []chan struct{}
	interns map[string]*Intern

	limit  int
	cfg    Config
	gen    llm.Generator
	bus    *event.Bus
	logger *logging.Logger
}

// NewPool creates a worker pool running generations on gen.
func NewPool(gen llm.Generator, bus *event.Bus, logger *logging.Logger, cfg Config) *Pool {
	if logger == nil {
		logger = logging.NopLogger()
	}
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = def.RetryBaseDelay
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = def.GracePeriod
	}
	return &Pool{
		interns: make(map[string]*Intern),
		limit:   cfg.MaxConcurrent,
		cfg:     cfg,
		gen:     gen,
		bus:     bus,
		logger:  logger.WithComponent("intern"),
	}
}

// AcquireSlot grants a pool slot, blocking in FIFO order when the pool is
// full. It returns early if ctx is canceled while waiting.
func (p *Pool) AcquireSlot(ctx context.Context) error {
	p.mu.Lock()
	if p.active < p.limit {
		p.active++
		p.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		p.mu.Lock()
		for i, w := range p.waiters {
			if w == ch {
				p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
				p.mu.Unlock()
				return errors.Join(errors.ErrCanceled, ctx.Err())
			}
		}
		// The slot was granted between cancellation and cleanup; hand
		// it to the next waiter.
		p.releaseLocked()
		p.mu.Unlock()
		return errors.Join(errors.ErrCanceled, ctx.Err())
	}
}

// ReleaseSlot frees a slot, immediately promoting the oldest waiter.
func (p *Pool) ReleaseSlot() {
	p.mu.Lock()
	p.releaseLocked()
	p.mu.Unlock()
}

func (p *Pool) releaseLocked() {
	if len(p.waiters) > 0 {
		ch := p.waiters[0]
		p.waiters = p.waiters[1:]
		close(ch) // slot transfers, active count unchanged
		return
	}
	if p.active > 0 {
		p.active--
	}
}

// SpawnOptions tune a single spawn.
type SpawnOptions struct {
	ManagerID string
	Model     string // overrides the profile's tier
	MaxTokens int
}

// Spawn runs one typed worker to completion: resolve the profile, wait for
// a slot, generate with retry, and return the costed deliverable. On
// failure after retries an intern.failed event is published and the error
// is returned.
func (p *Pool) Spawn(ctx context.Context, internType, taskDesc string, opts SpawnOptions) (*Deliverable, error) {
	profile, err := ResolveProfile(internType)
	if err != nil {
		return nil, err
	}
	if taskDesc == "" {
		return nil, errors.NewValidationError("task description is required").WithField("task")
	}

	rec := &Intern{
		ID:        GenerateInternID(),
		Type:      internType,
		Task:      taskDesc,
		ManagerID: opts.ManagerID,
		Status:    StatusWaiting,
		StartTime: time.Now(),
	}
	p.mu.Lock()
	p.interns[rec.ID] = rec
	p.mu.Unlock()

	if err := p.AcquireSlot(ctx); err != nil {
		p.finish(rec.ID, StatusFailed, nil, err)
		return nil, err
	}
	defer p.ReleaseSlot()

	p.setStatus(rec.ID, StatusWorking)
	p.bus.Publish(event.NewInternSpawnedEvent(rec.ID, internType, opts.ManagerID, taskDesc))

	start := time.Now()
	result, err := p.generateWithRetry(ctx, profile, taskDesc, opts)
	if err != nil {
		p.finish(rec.ID, StatusFailed, nil, err)
		p.logger.Error("intern failed", "intern_id", rec.ID, "type", internType, "error", err)
		p.bus.Publish(event.NewInternFailedEvent(rec.ID, internType, err.Error()))
		return nil, err
	}

	d := &Deliverable{
		ID:       rec.ID,
		Type:     profile.DeliverableType,
		Content:  result.Content,
		Usage:    result.Usage,
		Cost:     CostFor(result.Model, result.Usage),
		Duration: time.Since(start),
	}
	p.finish(rec.ID, StatusComplete, d, nil)
	p.logger.Info("intern completed",
		"intern_id", rec.ID, "type", internType, "cost", d.Cost, "duration", d.Duration)
	p.bus.Publish(event.NewInternCompletedEvent(rec.ID, internType, d.Cost, d.Duration))
	return d, nil
}

// generateWithRetry attempts the generation up to MaxRetries times,
// doubling the delay between attempts. Only transient errors are retried.
func (p *Pool) generateWithRetry(ctx context.Context, profile Profile, taskDesc string, opts SpawnOptions) (llm.Result, error) {
	genOpts := llm.Options{
		Tier:      profile.Tier,
		Model:     opts.Model,
		MaxTokens: opts.MaxTokens,
	}

	delay := p.cfg.RetryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxRetries; attempt++ {
		result, err := p.gen.Generate(ctx, profile.RolePrompt, taskDesc, genOpts)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !errors.IsRetryable(err) || attempt == p.cfg.MaxRetries {
			break
		}

		p.logger.Warn("transient generation failure, backing off",
			"attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return llm.Result{}, errors.Join(errors.ErrCanceled, ctx.Err())
		}
		delay *= 2
	}
	return llm.Result{}, lastErr
}

// TeamTask is one entry in a SpawnTeam batch.
type TeamTask struct {
	Type string
	Task string
	Opts SpawnOptions
}

// TeamResult is the independent settlement of one team member.
type TeamResult struct {
	Deliverable *Deliverable
	Err         error
}

// SpawnTeam fans out a batch of spawns concurrently. Each spawn is still
// gated by the shared slot limiter, and one member's failure never cancels
// its siblings.
func (p *Pool) SpawnTeam(ctx context.Context, tasks []TeamTask) []TeamResult {
	results := make([]TeamResult, len(tasks))
	var wg conc.WaitGroup
	for i, tt := range tasks {
		wg.Go(func() {
			d, err := p.Spawn(ctx, tt.Type, tt.Task, tt.Opts)
			results[i] = TeamResult{Deliverable: d, Err: err}
		})
	}
	wg.Wait()
	return results
}

// Get returns a copy of an intern's execution record.
func (p *Pool) Get(internID string) (Intern, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.interns[internID]
	if !ok {
		return Intern{}, errors.NewNotFoundError("intern", internID)
	}
	return *rec, nil
}

// Counts returns how many tracked interns are in each status.
func (p *Pool) Counts() map[Status]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[Status]int, 4)
	for _, rec := range p.interns {
		out[rec.Status]++
	}
	return out
}

func (p *Pool) setStatus(internID string, s Status) {
	p.mu.Lock()
	if rec, ok := p.interns[internID]; ok {
		rec.Status = s
	}
	p.mu.Unlock()
}

// finish records an intern's terminal state and schedules eviction after
// the grace period.
func (p *Pool) finish(internID string, s Status, d *Deliverable, err error) {
	p.mu.Lock()
	if rec, ok := p.interns[internID]; ok {
		rec.Status = s
		rec.Deliverable = d
		if d != nil {
			rec.Cost = d.Cost
		}
		if err != nil {
			rec.Err = err.Error()
		}
	}
	p.mu.Unlock()

	time.AfterFunc(p.cfg.GracePeriod, func() {
		p.mu.Lock()
		delete(p.interns, internID)
		p.mu.Unlock()
	})
}
