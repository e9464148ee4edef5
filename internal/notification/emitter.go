package notification

import (
	"context"
	"math/rand"
	"sync"
	"time"

	logx "greenguard/pkg/logx"
)

// EmitterConfig controls the background tip/alert emitter.
// Zero fields take the documented defaults.
type EmitterConfig struct {
	Enabled        bool
	InitialDelay   time.Duration // default 30s
	MinInterval    time.Duration // default 2m
	MaxInterval    time.Duration // default 3m
	UnreadSuppress int           // default 12; emission skipped above this many unread
}

func (c EmitterConfig) withDefaults() EmitterConfig {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 30 * time.Second
	}
	if c.MinInterval <= 0 {
		c.MinInterval = 2 * time.Minute
	}
	if c.MaxInterval < c.MinInterval {
		c.MaxInterval = c.MinInterval + time.Minute
	}
	if c.UnreadSuppress <= 0 {
		c.UnreadSuppress = 12
	}
	return c
}

// Emitter periodically drops a random tip or alert into the store: one
// emission after an initial delay, then repeats at randomized intervals.
// Emission is skipped while too many notifications sit unread.
type Emitter struct {
	mu     sync.Mutex
	cfg    EmitterConfig
	cancel context.CancelFunc
	done   chan struct{}

	store *Store
	log   logx.Logger
	rng   *rand.Rand
}

// EmitterOption customizes an Emitter.
type EmitterOption func(*Emitter)

// WithRand overrides the randomness source. Tests use this.
func WithRand(rng *rand.Rand) EmitterOption {
	return func(e *Emitter) { e.rng = rng }
}

func NewEmitter(cfg EmitterConfig, store *Store, log logx.Logger, opts ...EmitterOption) *Emitter {
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Emitter{
		cfg:   cfg.withDefaults(),
		store: store,
		log:   log,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply updates the emitter configuration. An interval change takes effect
// after the next emission; toggling Enabled requires a Stop/Start cycle,
// which the app layer performs on reload.
func (e *Emitter) Apply(cfg EmitterConfig) {
	e.mu.Lock()
	e.cfg = cfg.withDefaults()
	e.mu.Unlock()
}

// Enabled reports whether the current configuration enables the emitter.
func (e *Emitter) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Enabled
}

// Start launches the emission loop. It is a no-op when the emitter is
// disabled or already running.
func (e *Emitter) Start(ctx context.Context) {
	e.mu.Lock()
	if !e.cfg.Enabled || e.done != nil {
		e.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	done := e.done
	delay := e.cfg.InitialDelay
	e.mu.Unlock()

	go e.run(runCtx, done, delay)
	e.log.Info("emitter started", logx.Duration("initial_delay", delay))
}

// Stop cancels the emission loop and waits for it to exit.
func (e *Emitter) Stop(ctx context.Context) {
	e.mu.Lock()
	cancel := e.cancel
	done := e.done
	e.cancel = nil
	e.done = nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
	e.log.Info("emitter stopped")
}

func (e *Emitter) run(ctx context.Context, done chan struct{}, initial time.Duration) {
	defer close(done)

	t := time.NewTimer(initial)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		e.emit()
		t.Reset(e.nextInterval())
	}
}

// emit draws one catalog item and adds it as an automated notification.
func (e *Emitter) emit() {
	e.mu.Lock()
	suppress := e.cfg.UnreadSuppress
	r := e.rng.Float64()
	e.mu.Unlock()

	if unread := e.store.UnreadCount(); unread > suppress {
		e.log.Debug("emission suppressed", logx.Int("unread", unread))
		return
	}

	cat := pickCategory(catalog, r)

	e.mu.Lock()
	item := cat.Items[e.rng.Intn(len(cat.Items))]
	e.mu.Unlock()

	if _, ok := e.store.Add(Candidate{
		Title:     item.Title,
		Message:   item.Message,
		Kind:      cat.Kind,
		Automated: true,
	}); ok {
		e.log.Debug("automated notification emitted",
			logx.String("category", cat.Name),
			logx.String("title", item.Title))
	}
}

// nextInterval picks a uniform duration in [MinInterval, MaxInterval].
func (e *Emitter) nextInterval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	span := e.cfg.MaxInterval - e.cfg.MinInterval
	if span <= 0 {
		return e.cfg.MinInterval
	}
	return e.cfg.MinInterval + time.Duration(e.rng.Int63n(int64(span)+1))
}
