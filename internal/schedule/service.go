package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "greenguard/pkg/logx"
)

// Config controls the schedule service.
type Config struct {
	Timezone string // IANA TZ, e.g. "Asia/Jakarta"; empty means local time
}

type jobDef struct {
	name    string
	spec    ParsedSpec
	fn      func(ctx context.Context)
	entryID cron.EntryID
}

// Service owns every timer in the process so teardown is a single Stop().
type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   []jobDef

	runCtx    context.Context
	runCancel context.CancelFunc

	// one-shot timers; seq keys the map so cancel funcs stay O(1)
	tmu    sync.Mutex
	timers map[uint64]*time.Timer
	seq    uint64
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		timers: map[uint64]*time.Timer{},
	}
}

// Every registers a recurring job. May be called before or after Start;
// jobs registered before Start begin triggering when Start runs.
func (s *Service) Every(name, rawSpec string, fn func(ctx context.Context)) error {
	spec, err := ParseSchedule(rawSpec)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", name, err)
	}
	if fn == nil {
		return fmt.Errorf("schedule %q: job func required", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	def := jobDef{name: name, spec: spec, fn: fn}
	if s.c != nil {
		if err := s.addCronLocked(&def); err != nil {
			return err
		}
	}
	s.defs = append(s.defs, def)
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", rawSpec))
	return nil
}

// After schedules fn once after delay. The returned cancel func is safe to
// call multiple times and after the timer fired.
func (s *Service) After(name string, delay time.Duration, fn func()) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	if delay < 0 {
		delay = 0
	}

	s.tmu.Lock()
	s.seq++
	id := s.seq
	t := time.AfterFunc(delay, func() {
		s.tmu.Lock()
		_, live := s.timers[id]
		delete(s.timers, id)
		s.tmu.Unlock()
		// A Stop() that raced the firing already swept the map; don't run.
		if !live {
			return
		}
		fn()
	})
	s.timers[id] = t
	s.tmu.Unlock()

	s.log.Debug("timer scheduled", logx.String("name", name), logx.Duration("delay", delay))

	var once sync.Once
	return func() {
		once.Do(func() {
			s.tmu.Lock()
			if t, ok := s.timers[id]; ok {
				t.Stop()
				delete(s.timers, id)
			}
			s.tmu.Unlock()
		})
	}
}

// Start begins cron triggering for registered recurring jobs.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}

	s.runCtx, s.runCancel = context.WithCancel(ctx)

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	// register existing defs (if any)
	for i := range s.defs {
		if err := s.addCronLocked(&s.defs[i]); err != nil {
			s.log.Warn("schedule registration failed", logx.String("name", s.defs[i].name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("service started", logx.String("tz", loc.String()), logx.Int("schedules", len(s.defs)))
}

// Stop halts cron triggering and cancels all outstanding one-shot timers.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()

	s.mu.Lock()
	c := s.c
	s.c = nil
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}

	s.tmu.Lock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.tmu.Unlock()

	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// PendingTimers reports the number of outstanding one-shot timers.
func (s *Service) PendingTimers() int {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	return len(s.timers)
}

func (s *Service) addCronLocked(def *jobDef) error {
	spec := def.spec.Cron
	if def.spec.Kind == SpecInterval {
		spec = "@every " + def.spec.Every.String()
	}
	name := def.name
	fn := def.fn
	id, err := s.c.AddFunc(spec, func() {
		s.mu.Lock()
		ctx := s.runCtx
		s.mu.Unlock()
		if ctx == nil || ctx.Err() != nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in scheduled job", logx.String("name", name), logx.Any("panic", r))
			}
		}()
		fn(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", def.name, err)
	}
	def.entryID = id
	return nil
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
