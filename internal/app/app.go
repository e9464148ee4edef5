// Package app wires the client together: configuration with hot reload,
// logging, the notification engine, the chat transcript, the backend
// client, scheduling, and detection history.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"greenguard/internal/api"
	"greenguard/internal/assistant"
	"greenguard/internal/config"
	"greenguard/internal/eventbus"
	"greenguard/internal/history"
	"greenguard/internal/notification"
	"greenguard/internal/runtime/supervisor"
	"greenguard/internal/schedule"
	"greenguard/internal/transcript"
	logx "greenguard/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	bus eventbus.Bus

	notes   *notification.Store
	actions *notification.Actions
	emitter *notification.Emitter
	chat    *transcript.Store
	sched   *schedule.Service
	client  *api.Client
	hist    history.Store // may be nil
	orch    *assistant.Orchestrator
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	storeCfg, err := storeConfigFrom(cfg)
	if err != nil {
		return nil, err
	}
	notes := notification.NewStore(storeCfg, log.With(logx.String("comp", "notifications")),
		notification.WithBus(bus))
	actions := notification.NewActions(notes, log.With(logx.String("comp", "notifications")))

	emitterCfg, err := emitterConfigFrom(cfg)
	if err != nil {
		return nil, err
	}
	emitter := notification.NewEmitter(emitterCfg, notes, log.With(logx.String("comp", "emitter")))

	chat := transcript.NewStore(log.With(logx.String("comp", "transcript")),
		transcript.WithBus(bus))

	histCfg, err := historyConfigFrom(cfg)
	if err != nil {
		return nil, err
	}
	hist, err := history.Open(histCfg, log.With(logx.String("comp", "history")))
	if err != nil {
		return nil, err
	}
	// Detection history is session-scoped: a fresh start begins empty.
	if hist != nil {
		if err := hist.Clear(context.Background()); err != nil {
			log.Warn("wiping previous session history failed", logx.Err(err))
		}
	}

	sched := schedule.New(schedule.Config{}, log.With(logx.String("comp", "schedule")))

	apiCfg, err := apiConfigFrom(cfg)
	if err != nil {
		return nil, err
	}
	client := api.NewClient(apiCfg, log.With(logx.String("comp", "api")))

	orchOpts := []assistant.Option{assistant.WithBus(bus)}
	if hist != nil {
		orchOpts = append(orchOpts, assistant.WithHistory(hist))
	}
	orch := assistant.New(chat, notes, actions, client, sched,
		log.With(logx.String("comp", "assistant")), orchOpts...)

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		notes:   notes,
		actions: actions,
		emitter: emitter,
		chat:    chat,
		sched:   sched,
		client:  client,
		hist:    hist,
		orch:    orch,
	}, nil
}

func (a *App) Orchestrator() *assistant.Orchestrator { return a.orch }

func (a *App) Notifications() *notification.Store { return a.notes }

func (a *App) Transcript() *transcript.Store { return a.chat }

func (a *App) History() history.Store { return a.hist }

func (a *App) Logger() logx.Logger { return a.log }

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		return validate(cfg)
	})

	a.emitter.Start(a.sup.Context())
	a.sched.Start(a.sup.Context())

	cfg := a.cfgm.Get()
	if err := a.registerJobs(cfg); err != nil {
		return err
	}

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	// Mirror engine events to the debug log so a session can be traced.
	events, unsub := a.bus.Subscribe(64)
	a.sup.Go0("events.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", ev.Type), logx.Any("data", ev.Data))
			}
		}
	})

	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}

// registerJobs installs the recurring maintenance jobs from config.
func (a *App) registerJobs(cfg *config.Config) error {
	if spec := strings.TrimSpace(cfg.Notifications.DigestSchedule); spec != "" {
		if err := a.sched.Every("notifications.digest", spec, func(ctx context.Context) {
			if unread := a.notes.UnreadCount(); unread > 0 {
				a.notes.Add(notification.Candidate{
					Title:   "Unread Notifications",
					Message: fmt.Sprintf("You have %d unread notifications.", unread),
					Kind:    notification.KindInfo,
				})
			}
		}); err != nil {
			return err
		}
	}

	if a.hist == nil {
		return nil
	}
	retention, err := config.ParseDurationOrDefault("history.retention", cfg.History.Retention, 0)
	if err != nil {
		return err
	}
	spec := strings.TrimSpace(cfg.History.SweepSchedule)
	if retention <= 0 || spec == "" {
		return nil
	}
	return a.sched.Every("history.sweep", spec, func(ctx context.Context) {
		removed, err := a.hist.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			a.log.Warn("history sweep failed", logx.Err(err))
			return
		}
		if removed > 0 {
			a.log.Info("history sweep done", logx.Int("removed", removed))
		}
	})
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeChange(lastApplied, newCfg)
			lastApplied = newCfg
			a.apply(ctx, newCfg)

			if len(sections) > 0 {
				a.log.Info("config reloaded",
					append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
			} else {
				a.log.Info("config reloaded (no changes)")
			}
		}
	}
}

// apply pushes a validated config into the running components. The API
// client keeps its settings until restart; everything else updates live.
func (a *App) apply(ctx context.Context, cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	if storeCfg, err := storeConfigFrom(cfg); err == nil {
		a.notes.Apply(storeCfg)
	} else {
		a.log.Warn("notification limits not applied", logx.Err(err))
	}

	prevEnabled := a.emitter.Enabled()
	emitterCfg, err := emitterConfigFrom(cfg)
	if err != nil {
		a.log.Warn("emitter config not applied", logx.Err(err))
		return
	}
	a.emitter.Apply(emitterCfg)
	switch {
	case prevEnabled && !emitterCfg.Enabled:
		a.log.Info("emitter disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.emitter.Stop(stopCtx)
		cancel()
	case !prevEnabled && emitterCfg.Enabled:
		a.log.Info("emitter enabled via config")
		a.emitter.Start(ctx)
	}
}

// VisitSurface reacts to route changes: some surfaces greet with a canned
// notification, and returning to the dashboard resets the conversation.
func (a *App) VisitSurface(name string) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "dashboard":
		a.orch.Reset()
	case "farmers", "connect-farmers":
		a.actions.Trigger(notification.ActionConnectFarmers, notification.ActionData{})
	case "library", "crop-library":
		a.actions.Trigger(notification.ActionExploreLibrary, notification.ActionData{})
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Bound each shutdown step so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}
		start := time.Now()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("emitter", 2*time.Second, func(c context.Context) error { a.emitter.Stop(c); return nil })
	step("schedule", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	if a.hist != nil {
		step("history", 2*time.Second, func(c context.Context) error { return a.hist.Close() })
	}
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	return a.logs.Close()
}
