// Package app wires the daemon: config manager (+watch/hot-reload), logging
// service, event bus, worker engine, dispatcher, optional pprof server, and
// systemd readiness/watchdog integration.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cronner/internal/engine"
	"cronner/internal/events"
	"cronner/internal/observability/pprof"
	"cronner/pkg/dispatch"
	logx "cronner/pkg/logx"
	"cronner/pkg/rule"
)

// watchdogJobName is reserved; config jobs cannot use the "cronnerd." prefix.
const watchdogJobName = "cronnerd.watchdog"

type App struct {
	cfgPath string

	cfgm *Manager
	sup  *Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  events.Bus

	mode   dispatch.Mode
	engine *engine.Service
	disp   *dispatch.Dispatcher
	pprof  *pprof.Service
}

func New(cfgPath string) (*App, error) {
	cfgm := NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	bus := events.New()

	engineSvc := engine.New(mapEngineConfig(cfg), log.With(logx.String("comp", "engine")))

	dispCfg, err := mapDispatcherConfig(cfg)
	if err != nil {
		return nil, err
	}
	var exec dispatch.Executor
	if dispCfg.Mode == dispatch.ModePool {
		exec = engineSvc
	}
	disp, err := dispatch.New(dispCfg, exec, log.With(logx.String("comp", "dispatch")), bus)
	if err != nil {
		return nil, err
	}

	pprofCfg, err := mapPprofConfig(cfg)
	if err != nil {
		return nil, err
	}
	pprofSvc := pprof.New(pprofCfg, log.With(logx.String("comp", "pprof")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		mode:    dispCfg.Mode,
		engine:  engineSvc,
		disp:    disp,
		pprof:   pprofSvc,
	}, nil
}

// Dispatcher exposes the live dispatcher, mainly for tests and embedders.
func (a *App) Dispatcher() *dispatch.Dispatcher { return a.disp }

// Done is closed when the app run context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *Config) error {
		return validateConfig(cfg)
	})

	// Engine first so the executor accepts fires before the first tick.
	if a.mode == dispatch.ModePool {
		a.engine.Start(a.sup.Context())
	}

	// Config jobs must be registered before the loop starts so the first
	// tick already sees them.
	if err := a.applyJobs(a.cfgm.Get().Jobs); err != nil {
		return err
	}
	a.registerWatchdogJob()

	if err := a.disp.Start(a.sup.Context()); err != nil {
		return err
	}

	if a.pprof != nil && a.pprof.Enabled() {
		a.pprof.Start(a.sup.Context())
	}

	// Bus to log bridge. Components log their own decisions already, so
	// keep this at debug level.
	evs, unsub := a.bus.Subscribe(128)
	a.sup.Go0("events.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-evs:
				if !ok {
					return
				}
				a.logEvent(e)
			}
		}
	})

	// Hot reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		// Track last applied config to generate a safe diff summary.
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
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
				a.applyReload(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	notifyReady()
	a.log.Info("app started",
		logx.String("mode", string(a.mode)),
		logx.Int("jobs", len(a.cfgm.Get().Jobs)))
	return nil
}

// applyReload pushes one committed config revision into the running services.
func (a *App) applyReload(ctx context.Context, oldCfg, newCfg *Config) {
	sections, attrs, changedJobs := SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(mapLoggingConfig(newCfg))
		case "dispatcher":
			// Tick interval / mode / timezone are fixed at construction.
			a.log.Warn("dispatcher config changed; restart required for changes to take effect")
		case "engine":
			a.engine.Apply(ctx, mapEngineConfig(newCfg))
		case "pprof":
			ppc, err := mapPprofConfig(newCfg)
			if err != nil {
				a.log.Warn("invalid pprof config; keeping previous", logx.Err(err))
			} else {
				a.pprof.Reconfigure(ctx, ppc)
			}
		case "jobs":
			a.reconcileJobs(changedJobs, newCfg)
		}
	}

	a.log.Info("config reloaded", fields...)
}

func (a *App) logEvent(e events.Event) {
	fields := make([]logx.Field, 0, 4)
	fields = append(fields, logx.String("type", e.Type))
	if e.Job != "" {
		fields = append(fields, logx.String("job", e.Job))
	}
	if e.ID != "" {
		fields = append(fields, logx.String("id", e.ID))
	}
	if e.Err != "" {
		fields = append(fields, logx.String("err", e.Err))
	}
	a.log.Debug("event", fields...)
}

// registerWatchdogJob schedules systemd watchdog pings as a regular job at
// half the unit's WatchdogSec. No-op when the watchdog is not armed.
func (a *App) registerWatchdogJob() {
	interval, err := watchdogInterval()
	if err != nil {
		a.log.Warn("systemd watchdog detection failed", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	every := interval / 2
	if every < time.Second {
		every = time.Second
	}
	sched, err := rule.Every(int(every / time.Second)).Seconds().Build()
	if err != nil {
		a.log.Warn("systemd watchdog job not scheduled", logx.Err(err))
		return
	}
	_, err = a.disp.Add(dispatch.JobSpec{
		Name:     watchdogJobName,
		Schedule: sched,
		Run: func(ctx context.Context) error {
			return notifyWatchdog()
		},
		Meta: map[string]string{"internal": "true"},
	})
	if err != nil {
		a.log.Warn("systemd watchdog job not scheduled", logx.Err(err))
		return
	}
	a.log.Info("systemd watchdog armed",
		logx.Duration("watchdog", interval), logx.Duration("ping_every", every))
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	notifyStopping()

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// step runs one shutdown stage with an upper bound so a single
	// component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// Respect the caller's deadline; never extend it.
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			// Contract: fn MUST honor stepCtx and return promptly. If it
			// doesn't, log a leak signal.
			elapsed := time.Since(start)
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", elapsed),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline",
						logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline",
						logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// Dispatcher first so no new fires reach the engine, then drain the
	// engine, then the rest.
	step("dispatcher", 2*time.Second, func(c context.Context) error { a.disp.Stop(c); return nil })
	step("engine", 3*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("pprof", 1*time.Second, func(c context.Context) error {
		if a.pprof != nil {
			a.pprof.Stop(c)
		}
		return nil
	})

	// Finally, wait for supervised goroutines (config watch/reload, event bridge).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// CheckConfig parses and validates a config file without starting anything.
func CheckConfig(path string) error {
	cfg, err := NewManager(path).Parse()
	if err != nil {
		return err
	}
	return validateConfig(cfg)
}

// validateConfig holds the semantic checks struct tags can't express
// (tick floor, pprof bind safety, reserved names). It runs at startup, on
// -check, and as the hot-reload validator; structural validation already
// happened inside Parse.
func validateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := mapDispatcherConfig(cfg); err != nil {
		return err
	}
	if _, err := mapPprofConfig(cfg); err != nil {
		return err
	}
	for i, jc := range cfg.Jobs {
		if strings.HasPrefix(strings.TrimSpace(jc.Name), "cronnerd.") {
			return fmt.Errorf("jobs[%d]: name %q uses the reserved \"cronnerd.\" prefix", i, jc.Name)
		}
	}
	return nil
}

// ---- config mapping ----

func mapLoggingConfig(cfg *Config) logx.Config {
	if cfg == nil {
		return logx.Config{}
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Tail: logx.TailConfig{
			Enabled:    cfg.Logging.Tail.Enabled,
			Path:       cfg.Logging.Tail.Path,
			MinLevel:   cfg.Logging.Tail.MinLevel,
			RatePerSec: cfg.Logging.Tail.RatePerSec,
		},
	}
}

func mapEngineConfig(cfg *Config) engine.Config {
	if cfg == nil {
		return engine.Config{}
	}
	return engine.Config{
		Workers:   cfg.Engine.Workers,
		QueueSize: cfg.Engine.QueueSize,
	}
}

func mapDispatcherConfig(cfg *Config) (dispatch.Config, error) {
	var out dispatch.Config
	if cfg == nil {
		return out, nil
	}
	tick, err := parseDurationOrDefault("dispatcher.tick_interval", cfg.Dispatcher.TickInterval, time.Second)
	if err != nil {
		return out, err
	}
	if tick < 100*time.Millisecond {
		return out, fmt.Errorf("dispatcher.tick_interval: %s is below the 100ms floor", tick)
	}
	mode := dispatch.Mode(strings.TrimSpace(cfg.Dispatcher.Mode))
	if mode == "" {
		mode = dispatch.ModePool
	}
	switch mode {
	case dispatch.ModeInline, dispatch.ModePool:
	default:
		return out, fmt.Errorf("dispatcher.mode: unknown %q", mode)
	}
	tz := strings.TrimSpace(cfg.Dispatcher.Timezone)
	if tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return out, fmt.Errorf("dispatcher.timezone: invalid %q: %w", tz, err)
		}
	}
	out.TickInterval = tick
	out.Mode = mode
	out.Timezone = tz
	return out, nil
}
