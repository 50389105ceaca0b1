package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"feebot/internal/command"
	"feebot/internal/config"
	"feebot/internal/eventbus"
	"feebot/internal/feesource"
	"feebot/internal/monitor"
	"feebot/internal/notifier"
	"feebot/internal/observability/debughttp"
	rtsup "feebot/internal/runtime/supervisor"
	"feebot/internal/storage"
	kit "feebot/internal/transport"
	telegram "feebot/internal/transport/telegram/adapter"
	logx "feebot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter
	notif   *notifier.Service
	mon     *monitor.Monitor
	sched   *monitor.Scheduler
	cmds    *command.Handler
	debug   *debughttp.Server

	pollOnStart bool
	updates     chan kit.Update
}

type Option func(*options)

type options struct {
	adapter kit.Adapter
}

// WithAdapter replaces the Telegram adapter (tests, alternative transports).
func WithAdapter(ad kit.Adapter) Option {
	return func(o *options) { o.adapter = ad }
}

// NewApp loads the config and builds every component. Any error here is a
// startup failure; nothing has been started yet.
func NewApp(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	ms, err := mapMonitorConfig(cfg)
	if err != nil {
		return nil, err
	}

	// The log service comes first so the adapter logs through it; the alert
	// sink gets its sender once the adapter exists.
	logSvc, root := logx.New(mapLoggingConfig(cfg), nil)
	log := root.With(logx.String("comp", "app"))
	var store storage.Store
	built := false
	defer func() {
		if built {
			return
		}
		if store != nil {
			_ = store.Close()
		}
		_ = logSvc.Close()
	}()

	ad := o.adapter
	if ad == nil {
		tc, err := mapTelegramConfig(cfg)
		if err != nil {
			return nil, err
		}
		tg, err := telegram.New(tc, root.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		ad = tg
	}
	logSvc.SetSender(ad)

	bus := eventbus.New()

	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		if store, err = storage.Open(sc, root); err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
	}

	url, fopts, err := mapFeeSourceOptions(cfg, root.With(logx.String("comp", "feesource")))
	if err != nil {
		return nil, err
	}
	fetcher := feesource.New(url, fopts...)

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, ad, root.With(logx.String("comp", "notifier")), bus)

	mon := monitor.New(monitor.Config{
		Owner:      cfg.Telegram.OwnerUserID,
		Thresholds: ms.thresholds,
	}, fetcher, notif, bus, root.With(logx.String("comp", "monitor")))
	sched := monitor.NewScheduler(mon, ms.schedule, ms.tickTimeout, root.With(logx.String("comp", "scheduler")))

	dcfg, err := mapDebugConfig(cfg)
	if err != nil {
		return nil, err
	}

	cmdTimeout, err := commandTimeout(cfg)
	if err != nil {
		return nil, err
	}
	cmds := command.NewHandler(cfg.Telegram.OwnerUserID, mon, ad,
		command.WithStore(store),
		command.WithTimeout(cmdTimeout),
		command.WithLogger(root),
	)

	a := &App{
		cfgm:        cfgm,
		log:         log,
		logs:        logSvc,
		bus:         bus,
		store:       store,
		adapter:     ad,
		notif:       notif,
		mon:         mon,
		sched:       sched,
		cmds:        cmds,
		pollOnStart: ms.pollOnStart,
		updates:     make(chan kit.Update, 256),
	}
	a.debug = debughttp.New(dcfg, a.state, root.With(logx.String("comp", "debughttp")))

	th := mon.Thresholds()
	log.Info("configured",
		logx.String("config", cfgPath),
		logx.String("fee_source", url),
		logx.String("schedule", ms.schedule.String()),
		logx.Int64("min", th.Min),
		logx.Int64("max", th.Max),
		logx.Bool("storage", store != nil),
		logx.Bool("debug_http", dcfg.Enabled),
	)
	built = true
	return a, nil
}

// Monitor exposes the fee monitor (thresholds and band).
func (a *App) Monitor() *monitor.Monitor { return a.mon }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
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
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		ms, err := mapMonitorConfig(cfg)
		if err != nil {
			return err
		}
		if err := a.sched.Validate(ms.schedule); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapDebugConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return fmt.Errorf("adapter start: %w", err)
	}
	a.notif.Start(a.sup.Context())

	if mu, ok := a.adapter.(kit.CommandMenuUpdater); ok {
		a.sup.Go0("telegram.menu", func(c context.Context) {
			mctx, cancel := context.WithTimeout(c, 10*time.Second)
			defer cancel()
			if err := mu.UpdateMenuCommands(mctx, command.MenuCommands()); err != nil {
				a.log.Warn("menu commands update failed", logx.Err(err))
			}
		})
	}

	if err := a.sched.Start(a.sup.Context(), a.pollOnStart); err != nil {
		return fmt.Errorf("scheduler start: %w", err)
	}

	a.debug.Start(a.sup.Context())

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmds.Run(c, a.updates)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.logEvent(e)
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.String("config", a.cfgm.Path()),
		logx.Time("next_poll", a.sched.Next()),
	)
	return nil
}

func (a *App) logEvent(e eventbus.Event) {
	switch e.Type {
	case eventbus.TypeFeePolled:
		if s, ok := e.Data.(feesource.Snapshot); ok {
			a.log.Debug("event", logx.String("type", e.Type), logx.Float64("fastest_fee", s.FastestFee))
			return
		}
	case eventbus.TypeNotifyFailed, eventbus.TypeNotifyDropped:
		a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
		return
	}
	a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
}

// applyConfig applies a validated reload. Thresholds are never touched: they
// belong to the operator once the bot is running.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	changed := map[string]bool{}
	for _, s := range sections {
		changed[s] = true
	}

	if changed["logging"] || changed["telegram"] {
		a.logs.Apply(mapLoggingConfig(newCfg))
	}
	if changed["monitor"] {
		if ms, err := mapMonitorConfig(newCfg); err != nil {
			a.log.Warn("invalid monitor config; keeping previous", logx.Err(err))
		} else if err := a.sched.Reschedule(ms.schedule); err != nil {
			a.log.Warn("reschedule failed; keeping previous", logx.Err(err))
		}
	}
	if changed["notifier"] {
		if ncfg, err := mapNotifierConfig(newCfg); err != nil {
			a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
		} else {
			prev := a.notif.Enabled()
			a.notif.Apply(ncfg)
			switch {
			case prev && !ncfg.Enabled:
				a.log.Info("notifier disabled via config")
				stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				a.notif.Stop(stopCtx)
				cancel()
			case !prev && ncfg.Enabled:
				a.log.Info("notifier enabled via config")
				a.notif.Start(ctx)
			}
		}
	}

	if changed["debug"] {
		if dcfg, err := mapDebugConfig(newCfg); err != nil {
			a.log.Warn("invalid debug config; keeping previous", logx.Err(err))
		} else {
			// ctx is the reload loop's context; it parents a (re)started listener.
			a.debug.Reconfigure(ctx, dcfg)
		}
	}

	var restart []string
	for _, s := range []string{"telegram", "fee_source", "storage"} {
		if changed[s] {
			restart = append(restart, s)
		}
	}
	if len(restart) > 0 {
		a.log.Warn("restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// step bounds each shutdown step so one component can't stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

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
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("debug_http", 1*time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	step("adapter", 3*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
