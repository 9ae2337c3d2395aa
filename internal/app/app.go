package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"pushgate/internal/agent"
	"pushgate/internal/clients"
	"pushgate/internal/config"
	"pushgate/internal/dispatch"
	"pushgate/internal/eventbus"
	"pushgate/internal/gate"
	"pushgate/internal/interaction"
	"pushgate/internal/present"
	"pushgate/internal/quiethours"
	"pushgate/internal/runtime/supervisor"
	"pushgate/internal/storage"
	"pushgate/internal/transport/amqp"
	"pushgate/internal/transport/httpapi"
	"pushgate/internal/transport/telegram"
	"pushgate/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	clients   *clients.Registry
	present   *present.Service
	telegram  *telegram.Adapter
	lifecycle *agent.Lifecycle
	disp      *dispatch.Dispatcher
	watcher   *quiethours.Watcher

	http     *httpapi.Server
	consumer *amqp.Consumer

	watchQuietHours bool
	stopTimeout     time.Duration
	startedAt       time.Time
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// Remote logging needs the Telegram adapter, which needs a logger; start
	// with the remote sink off and apply the final config once it exists.
	baseLogCfg := mapLogging(cfg)
	baseLogCfg.Remote.Enabled = false
	logSvc, log := logx.New(baseLogCfg, nil)
	log = log.With(logx.String("comp", "app"))

	sinks, tg, err := buildSinks(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}
	if tg != nil {
		logSvc.SetSink(tg)
	}
	logSvc.Apply(mapLogging(cfg))

	bus := eventbus.New()
	loc := cfg.QuietHours.Location()

	store, err := storage.Open(mapStorage(cfg), log)
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", store.Driver()))

	registry := clients.NewRegistry(clients.Options{
		AllowOpen: cfg.Clients.OpenAllowed(),
		BaseURL:   cfg.Clients.BaseURL,
		Version:   cfg.Agent.Version,
	}, bus, log)

	presentSvc := present.New(mapPresent(cfg), log, bus, sinks...)
	if len(sinks) == 0 {
		log.Warn("no presentation sink enabled; pushes will be decided but not shown")
	}

	g := gate.New(store, presentSvc, gate.WithBus(bus), gate.WithLogger(log), gate.WithLocation(loc))
	router := interaction.New(presentSvc, registry, interaction.WithBus(bus), interaction.WithLogger(log))
	lc := agent.New(registry,
		agent.WithClaimTimeout(config.DurationOr(cfg.Agent.ClaimTimeout, 5*time.Second)),
		agent.WithBus(bus),
		agent.WithLogger(log),
	)
	disp := dispatch.New(context.Background(), lc, g, router,
		dispatch.WithLogger(log),
		dispatch.WithEventTimeout(config.DurationOr(cfg.Agent.EventTimeout, 0)),
	)
	watcher := quiethours.NewWatcher(store, bus, log, loc)

	a := &App{
		cfgm:            cfgm,
		log:             log,
		logs:            logSvc,
		bus:             bus,
		store:           store,
		clients:         registry,
		present:         presentSvc,
		telegram:        tg,
		lifecycle:       lc,
		disp:            disp,
		watcher:         watcher,
		watchQuietHours: cfg.QuietHours.Watch,
		stopTimeout:     config.DurationOr(cfg.Agent.StopTimeout, 10*time.Second),
	}
	if tg != nil {
		tg.SetDispatcher(disp)
	}
	if cfg.HTTP.Enabled {
		a.http = httpapi.New(mapHTTP(cfg), httpapi.Deps{
			Dispatcher: disp,
			Store:      store,
			Watcher:    watcher,
			Clients:    registry,
			Location:   loc,
			Status:     a.status,
		}, log)
	}
	if cfg.AMQP.Enabled {
		a.consumer = amqp.NewConsumer(mapAMQP(cfg), disp, log)
	}
	return a, nil
}

// Done is closed when the app context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start installs and activates the agent before any push transport is
// opened, so no push is ever handled by an inactive agent.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.startedAt = time.Now()
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if _, err := a.disp.Dispatch(ctx, dispatch.Event{Type: dispatch.EventInstall}); err != nil {
		return fmt.Errorf("install agent: %w", err)
	}

	if a.watchQuietHours {
		if err := a.watcher.Start(ctx); err != nil {
			return fmt.Errorf("quiet hours watcher: %w", err)
		}
	}
	if a.telegram != nil {
		if err := a.telegram.Start(a.sup.Context()); err != nil {
			return err
		}
	}
	if a.http != nil {
		a.sup.Go("http.serve", a.http.Run)
	}
	if a.consumer != nil {
		a.sup.GoRestart("amqp.consume", a.consumer.Run, supervisor.WithRestartBackoff(time.Second, 30*time.Second))
	}

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
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
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
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("app started",
		logx.String("agent", a.lifecycle.State().String()),
		logx.Bool("claimed", a.lifecycle.Claimed()),
		logx.String("sinks", strings.Join(a.present.Sinks(), ",")),
	)
	return nil
}

// applyConfig hot-applies logging and presentation tuning. Everything else
// is only read at startup.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.logs.Apply(mapLogging(newCfg))
	a.present.Apply(mapPresent(newCfg))

	if restart := config.RequiresRestart(sections); len(restart) > 0 {
		a.log.Warn("config sections changed that only apply after restart", logx.String("sections", strings.Join(restart, ",")))
	}
	if sinksChanged(oldCfg, newCfg) {
		a.log.Warn("presentation sinks changed; restart required for them to take effect")
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Data: sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func sinksChanged(oldCfg, newCfg *config.Config) bool {
	if oldCfg == nil {
		return false
	}
	o, n := oldCfg.Presentation, newCfg.Presentation
	return o.Log != n.Log || o.Telegram != n.Telegram || o.FCM != n.FCM
}

type Status struct {
	Agent        string                `json:"agent"`
	Claimed      bool                  `json:"claimed"`
	ClaimError   string                `json:"claim_error,omitempty"`
	Uptime       string                `json:"uptime"`
	Storage      string                `json:"storage"`
	Sinks        []string              `json:"sinks"`
	Sent         uint64                `json:"sent"`
	Failed       uint64                `json:"failed"`
	History      []present.HistoryItem `json:"history"`
	Dispatch     dispatch.Stats        `json:"dispatch"`
	Clients      int                   `json:"clients"`
	QuietHours   string                `json:"quiet_hours"`
	BusDropped   uint64                `json:"bus_dropped"`
	Supervisor   supervisor.Snapshot   `json:"supervisor"`
	EventWorkers supervisor.Counters   `json:"event_workers"`
}

func (a *App) status() any {
	sent, failed := a.present.Counts()
	st := Status{
		Agent:        a.lifecycle.State().String(),
		Claimed:      a.lifecycle.Claimed(),
		Uptime:       time.Since(a.startedAt).Round(time.Second).String(),
		Storage:      a.store.Driver(),
		Sinks:        a.present.Sinks(),
		Sent:         sent,
		Failed:       failed,
		History:      a.present.Snapshot(),
		Dispatch:     a.disp.Stats(),
		Clients:      len(a.clients.List()),
		QuietHours:   a.watcher.Current().String(),
		BusDropped:   eventbus.Dropped(a.bus),
		Supervisor:   a.sup.Snapshot(),
		EventWorkers: a.disp.Supervisor().Counters(),
	}
	if err := a.lifecycle.ClaimErr(); err != nil {
		st.ClaimError = err.Error()
	}
	return st
}

// Stop cancels intake first, then lets in-flight events finish within the
// configured stop timeout.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.sup.Cancel()

	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", limit))

		stepCtx := ctx
		if limit > 0 {
			// never extend the caller's deadline
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem <= 0 {
					limit = 0
				} else if rem < limit {
					limit = rem
				}
			}
			if limit > 0 {
				var cancel context.CancelFunc
				stepCtx, cancel = context.WithTimeout(ctx, limit)
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
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
			}()
		}
	}

	step("telegram", 2*time.Second, func(c context.Context) error {
		if a.telegram != nil {
			return a.telegram.Stop(c)
		}
		return nil
	})
	step("dispatch", a.stopTimeout, a.disp.Stop)
	step("quiethours", time.Second, func(c context.Context) error { a.watcher.Stop(c); return nil })
	step("supervisor", 6*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
