package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cevshenbot/internal/config"
	"cevshenbot/internal/dispatch"
	"cevshenbot/internal/rotation"
	rtsup "cevshenbot/internal/runtime/supervisor"
	"cevshenbot/internal/server"
	"cevshenbot/internal/storage"
	"cevshenbot/internal/task/scheduler"
	kit "cevshenbot/internal/transport"
	telegram "cevshenbot/internal/transport/telegram/adapter"
	"cevshenbot/internal/transport/telegram/router"
	logx "cevshenbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	adapter *telegram.Adapter
	disp    *dispatch.Dispatcher
	sched   *scheduler.Service
	http    *server.Service
	cmdm    *router.CommandManager
	cmds    *botCommands

	webhookSet bool
	updates    chan kit.Update
}

// NewCalculator builds the rotation described by cfg.
func NewCalculator(cfg *config.Config) (*rotation.Calculator, error) {
	return newCalculator(cfg)
}

// NewAdapter builds the Telegram client described by cfg.
func NewAdapter(cfg *config.Config, log logx.Logger) (*telegram.Adapter, error) {
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	return telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		Mode:        cfg.Telegram.Mode,
		PollTimeout: pollTimeout,
		APIURL:      strings.TrimRight(strings.TrimSpace(cfg.Telegram.APIURL), "/"),
	}, log)
}

func New(cfgm *config.ConfigManager) (*App, error) {
	// Reject configs whose components cannot be built, on load and on reload.
	cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validate(cfg) })
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
	ad, err := NewAdapter(cfg, bootLog)
	if err != nil {
		return nil, err
	}

	// Bootstrap with Telegram logging off so Apply() does not warn about a
	// missing target, then enable it once the target is set.
	logCfg := mapLoggingConfig(cfg)
	tgEnabled := logCfg.Telegram.Enabled
	logCfg.Telegram.Enabled = false
	logSvc, log := logx.New(logCfg, ad)
	logSvc.SetTelegramTarget(groupLogChat(cfg), cfg.Logging.Telegram.ThreadID)
	logCfg.Telegram.Enabled = tgEnabled
	logSvc.Apply(logCfg)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	appLog := log.With(logx.String("comp", "app"))

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		appLog.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	target := dispatch.NewTarget(dispatch.FallbackChatID)
	target.Override(cfg.Telegram.TargetChatID)
	if store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		id, ok, err := store.TargetChat(ctx)
		cancel()
		switch {
		case err != nil:
			appLog.Warn("stored target chat unavailable", logx.Err(err))
		case ok:
			target.Learn(id)
			appLog.Info("target chat restored", logx.Int64("target_chat_id", id))
		}
	}

	calc, err := newCalculator(cfg)
	if err != nil {
		closeStore(store)
		return nil, fmt.Errorf("rotation: %w", err)
	}

	sched := scheduler.New(mapSchedulerConfig(cfg), log.With(logx.String("comp", "scheduler")))
	disp, err := dispatch.New(calc, ad, target, store,
		log.With(logx.String("comp", "dispatch")),
		dispatch.WithLocation(sched.Location()),
	)
	if err != nil {
		closeStore(store)
		return nil, err
	}

	srvCfg, err := mapServerConfig(cfg)
	if err != nil {
		closeStore(store)
		return nil, err
	}

	a := &App{
		cfgm:    cfgm,
		log:     appLog,
		logs:    logSvc,
		store:   store,
		adapter: ad,
		disp:    disp,
		sched:   sched,
		http:    server.New(srvCfg, ad, log),
		cmdm:    router.NewCommandManager(log.With(logx.String("comp", "commands")), ad),
		updates: make(chan kit.Update, 256),
	}
	a.cmds = &botCommands{
		disp:  disp,
		sched: sched,
		store: store,
		learn: func() bool { return a.cfgm.Get().LearnTarget() },
		log:   appLog,
	}
	if _, err := scheduleDailyPoll(sched, cfg, a.dailyPoll); err != nil {
		closeStore(store)
		return nil, err
	}
	return a, nil
}

func closeStore(s storage.Store) {
	if s != nil {
		_ = s.Close()
	}
}

func (a *App) dailyPoll(ctx context.Context) error {
	_, err := a.disp.SendToday(ctx)
	return err
}

// Dispatcher exposes the poll dispatcher (CLI).
func (a *App) Dispatcher() *dispatch.Dispatcher { return a.disp }

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
	cfg := a.cfgm.Get()

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.cmdm.SetRegistry(a.sup.Context(), a.cmds.commands())
	a.registerWebhook(a.sup.Context(), cfg)

	a.http.Start(a.sup.Context())
	a.sched.Start(a.sup.Context())

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.String("mode", a.adapter.Mode()),
		logx.Int64("target_chat_id", a.disp.Target().Resolve()),
		logx.String("target_source", a.disp.Target().Source()),
	)
	return nil
}

// registerWebhook points Telegram at this process in webhook mode and clears
// any stale webhook in polling mode. Failures are logged, not fatal.
func (a *App) registerWebhook(ctx context.Context, cfg *config.Config) {
	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if a.adapter.Mode() == telegram.ModePolling {
		if err := a.adapter.RemoveWebhook(wctx); err != nil {
			a.log.Warn("webhook removal failed", logx.Err(err))
		}
		return
	}
	url, err := cfg.WebhookURL()
	if err != nil || url == "" {
		a.log.Warn("telegram.public_url not set; webhook not registered", logx.Err(err))
		return
	}
	if err := a.adapter.SetWebhook(wctx, url); err != nil {
		a.log.Error("webhook registration failed", logx.String("url", url), logx.Err(err))
		return
	}
	a.webhookSet = true
	a.log.Info("webhook registered", logx.String("url", url))
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// step runs one shutdown step bounded by max so a stuck component cannot
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		var cancel context.CancelFunc
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
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
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("webhook", 3*time.Second, func(c context.Context) error {
		if !a.webhookSet {
			return nil
		}
		if err := a.adapter.RemoveWebhook(c); err != nil {
			return err
		}
		a.webhookSet = false
		a.log.Info("webhook removed")
		return nil
	})
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("http", 2*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", 1*time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
