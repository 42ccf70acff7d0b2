package app

import (
	"context"
	"slices"
	"strings"
	"time"

	"cevshenbot/internal/config"
	logx "cevshenbot/pkg/logx"
)

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
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
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config change needs a restart to take effect", logx.Strings("sections", restart))
	}

	// Update the log target first so Apply() does not warn.
	a.logs.SetTelegramTarget(groupLogChat(newCfg), newCfg.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLoggingConfig(newCfg))

	a.disp.Target().Override(newCfg.Telegram.TargetChatID)

	if slices.Contains(sections, "rotation") {
		calc, err := newCalculator(newCfg)
		if err != nil {
			a.log.Warn("invalid rotation config; keeping previous", logx.Err(err))
		} else {
			a.disp.SetCalculator(calc)
		}
	}

	if slices.Contains(sections, "scheduler") {
		a.applyScheduler(ctx, newCfg)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) applyScheduler(ctx context.Context, cfg *config.Config) {
	prevEnabled := a.sched.Enabled()
	sc := mapSchedulerConfig(cfg)
	a.sched.Apply(sc)
	a.disp.SetLocation(a.sched.Location())

	// Re-register so start_at is parsed in the current timezone.
	if _, err := scheduleDailyPoll(a.sched, cfg, a.dailyPoll); err != nil {
		a.log.Warn("daily poll schedule not updated", logx.Err(err))
	}

	switch {
	case prevEnabled && !sc.Enabled:
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	case !prevEnabled && sc.Enabled:
		a.log.Info("scheduler enabled via config")
		a.sched.Start(ctx)
	}
}
