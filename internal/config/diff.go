package config

import (
	"reflect"
	"sort"
	"strings"

	logx "cevshenbot/pkg/logx"
)

// Sections whose changes only take effect after a restart.
var restartSections = map[string]bool{"http": true, "storage": true, "telegram.transport": true}

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	// Telegram transport settings need a new bot client (never log token).
	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token ||
		!strings.EqualFold(strings.TrimSpace(ot.Mode), strings.TrimSpace(nt.Mode)) ||
		strings.TrimSpace(ot.PublicURL) != strings.TrimSpace(nt.PublicURL) ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		strings.TrimSpace(ot.APIURL) != strings.TrimSpace(nt.APIURL) {
		changed = append(changed, "telegram.transport")
		attrs = append(attrs,
			logx.String("telegram.mode", nt.Mode),
			logx.Bool("telegram.public_url_set", strings.TrimSpace(nt.PublicURL) != ""),
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
		)
	}
	if ot.TargetChatID != nt.TargetChatID ||
		!reflect.DeepEqual(ot.LearnTarget, nt.LearnTarget) ||
		strings.TrimSpace(ot.GroupLog) != strings.TrimSpace(nt.GroupLog) {
		changed = append(changed, "telegram.target")
		attrs = append(attrs,
			logx.Int64("telegram.target_chat_id", nt.TargetChatID),
			logx.Bool("telegram.learn_target", newCfg.LearnTarget()),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nt.GroupLog) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP) {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.String("http.addr", newCfg.HTTP.Addr),
			logx.String("http.webhook_path", newCfg.HTTP.WebhookPath),
			logx.Bool("http.strict_webhook", newCfg.HTTP.StrictWebhook),
		)
	}

	if !reflect.DeepEqual(oldCfg.Rotation, newCfg.Rotation) {
		changed = append(changed, "rotation")
		attrs = append(attrs,
			logx.Int("rotation.names", len(newCfg.Rotation.Names)),
			logx.String("rotation.anchor", newCfg.Rotation.Anchor),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		dp := newCfg.Scheduler.DailyPoll
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.SchedulerEnabled()),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.daily_poll.start_at", dp.StartAt),
			logx.String("scheduler.daily_poll.every", dp.Every),
			logx.String("scheduler.daily_poll.schedule", dp.Schedule),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	// Storage (nil means disabled)
	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if strings.TrimSpace(oS.Driver) != strings.TrimSpace(nS.Driver) ||
		strings.TrimSpace(oS.Path) != strings.TrimSpace(nS.Path) ||
		strings.TrimSpace(oS.BusyTimeout) != strings.TrimSpace(nS.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired filters changed down to sections a hot reload cannot apply.
func RestartRequired(changed []string) []string {
	var out []string
	for _, c := range changed {
		if restartSections[c] {
			out = append(out, c)
		}
	}
	return out
}
