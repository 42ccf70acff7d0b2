package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cevshenbot/internal/config"
	"cevshenbot/internal/rotation"
	"cevshenbot/internal/server"
	"cevshenbot/internal/storage"
	"cevshenbot/internal/task/scheduler"
	logx "cevshenbot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
	}

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// groupLogChat parses telegram.group_log; 0 means unset.
func groupLogChat(cfg *config.Config) int64 {
	g := strings.TrimSpace(cfg.Telegram.GroupLog)
	if g == "" {
		return 0
	}
	id, err := strconv.ParseInt(g, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func mapServerConfig(cfg *config.Config) (server.Config, error) {
	read, err := config.ParseDurationOrDefault("http.read_timeout", cfg.HTTP.ReadTimeout, 10*time.Second)
	if err != nil {
		return server.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("http.write_timeout", cfg.HTTP.WriteTimeout, 30*time.Second)
	if err != nil {
		return server.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("http.idle_timeout", cfg.HTTP.IdleTimeout, 60*time.Second)
	if err != nil {
		return server.Config{}, err
	}
	return server.Config{
		Addr:          cfg.HTTP.Addr,
		WebhookPath:   cfg.HTTP.WebhookPath,
		StrictWebhook: cfg.HTTP.StrictWebhook,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Enabled:     cfg.SchedulerEnabled(),
		Timezone:    cfg.Scheduler.Timezone,
		HistorySize: cfg.Scheduler.HistorySize,
	}
}

func newCalculator(cfg *config.Config) (*rotation.Calculator, error) {
	return rotation.New(rotation.Config{
		Names:         cfg.Rotation.Names,
		Ranges:        cfg.Rotation.Ranges,
		Anchor:        cfg.Rotation.Anchor,
		PinnedWeekday: cfg.Rotation.PinnedWeekday,
	})
}

// LoadLocation resolves scheduler.timezone; empty means the process zone.
func LoadLocation(cfg *config.Config) (*time.Location, error) {
	tz := strings.TrimSpace(cfg.Scheduler.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	return loc, nil
}

const dailyPollJob = "daily_poll"

// scheduleDailyPoll (re)registers the poll job. An explicit schedule wins
// over the anchored start/every pair.
func scheduleDailyPoll(s *scheduler.Service, cfg *config.Config, job scheduler.Job) (string, error) {
	dp := cfg.Scheduler.DailyPoll
	timeout, err := config.ParseDurationOrDefault("scheduler.daily_poll.timeout", dp.Timeout, 30*time.Second)
	if err != nil {
		return "", err
	}
	if spec := strings.TrimSpace(dp.Schedule); spec != "" {
		return s.AddSchedule(dailyPollJob, spec, timeout, job)
	}
	every, err := config.ParseDurationOrDefault("scheduler.daily_poll.every", dp.Every, 24*time.Hour)
	if err != nil {
		return "", err
	}
	start, err := cfg.StartAt(s.Location())
	if err != nil {
		return "", fmt.Errorf("scheduler.daily_poll.start_at: %w", err)
	}
	return s.AddAnchored(dailyPollJob, start, every, timeout, job)
}

// validate rejects configs whose components cannot be built. Used before a
// hot reload is committed.
func validate(cfg *config.Config) error {
	if _, err := newCalculator(cfg); err != nil {
		return fmt.Errorf("rotation: %w", err)
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapServerConfig(cfg); err != nil {
		return err
	}
	if s := strings.TrimSpace(cfg.Scheduler.DailyPoll.Schedule); s != "" {
		if err := scheduler.ValidateSchedule(s); err != nil {
			return fmt.Errorf("scheduler.daily_poll.schedule: %w", err)
		}
	}
	return nil
}
