package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cevshenbot/internal/rotation"
)

const (
	DefaultAddr         = ":8000"
	DefaultWebhookPath  = "/webhook"
	DefaultStartAt      = "2025-04-09 09:00:00"
	DefaultEvery        = "24h"
	DefaultPollTimeout  = "30s"
	StartAtLayout       = "2006-01-02 15:04:05"
	defaultLoggingLevel = "info"
)

// Default is the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{Logging: LoggingConfig{Level: defaultLoggingLevel, Console: true}}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills omitted fields in place.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Telegram.Mode) == "" {
		c.Telegram.Mode = "webhook"
	}
	if c.Telegram.LearnTarget == nil {
		c.Telegram.LearnTarget = boolPtr(true)
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		c.HTTP.Addr = DefaultAddr
	}
	if strings.TrimSpace(c.HTTP.WebhookPath) == "" {
		c.HTTP.WebhookPath = DefaultWebhookPath
	}
	if !strings.HasPrefix(c.HTTP.WebhookPath, "/") {
		c.HTTP.WebhookPath = "/" + c.HTTP.WebhookPath
	}
	if c.Scheduler.Enabled == nil {
		c.Scheduler.Enabled = boolPtr(true)
	}
	dp := &c.Scheduler.DailyPoll
	if strings.TrimSpace(dp.Schedule) == "" {
		if strings.TrimSpace(dp.StartAt) == "" {
			dp.StartAt = DefaultStartAt
		}
		if strings.TrimSpace(dp.Every) == "" {
			dp.Every = DefaultEvery
		}
	}
	if strings.TrimSpace(dp.Timeout) == "" {
		dp.Timeout = DefaultPollTimeout
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = defaultLoggingLevel
	}
}

func (c *Config) SchedulerEnabled() bool {
	return c.Scheduler.Enabled == nil || *c.Scheduler.Enabled
}

func (c *Config) LearnTarget() bool {
	return c.Telegram.LearnTarget == nil || *c.Telegram.LearnTarget
}

// WebhookURL is the URL registered with Telegram, or "" when public_url is unset.
func (c *Config) WebhookURL() (string, error) {
	raw := strings.TrimSpace(c.Telegram.PublicURL)
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("telegram.public_url: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", fmt.Errorf("telegram.public_url: scheme must be https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("telegram.public_url: host is empty")
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = c.HTTP.WebhookPath
	}
	return u.String(), nil
}

// Validate checks fields that can be checked without building components.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(strings.TrimSpace(c.Telegram.Mode)) {
	case "", "webhook", "polling":
	default:
		errs = append(errs, fmt.Errorf("telegram.mode: want webhook or polling, got %q", c.Telegram.Mode))
	}
	if _, err := c.WebhookURL(); err != nil {
		errs = append(errs, err)
	}
	if raw := strings.TrimSpace(c.Telegram.APIURL); raw != "" {
		if u, err := url.Parse(raw); err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			errs = append(errs, fmt.Errorf("telegram.api_url: want an http(s) URL, got %q", raw))
		}
	}
	if g := strings.TrimSpace(c.Telegram.GroupLog); g != "" {
		if _, err := strconv.ParseInt(g, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("telegram.group_log: want a chat id, got %q", g))
		}
	}
	for path, raw := range map[string]string{
		"telegram.poll_timeout":        c.Telegram.PollTimeout,
		"http.read_timeout":            c.HTTP.ReadTimeout,
		"http.write_timeout":           c.HTTP.WriteTimeout,
		"http.idle_timeout":            c.HTTP.IdleTimeout,
		"scheduler.daily_poll.every":   c.Scheduler.DailyPoll.Every,
		"scheduler.daily_poll.timeout": c.Scheduler.DailyPoll.Timeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	if s := strings.TrimSpace(c.Scheduler.DailyPoll.StartAt); s != "" {
		if _, err := time.Parse(StartAtLayout, s); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.daily_poll.start_at: want %q: %w", StartAtLayout, err))
		}
	}
	// Roster and poll-size checks run here rather than on the first send.
	if _, err := rotation.New(rotation.Config{
		Names:         c.Rotation.Names,
		Ranges:        c.Rotation.Ranges,
		Anchor:        c.Rotation.Anchor,
		PinnedWeekday: c.Rotation.PinnedWeekday,
	}); err != nil {
		errs = append(errs, err)
	}
	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StartAt parses scheduler.daily_poll.start_at in loc.
func (c *Config) StartAt(loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(c.Scheduler.DailyPoll.StartAt)
	if s == "" {
		s = DefaultStartAt
	}
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(StartAtLayout, s, loc)
}

func boolPtr(v bool) *bool { return &v }
