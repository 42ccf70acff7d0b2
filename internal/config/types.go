package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	HTTP      HTTPConfig      `json:"http"`
	Rotation  RotationConfig  `json:"rotation"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
}

type TelegramConfig struct {
	// Token is usually supplied through BOT_TOKEN instead.
	Token string `json:"token"`
	// Mode is "webhook" (default) or "polling".
	Mode string `json:"mode,omitempty"`
	// PublicURL is where Telegram reaches this service. A bare origin gets
	// http.webhook_path appended.
	PublicURL string `json:"public_url,omitempty"`
	// TargetChatID pins the chat that receives scheduled polls.
	TargetChatID int64 `json:"target_chat_id,omitempty"`
	// LearnTarget adopts the first chat that sends /start (default true).
	LearnTarget *bool `json:"learn_target,omitempty"`
	// GroupLog is the chat id receiving warn+ log lines when logging.telegram is enabled.
	GroupLog string `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s"), polling mode only.
	PollTimeout string `json:"poll_timeout,omitempty"`
	// APIURL points at a self-hosted Bot API server. Empty means api.telegram.org.
	APIURL string `json:"api_url,omitempty"`
}

// HTTPConfig controls the webhook/health HTTP server.
type HTTPConfig struct {
	Addr        string `json:"addr,omitempty"`         // default ":8000"
	WebhookPath string `json:"webhook_path,omitempty"` // default "/webhook"
	// StrictWebhook answers malformed updates with 400 instead of acking them.
	StrictWebhook bool `json:"strict_webhook,omitempty"`

	// Server timeouts (Go duration strings).
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// RotationConfig overrides the built-in roster. Empty fields keep defaults.
type RotationConfig struct {
	Names  []string `json:"names,omitempty"`
	Ranges []string `json:"ranges,omitempty"`
	Anchor string   `json:"anchor,omitempty"`
	// PinnedWeekday is the weekday (Monday=0) on which the anchor gets the
	// first range. Default 2 (Wednesday).
	PinnedWeekday *int `json:"pinned_weekday,omitempty"`
}

type SchedulerConfig struct {
	// Enabled defaults to true when omitted.
	Enabled     *bool  `json:"enabled,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	HistorySize int    `json:"history_size,omitempty"`

	DailyPoll DailyPollConfig `json:"daily_poll"`
}

// DailyPollConfig describes when the poll is posted.
//
// By default the poll fires at start_at + k*every. Setting schedule (cron,
// "@every 24h", "55m") replaces the anchored trigger.
type DailyPollConfig struct {
	StartAt  string `json:"start_at,omitempty"` // "2006-01-02 15:04:05" in scheduler timezone
	Every    string `json:"every,omitempty"`    // Go duration, default "24h"
	Schedule string `json:"schedule,omitempty"`
	Timeout  string `json:"timeout,omitempty"` // default "30s"
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data/cevshenbot" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
