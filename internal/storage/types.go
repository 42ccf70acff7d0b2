package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file (pure Go driver, darwin migrations)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// PollRecord describes a poll that reached the chat.
// Keep it compact and schema-stable.
type PollRecord struct {
	ID        string    `json:"id"`
	ChatID    int64     `json:"chat_id"`
	ThreadID  int       `json:"thread_id,omitempty"`
	MessageID int       `json:"message_id,omitempty"`
	Title     string    `json:"title"`
	Options   []string  `json:"options"`
	Trigger   string    `json:"trigger,omitempty"` // "schedule" | "command" | "cli"
	SentAt    time.Time `json:"sent_at"`
}
