package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	logx "cevshenbot/pkg/logx"
)

// Store is the minimal persistence API used by the dispatcher and the app.
type Store interface {
	// TargetChat returns the learned target chat, ok=false when none was stored.
	TargetChat(ctx context.Context) (chatID int64, ok bool, err error)
	SetTargetChat(ctx context.Context, chatID int64) error

	AppendPoll(ctx context.Context, r PollRecord) error
	// RecentPolls returns at most limit records, newest first.
	RecentPolls(ctx context.Context, limit int) ([]PollRecord, error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// normalize fills the id and timestamp of a record about to be stored.
func normalize(r PollRecord) PollRecord {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.SentAt.IsZero() {
		r.SentAt = time.Now()
	}
	return r
}
