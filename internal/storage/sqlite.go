package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/GuiaBolso/darwin"
	_ "modernc.org/sqlite"

	logx "cevshenbot/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const keyTargetChat = "target_chat_id"

// Fixed width so that sent_at sorts lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store ready", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

// migrate applies the embedded migrations/NNN_name.sql files in version order.
func migrate(db *sql.DB) error {
	ms, err := loadMigrations(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	return darwin.New(darwin.NewGenericDriver(db, darwin.SqliteDialect{}), ms, nil).Migrate()
}

func loadMigrations(fsys fs.FS, dir string) ([]darwin.Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	var out []darwin.Migration
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		prefix, desc, ok := strings.Cut(strings.TrimSuffix(name, ".sql"), "_")
		if !ok {
			return nil, fmt.Errorf("migration %q: want NNN_description.sql", name)
		}
		version, err := strconv.ParseFloat(prefix, 64)
		if err != nil {
			return nil, fmt.Errorf("migration %q: bad version: %w", name, err)
		}
		script, err := fs.ReadFile(fsys, dir+"/"+name)
		if err != nil {
			return nil, err
		}
		out = append(out, darwin.Migration{
			Version:     version,
			Description: strings.ReplaceAll(desc, "_", " "),
			Script:      string(script),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) TargetChat(ctx context.Context) (int64, bool, error) {
	if s == nil || s.db == nil {
		return 0, false, ErrDisabled
	}
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, keyTargetChat).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("stored target chat %q: %w", v, err)
	}
	return id, id != 0, nil
}

func (s *sqliteStore) SetTargetChat(ctx context.Context, chatID int64) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv(key, value, updated_at) VALUES(?,?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		keyTargetChat, strconv.FormatInt(chatID, 10), time.Now().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) AppendPoll(ctx context.Context, r PollRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	r = normalize(r)
	opts, err := json.Marshal(r.Options)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO polls(id, chat_id, thread_id, message_id, title, options, trigger, sent_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		r.ID, r.ChatID, r.ThreadID, r.MessageID, r.Title, string(opts), nullStr(r.Trigger),
		r.SentAt.UTC().Format(sqliteTimeLayout),
	)
	return err
}

func (s *sqliteStore) RecentPolls(ctx context.Context, limit int) ([]PollRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, thread_id, message_id, title, options, COALESCE(trigger, ''), sent_at
		 FROM polls ORDER BY sent_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PollRecord
	for rows.Next() {
		var (
			r      PollRecord
			opts   string
			sentAt string
		)
		if err := rows.Scan(&r.ID, &r.ChatID, &r.ThreadID, &r.MessageID, &r.Title, &opts, &r.Trigger, &sentAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(opts), &r.Options); err != nil {
			return nil, fmt.Errorf("poll %s options: %w", r.ID, err)
		}
		if r.SentAt, err = time.Parse(sqliteTimeLayout, sentAt); err != nil {
			return nil, fmt.Errorf("poll %s sent_at: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
