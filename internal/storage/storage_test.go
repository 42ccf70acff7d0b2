package storage

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	logx "cevshenbot/pkg/logx"
)

func openTestStore(t *testing.T, driver string) Store {
	t.Helper()
	ext := ".db"
	if driver == "file" {
		ext = ".json"
	}
	st, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), "bot"+ext)}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s) = %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", d, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected error for file driver without a path")
	}
}

func TestStoreDrivers(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			st := openTestStore(t, driver)

			if _, ok, err := st.TargetChat(ctx); err != nil || ok {
				t.Fatalf("TargetChat() on empty store = ok:%v err:%v", ok, err)
			}
			if err := st.SetTargetChat(ctx, -1002394763684); err != nil {
				t.Fatalf("SetTargetChat() = %v", err)
			}
			id, ok, err := st.TargetChat(ctx)
			if err != nil || !ok || id != -1002394763684 {
				t.Fatalf("TargetChat() = %d, %v, %v", id, ok, err)
			}

			base := time.Date(2025, time.April, 9, 9, 0, 0, 0, time.UTC)
			for i := 0; i < 3; i++ {
				err := st.AppendPoll(ctx, PollRecord{
					ChatID:  id,
					Title:   base.AddDate(0, 0, i).Format("January 02"),
					Options: []string{"Sultan 1-15", "Muhit 16-30"},
					Trigger: "schedule",
					SentAt:  base.AddDate(0, 0, i),
				})
				if err != nil {
					t.Fatalf("AppendPoll(%d) = %v", i, err)
				}
			}

			recent, err := st.RecentPolls(ctx, 2)
			if err != nil {
				t.Fatalf("RecentPolls() = %v", err)
			}
			if len(recent) != 2 {
				t.Fatalf("RecentPolls() len = %d, want 2", len(recent))
			}
			if recent[0].Title != "April 11" || recent[1].Title != "April 10" {
				t.Fatalf("RecentPolls() order = %q, %q", recent[0].Title, recent[1].Title)
			}
			if recent[0].ID == "" {
				t.Fatal("record id was not assigned")
			}
			if !reflect.DeepEqual(recent[0].Options, []string{"Sultan 1-15", "Muhit 16-30"}) {
				t.Fatalf("Options = %q", recent[0].Options)
			}
			if !recent[0].SentAt.Equal(base.AddDate(0, 0, 2)) {
				t.Fatalf("SentAt = %v", recent[0].SentAt)
			}
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := Config{Driver: "file", Path: filepath.Join(t.TempDir(), "state", "bot.json")}

	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	if err := st.SetTargetChat(ctx, 42); err != nil {
		t.Fatalf("SetTargetChat() = %v", err)
	}
	if err := st.AppendPoll(ctx, PollRecord{ChatID: 42, Title: "April 09", Options: []string{"a", "b"}}); err != nil {
		t.Fatalf("AppendPoll() = %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	st, err = Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen = %v", err)
	}
	defer st.Close()
	if id, ok, _ := st.TargetChat(ctx); !ok || id != 42 {
		t.Fatalf("TargetChat() after reopen = %d, %v", id, ok)
	}
	recent, _ := st.RecentPolls(ctx, 0)
	if len(recent) != 1 || recent[0].Title != "April 09" {
		t.Fatalf("RecentPolls() after reopen = %+v", recent)
	}
}

func TestLoadMigrationsOrdersByVersion(t *testing.T) {
	t.Parallel()
	ms, err := loadMigrations(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("loadMigrations() = %v", err)
	}
	if len(ms) < 2 {
		t.Fatalf("got %d migrations", len(ms))
	}
	for i := 1; i < len(ms); i++ {
		if ms[i-1].Version >= ms[i].Version {
			t.Fatalf("migrations out of order: %v then %v", ms[i-1].Version, ms[i].Version)
		}
	}
}
