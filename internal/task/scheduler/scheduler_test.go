package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	logx "cevshenbot/pkg/logx"
)

func TestAnchoredScheduleNext(t *testing.T) {
	t.Parallel()
	start := time.Date(2025, time.April, 9, 9, 0, 0, 0, time.UTC)
	a, err := NewAnchored(start, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewAnchored() = %v", err)
	}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before start", start.Add(-72 * time.Hour), start},
		{"at start moves to next day", start, start.Add(24 * time.Hour)},
		{"just after start", start.Add(time.Second), start.Add(24 * time.Hour)},
		{"missed fires are skipped", start.Add(10*24*time.Hour + 3*time.Hour), start.Add(11 * 24 * time.Hour)},
		{"one second before a fire", start.Add(5*24*time.Hour - time.Second), start.Add(5 * 24 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Next(tt.now); !got.Equal(tt.want) {
				t.Fatalf("Next(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestAnchoredScheduleKeepsWallClockAcrossDST(t *testing.T) {
	t.Parallel()
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	start := time.Date(2025, time.March, 25, 9, 0, 0, 0, loc)
	a, _ := NewAnchored(start, 24*time.Hour)
	// DST starts on 2025-03-30 in Berlin.
	got := a.Next(time.Date(2025, time.April, 2, 10, 0, 0, 0, loc))
	want := time.Date(2025, time.April, 3, 9, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("Next() = %v, want %v", got, want)
	}
}

func TestAnchoredScheduleSubDayInterval(t *testing.T) {
	t.Parallel()
	start := time.Date(2025, time.April, 9, 9, 0, 0, 0, time.UTC)
	a, _ := NewAnchored(start, 90*time.Minute)
	if got, want := a.Next(start.Add(100*time.Minute)), start.Add(180*time.Minute); !got.Equal(want) {
		t.Fatalf("Next() = %v, want %v", got, want)
	}
}

func TestNewAnchoredValidates(t *testing.T) {
	t.Parallel()
	if _, err := NewAnchored(time.Time{}, time.Hour); err == nil {
		t.Fatal("expected error for zero start")
	}
	if _, err := NewAnchored(time.Now(), 0); err == nil {
		t.Fatal("expected error for zero interval")
	}
}

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in    string
		kind  SpecKind
		every time.Duration
		err   bool
	}{
		{in: "0 9 * * *", kind: SpecCron},
		{in: "@daily", kind: SpecCron},
		{in: "cron:*/5 * * * *", kind: SpecCron},
		{in: "55m", kind: SpecInterval, every: 55 * time.Minute},
		{in: "02:30", kind: SpecInterval, every: 150 * time.Minute},
		{in: "every:1h", kind: SpecInterval, every: time.Hour},
		{in: "INTERVAL:24:00", kind: SpecInterval, every: 24 * time.Hour},
		{in: "cron:", err: true},
		{in: "every:0:00", err: true},
		{in: "1:5", err: true},
		{in: "", err: true},
		{in: "-5m", err: true},
		{in: "soon", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ps, err := ParseSchedule(tt.in)
			if tt.err {
				if err == nil {
					t.Fatalf("ParseSchedule(%q) = %+v, want error", tt.in, ps)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSchedule(%q) = %v", tt.in, err)
			}
			if ps.Kind != tt.kind || ps.Every != tt.every {
				t.Fatalf("ParseSchedule(%q) = %+v", tt.in, ps)
			}
		})
	}
}

func TestIntervalOffset(t *testing.T) {
	t.Parallel()
	a := intervalOffset("daily_poll", 24*time.Hour)
	if a != intervalOffset("daily_poll", 24*time.Hour) {
		t.Fatal("offset is not stable for the same name")
	}
	if a < 0 || a >= maxIntervalOffset {
		t.Fatalf("offset = %v, want [0, %v)", a, maxIntervalOffset)
	}
	if got := intervalOffset("fast", 5*time.Second); got >= 5*time.Second {
		t.Fatalf("offset = %v, want below the interval", got)
	}

	now := time.Date(2025, 4, 9, 9, 0, 0, 0, time.UTC)
	sched, off := newIntervalSchedule("daily_poll", time.Hour, now)
	first := sched.Next(now)
	if want := now.Add(time.Hour + off); !first.Equal(want) {
		t.Fatalf("first = %v, want %v", first, want)
	}
	if second := sched.Next(first); !second.After(first) {
		t.Fatalf("second = %v, want after %v", second, first)
	}
}

func waitHistory(t *testing.T, s *Service, n int) []HistoryItem {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if h := s.Snapshot().History; len(h) >= n {
			return h
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("history did not reach %d items", n)
	return nil
}

func TestServiceRunsAnchoredJob(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Timezone: "UTC"}, logx.Nop())
	ran := make(chan struct{}, 1)
	_, err := s.AddAnchored("daily_poll", time.Now().Add(50*time.Millisecond), time.Hour, time.Second, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("job context has no deadline")
		}
		ran <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("AddAnchored() = %v", err)
	}
	s.Start(context.Background())
	defer s.Stop(context.Background())

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("anchored job did not run")
	}
	h := waitHistory(t, s, 1)
	if h[0].Name != "daily_poll" || h[0].Err != "" {
		t.Fatalf("history = %+v", h)
	}

	snap := s.Snapshot()
	if !snap.Running || len(snap.Schedules) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if next := snap.Schedules[0].Next; next.Before(time.Now()) {
		t.Fatalf("next run %v is in the past", next)
	}
}

func TestServiceRecordsFailuresAndPanics(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, logx.Nop())
	soon := time.Now().Add(50 * time.Millisecond)
	_, _ = s.AddAnchored("fails", soon, time.Hour, 0, func(ctx context.Context) error { return errors.New("chat not found") })
	_, _ = s.AddAnchored("panics", soon, time.Hour, 0, func(ctx context.Context) error { panic("boom") })
	s.Start(context.Background())
	defer s.Stop(context.Background())

	h := waitHistory(t, s, 2)
	errs := map[string]string{}
	for _, it := range h {
		errs[it.Name] = it.Err
	}
	if errs["fails"] != "chat not found" {
		t.Fatalf("fails err = %q", errs["fails"])
	}
	if errs["panics"] != "panic: boom" {
		t.Fatalf("panics err = %q", errs["panics"])
	}
}

func TestAddUpsertsAndRemove(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, logx.Nop())
	job := func(ctx context.Context) error { return nil }
	if _, err := s.AddSchedule("poll", "0 9 * * *", 0, job); err != nil {
		t.Fatalf("AddSchedule() = %v", err)
	}
	if _, err := s.AddSchedule("poll", "@every 1h", 0, job); err != nil {
		t.Fatalf("AddSchedule() = %v", err)
	}
	if n := len(s.Snapshot().Schedules); n != 1 {
		t.Fatalf("schedules = %d, want 1", n)
	}
	if _, err := s.AddCron("bad", "not a cron", 0, job); err == nil {
		t.Fatal("expected cron parse error")
	}
	if !s.Remove("poll") || s.Remove("poll") {
		t.Fatal("Remove should succeed once")
	}
}

func TestDisabledSchedulerDoesNotStart(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: false}, logx.Nop())
	s.Start(context.Background())
	if s.Snapshot().Running {
		t.Fatal("disabled scheduler must not run")
	}
	s.Stop(context.Background())
}

func TestNextRunsAnchored(t *testing.T) {
	t.Parallel()
	s := New(Config{Timezone: "UTC"}, logx.Nop())
	start := time.Date(2025, time.April, 9, 9, 0, 0, 0, time.UTC)
	_, _ = s.AddAnchored("daily_poll", start, 24*time.Hour, 0, func(ctx context.Context) error { return nil })
	runs := s.NextRuns("daily_poll", 3)
	if len(runs) != 3 {
		t.Fatalf("NextRuns() = %v", runs)
	}
	for i, r := range runs {
		if r.Hour() != 9 || r.Minute() != 0 {
			t.Fatalf("run %d = %v, want 09:00", i, r)
		}
	}
	if runs[1].Sub(runs[0]) != 24*time.Hour {
		t.Fatalf("gap = %v", runs[1].Sub(runs[0]))
	}
}

func TestValidateSchedule(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"0 9 * * *", "@daily", "@every 24h", "55m", "02:30"} {
		if err := ValidateSchedule(in); err != nil {
			t.Errorf("ValidateSchedule(%q) = %v", in, err)
		}
	}
	for _, in := range []string{"", "every tuesday", "61 * * * *", "soon"} {
		if err := ValidateSchedule(in); err == nil {
			t.Errorf("ValidateSchedule(%q) = nil, want error", in)
		}
	}
}
