package dispatch

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"cevshenbot/internal/rotation"
	"cevshenbot/internal/storage"
	kit "cevshenbot/internal/transport"
	logx "cevshenbot/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	err   error
	calls []sentPoll
}

type sentPoll struct {
	to kit.ChatTarget
	p  kit.PollRequest
}

func (f *fakeSender) SendPoll(ctx context.Context, to kit.ChatTarget, p kit.PollRequest) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sentPoll{to: to, p: p})
	if f.err != nil {
		return kit.MessageRef{}, f.err
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.calls)}, nil
}

type memStore struct {
	storage.Store
	polls []storage.PollRecord
	err   error
}

func (m *memStore) AppendPoll(ctx context.Context, r storage.PollRecord) error {
	if m.err != nil {
		return m.err
	}
	m.polls = append(m.polls, r)
	return nil
}

var wednesday = time.Date(2025, time.April, 9, 9, 0, 0, 0, time.UTC)

func newTestDispatcher(t *testing.T, s PollSender, target *Target, st storage.Store, log logx.Logger) *Dispatcher {
	t.Helper()
	calc, err := rotation.New(rotation.Config{})
	if err != nil {
		t.Fatalf("rotation.New() = %v", err)
	}
	d, err := New(calc, s, target, st, log,
		WithClock(func() time.Time { return wednesday }),
		WithLocation(time.UTC),
	)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	return d
}

func TestSendTodayPostsRegularPoll(t *testing.T) {
	t.Parallel()
	s := &fakeSender{}
	d := newTestDispatcher(t, s, NewTarget(FallbackChatID), nil, logx.Nop())

	res, err := d.SendToday(context.Background())
	if err != nil {
		t.Fatalf("SendToday() = %v", err)
	}
	if res.Skipped {
		t.Fatal("unexpected skip")
	}
	if len(s.calls) != 1 {
		t.Fatalf("sends = %d, want 1", len(s.calls))
	}
	got := s.calls[0]
	if got.to.ChatID != FallbackChatID {
		t.Fatalf("chat = %d, want fallback", got.to.ChatID)
	}
	if got.p.Question != "April 09" || got.p.Anonymous || got.p.MultipleAnswers {
		t.Fatalf("poll = %+v", got.p)
	}
	if len(got.p.Options) != 7 || got.p.Options[0] != "Sultan 1-15" {
		t.Fatalf("options = %q", got.p.Options)
	}
}

func TestSendTodaySkipsWithoutTarget(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	s := &fakeSender{}
	d := newTestDispatcher(t, s, NewTarget(0), nil, logx.NewWriter(&buf, "debug"))

	res, err := d.SendToday(context.Background())
	if err != nil {
		t.Fatalf("SendToday() = %v", err)
	}
	if !res.Skipped {
		t.Fatal("expected skip")
	}
	if len(s.calls) != 0 {
		t.Fatalf("sends = %d, want 0", len(s.calls))
	}
	out := buf.String()
	if !strings.Contains(out, "no chat id available to send the poll") || !strings.Contains(out, `"level":"warn"`) {
		t.Fatalf("missing warning in log: %s", out)
	}
}

func TestSendForExplicitTargetWins(t *testing.T) {
	t.Parallel()
	s := &fakeSender{}
	target := NewTarget(FallbackChatID)
	target.Override(-100)
	d := newTestDispatcher(t, s, target, nil, logx.Nop())

	res, err := d.SendFor(context.Background(), wednesday.AddDate(0, 0, 1), kit.ChatTarget{ChatID: 77, ThreadID: 3}, TriggerCommand)
	if err != nil {
		t.Fatalf("SendFor() = %v", err)
	}
	if res.To.ChatID != 77 || s.calls[0].to.ThreadID != 3 {
		t.Fatalf("sent to %+v", s.calls[0].to)
	}
	if s.calls[0].p.Options[1] != "Sultan 16-30" {
		t.Fatalf("thursday options = %q", s.calls[0].p.Options)
	}
}

func TestSendTodayWrapsPlatformError(t *testing.T) {
	t.Parallel()
	boom := errors.New("chat not found")
	st := &memStore{}
	d := newTestDispatcher(t, &fakeSender{err: boom}, NewTarget(FallbackChatID), st, logx.Nop())

	_, err := d.SendToday(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("SendToday() = %v, want wrapped %v", err, boom)
	}
	if !strings.HasPrefix(err.Error(), "send poll:") {
		t.Fatalf("error = %q", err)
	}
	if len(st.polls) != 0 {
		t.Fatal("failed send must not be recorded")
	}
}

func TestSendTodayRecordsPoll(t *testing.T) {
	t.Parallel()
	st := &memStore{}
	d := newTestDispatcher(t, &fakeSender{}, NewTarget(FallbackChatID), st, logx.Nop())

	if _, err := d.SendToday(context.Background()); err != nil {
		t.Fatalf("SendToday() = %v", err)
	}
	if len(st.polls) != 1 {
		t.Fatalf("records = %d, want 1", len(st.polls))
	}
	r := st.polls[0]
	if r.ChatID != FallbackChatID || r.Title != "April 09" || r.Trigger != TriggerSchedule || r.MessageID != 1 {
		t.Fatalf("record = %+v", r)
	}
}

func TestStorageErrorDoesNotFailDispatch(t *testing.T) {
	t.Parallel()
	st := &memStore{err: errors.New("disk full")}
	d := newTestDispatcher(t, &fakeSender{}, NewTarget(FallbackChatID), st, logx.Nop())
	if _, err := d.SendToday(context.Background()); err != nil {
		t.Fatalf("SendToday() = %v", err)
	}
}

func TestSetCalculatorSwapsRoster(t *testing.T) {
	t.Parallel()
	s := &fakeSender{}
	d := newTestDispatcher(t, s, NewTarget(FallbackChatID), nil, logx.Nop())
	c, err := rotation.New(rotation.Config{Names: []string{"A", "B"}, Ranges: []string{"1-50", "51-100"}, Anchor: "A"})
	if err != nil {
		t.Fatalf("rotation.New() = %v", err)
	}
	d.SetCalculator(c)
	d.SetCalculator(nil)
	if _, err := d.SendToday(context.Background()); err != nil {
		t.Fatalf("SendToday() = %v", err)
	}
	if got := s.calls[0].p.Options; len(got) != 2 || got[0] != "A 1-50" {
		t.Fatalf("options = %q", got)
	}
}

func TestTargetResolution(t *testing.T) {
	t.Parallel()
	tg := NewTarget(FallbackChatID)
	if tg.Resolve() != FallbackChatID || tg.Source() != SourceFallback {
		t.Fatalf("fallback: %d %s", tg.Resolve(), tg.Source())
	}
	if !tg.Learn(-5) {
		t.Fatal("first Learn should store")
	}
	if tg.Learn(-6) {
		t.Fatal("second Learn must not overwrite")
	}
	if tg.Resolve() != -5 || tg.Source() != SourceLearned {
		t.Fatalf("learned: %d %s", tg.Resolve(), tg.Source())
	}
	tg.Override(-9)
	if tg.Resolve() != -9 || tg.Source() != SourceConfig {
		t.Fatalf("override: %d %s", tg.Resolve(), tg.Source())
	}
	tg.Override(0)
	if tg.Resolve() != -5 {
		t.Fatalf("clearing override: %d", tg.Resolve())
	}

	empty := NewTarget(0)
	if empty.Resolve() != 0 || empty.Source() != SourceNone {
		t.Fatalf("empty: %d %s", empty.Resolve(), empty.Source())
	}
	if empty.Learn(0) {
		t.Fatal("Learn(0) must be ignored")
	}
}

func TestTargetLearnConcurrent(t *testing.T) {
	t.Parallel()
	tg := NewTarget(0)
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 1; i <= 32; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if tg.Learn(id) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(int64(i))
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("Learn won %d times, want 1", wins)
	}
}
