package logx

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	kit "cevshenbot/internal/transport"
)

type sentLine struct {
	to   kit.ChatTarget
	text string
	mode string
}

type fakeSender struct{ out chan sentLine }

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.out <- sentLine{to: to, text: text, mode: opt.ParseMode}
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func TestFormatLogLine(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "fields sorted and escaped",
			in:   `{"level":"warn","time":"t","message":"poll <failed>","chat":-100,"err":"a&b"}`,
			want: "<b>WARN</b> poll &lt;failed&gt;\n<code>chat</code>=-100\n<code>err</code>=a&amp;b",
		},
		{name: "not json", in: "plain <text>\n", want: "plain &lt;text&gt;"},
		{name: "no level", in: `{"message":"hi"}`, want: "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatLogLine([]byte(tt.in)); got != tt.want {
				t.Fatalf("formatLogLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCloseTruncatedCutsAtLine(t *testing.T) {
	t.Parallel()
	if got := closeTruncated("aaaa\nbbbb\ncccc", 7); got != "aaaa\n…" {
		t.Fatalf("closeTruncated() = %q", got)
	}
	if got := closeTruncated("short", 7); got != "short" {
		t.Fatalf("closeTruncated() = %q", got)
	}
}

func TestWriterLoggerFiltersLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "dispatch"))
	log.Debug("hidden")
	log.Info("shown", Int("day", 3))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked: %s", out)
	}
	for _, want := range []string{`"message":"shown"`, `"comp":"dispatch"`, `"day":3`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %s missing %s", out, want)
		}
	}
}

func TestNopLogger(t *testing.T) {
	t.Parallel()
	var zero Logger
	if !zero.IsZero() || Nop().IsZero() {
		t.Fatal("IsZero mismatch")
	}
	zero.Error("dropped")
	Nop().With(Err(nil)).Warn("dropped")
}

func TestTelegramSinkForwardsWarnings(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{out: make(chan sentLine, 4)}
	svc, log := New(Config{
		Level:    "debug",
		Telegram: TelegramConfig{Enabled: true, MinLevel: "warn", RatePerSec: 10, ThreadID: 5},
	}, sender)
	svc.SetTelegramTarget(-42, 0)
	defer func() { _ = svc.Close() }()

	log.Info("quiet")
	log.Warn("poll failed", String("name", "Sultan"))

	select {
	case got := <-sender.out:
		if got.to.ChatID != -42 || got.to.ThreadID != 5 {
			t.Fatalf("sent to %+v", got.to)
		}
		if got.mode != "HTML" {
			t.Fatalf("parse mode = %q", got.mode)
		}
		if !strings.HasPrefix(got.text, "<b>WARN</b> poll failed") || !strings.Contains(got.text, "<code>name</code>=Sultan") {
			t.Fatalf("text = %q", got.text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("warning was not forwarded")
	}
}
