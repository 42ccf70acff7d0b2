package router

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	kit "cevshenbot/internal/transport"
	logx "cevshenbot/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	texts []string
	menu  []kit.BotCommand
	sent  chan string
}

func newFakeAdapter() *fakeAdapter { return &fakeAdapter{sent: make(chan string, 16)} }

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	f.sent <- text
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func (f *fakeAdapter) SendPoll(_ context.Context, to kit.ChatTarget, _ kit.PollRequest) (kit.MessageRef, error) {
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 2}, nil
}

func (f *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	f.menu = cmds
	f.mu.Unlock()
	return nil
}

func textUpdate(chatID int64, text string, group bool) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: chatID, Text: text, IsGroup: group, FromID: 7}}
}

func waitText(t *testing.T, f *fakeAdapter) string {
	t.Helper()
	select {
	case s := <-f.sent:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
		return ""
	}
}

func startManager(t *testing.T, cmds []Command) (*fakeAdapter, chan kit.Update) {
	t.Helper()
	f := newFakeAdapter()
	m := NewCommandManager(logx.Nop(), f)
	m.SetRegistry(context.Background(), cmds)

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 8)
	done := make(chan struct{})
	go func() {
		_ = m.DispatchLoop(ctx, updates)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return f, updates
}

func echoCommand() Command {
	return Command{
		Name:        "echo",
		Aliases:     []string{"e"},
		Description: "repeat the arguments",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, req.Command+":"+strings.Join(req.Args, "|"), nil)
		},
	}
}

func TestDispatchRoutesCommands(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		text string
		want string
	}{
		{"plain", "/echo a b", "echo:a|b"},
		{"alias", "/e x", "echo:x"},
		{"bot suffix", "/echo@cevshen_bot hi", "echo:hi"},
		{"case insensitive", "/ECHO", "echo:"},
		{"quoted", `/echo "a b" c`, "echo:a b|c"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f, updates := startManager(t, []Command{echoCommand()})
			updates <- textUpdate(1, tc.text, false)
			if got := waitText(t, f); got != tc.want {
				t.Fatalf("reply = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestUnknownCommandRepliesOnlyInPrivate(t *testing.T) {
	t.Parallel()
	f, updates := startManager(t, []Command{echoCommand()})

	updates <- textUpdate(-100, "/nope", true)
	updates <- textUpdate(-100, "just chatting", true)
	updates <- textUpdate(5, "/nope", false)

	if got := waitText(t, f); got != "unknown command. try /help" {
		t.Fatalf("reply = %q", got)
	}
	select {
	case s := <-f.sent:
		t.Fatalf("unexpected extra reply %q", s)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHelpListsCommandsAndPushesMenu(t *testing.T) {
	t.Parallel()
	f, updates := startManager(t, []Command{echoCommand()})

	updates <- textUpdate(1, "/help", false)
	got := waitText(t, f)
	for _, want := range []string{"/echo - repeat the arguments", "/help - show available commands"} {
		if !strings.Contains(got, want) {
			t.Fatalf("help missing %q:\n%s", want, got)
		}
	}

	updates <- textUpdate(1, "/help e", false)
	if got := waitText(t, f); !strings.Contains(got, "<b>/echo</b>") || !strings.Contains(got, "/e") {
		t.Fatalf("command help = %q", got)
	}

	f.mu.Lock()
	menu := f.menu
	f.mu.Unlock()
	want := []kit.BotCommand{
		{Command: "echo", Description: "repeat the arguments"},
		{Command: "help", Description: "show available commands"},
	}
	if !reflect.DeepEqual(menu, want) {
		t.Fatalf("menu = %+v, want %+v", menu, want)
	}
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	t.Parallel()
	boom := Command{
		Name: "boom",
		Handle: func(context.Context, *Request) error {
			panic("kaboom")
		},
	}
	f, updates := startManager(t, []Command{boom, echoCommand()})

	updates <- textUpdate(1, "/boom", false)
	updates <- textUpdate(1, "/echo still alive", false)
	got := map[string]bool{waitText(t, f): true, waitText(t, f): true}
	for _, want := range []string{"/boom failed, try again later", "echo:still|alive"} {
		if !got[want] {
			t.Fatalf("replies = %v, missing %q", got, want)
		}
	}
}

func TestFailedCommandTellsTheChat(t *testing.T) {
	t.Parallel()
	slow := Command{
		Name:    "slow",
		Timeout: 10 * time.Millisecond,
		Handle: func(ctx context.Context, _ *Request) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	f, updates := startManager(t, []Command{slow})

	updates <- textUpdate(1, "/slow", false)
	if got := waitText(t, f); got != "/slow timed out" {
		t.Fatalf("reply = %q", got)
	}
}

func TestTokenizeCommandLine(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"/week", []string{"/week"}},
		{"/week  14 ", []string{"/week", "14"}},
		{`/x "a b" 'c d'`, []string{"/x", "a b", "c d"}},
		{`/x a\ b`, []string{"/x", "a b"}},
	}
	for _, tc := range cases {
		if got := tokenizeCommandLine(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("tokenizeCommandLine(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeTelegramCommand(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"today":                 "today",
		"Week-Ahead":            "week_ahead",
		"  status ":             "status",
		"a--b":                  "a_b",
		"7days":                 "cmd_7days",
		"!!!":                   "",
		strings.Repeat("x", 40): strings.Repeat("x", 32),
	}
	for in, want := range cases {
		if got := sanitizeTelegramCommand(in); got != want {
			t.Errorf("sanitizeTelegramCommand(%q) = %q, want %q", in, got, want)
		}
	}
}
