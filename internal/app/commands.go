package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cevshenbot/internal/dispatch"
	"cevshenbot/internal/rotation"
	"cevshenbot/internal/storage"
	"cevshenbot/internal/task/scheduler"
	"cevshenbot/internal/transport/telegram/router"
	logx "cevshenbot/pkg/logx"
)

const (
	defaultWeekDays = 7
	maxWeekDays     = 31
	statusRecent    = 3
	statusTimeFmt   = "2006-01-02 15:04 MST"
)

type snapshotter interface {
	Snapshot() scheduler.Snapshot
}

// botCommands implements the chat commands on top of the dispatcher.
type botCommands struct {
	disp  *dispatch.Dispatcher
	sched snapshotter
	store storage.Store // nil when storage is disabled
	// learn reports whether /start may adopt the requesting chat.
	learn func() bool
	log   logx.Logger
}

func (b *botCommands) commands() []router.Command {
	return []router.Command{
		{
			Name:        "start",
			Description: "post today's poll here",
			Usage:       "/start",
			Handle:      b.start,
		},
		{
			Name:        "today",
			Aliases:     []string{"t"},
			Description: "show today's rotation",
			Usage:       "/today [name]",
			Handle:      b.today,
		},
		{
			Name:        "week",
			Aliases:     []string{"w"},
			Description: "show the rotation for the coming days",
			Usage:       "/week [days]",
			Handle:      b.week,
		},
		{
			Name:        "status",
			Description: "show schedule and delivery state",
			Usage:       "/status",
			Timeout:     10 * time.Second,
			Handle:      b.status,
		},
	}
}

// start posts today's poll to the requesting chat. Only a group can become
// the learned target; a direct message never claims the daily poll.
func (b *botCommands) start(ctx context.Context, req *router.Request) error {
	if req.IsGroup && (b.learn == nil || b.learn()) {
		b.learnTarget(ctx, req.Chat.ChatID, req.Logger)
	}
	_, err := b.disp.SendFor(ctx, b.disp.Today(), req.Chat, dispatch.TriggerCommand)
	return err
}

func (b *botCommands) learnTarget(ctx context.Context, chatID int64, log logx.Logger) {
	if !b.disp.Target().Learn(chatID) {
		return
	}
	log.Info("target chat learned", logx.Int64("target_chat_id", chatID))
	if b.store == nil {
		return
	}
	if err := b.store.SetTargetChat(ctx, chatID); err != nil {
		log.Warn("target chat not persisted", logx.Err(err))
	}
}

func (b *botCommands) today(ctx context.Context, req *router.Request) error {
	now := b.disp.Today()
	if len(req.Args) > 0 {
		name := strings.Join(req.Args, " ")
		r, ok := b.disp.Calculator().AssignmentOf(now, name)
		if !ok {
			return req.Reply(ctx, fmt.Sprintf("%q is not in the rotation", name), nil)
		}
		return req.Reply(ctx, fmt.Sprintf("%s: %s (%s)", name, r, now.Format(rotation.TitleLayout)), nil)
	}
	return req.Reply(ctx, formatPoll(b.disp.Preview(now)), nil)
}

func (b *botCommands) week(ctx context.Context, req *router.Request) error {
	days := defaultWeekDays
	if len(req.Args) > 0 {
		n, err := strconv.Atoi(req.Args[0])
		if err != nil || n < 1 || n > maxWeekDays {
			return req.Reply(ctx, fmt.Sprintf("usage: /week [1-%d]", maxWeekDays), nil)
		}
		days = n
	}
	polls := b.disp.Calculator().Week(b.disp.Today(), days)
	parts := make([]string, 0, len(polls))
	for _, p := range polls {
		parts = append(parts, formatPoll(p))
	}
	return req.Reply(ctx, strings.Join(parts, "\n\n"), nil)
}

func (b *botCommands) status(ctx context.Context, req *router.Request) error {
	var sb strings.Builder
	t := b.disp.Target()
	fmt.Fprintf(&sb, "target: %d (%s)\n", t.Resolve(), t.Source())

	if b.sched != nil {
		snap := b.sched.Snapshot()
		state := "stopped"
		switch {
		case !snap.Enabled:
			state = "disabled"
		case snap.Running:
			state = "running"
		}
		fmt.Fprintf(&sb, "scheduler: %s, tz %s\n", state, snap.Timezone)
		for _, s := range snap.Schedules {
			fmt.Fprintf(&sb, "- %s [%s]", s.Name, s.Spec)
			if !s.Next.IsZero() {
				fmt.Fprintf(&sb, " next %s", s.Next.Format(statusTimeFmt))
			}
			sb.WriteByte('\n')
		}
		if len(snap.History) > 0 {
			h := snap.History[0]
			res := "ok"
			if h.Err != "" {
				res = h.Err
			}
			fmt.Fprintf(&sb, "last run: %s at %s: %s\n", h.Name, h.Started.Format(statusTimeFmt), res)
		}
	}

	if b.store != nil {
		recs, err := b.store.RecentPolls(ctx, statusRecent)
		if err != nil {
			req.Logger.Warn("recent polls unavailable", logx.Err(err))
		}
		for _, r := range recs {
			fmt.Fprintf(&sb, "sent: %s to %d (%s) at %s\n", r.Title, r.ChatID, r.Trigger, r.SentAt.Format(statusTimeFmt))
		}
	}
	return req.Reply(ctx, strings.TrimRight(sb.String(), "\n"), nil)
}

func formatPoll(p rotation.Poll) string {
	return p.Title + "\n" + strings.Join(p.Options, "\n")
}
