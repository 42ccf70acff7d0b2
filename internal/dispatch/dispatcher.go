package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"cevshenbot/internal/rotation"
	"cevshenbot/internal/storage"
	kit "cevshenbot/internal/transport"
	logx "cevshenbot/pkg/logx"
)

// PollSender is the part of the transport adapter the dispatcher needs.
type PollSender interface {
	SendPoll(ctx context.Context, to kit.ChatTarget, p kit.PollRequest) (kit.MessageRef, error)
}

const (
	TriggerSchedule = "schedule"
	TriggerCommand  = "command"
	TriggerCLI      = "cli"
)

// Result describes one dispatch attempt.
type Result struct {
	Skipped bool
	To      kit.ChatTarget
	Ref     kit.MessageRef
	Poll    rotation.Poll
}

type Option func(*Dispatcher)

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithLocation sets the timezone that decides what "today" is.
func WithLocation(loc *time.Location) Option {
	return func(d *Dispatcher) {
		if loc != nil {
			d.loc.Store(loc)
		}
	}
}

// Dispatcher turns a date into a poll and posts it.
type Dispatcher struct {
	calc   atomic.Pointer[rotation.Calculator]
	loc    atomic.Pointer[time.Location]
	sender PollSender
	target *Target
	store  storage.Store // nil when storage is disabled
	log    logx.Logger
	now    func() time.Time
}

func New(calc *rotation.Calculator, sender PollSender, target *Target, store storage.Store, log logx.Logger, opts ...Option) (*Dispatcher, error) {
	if calc == nil {
		return nil, errors.New("dispatch: calculator is nil")
	}
	if sender == nil {
		return nil, errors.New("dispatch: sender is nil")
	}
	if target == nil {
		target = NewTarget(FallbackChatID)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{
		sender: sender,
		target: target,
		store:  store,
		log:    log,
		now:    time.Now,
	}
	d.calc.Store(calc)
	d.loc.Store(time.Local)
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

func (d *Dispatcher) Target() *Target { return d.target }

func (d *Dispatcher) Calculator() *rotation.Calculator { return d.calc.Load() }

// SetCalculator swaps the roster (config reload). nil is ignored.
func (d *Dispatcher) SetCalculator(c *rotation.Calculator) {
	if c != nil {
		d.calc.Store(c)
	}
}

// SetLocation changes what "today" means (config reload). nil is ignored.
func (d *Dispatcher) SetLocation(loc *time.Location) {
	if loc != nil {
		d.loc.Store(loc)
	}
}

// Today returns the current date in the dispatcher's location.
func (d *Dispatcher) Today() time.Time { return d.now().In(d.loc.Load()) }

// Preview renders the poll for date without sending it.
func (d *Dispatcher) Preview(date time.Time) rotation.Poll { return d.calc.Load().Compute(date) }

// SendToday posts today's poll to the resolved target.
func (d *Dispatcher) SendToday(ctx context.Context) (Result, error) {
	return d.SendFor(ctx, d.Today(), kit.ChatTarget{}, TriggerSchedule)
}

// SendFor posts the poll for date. A non-zero to.ChatID bypasses target
// resolution. A missing target is logged and reported as Skipped with a nil
// error. Platform errors are returned without retry.
func (d *Dispatcher) SendFor(ctx context.Context, date time.Time, to kit.ChatTarget, trigger string) (Result, error) {
	poll := d.calc.Load().Compute(date)
	res := Result{Poll: poll}

	source := "explicit"
	if to.ChatID == 0 {
		to.ChatID, source = d.target.resolve()
	}
	if to.ChatID == 0 {
		d.log.Warn("no chat id available to send the poll", logx.String("title", poll.Title))
		res.Skipped = true
		return res, nil
	}
	res.To = to

	ref, err := d.sender.SendPoll(ctx, to, kit.PollRequest{
		Question:        poll.Title,
		Options:         poll.Options,
		Anonymous:       false,
		MultipleAnswers: false,
	})
	if err != nil {
		return res, fmt.Errorf("send poll: %w", err)
	}
	res.Ref = ref
	d.log.Info("poll sent",
		logx.String("title", poll.Title),
		logx.Int64("chat_id", to.ChatID),
		logx.String("target_source", source),
		logx.String("trigger", trigger),
		logx.Int("message_id", ref.MessageID),
	)

	if d.store != nil {
		rec := storage.PollRecord{
			ChatID:    to.ChatID,
			ThreadID:  to.ThreadID,
			MessageID: ref.MessageID,
			Title:     poll.Title,
			Options:   poll.Options,
			Trigger:   trigger,
			SentAt:    d.now(),
		}
		if err := d.store.AppendPoll(ctx, rec); err != nil {
			d.log.Warn("poll record not stored", logx.Err(err))
		}
	}
	return res, nil
}
