package adapter

import (
	"context"
	"hash/fnv"

	tele "gopkg.in/telebot.v4"

	kit "cevshenbot/internal/transport"
	logx "cevshenbot/pkg/logx"
)

// UpdateMenuCommands updates Telegram's command list (setMyCommands).
// It only performs a network call when the list changed since the last call.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h := fnv.New64a()
	out := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if len(d) > 256 {
			d = d[:256]
		}
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(d))
		h.Write([]byte{0})
		out = append(out, tele.Command{Text: c.Command, Description: d})
		if len(out) >= 100 {
			break
		}
	}
	sum := h.Sum64()

	a.runMu.Lock()
	unchanged := sum == a.menuHash
	a.runMu.Unlock()
	if unchanged {
		return nil
	}
	if err := a.bot.SetCommands(out); err != nil {
		return err
	}
	a.runMu.Lock()
	a.menuHash = sum
	a.runMu.Unlock()
	a.log.Info("menu commands updated", logx.Int("count", len(out)))
	return nil
}
