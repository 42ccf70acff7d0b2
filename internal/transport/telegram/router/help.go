package router

import (
	"sort"
	"strings"

	"cevshenbot/pkg/tgui"
)

// helpText renders help in Telegram HTML parse mode.
func (m *CommandManager) helpText(args []string) tgui.H {
	if len(args) > 0 {
		word := strings.ToLower(strings.TrimPrefix(args[0], "/"))
		c, ok := m.lookup(word)
		if !ok {
			return tgui.Lines(tgui.B("Unknown command"), "Type "+tgui.Code("/help")+" to list commands.")
		}
		return helpCommandHTML(c)
	}

	m.mu.RLock()
	names := make([]string, 0, len(m.cmds))
	for n := range m.cmds {
		names = append(names, n)
	}
	cmds := m.cmds
	m.mu.RUnlock()
	sort.Strings(names)

	lines := []tgui.H{tgui.B("Commands")}
	for _, n := range names {
		line := tgui.Esc("/" + n)
		if d := strings.TrimSpace(cmds[n].Description); d != "" {
			line += tgui.Esc(" - " + d)
		}
		lines = append(lines, line)
	}
	lines = append(lines, "", "Type "+tgui.Code("/help <command>")+" for details.")
	return tgui.Lines(lines...)
}

func helpCommandHTML(c *Command) tgui.H {
	lines := []tgui.H{tgui.B("/" + c.Name)}
	if d := strings.TrimSpace(c.Description); d != "" {
		lines = append(lines, tgui.Esc(d))
	}
	if u := strings.TrimSpace(c.Usage); u != "" {
		lines = append(lines, "", tgui.B("Usage"), tgui.Code(u))
	}
	if len(c.Aliases) > 0 {
		al := make([]tgui.H, 0, len(c.Aliases))
		for _, a := range c.Aliases {
			al = append(al, tgui.Esc("/"+a))
		}
		lines = append(lines, "", tgui.B("Aliases")+" "+tgui.JoinH(", ", al...))
	}
	return tgui.Lines(lines...)
}
