package rotation

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	DefaultNames  = []string{"Sultan", "Muhit", "Rustem", "Shadiar", "Dias", "Daniel", "Kuanysh"}
	DefaultRanges = []string{"1-15", "16-30", "31-45", "46-60", "61-75", "76-90", "91-100 + dua"}
)

const (
	DefaultAnchor = "Sultan"
	// DefaultPinnedWeekday is Wednesday in Monday=0 numbering.
	DefaultPinnedWeekday = 2

	TitleLayout = "January 02"

	// Telegram Bot API limits for sendPoll options.
	MinPollOptions  = 2
	MaxPollOptions  = 10
	MaxOptionLength = 100
)

var (
	ErrEmptyRoster       = errors.New("rotation: roster is empty")
	ErrLengthMismatch    = errors.New("rotation: names and ranges differ in length")
	ErrDuplicateName     = errors.New("rotation: duplicate name")
	ErrAnchorNotInRoster = errors.New("rotation: anchor is not in the roster")
	ErrBadWeekday        = errors.New("rotation: pinned weekday must be within 0..6")
	ErrRosterSize        = fmt.Errorf("rotation: roster must have %d to %d names", MinPollOptions, MaxPollOptions)
	ErrOptionTooLong     = fmt.Errorf("rotation: poll option longer than %d characters", MaxOptionLength)
)

// Config describes a roster. Zero-valued fields take the defaults.
// PinnedWeekday is a pointer so that Monday (0) can be pinned explicitly.
type Config struct {
	Names         []string
	Ranges        []string
	Anchor        string
	PinnedWeekday *int
}

type Assignment struct {
	Name  string
	Range string
}

func (a Assignment) String() string { return a.Name + " " + a.Range }

// Poll is the rendered rotation for one date.
type Poll struct {
	Date        time.Time
	Title       string
	Options     []string
	Assignments []Assignment
}

// Calculator is immutable after New. Safe for concurrent use.
type Calculator struct {
	names     []string
	ranges    []string
	anchor    string
	anchorIdx int
	pinned    int
}

func New(cfg Config) (*Calculator, error) {
	names := cfg.Names
	if len(names) == 0 {
		names = DefaultNames
	}
	ranges := cfg.Ranges
	if len(ranges) == 0 {
		ranges = DefaultRanges
	}
	anchor := strings.TrimSpace(cfg.Anchor)
	if anchor == "" {
		anchor = DefaultAnchor
	}
	pinned := DefaultPinnedWeekday
	if cfg.PinnedWeekday != nil {
		pinned = *cfg.PinnedWeekday
	}

	if len(names) == 0 {
		return nil, ErrEmptyRoster
	}
	if len(names) != len(ranges) {
		return nil, fmt.Errorf("%w: %d names, %d ranges", ErrLengthMismatch, len(names), len(ranges))
	}
	if len(names) < MinPollOptions || len(names) > MaxPollOptions {
		return nil, fmt.Errorf("%w: got %d", ErrRosterSize, len(names))
	}
	if pinned < 0 || pinned > 6 {
		return nil, fmt.Errorf("%w: got %d", ErrBadWeekday, pinned)
	}

	seen := make(map[string]struct{}, len(names))
	anchorIdx := -1
	for i, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, fmt.Errorf("rotation: name at position %d is empty", i)
		}
		// Any name can land on any range, so pair it with the longest one.
		if opt := n + " " + longest(ranges); utf8.RuneCountInString(opt) > MaxOptionLength {
			return nil, fmt.Errorf("%w: %q", ErrOptionTooLong, opt)
		}
		if _, dup := seen[n]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, n)
		}
		seen[n] = struct{}{}
		if n == anchor {
			anchorIdx = i
		}
	}
	if anchorIdx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrAnchorNotInRoster, anchor)
	}

	c := &Calculator{
		names:     make([]string, len(names)),
		ranges:    append([]string(nil), ranges...),
		anchor:    anchor,
		anchorIdx: anchorIdx,
		pinned:    pinned,
	}
	for i, n := range names {
		c.names[i] = strings.TrimSpace(n)
	}
	return c, nil
}

func (c *Calculator) Names() []string  { return append([]string(nil), c.names...) }
func (c *Calculator) Ranges() []string { return append([]string(nil), c.ranges...) }
func (c *Calculator) Anchor() string   { return c.anchor }
func (c *Calculator) Pinned() int      { return c.pinned }

// ISOWeekday maps t to Monday=0 .. Sunday=6.
func ISOWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// Shift is how far the roster is rotated left on date t.
func (c *Calculator) Shift(t time.Time) int {
	n := len(c.names)
	return mod(c.anchorIdx-mod(ISOWeekday(t)-c.pinned, n), n)
}

// Compute renders the poll for t. Only the calendar date in t's location
// matters.
func (c *Calculator) Compute(t time.Time) Poll {
	n := len(c.names)
	shift := c.Shift(t)

	p := Poll{
		Date:        t,
		Title:       t.Format(TitleLayout),
		Options:     make([]string, n),
		Assignments: make([]Assignment, n),
	}
	for i := 0; i < n; i++ {
		a := Assignment{Name: c.names[(shift+i)%n], Range: c.ranges[i]}
		p.Assignments[i] = a
		p.Options[i] = a.String()
	}
	return p
}

// Week returns the polls for days consecutive dates starting at from.
func (c *Calculator) Week(from time.Time, days int) []Poll {
	if days <= 0 {
		days = 7
	}
	out := make([]Poll, 0, days)
	for i := 0; i < days; i++ {
		out = append(out, c.Compute(from.AddDate(0, 0, i)))
	}
	return out
}

// AssignmentOf returns the range assigned to name on t.
func (c *Calculator) AssignmentOf(t time.Time, name string) (string, bool) {
	for _, a := range c.Compute(t).Assignments {
		if strings.EqualFold(a.Name, name) {
			return a.Range, true
		}
	}
	return "", false
}

func longest(ss []string) string {
	var out string
	for _, s := range ss {
		if utf8.RuneCountInString(s) > utf8.RuneCountInString(out) {
			out = s
		}
	}
	return out
}

func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}
