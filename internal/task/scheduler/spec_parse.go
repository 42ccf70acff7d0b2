package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SpecKind tells AddSchedule which trigger to build.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec is a schedule string split into its trigger kind.
//
// Accepted forms:
//   - cron: "0 9 * * *", "@daily", "cron:30 8 * * 1-5"
//   - interval: "24h", "every:12h", "interval:02:30" (HH:MM reads as a duration)
type ParsedSpec struct {
	Kind  SpecKind
	Cron  string
	Every time.Duration
}

var errEmptySchedule = errors.New("schedule required")

// ParseSchedule classifies raw without validating cron fields. Use
// ValidateSchedule for the full check.
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, errEmptySchedule
	}

	if rest, ok := cutPrefixFold(s, "cron:"); ok {
		if rest == "" {
			return ParsedSpec{}, fmt.Errorf("schedule %q: empty cron expression", raw)
		}
		return ParsedSpec{Kind: SpecCron, Cron: rest}, nil
	}
	for _, p := range []string{"every:", "interval:"} {
		if rest, ok := cutPrefixFold(s, p); ok {
			d, err := parseEvery(rest)
			if err != nil {
				return ParsedSpec{}, fmt.Errorf("schedule %q: %w", raw, err)
			}
			return ParsedSpec{Kind: SpecInterval, Every: d}, nil
		}
	}

	// Descriptors and anything with fields go to cron.
	if strings.HasPrefix(s, "@") || len(strings.Fields(s)) > 1 {
		return ParsedSpec{Kind: SpecCron, Cron: s}, nil
	}
	d, err := parseEvery(s)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid schedule %q: want cron like \"0 9 * * *\", HH:MM or a duration like \"24h\"", raw)
	}
	return ParsedSpec{Kind: SpecInterval, Every: d}, nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}

// parseEvery reads a positive interval as "HH:MM" or a Go duration.
func parseEvery(v string) (time.Duration, error) {
	if v == "" {
		return 0, errors.New("interval required")
	}
	var d time.Duration
	if hh, mm, ok := strings.Cut(v, ":"); ok {
		h, herr := strconv.Atoi(hh)
		m, merr := strconv.Atoi(mm)
		if herr != nil || merr != nil || len(mm) != 2 || h < 0 || m < 0 || m > 59 {
			return 0, fmt.Errorf("invalid HH:MM %q", v)
		}
		d = time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
	} else {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return 0, fmt.Errorf("invalid interval %q", v)
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval %q must be positive", v)
	}
	return d, nil
}

// cronParser matches the parser Service uses.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether raw would be accepted by AddSchedule.
func ValidateSchedule(raw string) error {
	ps, err := ParseSchedule(raw)
	if err != nil {
		return err
	}
	if ps.Kind == SpecCron {
		if _, err := cronParser.Parse(ps.Cron); err != nil {
			return fmt.Errorf("cron spec %q: %w", ps.Cron, err)
		}
	}
	return nil
}
