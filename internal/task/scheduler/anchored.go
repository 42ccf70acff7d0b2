package scheduler

import (
	"fmt"
	"time"
)

// AnchoredSchedule fires at Start + k*Every for k >= 0. Next always returns
// the first such time strictly after t, so fires missed while the process
// was down are skipped rather than replayed.
//
// When Every is a whole number of days, steps are calendar days in Start's
// location, keeping the wall clock time across DST changes.
type AnchoredSchedule struct {
	Start time.Time
	Every time.Duration
}

func NewAnchored(start time.Time, every time.Duration) (AnchoredSchedule, error) {
	if start.IsZero() {
		return AnchoredSchedule{}, fmt.Errorf("anchored schedule: start required")
	}
	if every <= 0 {
		return AnchoredSchedule{}, fmt.Errorf("anchored schedule: every must be > 0")
	}
	return AnchoredSchedule{Start: start, Every: every}, nil
}

func (a AnchoredSchedule) Next(t time.Time) time.Time {
	if a.Every <= 0 {
		return time.Time{}
	}
	if t.Before(a.Start) {
		return a.Start
	}
	k := int64(t.Sub(a.Start)/a.Every) + 1

	if a.Every%(24*time.Hour) != 0 {
		return a.Start.Add(time.Duration(k) * a.Every)
	}
	days := int(a.Every / (24 * time.Hour))
	at := func(k int64) time.Time { return a.Start.AddDate(0, 0, int(k)*days) }
	// Calendar stepping may drift an hour from the duration estimate.
	for k > 1 && at(k-1).After(t) {
		k--
	}
	for !at(k).After(t) {
		k++
	}
	return at(k)
}

func (a AnchoredSchedule) String() string {
	return fmt.Sprintf("@anchored %s every %s", a.Start.Format("2006-01-02 15:04:05 MST"), a.Every)
}
