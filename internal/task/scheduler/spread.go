package scheduler

import (
	"hash/fnv"
	"time"

	"github.com/robfig/cron/v3"
)

const maxIntervalOffset = 30 * time.Second

// offsetSchedule shifts the first fire of an interval by a fixed offset and
// then follows base.
type offsetSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *offsetSchedule) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

// intervalOffset derives a stable offset in [0, min(every, 30s)) from the
// schedule name, so interval jobs registered together do not fire in the
// same second and a restart keeps the same offset.
func intervalOffset(name string, every time.Duration) time.Duration {
	span := min(every, maxIntervalOffset)
	if span <= 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return time.Duration(h.Sum64() % uint64(span))
}

func newIntervalSchedule(name string, every time.Duration, now time.Time) (cron.Schedule, time.Duration) {
	off := intervalOffset(name, every)
	return &offsetSchedule{base: cron.Every(every), first: now.Add(every + off)}, off
}
