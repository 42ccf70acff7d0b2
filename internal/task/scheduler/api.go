package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "cevshenbot/pkg/logx"
)

// AddAnchored registers job to fire at start + k*every. Registering a name
// again replaces the previous schedule.
func (s *Service) AddAnchored(name string, start time.Time, every, timeout time.Duration, job Job) (string, error) {
	a, err := NewAnchored(start, every)
	if err != nil {
		return "", err
	}
	return s.add(scheduleDef{name: name, spec: a.String(), sched: a, timeout: timeout, job: job})
}

// AddSchedule parses schedule and registers either a cron or interval task.
//
// Supported schedule formats:
//   - Cron: "0 9 * * *", "@daily", "@every 24h"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job Job) (string, error) {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return "", err
	}
	switch ps.Kind {
	case SpecCron:
		return s.AddCron(name, ps.Cron, timeout, job)
	case SpecInterval:
		return s.AddInterval(name, ps.Every, timeout, job)
	default:
		return "", fmt.Errorf("unsupported schedule kind")
	}
}

func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) (string, error) {
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return "", fmt.Errorf("cron spec %q: %w", spec, err)
	}
	return s.add(scheduleDef{name: name, spec: spec, sched: sched, timeout: timeout, job: job})
}

func (s *Service) AddInterval(name string, every, timeout time.Duration, job Job) (string, error) {
	if every <= 0 {
		return "", errors.New("interval must be > 0")
	}
	// sched stays nil so registerLocked anchors the first fire at register time.
	return s.add(scheduleDef{name: name, spec: "@every " + every.String(), timeout: timeout, job: job})
}

func (s *Service) add(d scheduleDef) (string, error) {
	d.name = strings.TrimSpace(d.name)
	if d.name == "" {
		return "", errors.New("name required")
	}
	if d.job == nil {
		return "", errors.New("job required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Upsert by name so hot reloads never duplicate a schedule.
	_ = s.removeLocked(d.name)
	s.defs = append(s.defs, d)
	if s.c == nil {
		// Not started yet: armed by Start().
		return d.name, nil
	}
	def := &s.defs[len(s.defs)-1]
	s.registerLocked(def)
	fields := []logx.Field{logx.String("name", def.name), logx.String("spec", def.spec), logx.Duration("timeout", def.timeout)}
	if next := s.c.Entry(def.entryID).Next; !next.IsZero() {
		fields = append(fields, logx.Time("next", next))
	}
	s.log.Info("schedule registered", fields...)
	return def.name, nil
}

// Remove unschedules all schedules with the given name. It returns true if
// something was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	removed := s.removeLocked(strings.TrimSpace(name))
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// removeLocked drops defs matching name and unregisters them from cron.
// Call with s.mu held.
func (s *Service) removeLocked(name string) bool {
	if name == "" {
		return false
	}
	removed := false
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

// registerLocked arms d on the running cron. Call with s.mu held.
func (s *Service) registerLocked(d *scheduleDef) {
	sched := d.sched
	if sched == nil && strings.HasPrefix(d.spec, "@every ") {
		every, err := time.ParseDuration(strings.TrimPrefix(d.spec, "@every "))
		if err == nil && every > 0 {
			sched, d.offset = newIntervalSchedule(d.name, every, time.Now().In(s.loc))
		}
	}
	if sched == nil {
		s.log.Error("schedule has no trigger", logx.String("name", d.name), logx.String("spec", d.spec))
		return
	}
	d.entryID = s.c.Schedule(sched, s.wrap(d.name, d.timeout, d.job))
	if d.offset > 0 {
		s.log.Debug("interval offset", logx.String("name", d.name), logx.Duration("offset", d.offset))
	}
}

// NextRuns previews the next n fire times of a named schedule.
func (s *Service) NextRuns(name string, n int) []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	for _, d := range s.defs {
		if d.name != name {
			continue
		}
		var sched cron.Schedule = d.sched
		if sched == nil {
			if s.c == nil || d.entryID == 0 {
				return nil
			}
			sched = s.c.Entry(d.entryID).Schedule
		}
		out := make([]time.Time, 0, n)
		t := time.Now().In(loc)
		for i := 0; i < n; i++ {
			t = sched.Next(t)
			if t.IsZero() {
				break
			}
			out = append(out, t)
		}
		return out
	}
	return nil
}
