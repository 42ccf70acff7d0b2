package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "cevshenbot/pkg/logx"
)

// Config controls the scheduler service.
type Config struct {
	Enabled     bool
	Timezone    string // IANA TZ, e.g. "Asia/Almaty"
	HistorySize int    // finished runs kept for Snapshot (default 20)
}

type Job func(ctx context.Context) error

type scheduleDef struct {
	name    string
	spec    string        // display form: cron spec, "@every 1h" or "@anchored ..."
	sched   cron.Schedule // set for anchored and interval schedules
	timeout time.Duration
	job     Job

	entryID cron.EntryID
	offset  time.Duration // first-fire offset of interval schedules
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	// hmu guards state touched by running jobs. Never take mu while
	// holding hmu: restartLocked waits for jobs with mu held.
	hmu         sync.Mutex
	runCtx      context.Context // carries values, never cancellation
	historySize int
	history     []HistoryItem // newest last
}

type HistoryItem struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Err      string
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

type Snapshot struct {
	Enabled   bool
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
	History   []HistoryItem // newest first
}
