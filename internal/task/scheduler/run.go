package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	logx "cevshenbot/pkg/logx"
)

// wrap turns a Job into a cron.Job that applies the timeout, logs the
// outcome and records history.
func (s *Service) wrap(name string, timeout time.Duration, job Job) cron.Job {
	return cron.FuncJob(func() {
		s.hmu.Lock()
		base := s.runCtx
		s.hmu.Unlock()

		ctx := base
		cancel := context.CancelFunc(func() {})
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(base, timeout)
		}
		defer cancel()

		started := time.Now()
		err := runJob(ctx, job)
		took := time.Since(started)
		s.record(HistoryItem{Name: name, Started: started, Duration: took, Err: errString(err)})

		switch {
		case err == nil:
			s.log.Info("job finished", logx.String("job", name), logx.Duration("took", took))
		case errors.Is(err, context.DeadlineExceeded):
			s.log.Error("job timed out", logx.String("job", name), logx.Duration("timeout", timeout), logx.Err(err))
		default:
			s.log.Error("job failed", logx.String("job", name), logx.Duration("took", took), logx.Err(err))
		}
	})
}

// runJob converts a panic into an error so that it lands in history.
// cron.Recover stays in the chain for anything escaping this wrapper.
func runJob(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job(ctx)
}

func (s *Service) record(it HistoryItem) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	size := s.historySize
	if size <= 0 {
		size = defaultHistorySize
	}
	s.history = append(s.history, it)
	if over := len(s.history) - size; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// cronLogger routes robfig/cron's logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
