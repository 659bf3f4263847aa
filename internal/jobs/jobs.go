// Package jobs runs the periodic maintenance work: store backups, pruning of
// idle calendar sessions and ICS feed imports.
package jobs

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"evcal/internal/calendar"
	"evcal/internal/ics"
	appLog "evcal/internal/log"
	"evcal/internal/store"
)

// Func is one job run. The context is cancelled when the scheduler stops
// or the run exceeds its timeout.
type Func func(ctx context.Context) error

// cronLogger routes cron's own messages through the app logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}

// Scheduler wraps a cron instance with named jobs. Overlapping runs of the
// same job are skipped and panics are recovered.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	names  map[cron.EntryID]string
}

// New returns a stopped scheduler evaluating schedules in loc. timeout
// bounds every run; zero means five minutes.
func New(loc *time.Location, timeout time.Duration) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	logger := cronLogger{}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		names:   make(map[cron.EntryID]string),
	}
}

// Add registers fn under a standard five-field cron schedule. An empty schedule
// disables the job and is not an error.
func (s *Scheduler) Add(name, schedule string, fn Func) error {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		appLog.Info("job disabled", "job", name)
		return nil
	}
	id, err := s.cron.AddFunc(schedule, func() {
		s.run(name, fn)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.names[id] = name
	s.mu.Unlock()

	appLog.Info("job scheduled", "job", name, "schedule", schedule)
	return nil
}

func (s *Scheduler) run(name string, fn Func) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	started := time.Now()
	if err := fn(ctx); err != nil {
		appLog.Error("job failed", err, "job", name, "elapsed", time.Since(started).String())
		return
	}
	appLog.Debug("job finished", "job", name, "elapsed", time.Since(started).String())
}

// Jobs returns the names of the scheduled jobs with their next run.
func (s *Scheduler) Jobs() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]time.Time, len(s.names))
	for _, e := range s.cron.Entries() {
		if name, ok := s.names[e.ID]; ok {
			out[name] = e.Next
		}
	}
	return out
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return or for ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		appLog.Warn("jobs still running at shutdown")
	}
}

// Backup snapshots st into dir keeping the newest keep files.
func Backup(st store.Store, dir string, keep int) Func {
	return func(ctx context.Context) error {
		_, err := store.WriteBackup(ctx, st, dir, keep, time.Now())
		return err
	}
}

// PruneSessions drops calendar cursors idle for longer than maxIdle.
func PruneSessions(sessions *calendar.Sessions, maxIdle time.Duration) Func {
	return func(context.Context) error {
		n := sessions.Prune(maxIdle)
		if n > 0 {
			appLog.Info("sessions pruned", "count", n, "remaining", sessions.Len())
		}
		return nil
	}
}

// Import runs one feed sync.
func Import(im *ics.Importer) Func {
	return func(ctx context.Context) error {
		_, err := im.Sync(ctx)
		return err
	}
}
