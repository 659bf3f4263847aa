package jobs

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evcal/internal/calendar"
	"evcal/internal/ics"
	appLog "evcal/internal/log"
	"evcal/internal/store"
)

func TestAddSkipsEmptyAndRejectsBadSchedule(t *testing.T) {
	s := New(time.UTC, time.Second)
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Add("disabled", "  ", noop))
	require.NoError(t, s.Add("prune", "*/30 * * * *", noop))
	assert.Error(t, s.Add("broken", "every tuesday", noop))

	jobs := s.Jobs()
	assert.Len(t, jobs, 1)
	assert.Contains(t, jobs, "prune")
}

func TestSchedulerRunsJobs(t *testing.T) {
	s := New(time.UTC, time.Second)
	var runs atomic.Int32
	require.NoError(t, s.Add("tick", "@every 1s", func(context.Context) error {
		runs.Add(1)
		return nil
	}))

	s.Start()
	assert.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestRunLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	appLog.SetOutput(&buf)

	s := New(time.UTC, time.Second)
	s.run("explode", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok, "runs are bounded by the timeout")
		return errors.New("boom")
	})
	assert.Contains(t, buf.String(), "job failed")
	assert.Contains(t, buf.String(), "job=explode")
}

func TestBackupJob(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Seed(ctx, st, store.SeedEvents(time.UTC)))

	dir := t.TempDir()
	require.NoError(t, Backup(st, dir, 2)(ctx))

	names, err := store.ListBackups(dir)
	require.NoError(t, err)
	assert.Len(t, names, 1)
}

func TestPruneSessionsJob(t *testing.T) {
	sessions := calendar.NewSessions(time.UTC)
	sessions.Current("a")
	sessions.Current("b")

	require.NoError(t, PruneSessions(sessions, time.Hour)(context.Background()))
	assert.Equal(t, 2, sessions.Len())

	// A negative idle window treats every session as expired.
	require.NoError(t, PruneSessions(sessions, -time.Hour)(context.Background()))
	assert.Equal(t, 0, sessions.Len())
}

func TestImportJobWithoutSources(t *testing.T) {
	im := ics.NewImporter(store.NewMemory(), ics.NewFetcher(t.TempDir()), nil, time.UTC)
	assert.NoError(t, Import(im)(context.Background()))
}
