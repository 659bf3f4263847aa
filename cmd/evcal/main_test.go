package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evcal/internal/calendar"
	"evcal/internal/config"
	appLog "evcal/internal/log"
	"evcal/internal/store"
)

func TestOpenStoreSeedsOnlyEmptyStores(t *testing.T) {
	ctx := context.Background()
	conf := config.DefaultConfig()
	conf.Store.Driver = config.DriverFile
	conf.Store.Path = filepath.Join(t.TempDir(), "events.json")
	conf.Store.Seed = true

	var buf bytes.Buffer
	appLog.SetOutput(&buf)

	st, err := openStore(ctx, conf, time.UTC)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "path="+conf.Store.Path)
	events, err := st.List(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 3)

	// Reopening the same document must not seed a second time.
	st, err = openStore(ctx, conf, time.UTC)
	require.NoError(t, err)
	events, err = st.List(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 3)

	conf.Store.Driver = config.DriverMemory
	conf.Store.Seed = false
	st, err = openStore(ctx, conf, time.UTC)
	require.NoError(t, err)
	assert.IsType(t, &store.Memory{}, st)
}

func TestRunBackupCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	conf := config.DefaultConfig()
	conf.Store.Driver = config.DriverFile
	conf.Store.Path = filepath.Join(dir, "events.json")
	conf.Store.Seed = true
	conf.Backup.Dir = filepath.Join(dir, "backup")
	require.NoError(t, conf.Save(cfgPath))

	require.NoError(t, rootCommand().Run(context.Background(), []string{"evcal", "--config", cfgPath, "backup"}))

	names, err := store.ListBackups(conf.Backup.Dir)
	require.NoError(t, err)
	assert.Len(t, names, 1)
}

func TestNewImporterAndScheduler(t *testing.T) {
	conf := config.DefaultConfig()
	assert.Nil(t, newImporter(conf, store.NewMemory(), time.UTC))

	conf.Imports.Sources = []config.SourceConfig{{ID: "h", URL: "https://example.com/h.ics"}}
	conf.Imports.Refresh = "*/15 * * * *"
	conf.Backup.Cron = "0 3 * * *"
	im := newImporter(conf, store.NewMemory(), time.UTC)
	require.NotNil(t, im)
	assert.Len(t, im.Sources(), 1)

	sched, err := newScheduler(conf, time.UTC, store.NewMemory(), calendar.NewSessions(time.UTC), im)
	require.NoError(t, err)
	jobs := sched.Jobs()
	assert.Contains(t, jobs, "backup")
	assert.Contains(t, jobs, "session-prune")
	assert.Contains(t, jobs, "ics-import")

	conf.Backup.Cron = "not a schedule"
	_, err = newScheduler(conf, time.UTC, store.NewMemory(), calendar.NewSessions(time.UTC), im)
	assert.Error(t, err)
}
