package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evcal/internal/model"
)

var phoenix = time.FixedZone("UTC-7", -7*3600)

func fields(title string, start time.Time) model.EventFields {
	return model.EventFields{
		Title:     mo.Some(title),
		StartDate: mo.Some(start),
		EndDate:   mo.Some(start.Add(time.Hour)),
	}
}

func titles(events []model.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Title
	}
	return out
}

// backends runs fn against every Store implementation.
func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory())
	})
	t.Run("file", func(t *testing.T) {
		f, err := OpenFile(filepath.Join(t.TempDir(), "events.json"), phoenix)
		require.NoError(t, err)
		fn(t, f)
	})
}

func TestCreateAssignsUniqueIDs(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		start := time.Date(2025, time.May, 10, 10, 0, 0, 0, phoenix)

		ids := map[string]bool{}
		for i := 0; i < 20; i++ {
			ev, err := s.Create(ctx, fields(fmt.Sprintf("e%d", i), start))
			require.NoError(t, err)
			require.NotEmpty(t, ev.ID)
			assert.False(t, ids[ev.ID], "duplicate id %s", ev.ID)
			ids[ev.ID] = true
			assert.Equal(t, model.DefaultColor, ev.Color)
		}

		got, err := s.Get(ctx, func() string {
			for id := range ids {
				return id
			}
			return ""
		}())
		require.NoError(t, err)
		assert.True(t, ids[got.ID])
	})
}

func TestCreateValidation(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		start := time.Date(2025, time.May, 10, 10, 0, 0, 0, phoenix)

		_, err := s.Create(ctx, fields("ok", start))
		require.NoError(t, err)

		_, err = s.Create(ctx, model.EventFields{Title: mo.Some("no start"), EndDate: mo.Some(start)})
		assert.ErrorIs(t, err, model.ErrValidation)
		_, err = s.Create(ctx, model.EventFields{StartDate: mo.Some(start), EndDate: mo.Some(start)})
		assert.ErrorIs(t, err, model.ErrValidation)

		all, err := s.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestListOrdersByStartThenInsertion(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2025, time.May, 12, 12, 0, 0, 0, phoenix)

		for _, f := range []model.EventFields{
			fields("c", base.Add(2*time.Hour)),
			fields("tie-1", base),
			fields("a", base.Add(-time.Hour)),
			fields("tie-2", base),
			fields("tie-3", base.In(time.UTC)), // same instant, other zone
		} {
			_, err := s.Create(ctx, f)
			require.NoError(t, err)
		}

		all, err := s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "tie-1", "tie-2", "tie-3", "c"}, titles(all))
	})
}

func TestUpdate(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		start := time.Date(2025, time.May, 10, 10, 0, 0, 0, phoenix)

		ev, err := s.Create(ctx, model.EventFields{
			Title:     mo.Some("Team Meeting"),
			StartDate: mo.Some(start),
			EndDate:   mo.Some(start.Add(time.Hour)),
			Location:  mo.Some("Conference Room A"),
			Color:     mo.Some(model.ColorPurple),
		})
		require.NoError(t, err)

		moved := start.AddDate(0, 0, 1)
		updated, err := s.Update(ctx, ev.ID, model.EventFields{
			Title:     mo.Some("Team Sync"),
			StartDate: mo.Some(moved),
			EndDate:   mo.Some(moved.Add(time.Hour)),
		})
		require.NoError(t, err)
		assert.Equal(t, ev.ID, updated.ID)
		assert.Equal(t, "Team Sync", updated.Title)
		assert.Equal(t, "Conference Room A", updated.Location)
		assert.Equal(t, model.ColorPurple, updated.Color)
		assert.True(t, updated.StartDate.Equal(moved))

		got, err := s.Get(ctx, ev.ID)
		require.NoError(t, err)
		assert.Equal(t, "Team Sync", got.Title)

		_, err = s.Update(ctx, "missing", fields("x", start))
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestDeleteTwice(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		start := time.Date(2025, time.May, 15, 23, 59, 59, 0, phoenix)

		keep, err := s.Create(ctx, fields("keep", start))
		require.NoError(t, err)
		gone, err := s.Create(ctx, fields("gone", start))
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, gone.ID))

		all, err := s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"keep"}, titles(all))

		assert.ErrorIs(t, s.Delete(ctx, gone.ID), model.ErrNotFound)
		_, err = s.Get(ctx, gone.ID)
		assert.ErrorIs(t, err, model.ErrNotFound)
		_, err = s.Get(ctx, keep.ID)
		assert.NoError(t, err)
	})
}

func TestConcurrentCreates(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		start := time.Date(2025, time.May, 1, 9, 0, 0, 0, phoenix)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.Create(ctx, fields(fmt.Sprintf("e%d", i), start.Add(time.Duration(i)*time.Minute)))
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		all, err := s.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 10)
	})
}

func TestMemoryRetriesIDCollision(t *testing.T) {
	m := NewMemory()
	ids := []string{"dup", "dup", "fresh"}
	m.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	ctx := context.Background()
	start := time.Date(2025, time.May, 1, 9, 0, 0, 0, phoenix)

	a, err := m.Create(ctx, fields("a", start))
	require.NoError(t, err)
	b, err := m.Create(ctx, fields("b", start))
	require.NoError(t, err)
	assert.Equal(t, "dup", a.ID)
	assert.Equal(t, "fresh", b.ID)
}

func TestSeed(t *testing.T) {
	m := NewMemory()
	require.NoError(t, Seed(context.Background(), m, SeedEvents(phoenix)))

	all, err := m.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Team Meeting", "Lunch with Client", "Project Deadline"}, titles(all))
	assert.Equal(t, model.ColorRed, all[2].Color)
}

func TestFileReloadKeepsIDsAndOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "events.json")
	ctx := context.Background()
	start := time.Date(2025, time.May, 12, 12, 30, 0, 0, phoenix)

	f, err := OpenFile(path, phoenix)
	require.NoError(t, err)
	first, err := f.Create(ctx, fields("first", start))
	require.NoError(t, err)
	_, err = f.Create(ctx, fields("second", start))
	require.NoError(t, err)
	_, err = f.Update(ctx, first.ID, model.EventFields{Description: mo.Some("updated")})
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened, err := OpenFile(path, phoenix)
	require.NoError(t, err)
	all, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second"}, titles(all))
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, "updated", all[0].Description)
	assert.True(t, all[0].StartDate.Equal(start))
}

func TestFilePersistFailureRollsBack(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	start := time.Date(2025, time.May, 10, 10, 0, 0, 0, phoenix)

	f, err := OpenFile(filepath.Join(dir, "events.json"), phoenix)
	require.NoError(t, err)
	ev, err := f.Create(ctx, fields("kept", start))
	require.NoError(t, err)

	// A regular file where the parent directory should be makes writes fail.
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	f.path = filepath.Join(blocker, "events.json")

	_, err = f.Create(ctx, fields("lost", start))
	assert.ErrorIs(t, err, model.ErrStore)
	_, err = f.Update(ctx, ev.ID, model.EventFields{Title: mo.Some("renamed")})
	assert.ErrorIs(t, err, model.ErrStore)
	assert.ErrorIs(t, f.Delete(ctx, ev.ID), model.ErrStore)

	all, err := f.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, titles(all))
}

func TestOpenFileNormalizesTimestampShapes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	doc := `{
  "events": [
    {"id": "wrapped", "title": "Wrapped", "startDate": {"_seconds": 1746892800, "_nanoseconds": 0}, "endDate": {"_seconds": 1746896400, "_nanoseconds": 0}, "color": "red"},
    {"id": "plain-wrapper", "title": "Plain", "startDate": {"seconds": 1746892800, "nanoseconds": 500}, "endDate": {"seconds": 1746896400}},
    {"id": "epoch", "title": "Epoch", "startDate": 1746892800, "endDate": 1746896400.25},
    {"id": "rfc3339", "title": "RFC3339", "startDate": "2025-05-10T16:00:00Z", "endDate": "2025-05-10T17:00:00Z"},
    {"id": "wall", "title": "Wall", "startDate": "2025-05-10T09:00:00", "endDate": "2025-05-10T10:00"}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	f, err := OpenFile(path, phoenix)
	require.NoError(t, err)

	want := time.Date(2025, time.May, 10, 16, 0, 0, 0, time.UTC)
	for _, id := range []string{"wrapped", "plain-wrapper", "epoch", "rfc3339", "wall"} {
		ev, err := f.Get(context.Background(), id)
		require.NoError(t, err, id)
		assert.True(t, ev.StartDate.Truncate(time.Second).Equal(want), "%s: %s", id, ev.StartDate)
		assert.Equal(t, phoenix, ev.StartDate.Location(), id)
	}

	ev, err := f.Get(context.Background(), "epoch")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, ev.EndDate.Sub(want.Add(time.Hour)))

	ev, err = f.Get(context.Background(), "plain-wrapper")
	require.NoError(t, err)
	assert.Equal(t, 500, ev.StartDate.Nanosecond())
	assert.Equal(t, model.DefaultColor, ev.Color)
}

func TestOpenFileRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"bad json":      `{"events": [`,
		"missing id":    `{"events": [{"title": "x", "startDate": 1, "endDate": 1}]}`,
		"duplicate id":  `{"events": [{"id": "a", "startDate": 1, "endDate": 1}, {"id": "a", "startDate": 1, "endDate": 1}]}`,
		"bad timestamp": `{"events": [{"id": "a", "startDate": true, "endDate": 1}]}`,
		"no seconds":    `{"events": [{"id": "a", "startDate": {"nanos": 1}, "endDate": 1}]}`,
		"null start":    `{"events": [{"id": "a", "startDate": null, "endDate": 1}]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "events.json")
			require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
			_, err := OpenFile(path, phoenix)
			assert.ErrorIs(t, err, model.ErrStore)
		})
	}
}

func TestDecodeTimestampShapes(t *testing.T) {
	tests := []struct {
		raw   string
		shape timestampShape
	}{
		{`"2025-05-10T16:00:00Z"`, shapeString},
		{`1746892800`, shapeEpochSeconds},
		{`-1`, shapeEpochSeconds},
		{`{"_seconds": 1}`, shapeSecondsWrapper},
		{`null`, shapeUnknown},
		{``, shapeUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.shape, classifyTimestamp([]byte(tt.raw)), tt.raw)
	}

	got, err := decodeTimestamp(json.RawMessage(`-1.5`), time.UTC)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Unix(-2, 500_000_000)))

	_, err = decodeTimestamp(json.RawMessage(`"not a date"`), time.UTC)
	assert.Error(t, err)

	for _, raw := range []string{
		`1e300`,
		`-1e300`,
		`253402300800`,
		`{"_seconds": 99999999999999999}`,
		`{"seconds": -62135596801}`,
		`{"seconds": 253402300799, "nanos": 9000000000000000000}`,
	} {
		_, err := decodeTimestamp(json.RawMessage(raw), time.UTC)
		assert.Error(t, err, raw)
	}

	got, err = decodeTimestamp(json.RawMessage(`{"seconds": 253402300799}`), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 9999, got.Year())
}

func TestWriteBackupAndPrune(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "backup")
	m := NewMemory()
	require.NoError(t, Seed(ctx, m, SeedEvents(phoenix)))

	now := time.Date(2025, time.May, 20, 3, 0, 0, 0, time.UTC)
	var paths []string
	for i := 0; i < 4; i++ {
		p, err := WriteBackup(ctx, m, dir, 2, now.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		paths = append(paths, p)
	}

	names, err := ListBackups(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Base(paths[2]), filepath.Base(paths[3])}, names)
	assert.Equal(t, "events-20250520T060000Z.json", names[1])

	restored, err := OpenFile(paths[3], phoenix)
	require.NoError(t, err)
	all, err := restored.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Team Meeting", "Lunch with Client", "Project Deadline"}, titles(all))
}
