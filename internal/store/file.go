package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	appLog "evcal/internal/log"
	"evcal/internal/model"
)

const documentVersion = 1

// document is the on-disk JSON layout shared by the file backend and backups.
type document struct {
	Version int           `json:"version"`
	SavedAt string        `json:"saved_at"`
	Events  []storedEvent `json:"events"`
}

// storedEvent keeps the timestamps raw so that every historical shape can be
// normalized by decodeTimestamp.
type storedEvent struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	StartDate   json.RawMessage `json:"startDate"`
	EndDate     json.RawMessage `json:"endDate"`
	Location    string          `json:"location,omitempty"`
	Color       string          `json:"color,omitempty"`
	SourceID    string          `json:"sourceId,omitempty"`
	UID         string          `json:"uid,omitempty"`
}

func encodeDocument(events []model.Event, now time.Time) ([]byte, error) {
	doc := document{
		Version: documentVersion,
		SavedAt: now.UTC().Format(time.RFC3339),
		Events:  make([]storedEvent, 0, len(events)),
	}
	for _, ev := range events {
		doc.Events = append(doc.Events, storedEvent{
			ID:          ev.ID,
			Title:       ev.Title,
			Description: ev.Description,
			StartDate:   encodeTimestamp(ev.StartDate),
			EndDate:     encodeTimestamp(ev.EndDate),
			Location:    ev.Location,
			Color:       string(ev.Color),
			SourceID:    ev.SourceID,
			UID:         ev.UID,
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}

func decodeDocument(data []byte, loc *time.Location) ([]model.Event, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(doc.Events))
	events := make([]model.Event, 0, len(doc.Events))
	for i, se := range doc.Events {
		if se.ID == "" {
			return nil, fmt.Errorf("event #%d: missing id", i)
		}
		if seen[se.ID] {
			return nil, fmt.Errorf("event %q: duplicate id", se.ID)
		}
		seen[se.ID] = true

		start, err := decodeTimestamp(se.StartDate, loc)
		if err != nil {
			return nil, fmt.Errorf("event %q startDate: %w", se.ID, err)
		}
		end, err := decodeTimestamp(se.EndDate, loc)
		if err != nil {
			return nil, fmt.Errorf("event %q endDate: %w", se.ID, err)
		}

		events = append(events, model.Event{
			ID:          se.ID,
			Title:       se.Title,
			Description: se.Description,
			StartDate:   start,
			EndDate:     end,
			Location:    se.Location,
			Color:       model.ParseColor(se.Color),
			SourceID:    se.SourceID,
			UID:         se.UID,
		})
	}
	return events, nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path.
func writeFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".evcal-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// File is a Store backed by a JSON document. Reads are served from memory;
// each mutation rewrites the document before the call returns and is rolled
// back in memory if the write fails.
type File struct {
	mem  *Memory
	path string
	loc  *time.Location
	now  func() time.Time
}

// OpenFile loads path, or starts empty if it does not exist yet.
func OpenFile(path string, loc *time.Location) (*File, error) {
	if path == "" {
		return nil, errors.New("store path is empty")
	}
	if loc == nil {
		loc = time.Local
	}

	f := &File{mem: NewMemory(), path: path, loc: loc, now: time.Now}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		appLog.Info("event store file not found; starting empty", "path", path)
		return f, nil
	case err != nil:
		return nil, model.StoreFailure(err, "read "+path)
	}

	events, err := decodeDocument(data, loc)
	if err != nil {
		return nil, model.StoreFailure(err, "decode "+path)
	}
	f.mem.load(events)

	appLog.Info("event store loaded", "path", path, "event_count", len(events))
	return f, nil
}

// Path returns the backing file.
func (f *File) Path() string { return f.path }

// persistLocked writes the current state. Caller holds f.mem.mu.
func (f *File) persistLocked() error {
	data, err := encodeDocument(f.mem.insertionOrder(), f.now())
	if err != nil {
		return err
	}
	return writeFileAtomic(f.path, data, 0o600)
}

// mutate runs op under the write lock and persists the result, restoring the
// previous state if persisting fails.
func (f *File) mutate(name string, op func() error) error {
	f.mem.mu.Lock()
	defer f.mem.mu.Unlock()

	records, seq := f.mem.snapshot()
	if err := op(); err != nil {
		return err
	}
	if err := f.persistLocked(); err != nil {
		f.mem.restore(records, seq)
		appLog.Error("event store persist failed", err, "op", name, "path", f.path)
		return model.StoreFailure(err, name)
	}
	return nil
}

func (f *File) Create(_ context.Context, fields model.EventFields) (model.Event, error) {
	if err := fields.ValidateCreate(); err != nil {
		return model.Event{}, err
	}
	var ev model.Event
	err := f.mutate("create event", func() error {
		ev = f.mem.createLocked(fields)
		return nil
	})
	if err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

func (f *File) Get(ctx context.Context, id string) (model.Event, error) {
	return f.mem.Get(ctx, id)
}

func (f *File) List(ctx context.Context) ([]model.Event, error) {
	return f.mem.List(ctx)
}

func (f *File) Update(_ context.Context, id string, fields model.EventFields) (model.Event, error) {
	var ev model.Event
	err := f.mutate("update event", func() error {
		var err error
		ev, err = f.mem.updateLocked(id, fields)
		return err
	})
	if err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

func (f *File) Delete(_ context.Context, id string) error {
	return f.mutate("delete event", func() error {
		return f.mem.deleteLocked(id)
	})
}
