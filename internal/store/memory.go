package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"evcal/internal/model"
)

// record pairs an event with its insertion sequence, which breaks ties
// between events that start at the same instant.
type record struct {
	seq   uint64
	event model.Event
}

// Memory implements Store in process memory.
type Memory struct {
	mu      sync.RWMutex
	records map[string]record
	nextSeq uint64
	newID   func() string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]record),
		newID:   uuid.NewString,
	}
}

func (m *Memory) Create(_ context.Context, f model.EventFields) (model.Event, error) {
	if err := f.ValidateCreate(); err != nil {
		return model.Event{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(f), nil
}

func (m *Memory) createLocked(f model.EventFields) model.Event {
	id := m.newID()
	for _, taken := m.records[id]; taken; _, taken = m.records[id] {
		id = m.newID()
	}
	ev := model.NewEvent(id, f)
	m.records[id] = record{seq: m.nextSeq, event: ev}
	m.nextSeq++
	return ev
}

func (m *Memory) Get(_ context.Context, id string) (model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return model.Event{}, model.NotFound(id)
	}
	return rec.event, nil
}

func (m *Memory) List(_ context.Context) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedEvents(m.records), nil
}

func (m *Memory) Update(_ context.Context, id string, f model.EventFields) (model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(id, f)
}

func (m *Memory) updateLocked(id string, f model.EventFields) (model.Event, error) {
	rec, ok := m.records[id]
	if !ok {
		return model.Event{}, model.NotFound(id)
	}
	rec.event = f.ApplyTo(rec.event)
	m.records[id] = rec
	return rec.event, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(id)
}

func (m *Memory) deleteLocked(id string) error {
	if _, ok := m.records[id]; !ok {
		return model.NotFound(id)
	}
	delete(m.records, id)
	return nil
}

// Len reports the number of stored events.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// snapshot copies the state so a failed persist can be rolled back.
// Caller holds mu.
func (m *Memory) snapshot() (map[string]record, uint64) {
	cp := make(map[string]record, len(m.records))
	for k, v := range m.records {
		cp[k] = v
	}
	return cp, m.nextSeq
}

func (m *Memory) restore(records map[string]record, nextSeq uint64) {
	m.records = records
	m.nextSeq = nextSeq
}

// load replaces the contents with events in the given order, keeping their
// IDs. Caller holds mu.
func (m *Memory) load(events []model.Event) {
	m.records = make(map[string]record, len(events))
	m.nextSeq = 0
	for _, ev := range events {
		if ev.Color == "" {
			ev.Color = model.DefaultColor
		}
		m.records[ev.ID] = record{seq: m.nextSeq, event: ev}
		m.nextSeq++
	}
}

// insertionOrder returns events by sequence, which is what the file
// backend writes so that tie order survives a restart. Caller holds mu.
func (m *Memory) insertionOrder() []model.Event {
	recs := make([]record, 0, len(m.records))
	for _, r := range m.records {
		recs = append(recs, r)
	}
	slices.SortFunc(recs, func(a, b record) int { return cmp.Compare(a.seq, b.seq) })

	out := make([]model.Event, len(recs))
	for i, r := range recs {
		out[i] = r.event
	}
	return out
}

func sortedEvents(records map[string]record) []model.Event {
	recs := make([]record, 0, len(records))
	for _, r := range records {
		recs = append(recs, r)
	}
	slices.SortFunc(recs, func(a, b record) int {
		if c := a.event.StartDate.Compare(b.event.StartDate); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})

	out := make([]model.Event, len(recs))
	for i, r := range recs {
		out[i] = r.event
	}
	return out
}
