// Package event is the orchestration layer the HTTP handlers call. It
// combines the store, the date helpers and the grid builder and returns
// plain data for rendering.
package event

import (
	"context"
	"slices"
	"time"

	"evcal/internal/calendar"
	"evcal/internal/dateutil"
	appLog "evcal/internal/log"
	"evcal/internal/model"
	"evcal/internal/store"
)

type Service struct {
	store   store.Store
	builder *calendar.Builder
}

// NewService wires a store to a grid builder; the builder's location is the
// display location used for all day comparisons.
func NewService(st store.Store, builder *calendar.Builder) *Service {
	return &Service{store: st, builder: builder}
}

func (s *Service) Location() *time.Location {
	return s.builder.Location()
}

// Create validates and stores a new event. Missing dates are rejected before
// the store is touched.
func (s *Service) Create(ctx context.Context, f model.EventFields) (model.Event, error) {
	if err := f.ValidateCreate(); err != nil {
		return model.Event{}, err
	}
	ev, err := s.store.Create(ctx, f)
	if err != nil {
		return model.Event{}, err
	}
	appLog.Info("event created", "id", ev.ID, "start", ev.StartDate.Format(time.RFC3339))
	return ev, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Event, error) {
	return s.store.Get(ctx, id)
}

// Update overwrites the provided fields of event id. Start and end must be
// part of every update.
func (s *Service) Update(ctx context.Context, id string, f model.EventFields) (model.Event, error) {
	if err := f.ValidateUpdate(); err != nil {
		return model.Event{}, err
	}
	ev, err := s.store.Update(ctx, id, f)
	if err != nil {
		return model.Event{}, err
	}
	appLog.Info("event updated", "id", ev.ID)
	return ev, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	appLog.Info("event deleted", "id", id)
	return nil
}

// Upcoming returns every event by ascending start. The list is sorted again
// here so the result does not depend on the backend's ordering.
func (s *Service) Upcoming(ctx context.Context) ([]model.Event, error) {
	events, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(events, func(a, b model.Event) int {
		return a.StartDate.Compare(b.StartDate)
	})
	return events, nil
}

// DayEvents returns the events starting on the local day named by
// dateString ("YYYY-MM-DD"), in store order.
func (s *Service) DayEvents(ctx context.Context, dateString string) ([]model.Event, error) {
	loc := s.Location()
	day, err := dateutil.ParseLocalDate(dateString, loc)
	if err != nil {
		return nil, err
	}

	events, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	matching := make([]model.Event, 0)
	for _, ev := range events {
		if dateutil.IsSameLocalDay(ev.StartDate, day, loc) {
			matching = append(matching, ev)
		}
	}
	appLog.Debug("day events", "date", dateString, "count", len(matching))
	return matching, nil
}

// MonthGrid builds the grid for the cursor from a fresh store read.
func (s *Service) MonthGrid(ctx context.Context, c calendar.Cursor) (calendar.Grid, error) {
	events, err := s.store.List(ctx)
	if err != nil {
		return calendar.Grid{}, err
	}
	return s.builder.Build(c.Month, c.Year, events), nil
}
