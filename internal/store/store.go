// Package store persists events.
//
// Two backends implement Store:
//   - Memory: an in-process list, used for the lightweight mode and tests.
//   - File:   Memory plus a JSON document on disk rewritten atomically on
//     every mutation.
//
// Every operation is atomic for a single event; there are no multi-event
// transactions. Errors are *model.Error values (Validation, NotFound, Store).
package store

import (
	"context"
	"time"

	"github.com/samber/mo"

	"evcal/internal/model"
)

// Store is the persistence contract for events.
type Store interface {
	// Create validates f, assigns a fresh ID and stores the event.
	Create(ctx context.Context, f model.EventFields) (model.Event, error)
	// Get returns the event with id or a NotFound error.
	Get(ctx context.Context, id string) (model.Event, error)
	// List returns all events ordered by StartDate, ties in insertion order.
	List(ctx context.Context) ([]model.Event, error)
	// Update overwrites the provided fields of event id.
	Update(ctx context.Context, id string, f model.EventFields) (model.Event, error)
	// Delete removes event id. Deleting a missing id is a NotFound error.
	Delete(ctx context.Context, id string) error
}

// SeedEvents returns the demo events used when store.seed is enabled.
func SeedEvents(loc *time.Location) []model.EventFields {
	if loc == nil {
		loc = time.Local
	}
	at := func(month time.Month, day, hour, minute, sec int) time.Time {
		return time.Date(2025, month, day, hour, minute, sec, 0, loc)
	}
	return []model.EventFields{
		{
			Title:       mo.Some("Team Meeting"),
			Description: mo.Some("Weekly team sync to discuss project progress and blockers."),
			StartDate:   mo.Some(at(time.May, 10, 10, 0, 0)),
			EndDate:     mo.Some(at(time.May, 10, 11, 0, 0)),
			Location:    mo.Some("Conference Room A"),
			Color:       mo.Some(model.ColorBlue),
		},
		{
			Title:       mo.Some("Project Deadline"),
			Description: mo.Some("Final submission deadline for the Q2 project."),
			StartDate:   mo.Some(at(time.May, 15, 23, 59, 59)),
			EndDate:     mo.Some(at(time.May, 15, 23, 59, 59)),
			Color:       mo.Some(model.ColorRed),
		},
		{
			Title:       mo.Some("Lunch with Client"),
			Description: mo.Some("Networking lunch with potential new client to discuss opportunities."),
			StartDate:   mo.Some(at(time.May, 12, 12, 30, 0)),
			EndDate:     mo.Some(at(time.May, 12, 13, 30, 0)),
			Location:    mo.Some("Downtown Bistro"),
			Color:       mo.Some(model.ColorGreen),
		},
	}
}

// Seed creates every event in fields, stopping at the first error.
func Seed(ctx context.Context, s Store, fields []model.EventFields) error {
	for _, f := range fields {
		if _, err := s.Create(ctx, f); err != nil {
			return err
		}
	}
	return nil
}
