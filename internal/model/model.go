package model

import (
	"strings"
	"time"

	"github.com/samber/mo"
)

// Color is the display tag of an event.
type Color string

const (
	ColorBlue   Color = "blue"
	ColorRed    Color = "red"
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
	ColorPurple Color = "purple"
	ColorOrange Color = "orange"
	ColorGray   Color = "gray"

	DefaultColor = ColorBlue
)

// Colors lists the supported tags in display order.
var Colors = []Color{ColorBlue, ColorRed, ColorGreen, ColorYellow, ColorPurple, ColorOrange, ColorGray}

func (c Color) Valid() bool {
	for _, k := range Colors {
		if c == k {
			return true
		}
	}
	return false
}

// ParseColor maps free text to a supported tag. Empty or unknown values
// fall back to DefaultColor.
func ParseColor(s string) Color {
	c := Color(strings.ToLower(strings.TrimSpace(s)))
	if c.Valid() {
		return c
	}
	return DefaultColor
}

// Event is the single persisted entity.
//
// The calendar day an event belongs to is always derived from StartDate in
// the display location at query time; it is never stored.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	Location    string    `json:"location,omitempty"`
	Color       Color     `json:"color"`

	// SourceID and UID are set only for events imported from an ICS feed.
	SourceID string `json:"sourceId,omitempty"`
	UID      string `json:"uid,omitempty"`
}

// EventFields carries the mutable fields of an Event for create and update.
// An absent option means "not provided": on create it falls back to the zero
// value (or DefaultColor), on update the stored value is kept.
type EventFields struct {
	Title       mo.Option[string]
	Description mo.Option[string]
	StartDate   mo.Option[time.Time]
	EndDate     mo.Option[time.Time]
	Location    mo.Option[string]
	Color       mo.Option[Color]

	SourceID mo.Option[string]
	UID      mo.Option[string]
}

// ValidateCreate checks the fields required to create an event.
func (f EventFields) ValidateCreate() error {
	if strings.TrimSpace(f.Title.OrEmpty()) == "" {
		return Validation("title is required")
	}
	if err := f.validateDates(); err != nil {
		return err
	}
	return nil
}

// ValidateUpdate checks an update request. Start and end must always be
// resubmitted; a provided title must not be blank.
func (f EventFields) ValidateUpdate() error {
	if title, ok := f.Title.Get(); ok && strings.TrimSpace(title) == "" {
		return Validation("title must not be empty")
	}
	return f.validateDates()
}

func (f EventFields) validateDates() error {
	if start, ok := f.StartDate.Get(); !ok || start.IsZero() {
		return Validation("startDate is required")
	}
	if end, ok := f.EndDate.Get(); !ok || end.IsZero() {
		return Validation("endDate is required")
	}
	return nil
}

// NewEvent builds an event from create fields. The caller assigns the ID.
func NewEvent(id string, f EventFields) Event {
	ev := Event{ID: id, Color: DefaultColor}
	return f.ApplyTo(ev)
}

// ApplyTo overwrites the provided fields of ev and returns the result.
// The ID is never touched.
func (f EventFields) ApplyTo(ev Event) Event {
	if v, ok := f.Title.Get(); ok {
		ev.Title = strings.TrimSpace(v)
	}
	if v, ok := f.Description.Get(); ok {
		ev.Description = v
	}
	if v, ok := f.StartDate.Get(); ok {
		ev.StartDate = v
	}
	if v, ok := f.EndDate.Get(); ok {
		ev.EndDate = v
	}
	if v, ok := f.Location.Get(); ok {
		ev.Location = v
	}
	if v, ok := f.Color.Get(); ok {
		ev.Color = ParseColor(string(v))
	}
	if v, ok := f.SourceID.Get(); ok {
		ev.SourceID = v
	}
	if v, ok := f.UID.Get(); ok {
		ev.UID = v
	}
	if ev.Color == "" {
		ev.Color = DefaultColor
	}
	return ev
}

// FieldsOf returns fields that, applied to any event, reproduce ev.
func FieldsOf(ev Event) EventFields {
	return EventFields{
		Title:       mo.Some(ev.Title),
		Description: mo.Some(ev.Description),
		StartDate:   mo.Some(ev.StartDate),
		EndDate:     mo.Some(ev.EndDate),
		Location:    mo.Some(ev.Location),
		Color:       mo.Some(ev.Color),
		SourceID:    mo.Some(ev.SourceID),
		UID:         mo.Some(ev.UID),
	}
}
