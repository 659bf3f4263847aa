package calendar

import (
	"strings"
	"time"

	"evcal/internal/dateutil"
	"evcal/internal/model"
)

// Cell is one slot of a month grid. Padding cells that align the month on
// week boundaries have Day == 0, InMonth == false and no events.
type Cell struct {
	Day     int           `json:"day,omitempty"`
	Date    string        `json:"date,omitempty"` // YYYY-MM-DD, empty for padding
	InMonth bool          `json:"inMonth"`
	Events  []model.Event `json:"events"`
}

// Grid is the derived month view. It is rebuilt on every request.
type Grid struct {
	Month     time.Month   `json:"month"`
	Year      int          `json:"year"`
	Label     string       `json:"label"`
	WeekStart time.Weekday `json:"weekStart"`
	Cells     []Cell       `json:"cells"`
}

// Weeks groups the cells into rows of seven.
func (g Grid) Weeks() [][]Cell {
	weeks := make([][]Cell, 0, len(g.Cells)/7)
	for i := 0; i+7 <= len(g.Cells); i += 7 {
		weeks = append(weeks, g.Cells[i:i+7])
	}
	return weeks
}

// DayCells returns only the cells that belong to the month.
func (g Grid) DayCells() []Cell {
	out := make([]Cell, 0, 31)
	for _, c := range g.Cells {
		if c.InMonth {
			out = append(out, c)
		}
	}
	return out
}

// ParseWeekStart maps "sunday"/"monday" to a weekday; anything else is Sunday.
func ParseWeekStart(s string) time.Weekday {
	if strings.EqualFold(strings.TrimSpace(s), "monday") {
		return time.Monday
	}
	return time.Sunday
}

// Builder derives month grids in a fixed display location.
type Builder struct {
	weekStart time.Weekday
	loc       *time.Location
}

// NewBuilder returns a Builder. A nil loc means time.Local.
func NewBuilder(weekStart time.Weekday, loc *time.Location) *Builder {
	if loc == nil {
		loc = time.Local
	}
	return &Builder{weekStart: weekStart, loc: loc}
}

func (b *Builder) Location() *time.Location { return b.loc }

func (b *Builder) WeekStart() time.Weekday { return b.weekStart }

// Build lays out month/year and buckets events into their start day.
//
// Events keep their relative input order within a cell, so passing the
// store's ascending-start list yields cells sorted by start time. Events
// starting outside the month are ignored.
func (b *Builder) Build(month time.Month, year int, events []model.Event) Grid {
	days := dateutil.DaysInMonth(month, year)
	first := time.Date(year, month, 1, 0, 0, 0, 0, b.loc)
	lead := (int(first.Weekday()) - int(b.weekStart) + 7) % 7
	total := lead + days
	if rem := total % 7; rem != 0 {
		total += 7 - rem
	}

	cells := make([]Cell, total)
	for i := range cells {
		cells[i].Events = []model.Event{}
	}
	for d := 1; d <= days; d++ {
		c := &cells[lead+d-1]
		c.Day = d
		c.InMonth = true
		c.Date = time.Date(year, month, d, 0, 0, 0, 0, b.loc).Format(time.DateOnly)
	}

	for _, ev := range events {
		y, m, d := dateutil.LocalDay(ev.StartDate, b.loc)
		if y != year || m != month {
			continue
		}
		c := &cells[lead+d-1]
		c.Events = append(c.Events, ev)
	}

	return Grid{
		Month:     month,
		Year:      year,
		Label:     dateutil.FormatMonthLabel(month, year),
		WeekStart: b.weekStart,
		Cells:     cells,
	}
}
