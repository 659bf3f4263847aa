package calendar

import (
	"time"

	"evcal/internal/dateutil"
)

// Direction is a navigation request. Values other than Prev and Next are
// accepted and leave the cursor unchanged.
type Direction string

const (
	Prev Direction = "prev"
	Next Direction = "next"
)

// Cursor is the displayed (month, year). It is unbounded in both directions.
type Cursor struct {
	Month time.Month `json:"month"`
	Year  int        `json:"year"`
}

// CursorAt returns the cursor containing t in loc.
func CursorAt(t time.Time, loc *time.Location) Cursor {
	y, m, _ := dateutil.LocalDay(t, loc)
	return Cursor{Month: m, Year: y}
}

// Navigate returns the cursor one month before or after c.
func (c Cursor) Navigate(d Direction) Cursor {
	switch d {
	case Prev:
		if c.Month == time.January {
			return Cursor{Month: time.December, Year: c.Year - 1}
		}
		return Cursor{Month: c.Month - 1, Year: c.Year}
	case Next:
		if c.Month == time.December {
			return Cursor{Month: time.January, Year: c.Year + 1}
		}
		return Cursor{Month: c.Month + 1, Year: c.Year}
	default:
		return c
	}
}

// Label renders the cursor as "May 2025".
func (c Cursor) Label() string {
	return dateutil.FormatMonthLabel(c.Month, c.Year)
}
