package ics

import (
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"evcal/internal/model"
)

const productID = "-//evcal//Event Calendar//EN"

// ExportOptions controls the generated VCALENDAR.
type ExportOptions struct {
	// Name is published as X-WR-CALNAME.
	Name string
	// Domain qualifies UIDs of locally created events (id@Domain).
	Domain string
	// Now stamps DTSTAMP; zero means time.Now.
	Now time.Time
}

// WriteCalendar serializes events as an iCalendar feed. Imported events keep
// their original UID so that subscribers do not see duplicates.
func WriteCalendar(w io.Writer, events []model.Event, opts ExportOptions) error {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	domain := opts.Domain
	if domain == "" {
		domain = "evcal.local"
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}

	for _, ev := range events {
		uid := ev.UID
		if uid == "" {
			uid = ev.ID + "@" + domain
		}

		vev := cal.AddEvent(uid)
		vev.SetDtStampTime(now.UTC())
		vev.SetStartAt(ev.StartDate.UTC())
		vev.SetEndAt(ev.EndDate.UTC())
		vev.SetSummary(ev.Title)
		if ev.Description != "" {
			vev.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			vev.SetLocation(ev.Location)
		}
		vev.SetProperty(ical.ComponentPropertyColor, string(ev.Color))
	}

	_, err := io.WriteString(w, cal.Serialize())
	return err
}
