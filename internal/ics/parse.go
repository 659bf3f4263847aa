package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/samber/mo"

	appLog "evcal/internal/log"
	"evcal/internal/model"
)

// ParsedEvent is a VEVENT reduced to the fields an Event can hold.
type ParsedEvent struct {
	Source Source

	UID         string
	Summary     string
	Description string
	Location    string

	Start  time.Time
	End    time.Time
	AllDay bool

	// RRule is the raw RRULE value of a series master; ExDates are its
	// excluded starts. See Anchor.
	RRule   string
	ExDates []time.Time
	// Override is set for RECURRENCE-ID instances, which are skipped.
	Override bool
}

// ParseICS parses one ICS payload. Broken VEVENTs are logged and skipped.
//
//   - Timezones (TZID/VTIMEZONE) are resolved by the library.
//   - All-day events (VALUE=DATE or a date without "T") are pinned to local
//     midnight of their date in loc, so they bucket into the same calendar
//     day they were published for.
func ParseICS(src Source, body []byte, loc *time.Location) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(src, ve, loc)
		if perr != nil {
			appLog.Error("ics vevent skipped", perr, "id", src.ID)
			continue
		}
		if ev.Override {
			appLog.Debug("ics recurrence override skipped", "id", src.ID, "uid", ev.UID)
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "id", src.ID, "url", redactURL(src.URL), "event_count", len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent, loc *time.Location) (ParsedEvent, error) {
	out := ParsedEvent{Source: src}

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	out.AllDay = isDateValue(dtStart)

	if out.AllDay {
		start, err := parseDateValue(dtStart.Value, loc)
		if err != nil {
			return out, err
		}
		out.Start = start
		out.End = start.AddDate(0, 0, 1)
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
			if end, err := parseDateValue(dtEnd.Value, loc); err == nil {
				out.End = end
			}
		}
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return out, err
		}
		out.Start = start.In(loc)
		out.End = out.Start
		if ve.GetProperty(ical.ComponentPropertyDtEnd) != nil {
			if end, err := ve.GetEndAt(); err == nil {
				out.End = end.In(loc)
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RRule = p.Value
		out.ExDates = parseExDates(ve, out.Start.Location())
	}
	out.Override = ve.GetProperty(ical.ComponentPropertyRecurrenceId) != nil

	return out, nil
}

// isDateValue reports whether a DTSTART holds a DATE rather than DATE-TIME.
func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// parseDateValue reads the YYYYMMDD prefix of a DATE value as local
// midnight in loc.
func parseDateValue(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if len(v) < 8 {
		return time.Time{}, errors.New("malformed DATE value " + v)
	}
	return time.ParseInLocation("20060102", v[:8], loc)
}

// Fields converts a parsed event into store fields tagged with its origin.
func (p ParsedEvent) Fields() model.EventFields {
	title := strings.TrimSpace(p.Summary)
	if title == "" {
		title = "(untitled)"
	}
	color := model.DefaultColor
	if p.Source.Color != "" {
		color = model.ParseColor(p.Source.Color)
	}
	return model.EventFields{
		Title:       mo.Some(title),
		Description: mo.Some(p.Description),
		StartDate:   mo.Some(p.Start),
		EndDate:     mo.Some(p.End),
		Location:    mo.Some(p.Location),
		Color:       mo.Some(color),
		SourceID:    mo.Some(p.Source.ID),
		UID:         mo.Some(p.UID),
	}
}
