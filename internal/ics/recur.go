package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "evcal/internal/log"
)

// Anchor moves a recurring event onto a single concrete occurrence: the
// first one at or after now, or the last one when the series has ended.
// The event keeps its duration. Non-recurring events are returned as is.
//
// Events are stored one per VEVENT, so a series is represented by the
// occurrence a reader most likely cares about.
func (p ParsedEvent) Anchor(now time.Time) ParsedEvent {
	if p.RRule == "" {
		return p
	}

	r, err := rrule.StrToRRule(p.RRule)
	if err != nil {
		appLog.Error("ics: failed to parse RRULE", err, "uid", p.UID, "rrule", p.RRule)
		return p
	}
	r.DTStart(p.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range p.ExDates {
		set.ExDate(ex.In(p.Start.Location()))
	}

	next := set.After(now, true)
	if next.IsZero() {
		next = set.Before(now, true)
	}
	if next.IsZero() {
		return p
	}

	dur := p.End.Sub(p.Start)
	if p.AllDay {
		next = time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, p.Start.Location())
	}
	p.Start = next
	p.End = next.Add(dur)
	return p
}

// parseExDates reads every EXDATE property. Values may be comma separated
// and carry a TZID; unparseable values are skipped.
func parseExDates(ve *ical.VEvent, loc *time.Location) []time.Time {
	var out []time.Time
	for _, prop := range ve.GetProperties(ical.ComponentPropertyExdate) {
		propLoc := loc
		if tz, ok := prop.ICalParameters["TZID"]; ok && len(tz) > 0 {
			if l, err := time.LoadLocation(tz[0]); err == nil {
				propLoc = l
			}
		}
		for _, v := range strings.Split(prop.Value, ",") {
			t, err := parseExDate(strings.TrimSpace(v), propLoc)
			if err != nil {
				appLog.Debug("ics: EXDATE skipped", "value", v)
				continue
			}
			out = append(out, t)
		}
	}
	return out
}

func parseExDate(v string, loc *time.Location) (time.Time, error) {
	switch {
	case len(v) == 8:
		return parseDateValue(v, loc)
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	default:
		return time.ParseInLocation("20060102T150405", v, loc)
	}
}
