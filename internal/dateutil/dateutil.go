// Package dateutil holds the calendar-day arithmetic shared by the grid,
// the navigator and the event service.
//
// Every function takes the display location explicitly; a nil location
// means time.Local.
package dateutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"evcal/internal/model"
)

func orLocal(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}

// LocalDay returns the year, month and day-of-month of t in loc.
func LocalDay(t time.Time, loc *time.Location) (int, time.Month, int) {
	return t.In(orLocal(loc)).Date()
}

// IsSameLocalDay reports whether a and b fall on the same calendar day in
// loc. This is the only definition of which day an event belongs to.
func IsSameLocalDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := LocalDay(a, loc)
	by, bm, bd := LocalDay(b, loc)
	return ay == by && am == bm && ad == bd
}

// ParseLocalDate parses "YYYY-MM-DD" into local midnight of that day.
//
// The components are split and converted individually and the instant is
// built with time.Date in loc. A generic ISO parser would read a bare date
// as UTC midnight, which lands on the previous day in negative-offset zones.
func ParseLocalDate(s string, loc *time.Location) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 || len(parts[0]) != 4 || len(parts[1]) != 2 || len(parts[2]) != 2 {
		return time.Time{}, model.Validation("date %q: want YYYY-MM-DD", s)
	}

	nums := make([]int, 3)
	for i, p := range parts {
		if !allDigits(p) {
			return time.Time{}, model.Validation("date %q: want YYYY-MM-DD", s)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, model.Validation("date %q: want YYYY-MM-DD", s)
		}
		nums[i] = n
	}

	year, month, day := nums[0], time.Month(nums[1]), nums[2]
	if month < time.January || month > time.December {
		return time.Time{}, model.Validation("date %q: month out of range", s)
	}
	if day < 1 || day > DaysInMonth(month, year) {
		return time.Time{}, model.Validation("date %q: day out of range", s)
	}

	return time.Date(year, month, day, 0, 0, 0, 0, orLocal(loc)), nil
}

// allDigits rejects the sign prefixes strconv.Atoi would accept.
func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// dateTimeLayouts are the wall-clock forms accepted from HTML forms
// (datetime-local) and JSON clients without an offset.
var dateTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseLocalDateTime parses a submitted timestamp. Values carrying an offset
// (RFC 3339) keep it; wall-clock values are read in loc; a bare date goes
// through ParseLocalDate.
func ParseLocalDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, model.Validation("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, orLocal(loc)); err == nil {
			return t, nil
		}
	}
	if t, err := ParseLocalDate(s, loc); err == nil {
		return t, nil
	}
	return time.Time{}, model.Validation("timestamp %q: unsupported format", s)
}

// FormatMonthLabel renders "May 2025".
func FormatMonthLabel(month time.Month, year int) string {
	return fmt.Sprintf("%s %d", month, year)
}

// IsLeapYear: divisible by 4, except centuries not divisible by 400.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

var monthDays = [...]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// DaysInMonth returns the number of days of month in year. It returns 0 for
// an out-of-range month.
func DaysInMonth(month time.Month, year int) int {
	if month < time.January || month > time.December {
		return 0
	}
	if month == time.February && IsLeapYear(year) {
		return 29
	}
	return monthDays[month-1]
}
