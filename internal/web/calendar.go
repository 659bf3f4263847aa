package web

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"evcal/internal/calendar"
	"evcal/internal/ics"
	appLog "evcal/internal/log"
	"evcal/internal/model"
)

// monthHeader carries the label of the month a calendar response shows.
const monthHeader = "X-Calendar-Month"

type dayEventsResponse struct {
	Date   string        `json:"date"`
	Events []model.Event `json:"events"`
}

// handleCalendar returns the grid at the session cursor. ?month=1..12 and
// ?year= jump the cursor directly.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)

	cursor := s.sessions.Current(id)
	q := r.URL.Query()
	if q.Has("month") || q.Has("year") {
		month, merr := strconv.Atoi(q.Get("month"))
		year, yerr := strconv.Atoi(q.Get("year"))
		if merr != nil || yerr != nil || month < 1 || month > 12 {
			writeError(w, http.StatusBadRequest, "month must be 1-12 and year an integer")
			return
		}
		cursor = calendar.Cursor{Month: time.Month(month), Year: year}
		s.sessions.Set(id, cursor)
	}

	s.writeGrid(w, r, cursor)
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	d := calendar.Direction(r.URL.Query().Get("direction"))
	cursor := s.sessions.Navigate(id, d)
	appLog.Debug("calendar navigated", "direction", string(d), "month", cursor.Label())
	s.writeGrid(w, r, cursor)
}

func (s *Server) writeGrid(w http.ResponseWriter, r *http.Request, cursor calendar.Cursor) {
	grid, err := s.events.MonthGrid(r.Context(), cursor)
	if err != nil {
		writeServiceError(w, "month grid", err)
		return
	}
	w.Header().Set(monthHeader, cursor.Label())
	writeJSON(w, http.StatusOK, grid)
}

func (s *Server) handleDayEvents(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	events, err := s.events.DayEvents(r.Context(), date)
	if err != nil {
		writeServiceError(w, "day events", err)
		return
	}
	writeJSON(w, http.StatusOK, dayEventsResponse{Date: date, Events: events})
}

// handleExport publishes every event as an iCalendar feed.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	events, err := s.events.Upcoming(r.Context())
	if err != nil {
		writeServiceError(w, "export", err)
		return
	}

	var buf bytes.Buffer
	if err := ics.WriteCalendar(&buf, events, ics.ExportOptions{
		Name:   s.opts.CalendarName,
		Domain: s.opts.Domain,
	}); err != nil {
		writeServiceError(w, "export", err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.importer == nil {
		writeError(w, http.StatusServiceUnavailable, "no ICS sources configured")
		return
	}
	res, err := s.importer.Sync(r.Context())
	if err != nil {
		writeServiceError(w, "import", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
