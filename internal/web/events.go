package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/samber/mo"

	"evcal/internal/dateutil"
	"evcal/internal/model"
)

type eventsResponse struct {
	Events []model.Event `json:"events"`
}

// eventPayload is the JSON request body for create and update. Absent
// members stay nil and are not applied.
type eventPayload struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	StartDate   *string `json:"startDate"`
	EndDate     *string `json:"endDate"`
	Location    *string `json:"location"`
	Color       *string `json:"color"`
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.events.Upcoming(r.Context())
	if err != nil {
		writeServiceError(w, "list events", err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	fields, err := s.readEventFields(r)
	if err != nil {
		writeServiceError(w, "create event", err)
		return
	}
	ev, err := s.events.Create(r.Context(), fields)
	if err != nil {
		writeServiceError(w, "create event", err)
		return
	}
	w.Header().Set("Location", "/api/events/"+ev.ID)
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.events.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "get event", err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	fields, err := s.readEventFields(r)
	if err != nil {
		writeServiceError(w, "update event", err)
		return
	}
	ev, err := s.events.Update(r.Context(), r.PathValue("id"), fields)
	if err != nil {
		writeServiceError(w, "update event", err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// handleDeleteEvent answers with the remaining upcoming events so list views
// can refresh without a second request.
func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.events.Delete(ctx, r.PathValue("id")); err != nil {
		writeServiceError(w, "delete event", err)
		return
	}
	events, err := s.events.Upcoming(ctx)
	if err != nil {
		writeServiceError(w, "list events", err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}

// readEventFields decodes a JSON or form body. Dates are parsed in the
// display location; an empty date counts as not provided.
func (s *Server) readEventFields(r *http.Request) (model.EventFields, error) {
	var p eventPayload

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			return model.EventFields{}, model.Validation("malformed JSON body: %v", err)
		}
	} else {
		if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return model.EventFields{}, model.Validation("malformed form body: %v", err)
		}
		p = eventPayload{
			Title:       formValue(r, "title"),
			Description: formValue(r, "description"),
			StartDate:   formValue(r, "startDate"),
			EndDate:     formValue(r, "endDate"),
			Location:    formValue(r, "location"),
			Color:       formValue(r, "color"),
		}
	}

	loc := s.events.Location()
	start, err := parseDate(p.StartDate, loc)
	if err != nil {
		return model.EventFields{}, err
	}
	end, err := parseDate(p.EndDate, loc)
	if err != nil {
		return model.EventFields{}, err
	}

	fields := model.EventFields{
		Title:       optional(p.Title),
		Description: optional(p.Description),
		StartDate:   start,
		EndDate:     end,
		Location:    optional(p.Location),
	}
	if p.Color != nil && strings.TrimSpace(*p.Color) != "" {
		fields.Color = mo.Some(model.ParseColor(*p.Color))
	}
	return fields, nil
}

func optional(v *string) mo.Option[string] {
	if v == nil {
		return mo.None[string]()
	}
	return mo.Some(*v)
}

// formValue returns nil when key was not submitted at all.
func formValue(r *http.Request, key string) *string {
	vs, ok := r.PostForm[key]
	if !ok || len(vs) == 0 {
		return nil
	}
	return &vs[0]
}

func parseDate(v *string, loc *time.Location) (mo.Option[time.Time], error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return mo.None[time.Time](), nil
	}
	t, err := dateutil.ParseLocalDateTime(*v, loc)
	if err != nil {
		return mo.None[time.Time](), err
	}
	return mo.Some(t), nil
}
