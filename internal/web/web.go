package web

import (
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"evcal/internal/calendar"
	"evcal/internal/event"
	"evcal/internal/ics"
	appLog "evcal/internal/log"
	"evcal/internal/model"
)

// sessionCookie carries the opaque id that selects a calendar cursor.
const sessionCookie = "evcal_session"

// Options are the presentation settings of a Server.
type Options struct {
	// CalendarName is published as X-WR-CALNAME in /calendar.ics.
	CalendarName string
	// Domain qualifies the UIDs of exported local events.
	Domain string
	// SessionMaxAge is the cookie lifetime; zero makes it a browser
	// session cookie.
	SessionMaxAge time.Duration
}

// Server provides the HTTP API and the embedded page.
type Server struct {
	events   *event.Service
	sessions *calendar.Sessions
	importer *ics.Importer
	opts     Options
	mux      *http.ServeMux
}

// embeddedStatic holds the single-page UI served at /.
//
//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a new Server. importer may be nil, in which case
// POST /api/import answers 503.
func NewServer(events *event.Service, sessions *calendar.Sessions, importer *ics.Importer, opts Options) *Server {
	if opts.CalendarName == "" {
		opts.CalendarName = "evcal"
	}
	s := &Server{
		events:   events,
		sessions: sessions,
		importer: importer,
		opts:     opts,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the mux wrapped in the method override and request
// logging middleware.
func (s *Server) Handler() http.Handler {
	return logRequests(methodOverride(s.mux))
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("POST /api/events", s.handleCreateEvent)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleGetEvent)
	s.mux.HandleFunc("PUT /api/events/{id}", s.handleUpdateEvent)
	s.mux.HandleFunc("POST /api/events/{id}", s.handleUpdateEvent)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDeleteEvent)

	s.mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	s.mux.HandleFunc("GET /api/calendar/navigation", s.handleNavigate)
	s.mux.HandleFunc("GET /api/calendar/day-events", s.handleDayEvents)

	s.mux.HandleFunc("GET /calendar.ics", s.handleExport)
	s.mux.HandleFunc("POST /api/import", s.handleImport)

	s.mux.Handle("GET /", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// staticFileServer serves the embedded files from internal/web/static.
// Unknown /api/* paths are never answered with HTML.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/api" || strings.HasPrefix(path, "/api/") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

// sessionID returns the caller's session id, issuing a new cookie when the
// request has none or carries a malformed one.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if _, perr := uuid.Parse(c.Value); perr == nil {
			return c.Value
		}
	}

	id := uuid.NewString()
	cookie := &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if s.opts.SessionMaxAge > 0 {
		cookie.MaxAge = int(s.opts.SessionMaxAge.Seconds())
	}
	http.SetCookie(w, cookie)
	appLog.Debug("session issued", "session", id)
	return id
}

// methodOverride lets HTML forms reach PUT and DELETE handlers: a POST with
// a _method form field (or X-HTTP-Method-Override header) is rerouted.
func methodOverride(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			override := r.Header.Get("X-HTTP-Method-Override")
			if override == "" && isFormRequest(r) {
				override = r.PostFormValue("_method")
			}
			switch m := strings.ToUpper(strings.TrimSpace(override)); m {
			case http.MethodPut, http.MethodDelete:
				r.Method = m
			}
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed", time.Since(started).String(),
		)
	})
}

func isFormRequest(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(ct, "multipart/form-data")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// writeServiceError maps a model.Error kind to a status code. Store
// failures are logged and reported without their cause.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		appLog.Error("request failed", err, "op", op)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
