package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"pantallita/internal/config"
	"pantallita/internal/ics"
	appLog "pantallita/internal/log"
	"pantallita/internal/model"
	"pantallita/internal/refresh"
	"pantallita/internal/repo"
	"pantallita/internal/timeline"
)

const (
	maxFeedDays     = 366
	shutdownTimeout = 5 * time.Second
)

// Server provides a read-only HTTP API over a content repository.
type Server struct {
	cfg     *config.Config
	refresh *refresh.Refresher
	mux     *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, f *refresh.Refresher) *Server {
	s := &Server{
		cfg:     cfg,
		refresh: f,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Pantallita", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves the API on cfg.Listen until ctx is canceled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	s.mux.HandleFunc("GET /api/now", s.handleNow)
	s.mux.HandleFunc("GET /api/templates", s.handleTemplates)
	s.mux.HandleFunc("POST /api/reload", s.handleReload)
	s.mux.HandleFunc("GET /calendar.ics", s.handleCalendar)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// snapshotResponse is the JSON response shape for /api/snapshot.
type snapshotResponse struct {
	Date      string        `json:"date"`
	Events    []eventDTO    `json:"events"`
	Schedule  scheduleDTO   `json:"schedule"`
	Templates []templateDTO `json:"templates"`
	Warnings  []string      `json:"warnings,omitempty"`
	LoadedAt  *time.Time    `json:"loaded_at,omitempty"`
}

type eventDTO struct {
	Date       string `json:"date"`
	TopLine    string `json:"top_line"`
	BottomLine string `json:"bottom_line"`
	Image      string `json:"image"`
	Color      string `json:"color"`
	StartHour  *int   `json:"start_hour,omitempty"`
	EndHour    *int   `json:"end_hour,omitempty"`
}

type scheduleDTO struct {
	Source       string    `json:"source"`
	DateSpecific bool      `json:"date_specific"`
	Items        []itemDTO `json:"items"`
}

type itemDTO struct {
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Days        string `json:"days"`
	DayNames    string `json:"day_names"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Image       string `json:"image"`
	Progressbar bool   `json:"progressbar"`
	// Progress is set by /api/now only.
	Progress *float64 `json:"progress,omitempty"`
}

type templateDTO struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// nowResponse is the JSON response shape for /api/now.
type nowResponse struct {
	At     time.Time  `json:"at"`
	Events []eventDTO `json:"events"`
	Items  []itemDTO  `json:"items"`
	Source string     `json:"source"`
}

// handleSnapshot returns what the display shows on a date.
//
// GET /api/snapshot?date=YYYY-MM-DD
//   - date: defaults to today; today is served from the refreshed
//     snapshot, other dates are loaded on demand.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("date")
	if q == "" {
		st := s.current()
		if st.Snapshot == nil {
			s.writeLoadError(w, st.Err)
			return
		}
		resp := toSnapshotResponse(st.Snapshot)
		resp.LoadedAt = &st.LoadedAt
		writeJSON(w, http.StatusOK, resp)
		return
	}

	date, err := time.Parse(model.DateLayout, q)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	snap, err := s.refresh.Repository().Load(date)
	if err != nil {
		s.writeLoadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotResponse(snap))
}

// handleNow returns the events and schedule items on screen right now.
func (s *Server) handleNow(w http.ResponseWriter, _ *http.Request) {
	st := s.current()
	if st.Snapshot == nil {
		s.writeLoadError(w, st.Err)
		return
	}

	now := s.refresh.Now()
	snap := st.Snapshot

	resp := nowResponse{
		At:     now,
		Events: toEventDTOs(timeline.ActiveEvents(snap.Events, now)),
		Items:  make([]itemDTO, 0),
		Source: snap.Schedule.Source,
	}
	for _, it := range timeline.ActiveItems(snap.Schedule, now) {
		dto := toItemDTO(it)
		if it.Progressbar {
			p := timeline.Progress(it, now)
			dto.Progress = &p
		}
		resp.Items = append(resp.Items, dto)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTemplates(w http.ResponseWriter, _ *http.Request) {
	templates, err := s.refresh.Repository().Templates()
	if err != nil {
		appLog.Error("api templates failed", err)
		writeError(w, http.StatusInternalServerError, "failed to list templates")
		return
	}
	writeJSON(w, http.StatusOK, toTemplateDTOs(templates))
}

func (s *Server) handleReload(w http.ResponseWriter, _ *http.Request) {
	snap, err := s.refresh.Reload()
	if err != nil {
		s.writeLoadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotResponse(snap))
}

// handleCalendar exports the coming days as an iCalendar feed.
//
// GET /calendar.ics?days=N
//   - days: number of days from today (default horizon_days, max 366)
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	days := parseIntDefault(r.URL.Query().Get("days"), s.cfg.HorizonDays)
	if days <= 0 {
		days = s.cfg.HorizonDays
	}
	if days > maxFeedDays {
		days = maxFeedDays
	}

	now := s.refresh.Now()
	src, warnings, err := ics.Collect(s.refresh.Repository(), now)
	if err != nil {
		s.writeLoadError(w, err)
		return
	}
	if len(warnings) > 0 {
		appLog.Warn("calendar: rows skipped", "count", len(warnings))
	}

	res, err := ics.Expand(src, ics.ExpandConfig{
		DisplayLocation: s.refresh.Location(),
		From:            now,
		Days:            days,
	})
	if err != nil {
		appLog.Error("calendar: expand failed", err)
		writeError(w, http.StatusInternalServerError, "failed to expand schedule")
		return
	}

	appLog.Debug("calendar request",
		"days", days,
		"occurrences", len(res.Occurrences),
		"truncated", len(res.TruncatedItems),
	)

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ics.Render(res.Occurrences, now)))
}

// current returns the refresher's status, reloading first when nothing
// good is loaded yet or the snapshot is for a day other than today. The
// cron may not have caught up with midnight.
func (s *Server) current() refresh.Status {
	st := s.refresh.Current()
	if st.Snapshot != nil && st.Snapshot.Date.Equal(repo.Day(s.refresh.Now())) {
		return st
	}
	if _, err := s.refresh.Reload(); err != nil {
		return refresh.Status{Err: err}
	}
	return s.refresh.Current()
}

// writeLoadError maps repository errors to HTTP statuses.
func (s *Server) writeLoadError(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeError(w, http.StatusServiceUnavailable, "no snapshot loaded")
	case model.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case model.IsFormat(err), model.IsValidation(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		appLog.Error("api load failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load repository")
	}
}

func toSnapshotResponse(snap *repo.Snapshot) snapshotResponse {
	resp := snapshotResponse{
		Date:      snap.Date.Format(model.DateLayout),
		Events:    toEventDTOs(snap.Events),
		Templates: toTemplateDTOs(snap.Templates),
		Schedule: scheduleDTO{
			Source:       snap.Schedule.Source,
			DateSpecific: snap.Schedule.DateSpecific,
			Items:        make([]itemDTO, 0, len(snap.Schedule.Items)),
		},
	}
	for _, it := range snap.Schedule.Items {
		resp.Schedule.Items = append(resp.Schedule.Items, toItemDTO(it))
	}
	for _, w := range snap.Warnings {
		resp.Warnings = append(resp.Warnings, w.Error())
	}
	return resp
}

func toEventDTOs(events []model.EventRecord) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		dto := eventDTO{
			Date:       ev.DateString(),
			TopLine:    ev.TopLine,
			BottomLine: ev.BottomLine,
			Image:      ev.Image,
			Color:      string(ev.Color),
		}
		if ev.HasHours {
			start, end := ev.StartHour, ev.EndHour
			dto.StartHour, dto.EndHour = &start, &end
		}
		out = append(out, dto)
	}
	return out
}

func toItemDTO(it model.ScheduleItem) itemDTO {
	return itemDTO{
		Name:        it.Name,
		Enabled:     it.Enabled,
		Days:        it.Days.String(),
		DayNames:    it.Days.Names(),
		Start:       clock(it.StartHour, it.StartMin),
		End:         clock(it.EndHour, it.EndMin),
		Image:       it.Image,
		Progressbar: it.Progressbar,
	}
}

func toTemplateDTOs(templates []repo.Template) []templateDTO {
	out := make([]templateDTO, 0, len(templates))
	for _, t := range templates {
		out = append(out, templateDTO{Name: t.Name, Path: t.Path})
	}
	return out
}

func clock(h, m int) string {
	return time.Date(0, 1, 1, h, m, 0, 0, time.UTC).Format("15:04")
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
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
