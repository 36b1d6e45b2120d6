package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/staygrid/internal/core"
	"github.com/JonMunkholm/staygrid/internal/feed"
	"github.com/JonMunkholm/staygrid/internal/logging"
	"github.com/JonMunkholm/staygrid/internal/web/views"
	"github.com/a-h/templ"
)

// maxManualBody bounds the JSON body of a manual booking.
const maxManualBody = 64 << 10

// multipartMemory is how much of a multipart form is kept in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

var (
	errRequestTooLarge = errors.New("file too large")
	errTooManyFiles    = errors.New("too many files")
	errInvalidBody     = errors.New("invalid request body")
)

// handleIngest replaces the reservation set with the uploaded CSV files.
// Browsers posting the upload form are redirected back to the calendar.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	maxFile := s.cfg.Ingest.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxFile*int64(s.cfg.Ingest.MaxFiles)+multipartMemory)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, errRequestTooLarge, http.StatusRequestEntityTooLarge)
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: %w", errInvalidBody, err), http.StatusBadRequest)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		s.respondError(w, r, core.ErrNoFiles, http.StatusBadRequest)
		return
	}
	if len(headers) > s.cfg.Ingest.MaxFiles {
		s.respondError(w, r, fmt.Errorf("%w: %d > %d", errTooManyFiles, len(headers), s.cfg.Ingest.MaxFiles), http.StatusBadRequest)
		return
	}

	inputs := make([]core.FileInput, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > maxFile {
			s.respondError(w, r, fmt.Errorf("%w: %s", errRequestTooLarge, fh.Filename), http.StatusRequestEntityTooLarge)
			return
		}
		inputs = append(inputs, core.FileInput{Name: fh.Filename, Open: readPart(fh)})
	}

	result, err := s.service.Ingest(r.Context(), inputs)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	if acceptsHTML(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func readPart(fh *multipart.FileHeader) func() ([]byte, error) {
	return func() ([]byte, error) {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	}
}

// handleManualReservation adds one booking entered by hand.
func (s *Server) handleManualReservation(w http.ResponseWriter, r *http.Request) {
	var m core.ManualBooking
	dec := json.NewDecoder(io.LimitReader(r.Body, maxManualBody))
	if err := dec.Decode(&m); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: %w", errInvalidBody, err), http.StatusBadRequest)
		return
	}

	snap, err := s.service.AddManual(r.Context(), m)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// handleSnapshot returns the classified reservation set.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Snapshot()
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// gridResponse is the body of GET /api/grid.
type gridResponse struct {
	From  string          `json:"from,omitempty"`
	To    string          `json:"to,omitempty"`
	Grid  core.Grid       `json:"grid"`
	Stats core.BuildStats `json:"stats"`
}

// handleGrid returns the occupancy grid, optionally limited by ?from= and
// ?to= (YYYY-MM-DD, inclusive).
func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	from, err := parseDateParam(r, "from")
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	to, err := parseDateParam(r, "to")
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		s.respondError(w, r, &core.ValidationError{Field: "to", Reason: "invalid date range"}, http.StatusBadRequest)
		return
	}

	grid, stats, err := s.service.Grid(from, to)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, gridResponse{
		From:  r.URL.Query().Get("from"),
		To:    r.URL.Query().Get("to"),
		Grid:  grid,
		Stats: stats,
	})
}

// parseDateParam reads an optional YYYY-MM-DD query parameter.
func parseDateParam(r *http.Request, name string) (time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(core.ISODateLayout, v)
	if err != nil {
		return time.Time{}, &core.ValidationError{Field: name, Reason: "invalid date"}
	}
	return t, nil
}

// handleCalendar returns the month view for ?month=YYYY-MM.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.MonthView(r.URL.Query().Get("month"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleExport serves the month calendar as a self-contained HTML download.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Snapshot()
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	view, err := s.service.MonthView(r.URL.Query().Get("month"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	snap.GeneratedAt = snap.GeneratedAt.In(s.service.Location())

	filename := "calendar_export_" + core.FormatISODate(s.service.Today()) + ".html"
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := views.Export(view, snap).Render(r.Context(), w); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
	}
}

// handleICalFeed serves the reservation set as an iCalendar feed.
func (s *Server) handleICalFeed(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Snapshot()
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	cal := feed.Calendar(snap, "予約カレンダー", s.service.Location())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="reservations.ics"`)
	if _, err := io.WriteString(w, cal.Serialize()); err != nil {
		logging.FromContext(r.Context()).Warn("write calendar feed", "error", err)
	}
}

// handleReset drops the loaded reservation set.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.service.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// handleHealth reports liveness plus load and ingest state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"loaded": s.service.Loaded(),
		"ingest": s.service.Limiter().Status(),
	})
}

// handleCalendarPage renders the upload form until data is loaded, then the
// month calendar for ?month=.
func (s *Server) handleCalendarPage(w http.ResponseWriter, r *http.Request) {
	var body templ.Component
	if !s.service.Loaded() {
		body = views.UploadForm()
	} else {
		snap, err := s.service.Snapshot()
		if err != nil {
			s.respondError(w, r, err, statusFor(err))
			return
		}
		view, err := s.service.MonthView(r.URL.Query().Get("month"))
		if err != nil {
			s.respondError(w, r, err, statusFor(err))
			return
		}
		prev, next := adjacentMonths(view.Month)
		body = templ.Join(views.Calendar(view, snap, prev, next), views.UploadForm())
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.Page("予約カレンダー", body).Render(r.Context(), w); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
	}
}

// adjacentMonths returns the YYYY-MM months before and after month.
func adjacentMonths(month string) (prev, next string) {
	m, err := time.Parse("2006-01", month)
	if err != nil {
		return "", ""
	}
	return m.AddDate(0, -1, 0).Format("2006-01"), m.AddDate(0, 1, 0).Format("2006-01")
}

// acceptsHTML reports whether the request came from a browser form.
func acceptsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
