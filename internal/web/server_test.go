package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/staygrid/internal/config"
	"github.com/JonMunkholm/staygrid/internal/core"
	"github.com/JonMunkholm/staygrid/internal/store"
)

const sampleCSV = "予約区分,予約番号,部屋タイプ名称,宿泊者氏名,チェックイン日,チェックアウト日,予約サイト名称\n" +
	"予約,R1,Twin,Smith,2024/05/08,2024/05/10,Jalan\n" +
	"予約,R2,Twin,Jones,2024/05/10,2024/05/12,Rakuten\n" +
	"キャンセル,R3,Single,Brown,2024/05/20,2024/05/21,Jalan\n"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		Ingest: config.IngestConfig{MaxFileSize: 1 << 20, MaxFiles: 2, MaxConcurrent: 2, MaxWaitTime: time.Second},
		Rate:   config.RateLimitConfig{Enabled: false, RequestsPerMinute: 100, IngestLimit: 10},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	now := time.Date(2024, 5, 9, 12, 0, 0, 0, time.UTC)
	svc := core.NewService(store.NewMemory(), core.ServiceConfig{
		Location:             time.UTC,
		Now:                  func() time.Time { return now },
		MaxConcurrentIngests: cfg.Ingest.MaxConcurrent,
		MaxIngestWait:        cfg.Ingest.MaxWaitTime,
		Logger:               slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	s := NewServer(svc, cfg)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func uploadRequest(t *testing.T, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := io.WriteString(part, content); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/ingest", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v (body %q)", err, rec.Body.String())
	}
	return resp
}

func TestIngestThenSnapshot(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := serve(s, uploadRequest(t, map[string]string{"ReservationList.CSV": sampleCSV}))
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result core.IngestResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode ingest result: %v", err)
	}
	if result.Rows != 3 {
		t.Errorf("Rows = %d, want 3", result.Rows)
	}
	if len(result.Snapshot.ActiveReservations) != 2 {
		t.Errorf("active = %d, want 2", len(result.Snapshot.ActiveReservations))
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot status = %d", rec.Code)
	}
	var snap core.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if got := len(snap.CancelledReservations); got != 1 {
		t.Errorf("cancelled = %d, want 1", got)
	}
	if want := []string{"Single", "Twin"}; strings.Join(snap.Rooms, ",") != strings.Join(want, ",") {
		t.Errorf("rooms = %v, want %v", snap.Rooms, want)
	}
}

func TestIngestErrors(t *testing.T) {
	tests := []struct {
		name       string
		req        func(t *testing.T) *http.Request
		wantStatus int
		wantCode   string
	}{
		{
			name: "no files",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, map[string]string{})
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE004",
		},
		{
			name: "no reservation rows",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, map[string]string{"a.csv": "foo,bar\n1,2\n"})
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "FILE005",
		},
		{
			name: "too many files",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, map[string]string{"a.csv": sampleCSV, "b.csv": sampleCSV, "c.csv": sampleCSV})
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE002",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/ingest", strings.NewReader("x"))
				req.Header.Set("Content-Type", "text/plain")
				return req
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VAL004",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, testConfig())
			rec := serve(s, tt.req(t))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if got := decodeError(t, rec).Code; got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestIngestFromBrowserRedirects(t *testing.T) {
	s := newTestServer(t, testConfig())
	req := uploadRequest(t, map[string]string{"ReservationList.CSV": sampleCSV})
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	rec := serve(s, req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want /", loc)
	}
}

func TestReadEndpointsBeforeLoad(t *testing.T) {
	s := newTestServer(t, testConfig())
	for _, path := range []string{"/api/snapshot", "/api/grid", "/api/calendar", "/api/export", "/api/calendar.ics"} {
		t.Run(path, func(t *testing.T) {
			rec := serve(s, httptest.NewRequest(http.MethodGet, path, nil))
			if rec.Code != http.StatusNotFound {
				t.Fatalf("status = %d, want 404", rec.Code)
			}
			if got := decodeError(t, rec).Code; got != "ING002" {
				t.Errorf("code = %q, want ING002", got)
			}
		})
	}
}

func TestGrid(t *testing.T) {
	s := newTestServer(t, testConfig())
	if rec := serve(s, uploadRequest(t, map[string]string{"r.csv": sampleCSV})); rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d", rec.Code)
	}

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/grid?from=2024-05-10&to=2024-05-10", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp gridResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	cell, ok := resp.Grid["Twin"]["2024-05-10"]
	if !ok {
		t.Fatalf("missing Twin 2024-05-10 cell: %+v", resp.Grid)
	}
	if cell.Kind != core.CellTurnover || cell.OutgoingGuest != "Smith" || cell.IncomingGuest != "Jones" {
		t.Errorf("cell = %+v, want turnover Smith -> Jones", cell)
	}
	if _, ok := resp.Grid["Twin"]["2024-05-09"]; ok {
		t.Error("window should exclude 2024-05-09")
	}
	if resp.Stats.Turnovers != 1 {
		t.Errorf("Turnovers = %d, want 1", resp.Stats.Turnovers)
	}
}

func TestGrid_InvalidParams(t *testing.T) {
	s := newTestServer(t, testConfig())
	tests := []struct {
		query    string
		wantCode string
	}{
		{"from=2024-13-01", "VAL002"},
		{"to=yesterday", "VAL002"},
		{"from=2024-05-10&to=2024-05-01", "VAL001"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/grid?"+tt.query, nil))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if got := decodeError(t, rec).Code; got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestManualReservation(t *testing.T) {
	s := newTestServer(t, testConfig())
	if rec := serve(s, uploadRequest(t, map[string]string{"r.csv": sampleCSV})); rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d", rec.Code)
	}

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"valid", `{"room":"Suite","guestName":"Tanaka","checkIn":"2024-05-15","checkOut":"2024-05-17"}`, http.StatusCreated},
		{"missing guest", `{"room":"Suite","checkIn":"2024-05-15","checkOut":"2024-05-17"}`, http.StatusBadRequest},
		{"reversed dates", `{"room":"Suite","guestName":"Tanaka","checkIn":"2024-05-17","checkOut":"2024-05-15"}`, http.StatusBadRequest},
		{"malformed", `{"room":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/reservations/manual", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := serve(s, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}

	snap, err := s.service.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	found := false
	for _, r := range snap.ActiveReservations {
		if r.GuestName == "Tanaka" && r.BookingSite == core.ManualBookingSite {
			found = true
		}
	}
	if !found {
		t.Error("manual booking missing from active reservations")
	}
}

func TestExport(t *testing.T) {
	s := newTestServer(t, testConfig())
	if rec := serve(s, uploadRequest(t, map[string]string{"r.csv": sampleCSV})); rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d", rec.Code)
	}

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/export?month=2024-05", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	want := `attachment; filename="calendar_export_2024-05-09.html"`
	if got := rec.Header().Get("Content-Disposition"); got != want {
		t.Errorf("Content-Disposition = %q, want %q", got, want)
	}
	if !strings.Contains(rec.Body.String(), `id="calendar-data"`) {
		t.Error("export missing embedded data")
	}
}

func TestICalFeed(t *testing.T) {
	s := newTestServer(t, testConfig())
	if rec := serve(s, uploadRequest(t, map[string]string{"r.csv": sampleCSV})); rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d", rec.Code)
	}

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/calendar.ics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	if got := strings.Count(body, "BEGIN:VEVENT"); got != 3 {
		t.Errorf("events = %d, want 3", got)
	}
	if !strings.Contains(body, "STATUS:CANCELLED") {
		t.Error("cancelled booking missing from feed")
	}
}

func TestCalendarPage(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(rec.Body.String(), `action="/upload"`) {
		t.Error("upload form not shown before load")
	}

	if rec := serve(s, uploadRequest(t, map[string]string{"r.csv": sampleCSV})); rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d", rec.Code)
	}
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/?month=2024-05", nil))
	body := rec.Body.String()
	for _, want := range []string{`href="/?month=2024-04"`, `href="/?month=2024-06"`, `id="date-2024-05-09" class="today"`} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestBrowserRoutesWithAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"secret"}
	s := newTestServer(t, cfg)

	if rec := serve(s, uploadRequest(t, map[string]string{"r.csv": sampleCSV})); rec.Code != http.StatusUnauthorized {
		t.Fatalf("/api/ingest without key status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	req := uploadRequest(t, map[string]string{"r.csv": sampleCSV})
	req.URL.Path = "/upload"
	req.Header.Set("Accept", "text/html")
	rec := serve(s, req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("/upload status = %d, want %d (body %s)", rec.Code, http.StatusSeeOther, rec.Body.String())
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/?month=2024-05", nil))
	if body := rec.Body.String(); !strings.Contains(body, `href="/export?month=2024-05"`) {
		t.Error("calendar page should link to the browser export route")
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/export?month=2024-05", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/export status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(got, "attachment;") {
		t.Errorf("Content-Disposition = %q", got)
	}
}

func TestHTMLErrorPage(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/export", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	want := "No reservation data loaded (Code: ING002). Upload a reservation export first"
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("body = %s, want it to contain %q", rec.Body.String(), want)
	}
}

func TestLogLevelFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		want   slog.Level
	}{
		{"known rejection", core.ErrEmptyDataset, http.StatusUnprocessableEntity, slog.LevelWarn},
		{"known server failure", core.ErrPersistence, http.StatusBadGateway, slog.LevelError},
		{"unknown client error", io.ErrUnexpectedEOF, http.StatusBadRequest, slog.LevelError},
		{"validation", &core.ValidationError{Field: "room", Reason: "required field is empty"}, http.StatusBadRequest, slog.LevelWarn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := logLevelFor(tt.err, tt.status); got != tt.want {
				t.Errorf("logLevelFor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResetAndHealth(t *testing.T) {
	s := newTestServer(t, testConfig())
	if rec := serve(s, uploadRequest(t, map[string]string{"r.csv": sampleCSV})); rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d", rec.Code)
	}

	if rec := serve(s, httptest.NewRequest(http.MethodPost, "/api/reset", nil)); rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var health struct {
		Status string `json:"status"`
		Loaded bool   `json:"loaded"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" || health.Loaded {
		t.Errorf("health = %+v, want ok and not loaded", health)
	}
}

func TestSecurityHeaders(t *testing.T) {
	cfg := testConfig()
	cfg.Security.EnableCSP = true
	s := newTestServer(t, cfg)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("missing header %s", h)
		}
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, IngestLimit: 1}
	s := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		if rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := decodeError(t, rec).Code; got != "RATE001" {
		t.Errorf("code = %q, want RATE001", got)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrEmptyDataset, http.StatusUnprocessableEntity},
		{core.ErrNotLoaded, http.StatusNotFound},
		{core.ErrTooManyIngests, http.StatusServiceUnavailable},
		{core.ErrNoFiles, http.StatusBadRequest},
		{&core.ValidationError{Field: "room", Reason: "required field is empty"}, http.StatusBadRequest},
		{errTooManyFiles, http.StatusBadRequest},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor() = %d, want %d", got, tt.want)
			}
		})
	}
}
