package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/staygrid/internal/metrics"
	"github.com/google/uuid"
)

// SaveTimeout bounds one write to the shared store.
var SaveTimeout = 15 * time.Second

// ServiceConfig configures a Service. Zero values get defaults.
type ServiceConfig struct {
	// Location is the zone whose midnight starts "today". Default time.Local.
	Location *time.Location
	// Now is the clock. Default time.Now.
	Now func() time.Time

	MaxConcurrentIngests int
	MaxIngestWait        time.Duration

	Logger *slog.Logger
}

// Service owns the current reservation set and mirrors it to a Store.
//
// Every replacement of the set (Ingest, AddManual, Reclassify, documents
// from the store, Reset) is serialized by writeMu. Ingest and AddManual
// persist before they touch local state, so a failed save leaves the
// previous set in place. Readers take a snapshot under a read lock.
type Service struct {
	store   Store
	loc     *time.Location
	now     func() time.Time
	limiter *IngestLimiter
	log     *slog.Logger

	writeMu sync.Mutex

	mu          sync.RWMutex
	loaded      bool
	today       time.Time
	buckets     Buckets
	generatedAt time.Time
	// docAt is the UpdatedAt of the newest document saved or applied.
	docAt time.Time
}

// NewService creates a Service backed by store.
func NewService(store Store, cfg ServiceConfig) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:   store,
		loc:     cfg.Location,
		now:     cfg.Now,
		limiter: NewIngestLimiter(cfg.MaxConcurrentIngests, cfg.MaxIngestWait),
		log:     cfg.Logger,
	}
}

// Location returns the zone used for "today".
func (s *Service) Location() *time.Location { return s.loc }

// Today returns the current calendar day in the service's zone.
func (s *Service) Today() time.Time {
	return StartOfDay(s.now(), s.loc)
}

// Limiter exposes the ingest limiter for health reporting.
func (s *Service) Limiter() *IngestLimiter { return s.limiter }

// WaitForIngests blocks until running ingestions finish or ctx is done.
func (s *Service) WaitForIngests(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// Ingest replaces the reservation set with the rows of files.
//
// Files are decoded concurrently and joined in order. On ErrEmptyDataset the
// current set is kept. The new set is saved to the store first; if that
// fails the returned error wraps ErrPersistence and nothing changes locally.
func (s *Service) Ingest(ctx context.Context, files []FileInput) (*IngestResult, error) {
	start := time.Now()

	if err := s.limiter.Acquire(ctx); err != nil {
		metrics.RecordIngest("busy", time.Since(start))
		return nil, err
	}
	metrics.SetIngestActive(s.limiter.ActiveCount())
	defer func() {
		s.limiter.Release()
		metrics.SetIngestActive(s.limiter.ActiveCount())
	}()

	batchID := uuid.New().String()
	log := s.log.With("batch_id", batchID, "files", len(files))

	rows, stats, err := IngestFiles(ctx, files)
	for _, fs := range stats {
		metrics.RecordFile(fs.Encoding, fs.ValidRows)
		if fs.Encoding == EncodingShiftJIS {
			log.Info("header recovered with legacy encoding", "file", fs.FileName)
		}
	}
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrEmptyDataset) {
			outcome = "empty"
		}
		metrics.RecordIngest(outcome, time.Since(start))
		log.Warn("ingest rejected", "error", err)
		return nil, err
	}

	snap, err := s.replace(ctx, FromRows(rows))
	if err != nil {
		metrics.RecordIngest("persist_error", time.Since(start))
		log.Error("ingest not persisted", "error", err)
		return nil, err
	}

	duration := time.Since(start)
	metrics.RecordIngest("ok", duration)
	log.Info("ingest complete",
		"rows", len(rows),
		"active", len(snap.ActiveReservations),
		"rooms", len(snap.Rooms),
		"duration_ms", duration.Milliseconds(),
	)

	return &IngestResult{
		BatchID:  batchID,
		Files:    stats,
		Rows:     len(rows),
		Snapshot: snap,
		Duration: duration,
	}, nil
}

// AddManual adds one hand-entered booking and reclassifies the full set.
// A set must already be loaded.
func (s *Service) AddManual(ctx context.Context, m ManualBooking) (Snapshot, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	loaded, history := s.loaded, s.buckets.All
	s.mu.RUnlock()
	if !loaded {
		return Snapshot{}, ErrNotLoaded
	}

	next, _, err := AddManual(history, m, s.now(), s.Today())
	if err != nil {
		return Snapshot{}, err
	}

	snap, err := s.replaceLocked(ctx, next)
	if err != nil {
		s.log.Error("manual booking not persisted", "room", m.Room, "error", err)
		return Snapshot{}, err
	}
	s.log.Info("manual booking added", "room", m.Room, "check_in", m.CheckIn)
	return snap, nil
}

// replace serializes a full replacement of the set with records.
func (s *Service) replace(ctx context.Context, records []Reservation) (Snapshot, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.replaceLocked(ctx, records)
}

// replaceLocked classifies records, saves them and then installs them.
// writeMu must be held.
func (s *Service) replaceLocked(ctx context.Context, records []Reservation) (Snapshot, error) {
	now := s.now()
	today := StartOfDay(now, s.loc)
	b := Classify(records, today)

	saveCtx, cancel := context.WithTimeout(ctx, SaveTimeout)
	defer cancel()

	err := s.store.Save(saveCtx, Document{Reservations: b.All, UpdatedAt: now})
	metrics.RecordStoreOp("save", err)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.mu.Lock()
	s.docAt = now
	s.mu.Unlock()
	return s.install(b, today, now), nil
}

// install makes b the current set.
func (s *Service) install(b Buckets, today, generatedAt time.Time) Snapshot {
	s.mu.Lock()
	s.buckets = b
	s.today = today
	s.generatedAt = generatedAt
	s.loaded = true
	s.mu.Unlock()

	metrics.SetReservations(len(b.Active), len(b.Cancelled), len(b.Changed), len(b.Rooms))
	return SnapshotOf(b, generatedAt)
}

// Snapshot returns the current derived state, or ErrNotLoaded.
func (s *Service) Snapshot() (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return Snapshot{}, ErrNotLoaded
	}
	return SnapshotOf(s.buckets, s.generatedAt), nil
}

// Loaded reports whether a reservation set is installed.
func (s *Service) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Grid builds a fresh grid from the active bucket, optionally windowed to
// [from, to]. Zero bounds are open.
func (s *Service) Grid(from, to time.Time) (Grid, BuildStats, error) {
	s.mu.RLock()
	if !s.loaded {
		s.mu.RUnlock()
		return nil, BuildStats{}, ErrNotLoaded
	}
	active, rooms := s.buckets.Active, s.buckets.Rooms
	s.mu.RUnlock()

	grid, stats := s.buildGrid(active, rooms)
	if !from.IsZero() || !to.IsZero() {
		grid = grid.Window(from, to)
	}
	return grid, stats, nil
}

// MonthView returns the calendar for month (YYYY-MM, empty for the current
// month).
func (s *Service) MonthView(month string) (MonthView, error) {
	s.mu.RLock()
	if !s.loaded {
		s.mu.RUnlock()
		return MonthView{}, ErrNotLoaded
	}
	active, rooms := s.buckets.Active, s.buckets.Rooms
	s.mu.RUnlock()

	today := s.Today()
	m, err := ParseMonth(month, today)
	if err != nil {
		return MonthView{}, err
	}
	grid, _ := s.buildGrid(active, rooms)
	return BuildMonthView(grid, rooms, m, today), nil
}

func (s *Service) buildGrid(active []Reservation, rooms []string) (Grid, BuildStats) {
	start := time.Now()
	grid, stats := BuildGrid(active, rooms)
	metrics.RecordGridBuild(time.Since(start), stats.SkippedInvalid, stats.Turnovers, stats.Collisions, stats.Truncated)
	if stats.SkippedInvalid > 0 || stats.Collisions > 0 {
		s.log.Debug("grid built with skipped entries",
			"skipped_invalid", stats.SkippedInvalid,
			"collisions", stats.Collisions,
			"truncated", stats.Truncated,
		)
	}
	return grid, stats
}

// Reset drops the local set and returns to the not-loaded state. The shared
// store is left as is.
func (s *Service) Reset() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.resetLocked()
}

// resetLocked clears the set. writeMu must be held.
func (s *Service) resetLocked() {
	s.mu.Lock()
	s.loaded = false
	s.buckets = Buckets{}
	s.generatedAt = time.Time{}
	s.docAt = time.Time{}
	s.mu.Unlock()

	metrics.SetReservations(0, 0, 0, 0)
	s.log.Info("reservation set cleared")
}

// Reclassify recomputes the buckets against the current day. It is a no-op
// when nothing is loaded or the day has not changed.
func (s *Service) Reclassify() bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	today := s.Today()

	s.mu.RLock()
	loaded, prev, all := s.loaded, s.today, s.buckets.All
	s.mu.RUnlock()

	if !loaded || prev.Equal(today) {
		return false
	}

	s.install(Classify(all, today), today, s.now())
	s.log.Info("reservations reclassified", "today", FormatISODate(today))
	return true
}

// Restore loads the stored document, if any, into local state.
func (s *Service) Restore(ctx context.Context) error {
	doc, ok, err := s.store.Load(ctx)
	metrics.RecordStoreOp("load", err)
	if err != nil {
		return fmt.Errorf("restore reservations: %w", err)
	}
	if !ok {
		s.log.Info("no stored reservations")
		return nil
	}
	s.ApplyDocument(doc)
	return nil
}

// Watch mirrors store changes into local state until ctx is done.
func (s *Service) Watch(ctx context.Context) error {
	return s.store.Watch(ctx, func(doc Document) {
		metrics.RecordStoreOp("notify", nil)
		s.ApplyDocument(doc)
	})
}

// ApplyDocument reclassifies a document received from the store. An empty
// document clears the set. A document older than the last one saved or
// applied here is ignored.
func (s *Service) ApplyDocument(doc Document) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	docAt := s.docAt
	s.mu.RUnlock()
	if !doc.UpdatedAt.IsZero() && doc.UpdatedAt.Before(docAt) {
		s.log.Debug("ignored stale stored document",
			"updated_at", doc.UpdatedAt,
			"current", docAt,
		)
		return
	}

	if len(doc.Reservations) == 0 {
		s.resetLocked()
		return
	}

	today := s.Today()
	generatedAt := doc.UpdatedAt
	if generatedAt.IsZero() {
		generatedAt = s.now()
	}
	s.mu.Lock()
	s.docAt = doc.UpdatedAt
	s.mu.Unlock()
	b := s.install(Classify(doc.Reservations, today), today, generatedAt)
	s.log.Debug("applied stored reservations",
		"reservations", len(doc.Reservations),
		"active", len(b.ActiveReservations),
	)
}
