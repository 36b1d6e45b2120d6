package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeStore is an in-memory Store whose Save can be made to fail.
type fakeStore struct {
	mu      sync.Mutex
	doc     Document
	has     bool
	saves   int
	saveErr error
}

func (f *fakeStore) Load(ctx context.Context) (Document, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doc, f.has, nil
}

func (f *fakeStore) Save(ctx context.Context, doc Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.doc, f.has = doc, true
	f.saves++
	return nil
}

func (f *fakeStore) Watch(ctx context.Context, onChange func(Document)) error {
	<-ctx.Done()
	return ctx.Err()
}

// testClock is a settable clock. hook, when set, runs on every read.
type testClock struct {
	mu   sync.Mutex
	now  time.Time
	hook func()
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	now, hook := c.now, c.hook
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	return now
}

func (c *testClock) SetHook(fn func()) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newTestService(st Store) (*Service, *testClock) {
	clock := &testClock{now: time.Date(2024, 5, 9, 10, 0, 0, 0, time.UTC)}
	svc := NewService(st, ServiceConfig{
		Location:             time.UTC,
		Now:                  clock.Now,
		MaxConcurrentIngests: 2,
		MaxIngestWait:        time.Second,
		Logger:               slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return svc, clock
}

func TestService_IngestAndRead(t *testing.T) {
	st := &fakeStore{}
	svc, _ := newTestService(st)

	if _, err := svc.Snapshot(); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("Snapshot() before ingest error = %v, want ErrNotLoaded", err)
	}

	res, err := svc.Ingest(context.Background(), []FileInput{staticFile("r.csv", exportCSV)})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.BatchID == "" || res.Rows != 2 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Snapshot.ActiveReservations) != 1 || len(res.Snapshot.CancelledReservations) != 1 {
		t.Errorf("snapshot = %+v", res.Snapshot)
	}
	if st.saves != 1 || len(st.doc.Reservations) != 2 {
		t.Errorf("store saves = %d docs = %d, want 1 and 2", st.saves, len(st.doc.Reservations))
	}

	grid, stats, err := svc.Grid(time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Grid() error = %v", err)
	}
	if stats.Cells != 3 || len(grid["ツイン"]) != 3 {
		t.Errorf("grid cells = %d (stats %+v)", len(grid["ツイン"]), stats)
	}

	view, err := svc.MonthView("2024-05")
	if err != nil {
		t.Fatalf("MonthView() error = %v", err)
	}
	if len(view.Rows) != 2 {
		t.Errorf("month rows = %d, want 2", len(view.Rows))
	}
}

func TestService_PersistenceFailureKeepsState(t *testing.T) {
	st := &fakeStore{}
	svc, _ := newTestService(st)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, []FileInput{staticFile("r.csv", exportCSV)}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	before, _ := svc.Snapshot()

	st.saveErr = errors.New("connection refused")
	other := "予約区分,予約番号,部屋タイプ名称,宿泊者氏名,チェックイン日,チェックアウト日\n予約,X1,B,Other,2024/06/01,2024/06/02\n"
	_, err := svc.Ingest(ctx, []FileInput{staticFile("other.csv", other)})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("Ingest() error = %v, want ErrPersistence", err)
	}

	after, _ := svc.Snapshot()
	if len(after.ActiveReservations) != len(before.ActiveReservations) ||
		after.ActiveReservations[0].GuestName != before.ActiveReservations[0].GuestName {
		t.Errorf("state changed after failed save: before %+v after %+v", before, after)
	}

	if _, err := svc.AddManual(ctx, ManualBooking{Room: "B", GuestName: "T", CheckIn: "2024-06-01", CheckOut: "2024-06-02"}); !errors.Is(err, ErrPersistence) {
		t.Errorf("AddManual() error = %v, want ErrPersistence", err)
	}
}

func TestService_EmptyDatasetKeepsState(t *testing.T) {
	svc, _ := newTestService(&fakeStore{})
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, []FileInput{staticFile("r.csv", exportCSV)}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if _, err := svc.Ingest(ctx, []FileInput{staticFile("x.csv", "a,b\n1,2\n")}); !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("Ingest() error = %v, want ErrEmptyDataset", err)
	}
	if !svc.Loaded() {
		t.Error("previous set should survive an empty upload")
	}
}

func TestService_AddManual(t *testing.T) {
	st := &fakeStore{}
	svc, _ := newTestService(st)
	ctx := context.Background()
	m := ManualBooking{Room: "Suite", GuestName: "Tanaka", CheckIn: "2024-05-15", CheckOut: "2024-05-17"}

	if _, err := svc.AddManual(ctx, m); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("AddManual() before load error = %v, want ErrNotLoaded", err)
	}

	if _, err := svc.Ingest(ctx, []FileInput{staticFile("r.csv", exportCSV)}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	snap, err := svc.AddManual(ctx, m)
	if err != nil {
		t.Fatalf("AddManual() error = %v", err)
	}
	if len(snap.ActiveReservations) != 2 {
		t.Errorf("active = %d, want 2", len(snap.ActiveReservations))
	}
	if len(st.doc.Reservations) != 3 {
		t.Errorf("stored reservations = %d, want 3", len(st.doc.Reservations))
	}

	var verr *ValidationError
	if _, err := svc.AddManual(ctx, ManualBooking{Room: "Suite"}); !errors.As(err, &verr) {
		t.Errorf("AddManual() invalid error = %v, want *ValidationError", err)
	}
}

func TestService_Reclassify(t *testing.T) {
	svc, clock := newTestService(&fakeStore{})

	if svc.Reclassify() {
		t.Error("Reclassify() with nothing loaded should be a no-op")
	}

	// The cancelled booking in exportCSV checks in on 2024/05/20.
	if _, err := svc.Ingest(context.Background(), []FileInput{staticFile("r.csv", exportCSV)}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if svc.Reclassify() {
		t.Error("Reclassify() on the same day should be a no-op")
	}

	clock.Set(time.Date(2024, 5, 21, 0, 0, 1, 0, time.UTC))
	if !svc.Reclassify() {
		t.Fatal("Reclassify() after day change returned false")
	}
	snap, _ := svc.Snapshot()
	if len(snap.CancelledReservations) != 0 {
		t.Errorf("cancelled = %d, want 0 after the check-in passed", len(snap.CancelledReservations))
	}
	if !svc.Today().Equal(day("2024/05/21")) {
		t.Errorf("Today() = %v", svc.Today())
	}
}

func TestService_ReclassifyKeepsConcurrentIngest(t *testing.T) {
	svc, clock := newTestService(&fakeStore{})
	ctx := context.Background()
	header := "予約区分,予約番号,部屋タイプ名称,宿泊者氏名,チェックイン日,チェックアウト日\n"

	if _, err := svc.Ingest(ctx, []FileInput{staticFile("old.csv", header+"予約,O1,A,Old,2024/06/01,2024/06/03\n")}); err != nil {
		t.Fatalf("Ingest(old) error = %v", err)
	}
	clock.Set(time.Date(2024, 5, 10, 0, 0, 1, 0, time.UTC))

	// Reclassify reads the clock once for today and again when it installs
	// the new buckets. An ingest started between the two must not be lost.
	var reads atomic.Int32
	ingestDone := make(chan error, 1)
	clock.SetHook(func() {
		if reads.Add(1) != 2 {
			return
		}
		go func() {
			_, err := svc.Ingest(ctx, []FileInput{staticFile("new.csv", header+"予約,N1,B,New,2024/06/01,2024/06/03\n")})
			ingestDone <- err
		}()
		select {
		case err := <-ingestDone:
			ingestDone <- err
		case <-time.After(50 * time.Millisecond):
		}
	})

	if !svc.Reclassify() {
		t.Fatal("Reclassify() after day change returned false")
	}
	if err := <-ingestDone; err != nil {
		t.Fatalf("Ingest(new) error = %v", err)
	}
	clock.SetHook(nil)

	snap, err := svc.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(snap.Rooms) != 1 || snap.Rooms[0] != "B" {
		t.Errorf("rooms = %v, want [B]", snap.Rooms)
	}
	if len(snap.ActiveReservations) != 1 || snap.ActiveReservations[0].GuestName != "New" {
		t.Errorf("active = %+v, want the ingested New booking", snap.ActiveReservations)
	}
}

func TestService_ApplyDocumentIgnoresStale(t *testing.T) {
	st := &fakeStore{}
	svc, clock := newTestService(st)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, []FileInput{staticFile("r.csv", exportCSV)}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	savedAt := st.doc.UpdatedAt

	older := Document{
		Reservations: []Reservation{
			{Number: "S1", RoomType: "Stale", GuestName: "Old", CheckIn: "2024/05/10", CheckOut: "2024/05/11", Status: StatusNew},
		},
		UpdatedAt: savedAt.Add(-time.Minute),
	}
	svc.ApplyDocument(older)
	snap, _ := svc.Snapshot()
	if len(snap.ActiveReservations) != 1 || snap.ActiveReservations[0].GuestName != "山田太郎" {
		t.Errorf("active after stale document = %+v, want the ingested set", snap.ActiveReservations)
	}

	svc.ApplyDocument(Document{UpdatedAt: savedAt.Add(-time.Second)})
	if !svc.Loaded() {
		t.Error("stale empty document should not clear the set")
	}

	clock.Set(savedAt.Add(time.Hour))
	newer := older
	newer.UpdatedAt = savedAt.Add(time.Minute)
	svc.ApplyDocument(newer)
	snap, _ = svc.Snapshot()
	if len(snap.ActiveReservations) != 1 || snap.ActiveReservations[0].GuestName != "Old" {
		t.Errorf("active after newer document = %+v, want the stored set", snap.ActiveReservations)
	}
}

func TestService_RestoreAndApplyDocument(t *testing.T) {
	st := &fakeStore{
		doc: Document{
			Reservations: []Reservation{
				{Number: "R1", RoomType: "A", GuestName: "Smith", CheckIn: "2024/05/08", CheckOut: "2024/05/10", Status: StatusNew},
			},
			UpdatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		},
		has: true,
	}
	svc, _ := newTestService(st)

	if err := svc.Restore(context.Background()); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	snap, err := svc.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if !snap.GeneratedAt.Equal(st.doc.UpdatedAt) || len(snap.ActiveReservations) != 1 {
		t.Errorf("restored snapshot = %+v", snap)
	}

	svc.ApplyDocument(Document{})
	if svc.Loaded() {
		t.Error("empty document should clear the set")
	}
}

func TestService_RestoreEmptyStore(t *testing.T) {
	svc, _ := newTestService(&fakeStore{})
	if err := svc.Restore(context.Background()); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if svc.Loaded() {
		t.Error("Restore() from an empty store should leave nothing loaded")
	}
}

func TestService_Reset(t *testing.T) {
	svc, _ := newTestService(&fakeStore{})
	if _, err := svc.Ingest(context.Background(), []FileInput{staticFile("r.csv", exportCSV)}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	svc.Reset()
	if _, _, err := svc.Grid(time.Time{}, time.Time{}); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Grid() after Reset error = %v, want ErrNotLoaded", err)
	}
}

func TestStartReclassifyScheduler_InvalidSpec(t *testing.T) {
	svc, _ := newTestService(&fakeStore{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.StartReclassifyScheduler(ctx, "not a spec"); err == nil {
		t.Error("StartReclassifyScheduler() should reject an invalid spec")
	}
	if err := svc.StartReclassifyScheduler(ctx, ""); err != nil {
		t.Errorf("StartReclassifyScheduler(default) error = %v", err)
	}
}
