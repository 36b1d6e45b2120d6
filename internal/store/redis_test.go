package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/JonMunkholm/staygrid/internal/core"
	"github.com/go-redis/redis/v8"
)

var _ core.Store = (*Redis)(nil)

// newTestRedis connects to STAYGRID_TEST_REDIS_URL or skips.
func newTestRedis(t *testing.T, key string) *Redis {
	t.Helper()
	url := os.Getenv("STAYGRID_TEST_REDIS_URL")
	if url == "" {
		t.Skip("STAYGRID_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() {
		client.Del(context.Background(), key)
		_ = client.Close()
	})
	return NewRedis(client, key, key+":changed")
}

func TestRedis_SaveLoad(t *testing.T) {
	r := newTestRedis(t, "staygrid:test:save-load")
	ctx := context.Background()

	if _, ok, err := r.Load(ctx); err != nil || ok {
		t.Fatalf("Load() before save = ok %v, err %v", ok, err)
	}
	if err := r.Save(ctx, sampleDocument()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, ok, err := r.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("Load() = ok %v, err %v", ok, err)
	}
	if len(got.Reservations) != 1 || got.Reservations[0].Number != "R1" {
		t.Errorf("Load() reservations = %+v", got.Reservations)
	}
}

func TestRedis_WatchSeesSave(t *testing.T) {
	r := newTestRedis(t, "staygrid:test:watch")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	got := make(chan core.Document, 4)
	go func() { _ = r.Watch(ctx, func(doc core.Document) { got <- doc }) }()

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-got:
			return
		case <-tick.C:
			if err := r.Save(ctx, sampleDocument()); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
		case <-ctx.Done():
			t.Fatal("no message received")
		}
	}
}
