// Package store implements core.Store, the shared reservation document.
//
// Postgres keeps one JSONB document per id and announces every save with
// NOTIFY so other processes can mirror it. Redis does the same with a plain
// key and PUBLISH. Memory is the single-process fallback used when no
// backend is configured and in tests.
package store

import (
	"context"
	"sync"

	"github.com/JonMunkholm/staygrid/internal/core"
)

// Memory is an in-process core.Store.
type Memory struct {
	mu       sync.RWMutex
	doc      core.Document
	has      bool
	watchers map[chan core.Document]struct{}
}

// NewMemory returns an empty memory store.
func NewMemory() *Memory {
	return &Memory{watchers: make(map[chan core.Document]struct{})}
}

// Load returns a copy of the stored document.
func (m *Memory) Load(ctx context.Context) (core.Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return core.Document{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.has {
		return core.Document{}, false, nil
	}
	return cloneDocument(m.doc), true, nil
}

// Save replaces the document and notifies watchers. A watcher that has not
// consumed the previous change only sees the latest one.
func (m *Memory) Save(ctx context.Context, doc core.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc = cloneDocument(doc)

	m.mu.Lock()
	m.doc = doc
	m.has = true
	for ch := range m.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- cloneDocument(doc)
	}
	m.mu.Unlock()
	return nil
}

// Watch calls onChange for every save until ctx is done.
func (m *Memory) Watch(ctx context.Context, onChange func(core.Document)) error {
	ch := make(chan core.Document, 1)

	m.mu.Lock()
	m.watchers[ch] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.watchers, ch)
		m.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case doc := <-ch:
			onChange(doc)
		}
	}
}

func cloneDocument(doc core.Document) core.Document {
	out := core.Document{UpdatedAt: doc.UpdatedAt}
	if doc.Reservations != nil {
		out.Reservations = make([]core.Reservation, len(doc.Reservations))
		copy(out.Reservations, doc.Reservations)
	}
	return out
}
