package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/staygrid/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS reservation_documents (
	id           TEXT PRIMARY KEY,
	reservations JSONB NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
)`

const upsertSQL = `
INSERT INTO reservation_documents (id, reservations, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE
SET reservations = EXCLUDED.reservations, updated_at = EXCLUDED.updated_at`

const loadSQL = `SELECT reservations, updated_at FROM reservation_documents WHERE id = $1`

// Reconnect delays for Watch after the listening connection fails.
var (
	watchRetryMin = time.Second
	watchRetryMax = 30 * time.Second
)

// Postgres is a core.Store backed by one row of reservation_documents.
type Postgres struct {
	pool    *pgxpool.Pool
	id      string
	channel string
}

// NewPostgres returns a store for document id that announces saves on
// channel. channel must be a plain identifier.
func NewPostgres(pool *pgxpool.Pool, id, channel string) *Postgres {
	return &Postgres{pool: pool, id: id, channel: channel}
}

// EnsureSchema creates the document table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Load reads the document. ok is false when it has never been saved.
func (p *Postgres) Load(ctx context.Context) (core.Document, bool, error) {
	var (
		raw       []byte
		updatedAt time.Time
	)
	err := p.pool.QueryRow(ctx, loadSQL, p.id).Scan(&raw, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Document{}, false, nil
	}
	if err != nil {
		return core.Document{}, false, fmt.Errorf("load document %s: %w", p.id, err)
	}

	doc := core.Document{UpdatedAt: updatedAt}
	if err := json.Unmarshal(raw, &doc.Reservations); err != nil {
		return core.Document{}, false, fmt.Errorf("decode document %s: %w", p.id, err)
	}
	return doc, true, nil
}

// Save overwrites the document and notifies listeners in one transaction,
// so the notification is only delivered if the write commits.
func (p *Postgres) Save(ctx context.Context, doc core.Document) error {
	reservations := doc.Reservations
	if reservations == nil {
		reservations = []core.Reservation{}
	}
	raw, err := json.Marshal(reservations)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", p.id, err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	if _, err := tx.Exec(ctx, upsertSQL, p.id, raw, doc.UpdatedAt); err != nil {
		return fmt.Errorf("save document %s: %w", p.id, err)
	}
	if _, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", p.channel, p.id); err != nil {
		return fmt.Errorf("notify %s: %w", p.channel, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Watch listens on the channel and calls onChange with the reloaded
// document for every notification naming this store's id. A dropped
// connection is re-established with backoff. Watch returns when ctx is done.
func (p *Postgres) Watch(ctx context.Context, onChange func(core.Document)) error {
	delay := watchRetryMin
	for {
		started := time.Now()
		err := p.listen(ctx, onChange)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(started) > watchRetryMax {
			delay = watchRetryMin
		}
		slog.Warn("store listener disconnected", "channel", p.channel, "error", err, "retry_in", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, watchRetryMax)
	}
}

// listen takes a connection out of the pool and holds it in LISTEN until it
// fails. The connection is closed afterwards rather than returned.
func (p *Postgres) listen(ctx context.Context, onChange func(core.Document)) error {
	pooled, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener: %w", err)
	}
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{p.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", p.channel, err)
	}
	slog.Info("store listener started", "channel", p.channel, "document", p.id)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if n.Payload != p.id {
			continue
		}

		doc, ok, err := p.Load(ctx)
		if err != nil {
			slog.Error("reload after notification failed", "document", p.id, "error", err)
			continue
		}
		if ok {
			onChange(doc)
		}
	}
}
