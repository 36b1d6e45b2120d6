package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/staygrid/internal/core"
	"github.com/go-redis/redis/v8"
)

// Redis is a core.Store kept under one key. Every save publishes the key on
// channel so other processes can reload it.
type Redis struct {
	client  *redis.Client
	key     string
	channel string
}

// NewRedis returns a store for key that announces saves on channel.
func NewRedis(client *redis.Client, key, channel string) *Redis {
	return &Redis{client: client, key: key, channel: channel}
}

// Load reads the document. ok is false when the key does not exist.
func (r *Redis) Load(ctx context.Context) (core.Document, bool, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.Document{}, false, nil
	}
	if err != nil {
		return core.Document{}, false, fmt.Errorf("load %s: %w", r.key, err)
	}

	var doc core.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return core.Document{}, false, fmt.Errorf("decode %s: %w", r.key, err)
	}
	return doc, true, nil
}

// Save overwrites the document and publishes the change in one MULTI block.
func (r *Redis) Save(ctx context.Context, doc core.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", r.key, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key, data, 0)
		pipe.Publish(ctx, r.channel, r.key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", r.key, err)
	}
	return nil
}

// Watch subscribes to the channel and calls onChange with the reloaded
// document for every message naming this store's key. The client
// resubscribes on its own after a dropped connection.
func (r *Redis) Watch(ctx context.Context, onChange func(core.Document)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	slog.Info("store subscriber started", "channel", r.channel, "key", r.key)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return errors.New("subscription closed")
			}
			if msg.Payload != r.key {
				continue
			}
			doc, found, err := r.Load(ctx)
			if err != nil {
				slog.Error("reload after publish failed", "key", r.key, "error", err)
				continue
			}
			if found {
				onChange(doc)
			}
		}
	}
}
