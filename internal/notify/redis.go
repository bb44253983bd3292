// Package notify fans table changes out to other processes over redis pub/sub.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/store"
)

// Dial connects to redis and pings it.
func Dial(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

type envelope struct {
	Origin string       `json:"origin"`
	Change store.Change `json:"change"`
}

// Table decorates another table, publishing every successful write.
type Table struct {
	inner   store.Table
	client  *redis.Client
	channel string
	origin  string
	logger  *slog.Logger
}

// New wraps inner. The client is closed together with the table.
func New(inner store.Table, client *redis.Client, channel string, logger *slog.Logger) *Table {
	return &Table{
		inner:   inner,
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

func (t *Table) List(ctx context.Context) ([]model.Todo, error) {
	return t.inner.List(ctx)
}

func (t *Table) Upsert(ctx context.Context, todo model.Todo) error {
	if err := t.inner.Upsert(ctx, todo); err != nil {
		return err
	}
	t.publish(ctx, store.Change{Kind: store.ChangeUpsert, Todo: todo})
	return nil
}

func (t *Table) Delete(ctx context.Context, id string) error {
	if err := t.inner.Delete(ctx, id); err != nil {
		return err
	}
	t.publish(ctx, store.Change{Kind: store.ChangeDelete, Todo: model.Todo{ID: id}})
	return nil
}

func (t *Table) Close() error {
	err := t.inner.Close()
	if cerr := t.client.Close(); err == nil {
		err = cerr
	}
	return err
}

// publish is best effort: the write already landed, peers catch up on load.
func (t *Table) publish(ctx context.Context, c store.Change) {
	b, err := json.Marshal(envelope{Origin: t.origin, Change: c})
	if err != nil {
		return
	}
	if err := t.client.Publish(ctx, t.channel, b).Err(); err != nil {
		t.logger.Warn("notify: publish failed",
			slog.String("channel", t.channel),
			slog.String("id", c.Todo.ID),
			slog.String("error", err.Error()))
	}
}

// Watch merges changes published by other processes with the inner
// table's own watcher, when it has one.
func (t *Table) Watch(ctx context.Context) (<-chan store.Change, error) {
	sub := t.client.Subscribe(ctx, t.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("notify: subscribe %s: %w", t.channel, err)
	}

	sources := []<-chan store.Change{t.decode(ctx, sub)}
	if w, ok := t.inner.(store.Watcher); ok {
		ch, err := w.Watch(ctx)
		if err != nil {
			sub.Close()
			return nil, err
		}
		sources = append(sources, ch)
	}
	return merge(ctx, sources...), nil
}

func (t *Table) decode(ctx context.Context, sub *redis.PubSub) <-chan store.Change {
	out := make(chan store.Change, 64)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					t.logger.Warn("notify: bad message", slog.String("error", err.Error()))
					continue
				}
				if env.Origin == t.origin {
					continue
				}
				select {
				case out <- env.Change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func merge(ctx context.Context, sources ...<-chan store.Change) <-chan store.Change {
	if len(sources) == 1 {
		return sources[0]
	}
	out := make(chan store.Change, 64)
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src <-chan store.Change) {
			defer wg.Done()
			for c := range src {
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}(src)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
