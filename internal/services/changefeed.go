package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/beaconhq/beacon/internal/logging"
)

const changeChannelPrefix = "changes:"

type ChangeOp string

const (
	ChangeOpInsert ChangeOp = "insert"
	ChangeOpUpdate ChangeOp = "update"
	ChangeOpDelete ChangeOp = "delete"
)

// ChangeEvent describes a committed row change. UserID carries the row's
// owning user when the table has one, so subscribers can filter without
// re-querying.
type ChangeEvent struct {
	Table  string    `json:"table"`
	Op     ChangeOp  `json:"op"`
	RowID  uuid.UUID `json:"row_id"`
	UserID uuid.UUID `json:"user_id,omitempty"`
}

// ChangeFeed distributes row-change events. Publishing is best-effort: a
// feed outage must never fail the write that triggered it, so callers log
// and continue.
type ChangeFeed interface {
	Publish(ctx context.Context, event ChangeEvent) error
	Subscribe(table string, fn func(ChangeEvent)) (func(), error)
}

// RedisChangeFeed carries change events over redis pub/sub, one channel per
// table.
type RedisChangeFeed struct {
	client *redis.Client
}

func NewRedisChangeFeed(client *redis.Client) *RedisChangeFeed {
	return &RedisChangeFeed{client: client}
}

func (f *RedisChangeFeed) Publish(ctx context.Context, event ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling change event: %w", err)
	}
	if err := f.client.Publish(ctx, changeChannelPrefix+event.Table, payload).Err(); err != nil {
		return fmt.Errorf("publishing change event: %w", err)
	}
	return nil
}

// Subscribe opens a persistent pub/sub channel for the table and invokes fn
// for every event until the returned unsubscribe func is called. Callers own
// the unsubscribe; dropping it leaks the channel for the process lifetime.
func (f *RedisChangeFeed) Subscribe(table string, fn func(ChangeEvent)) (func(), error) {
	pubsub := f.client.Subscribe(context.Background(), changeChannelPrefix+table)

	// Confirm the subscription before returning so no events are missed.
	if _, err := pubsub.Receive(context.Background()); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", table, err)
	}

	go func() {
		for msg := range pubsub.Channel() {
			var event ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logging.Warn("Dropping malformed change event", map[string]interface{}{
					"channel": msg.Channel,
					"error":   err.Error(),
				})
				continue
			}
			fn(event)
		}
	}()

	return func() { _ = pubsub.Close() }, nil
}

// publishChange is the shared best-effort publish helper used by services
// after successful writes.
func publishChange(ctx context.Context, feed ChangeFeed, event ChangeEvent) {
	if feed == nil {
		return
	}
	if err := feed.Publish(ctx, event); err != nil {
		logging.Warn("Failed to publish change event", map[string]interface{}{
			"table": event.Table,
			"op":    string(event.Op),
			"error": err.Error(),
		})
	}
}
