package redisx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// InventoryPubSub notifies subscribers (storefront caches, dashboards) that
// an event's inventory changed after a committed checkout.
type InventoryPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewInventoryPubSub(rdb *redis.Client) *InventoryPubSub {
	return &InventoryPubSub{
		rdb:     rdb,
		channel: ChannelInventoryChanged(),
	}
}

type inventoryChangedMsg struct {
	Type    string    `json:"type"`
	EventID uuid.UUID `json:"event_id"`
	TsUnix  int64     `json:"ts_unix"`
}

func (p *InventoryPubSub) PublishInventoryChanged(ctx context.Context, eventID uuid.UUID) error {
	msg := inventoryChangedMsg{
		Type:    "inventory_changed",
		EventID: eventID,
		TsUnix:  time.Now().Unix(),
	}

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

func (p *InventoryPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, eventID uuid.UUID)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev inventoryChangedMsg
			if err := json.Unmarshal([]byte(m.Payload), &ev); err == nil &&
				ev.EventID != uuid.Nil {
				handler(ctx, ev.EventID)
			}
		}
	}
}
