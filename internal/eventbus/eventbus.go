// Package eventbus is the Redis-backed publish/subscribe layer underneath
// every cross-component and cross-instance signal in the system: system
// events for the rule engine, WS message routing for cross-instance relay,
// and board real-time sync fan-out. It is grounded on the same
// single-client, context-scoped pub/sub idiom used throughout the pack's
// Redis-backed components, generalized to a handful of fixed channel-name
// builders rather than one bespoke client per concern.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Channel name builders, matching the fixed layout every component in the
// system agrees on.
func OrgChannel(orgID uuid.UUID) string {
	return fmt.Sprintf("mc:events:%s", orgID)
}

func BoardEventChannel(orgID, boardID uuid.UUID) string {
	return fmt.Sprintf("mc:events:%s:%s", orgID, boardID)
}

func UserRouteChannel(userID uuid.UUID) string {
	return fmt.Sprintf("ws:route:user:%s", userID)
}

func GatewayRouteChannel(gatewayID uuid.UUID) string {
	return fmt.Sprintf("ws:route:gateway:%s", gatewayID)
}

func BoardSyncChannel(boardID uuid.UUID) string {
	return fmt.Sprintf("board_sync:%s", boardID)
}

// eventChannelPattern matches every org- and board-scoped event channel, for
// the rule engine's single long-running consumer.
const eventChannelPattern = "mc:events:*"

// SystemEvent type constants published by the message router. These double
// as the "chat activity" signal the heartbeat governor reads per board and
// as ProactiveRule.TriggerEvent values rule authors can match against.
const (
	EventChatSent     = "chat.sent"
	EventChatReceived = "chat.received"
)

// SystemEvent is the payload published to event channels. It mirrors the
// SystemEvent row inserted by the caller's transaction; EventBus never
// writes to the database itself.
type SystemEvent struct {
	EventID        uuid.UUID       `json:"event_id"`
	EventType      string          `json:"event_type"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	BoardID        *uuid.UUID      `json:"board_id,omitempty"`
	AgentID        *uuid.UUID      `json:"agent_id,omitempty"`
	TaskID         *uuid.UUID      `json:"task_id,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Bus wraps a Redis client for publish/subscribe. Every method treats
// publish failures as non-fatal: real-time delivery is an optimization on
// top of durable state (SystemEvent rows, ChatSession rows, Task rows), not
// a correctness requirement.
type Bus struct {
	client *redis.Client
	logger *zap.Logger
}

// New creates a Bus bound to the given Redis client.
func New(client *redis.Client, logger *zap.Logger) *Bus {
	return &Bus{client: client, logger: logger.Named("eventbus")}
}

// PublishEvent serializes and publishes a SystemEvent to its org channel
// and, when BoardID is set, its board channel too.
func (b *Bus) PublishEvent(ctx context.Context, event SystemEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Warn("marshal system event failed", zap.Error(err), zap.String("event_type", event.EventType))
		return
	}

	if err := b.client.Publish(ctx, OrgChannel(event.OrganizationID), data).Err(); err != nil {
		b.logger.Warn("publish org event failed", zap.Error(err), zap.String("event_type", event.EventType))
	}

	if event.BoardID != nil {
		if err := b.client.Publish(ctx, BoardEventChannel(event.OrganizationID, *event.BoardID), data).Err(); err != nil {
			b.logger.Warn("publish board event failed", zap.Error(err), zap.String("event_type", event.EventType))
		}
	}
}

// PublishRaw publishes an already-encoded frame to an arbitrary channel.
// Used by the message router (ws:route:*) and the board-sync broadcaster
// (board_sync:{board_id}), both of which forward pre-built WS envelopes
// rather than SystemEvent rows.
func (b *Bus) PublishRaw(ctx context.Context, channel string, data []byte) bool {
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Warn("publish raw failed", zap.Error(err), zap.String("channel", channel))
		return false
	}
	return true
}

// SubscribeEvents subscribes to every org/board event channel via pattern
// match and invokes handler for each decoded SystemEvent. It blocks until
// ctx is cancelled or the subscription fails; callers run it in its own
// goroutine (the rule engine's single long-running consumer).
func (b *Bus) SubscribeEvents(ctx context.Context, handler func(SystemEvent)) error {
	sub := b.client.PSubscribe(ctx, eventChannelPattern)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event SystemEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("decode system event failed", zap.Error(err), zap.String("channel", msg.Channel))
				continue
			}
			handler(event)
		}
	}
}

// SubscribeChannel subscribes to one fixed channel (a ws:route:* or
// board_sync:* channel) and invokes handler with each raw message payload
// until ctx is cancelled.
func (b *Bus) SubscribeChannel(ctx context.Context, channel string, handler func([]byte)) error {
	sub := b.client.Subscribe(ctx, channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handler([]byte(msg.Payload))
		}
	}
}

// Close releases the underlying Redis client.
func (b *Bus) Close() error {
	return b.client.Close()
}
