// Package changefeed implements the Change Publisher/Consumer (C7): a thin
// pub/sub fanout over the cache's Redis connection that tells every worker
// process which cached entity just changed, so each can invalidate its own
// copy instead of polling Postgres.
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/blip0/control-plane/pkg/cache"
)

// Channel is one of the four fixed pub/sub channel names (§4.7).
type Channel string

const (
	ChannelConfig  Channel = "blip0:config:update"
	ChannelMonitor Channel = "blip0:monitor:update"
	ChannelNetwork Channel = "blip0:network:update"
	ChannelTrigger Channel = "blip0:trigger:update"
)

// Action is the mutation kind carried on a change message.
type Action string

const (
	ActionCreate        Action = "create"
	ActionUpdate        Action = "update"
	ActionDelete        Action = "delete"
	ActionInvalidateAll Action = "invalidate_all"
)

// Message is the fixed JSON schema published on every channel (§4.7). Exactly
// one of MonitorID/NetworkID/TriggerID is set, matching the channel it was
// published on.
type Message struct {
	TenantID  *uuid.UUID `json:"tenant_id,omitempty"`
	Action    Action     `json:"action"`
	MonitorID *uuid.UUID `json:"monitor_id,omitempty"`
	NetworkID *uuid.UUID `json:"network_id,omitempty"`
	TriggerID *uuid.UUID `json:"trigger_id,omitempty"`
	Timestamp time.Time  `json:"ts"`
}

// Publisher fires change messages. It is fire-and-forget: subscriber count
// is logged, never used for flow control (§4.7).
type Publisher struct {
	cache  *cache.Client
	logger *slog.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(c *cache.Client, logger *slog.Logger) *Publisher {
	return &Publisher{cache: c, logger: logger}
}

// Publish encodes msg and fires it on channel.
func (p *Publisher) Publish(ctx context.Context, channel Channel, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("changefeed: encoding message: %w", err)
	}

	n, err := p.cache.Publish(ctx, string(channel), raw)
	if err != nil {
		return fmt.Errorf("changefeed: publishing to %s: %w", channel, err)
	}
	p.logger.Debug("change published", "channel", channel, "action", msg.Action, "subscribers", n)
	return nil
}

// Handler reacts to a decoded Message received on a channel.
type Handler func(ctx context.Context, msg Message)

// Consumer subscribes to the fixed channel set and dispatches decoded
// messages to per-channel handlers, grounded on the teacher's escalation
// engine's Subscribe/Channel()/select loop (pkg/escalation/engine.go).
type Consumer struct {
	cache    *cache.Client
	logger   *slog.Logger
	handlers map[Channel]Handler
}

// NewConsumer creates a Consumer with no handlers registered.
func NewConsumer(c *cache.Client, logger *slog.Logger) *Consumer {
	return &Consumer{cache: c, logger: logger, handlers: make(map[Channel]Handler)}
}

// On registers the handler invoked for messages on channel. Call before Run.
func (c *Consumer) On(channel Channel, h Handler) {
	c.handlers[channel] = h
}

// Run subscribes to every channel with a registered handler and dispatches
// until ctx is cancelled. It polls with a 1-second timeout so shutdown is
// prompt (§4.7).
func (c *Consumer) Run(ctx context.Context) error {
	channels := make([]string, 0, len(c.handlers))
	for ch := range c.handlers {
		channels = append(channels, string(ch))
	}
	if len(channels) == 0 {
		return nil
	}

	pubsub := c.cache.Subscribe(ctx, channels...)
	defer pubsub.Close()

	c.logger.Info("changefeed consumer started", "channels", channels)

	for {
		msg, err := pubsub.ReceiveTimeout(ctx, time.Second)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("changefeed consumer stopped")
				return nil
			}
			// Timeouts are the normal poll cadence, not failures.
			continue
		}

		if m, ok := msg.(*redis.Message); ok {
			c.dispatch(ctx, Channel(m.Channel), m.Payload)
		}
		// Subscription/confirmation messages carry no payload to dispatch.
	}
}

func (c *Consumer) dispatch(ctx context.Context, channel Channel, payload string) {
	h, ok := c.handlers[channel]
	if !ok {
		c.logger.Warn("changefeed: message on unhandled channel", "channel", channel)
		return
	}

	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		c.logger.Error("changefeed: dropping undecodable message", "channel", channel, "error", err)
		return
	}

	h(ctx, msg)
}
