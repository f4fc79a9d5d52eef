package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"codearena/internal/common/mq"
	"codearena/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultRelayTopic       = "competition.events"
	defaultRelayGroupPrefix = "arena-realtime"
	defaultRelayMaxAge      = 30 * time.Second
)

// RelayConfig holds cross-instance fan-out settings.
type RelayConfig struct {
	Topic       string        `yaml:"topic"`
	GroupPrefix string        `yaml:"groupPrefix"`
	MaxAge      time.Duration `yaml:"maxAge"`
}

type relayMessage struct {
	Room   string          `json:"room"`
	Frame  json.RawMessage `json:"frame"`
	Origin string          `json:"origin"`
}

// Relay publishes room events to the message queue. Every instance consumes the topic
// with its own consumer group and delivers to its local hub.
type Relay struct {
	queue    mq.MessageQueue
	hub      *Hub
	topic    string
	group    string
	maxAge   time.Duration
	instance string
}

// NewRelay creates a relay with a per-instance consumer group.
func NewRelay(queue mq.MessageQueue, hub *Hub, cfg RelayConfig) (*Relay, error) {
	if queue == nil {
		return nil, fmt.Errorf("message queue is required")
	}
	if hub == nil {
		return nil, fmt.Errorf("hub is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultRelayTopic
	}
	if cfg.GroupPrefix == "" {
		cfg.GroupPrefix = defaultRelayGroupPrefix
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = defaultRelayMaxAge
	}
	instance := uuid.NewString()
	return &Relay{
		queue:    queue,
		hub:      hub,
		topic:    cfg.Topic,
		group:    cfg.GroupPrefix + "-" + instance,
		maxAge:   cfg.MaxAge,
		instance: instance,
	}, nil
}

// Subscribe registers the relay consumer; delivery starts with the queue.
func (r *Relay) Subscribe(ctx context.Context) error {
	return r.queue.SubscribeWithOptions(ctx, r.topic, r.handle, &mq.SubscribeOptions{
		ConsumerGroup: r.group,
		MaxAge:        r.maxAge,
	})
}

// Publish sends an event for room to every instance, including this one.
func (r *Relay) Publish(ctx context.Context, room, event string, data interface{}) error {
	frame, err := Encode(event, data)
	if err != nil {
		return err
	}
	body, err := json.Marshal(relayMessage{Room: room, Frame: frame, Origin: r.instance})
	if err != nil {
		return err
	}
	msg := mq.NewMessage(body)
	msg.Key = room
	msg.SetHeader("event", event)
	return r.queue.Publish(ctx, r.topic, msg)
}

func (r *Relay) handle(ctx context.Context, msg *mq.Message) error {
	var rm relayMessage
	if err := json.Unmarshal(msg.Body, &rm); err != nil || rm.Room == "" {
		logger.Warn(ctx, "drop malformed relay message", zap.Error(err))
		return nil
	}
	r.hub.Broadcast(rm.Room, rm.Frame, nil)
	return nil
}
