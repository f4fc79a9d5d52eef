package mq

import (
	"context"
	"time"
)

// MessageQueue is the publish/subscribe surface used for judged-submission events
// and the cross-instance competition relay.
type MessageQueue interface {
	Publish(ctx context.Context, topic string, message *Message) error
	// SubscribeWithOptions registers a handler; consumption begins after Start.
	SubscribeWithOptions(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error
	Start() error
	Stop() error
	Ping(ctx context.Context) error
	Close() error
}

// Message represents a message in the queue
type Message struct {
	ID         string            `json:"id"`
	Key        string            `json:"key"`
	Body       []byte            `json:"body"`
	Headers    map[string]string `json:"headers"`
	Timestamp  time.Time         `json:"timestamp"`
	RetryCount int               `json:"retry_count"`
	MaxRetries int               `json:"max_retries"`
}

// HandlerFunc processes one message; a non-nil error triggers a retry.
type HandlerFunc func(ctx context.Context, message *Message) error

// SubscribeOptions defines options for subscribing to a topic
type SubscribeOptions struct {
	// ConsumerGroup is the Kafka consumer group. Every group receives every message.
	ConsumerGroup string
	// Concurrency sets the number of concurrent handler workers. Default: 1
	Concurrency int
	// MaxRetries sets the maximum number of handler retries. Default: 3
	MaxRetries int
	// RetryDelay sets the delay between retries. Default: 1 second
	RetryDelay time.Duration
	// DeadLetterTopic receives messages that exhausted their retries.
	DeadLetterTopic string
	// MaxAge drops messages older than this without handling them. Zero keeps all.
	MaxAge time.Duration
}

// SetDefaults sets default values for subscribe options
func (o *SubscribeOptions) SetDefaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = time.Second
	}
}

// NewMessage creates a new message with the given body
func NewMessage(body []byte) *Message {
	return &Message{
		Body:       body,
		Headers:    make(map[string]string),
		Timestamp:  time.Now(),
		MaxRetries: 3,
	}
}

// SetHeader sets a header value
func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[key] = value
}
