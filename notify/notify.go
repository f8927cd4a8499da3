// Package notify publishes turn status and results to a Redis channel and reads
// them back for the notification service.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"backend-go-assistant/internal/logger"
)

const DefaultChannel = "assistant_notifications"

// Notification is the JSON payload on the channel. Exactly one of Status and
// Result is set.
type Notification struct {
	TraceID   string `json:"trace_id"`
	SessionID string `json:"session_id"`
	Status    string `json:"status,omitempty"`
	Result    string `json:"result,omitempty"`
	Timestamp string `json:"timestamp"`
}

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Publisher is nil-safe: a nil *Publisher, or one built without a client,
// publishes nothing.
type Publisher struct {
	rdb     redisPublisher
	channel string
	now     func() time.Time
}

func NewPublisher(rdb redisPublisher, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{rdb: rdb, channel: channel, now: time.Now}
}

// Connect dials addr and pings it. An empty addr disables publishing.
func Connect(ctx context.Context, addr, channel string) (*Publisher, func() error, error) {
	if addr == "" {
		return NewPublisher(nil, channel), func() error { return nil }, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return NewPublisher(rdb, channel), rdb.Close, nil
}

func (p *Publisher) Enabled() bool { return p != nil && p.rdb != nil }

func (p *Publisher) PublishStatus(ctx context.Context, sessionID, status string) error {
	if !p.Enabled() {
		return nil
	}
	return p.publish(ctx, Notification{SessionID: sessionID, Status: status})
}

// PublishResult publishes the final reply text of a turn.
func (p *Publisher) PublishResult(ctx context.Context, sessionID, result string) error {
	if !p.Enabled() {
		return nil
	}
	return p.publish(ctx, Notification{SessionID: sessionID, Result: result})
}

func (p *Publisher) publish(ctx context.Context, n Notification) error {
	n.TraceID = logger.TraceID(ctx)
	n.Timestamp = p.now().UTC().Format(time.RFC3339Nano)
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, string(b)).Err()
}

// Decode parses a channel payload.
func Decode(payload string) (Notification, error) {
	var n Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	return n, nil
}

// Consume calls handle for every message on msgs until ctx is done or msgs closes.
// Payloads that fail to decode are passed to onBad, which may be nil.
func Consume(ctx context.Context, msgs <-chan *redis.Message, handle func(Notification), onBad func(payload string, err error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			n, err := Decode(msg.Payload)
			if err != nil {
				if onBad != nil {
					onBad(msg.Payload, err)
				}
				continue
			}
			handle(n)
		}
	}
}
