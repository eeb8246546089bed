// Package notifications provides real-time event delivery over Redis pub/sub
// and websockets.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"devconnector/internal/middleware"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	userChannelPrefix = "notifications:user:"
	broadcastChannel  = "notifications:broadcast"
)

// Event types published by the post service.
const (
	EventPostCreated = "post_created"
	EventPostDeleted = "post_deleted"
	EventPostLiked   = "post_liked"
	EventPostUnliked = "post_unliked"
)

// Event is the JSON envelope delivered to websocket clients.
type Event struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Publisher is the subset of Notifier used by services.
type Publisher interface {
	PublishUser(ctx context.Context, userID string, ev Event) error
	PublishBroadcast(ctx context.Context, ev Event) error
}

// Notifier provides helpers to publish notifications into Redis channels
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
// A nil client makes every publish a no-op.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID string) string {
	return userChannelPrefix + userID
}

func encode(ev Event) (string, error) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	return string(b), nil
}

// PublishUser sends an event to a user's channel.
func (n *Notifier) PublishUser(ctx context.Context, userID string, ev Event) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	payload, err := encode(ev)
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, UserChannel(userID), payload).Err()
}

// PublishBroadcast sends an event to all connected users.
func (n *Notifier) PublishBroadcast(ctx context.Context, ev Event) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	payload, err := encode(ev)
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, broadcastChannel, payload).Err()
}

// StartPatternSubscriber subscribes to every user channel and the broadcast
// channel and calls onMessage for each incoming message until ctx is done.
func (n *Notifier) StartPatternSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, userChannelPrefix+"*", broadcastChannel)
	// Wait for the subscription to be confirmed so early publishes are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe notifications: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in notification subscriber",
								zap.Any("panic", r),
								zap.ByteString("stack", debug.Stack()),
							)
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

// userFromChannel returns the user ID of a user channel.
func userFromChannel(channel string) (string, bool) {
	if !strings.HasPrefix(channel, userChannelPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(channel, userChannelPrefix)
	return id, id != ""
}
