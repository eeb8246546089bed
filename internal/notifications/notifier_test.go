package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEventuallyTimeout = time.Second
	testPollInterval      = 10 * time.Millisecond
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestNotifier_NilRedisIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	assert.NoError(t, n.PublishUser(context.Background(), "u1", Event{Type: EventPostLiked}))
	assert.NoError(t, n.PublishBroadcast(context.Background(), Event{Type: EventPostCreated}))
	assert.NoError(t, n.StartPatternSubscriber(context.Background(), func(string, string) {}))

	var nilNotifier *Notifier
	assert.NoError(t, nilNotifier.PublishUser(context.Background(), "u1", Event{}))
}

func TestUserChannel(t *testing.T) {
	assert.Equal(t, "notifications:user:abc", UserChannel("abc"))

	id, ok := userFromChannel("notifications:user:abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	_, ok = userFromChannel("notifications:user:")
	assert.False(t, ok)
	_, ok = userFromChannel("chat:conv:1")
	assert.False(t, ok)
}

func TestNotifier_SubscriberReceivesEnvelope(t *testing.T) {
	n := NewNotifier(newTestRedis(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type message struct{ channel, payload string }
	got := make(chan message, 4)
	require.NoError(t, n.StartPatternSubscriber(ctx, func(channel, payload string) {
		got <- message{channel, payload}
	}))

	require.NoError(t, n.PublishUser(ctx, "u1", Event{Type: EventPostLiked, Payload: map[string]string{"post_id": "p1"}}))

	select {
	case m := <-got:
		assert.Equal(t, "notifications:user:u1", m.channel)
		var ev struct {
			Type    string            `json:"type"`
			Payload map[string]string `json:"payload"`
		}
		require.NoError(t, json.Unmarshal([]byte(m.payload), &ev))
		assert.Equal(t, EventPostLiked, ev.Type)
		assert.Equal(t, "p1", ev.Payload["post_id"])
	case <-time.After(testEventuallyTimeout):
		t.Fatal("no message received")
	}
}
