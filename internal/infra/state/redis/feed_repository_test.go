package redisstate_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"text-sync/internal/domain"
	redisstate "text-sync/internal/infra/state/redis"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func receive(t *testing.T, ch <-chan domain.ChangeEvent) domain.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "事件通道不应被关闭")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
		return domain.ChangeEvent{}
	}
}

func TestRedisFeedRepository_PublishSubscribe(t *testing.T) {
	_, client := newRedis(t)
	feed := redisstate.NewRedisFeedRepository(client, "test:")
	ctx := context.Background()

	sub, err := feed.Subscribe(ctx, "ABC123")
	require.NoError(t, err)
	defer sub.Close()

	other, err := feed.Subscribe(ctx, "XYZ999")
	require.NoError(t, err)
	defer other.Close()

	msg := &domain.Message{ID: "m1", RoomID: "ABC123", Content: "Hello", UpdatedAt: time.Now().UTC()}
	require.NoError(t, feed.Publish(ctx, "ABC123", domain.NewMessageEvent(domain.ChangeUpdate, msg)))

	ev := receive(t, sub.Events())
	assert.Equal(t, domain.ChangeUpdate, ev.Type)
	assert.Equal(t, "m1", ev.Key())
	assert.Equal(t, "Hello", ev.Message.Content)

	// 其他房间的订阅收不到
	select {
	case ev := <-other.Events():
		t.Fatalf("unexpected event for other room: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRedisFeedRepository_CloseIsIdempotent(t *testing.T) {
	_, client := newRedis(t)
	feed := redisstate.NewRedisFeedRepository(client, "")

	sub, err := feed.Subscribe(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.NoError(t, sub.Close())
	assert.NotPanics(t, func() { _ = sub.Close() })

	_, ok := <-sub.Events()
	assert.False(t, ok, "关闭后事件通道应被关闭")
}

func TestRedisFeedRepository_ContextCancelClosesSubscription(t *testing.T) {
	_, client := newRedis(t)
	feed := redisstate.NewRedisFeedRepository(client, "")
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := feed.Subscribe(ctx, "ABC123")
	require.NoError(t, err)
	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.Events():
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, sub.Close())
}

func TestRedisFeedRepository_SubscribeFailsWhenRedisDown(t *testing.T) {
	mr, client := newRedis(t)
	feed := redisstate.NewRedisFeedRepository(client, "")
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := feed.Subscribe(ctx, "ABC123")
	assert.Error(t, err)
	assert.Error(t, feed.Publish(ctx, "ABC123", domain.NewRoomDeletedEvent("ABC123", time.Now())))
}

func TestRedisRateLimiter_Allow(t *testing.T) {
	mr, client := newRedis(t)
	limiter := redisstate.NewRedisRateLimiter(client, "test:")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "第 %d 次请求应放行", i+1)
	}
	ok, err := limiter.Allow(ctx, "1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = limiter.Allow(ctx, "1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "窗口过后计数重置")
}
