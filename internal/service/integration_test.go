package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"text-sync/internal/domain"
	gormpersistence "text-sync/internal/infra/persistence/gorm"
	"text-sync/internal/infra/persistence/gorm/gormtest"
	redisstate "text-sync/internal/infra/state/redis"
	"text-sync/internal/service"
)

type stack struct {
	rooms    *service.RoomService
	messages *service.MessageService
	sweeper  *service.SweepService
	feed     *redisstate.RedisFeedRepository
	clock    *time.Time
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db := gormtest.NewDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Now().UTC()
	clock := &now
	nowFn := func() time.Time { return *clock }

	roomRepo := gormpersistence.NewGormRoomRepository(db)
	msgRepo := gormpersistence.NewGormMessageRepository(db)
	feed := redisstate.NewRedisFeedRepository(client, "it:")
	tokens, err := service.NewTokenService("it-secret", 24*time.Hour)
	require.NoError(t, err)

	return &stack{
		rooms: service.NewRoomService(roomRepo, msgRepo, feed, tokens, service.RoomServiceConfig{
			TTL:          24 * time.Hour,
			DefaultTitle: domain.DefaultTitle("en"),
			Now:          nowFn,
		}),
		messages: service.NewMessageService(roomRepo, msgRepo, feed, domain.DefaultTitle("en")),
		sweeper:  service.NewSweepService(roomRepo, feed, 24*time.Hour, nowFn),
		feed:     feed,
		clock:    clock,
	}
}

func TestIntegration_DeleteRoomCascades(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	created, err := s.rooms.CreateRoom(ctx, "Demo")
	require.NoError(t, err)
	assert.Regexp(t, `^[A-Z0-9]{6}$`, created.Room.ID)

	_, err = s.messages.CreateMessage(ctx, domain.NewMessage{RoomID: created.Room.ID})
	require.NoError(t, err)

	_, err = s.rooms.DeleteRoom(ctx, created.Room.ID)
	require.NoError(t, err)

	_, err = s.rooms.GetRoom(ctx, created.Room.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	list, err := s.messages.ListMessages(ctx, created.Room.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestIntegration_ExpiryAndSweep(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	created, err := s.rooms.CreateRoom(ctx, "Demo")
	require.NoError(t, err)

	// 房间创建 25 小时后
	*s.clock = created.Room.CreatedAt.Add(25 * time.Hour)

	room, err := s.rooms.GetRoom(ctx, created.Room.ID)
	require.NoError(t, err, "过期房间仍然可以读取")
	assert.True(t, s.rooms.IsExpired(room))

	sub, err := s.feed.Subscribe(ctx, created.Room.ID)
	require.NoError(t, err)
	defer sub.Close()

	first, err := s.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.DeletedCount)
	assert.Equal(t, created.Room.ID, first.DeletedRooms[0].ID)

	second, err := s.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.DeletedCount, "第二次清理不会重复删除")

	select {
	case ev := <-sub.Events():
		assert.Equal(t, domain.ChangeRoomDeleted, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("expected room_deleted event")
	}
}

func TestIntegration_UpdateEchoesThroughFeed(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	created, err := s.rooms.CreateRoom(ctx, "Demo")
	require.NoError(t, err)
	seed := created.Messages[0]
	assert.Equal(t, "Untitled Message", *seed.Title)
	assert.Equal(t, "", seed.Content)

	sub, err := s.feed.Subscribe(ctx, created.Room.ID)
	require.NoError(t, err)
	defer sub.Close()

	_, err = s.messages.UpdateMessage(ctx, seed.ID, domain.MessagePatch{Content: domain.StringPtr("A")})
	require.NoError(t, err)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, domain.ChangeUpdate, ev.Type)
		assert.Equal(t, seed.ID, ev.Key())
		assert.Equal(t, "A", ev.Message.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("expected update event")
	}

	_, err = s.messages.UpdateMessage(ctx, seed.ID, domain.MessagePatch{})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = s.messages.UpdateMessage(ctx, "00000000-0000-0000-0000-000000000000", domain.MessagePatch{Content: domain.StringPtr("x")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
