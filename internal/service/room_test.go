package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"text-sync/internal/domain"
	"text-sync/internal/repository"
	"text-sync/internal/repository/mocks"
	"text-sync/internal/service"
)

// codeSequence 按顺序返回预设的房间码
func codeSequence(codes ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		code := codes[i%len(codes)]
		i++
		return code, nil
	}
}

func newRoomService(t *testing.T, cfg service.RoomServiceConfig) (*service.RoomService, *mocks.RoomRepository, *mocks.MessageRepository, *mocks.ChangeFeed) {
	roomRepo := mocks.NewRoomRepository(t)
	msgRepo := mocks.NewMessageRepository(t)
	feed := mocks.NewChangeFeed(t)
	tokens, err := service.NewTokenService("test-secret", cfg.TTL)
	require.NoError(t, err)
	return service.NewRoomService(roomRepo, msgRepo, feed, tokens, cfg), roomRepo, msgRepo, feed
}

func TestRoomService_CreateRoom_Success(t *testing.T) {
	svc, roomRepo, _, _ := newRoomService(t, service.RoomServiceConfig{
		DefaultTitle: "Untitled Message",
		GenerateCode: codeSequence("ABC123"),
	})
	ctx := context.Background()

	roomRepo.On("Create", ctx, mock.MatchedBy(func(r *domain.Room) bool {
		return r.ID == "ABC123" && r.Name == "Demo"
	}), mock.MatchedBy(func(m *domain.Message) bool {
		return m.ID != "" && m.Content == "" && m.Title != nil && *m.Title == "Untitled Message"
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*domain.Room).CreatedAt = time.Now()
		args.Get(2).(*domain.Message).RoomID = "ABC123"
	}).Return(nil).Once()

	result, err := svc.CreateRoom(ctx, "  Demo ")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", result.Room.ID)
	assert.Equal(t, "Demo", result.Room.Name)
	require.Len(t, result.Messages, 1, "应写入一条初始消息")
	assert.Equal(t, "ABC123", result.Messages[0].RoomID)
	assert.NotEmpty(t, result.Token)
}

func TestRoomService_CreateRoom_RetriesOnCollision(t *testing.T) {
	svc, roomRepo, _, _ := newRoomService(t, service.RoomServiceConfig{
		GenerateCode: codeSequence("AAAAAA", "BBBBBB", "CCCCCC"),
	})
	ctx := context.Background()

	roomRepo.On("Create", ctx, mock.MatchedBy(func(r *domain.Room) bool { return r.ID == "AAAAAA" }), mock.Anything).
		Return(repository.ErrDuplicateEntry).Once()
	roomRepo.On("Create", ctx, mock.MatchedBy(func(r *domain.Room) bool { return r.ID == "BBBBBB" }), mock.Anything).
		Return(repository.ErrDuplicateEntry).Once()
	roomRepo.On("Create", ctx, mock.MatchedBy(func(r *domain.Room) bool { return r.ID == "CCCCCC" }), mock.Anything).
		Return(nil).Once()

	result, err := svc.CreateRoom(ctx, "Demo")
	require.NoError(t, err)
	assert.Equal(t, "CCCCCC", result.Room.ID)
}

func TestRoomService_CreateRoom_ExhaustedRetries(t *testing.T) {
	svc, roomRepo, _, _ := newRoomService(t, service.RoomServiceConfig{
		GenerateCode: codeSequence("AAAAAA"),
	})
	ctx := context.Background()
	roomRepo.On("Create", ctx, mock.Anything, mock.Anything).Return(repository.ErrDuplicateEntry).Times(5)

	_, err := svc.CreateRoom(ctx, "Demo")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExhaustedRetries)
	roomRepo.AssertNumberOfCalls(t, "Create", 5)
}

func TestRoomService_CreateRoom_Validation(t *testing.T) {
	svc, roomRepo, _, _ := newRoomService(t, service.RoomServiceConfig{})
	_, err := svc.CreateRoom(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrValidation)
	roomRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestRoomService_CreateRoom_StoreUnavailable(t *testing.T) {
	svc, roomRepo, _, _ := newRoomService(t, service.RoomServiceConfig{GenerateCode: codeSequence("ABC123")})
	ctx := context.Background()
	roomRepo.On("Create", ctx, mock.Anything, mock.Anything).Return(errors.New("connection refused")).Once()

	_, err := svc.CreateRoom(ctx, "Demo")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestRoomService_GetRoom(t *testing.T) {
	svc, roomRepo, _, _ := newRoomService(t, service.RoomServiceConfig{})
	ctx := context.Background()

	_, err := svc.GetRoom(ctx, "abc")
	assert.ErrorIs(t, err, domain.ErrValidation)

	roomRepo.On("FindByID", ctx, "NOPE00").Return(nil, repository.ErrRoomNotFound).Once()
	_, err = svc.GetRoom(ctx, "NOPE00")
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRoomService_ExpiredRoomIsStillReadable(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now := created.Add(25 * time.Hour)
	svc, roomRepo, _, _ := newRoomService(t, service.RoomServiceConfig{Now: func() time.Time { return now }})
	ctx := context.Background()
	room := &domain.Room{ID: "OLD123", Name: "old", CreatedAt: created}
	roomRepo.On("FindByID", ctx, "OLD123").Return(room, nil)

	got, err := svc.GetRoom(ctx, "OLD123")
	require.NoError(t, err, "读取过期房间不是错误")
	assert.True(t, svc.IsExpired(got))

	joined, err := svc.JoinRoom(ctx, "OLD123")
	require.NoError(t, err)
	assert.True(t, joined.Expired)
	assert.Empty(t, joined.Token, "过期房间不签发令牌")
	assert.Nil(t, joined.Messages)
}

func TestRoomService_JoinRoom_Live(t *testing.T) {
	now := time.Now()
	svc, roomRepo, msgRepo, _ := newRoomService(t, service.RoomServiceConfig{Now: func() time.Time { return now }})
	ctx := context.Background()
	room := &domain.Room{ID: "LIVE01", Name: "live", CreatedAt: now.Add(-time.Hour)}
	roomRepo.On("FindByID", ctx, "LIVE01").Return(room, nil).Once()
	msgRepo.On("FindByRoom", ctx, "LIVE01").Return([]domain.Message{{ID: "m1", RoomID: "LIVE01"}}, nil).Once()

	joined, err := svc.JoinRoom(ctx, "LIVE01")
	require.NoError(t, err)
	assert.False(t, joined.Expired)
	assert.Len(t, joined.Messages, 1)
	assert.NotEmpty(t, joined.Token)
	assert.Equal(t, room.CreatedAt.Add(24*time.Hour), joined.ExpiresAt)
}

func TestRoomService_RenameRoom(t *testing.T) {
	svc, roomRepo, _, _ := newRoomService(t, service.RoomServiceConfig{})
	ctx := context.Background()

	roomRepo.On("UpdateName", ctx, "ABC123", "New").Return(&domain.Room{ID: "ABC123", Name: "New"}, nil).Once()
	room, err := svc.RenameRoom(ctx, "ABC123", " New ")
	require.NoError(t, err)
	assert.Equal(t, "New", room.Name)

	roomRepo.On("UpdateName", ctx, "GONE00", "x").Return(nil, repository.ErrRoomNotFound).Once()
	_, err = svc.RenameRoom(ctx, "GONE00", "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.RenameRoom(ctx, "ABC123", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRoomService_DeleteRoom_PublishesRoomDeleted(t *testing.T) {
	svc, roomRepo, _, feed := newRoomService(t, service.RoomServiceConfig{})
	ctx := context.Background()
	roomRepo.On("Delete", ctx, "ABC123").Return(&domain.Room{ID: "ABC123", Name: "Demo"}, nil).Once()
	feed.On("Publish", ctx, "ABC123", mock.MatchedBy(func(ev domain.ChangeEvent) bool {
		return ev.Type == domain.ChangeRoomDeleted && ev.RoomID == "ABC123"
	})).Return(errors.New("redis down")).Once()

	room, err := svc.DeleteRoom(ctx, "ABC123")
	require.NoError(t, err, "推送失败不影响删除结果")
	assert.Equal(t, "Demo", room.Name)

	roomRepo.On("Delete", ctx, "ABC123").Return(nil, repository.ErrRoomNotFound).Once()
	_, err = svc.DeleteRoom(ctx, "ABC123")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRoomService_Stats(t *testing.T) {
	now := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	svc, roomRepo, _, _ := newRoomService(t, service.RoomServiceConfig{Now: func() time.Time { return now }})
	ctx := context.Background()
	cutoff := now.Add(-24 * time.Hour)
	roomRepo.On("Count", ctx).Return(int64(3), nil).Once()
	roomRepo.On("CountCreatedBefore", ctx, cutoff).Return(int64(1), nil).Once()

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Expired)
	assert.Equal(t, cutoff, stats.Cutoff)
}

func TestGenerateRoomCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := service.GenerateRoomCode()
		require.NoError(t, err)
		assert.True(t, domain.ValidRoomCode(code), code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 190, "随机码不应大量重复")
}
