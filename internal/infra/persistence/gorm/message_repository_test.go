package gormpersistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"text-sync/internal/domain"
	gormpersistence "text-sync/internal/infra/persistence/gorm"
	"text-sync/internal/infra/persistence/gorm/gormtest"
	"text-sync/internal/repository"
)

func TestGormMessageRepository_CRUD(t *testing.T) {
	db := gormtest.NewDB(t)
	rooms := gormpersistence.NewGormRoomRepository(db)
	repo := gormpersistence.NewGormMessageRepository(db)
	ctx := context.Background()
	require.NoError(t, rooms.Create(ctx, &domain.Room{ID: "MSG001", Name: "room"}, nil))

	msg := &domain.Message{ID: "msg-a", RoomID: "MSG001", Title: domain.StringPtr("first")}
	require.NoError(t, repo.Create(ctx, msg))
	assert.Equal(t, "", msg.Content)

	// 相同 ID 再次插入
	err := repo.Create(ctx, &domain.Message{ID: "msg-a", RoomID: "MSG001"})
	assert.ErrorIs(t, err, repository.ErrDuplicateEntry)

	updated, err := repo.Update(ctx, "msg-a", domain.MessagePatch{Content: domain.StringPtr("Hello World")})
	require.NoError(t, err)
	assert.Equal(t, "Hello World", updated.Content)
	assert.Equal(t, "first", *updated.Title, "未提供的字段保持不变")

	updated, err = repo.Update(ctx, "msg-a", domain.MessagePatch{Title: domain.StringPtr("renamed")})
	require.NoError(t, err)
	assert.Equal(t, "renamed", *updated.Title)
	assert.Equal(t, "Hello World", updated.Content)

	_, err = repo.Update(ctx, "missing", domain.MessagePatch{Content: domain.StringPtr("x")})
	assert.ErrorIs(t, err, repository.ErrMessageNotFound)

	deleted, err := repo.Delete(ctx, "msg-a")
	require.NoError(t, err)
	assert.Equal(t, "renamed", *deleted.Title)

	_, err = repo.FindByID(ctx, "msg-a")
	assert.ErrorIs(t, err, repository.ErrMessageNotFound)
	_, err = repo.Delete(ctx, "msg-a")
	assert.ErrorIs(t, err, repository.ErrMessageNotFound)
}

func TestGormMessageRepository_FindByRoomOrdersByCreation(t *testing.T) {
	db := gormtest.NewDB(t)
	rooms := gormpersistence.NewGormRoomRepository(db)
	repo := gormpersistence.NewGormMessageRepository(db)
	ctx := context.Background()
	require.NoError(t, rooms.Create(ctx, &domain.Room{ID: "ORD001", Name: "order"}, nil))
	require.NoError(t, rooms.Create(ctx, &domain.Room{ID: "ORD002", Name: "other"}, nil))

	base := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, db.Create(&domain.Message{ID: "m-first", RoomID: "ORD001", CreatedAt: base}).Error)
	require.NoError(t, db.Create(&domain.Message{ID: "a-second", RoomID: "ORD001", CreatedAt: base.Add(time.Second)}).Error)
	require.NoError(t, db.Create(&domain.Message{ID: "z-third", RoomID: "ORD001", CreatedAt: base.Add(2 * time.Second)}).Error)
	require.NoError(t, db.Create(&domain.Message{ID: "elsewhere", RoomID: "ORD002", CreatedAt: base}).Error)

	list, err := repo.FindByRoom(ctx, "ORD001")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"m-first", "a-second", "z-third"}, []string{list[0].ID, list[1].ID, list[2].ID})

	empty, err := repo.FindByRoom(ctx, "NONE00")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
