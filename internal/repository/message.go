package repository

import (
	"context"

	"text-sync/internal/domain"
)

// MessageRepository 定义了消息数据的存储和检索操作。
type MessageRepository interface {
	// Create 插入消息，ID 重复时返回 ErrDuplicateEntry
	Create(ctx context.Context, msg *domain.Message) error

	// FindByID 查找单条消息，不存在时返回 ErrMessageNotFound
	FindByID(ctx context.Context, id string) (*domain.Message, error)

	// FindByRoom 返回房间内所有消息，按创建顺序排列
	FindByRoom(ctx context.Context, roomID string) ([]domain.Message, error)

	// Update 部分更新，返回提交后的完整行
	Update(ctx context.Context, id string, patch domain.MessagePatch) (*domain.Message, error)

	// Delete 删除消息，返回被删除前的行
	Delete(ctx context.Context, id string) (*domain.Message, error)
}
