package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"text-sync/internal/domain"
	"text-sync/internal/repository"
)

// GormMessageRepository 是 MessageRepository 接口的 GORM 实现
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository 创建 GormMessageRepository 实例
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMessageRepository")
	}
	return &GormMessageRepository{db: db}
}

// Create 插入一条消息
func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(msg).Error
	if err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create message (id: %s, room: %s): %w", msg.ID, msg.RoomID, err)
	}
	return nil
}

// FindByID 查找单条消息
func (r *GormMessageRepository) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrMessageNotFound
		}
		return nil, fmt.Errorf("gorm: find message by id '%s': %w", id, err)
	}
	return &msg, nil
}

// FindByRoom 返回房间内的全部消息，按创建顺序
func (r *GormMessageRepository) FindByRoom(ctx context.Context, roomID string) ([]domain.Message, error) {
	messages := make([]domain.Message, 0)
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find messages for room '%s': %w", roomID, err)
	}
	return messages, nil
}

// Update 部分更新消息。先加锁读出行以区分"不存在"，再写入，最后读回提交后的值。
func (r *GormMessageRepository) Update(ctx context.Context, id string, patch domain.MessagePatch) (*domain.Message, error) {
	values := make(map[string]interface{}, 2)
	if patch.Title != nil {
		values["title"] = *patch.Title
	}
	if patch.Content != nil {
		values["content"] = *patch.Content
	}

	var msg domain.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&msg).Error; err != nil {
			return err
		}
		if len(values) == 0 {
			return nil
		}
		if err := tx.Model(&domain.Message{}).Where("id = ?", id).Updates(values).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&msg).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrMessageNotFound
		}
		return nil, fmt.Errorf("gorm: update message '%s': %w", id, err)
	}
	return &msg, nil
}

// Delete 删除消息并返回删除前的行
func (r *GormMessageRepository) Delete(ctx context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&msg).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&domain.Message{}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrMessageNotFound
		}
		return nil, fmt.Errorf("gorm: delete message '%s': %w", id, err)
	}
	return &msg, nil
}
