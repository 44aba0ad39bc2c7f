package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"text-sync/internal/domain"
	"text-sync/internal/repository"
)

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// Create 插入房间和可选的初始消息，二者在同一事务中
func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room, seed *domain.Message) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(room).Error; err != nil {
			return err
		}
		if seed != nil {
			seed.RoomID = room.ID
			if err := tx.Omit(clause.Associations).Create(seed).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create room (id: %s): %w", room.ID, err)
	}
	return nil
}

// FindByID 根据房间码查找房间
func (r *GormRoomRepository) FindByID(ctx context.Context, id string) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by id '%s': %w", id, err)
	}
	return &room, nil
}

// FindAll 返回全部房间
func (r *GormRoomRepository) FindAll(ctx context.Context) ([]domain.Room, error) {
	var rooms []domain.Room
	if err := r.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("gorm: list rooms: %w", err)
	}
	return rooms, nil
}

// UpdateName 更新房间名称
func (r *GormRoomRepository) UpdateName(ctx context.Context, id string, name string) (*domain.Room, error) {
	return r.updateColumns(ctx, id, map[string]interface{}{"name": name})
}

// Touch 刷新房间的 updated_at，时间取自连接配置的 NowFunc（UTC）
func (r *GormRoomRepository) Touch(ctx context.Context, id string) (*domain.Room, error) {
	return r.updateColumns(ctx, id, map[string]interface{}{"updated_at": r.db.NowFunc()})
}

func (r *GormRoomRepository) updateColumns(ctx context.Context, id string, values map[string]interface{}) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&room).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.Room{}).Where("id = ?", id).Updates(values).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&room).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: update room '%s': %w", id, err)
	}
	return &room, nil
}

// Delete 删除房间，messages 由外键 ON DELETE CASCADE 一并删除
func (r *GormRoomRepository) Delete(ctx context.Context, id string) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&room).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&domain.Room{}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: delete room '%s': %w", id, err)
	}
	return &room, nil
}

// DeleteCreatedBefore 批量删除过期房间。选择和删除在同一事务里，
// 删除条件限定为选出来的 ID，保证返回的摘要和实际删除的集合一致。
func (r *GormRoomRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) ([]domain.Room, error) {
	var expired []domain.Room
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("created_at < ?", cutoff).Order("created_at ASC").Find(&expired).Error; err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}
		ids := make([]string, 0, len(expired))
		for _, room := range expired {
			ids = append(ids, room.ID)
		}
		result := tx.Where("id IN ?", ids).Delete(&domain.Room{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != int64(len(ids)) {
			// 有房间在选出之后被并发删除，按实际删除数量为准重新核对
			var remaining []domain.Room
			if err := tx.Where("id IN ?", ids).Find(&remaining).Error; err != nil {
				return err
			}
			if len(remaining) > 0 {
				return fmt.Errorf("expected to delete %d rooms, %d still present", len(ids), len(remaining))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gorm: delete rooms created before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return expired, nil
}

// Count 统计房间总数
func (r *GormRoomRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Room{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("gorm: count rooms: %w", err)
	}
	return count, nil
}

// CountCreatedBefore 统计创建时间早于 cutoff 的房间数
func (r *GormRoomRepository) CountCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Room{}).Where("created_at < ?", cutoff).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("gorm: count rooms created before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return count, nil
}
