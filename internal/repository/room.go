package repository

import (
	"context"
	"time"

	"text-sync/internal/domain"
)

// RoomRepository 定义了房间数据的存储和检索操作。
type RoomRepository interface {
	// Create 插入新房间。seed 不为 nil 时在同一事务中插入初始消息。
	// 房间码已存在时返回 ErrDuplicateEntry。
	Create(ctx context.Context, room *domain.Room, seed *domain.Message) error

	// FindByID 根据房间码精确查找，不存在时返回 ErrRoomNotFound。
	FindByID(ctx context.Context, id string) (*domain.Room, error)

	// FindAll 返回全部房间，按创建时间排序
	FindAll(ctx context.Context) ([]domain.Room, error)

	// UpdateName 只更新名称，返回更新后的房间
	UpdateName(ctx context.Context, id string, name string) (*domain.Room, error)

	// Touch 刷新 updated_at
	Touch(ctx context.Context, id string) (*domain.Room, error)

	// Delete 删除房间，消息由数据库外键级联删除。返回被删除的房间。
	Delete(ctx context.Context, id string) (*domain.Room, error)

	// DeleteCreatedBefore 在一个事务里选出 created_at < cutoff 的房间并删除这一批，
	// 返回被删除的房间。没有匹配时返回空切片且不执行删除。
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) ([]domain.Room, error)

	// Count 统计房间总数
	Count(ctx context.Context) (int64, error)

	// CountCreatedBefore 统计 created_at < cutoff 的房间数
	CountCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
