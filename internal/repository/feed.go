package repository

import (
	"context"

	"text-sync/internal/domain"
)

// Subscription 是对单个房间变更推送的订阅。
type Subscription interface {
	// Events 返回事件通道，订阅关闭后通道会被关闭
	Events() <-chan domain.ChangeEvent
	// Close 立即停止投递并释放底层连接，可重复调用
	Close() error
}

// ChangeFeed 是按房间过滤的变更推送，通常由 Redis Pub/Sub 实现。
// 投递语义为至少一次，同一消息 ID 的事件按提交顺序到达。
type ChangeFeed interface {
	// Publish 发布一条已提交的变更
	Publish(ctx context.Context, roomID string, event domain.ChangeEvent) error

	// Subscribe 订阅指定房间，ctx 取消时订阅自动关闭
	Subscribe(ctx context.Context, roomID string) (Subscription, error)
}
