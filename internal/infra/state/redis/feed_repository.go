package redisstate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"text-sync/internal/domain"
	"text-sync/internal/repository"
)

// subscriptionBuffer 每个订阅的事件缓冲大小
const subscriptionBuffer = 256

// RedisFeedRepository 是 ChangeFeed 接口的 Redis Pub/Sub 实现
type RedisFeedRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisFeedRepository 创建 RedisFeedRepository 实例
func NewRedisFeedRepository(client *redis.Client, keyPrefix string) *RedisFeedRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisFeedRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "ts:"
	}
	return &RedisFeedRepository{client: client, keyPrefix: keyPrefix}
}

func (r *RedisFeedRepository) roomFeedChannel(roomID string) string {
	return fmt.Sprintf("%sroom:%s:feed", r.keyPrefix, roomID)
}

// Publish 把已提交的变更序列化后发布到房间频道
func (r *RedisFeedRepository) Publish(ctx context.Context, roomID string, event domain.ChangeEvent) error {
	channel := r.roomFeedChannel(roomID)
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal change event (type %s, key %s): %w", event.Type, event.Key(), err)
	}
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		logrus.WithFields(logrus.Fields{
			"channel":      channel,
			"payload_size": len(payload),
			"event_type":   event.Type,
			"message_id":   event.Key(),
		}).WithError(err).Error("Redis Publish failed")
		return fmt.Errorf("redis: failed to publish change event to channel %s: %w", channel, err)
	}
	return nil
}

// Subscribe 订阅房间频道。返回前会等待 Redis 确认订阅，
// 之后提交的变更都能收到。
func (r *RedisFeedRepository) Subscribe(ctx context.Context, roomID string) (repository.Subscription, error) {
	channel := r.roomFeedChannel(roomID)
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: failed to subscribe to channel %s: %w", channel, err)
	}

	sub := &redisSubscription{
		pubsub:  pubsub,
		channel: channel,
		events:  make(chan domain.ChangeEvent, subscriptionBuffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go sub.run(ctx)
	return sub, nil
}

type redisSubscription struct {
	pubsub  *redis.PubSub
	channel string
	events  chan domain.ChangeEvent

	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

func (s *redisSubscription) Events() <-chan domain.ChangeEvent { return s.events }

// Close 停止投递并关闭 Pub/Sub 连接，等待转发协程退出
func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	<-s.stopped
	return err
}

func (s *redisSubscription) run(ctx context.Context) {
	defer close(s.stopped)
	defer close(s.events)

	logCtx := logrus.WithField("channel", s.channel)
	msgs := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			s.closeOnce.Do(func() {
				close(s.done)
				_ = s.pubsub.Close()
			})
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var event domain.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logCtx.WithError(err).Warn("Dropping malformed change event")
				continue
			}
			select {
			case s.events <- event:
			case <-s.done:
				return
			case <-ctx.Done():
				s.closeOnce.Do(func() {
					close(s.done)
					_ = s.pubsub.Close()
				})
				return
			}
		}
	}
}
