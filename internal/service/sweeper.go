package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"text-sync/internal/domain"
	"text-sync/internal/repository"
)

// SweepResult 是一次过期清理的结果
type SweepResult struct {
	DeletedCount int                  `json:"deleted_count"`
	DeletedRooms []domain.RoomSummary `json:"deleted_rooms"`
	Cutoff       time.Time            `json:"cutoff"`
	SweptAt      time.Time            `json:"swept_at"`
}

// SweepService 删除创建时间超过 TTL 的房间
type SweepService struct {
	roomRepo repository.RoomRepository
	feed     repository.ChangeFeed
	ttl      time.Duration
	now      func() time.Time
}

// NewSweepService 创建 SweepService 实例。now 为 nil 时使用 time.Now。
func NewSweepService(roomRepo repository.RoomRepository, feed repository.ChangeFeed, ttl time.Duration, now func() time.Time) *SweepService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for SweepService")
	}
	if ttl <= 0 {
		ttl = domain.DefaultRoomTTL
	}
	if now == nil {
		now = time.Now
	}
	return &SweepService{roomRepo: roomRepo, feed: feed, ttl: ttl, now: now}
}

// Sweep 选出 created_at < now-TTL 的房间并在同一事务中删除。
// 任何存储错误都会中止本次清理并返回，事务整体回滚。
func (s *SweepService) Sweep(ctx context.Context) (*SweepResult, error) {
	sweptAt := s.now().UTC()
	cutoff := sweptAt.Add(-s.ttl)
	logCtx := logrus.WithField("cutoff", cutoff.Format(time.RFC3339))

	deleted, err := s.roomRepo.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		logCtx.WithError(err).Error("Sweep: failed to delete expired rooms")
		return nil, mapRepoError(err, ErrRoomNotFound)
	}

	result := &SweepResult{
		DeletedCount: len(deleted),
		DeletedRooms: make([]domain.RoomSummary, 0, len(deleted)),
		Cutoff:       cutoff,
		SweptAt:      sweptAt,
	}
	if len(deleted) == 0 {
		logCtx.Debug("Sweep: no expired rooms")
		return result, nil
	}
	for i := range deleted {
		result.DeletedRooms = append(result.DeletedRooms, deleted[i].Summary())
		publishRoomDeleted(ctx, s.feed, deleted[i].ID, sweptAt)
	}
	logCtx.WithField("deleted_count", result.DeletedCount).Info("Sweep: expired rooms deleted")
	return result, nil
}
