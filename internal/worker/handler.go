package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"text-sync/internal/service"
	"text-sync/internal/tasks"
)

// Sweeper 由 service.SweepService 实现
type Sweeper interface {
	Sweep(ctx context.Context) (*service.SweepResult, error)
}

// RoomSweepHandler 处理过期房间清理任务
type RoomSweepHandler struct {
	sweeper Sweeper
}

// NewRoomSweepHandler 创建 Handler 实例
func NewRoomSweepHandler(sweeper Sweeper) *RoomSweepHandler {
	if sweeper == nil {
		panic("Sweeper cannot be nil for RoomSweepHandler")
	}
	return &RoomSweepHandler{sweeper: sweeper}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *RoomSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	rw := t.ResultWriter()
	if rw != nil {
		taskID = rw.TaskID()
	}
	currentRetry, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)

	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"retry":     currentRetry,
		"max_retry": maxRetry,
	})

	payload, err := tasks.ParseRoomSweepPayload(t.Payload())
	if err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	logCtx = logCtx.WithField("triggered_by", payload.TriggeredBy)
	logCtx.Info("Processing room sweep task...")

	result, err := h.sweeper.Sweep(ctx)
	if err != nil {
		// 存储错误时整体回滚，交给 asynq 重试
		logCtx.WithError(err).Error("Room sweep failed")
		return fmt.Errorf("room sweep: %w", err)
	}

	if rw != nil {
		if data, err := json.Marshal(result); err == nil {
			if _, err := rw.Write(data); err != nil {
				logCtx.WithError(err).Warn("Failed to write sweep result")
			}
		}
	}
	logCtx.WithFields(logrus.Fields{
		"deleted": result.DeletedCount,
		"cutoff":  result.Cutoff,
	}).Info("Room sweep task processed successfully")
	return nil
}
