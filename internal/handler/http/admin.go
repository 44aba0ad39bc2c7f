package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"text-sync/internal/dto"
	"text-sync/internal/service"
	"text-sync/internal/tasks"
)

// TaskEnqueuer 由 *asynq.Client 实现
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AdminHandler 运维接口：手动清理和统计
type AdminHandler struct {
	sweeper     *service.SweepService
	roomService *service.RoomService
	enqueuer    TaskEnqueuer
}

// NewAdminHandler 创建 AdminHandler 实例，enqueuer 可以为 nil（不支持异步清理）
func NewAdminHandler(sweeper *service.SweepService, roomService *service.RoomService, enqueuer TaskEnqueuer) *AdminHandler {
	if sweeper == nil || roomService == nil {
		panic("SweepService and RoomService cannot be nil for AdminHandler")
	}
	return &AdminHandler{sweeper: sweeper, roomService: roomService, enqueuer: enqueuer}
}

// Sweep 立即清理过期房间；?async=true 时改为入队，由 worker 执行
func (h *AdminHandler) Sweep(c *gin.Context) {
	if c.Query("async") == "true" {
		h.enqueueSweep(c)
		return
	}
	result, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, result)
}

func (h *AdminHandler) enqueueSweep(c *gin.Context) {
	if h.enqueuer == nil {
		ErrorResponse(c, http.StatusServiceUnavailable, "", "Task queue is not configured")
		return
	}
	task, err := tasks.NewRoomSweepTask("admin")
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	info, err := h.enqueuer.EnqueueContext(c.Request.Context(), task)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			ErrorResponse(c, http.StatusConflict, "", "A sweep is already queued")
			return
		}
		logrus.WithError(err).Error("Failed to enqueue sweep task")
		ErrorResponse(c, http.StatusServiceUnavailable, "", "Failed to enqueue sweep task")
		return
	}
	logrus.WithFields(logrus.Fields{"task_id": info.ID, "queue": info.Queue}).Info("Sweep task enqueued via admin API")
	SuccessResponse(c, http.StatusAccepted, dto.TaskResponse{TaskID: info.ID, Queue: info.Queue})
}

// Stats 返回房间总数和已过期数量
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.roomService.Stats(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, stats)
}
