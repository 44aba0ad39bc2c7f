package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// 任务类型常量
const (
	TypeRoomSweep = "room:sweep" // 过期房间清理任务
)

// QueueMaintenance 清理任务使用的队列
const QueueMaintenance = "maintenance"

// RoomSweepPayload 清理任务的数据。TriggeredBy 只用于日志（scheduler / admin / cli）。
type RoomSweepPayload struct {
	TriggeredBy string    `json:"triggered_by"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewRoomSweepTask 创建一个新的房间清理任务
func NewRoomSweepTask(triggeredBy string) (*asynq.Task, error) {
	payload, err := json.Marshal(RoomSweepPayload{TriggeredBy: triggeredBy, RequestedAt: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("marshal sweep payload: %w", err)
	}
	// 同一时刻只保留一个待执行的清理任务
	return asynq.NewTask(TypeRoomSweep, payload,
		asynq.Queue(QueueMaintenance),
		asynq.MaxRetry(3),
		asynq.Unique(time.Minute),
	), nil
}

// ParseRoomSweepPayload 解析任务数据，空 payload 视为默认值
func ParseRoomSweepPayload(data []byte) (RoomSweepPayload, error) {
	var p RoomSweepPayload
	if len(data) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("unmarshal sweep payload: %w", err)
	}
	return p, nil
}
