package worker

import (
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"text-sync/internal/tasks"
)

// DefaultSweepSchedule 默认每小时清理一次
const DefaultSweepSchedule = "@every 1h"

// SweepScheduler 周期性地把清理任务放入队列
type SweepScheduler struct {
	scheduler *asynq.Scheduler
	log       *logrus.Entry
	entryID   string
}

// NewSweepScheduler 创建调度器并注册清理任务，spec 为 cron 表达式或 "@every <duration>"
func NewSweepScheduler(redisOpt asynq.RedisConnOpt, spec string, logger *logrus.Logger) (*SweepScheduler, error) {
	if spec == "" {
		spec = DefaultSweepSchedule
	}
	logEntry := logger.WithField("component", "sweep_scheduler")
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger: logEntry,
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				logEntry.WithError(err).Warn("Scheduled sweep not enqueued")
				return
			}
			logEntry.WithField("task_id", info.ID).Debug("Scheduled sweep enqueued")
		},
	})

	task, err := tasks.NewRoomSweepTask("scheduler")
	if err != nil {
		return nil, err
	}
	entryID, err := scheduler.Register(spec, task)
	if err != nil {
		return nil, fmt.Errorf("register sweep schedule %q: %w", spec, err)
	}
	logEntry.WithFields(logrus.Fields{"entry_id": entryID, "spec": spec}).Info("Sweep task scheduled")
	return &SweepScheduler{scheduler: scheduler, log: logEntry, entryID: entryID}, nil
}

// Start 启动调度器（非阻塞）
func (s *SweepScheduler) Start() error {
	s.log.Info("Sweep scheduler starting...")
	return s.scheduler.Start()
}

// Shutdown 停止调度器
func (s *SweepScheduler) Shutdown() {
	s.scheduler.Shutdown()
	s.log.Info("Sweep scheduler stopped.")
}
