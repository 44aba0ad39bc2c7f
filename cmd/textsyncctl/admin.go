package main

import (
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"text-sync/internal/bootstrap"
	"text-sync/internal/dto"
	"text-sync/internal/infra/setup"
	"text-sync/internal/tasks"
)

func sweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "delete rooms older than the configured TTL",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "async", Usage: "enqueue a sweep task for the worker instead of running it now"},
		},
		Action: func(cctx *cli.Context) error {
			ctx := cctx.Context
			client, err := remoteClient(cctx)
			if err != nil {
				return err
			}
			if client != nil {
				if cctx.Bool("async") {
					task, err := client.EnqueueSweep(ctx)
					if err != nil {
						return err
					}
					return printJSON(cctx, task)
				}
				result, err := client.Sweep(ctx)
				if err != nil {
					return err
				}
				return printJSON(cctx, result)
			}

			cfg, err := bootstrap.LoadConfig()
			if err != nil {
				return err
			}
			if cctx.Bool("async") {
				return enqueueLocal(cctx, cfg)
			}
			return withLocalServices(cfg, func(s *bootstrap.Services) error {
				result, err := s.Sweeper.Sweep(ctx)
				if err != nil {
					return err
				}
				return printJSON(cctx, result)
			})
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "show room counts",
		Action: func(cctx *cli.Context) error {
			client, err := remoteClient(cctx)
			if err != nil {
				return err
			}
			if client != nil {
				stats, err := client.Stats(cctx.Context)
				if err != nil {
					return err
				}
				return printJSON(cctx, stats)
			}

			cfg, err := bootstrap.LoadConfig()
			if err != nil {
				return err
			}
			return withLocalServices(cfg, func(s *bootstrap.Services) error {
				stats, err := s.Rooms.Stats(cctx.Context)
				if err != nil {
					return err
				}
				return printJSON(cctx, stats)
			})
		},
	}
}

func enqueueLocal(cctx *cli.Context, cfg *bootstrap.Config) error {
	client := asynq.NewClient(cfg.RedisConnOpt())
	defer client.Close()

	task, err := tasks.NewRoomSweepTask("cli")
	if err != nil {
		return err
	}
	info, err := client.EnqueueContext(cctx.Context, task)
	if err != nil {
		return fmt.Errorf("enqueue sweep: %w", err)
	}
	return printJSON(cctx, dto.TaskResponse{TaskID: info.ID, Queue: info.Queue})
}

// withLocalServices 打开数据库和 Redis，执行 fn 后关闭
func withLocalServices(cfg *bootstrap.Config, fn func(*bootstrap.Services) error) error {
	db, err := bootstrap.OpenDB(cfg)
	if err != nil {
		return err
	}
	defer closeDB(db)

	rdb, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer func(c *redis.Client) { _ = c.Close() }(rdb)

	services, err := bootstrap.NewServices(cfg, db, rdb)
	if err != nil {
		return err
	}
	return fn(services)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
