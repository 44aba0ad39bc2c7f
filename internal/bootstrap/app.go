package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"text-sync/internal/hub"
	gormpersistence "text-sync/internal/infra/persistence/gorm"
	"text-sync/internal/infra/setup"
	redisstate "text-sync/internal/infra/state/redis"
	"text-sync/internal/service"
	"text-sync/internal/worker"
)

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	AsynqClient *asynq.Client
	AsynqServer *worker.WorkerServer
	Scheduler   *worker.SweepScheduler
	Hub         *hub.Hub
	HttpServer  *http.Server
}

// Services 是不依赖 HTTP 的业务组件，cmd/textsyncctl 直接使用它们
type Services struct {
	Rooms    *service.RoomService
	Messages *service.MessageService
	Sweeper  *service.SweepService
	Tokens   *service.TokenService
	Feed     *redisstate.RedisFeedRepository
}

// OpenDB 按配置打开数据库并执行迁移
func OpenDB(cfg *Config) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	if cfg.DBDriver == "sqlite" {
		db, err = setup.InitSQLite(cfg.DBName)
	} else {
		db, err = setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	return db, nil
}

// NewServices 组装仓库和服务
func NewServices(cfg *Config, db *gorm.DB, redisClient *redis.Client) (*Services, error) {
	roomRepo := gormpersistence.NewGormRoomRepository(db)
	messageRepo := gormpersistence.NewGormMessageRepository(db)
	feed := redisstate.NewRedisFeedRepository(redisClient, cfg.KeyPrefix)

	tokens, err := service.NewTokenService(cfg.JWTSecret, cfg.RoomTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create TokenService: %w", err)
	}
	return &Services{
		Rooms: service.NewRoomService(roomRepo, messageRepo, feed, tokens, service.RoomServiceConfig{
			TTL:          cfg.RoomTTL,
			DefaultTitle: cfg.DefaultTitle(),
		}),
		Messages: service.NewMessageService(roomRepo, messageRepo, feed, cfg.DefaultTitle()),
		Sweeper:  service.NewSweepService(roomRepo, feed, cfg.RoomTTL, nil),
		Tokens:   tokens,
		Feed:     feed,
	}, nil
}

// RedisConnOpt 返回 asynq 使用的 Redis 连接参数
func (c *Config) RedisConnOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := NewLogger(cfg)
	log.Infof("Logger initialized (Level: %s)", log.GetLevel())

	log.Info("Initializing infrastructure...")
	db, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	log.WithField("driver", cfg.DBDriver).Info("Database initialized and migrated")

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}

	redisOpt := cfg.RedisConnOpt()
	asynqClient := asynq.NewClient(redisOpt)
	log.Info("Infrastructure initialized successfully")

	services, err := NewServices(cfg, db, redisClient)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"room_ttl": cfg.RoomTTL, "default_title": cfg.DefaultTitle()}).Info("Services initialized")

	hubInstance := hub.NewHub(services.Feed, services.Messages)

	workerServer := worker.NewWorkerServer(redisOpt, services.Sweeper, log)
	scheduler, err := worker.NewSweepScheduler(redisOpt, cfg.SweepSchedule, log)
	if err != nil {
		return nil, err
	}

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := NewRouter(cfg, log, RouterDeps{
		Rooms:    services.Rooms,
		Messages: services.Messages,
		Sweeper:  services.Sweeper,
		Tokens:   services.Tokens,
		Hub:      hubInstance,
		Limiter:  redisstate.NewRedisRateLimiter(redisClient, cfg.KeyPrefix),
		Enqueuer: asynqClient,
	})
	log.Info("Router setup complete")

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &App{
		Config:      cfg,
		Log:         log,
		DB:          db,
		RedisClient: redisClient,
		AsynqClient: asynqClient,
		AsynqServer: workerServer,
		Scheduler:   scheduler,
		Hub:         hubInstance,
		HttpServer:  httpServer,
	}, nil
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	a.Log.Info("Starting application background routines...")
	go a.Hub.Run()

	go a.AsynqServer.Start()

	if err := a.Scheduler.Start(); err != nil {
		a.Log.Errorf("Failed to start sweep scheduler: %v", err)
	}

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 先停止接收新请求，再关闭 WebSocket 和后台任务
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	if a.Hub != nil {
		a.Hub.Stop()
	}
	if a.Scheduler != nil {
		a.Scheduler.Shutdown()
	}
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Log.Errorf("Error closing database connection: %v", err)
			}
		}
	}

	a.Log.Info("Application shutdown complete.")
}
