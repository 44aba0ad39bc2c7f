package bootstrap

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	httpHandler "text-sync/internal/handler/http"
	wsHandler "text-sync/internal/handler/websocket"
	"text-sync/internal/hub"
	"text-sync/internal/middleware"
	"text-sync/internal/service"
)

// RouterDeps 是构建路由需要的组件
type RouterDeps struct {
	Rooms    *service.RoomService
	Messages *service.MessageService
	Sweeper  *service.SweepService
	Tokens   *service.TokenService
	Hub      *hub.Hub
	Limiter  middleware.Limiter          // 可以为 nil，表示不限流
	Enqueuer httpHandler.TaskEnqueuer // 可以为 nil，表示不支持异步清理
}

// NewRouter 创建 Gin Engine 并注册全部路由
func NewRouter(cfg *Config, log *logrus.Logger, deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(cfg.AllowedOrigin))
	if deps.Limiter != nil {
		router.Use(middleware.RateLimit(deps.Limiter, cfg.RateLimitMax, cfg.RateLimitWindow))
	}

	roomHandler := httpHandler.NewRoomHandler(deps.Rooms)
	messageHandler := httpHandler.NewMessageHandler(deps.Messages)
	adminHandler := httpHandler.NewAdminHandler(deps.Sweeper, deps.Rooms, deps.Enqueuer)
	ws := wsHandler.NewWebSocketHandler(deps.Hub, deps.Rooms, cfg.AllowedOrigin)
	roomAuth := middleware.RoomAuth(deps.Tokens)

	api := router.Group("/api")
	rooms := api.Group("/rooms")
	{
		rooms.POST("", roomHandler.CreateRoom)
		rooms.POST("/join", roomHandler.JoinRoom)
		rooms.GET("/:roomId", roomHandler.GetRoom)
	}
	scoped := rooms.Group("/:roomId", roomAuth)
	{
		scoped.PATCH("", roomHandler.RenameRoom)
		scoped.DELETE("", roomHandler.DeleteRoom)
		scoped.POST("/touch", roomHandler.TouchRoom)
		scoped.GET("/messages", messageHandler.ListMessages)
		scoped.POST("/messages", messageHandler.CreateMessage)
		scoped.GET("/messages/:id", messageHandler.GetMessage)
		scoped.PATCH("/messages/:id", messageHandler.UpdateMessage)
		scoped.DELETE("/messages/:id", messageHandler.DeleteMessage)
	}
	admin := api.Group("/admin", middleware.AdminAuth(cfg.AdminToken))
	{
		admin.POST("/sweep", adminHandler.Sweep)
		admin.GET("/stats", adminHandler.Stats)
	}
	router.GET("/ws/rooms/:roomId", roomAuth, ws.HandleConnection)
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	return router
}

// CORSMiddleware 允许配置的来源跨域访问
func CORSMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, "+middleware.AdminTokenHeader)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()

		// token 可能出现在查询参数里，日志只记录路径
		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
		})

		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			entry.Error(errorMessage)
			return
		}
		switch {
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}
