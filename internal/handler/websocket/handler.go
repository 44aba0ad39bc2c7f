package websocket

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"text-sync/internal/domain"
	"text-sync/internal/dto"
	"text-sync/internal/hub"
	"text-sync/internal/service"
)

// WebSocketHandler 负责处理 WebSocket 升级请求和客户端注册
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	hub         *hub.Hub
	roomService *service.RoomService
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。
// allowedOrigin 为空或 "*" 时允许所有来源。
func NewWebSocketHandler(h *hub.Hub, roomService *service.RoomService, allowedOrigin string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if roomService == nil {
		panic("RoomService cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" || allowedOrigin == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origin == allowedOrigin
		},
	}

	return &WebSocketHandler{
		upgrader:    upgrader,
		hub:         h,
		roomService: roomService,
	}
}

// HandleConnection 处理 WebSocket 连接请求
// URL 预期格式: /ws/rooms/{roomId}，令牌已由 RoomAuth 中间件校验
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	roomID := c.Param("roomId")
	logCtx := logrus.WithField("room_id", roomID)

	room, err := h.roomService.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrValidation):
			status = http.StatusBadRequest
		case errors.Is(err, domain.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, domain.ErrStoreUnavailable):
			status = http.StatusServiceUnavailable
		}
		logCtx.WithError(err).Warn("WS Handler: Failed to validate room")
		c.AbortWithStatusJSON(status, dto.ErrorResponse{Error: err.Error(), Code: domain.ErrorCode(err)})
		return
	}
	if h.roomService.IsExpired(room) {
		logCtx.Info("WS Handler: Room expired")
		c.AbortWithStatusJSON(http.StatusGone, dto.ErrorResponse{Error: service.ErrRoomExpired.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写回了 HTTP 错误
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}

	client := hub.NewClient(h.hub, conn, uuid.NewString(), roomID)
	logCtx = logCtx.WithField("client_id", client.ID())
	logCtx.Info("WS Handler: Connection upgraded to WebSocket")

	if !h.hub.QueueMessage(hub.HubMessage{Type: "register", RoomID: roomID, Client: client}) {
		logCtx.Error("WS Handler: Hub message channel full, failed to register client")
		client.CloseConn()
		return
	}

	client.Run()
	logCtx.Debug("WS Handler: Client read/write pumps started")
}
