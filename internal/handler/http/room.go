package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"text-sync/internal/domain"
	"text-sync/internal/dto"
	"text-sync/internal/service"
)

// RoomHandler 封装了与房间管理相关的 HTTP 处理逻辑
type RoomHandler struct {
	roomService *service.RoomService
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	if roomService == nil {
		panic("RoomService cannot be nil for RoomHandler")
	}
	return &RoomHandler{roomService: roomService}
}

// RoomResponse 查询房间的响应
type RoomResponse struct {
	Room    *domain.Room `json:"room"`
	Expired bool         `json:"expired"`
}

// CreateRoom 处理创建新房间的请求
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req dto.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.roomService.CreateRoom(c.Request.Context(), req.Name)
	if err != nil {
		logrus.WithError(err).Warn("Handler.CreateRoom: Failed to create room via service")
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, result)
}

// JoinRoom 处理通过房间码加入的请求。过期房间返回 200 和 expired=true。
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	var req dto.JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.roomService.JoinRoom(c.Request.Context(), req.Code)
	if err != nil {
		logrus.WithField("room_id", req.Code).WithError(err).Warn("Handler.JoinRoom: Failed to join room")
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, result)
}

// GetRoom 查询房间及其是否过期
func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, err := h.roomService.GetRoom(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, RoomResponse{Room: room, Expired: h.roomService.IsExpired(room)})
}

// RenameRoom 修改房间名称
func (h *RoomHandler) RenameRoom(c *gin.Context) {
	var req dto.RenameRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	room, err := h.roomService.RenameRoom(c.Request.Context(), c.Param("roomId"), req.Name)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room)
}

// TouchRoom 刷新房间的更新时间
func (h *RoomHandler) TouchRoom(c *gin.Context) {
	room, err := h.roomService.TouchRoom(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room)
}

// DeleteRoom 删除房间，消息级联删除
func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	room, err := h.roomService.DeleteRoom(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	logrus.WithField("room_id", room.ID).Info("Room deleted via API")
	SuccessResponse(c, http.StatusOK, room)
}
