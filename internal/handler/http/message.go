package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"text-sync/internal/domain"
	"text-sync/internal/dto"
	"text-sync/internal/service"
)

// MessageHandler 处理房间内消息的增删改查
type MessageHandler struct {
	messageService *service.MessageService
}

// NewMessageHandler 创建 MessageHandler 实例
func NewMessageHandler(messageService *service.MessageService) *MessageHandler {
	if messageService == nil {
		panic("MessageService cannot be nil for MessageHandler")
	}
	return &MessageHandler{messageService: messageService}
}

func (h *MessageHandler) ListMessages(c *gin.Context) {
	messages, err := h.messageService.ListMessages(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, messages)
}

func (h *MessageHandler) CreateMessage(c *gin.Context) {
	var req dto.CreateMessageRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}
	msg, err := h.messageService.CreateMessage(c.Request.Context(), domain.NewMessage{
		ID:     req.ID,
		RoomID: c.Param("roomId"),
		Title:  req.Title,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, msg)
}

func (h *MessageHandler) GetMessage(c *gin.Context) {
	msg, ok := h.loadInRoom(c)
	if !ok {
		return
	}
	SuccessResponse(c, http.StatusOK, msg)
}

func (h *MessageHandler) UpdateMessage(c *gin.Context) {
	var req dto.UpdateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if _, ok := h.loadInRoom(c); !ok {
		return
	}
	msg, err := h.messageService.UpdateMessage(c.Request.Context(), c.Param("id"),
		domain.MessagePatch{Title: req.Title, Content: req.Content})
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, msg)
}

func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	if _, ok := h.loadInRoom(c); !ok {
		return
	}
	msg, err := h.messageService.DeleteMessage(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, msg)
}

// loadInRoom 加载消息并确认它属于路径中的房间，其他房间的消息按不存在处理
func (h *MessageHandler) loadInRoom(c *gin.Context) (*domain.Message, bool) {
	msg, err := h.messageService.GetMessage(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return nil, false
	}
	if msg.RoomID != c.Param("roomId") {
		HandleServiceError(c, service.ErrMessageNotFound)
		return nil, false
	}
	return msg, true
}
