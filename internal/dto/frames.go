package dto

import "text-sync/internal/domain"

// WebSocket 帧类型
const (
	FrameSnapshot = "snapshot"
	FrameChange   = "change"
	FrameError    = "error"
	FrameUpdate   = "update"
)

// IncomingFrame 客户端通过 WebSocket 发送的帧，目前只支持 update
type IncomingFrame struct {
	Type      string  `json:"type" binding:"required,oneof=update"`
	RequestID string  `json:"request_id,omitempty"`
	MessageID string  `json:"message_id"`
	Title     *string `json:"title,omitempty"`
	Content   *string `json:"content,omitempty"`
}

// Patch 返回帧中携带的部分更新
func (f IncomingFrame) Patch() domain.MessagePatch {
	return domain.MessagePatch{Title: f.Title, Content: f.Content}
}

// SnapshotFrame 新连接建立后发送的全量消息列表
type SnapshotFrame struct {
	Type     string           `json:"type"`
	RoomID   string           `json:"room_id"`
	Messages []domain.Message `json:"messages"`
}

// ChangeFrame 转发一条变更事件
type ChangeFrame struct {
	Type  string             `json:"type"`
	Event domain.ChangeEvent `json:"event"`
}

// ErrorFrame 发送给单个客户端的错误
type ErrorFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// OutgoingFrame 客户端解码服务端帧时使用的联合结构
type OutgoingFrame struct {
	Type      string              `json:"type"`
	RoomID    string              `json:"room_id,omitempty"`
	Messages  []domain.Message    `json:"messages,omitempty"`
	Event     *domain.ChangeEvent `json:"event,omitempty"`
	RequestID string              `json:"request_id,omitempty"`
	Code      string              `json:"code,omitempty"`
	Message   string              `json:"message,omitempty"`
}
