package domain

import "time"

// ChangeType 变更推送的事件类型
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
	// ChangeRoomDeleted 房间被删除（手动或过期清理），房间内消息已被级联删除
	ChangeRoomDeleted ChangeType = "room_deleted"
)

// ChangeEvent 是按房间推送的行级变更通知。
// Message 为变更提交后的完整行（delete 时为被删除前的行），room_deleted 时为空。
type ChangeEvent struct {
	Type        ChangeType `json:"type"`
	RoomID      string     `json:"room_id"`
	Message     *Message   `json:"message,omitempty"`
	CommittedAt time.Time  `json:"committed_at"`
}

// Key 返回事件对应的消息 ID，房间级事件返回空串
func (e ChangeEvent) Key() string {
	if e.Message == nil {
		return ""
	}
	return e.Message.ID
}

// NewMessageEvent 根据已提交的消息构造事件
func NewMessageEvent(t ChangeType, m *Message) ChangeEvent {
	c := m.Clone()
	committed := c.UpdatedAt
	if committed.IsZero() {
		committed = time.Now().UTC()
	}
	return ChangeEvent{Type: t, RoomID: c.RoomID, Message: &c, CommittedAt: committed}
}

// NewRoomDeletedEvent 构造房间删除事件
func NewRoomDeletedEvent(roomID string, at time.Time) ChangeEvent {
	return ChangeEvent{Type: ChangeRoomDeleted, RoomID: roomID, CommittedAt: at}
}
