package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"text-sync/internal/domain"
	"text-sync/internal/dto"
)

// RoomClient 访问单个房间的接口，令牌由 CreateRoom / JoinRoom 获得
type RoomClient struct {
	client *Client
	roomID string
	token  string
}

// RoomID 返回绑定的房间
func (r *RoomClient) RoomID() string { return r.roomID }

func (r *RoomClient) messagePath(id string) string {
	p := "/api/rooms/" + url.PathEscape(r.roomID) + "/messages"
	if id != "" {
		p += "/" + url.PathEscape(id)
	}
	return p
}

// ListMessages 返回房间内所有消息。roomID 必须是绑定的房间。
func (r *RoomClient) ListMessages(ctx context.Context, roomID string) ([]domain.Message, error) {
	if err := r.checkRoom(roomID); err != nil {
		return nil, err
	}
	var out []domain.Message
	if err := r.client.do(ctx, http.MethodGet, r.messagePath(""), r.token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetMessage 查询单条消息
func (r *RoomClient) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	var out domain.Message
	if err := r.client.do(ctx, http.MethodGet, r.messagePath(id), r.token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateMessage 创建消息，input.ID 为空时由服务端生成
func (r *RoomClient) CreateMessage(ctx context.Context, input domain.NewMessage) (*domain.Message, error) {
	if err := r.checkRoom(input.RoomID); err != nil {
		return nil, err
	}
	var out domain.Message
	body := dto.CreateMessageRequest{ID: input.ID, Title: input.Title}
	if err := r.client.do(ctx, http.MethodPost, r.messagePath(""), r.token, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateMessage 部分更新消息
func (r *RoomClient) UpdateMessage(ctx context.Context, id string, patch domain.MessagePatch) (*domain.Message, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	var out domain.Message
	body := dto.UpdateMessageRequest{Title: patch.Title, Content: patch.Content}
	if err := r.client.do(ctx, http.MethodPatch, r.messagePath(id), r.token, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMessage 删除消息并返回被删除的行
func (r *RoomClient) DeleteMessage(ctx context.Context, id string) (*domain.Message, error) {
	var out domain.Message
	if err := r.client.do(ctx, http.MethodDelete, r.messagePath(id), r.token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Rename 修改房间名称
func (r *RoomClient) Rename(ctx context.Context, name string) (*domain.Room, error) {
	var out domain.Room
	path := "/api/rooms/" + url.PathEscape(r.roomID)
	if err := r.client.do(ctx, http.MethodPatch, path, r.token, dto.RenameRoomRequest{Name: name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete 删除房间
func (r *RoomClient) Delete(ctx context.Context) (*domain.Room, error) {
	var out domain.Room
	path := "/api/rooms/" + url.PathEscape(r.roomID)
	if err := r.client.do(ctx, http.MethodDelete, path, r.token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *RoomClient) checkRoom(roomID string) error {
	if roomID != r.roomID {
		return &APIError{Status: http.StatusForbidden, Message: "client is bound to room " + r.roomID, kind: ErrUnauthorized}
	}
	return nil
}
