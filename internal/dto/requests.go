package dto

// CreateRoomRequest 创建房间
type CreateRoomRequest struct {
	Name string `json:"name" binding:"required"`
}

// JoinRoomRequest 通过房间码加入
type JoinRoomRequest struct {
	Code string `json:"code" binding:"required,len=6"`
}

// RenameRoomRequest 修改房间名称
type RenameRoomRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateMessageRequest 创建消息，ID 可由客户端生成
type CreateMessageRequest struct {
	ID    string  `json:"id,omitempty"`
	Title *string `json:"title,omitempty"`
}

// UpdateMessageRequest 部分更新消息
type UpdateMessageRequest struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

// ErrorResponse HTTP 错误响应
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// TaskResponse 异步任务入队后的响应
type TaskResponse struct {
	TaskID string `json:"task_id"`
	Queue  string `json:"queue"`
}
