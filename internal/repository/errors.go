package repository

import "errors"

// 通用的存储库错误，具体实现（gorm / redis）负责把底层错误映射成这些值
var (
	// ErrNotFound 表示请求的记录未找到
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateEntry 表示插入的数据违反了唯一约束（例如房间码或消息 ID 重复）
	ErrDuplicateEntry = errors.New("repository: duplicate entry")
)

var (
	ErrRoomNotFound    = ErrNotFound
	ErrMessageNotFound = ErrNotFound
)
