package domain

import "errors"

// 错误分类。各层用 %w 包装这些哨兵错误，调用方统一用 errors.Is 判断。
var (
	// ErrValidation 输入不满足格式/长度约束（空名称、超长标题、非法房间码、空更新等），不会自动重试
	ErrValidation = errors.New("validation failed")
	// ErrNotFound 引用的房间或消息不存在（包括刚被其他设备删除）
	ErrNotFound = errors.New("not found")
	// ErrConflict 唯一约束冲突，目前只出现在房间码碰撞
	ErrConflict = errors.New("conflict")
	// ErrExhaustedRetries 房间码重试次数用尽，提示用户稍后再试
	ErrExhaustedRetries = errors.New("exhausted retries")
	// ErrStoreUnavailable 持久层暂时不可用，由调用方决定是否重试
	ErrStoreUnavailable = errors.New("store unavailable")
)

// 错误码，用于 HTTP 响应和 WebSocket 错误帧
const (
	CodeValidation       = "validation"
	CodeNotFound         = "not_found"
	CodeConflict         = "conflict"
	CodeExhaustedRetries = "exhausted_retries"
	CodeStoreUnavailable = "store_unavailable"
	CodeInternal         = "internal"
)

// ErrorCode 返回错误所属分类的错误码
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrExhaustedRetries):
		return CodeExhaustedRetries
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrStoreUnavailable):
		return CodeStoreUnavailable
	default:
		return CodeInternal
	}
}

// ErrorForCode 是 ErrorCode 的反向映射，未知错误码返回 nil
func ErrorForCode(code string) error {
	switch code {
	case CodeValidation:
		return ErrValidation
	case CodeNotFound:
		return ErrNotFound
	case CodeConflict:
		return ErrConflict
	case CodeExhaustedRetries:
		return ErrExhaustedRetries
	case CodeStoreUnavailable:
		return ErrStoreUnavailable
	default:
		return nil
	}
}
