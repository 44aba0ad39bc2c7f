package service

import (
	"errors"
	"fmt"

	"text-sync/internal/domain"
	"text-sync/internal/repository"
)

// 服务层错误，均包装 domain 中的错误分类，Handler 通过 errors.Is 判断。
var (
	ErrRoomNotFound      = fmt.Errorf("room %w", domain.ErrNotFound)
	ErrMessageNotFound   = fmt.Errorf("message %w", domain.ErrNotFound)
	ErrRoomCodeExhausted = fmt.Errorf("could not allocate a unique room code, please try again: %w", domain.ErrExhaustedRetries)
	ErrInvalidToken      = errors.New("invalid or expired room token")
	ErrRoomExpired       = errors.New("room has expired")
)

// mapRepoError 将仓库层错误映射为服务层错误。
// notFound 为未找到时返回的具体错误。
func mapRepoError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return notFound
	case errors.Is(err, repository.ErrDuplicateEntry):
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
}
