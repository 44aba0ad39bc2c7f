package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// RoomCodeLength 房间码长度
	RoomCodeLength = 6
	// RoomCodeAlphabet 房间码字符集，仅大写字母和数字
	RoomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// MaxRoomNameLength 房间名称最大长度（字符数）
	MaxRoomNameLength = 255
	// DefaultRoomTTL 房间从创建起的存活时间
	DefaultRoomTTL = 24 * time.Hour
)

var roomCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// Room 表示一个同步房间，ID 同时也是用户可见的加入码。
type Room struct {
	ID        string    `gorm:"primaryKey;size:6" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"` // 过期判断依据
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsExpired 判断房间在 now 时刻是否已超过 ttl。
// 只做判断，不做任何删除，过期房间由清理任务统一处理。
func (r *Room) IsExpired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = DefaultRoomTTL
	}
	return now.Sub(r.CreatedAt) > ttl
}

// ExpiresAt 返回房间到期时间
func (r *Room) ExpiresAt(ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = DefaultRoomTTL
	}
	return r.CreatedAt.Add(ttl)
}

// RoomSummary 是清理任务返回的被删除房间摘要
type RoomSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary 生成房间摘要
func (r *Room) Summary() RoomSummary {
	return RoomSummary{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt}
}

// ValidRoomCode 检查房间码格式
func ValidRoomCode(code string) bool {
	return roomCodePattern.MatchString(code)
}

// ValidateRoomCode 与 ValidRoomCode 相同，但返回包装了 ErrValidation 的错误
func ValidateRoomCode(code string) error {
	if !ValidRoomCode(code) {
		return fmt.Errorf("%w: room code must match ^[A-Z0-9]{6}$", ErrValidation)
	}
	return nil
}

// NormalizeRoomName 去掉首尾空白并校验长度，返回规范化后的名称。
func NormalizeRoomName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: room name is required", ErrValidation)
	}
	if utf8.RuneCountInString(name) > MaxRoomNameLength {
		return "", fmt.Errorf("%w: room name must be at most %d characters", ErrValidation, MaxRoomNameLength)
	}
	return name, nil
}
