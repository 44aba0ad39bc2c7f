package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxMessageTitleLength 消息标题最大长度（字符数）
const MaxMessageTitleLength = 255

// DefaultLocale 未配置语言时使用的默认语言
const DefaultLocale = "en"

// defaultTitles 新建消息未指定标题时使用的占位标题，按语言区分
var defaultTitles = map[string]string{
	"en": "Untitled Message",
	"zh": "无标题消息",
}

// DefaultTitle 返回指定语言的占位标题，未知语言回退到英文。
// 支持 "zh-CN" 这类带地区的写法。
func DefaultTitle(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if t, ok := defaultTitles[locale]; ok {
		return t
	}
	if base, _, found := strings.Cut(locale, "-"); found {
		if t, ok := defaultTitles[base]; ok {
			return t
		}
	}
	return defaultTitles[DefaultLocale]
}

// Message 表示房间内的一条文本消息。
type Message struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	RoomID    string    `gorm:"size:6;not null;index" json:"room_id"`
	Title     *string   `gorm:"size:255" json:"title"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Room 只用于迁移时生成外键，删除房间时级联删除消息
	Room *Room `gorm:"foreignKey:RoomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// Clone 返回消息的深拷贝，Title 指针不与原值共享
func (m Message) Clone() Message {
	c := m
	c.Room = nil
	if m.Title != nil {
		t := *m.Title
		c.Title = &t
	}
	return c
}

// DisplayTitle 返回展示用标题，未设置时使用 fallback
func (m *Message) DisplayTitle(fallback string) string {
	if m.Title == nil || *m.Title == "" {
		return fallback
	}
	return *m.Title
}

// NewMessage 是创建消息的输入。ID 可由客户端预先生成，
// 这样乐观插入的本地条目和变更推送的回声可以按 ID 去重。
type NewMessage struct {
	ID     string  `json:"id,omitempty"`
	RoomID string  `json:"room_id"`
	Title  *string `json:"title,omitempty"`
}

// MessagePatch 是消息的部分更新，nil 表示不修改该字段。
type MessagePatch struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

// IsEmpty 判断是否一个字段都没有
func (p MessagePatch) IsEmpty() bool {
	return p.Title == nil && p.Content == nil
}

// Validate 校验更新内容。空更新直接拒绝，不会被当成无操作。
func (p MessagePatch) Validate() error {
	if p.IsEmpty() {
		return fmt.Errorf("%w: no fields provided to update", ErrValidation)
	}
	if p.Title != nil {
		if err := ValidateTitle(*p.Title); err != nil {
			return err
		}
	}
	return nil
}

// ApplyTo 把更新写到 m 上（整字段覆盖）
func (p MessagePatch) ApplyTo(m *Message) {
	if p.Title != nil {
		t := *p.Title
		m.Title = &t
	}
	if p.Content != nil {
		m.Content = *p.Content
	}
}

// ValidateTitle 校验标题长度
func ValidateTitle(title string) error {
	if utf8.RuneCountInString(title) > MaxMessageTitleLength {
		return fmt.Errorf("%w: title must be at most %d characters", ErrValidation, MaxMessageTitleLength)
	}
	return nil
}

// StringPtr 小工具，方便构造 patch
func StringPtr(s string) *string { return &s }
