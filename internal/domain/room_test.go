package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoom_IsExpired(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	room := &Room{ID: "ABC123", Name: "Demo", CreatedAt: created}

	assert.False(t, room.IsExpired(created.Add(23*time.Hour), 24*time.Hour))
	assert.False(t, room.IsExpired(created.Add(24*time.Hour), 24*time.Hour), "正好 24 小时不算过期")
	assert.True(t, room.IsExpired(created.Add(25*time.Hour), 24*time.Hour))
	// ttl 非法时使用默认值
	assert.True(t, room.IsExpired(created.Add(25*time.Hour), 0))
	assert.Equal(t, created.Add(24*time.Hour), room.ExpiresAt(0))
}

func TestValidRoomCode(t *testing.T) {
	cases := map[string]bool{
		"ABC123":  true,
		"000000":  true,
		"abc123":  false,
		"ABC12":   false,
		"ABC1234": false,
		"ABC-12":  false,
		"":        false,
	}
	for code, want := range cases {
		assert.Equal(t, want, ValidRoomCode(code), code)
	}
	assert.True(t, errors.Is(ValidateRoomCode("bad"), ErrValidation))
}

func TestNormalizeRoomName(t *testing.T) {
	name, err := NormalizeRoomName("  Demo  ")
	assert.NoError(t, err)
	assert.Equal(t, "Demo", name)

	_, err = NormalizeRoomName("   ")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NormalizeRoomName(strings.Repeat("房", MaxRoomNameLength))
	assert.NoError(t, err, "长度按字符计算")

	_, err = NormalizeRoomName(strings.Repeat("a", MaxRoomNameLength+1))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestMessagePatch_Validate(t *testing.T) {
	assert.ErrorIs(t, MessagePatch{}.Validate(), ErrValidation)
	assert.NoError(t, MessagePatch{Content: StringPtr("")}.Validate(), "空内容是合法更新")
	assert.ErrorIs(t, MessagePatch{Title: StringPtr(strings.Repeat("x", 256))}.Validate(), ErrValidation)

	m := Message{ID: "m1", Content: "old"}
	MessagePatch{Content: StringPtr("new"), Title: StringPtr("t")}.ApplyTo(&m)
	assert.Equal(t, "new", m.Content)
	assert.Equal(t, "t", *m.Title)
}

func TestDefaultTitle(t *testing.T) {
	assert.Equal(t, "Untitled Message", DefaultTitle("en"))
	assert.Equal(t, "无标题消息", DefaultTitle("zh-CN"))
	assert.Equal(t, "Untitled Message", DefaultTitle("fr"))
	assert.Equal(t, "Untitled Message", DefaultTitle(""))
}

func TestMessage_CloneDoesNotShareTitle(t *testing.T) {
	m := Message{ID: "m1", Title: StringPtr("a")}
	c := m.Clone()
	*c.Title = "b"
	assert.Equal(t, "a", *m.Title)
}

func TestErrorCode(t *testing.T) {
	wrapped := fmt.Errorf("message %w", ErrNotFound)
	assert.Equal(t, CodeNotFound, ErrorCode(wrapped))
	assert.Equal(t, CodeValidation, ErrorCode(ValidateRoomCode("x")))
	assert.Equal(t, CodeInternal, ErrorCode(errors.New("boom")))
	for _, code := range []string{CodeValidation, CodeNotFound, CodeConflict, CodeExhaustedRetries, CodeStoreUnavailable} {
		assert.Equal(t, code, ErrorCode(ErrorForCode(code)))
	}
	assert.Nil(t, ErrorForCode("unknown"))
}
