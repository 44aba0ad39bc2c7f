package syncengine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"text-sync/internal/domain"
)

// ErrNoSelection 没有选中任何消息
var ErrNoSelection = errors.New("no message selected")

// MessageEditor 是编辑缓冲依赖的引擎操作，Engine 实现了它
type MessageEditor interface {
	Get(id string) (domain.Message, bool)
	UpdateMessage(ctx context.Context, id string, patch domain.MessagePatch) (*domain.Message, error)
}

// EditBufferConfig 编辑缓冲配置
type EditBufferConfig struct {
	// Delay 静默期，<=0 时为 500ms
	Delay time.Duration
	// FlushOnSwitch 切换选中消息时先提交未写入的修改。
	// 默认 false：切换时丢弃尚未触发的修改，从新消息的确认值重新开始。
	FlushOnSwitch bool
	// OnError 后台提交失败时的回调
	OnError func(id string, err error)
}

// EditBuffer 缓存当前选中消息的本地修改，静默期结束后合并成一次 UpdateMessage。
type EditBuffer struct {
	editor    MessageEditor
	cfg       EditBufferConfig
	debouncer *Debouncer

	mu       sync.Mutex
	selected string
	content  *string
	title    *string
	closed   bool
}

// NewEditBuffer 创建编辑缓冲
func NewEditBuffer(editor MessageEditor, cfg EditBufferConfig) *EditBuffer {
	if editor == nil {
		panic("editor cannot be nil for EditBuffer")
	}
	return &EditBuffer{editor: editor, cfg: cfg, debouncer: NewDebouncer(cfg.Delay)}
}

// Selected 返回当前选中的消息 ID
func (b *EditBuffer) Selected() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selected
}

// Select 切换正在编辑的消息，缓冲从新消息的确认值重新加载。
// 未提交的修改按 FlushOnSwitch 决定提交还是丢弃。
func (b *EditBuffer) Select(ctx context.Context, id string) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if id == b.selected {
		b.mu.Unlock()
		return nil
	}
	prev := b.selected
	patch := b.takePatchLocked()
	b.selected = id
	// 持锁取消，新选中消息的修改只能在这之后重新计时
	b.debouncer.Cancel()
	b.mu.Unlock()

	if patch.IsEmpty() {
		return nil
	}
	if !b.cfg.FlushOnSwitch {
		logrus.WithFields(logrus.Fields{"message_id": prev, "next": id}).Debug("Edit buffer: discarding unflushed edits on switch")
		return nil
	}
	_, err := b.editor.UpdateMessage(ctx, prev, patch)
	return err
}

// SetContent 修改正文并重新计时
func (b *EditBuffer) SetContent(content string) error {
	return b.set(func() { b.content = &content })
}

// SetTitle 修改标题并重新计时
func (b *EditBuffer) SetTitle(title string) error {
	if err := domain.ValidateTitle(title); err != nil {
		return err
	}
	return b.set(func() { b.title = &title })
}

func (b *EditBuffer) set(apply func()) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if b.selected == "" {
		b.mu.Unlock()
		return ErrNoSelection
	}
	apply()
	b.debouncer.Trigger(b.flushInBackground)
	b.mu.Unlock()
	return nil
}

// Content 返回缓冲中的正文，未修改时返回引擎中的当前值
func (b *EditBuffer) Content() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.content != nil {
		return *b.content
	}
	msg, _ := b.editor.Get(b.selected)
	return msg.Content
}

// Title 返回缓冲中的标题，未修改时返回引擎中的当前值
func (b *EditBuffer) Title() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.title != nil {
		return *b.title
	}
	msg, _ := b.editor.Get(b.selected)
	if msg.Title == nil {
		return ""
	}
	return *msg.Title
}

// Dirty 报告是否有尚未提交的修改
func (b *EditBuffer) Dirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.content != nil || b.title != nil
}

// Flush 立即提交缓冲中的修改
func (b *EditBuffer) Flush(ctx context.Context) error {
	b.debouncer.Cancel()
	return b.flush(ctx)
}

// Close 取消计时器并丢弃未提交的修改，不会触发写入
func (b *EditBuffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.content = nil
	b.title = nil
	b.debouncer.Cancel()
	b.mu.Unlock()
}

func (b *EditBuffer) flushInBackground() {
	b.mu.Lock()
	id := b.selected
	b.mu.Unlock()
	if err := b.flush(context.Background()); err != nil {
		logrus.WithField("message_id", id).WithError(err).Warn("Edit buffer: debounced update failed")
		if b.cfg.OnError != nil {
			b.cfg.OnError(id, err)
		}
	}
}

func (b *EditBuffer) flush(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	id := b.selected
	patch := b.takePatchLocked()
	b.mu.Unlock()

	if patch.IsEmpty() || id == "" {
		return nil
	}
	_, err := b.editor.UpdateMessage(ctx, id, patch)
	return err
}

func (b *EditBuffer) takePatchLocked() domain.MessagePatch {
	patch := domain.MessagePatch{Title: b.title, Content: b.content}
	b.title = nil
	b.content = nil
	return patch
}
