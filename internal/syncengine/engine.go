// Package syncengine 维护单个房间的本地消息缓存：乐观写入、变更推送对账和编辑防抖。
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"text-sync/internal/domain"
	"text-sync/internal/repository"
)

var (
	// ErrClosed 引擎已关闭
	ErrClosed = errors.New("sync engine is closed")
	// ErrNotLive 引擎尚未完成 Open
	ErrNotLive = errors.New("sync engine is not live")
	// ErrAlreadyOpen 重复调用 Open
	ErrAlreadyOpen = errors.New("sync engine already opened")
	// ErrReconnecting 推送断开，正在重新订阅
	ErrReconnecting = errors.New("sync engine is reconnecting")
)

const (
	// DefaultReconnectMin 第一次重连前的等待时间
	DefaultReconnectMin = 200 * time.Millisecond
	// DefaultReconnectMax 重连等待时间上限
	DefaultReconnectMax = 10 * time.Second
)

// Store 是引擎依赖的持久化操作，由 service.MessageService（进程内）或 apiclient（远程）实现。
type Store interface {
	ListMessages(ctx context.Context, roomID string) ([]domain.Message, error)
	CreateMessage(ctx context.Context, input domain.NewMessage) (*domain.Message, error)
	UpdateMessage(ctx context.Context, id string, patch domain.MessagePatch) (*domain.Message, error)
	DeleteMessage(ctx context.Context, id string) (*domain.Message, error)
}

// Feed 提供按房间过滤的变更推送
type Feed interface {
	Subscribe(ctx context.Context, roomID string) (repository.Subscription, error)
}

// State 引擎生命周期状态
type State int

const (
	StateUninitialized State = iota
	StateLive
	// StateReconnecting 推送中断，缓存不再保证是最新的，写入被拒绝直到重新同步
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLive:
		return "live"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config 引擎配置
type Config struct {
	// DefaultTitle 乐观创建时使用的占位标题
	DefaultTitle string
	Now          func() time.Time
	NewID        func() string
	// ReconnectMin 和 ReconnectMax 控制推送断开后的指数退避
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// entry 是一条缓存消息。pending > 0 时处于 PendingLocalWrite 状态，
// 期间收到的推送只记到 shadow，不影响可见值。
type entry struct {
	visible   domain.Message
	confirmed *domain.Message
	hidden    bool

	pending       int
	since         time.Time
	shadow        *domain.Message
	shadowDeleted bool
}

// Engine 是单个房间的消息同步引擎
type Engine struct {
	roomID string
	store  Store
	feed   Feed
	cfg    Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	state       State
	sub         repository.Subscription
	entries     map[string]*entry
	tombstones  map[string]struct{}
	roomDeleted bool
	observer    func([]domain.Message)
	onState     func(State)
	version     uint64

	notifyMu sync.Mutex
	notified uint64
}

// New 创建引擎，调用 Open 之后才开始同步
func New(roomID string, store Store, feed Feed, cfg Config) *Engine {
	if store == nil || feed == nil {
		panic("store and feed cannot be nil for sync engine")
	}
	if cfg.DefaultTitle == "" {
		cfg.DefaultTitle = domain.DefaultTitle(domain.DefaultLocale)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = DefaultReconnectMin
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = DefaultReconnectMax
		if cfg.ReconnectMax < cfg.ReconnectMin {
			cfg.ReconnectMax = cfg.ReconnectMin
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		roomID:     roomID,
		store:      store,
		feed:       feed,
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		entries:    make(map[string]*entry),
		tombstones: make(map[string]struct{}),
	}
}

// RoomID 返回引擎对应的房间
func (e *Engine) RoomID() string { return e.roomID }

// State 返回当前状态
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// RoomDeleted 报告是否收到了房间删除事件
func (e *Engine) RoomDeleted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.roomDeleted
}

// OnChange 注册观察者，缓存每次可见变化后以有序列表回调。
// 回调在引擎锁之外执行，可以安全地调用引擎的读方法。
func (e *Engine) OnChange(fn func([]domain.Message)) {
	e.mu.Lock()
	e.observer = fn
	e.mu.Unlock()
}

// OnStateChange 注册状态回调，在推送断开和恢复时调用，回调在引擎锁之外执行
func (e *Engine) OnStateChange(fn func(State)) {
	e.mu.Lock()
	e.onState = fn
	e.mu.Unlock()
}

// Open 先订阅变更推送，再拉取全量消息填充缓存，最后启动事件消费。
// 先订阅保证拉取期间提交的变更不会丢失。
func (e *Engine) Open(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case StateLive, StateReconnecting:
		e.mu.Unlock()
		return ErrAlreadyOpen
	case StateClosed:
		e.mu.Unlock()
		return ErrClosed
	}
	e.mu.Unlock()

	logCtx := logrus.WithField("room_id", e.roomID)
	sub, err := e.feed.Subscribe(e.ctx, e.roomID)
	if err != nil {
		logCtx.WithError(err).Warn("Sync engine: subscribe failed")
		return fmt.Errorf("subscribe to room %s: %w", e.roomID, err)
	}

	messages, err := e.store.ListMessages(ctx, e.roomID)
	if err != nil {
		_ = sub.Close()
		logCtx.WithError(err).Warn("Sync engine: hydrate failed")
		return fmt.Errorf("hydrate room %s: %w", e.roomID, err)
	}

	e.mu.Lock()
	if e.state != StateUninitialized {
		e.mu.Unlock()
		_ = sub.Close()
		return ErrClosed
	}
	for i := range messages {
		m := messages[i].Clone()
		if m.RoomID != e.roomID {
			continue
		}
		confirmed := m.Clone()
		e.entries[m.ID] = &entry{visible: m, confirmed: &confirmed}
	}
	e.state = StateLive
	e.sub = sub
	e.wg.Add(1)
	go e.consume(sub)
	v, list, fn := e.changedLocked()
	e.mu.Unlock()

	e.emit(v, list, fn)
	logCtx.WithField("messages", len(messages)).Debug("Sync engine live")
	return nil
}

// Close 立即停止应用推送事件，关闭订阅并等待消费协程退出。
// 进行中的写入可以完成，但结果不再写回缓存。可重复调用。
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return nil
	}
	e.state = StateClosed
	sub := e.sub
	e.sub = nil
	e.mu.Unlock()

	var err error
	if sub != nil {
		err = sub.Close()
	}
	e.cancel()
	e.wg.Wait()
	return err
}

// consume 应用推送事件。订阅被对端关闭时重新订阅并重新拉取，直到引擎关闭。
func (e *Engine) consume(sub repository.Subscription) {
	defer e.wg.Done()
	for {
		for ev := range sub.Events() {
			e.ApplyFeedEvent(ev)
		}
		next, ok := e.reconnect(sub)
		if !ok {
			return
		}
		sub = next
	}
}

// reconnect 按指数退避重新订阅并对账，返回新的订阅。引擎关闭或房间已删除时返回 false。
func (e *Engine) reconnect(dropped repository.Subscription) (repository.Subscription, bool) {
	e.mu.Lock()
	if e.state != StateLive || e.sub != dropped {
		e.mu.Unlock()
		return nil, false
	}
	e.state = StateReconnecting
	e.sub = nil
	onState := e.onState
	e.mu.Unlock()

	_ = dropped.Close()
	notifyState(onState, StateReconnecting)
	logCtx := logrus.WithField("room_id", e.roomID)
	logCtx.Warn("Sync engine: feed closed, reconnecting")

	delay := e.cfg.ReconnectMin
	for attempt := 1; ; attempt++ {
		select {
		case <-e.ctx.Done():
			return nil, false
		case <-time.After(delay):
		}

		sub, err := e.resync()
		if err == nil {
			logCtx.WithField("attempt", attempt).Info("Sync engine: feed resumed")
			return sub, true
		}
		switch {
		case errors.Is(err, ErrClosed):
			return nil, false
		case errors.Is(err, domain.ErrNotFound):
			logCtx.Warn("Sync engine: room gone while reconnecting")
			e.markRoomGone()
			return nil, false
		}
		logCtx.WithError(err).WithField("attempt", attempt).Warn("Sync engine: reconnect failed")
		delay *= 2
		if delay > e.cfg.ReconnectMax {
			delay = e.cfg.ReconnectMax
		}
	}
}

// resync 与 Open 相同的顺序：先订阅再拉取，然后按 ID 对账缓存
func (e *Engine) resync() (repository.Subscription, error) {
	sub, err := e.feed.Subscribe(e.ctx, e.roomID)
	if err != nil {
		return nil, fmt.Errorf("subscribe to room %s: %w", e.roomID, err)
	}
	messages, err := e.store.ListMessages(e.ctx, e.roomID)
	if err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("hydrate room %s: %w", e.roomID, err)
	}

	e.mu.Lock()
	if e.state != StateReconnecting {
		e.mu.Unlock()
		_ = sub.Close()
		return nil, ErrClosed
	}
	e.reconcileLocked(messages)
	e.state = StateLive
	e.sub = sub
	onState := e.onState
	v, list, fn := e.changedLocked()
	e.mu.Unlock()

	e.emit(v, list, fn)
	notifyState(onState, StateLive)
	return sub, nil
}

// reconcileLocked 用拉取到的全量消息修正缓存。断开期间被删除的消息从缓存移除，
// 有未确认写入的条目按推送事件的规则处理。
func (e *Engine) reconcileLocked(messages []domain.Message) {
	seen := make(map[string]struct{}, len(messages))
	for i := range messages {
		m := messages[i]
		if m.RoomID != e.roomID {
			continue
		}
		seen[m.ID] = struct{}{}
		e.applyLocked(domain.NewMessageEvent(domain.ChangeUpdate, &m))
	}
	for id, ent := range e.entries {
		if _, ok := seen[id]; ok || ent.pending > 0 {
			continue
		}
		e.removeLocked(id)
	}
}

// markRoomGone 房间在断开期间被删除：清空缓存并进入关闭状态
func (e *Engine) markRoomGone() {
	e.mu.Lock()
	if e.state != StateReconnecting {
		e.mu.Unlock()
		return
	}
	e.applyLocked(domain.NewRoomDeletedEvent(e.roomID, e.cfg.Now().UTC()))
	e.state = StateClosed
	onState := e.onState
	v, list, fn := e.changedLocked()
	e.mu.Unlock()

	e.cancel()
	e.emit(v, list, fn)
	notifyState(onState, StateClosed)
}

func notifyState(fn func(State), s State) {
	if fn != nil {
		fn(s)
	}
}

// ListMessages 返回可见消息，按创建时间排序
func (e *Engine) ListMessages() []domain.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listLocked()
}

// Get 返回单条可见消息
func (e *Engine) Get(id string) (domain.Message, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entries[id]
	if !ok || ent.hidden {
		return domain.Message{}, false
	}
	return ent.visible.Clone(), true
}

// DefaultSelection 返回按创建顺序的第一条消息 ID，没有消息时返回空串
func (e *Engine) DefaultSelection() string {
	list := e.ListMessages()
	if len(list) == 0 {
		return ""
	}
	return list[0].ID
}

// PendingSince 报告消息是否有未确认的本地写入，以及开始时间
func (e *Engine) PendingSince(id string) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entries[id]
	if !ok || ent.pending == 0 {
		return time.Time{}, false
	}
	return ent.since, true
}

// ApplyFeedEvent 按 ID 对账一条推送事件。整行替换，重复投递是幂等的。
func (e *Engine) ApplyFeedEvent(ev domain.ChangeEvent) {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return
	}
	if !e.applyLocked(ev) {
		e.mu.Unlock()
		return
	}
	v, list, fn := e.changedLocked()
	e.mu.Unlock()
	e.emit(v, list, fn)
}

func (e *Engine) applyLocked(ev domain.ChangeEvent) bool {
	if ev.RoomID != e.roomID {
		return false
	}
	if ev.Type == domain.ChangeRoomDeleted {
		for id := range e.entries {
			e.tombstones[id] = struct{}{}
		}
		changed := len(e.entries) > 0 || !e.roomDeleted
		e.entries = make(map[string]*entry)
		e.roomDeleted = true
		return changed
	}
	if ev.Message == nil || ev.Message.RoomID != e.roomID {
		return false
	}
	id := ev.Key()
	if _, dead := e.tombstones[id]; dead {
		return false
	}
	ent := e.entries[id]

	switch ev.Type {
	case domain.ChangeInsert, domain.ChangeUpdate:
		msg := ev.Message.Clone()
		if ent == nil {
			confirmed := msg.Clone()
			e.entries[id] = &entry{visible: msg, confirmed: &confirmed}
			return true
		}
		if ent.pending > 0 {
			ent.shadow = newer(ent.shadow, &msg)
			return false
		}
		if ent.confirmed != nil && msg.UpdatedAt.Before(ent.confirmed.UpdatedAt) {
			return false
		}
		confirmed := msg.Clone()
		ent.confirmed = &confirmed
		if sameMessage(ent.visible, msg) {
			return false
		}
		ent.visible = msg
		return true
	case domain.ChangeDelete:
		if ent != nil && ent.pending > 0 {
			ent.shadowDeleted = true
			return false
		}
		e.removeLocked(id)
		return ent != nil && !ent.hidden
	default:
		logrus.WithFields(logrus.Fields{"room_id": e.roomID, "event_type": ev.Type}).Warn("Sync engine: unknown event type")
		return false
	}
}

// CreateMessage 乐观插入一条空消息，ID 由客户端生成，推送回声按 ID 去重
func (e *Engine) CreateMessage(ctx context.Context, title *string) (*domain.Message, error) {
	if title != nil {
		if err := domain.ValidateTitle(*title); err != nil {
			return nil, err
		}
	}
	id := e.cfg.NewID()

	e.mu.Lock()
	if err := e.checkLiveLocked(); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	now := e.cfg.Now().UTC()
	t := e.cfg.DefaultTitle
	if title != nil {
		t = *title
	}
	local := domain.Message{ID: id, RoomID: e.roomID, Title: &t, Content: "", CreatedAt: now, UpdatedAt: now}
	e.entries[id] = &entry{visible: local, pending: 1, since: now}
	v, list, fn := e.changedLocked()
	e.mu.Unlock()
	e.emit(v, list, fn)

	res, err := e.store.CreateMessage(ctx, domain.NewMessage{ID: id, RoomID: e.roomID, Title: title})
	e.resolve(id, res, err)
	return res, err
}

// UpdateMessage 乐观地应用部分更新，然后写入存储。
// 空更新直接返回 ValidationError。
func (e *Engine) UpdateMessage(ctx context.Context, id string, patch domain.MessagePatch) (*domain.Message, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if err := e.checkLiveLocked(); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if _, dead := e.tombstones[id]; dead {
		e.mu.Unlock()
		return nil, fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	if ent, ok := e.entries[id]; ok {
		e.beginWriteLocked(ent)
		patch.ApplyTo(&ent.visible)
		v, list, fn := e.changedLocked()
		e.mu.Unlock()
		e.emit(v, list, fn)
	} else {
		e.mu.Unlock()
	}

	res, err := e.store.UpdateMessage(ctx, id, patch)
	e.resolve(id, res, err)
	return res, err
}

// RenameMessage 只修改标题
func (e *Engine) RenameMessage(ctx context.Context, id, title string) (*domain.Message, error) {
	return e.UpdateMessage(ctx, id, domain.MessagePatch{Title: &title})
}

// DeleteMessage 先在本地隐藏，再删除存储中的行。失败时恢复可见。
func (e *Engine) DeleteMessage(ctx context.Context, id string) (*domain.Message, error) {
	e.mu.Lock()
	if err := e.checkLiveLocked(); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if ent, ok := e.entries[id]; ok {
		e.beginWriteLocked(ent)
		ent.hidden = true
		v, list, fn := e.changedLocked()
		e.mu.Unlock()
		e.emit(v, list, fn)
	} else {
		e.mu.Unlock()
	}

	res, err := e.store.DeleteMessage(ctx, id)

	e.mu.Lock()
	if !e.acceptsResultsLocked() {
		e.mu.Unlock()
		return res, err
	}
	changed := false
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		ent := e.entries[id]
		e.removeLocked(id)
		changed = ent != nil
	} else if ent, ok := e.entries[id]; ok {
		ent.hidden = false
		e.resolveLocked(id, nil, err)
		changed = true
	}
	if !changed {
		e.mu.Unlock()
		return res, err
	}
	v, list, fn := e.changedLocked()
	e.mu.Unlock()
	e.emit(v, list, fn)
	return res, err
}

// resolve 处理一次写入的结果。引擎已关闭时丢弃结果。
func (e *Engine) resolve(id string, res *domain.Message, err error) {
	e.mu.Lock()
	if !e.acceptsResultsLocked() {
		e.mu.Unlock()
		return
	}
	if !e.resolveLocked(id, res, err) {
		e.mu.Unlock()
		return
	}
	v, list, fn := e.changedLocked()
	e.mu.Unlock()
	e.emit(v, list, fn)
}

func (e *Engine) resolveLocked(id string, res *domain.Message, err error) bool {
	if _, dead := e.tombstones[id]; dead {
		return false
	}
	ent, ok := e.entries[id]
	if !ok {
		// 没有乐观条目（例如更新了尚未同步到本地的消息），成功时直接作为确认值
		if err == nil && res != nil && res.RoomID == e.roomID {
			m := res.Clone()
			confirmed := m.Clone()
			e.entries[id] = &entry{visible: m, confirmed: &confirmed}
			return true
		}
		return false
	}

	if ent.pending > 0 {
		ent.pending--
	}
	if err != nil && errors.Is(err, domain.ErrNotFound) {
		e.removeLocked(id)
		return true
	}
	if err == nil && res != nil {
		m := res.Clone()
		// 时间相同时以写入响应为准
		ent.confirmed = newer(&m, ent.confirmed)
	}
	if ent.pending > 0 {
		return false
	}
	if ent.shadowDeleted {
		e.removeLocked(id)
		return true
	}

	best := newer(ent.confirmed, ent.shadow)
	ent.shadow = nil
	ent.since = time.Time{}
	if best == nil {
		// 乐观创建失败，且从未确认过
		delete(e.entries, id)
		return true
	}
	confirmed := best.Clone()
	ent.confirmed = &confirmed
	ent.visible = best.Clone()
	return true
}

func (e *Engine) beginWriteLocked(ent *entry) {
	if ent.pending == 0 {
		ent.since = e.cfg.Now().UTC()
	}
	ent.pending++
}

func (e *Engine) removeLocked(id string) {
	delete(e.entries, id)
	e.tombstones[id] = struct{}{}
}

// acceptsResultsLocked 重连期间仍然接收进行中写入的结果，避免条目一直处于未确认状态
func (e *Engine) acceptsResultsLocked() bool {
	return e.state == StateLive || e.state == StateReconnecting
}

func (e *Engine) checkLiveLocked() error {
	switch e.state {
	case StateLive:
		return nil
	case StateReconnecting:
		return ErrReconnecting
	case StateClosed:
		return ErrClosed
	default:
		return ErrNotLive
	}
}

func (e *Engine) listLocked() []domain.Message {
	list := make([]domain.Message, 0, len(e.entries))
	for _, ent := range e.entries {
		if ent.hidden {
			continue
		}
		list = append(list, ent.visible.Clone())
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list
}

func (e *Engine) changedLocked() (uint64, []domain.Message, func([]domain.Message)) {
	e.version++
	if e.observer == nil {
		return e.version, nil, nil
	}
	return e.version, e.listLocked(), e.observer
}

// emit 按版本号顺序回调观察者，过时的快照直接丢弃
func (e *Engine) emit(version uint64, list []domain.Message, fn func([]domain.Message)) {
	if fn == nil {
		return
	}
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()
	if version <= e.notified {
		return
	}
	e.notified = version
	fn(list)
}

// newer 返回 UpdatedAt 较新的一个，相同时返回 a
func newer(a, b *domain.Message) *domain.Message {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if b.UpdatedAt.After(a.UpdatedAt) {
		return b
	}
	return a
}

func sameMessage(a, b domain.Message) bool {
	if a.ID != b.ID || a.RoomID != b.RoomID || a.Content != b.Content {
		return false
	}
	if (a.Title == nil) != (b.Title == nil) || (a.Title != nil && *a.Title != *b.Title) {
		return false
	}
	return a.CreatedAt.Equal(b.CreatedAt) && a.UpdatedAt.Equal(b.UpdatedAt)
}
