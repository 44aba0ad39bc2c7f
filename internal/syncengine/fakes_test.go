package syncengine_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"text-sync/internal/domain"
	"text-sync/internal/repository"
	"text-sync/internal/repository/mocks"
)

// memFeed 是进程内的变更推送，按房间分发给所有订阅
type memFeed struct {
	mu   sync.Mutex
	subs map[string][]*mocks.Subscription
	err  error
}

func newMemFeed() *memFeed { return &memFeed{subs: make(map[string][]*mocks.Subscription)} }

func (f *memFeed) Subscribe(_ context.Context, roomID string) (repository.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	sub := mocks.NewSubscription()
	f.subs[roomID] = append(f.subs[roomID], sub)
	return sub, nil
}

func (f *memFeed) publish(ev domain.ChangeEvent) {
	f.mu.Lock()
	subs := append([]*mocks.Subscription(nil), f.subs[ev.RoomID]...)
	f.mu.Unlock()
	for _, s := range subs {
		s.Push(ev)
	}
}

// failWith 让之后的 Subscribe 都返回 err，传 nil 恢复
func (f *memFeed) failWith(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// subscription 返回房间的第 i 个订阅
func (f *memFeed) subscription(roomID string, i int) *mocks.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[roomID][i]
}

func (f *memFeed) count(roomID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[roomID])
}

// memStore 是内存中的消息表，写入成功后向 memFeed 推送
type memStore struct {
	feed *memFeed

	mu       sync.Mutex
	rows     map[string]domain.Message
	clock    time.Time
	calls    map[string]int
	updates  []domain.MessagePatch
	failNext error
	gate     chan struct{}
}

func newMemStore(feed *memFeed) *memStore {
	return &memStore{
		feed:  feed,
		rows:  make(map[string]domain.Message),
		clock: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		calls: make(map[string]int),
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) seed(roomID, id, content string) domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	m := domain.Message{ID: id, RoomID: roomID, Title: domain.StringPtr("Untitled Message"), Content: content, CreatedAt: now, UpdatedAt: now}
	s.rows[id] = m
	return m
}

// putSilently 直接改表且不推送，模拟推送断开期间错过的变更
func (s *memStore) putSilently(m domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.UpdatedAt = s.tick()
	s.rows[m.ID] = m
}

// removeSilently 直接删除且不推送
func (s *memStore) removeSilently(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
}

// hold 让之后的存储调用阻塞，直到调用返回的 release
func (s *memStore) hold() func() {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// failWith 让下一次存储调用返回 err
func (s *memStore) failWith(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

func (s *memStore) callCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *memStore) lastUpdates() []domain.MessagePatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.MessagePatch(nil), s.updates...)
}

func (s *memStore) enter(op string) error {
	s.mu.Lock()
	s.calls[op]++
	gate := s.gate
	err := s.failNext
	s.failNext = nil
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

func (s *memStore) ListMessages(_ context.Context, roomID string) ([]domain.Message, error) {
	if err := s.enter("list"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]domain.Message, 0)
	for _, m := range s.rows {
		if m.RoomID == roomID {
			list = append(list, m.Clone())
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

func (s *memStore) CreateMessage(_ context.Context, input domain.NewMessage) (*domain.Message, error) {
	if err := s.enter("create"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if _, exists := s.rows[input.ID]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("duplicate: %w", domain.ErrConflict)
	}
	now := s.tick()
	title := "Untitled Message"
	if input.Title != nil {
		title = *input.Title
	}
	m := domain.Message{ID: input.ID, RoomID: input.RoomID, Title: &title, CreatedAt: now, UpdatedAt: now}
	s.rows[m.ID] = m
	s.mu.Unlock()
	s.feed.publish(domain.NewMessageEvent(domain.ChangeInsert, &m))
	out := m.Clone()
	return &out, nil
}

func (s *memStore) UpdateMessage(_ context.Context, id string, patch domain.MessagePatch) (*domain.Message, error) {
	if err := s.enter("update"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.updates = append(s.updates, patch)
	m, ok := s.rows[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("message %w", domain.ErrNotFound)
	}
	patch.ApplyTo(&m)
	m.UpdatedAt = s.tick()
	s.rows[id] = m
	s.mu.Unlock()
	s.feed.publish(domain.NewMessageEvent(domain.ChangeUpdate, &m))
	out := m.Clone()
	return &out, nil
}

func (s *memStore) DeleteMessage(_ context.Context, id string) (*domain.Message, error) {
	if err := s.enter("delete"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	m, ok := s.rows[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("message %w", domain.ErrNotFound)
	}
	delete(s.rows, id)
	s.mu.Unlock()
	s.feed.publish(domain.NewMessageEvent(domain.ChangeDelete, &m))
	out := m.Clone()
	return &out, nil
}
