package mocks

import (
	"sync"

	"text-sync/internal/domain"
)

// Subscription 是由测试手动推送事件的订阅
type Subscription struct {
	ch   chan domain.ChangeEvent
	once sync.Once

	mu     sync.Mutex
	closed bool
}

// NewSubscription 创建带缓冲的订阅
func NewSubscription() *Subscription {
	return &Subscription{ch: make(chan domain.ChangeEvent, 64)}
}

func (s *Subscription) Events() <-chan domain.ChangeEvent { return s.ch }

// Push 投递一条事件，订阅关闭后直接丢弃
func (s *Subscription) Push(event domain.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- event
}

func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
	return nil
}

// Closed 报告 Close 是否已被调用
func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
