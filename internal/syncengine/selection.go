package syncengine

import (
	"sync"

	"text-sync/internal/domain"
)

// Selection 跟踪当前选中的消息。选中的消息被删除后，
// 改选按创建顺序的第一条，没有消息时为空。
type Selection struct {
	mu       sync.Mutex
	selected string
}

// Selected 返回当前选中的消息 ID
func (s *Selection) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Select 选中 id，id 不在列表中时不做修改并返回 false
func (s *Selection) Select(id string, list []domain.Message) bool {
	if !contains(list, id) {
		return false
	}
	s.mu.Lock()
	s.selected = id
	s.mu.Unlock()
	return true
}

// Reconcile 根据最新的有序列表修正选中项，返回新的选中项和是否发生变化
func (s *Selection) Reconcile(list []domain.Message) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected != "" && contains(list, s.selected) {
		return s.selected, false
	}
	next := ""
	if len(list) > 0 {
		next = list[0].ID
	}
	changed := next != s.selected
	s.selected = next
	return next, changed
}

func contains(list []domain.Message, id string) bool {
	for i := range list {
		if list[i].ID == id {
			return true
		}
	}
	return false
}
