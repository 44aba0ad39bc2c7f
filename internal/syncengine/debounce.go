package syncengine

import (
	"sync"
	"time"
)

// DefaultDebounceDelay 默认静默期
const DefaultDebounceDelay = 500 * time.Millisecond

// Debouncer 是可取消的延迟任务：每次 Trigger 重新计时，
// 只有静默期内没有新的 Trigger 时才执行最后一次提交的函数，且只执行一次。
type Debouncer struct {
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
	fn    func()
}

// NewDebouncer 创建 Debouncer，delay <= 0 时使用默认值
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}
	return &Debouncer{delay: delay}
}

// Delay 返回静默期
func (d *Debouncer) Delay() time.Duration { return d.delay }

// Trigger 设置或重置计时器，fn 替换之前挂起的函数
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	gen := d.gen
	d.fn = fn
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.fn == nil {
		d.mu.Unlock()
		return
	}
	fn := d.fn
	d.fn = nil
	d.timer = nil
	d.mu.Unlock()
	fn()
}

// Cancel 取消挂起的任务，不执行。返回是否确实取消了任务。
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disarmLocked() != nil
}

// Flush 立即在当前协程执行挂起的任务。没有挂起任务时返回 false。
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	fn := d.disarmLocked()
	d.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// Pending 报告是否有挂起的任务
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fn != nil
}

func (d *Debouncer) disarmLocked() func() {
	d.gen++
	fn := d.fn
	d.fn = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	return fn
}
