package syncengine_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"text-sync/internal/syncengine"
)

func TestDebouncer_CoalescesBurst(t *testing.T) {
	d := syncengine.NewDebouncer(30 * time.Millisecond)
	var calls, last int32
	for i := 1; i <= 5; i++ {
		v := int32(i)
		d.Trigger(func() {
			atomic.AddInt32(&calls, 1)
			atomic.StoreInt32(&last, v)
		})
		time.Sleep(5 * time.Millisecond)
	}
	assert.True(t, d.Pending())
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "一次计时只执行一次")
	assert.Equal(t, int32(5), atomic.LoadInt32(&last), "执行最后一次提交的函数")
	assert.False(t, d.Pending())
}

func TestDebouncer_Cancel(t *testing.T) {
	d := syncengine.NewDebouncer(20 * time.Millisecond)
	var calls int32
	d.Trigger(func() { atomic.AddInt32(&calls, 1) })
	assert.True(t, d.Cancel())
	assert.False(t, d.Cancel(), "没有挂起任务时返回 false")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestDebouncer_Flush(t *testing.T) {
	d := syncengine.NewDebouncer(time.Hour)
	var calls int32
	d.Trigger(func() { atomic.AddInt32(&calls, 1) })
	assert.True(t, d.Flush())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.False(t, d.Flush())
	assert.False(t, d.Pending())
}

func TestDebouncer_DefaultDelay(t *testing.T) {
	assert.Equal(t, syncengine.DefaultDebounceDelay, syncengine.NewDebouncer(0).Delay())
}
