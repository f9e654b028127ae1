package hub // 内部测试：allowDraw 未导出

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// --- 测试 allowDraw 限流 ---

func TestClient_AllowDraw_SequentialThrottle(t *testing.T) {
	// Arrange
	c := &Client{}

	// Act & Assert: 第一次放行，窗口内第二次拒绝，窗口过后再放行
	assert.True(t, c.allowDraw(20*time.Millisecond))
	assert.False(t, c.allowDraw(20*time.Millisecond), "窗口内的第二次绘制应被限流")
	time.Sleep(30 * time.Millisecond)
	assert.True(t, c.allowDraw(20*time.Millisecond), "窗口过后应再次放行")
}

func TestClient_AllowDraw_SingleWinnerUnderConcurrency(t *testing.T) {
	// Arrange: 同一连接上的并发绘制同时冲击限流窗口
	c := &Client{}
	const goroutines = 32
	var allowed int64
	var wg sync.WaitGroup
	wg.Add(goroutines)

	// Act
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			if c.allowDraw(time.Hour) {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	// Assert: 窗口内只能有一个赢家
	assert.Equal(t, int64(1), allowed, "并发绘制在同一窗口内只应放行一次")
}
