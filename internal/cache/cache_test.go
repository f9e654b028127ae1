package cache_test // 测试包

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elahist/paint-together/internal/cache"
	"github.com/elahist/paint-together/internal/domain"
)

const testBackground = "white"

// newTestRoom 构造一个用于缓存测试的持久房间快照
func newTestRoom(id uint) *domain.Room {
	return &domain.Room{
		ID:          id,
		GridWidth:   3,
		GridHeight:  3,
		Grid:        domain.NewBlankGrid(3, 3, testBackground),
		IsAvailable: true,
	}
}

// --- 测试 GetOrCreate ---

func TestRoomCache_GetOrCreate_ReturnsSameEntry(t *testing.T) {
	// Arrange
	c := cache.NewRoomCache()
	room := newTestRoom(1234)

	// Act
	first := c.GetOrCreate(room)
	second := c.GetOrCreate(room)

	// Assert: 同一房间号必须拿到同一个条目
	require.NotNil(t, first)
	assert.Same(t, first, second, "重复 GetOrCreate 应返回同一条目")
	assert.Equal(t, 1, c.Len())
}

func TestRoomCache_GetOrCreate_ConcurrentSingleEntry(t *testing.T) {
	// Arrange
	c := cache.NewRoomCache()
	room := newTestRoom(4321)

	// Act: 模拟多个连接同时加入同一房间
	const goroutines = 50
	entries := make([]*cache.CachedRoomState, goroutines)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(idx int) {
			defer wg.Done()
			entries[idx] = c.GetOrCreate(room)
		}(i)
	}
	wg.Wait()

	// Assert: 并发水合只能产生一个条目
	assert.Equal(t, 1, c.Len(), "并发 GetOrCreate 只应创建一个条目")
	for i := 1; i < goroutines; i++ {
		assert.Same(t, entries[0], entries[i])
	}
}

func TestRoomCache_GetOrCreate_HydratesFromSnapshot(t *testing.T) {
	// Arrange: 持久快照里已有一个画好的像素
	room := newTestRoom(1111)
	room.Grid[1][2] = "red"
	c := cache.NewRoomCache()

	// Act
	entry := c.GetOrCreate(room)

	// Assert: 工作网格来自快照的深拷贝
	color, ok := entry.Cell(1, 2)
	require.True(t, ok)
	assert.Equal(t, "red", color)

	// 修改原始快照不应影响缓存条目
	room.Grid[1][2] = "blue"
	color, _ = entry.Cell(1, 2)
	assert.Equal(t, "red", color, "条目应持有网格的深拷贝")
}

// --- 测试 SetPixel ---

func TestRoomCache_SetPixel_Success(t *testing.T) {
	// Arrange
	c := cache.NewRoomCache()
	entry := c.GetOrCreate(newTestRoom(2222))
	before := entry.LastActive()

	// Act
	ok := c.SetPixel(2222, 0, 1, "green")

	// Assert
	assert.True(t, ok)
	color, _ := entry.Cell(0, 1)
	assert.Equal(t, "green", color)
	assert.False(t, entry.LastActive().Before(before), "成功绘制应刷新最后活跃时间")
}

func TestRoomCache_SetPixel_OutOfBounds(t *testing.T) {
	// Arrange
	c := cache.NewRoomCache()
	entry := c.GetOrCreate(newTestRoom(3333))

	// Act & Assert: 越界坐标全部拒绝且网格不变
	assert.False(t, c.SetPixel(3333, -1, 0, "red"))
	assert.False(t, c.SetPixel(3333, 0, -1, "red"))
	assert.False(t, c.SetPixel(3333, 3, 0, "red"))
	assert.False(t, c.SetPixel(3333, 0, 3, "red"))
	assert.True(t, entry.IsBlank(testBackground), "越界绘制不应修改任何格子")
}

func TestRoomCache_SetPixel_UnknownRoom(t *testing.T) {
	// Arrange
	c := cache.NewRoomCache()

	// Act & Assert: 不在缓存的房间直接返回 false
	assert.False(t, c.SetPixel(9999, 0, 0, "red"))
}

// --- 测试 Grid 快照语义 ---

func TestCachedRoomState_Grid_ReturnsDeepCopy(t *testing.T) {
	// Arrange
	c := cache.NewRoomCache()
	c.GetOrCreate(newTestRoom(5555))
	require.True(t, c.SetPixel(5555, 1, 1, "red"))
	entry, _ := c.Get(5555)

	// Act: 篡改返回的快照
	snapshot := entry.Grid()
	snapshot[1][1] = "hacked"

	// Assert: 权威网格不受影响
	color, _ := entry.Cell(1, 1)
	assert.Equal(t, "red", color, "Grid() 返回的必须是深拷贝")
}

// --- 测试 Presence 登记 ---

func TestCachedRoomState_Presence_PutRemoveCount(t *testing.T) {
	// Arrange
	c := cache.NewRoomCache()
	entry := c.GetOrCreate(newTestRoom(6666))

	// Act
	entry.PutPresence(&domain.Presence{ConnID: "conn-a", ClientID: "client-a", Nickname: "Otter"})
	entry.PutPresence(&domain.Presence{ConnID: "conn-b", ClientID: "client-b", Nickname: "Lynx"})

	// Assert
	assert.Equal(t, 2, entry.OnlineCount())

	p, ok := entry.PresenceByClientID("client-b")
	require.True(t, ok)
	assert.Equal(t, "conn-b", p.ConnID)

	assert.True(t, entry.RemovePresence("conn-a"))
	assert.False(t, entry.RemovePresence("conn-a"), "重复移除同一连接应返回 false")
	assert.Equal(t, 1, entry.OnlineCount())
}

func TestCachedRoomState_Views_NeverLeakAddress(t *testing.T) {
	// Arrange
	c := cache.NewRoomCache()
	entry := c.GetOrCreate(newTestRoom(7777))
	entry.PutPresence(&domain.Presence{
		ConnID:   "conn-a",
		ClientID: "client-a",
		Addr:     "203.0.113.7",
		Nickname: "Otter",
		Color:    "#AEC6CF",
	})

	// Act
	views := entry.Views()

	// Assert: 视图只含脱敏字段
	require.Len(t, views, 1)
	v := views["conn-a"]
	assert.Equal(t, "Otter", v.Nickname)
	assert.Equal(t, "#AEC6CF", v.Color)
	assert.Equal(t, "client-a", v.ClientID)
}

// --- 测试 Evict 和 Entries ---

func TestRoomCache_Evict(t *testing.T) {
	// Arrange
	c := cache.NewRoomCache()
	c.GetOrCreate(newTestRoom(1000))
	c.GetOrCreate(newTestRoom(2000))

	// Act
	c.Evict(1000)

	// Assert
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get(1000)
	assert.False(t, ok)
	_, ok = c.Get(2000)
	assert.True(t, ok)
}

func TestRoomCache_Entries_SafeEvictionDuringIteration(t *testing.T) {
	// Arrange: 模拟维护清扫在迭代中撤掉条目
	c := cache.NewRoomCache()
	for id := uint(1000); id < 1010; id++ {
		c.GetOrCreate(newTestRoom(id))
	}

	// Act: 迭代快照期间逐个 Evict
	visited := 0
	for _, entry := range c.Entries() {
		c.Evict(entry.RoomID)
		visited++
	}

	// Assert: 快照迭代不受中途移除影响
	assert.Equal(t, 10, visited)
	assert.Equal(t, 0, c.Len())
}

// --- 测试写回互斥标志 ---

func TestCachedRoomState_TryBeginSave_MutualExclusion(t *testing.T) {
	// Arrange
	c := cache.NewRoomCache()
	entry := c.GetOrCreate(newTestRoom(8888))

	// Act & Assert: 同一时间只能有一个写回在途
	assert.True(t, entry.TryBeginSave())
	assert.False(t, entry.TryBeginSave(), "写回在途时不应允许第二个写回")
	entry.EndSave()
	assert.True(t, entry.TryBeginSave(), "释放后应可再次占用")
	entry.EndSave()
}
