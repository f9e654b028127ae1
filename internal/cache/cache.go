// Package cache 维护活跃房间的内存权威状态。
//
// 绘画热路径只读写这里，绝不碰持久存储；后台写回（service 包）
// 负责把缓存与数据库对账。所有修改都必须走本包的入口方法，
// 脏检查和活跃时间戳才能保持一致。
package cache

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elahist/paint-together/internal/domain"
)

// CachedRoomState 是一个房间驻留内存期间的权威工作副本。
// 工作网格可能领先于最后一次落库的网格，直到写回运行。
type CachedRoomState struct {
	RoomID uint

	mu         sync.RWMutex
	grid       domain.Grid
	available  bool
	lastActive time.Time
	online     map[string]*domain.Presence // connID -> presence
	lastSaved  []byte                      // 最后一次落库网格的序列化快照，用于脏检查

	saving int32 // 写回进行中标志（atomic CAS）
}

func newCachedRoomState(room *domain.Room) *CachedRoomState {
	grid := room.Grid.Clone()
	// 脏基线等于传入的持久网格：刚水合的条目不触发写回
	baseline, _ := json.Marshal(grid)
	return &CachedRoomState{
		RoomID:     room.ID,
		grid:       grid,
		available:  room.IsAvailable,
		lastActive: time.Now(),
		online:     make(map[string]*domain.Presence),
		lastSaved:  baseline,
	}
}

// Grid 返回工作网格的深拷贝。
func (s *CachedRoomState) Grid() domain.Grid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grid.Clone()
}

// Cell 返回一个格子的当前颜色；越界时返回 false。
func (s *CachedRoomState) Cell(x, y int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.grid.InBounds(x, y) {
		return "", false
	}
	return s.grid[x][y], true
}

// IsBlank 判断工作网格是否整体为背景色。
func (s *CachedRoomState) IsBlank(background string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grid.IsBlank(background)
}

// SerializeGrid 返回工作网格的 JSON 序列化，供写回做脏比较和落库。
func (s *CachedRoomState) SerializeGrid() ([]byte, domain.Grid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grid := s.grid.Clone()
	b, err := json.Marshal(grid)
	if err != nil {
		return nil, nil, err
	}
	return b, grid, nil
}

// LastSaved 返回最后落库快照。
func (s *CachedRoomState) LastSaved() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSaved
}

// SetLastSaved 在写回成功后更新落库快照。
func (s *CachedRoomState) SetLastSaved(b []byte) {
	s.mu.Lock()
	s.lastSaved = b
	s.mu.Unlock()
}

// TryBeginSave 尝试占用写回互斥标志；已有写回在途时返回 false。
func (s *CachedRoomState) TryBeginSave() bool {
	return atomic.CompareAndSwapInt32(&s.saving, 0, 1)
}

// EndSave 释放写回互斥标志，所有退出路径（含出错）都必须调用。
func (s *CachedRoomState) EndSave() {
	atomic.StoreInt32(&s.saving, 0)
}

// IsAvailable 返回房间是否仍然开放。
func (s *CachedRoomState) IsAvailable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.available
}

// SetAvailable 修改开放标志；关闭后缓存条目变为只读。
func (s *CachedRoomState) SetAvailable(v bool) {
	s.mu.Lock()
	s.available = v
	s.mu.Unlock()
}

// LastActive 返回最后活跃时间。
func (s *CachedRoomState) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

func (s *CachedRoomState) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// --- 在线 Presence ---

// PutPresence 登记一个在线连接（join 或重连后的新连接）。
func (s *CachedRoomState) PutPresence(p *domain.Presence) {
	s.mu.Lock()
	s.online[p.ConnID] = p
	s.mu.Unlock()
}

// RemovePresence 移除一个连接的 Presence；若确实存在则返回 true。
func (s *CachedRoomState) RemovePresence(connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.online[connID]; !ok {
		return false
	}
	delete(s.online, connID)
	return true
}

// PresenceByConn 返回某连接的 Presence 副本。
func (s *CachedRoomState) PresenceByConn(connID string) (domain.Presence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.online[connID]
	if !ok {
		return domain.Presence{}, false
	}
	return *p, true
}

// PresenceByClientID 按稳定客户端标识线性查找在线 Presence。
// 房间规模小，线性扫描足够（见 DESIGN.md）。
func (s *CachedRoomState) PresenceByClientID(clientID string) (domain.Presence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.online {
		if p.ClientID == clientID {
			return *p, true
		}
	}
	return domain.Presence{}, false
}

// OnlineCount 返回当前在线连接数。
func (s *CachedRoomState) OnlineCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.online)
}

// Presences 返回在线 Presence 的完整副本（含地址，仅进程内使用）。
func (s *CachedRoomState) Presences() []domain.Presence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Presence, 0, len(s.online))
	for _, p := range s.online {
		out = append(out, *p)
	}
	return out
}

// Views 返回按连接号索引的脱敏视图，可直接发给客户端。
func (s *CachedRoomState) Views() map[string]domain.PresenceView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.PresenceView, len(s.online))
	for connID, p := range s.online {
		out[connID] = p.View()
	}
	return out
}

// RoomCache 是按房间号组织的活跃房间注册表。
type RoomCache struct {
	mu    sync.RWMutex
	rooms map[uint]*CachedRoomState
}

// NewRoomCache 创建空的房间缓存。
func NewRoomCache() *RoomCache {
	return &RoomCache{rooms: make(map[uint]*CachedRoomState)}
}

// GetOrCreate 获取已有条目，或根据持久快照水合一个新条目。
// 并发调用同一房间时只会创建一个条目。
func (c *RoomCache) GetOrCreate(room *domain.Room) *CachedRoomState {
	c.mu.RLock()
	if entry, ok := c.rooms[room.ID]; ok {
		c.mu.RUnlock()
		return entry
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	// 双重检查：拿写锁期间可能已被别的 join 创建
	if entry, ok := c.rooms[room.ID]; ok {
		return entry
	}
	entry := newCachedRoomState(room)
	c.rooms[room.ID] = entry
	return entry
}

// Get 查找条目，无副作用。
func (c *RoomCache) Get(roomID uint) (*CachedRoomState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.rooms[roomID]
	return entry, ok
}

// SetPixel 是绘画的唯一修改入口：越界或房间不在缓存时返回 false
// 且不做任何修改，成功时同时刷新最后活跃时间。
func (c *RoomCache) SetPixel(roomID uint, x, y int, color string) bool {
	entry, ok := c.Get(roomID)
	if !ok {
		return false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !entry.grid.InBounds(x, y) {
		return false
	}
	entry.grid[x][y] = color
	entry.lastActive = time.Now()
	return true
}

// Touch 只刷新最后活跃时间，不动网格（join、在线列表变化时用）。
func (c *RoomCache) Touch(roomID uint) {
	if entry, ok := c.Get(roomID); ok {
		entry.touch()
	}
}

// Evict 整体移除条目，仅供维护清扫和显式关闭使用。
func (c *RoomCache) Evict(roomID uint) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

// Entries 返回当前所有条目的快照切片。
// 维护清扫在迭代期间调用 Evict 也是安全的，因为迭代的是副本。
func (c *RoomCache) Entries() []*CachedRoomState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*CachedRoomState, 0, len(c.rooms))
	for _, entry := range c.rooms {
		out = append(out, entry)
	}
	return out
}

// Len 返回缓存里的房间数。
func (c *RoomCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rooms)
}
