package service_test // 测试包

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/elahist/paint-together/internal/cache"
	"github.com/elahist/paint-together/internal/domain"
	"github.com/elahist/paint-together/internal/repository/mocks"
	"github.com/elahist/paint-together/internal/service"
)

// newDirtyEntry 水合一个条目并画上一个像素使其变脏
func newDirtyEntry(t *testing.T, roomID uint) (*cache.RoomCache, *cache.CachedRoomState) {
	t.Helper()
	c := cache.NewRoomCache()
	entry := c.GetOrCreate(&domain.Room{
		ID:          roomID,
		GridWidth:   3,
		GridHeight:  3,
		Grid:        domain.NewBlankGrid(3, 3, "white"),
		IsAvailable: true,
	})
	require.True(t, c.SetPixel(roomID, 1, 1, "red"))
	return c, entry
}

// --- 测试 Save 方法 ---

func TestWritebackService_Save_SkipsCleanEntry(t *testing.T) {
	// Arrange: 刚水合、没有任何绘制的条目
	mockRoomRepo := new(mocks.RoomRepository)
	writeback := service.NewWritebackService(mockRoomRepo)
	c := cache.NewRoomCache()
	entry := c.GetOrCreate(&domain.Room{
		ID:   1234,
		Grid: domain.NewBlankGrid(3, 3, "white"),
	})

	// Act
	saved, err := writeback.Save(context.Background(), entry)

	// Assert: 脏检查应拦下冗余写
	assert.NoError(t, err)
	assert.False(t, saved, "未修改的网格不应写库")
	mockRoomRepo.AssertNotCalled(t, "UpdateGrid", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWritebackService_Save_PersistsDirtyThenSkips(t *testing.T) {
	// Arrange
	mockRoomRepo := new(mocks.RoomRepository)
	writeback := service.NewWritebackService(mockRoomRepo)
	_, entry := newDirtyEntry(t, 1234)
	ctx := context.Background()

	// 设置 Mock 预期: 第一次 Save 落库脏网格
	mockRoomRepo.On("UpdateGrid", ctx, uint(1234),
		mock.MatchedBy(func(grid domain.Grid) bool { return grid[1][1] == "red" }),
		mock.AnythingOfType("time.Time"),
	).Return(nil).Once()

	// Act: 连续保存两次
	savedFirst, errFirst := writeback.Save(ctx, entry)
	savedSecond, errSecond := writeback.Save(ctx, entry)

	// Assert: 第一次写库，第二次脏检查跳过
	assert.NoError(t, errFirst)
	assert.True(t, savedFirst)
	assert.NoError(t, errSecond)
	assert.False(t, savedSecond, "无新增绘制时第二次 Save 应为空操作")

	// Verify: UpdateGrid 总共只被调用一次
	mockRoomRepo.AssertExpectations(t)
	mockRoomRepo.AssertNumberOfCalls(t, "UpdateGrid", 1)
}

func TestWritebackService_Save_RetainsDirtySnapshotOnFailure(t *testing.T) {
	// Arrange
	mockRoomRepo := new(mocks.RoomRepository)
	writeback := service.NewWritebackService(mockRoomRepo)
	_, entry := newDirtyEntry(t, 1234)
	ctx := context.Background()

	// 设置 Mock 预期: 第一次写库失败，第二次成功
	mockRoomRepo.On("UpdateGrid", ctx, uint(1234), mock.AnythingOfType("domain.Grid"), mock.AnythingOfType("time.Time")).
		Return(errors.New("connection refused")).Once()
	mockRoomRepo.On("UpdateGrid", ctx, uint(1234), mock.AnythingOfType("domain.Grid"), mock.AnythingOfType("time.Time")).
		Return(nil).Once()

	// Act: 第一次失败
	saved, err := writeback.Save(ctx, entry)
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrStorageUnavailable))
	assert.False(t, saved)

	// Act: 下一次自然触发时重试同一增量
	saved, err = writeback.Save(ctx, entry)

	// Assert: 失败没有污染脏快照，重试成功落库
	assert.NoError(t, err)
	assert.True(t, saved, "失败后的重试应仍然认为条目是脏的")
	mockRoomRepo.AssertExpectations(t)
}

func TestWritebackService_Save_SkipsWhenSaveInFlight(t *testing.T) {
	// Arrange: 手动占用写回标志模拟在途写回
	mockRoomRepo := new(mocks.RoomRepository)
	writeback := service.NewWritebackService(mockRoomRepo)
	_, entry := newDirtyEntry(t, 1234)
	require.True(t, entry.TryBeginSave())
	defer entry.EndSave()

	// Act
	saved, err := writeback.Save(context.Background(), entry)

	// Assert: 互斥让路，不碰存储层
	assert.NoError(t, err)
	assert.False(t, saved)
	mockRoomRepo.AssertNotCalled(t, "UpdateGrid", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// --- 测试 Flush 方法 ---

func TestWritebackService_Flush_WaitsForInFlightSave(t *testing.T) {
	// Arrange: 在途标志被占住，脏网格等待落库
	mockRoomRepo := new(mocks.RoomRepository)
	writeback := service.NewWritebackService(mockRoomRepo)
	_, entry := newDirtyEntry(t, 1234)
	ctx := context.Background()
	require.True(t, entry.TryBeginSave())

	mockRoomRepo.On("UpdateGrid", ctx, uint(1234),
		mock.MatchedBy(func(grid domain.Grid) bool { return grid[1][1] == "red" }),
		mock.AnythingOfType("time.Time"),
	).Return(nil).Once()

	// Act: Flush 在后台等待
	done := make(chan error, 1)
	go func() { done <- writeback.Flush(ctx, entry) }()

	// 标志未释放前 Flush 不得返回，也不得绕过互斥去写库
	select {
	case err := <-done:
		t.Fatalf("Flush 不应在写回在途时返回: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	entry.EndSave()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("在途写回释放后 Flush 未能完成")
	}

	// Assert: 接手后把脏增量落了库
	mockRoomRepo.AssertExpectations(t)
}

func TestWritebackService_Flush_CleanEntryNoWrite(t *testing.T) {
	// Arrange: 干净条目
	mockRoomRepo := new(mocks.RoomRepository)
	writeback := service.NewWritebackService(mockRoomRepo)
	c := cache.NewRoomCache()
	entry := c.GetOrCreate(&domain.Room{
		ID:   1234,
		Grid: domain.NewBlankGrid(3, 3, "white"),
	})

	// Act & Assert: 保证落库不等于强制写库，脏检查仍然生效
	assert.NoError(t, writeback.Flush(context.Background(), entry))
	mockRoomRepo.AssertNotCalled(t, "UpdateGrid", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWritebackService_Flush_ContextCanceledWhileWaiting(t *testing.T) {
	// Arrange: 在途标志一直不释放，调用方的 context 被取消
	mockRoomRepo := new(mocks.RoomRepository)
	writeback := service.NewWritebackService(mockRoomRepo)
	_, entry := newDirtyEntry(t, 1234)
	require.True(t, entry.TryBeginSave())
	defer entry.EndSave()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	// Act
	err := writeback.Flush(ctx, entry)

	// Assert: 带着 context 错误返回，而不是无限等待
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	mockRoomRepo.AssertNotCalled(t, "UpdateGrid", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWritebackService_Save_NilEntry(t *testing.T) {
	// Arrange
	writeback := service.NewWritebackService(new(mocks.RoomRepository))

	// Act & Assert: nil 条目是无害的空操作
	saved, err := writeback.Save(context.Background(), nil)
	assert.NoError(t, err)
	assert.False(t, saved)
}
