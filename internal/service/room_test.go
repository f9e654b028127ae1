package service_test // 测试包

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/elahist/paint-together/internal/domain"
	"github.com/elahist/paint-together/internal/repository"
	"github.com/elahist/paint-together/internal/repository/mocks"
	"github.com/elahist/paint-together/internal/service"
)

// 测试用的小调色板，white 即背景色
func testPalette() domain.Palette {
	return domain.NewPalette([]string{"red", "green", "blue"}, "white")
}

// --- 测试 CreateRoom 方法 ---

func TestRoomService_CreateRoom_Success(t *testing.T) {
	// Arrange
	mockRoomRepo := new(mocks.RoomRepository)
	roomService := service.NewRoomService(mockRoomRepo, 3, 3, testPalette())
	ctx := context.Background()

	// 设置 Mock 预期: Create 被调用一次并成功
	mockRoomRepo.On("Create", ctx, mock.MatchedBy(func(room *domain.Room) bool {
		// 房间号必须落在 4 位数字区间
		assert.GreaterOrEqual(t, room.ID, uint(1000))
		assert.LessOrEqual(t, room.ID, uint(9999))
		// 网格必须是指定尺寸的纯背景色
		assert.Len(t, room.Grid, 3)
		assert.True(t, room.Grid.IsBlank("white"), "新房间网格应为空白")
		assert.True(t, room.IsAvailable)
		assert.NotEmpty(t, room.CreatorTokenHash, "落库的应是令牌哈希")
		return true
	})).Return(nil).Once()

	// Act
	room, token, err := roomService.CreateRoom(ctx, "203.0.113.7")

	// Assert
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Len(t, token, 32, "明文令牌应为 32 个十六进制字符")
	assert.NotEqual(t, token, room.CreatorTokenHash, "明文令牌绝不落库")
	assert.True(t, service.VerifyCreatorToken(room, token), "明文令牌应能通过哈希校验")
	assert.Equal(t, "203.0.113.7", room.CreatorAddr)
	assert.Empty(t, room.Participants, "创建者加入前审计列表应为空")

	// Verify
	mockRoomRepo.AssertExpectations(t)
}

func TestRoomService_CreateRoom_RetriesOnIDCollision(t *testing.T) {
	// Arrange
	mockRoomRepo := new(mocks.RoomRepository)
	roomService := service.NewRoomService(mockRoomRepo, 3, 3, testPalette())
	ctx := context.Background()

	// 设置 Mock 预期: 前两次撞号，第三次成功
	mockRoomRepo.On("Create", ctx, mock.AnythingOfType("*domain.Room")).
		Return(repository.ErrDuplicateEntry).Twice()
	mockRoomRepo.On("Create", ctx, mock.AnythingOfType("*domain.Room")).
		Return(nil).Once()

	// Act
	room, token, err := roomService.CreateRoom(ctx, "203.0.113.7")

	// Assert
	require.NoError(t, err, "撞号应重试而不是失败")
	assert.NotNil(t, room)
	assert.NotEmpty(t, token)

	// Verify
	mockRoomRepo.AssertExpectations(t)
	mockRoomRepo.AssertNumberOfCalls(t, "Create", 3)
}

func TestRoomService_CreateRoom_StorageFailure(t *testing.T) {
	// Arrange
	mockRoomRepo := new(mocks.RoomRepository)
	roomService := service.NewRoomService(mockRoomRepo, 3, 3, testPalette())
	ctx := context.Background()

	// 设置 Mock 预期: 非撞号类的存储错误不重试
	mockRoomRepo.On("Create", ctx, mock.AnythingOfType("*domain.Room")).
		Return(errors.New("connection refused")).Once()

	// Act
	room, token, err := roomService.CreateRoom(ctx, "203.0.113.7")

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrStorageUnavailable))
	assert.Nil(t, room)
	assert.Empty(t, token)

	// Verify
	mockRoomRepo.AssertExpectations(t)
	mockRoomRepo.AssertNumberOfCalls(t, "Create", 1)
}

// --- 测试 VerifyCreatorToken ---

func TestVerifyCreatorToken(t *testing.T) {
	// Arrange: 用真实的创建流程拿到一对令牌/哈希
	mockRoomRepo := new(mocks.RoomRepository)
	roomService := service.NewRoomService(mockRoomRepo, 3, 3, testPalette())
	mockRoomRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Room")).Return(nil).Once()
	room, token, err := roomService.CreateRoom(context.Background(), "203.0.113.7")
	require.NoError(t, err)

	// Act & Assert
	assert.True(t, service.VerifyCreatorToken(room, token))
	assert.False(t, service.VerifyCreatorToken(room, "wrong-token"))
	assert.False(t, service.VerifyCreatorToken(room, ""), "空令牌永远不通过")
}
