package repository

import (
	"context"
	"time"

	"github.com/elahist/paint-together/internal/domain"
)

// RoomRepository 定义了房间文档的存储和检索操作。
// 实现方负责把底层驱动错误映射为本包定义的哨兵错误。
type RoomRepository interface {
	// FindByID 根据房间号查找房间；不存在时返回 ErrRoomNotFound。
	FindByID(ctx context.Context, id uint) (*domain.Room, error)

	// Create 创建一张新房间记录（空白网格）。
	// 房间号冲突时返回 ErrDuplicateEntry，调用方负责重试。
	Create(ctx context.Context, room *domain.Room) error

	// UpdateGrid 把工作网格和最后活跃时间写回持久记录。
	UpdateGrid(ctx context.Context, id uint, grid domain.Grid, updatedAt time.Time) error

	// MarkUnavailable 把房间标记为已关闭（只读）。
	MarkUnavailable(ctx context.Context, id uint) error

	// Delete 彻底删除房间记录，仅供维护清扫删除空白房间使用。
	Delete(ctx context.Context, id uint) error

	// AppendParticipant 把访客地址追加到审计列表（按地址去重）。
	AppendParticipant(ctx context.Context, id uint, addr string) error
}
