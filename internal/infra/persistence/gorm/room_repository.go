package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/elahist/paint-together/internal/domain"
	"github.com/elahist/paint-together/internal/repository"
)

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// FindByID 实现根据房间号查找房间
func (r *GormRoomRepository) FindByID(ctx context.Context, id uint) (*domain.Room, error) {
	var roomData domain.Room
	err := r.db.WithContext(ctx).First(&roomData, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by id %d: %w", id, err)
	}
	return &roomData, nil
}

// Create 实现创建房间记录；房间号撞上唯一约束时映射为 ErrDuplicateEntry
func (r *GormRoomRepository) Create(ctx context.Context, roomData *domain.Room) error {
	err := r.db.WithContext(ctx).Create(roomData).Error
	if err != nil {
		// 健壮的唯一约束检查 (MySQL 1062)
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create room %d: %w", roomData.ID, err)
	}
	return nil
}

// UpdateGrid 实现把工作网格和最后活跃时间写回持久记录
func (r *GormRoomRepository) UpdateGrid(ctx context.Context, id uint, grid domain.Grid, updatedAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&domain.Room{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"grid":       grid,
			"updated_at": updatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("gorm: update grid for room %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrRoomNotFound
	}
	return nil
}

// MarkUnavailable 实现把房间标记为已关闭
func (r *GormRoomRepository) MarkUnavailable(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Model(&domain.Room{}).Where("id = ?", id).
		Update("is_available", false)
	if result.Error != nil {
		return fmt.Errorf("gorm: mark room %d unavailable: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrRoomNotFound
	}
	return nil
}

// Delete 实现删除房间记录
func (r *GormRoomRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&domain.Room{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("gorm: delete room %d: %w", id, result.Error)
	}
	return nil
}

// AppendParticipant 实现把访客地址追加到审计列表。
// 用事务做读-改-写，避免并发 join 互相覆盖；重复地址直接跳过。
func (r *GormRoomRepository) AppendParticipant(ctx context.Context, id uint, addr string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var roomData domain.Room
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&roomData, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repository.ErrRoomNotFound
			}
			return err
		}
		if roomData.Participants.Contains(addr) {
			return nil
		}
		participants := append(roomData.Participants, addr)
		return tx.Model(&domain.Room{}).Where("id = ?", id).
			Update("participants", participants).Error
	})
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return err
		}
		return fmt.Errorf("gorm: append participant to room %d: %w", id, err)
	}
	return nil
}
