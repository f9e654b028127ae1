package service

import (
	"bytes"
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/elahist/paint-together/internal/cache"
	"github.com/elahist/paint-together/internal/repository"
)

// 等待在途写回释放时的轮询间隔
const flushRetryInterval = 5 * time.Millisecond

// WritebackService 负责把缓存条目与持久存储对账。
// join、disconnect、显式关闭和维护清扫都会调用它，
// 对同一房间的并发调用通过条目上的在途标志互斥。
type WritebackService struct {
	roomRepo repository.RoomRepository
}

// NewWritebackService 创建 WritebackService 实例。
func NewWritebackService(roomRepo repository.RoomRepository) *WritebackService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for WritebackService")
	}
	return &WritebackService{roomRepo: roomRepo}
}

// Save 把条目的工作网格写回持久记录。
//
// 返回 false 的两种情况都不是错误：该房间已有写回在途（互斥），
// 或者序列化后的网格与上次落库快照一致（脏检查）。
// 存储层失败时释放互斥标志、保留脏快照，下一次自然触发时重试同一增量。
func (s *WritebackService) Save(ctx context.Context, entry *cache.CachedRoomState) (bool, error) {
	if entry == nil {
		return false, nil
	}
	if !entry.TryBeginSave() {
		logrus.WithField("room_id", entry.RoomID).Debug("Writeback already in flight, skipping")
		return false, nil
	}
	defer entry.EndSave()

	return s.persist(ctx, entry)
}

// Flush 和 Save 的区别在于它保证返回时工作网格已经落库（或明确报错）。
// 有写回在途时等待其结束再接手：在途写回只覆盖它开始时的快照，
// 之后画的像素必须由本次调用兜底，关闭路径不允许静默让路。
func (s *WritebackService) Flush(ctx context.Context, entry *cache.CachedRoomState) error {
	if entry == nil {
		return nil
	}
	logCtx := logrus.WithField("room_id", entry.RoomID)

	for !entry.TryBeginSave() {
		logCtx.Debug("Flush waiting for in-flight writeback to drain")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(flushRetryInterval):
		}
	}
	defer entry.EndSave()

	// 在途写回可能已经落了同一份网格，persist 的脏检查会识别并跳过
	_, err := s.persist(ctx, entry)
	return err
}

// persist 是写回的核心：脏检查加落库。调用方必须已持有在途标志。
func (s *WritebackService) persist(ctx context.Context, entry *cache.CachedRoomState) (bool, error) {
	logCtx := logrus.WithField("room_id", entry.RoomID)

	serialized, grid, err := entry.SerializeGrid()
	if err != nil {
		logCtx.WithError(err).Error("Failed to serialize grid for writeback")
		return false, err
	}
	if bytes.Equal(serialized, entry.LastSaved()) {
		// 网格没变，跳过冗余写
		return false, nil
	}

	if err := s.roomRepo.UpdateGrid(ctx, entry.RoomID, grid, entry.LastActive()); err != nil {
		// 脏快照保持不变，后续调用会重试同一增量
		logCtx.WithError(err).Error("Failed to persist room grid")
		return false, ErrStorageUnavailable
	}

	entry.SetLastSaved(serialized)
	logCtx.Info("Room grid persisted")
	return true, nil
}
