package service

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/elahist/paint-together/internal/cache"
	"github.com/elahist/paint-together/internal/dto"
	"github.com/elahist/paint-together/internal/repository"
)

// MaintenanceService 周期性地老化不活跃的房间：
// 空白且不活跃的删除，非空白且不活跃的关闭，其余的周期性落库。
type MaintenanceService struct {
	roomRepo    repository.RoomRepository
	cache       *cache.RoomCache
	writeback   *WritebackService
	broadcaster Broadcaster
	background  string // 空白判定用的背景色
	threshold   time.Duration

	running int32 // 清扫重入保护
}

// NewMaintenanceService 创建 MaintenanceService 实例。
func NewMaintenanceService(
	roomRepo repository.RoomRepository,
	roomCache *cache.RoomCache,
	writeback *WritebackService,
	broadcaster Broadcaster,
	background string,
	threshold time.Duration,
) *MaintenanceService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for MaintenanceService")
	}
	if roomCache == nil {
		panic("RoomCache cannot be nil for MaintenanceService")
	}
	if writeback == nil {
		panic("WritebackService cannot be nil for MaintenanceService")
	}
	if broadcaster == nil {
		panic("Broadcaster cannot be nil for MaintenanceService")
	}
	if threshold <= 0 {
		panic("inactivity threshold must be positive for MaintenanceService")
	}
	return &MaintenanceService{
		roomRepo:    roomRepo,
		cache:       roomCache,
		writeback:   writeback,
		broadcaster: broadcaster,
		background:  background,
		threshold:   threshold,
	}
}

// Sweep 访问缓存里的每个条目一次。
// 发现上一轮清扫还在运行时直接退出（不是错误，不排队）。
// 单个房间的存储错误只记录日志，循环继续处理下一个房间。
func (m *MaintenanceService) Sweep(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		logrus.Debug("Maintenance sweep already running, skipping this tick")
		return
	}
	defer atomic.StoreInt32(&m.running, 0)

	now := time.Now()
	for _, entry := range m.cache.Entries() {
		logCtx := logrus.WithField("room_id", entry.RoomID)

		inactive := now.Sub(entry.LastActive()) > m.threshold && entry.OnlineCount() == 0

		// 活跃房间：周期性落库后继续
		if !inactive {
			if _, err := m.writeback.Save(ctx, entry); err != nil {
				logCtx.WithError(err).Error("Maintenance: periodic writeback failed")
			}
			continue
		}

		if entry.IsBlank(m.background) {
			// 不活跃且空白：连持久记录一起删掉，避免空房间堆积
			if err := m.roomRepo.Delete(ctx, entry.RoomID); err != nil {
				logCtx.WithError(err).Error("Maintenance: failed to delete blank room")
				continue
			}
			m.cache.Evict(entry.RoomID)
			logCtx.Info("Maintenance: deleted inactive blank room")
			continue
		}

		// 不活跃且非空白：保留用户作品，落库后关闭。
		// 关闭前的落库和显式关闭一样要等在途写回让位，不允许静默跳过
		if err := m.writeback.Flush(ctx, entry); err != nil {
			logCtx.WithError(err).Error("Maintenance: writeback before close failed")
			continue
		}
		if err := m.roomRepo.MarkUnavailable(ctx, entry.RoomID); err != nil {
			logCtx.WithError(err).Error("Maintenance: failed to mark room unavailable")
			continue
		}
		entry.SetAvailable(false)
		if b, err := json.Marshal(dto.RoomClosedDTO{Type: "roomClosed"}); err == nil {
			// 按定义此时没有在线连接，广播给零个听众
			m.broadcaster.Broadcast(entry.RoomID, "", b)
		}
		m.cache.Evict(entry.RoomID)
		logCtx.Info("Maintenance: closed inactive room")
	}
}
