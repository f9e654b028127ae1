package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/elahist/paint-together/internal/cache"
	"github.com/elahist/paint-together/internal/domain"
	"github.com/elahist/paint-together/internal/dto"
	"github.com/elahist/paint-together/internal/repository"
)

// Sender 是向单个连接下发消息的句柄，由 hub.Client 实现。
type Sender interface {
	ConnID() string
	RemoteAddr() string
	Send(message []byte) bool
}

// Broadcaster 把消息扇出给一个房间的所有订阅连接（可排除一个发送者），
// 由 hub.Hub 实现。发送是 fire-and-forget 的。
type Broadcaster interface {
	Broadcast(roomID uint, excludeConnID string, message []byte)
}

// SyncService 实现 join/draw/disconnect/close 协议处理器。
// 它读写房间缓存，并调用 Presence 分配器与写回服务。
type SyncService struct {
	roomRepo    repository.RoomRepository
	cache       *cache.RoomCache
	assignor    *PresenceAssignor
	writeback   *WritebackService
	broadcaster Broadcaster
	palette     domain.Palette
}

// NewSyncService 创建 SyncService 实例。
func NewSyncService(
	roomRepo repository.RoomRepository,
	roomCache *cache.RoomCache,
	assignor *PresenceAssignor,
	writeback *WritebackService,
	broadcaster Broadcaster,
	palette domain.Palette,
) *SyncService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for SyncService")
	}
	if roomCache == nil {
		panic("RoomCache cannot be nil for SyncService")
	}
	if assignor == nil {
		panic("PresenceAssignor cannot be nil for SyncService")
	}
	if writeback == nil {
		panic("WritebackService cannot be nil for SyncService")
	}
	if broadcaster == nil {
		panic("Broadcaster cannot be nil for SyncService")
	}
	return &SyncService{
		roomRepo:    roomRepo,
		cache:       roomCache,
		assignor:    assignor,
		writeback:   writeback,
		broadcaster: broadcaster,
		palette:     palette,
	}
}

// Join 处理一个连接加入房间。
// 开放房间：登记审计列表、分配 Presence、推送在线列表；
// 已关闭房间：改为下发去重后的历史用户视图。
// 两种情况都会给加入者发 init，并触发一次立即写回。
func (s *SyncService) Join(ctx context.Context, conn Sender, roomID uint, creatorToken, clientID string) error {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"conn_id": conn.ConnID(),
	})

	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			logCtx.Warn("Join: room not found")
			return ErrRoomNotFound
		}
		logCtx.WithError(err).Error("Join: repository error")
		return ErrStorageUnavailable
	}

	closed := !room.IsAvailable

	// 仅开放房间登记访客地址；关闭的房间审计列表不再增长
	if !closed && !room.Participants.Contains(conn.RemoteAddr()) {
		if err := s.roomRepo.AppendParticipant(ctx, roomID, conn.RemoteAddr()); err != nil {
			// 审计登记失败不阻断加入
			logCtx.WithError(err).Error("Join: failed to append participant")
		}
	}

	entry := s.cache.GetOrCreate(room)
	s.cache.Touch(roomID)

	var users map[string]domain.PresenceView
	if !closed {
		p := s.assignor.Assign(entry, conn.ConnID(), clientID, conn.RemoteAddr())
		logCtx.WithField("nickname", p.Nickname).Info("Join: presence assigned")
		users = entry.Views()
		s.broadcastUsers(roomID, users)
	} else {
		users = s.assignor.HistoricalViews(room.Participants)
	}

	init := dto.InitDTO{
		Type:         "init",
		RoomID:       roomID,
		Grid:         entry.Grid(), // 缓存是活网格的权威来源
		GridWidth:    room.GridWidth,
		GridHeight:   room.GridHeight,
		CanvasWidth:  room.CanvasWidth,
		CanvasHeight: room.CanvasHeight,
		IsOwner:      VerifyCreatorToken(room, creatorToken),
		IsAvailable:  entry.IsAvailable(),
		Users:        users,
	}
	b, err := json.Marshal(init)
	if err != nil {
		logCtx.WithError(err).Error("Join: failed to marshal init payload")
		return ErrInternalServer
	}
	if !conn.Send(b) {
		logCtx.Warn("Join: connection send buffer full, init dropped")
	}

	// 加入时立即写回一次（不去抖）
	if _, err := s.writeback.Save(ctx, entry); err != nil {
		logCtx.WithError(err).Error("Join: immediate writeback failed")
	}
	return nil
}

// Draw 处理一次像素绘制并把更新扇出给房间里的其他连接。
// 房间不在缓存或已关闭时静默丢弃：网格可能刚在竞态下被关闭，
// 这不算调用方的错。
func (s *SyncService) Draw(ctx context.Context, sender Sender, roomID uint, x, y int, color string) error {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"conn_id": sender.ConnID(),
	})

	entry, ok := s.cache.Get(roomID)
	if !ok || !entry.IsAvailable() {
		logCtx.Debug("Draw: room not in cache or closed, dropping")
		return nil
	}

	if !s.palette.Contains(color) {
		logCtx.WithField("color", color).Warn("Draw: invalid color")
		return ErrInvalidColor
	}

	// SetPixel 是唯一的修改入口，活跃时间戳和脏跟踪都依赖它
	if !s.cache.SetPixel(roomID, x, y, color) {
		logCtx.WithFields(logrus.Fields{"x": x, "y": y}).Warn("Draw: pixel out of bounds")
		return ErrOutOfBounds
	}

	update := dto.DrawPixelDTO{Type: "drawPixel", X: x, Y: y, Color: color}
	if p, ok := entry.PresenceByConn(sender.ConnID()); ok {
		update.SenderColor = p.Color
	}
	b, err := json.Marshal(update)
	if err != nil {
		logCtx.WithError(err).Error("Draw: failed to marshal update")
		return nil
	}
	// 永不回显给发送者
	s.broadcaster.Broadcast(roomID, sender.ConnID(), b)
	return nil
}

// Disconnect 清理一个断开连接在所有房间的 Presence。
// 各房间独立处理：某个房间写回失败不阻断其余房间的清理。
func (s *SyncService) Disconnect(ctx context.Context, connID string) {
	for _, entry := range s.cache.Entries() {
		if !entry.RemovePresence(connID) {
			continue
		}
		s.cache.Touch(entry.RoomID)
		logrus.WithFields(logrus.Fields{
			"room_id": entry.RoomID,
			"conn_id": connID,
		}).Info("Disconnect: presence removed")

		s.broadcastUsers(entry.RoomID, entry.Views())

		if _, err := s.writeback.Save(ctx, entry); err != nil {
			logrus.WithError(err).WithField("room_id", entry.RoomID).
				Error("Disconnect: writeback failed")
		}
	}
}

// Close 处理创建者显式关闭房间：
// 校验令牌、把工作网格刷进持久记录、标记不可用、撤掉缓存条目、
// 向所有参与者广播 roomClosed。
func (s *SyncService) Close(ctx context.Context, roomID uint, creatorToken string) error {
	logCtx := logrus.WithField("room_id", roomID)

	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			logCtx.Warn("Close: room not found")
			return ErrRoomNotFound
		}
		logCtx.WithError(err).Error("Close: repository error")
		return ErrStorageUnavailable
	}
	if !VerifyCreatorToken(room, creatorToken) {
		logCtx.Warn("Close: unauthorized close request")
		return ErrUnauthorized
	}

	if entry, ok := s.cache.Get(roomID); ok {
		// 关闭是只读化的不可逆一步，必须等在途写回让位后把网格真正落库
		if err := s.writeback.Flush(ctx, entry); err != nil {
			logCtx.WithError(err).Error("Close: failed to flush grid")
			return ErrStorageUnavailable
		}
		// 后续 draw 会被可用性检查拒绝
		entry.SetAvailable(false)
	}

	if err := s.roomRepo.MarkUnavailable(ctx, roomID); err != nil {
		logCtx.WithError(err).Error("Close: failed to mark room unavailable")
		return ErrStorageUnavailable
	}

	s.cache.Evict(roomID)

	b, err := json.Marshal(dto.RoomClosedDTO{Type: "roomClosed"})
	if err == nil {
		s.broadcaster.Broadcast(roomID, "", b)
	}
	logCtx.Info("Room closed on request")
	return nil
}

// broadcastUsers 把在线用户视图全量推给房间（包含触发变化的连接）。
func (s *SyncService) broadcastUsers(roomID uint, users map[string]domain.PresenceView) {
	b, err := json.Marshal(dto.UpdateUsersDTO{Type: "updateUsers", Users: users})
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to marshal user update")
		return
	}
	s.broadcaster.Broadcast(roomID, "", b)
}
