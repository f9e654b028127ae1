package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/elahist/paint-together/internal/dto"
	"github.com/elahist/paint-together/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type    string // "register", "unregister", "message"
	Client  *Client
	RawData []byte // 仅用于 message（原始 WebSocket 消息）
}

// Hub 维护活跃客户端集合，按房间号组织，并把入站消息分发给协议处理器。
// 它同时实现 service.Broadcaster。
type Hub struct {
	messageChan chan HubMessage

	// map[roomID]map[*Client]bool
	rooms   map[uint]map[*Client]bool
	roomsMu sync.RWMutex

	sync *service.SyncService

	// 每个连接两次绘制之间的最小间隔；0 表示不限流
	minDrawInterval time.Duration
}

// NewHub 创建并返回一个新的 Hub 实例。
// SyncService 依赖成环（Hub 是它的 Broadcaster），用 SetSyncService 注入。
func NewHub(minDrawInterval time.Duration) *Hub {
	return &Hub{
		messageChan:     make(chan HubMessage, 512),
		rooms:           make(map[uint]map[*Client]bool),
		minDrawInterval: minDrawInterval,
	}
}

// SetSyncService 注入协议处理器，必须在 Run 之前调用。
func (h *Hub) SetSyncService(s *service.SyncService) {
	if s == nil {
		panic("SyncService cannot be nil for Hub")
	}
	h.sync = s
}

// Run 启动 Hub 的主事件处理循环。
// 它应该在一个单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for msg := range h.messageChan {
		switch msg.Type {
		case "register":
			h.registerClient(msg.Client)
		case "unregister":
			h.unregisterClient(msg.Client)
		case "message":
			// 异步处理，避免单条消息的 IO 阻塞 Hub 主循环
			go h.handleClientMessage(msg)
		default:
			log.Warnf("Hub: received unknown message type: %s", msg.Type)
		}
	}
	log.Info("Hub is shutting down...")
}

// Stop 关闭消息通道，Run 随之退出。
func (h *Hub) Stop() {
	close(h.messageChan)
}

// registerClient 把客户端挂进房间并触发 join 流程
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: attempted to register a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": client.RoomID(),
		"conn_id": client.ConnID(),
	})

	h.roomsMu.Lock()
	if _, ok := h.rooms[client.RoomID()]; !ok {
		h.rooms[client.RoomID()] = make(map[*Client]bool)
	}
	h.rooms[client.RoomID()][client] = true
	h.roomsMu.Unlock()
	logCtx.Info("Client registered to Hub")

	// join 会下发 init 和在线列表，异步执行
	go func() {
		err := h.sync.Join(context.Background(), client, client.RoomID(), client.CreatorToken(), client.ClientID())
		if err != nil {
			h.sendError(client, err)
		}
	}()
}

// unregisterClient 把客户端摘出房间并清理其 Presence
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: attempted to unregister a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": client.RoomID(),
		"conn_id": client.ConnID(),
	})

	h.roomsMu.Lock()
	if roomClients, ok := h.rooms[client.RoomID()]; ok {
		if _, exists := roomClients[client]; exists {
			delete(roomClients, client)
			client.closeSend()
			if len(roomClients) == 0 {
				delete(h.rooms, client.RoomID())
				logCtx.Debug("Room empty, removed from Hub")
			}
		}
	}
	h.roomsMu.Unlock()
	logCtx.Info("Client unregistered from Hub")

	go h.sync.Disconnect(context.Background(), client.ConnID())
}

// handleClientMessage 解析入站信封并分发给协议处理器
func (h *Hub) handleClientMessage(msg HubMessage) {
	client := msg.Client
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": client.RoomID(),
		"conn_id": client.ConnID(),
	})

	var in dto.IncomingMessage
	if err := json.Unmarshal(msg.RawData, &in); err != nil {
		logCtx.WithError(err).Warn("Hub: malformed client message, dropping")
		return
	}

	ctx := context.Background()
	switch in.Type {
	case "drawPixel":
		if h.minDrawInterval > 0 && !client.allowDraw(h.minDrawInterval) {
			logCtx.Debug("Hub: draw throttled")
			return
		}
		if err := h.sync.Draw(ctx, client, client.RoomID(), in.X, in.Y, in.Color); err != nil {
			h.sendError(client, err)
		}
	case "closeRoom":
		if err := h.sync.Close(ctx, client.RoomID(), in.CreatorToken); err != nil {
			h.sendError(client, err)
		}
	default:
		logCtx.Warnf("Hub: unknown client message type: %s", in.Type)
	}
}

// Broadcast 把消息发给指定房间的所有客户端，可排除一个连接号。
// 实现 service.Broadcaster。
func (h *Hub) Broadcast(roomID uint, excludeConnID string, message []byte) {
	h.roomsMu.RLock()
	roomClients, ok := h.rooms[roomID]
	// 先拷贝接收者列表，避免发送时长时间持锁
	clientsToSend := make([]*Client, 0, len(roomClients))
	if ok {
		for client := range roomClients {
			if client.ConnID() != excludeConnID {
				clientsToSend = append(clientsToSend, client)
			}
		}
	}
	h.roomsMu.RUnlock()

	for _, client := range clientsToSend {
		if !client.Send(message) {
			// 发送队列满的客户端交给它自己的 WritePump 处理善后
			logrus.WithFields(logrus.Fields{
				"room_id": roomID,
				"conn_id": client.ConnID(),
			}).Warn("Client send channel full during broadcast, skipping")
		}
	}
}

// sendError 把业务错误转成 error 事件发给单个连接
func (h *Hub) sendError(client *Client, err error) {
	if err == nil {
		return
	}
	payload := dto.ErrorDTO{Type: "error", Kind: service.ErrorKind(err), Message: err.Error()}
	b, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		logrus.WithError(marshalErr).Error("Hub: failed to marshal error payload")
		return
	}
	client.Send(b)
}

// QueueMessage 将消息放入 Hub 的处理队列（非阻塞）。
// 返回 true 如果消息成功入队，false 如果队列已满。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).Warn("Hub message channel full, dropping message")
		return false
	}
}
