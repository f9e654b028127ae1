package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
// 它实现 service.Sender。
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	connID       string // 每个连接唯一，重连后变化
	clientID     string // 客户端持久保存的稳定标识，重连不变
	creatorToken string // 加入时携带的创建者令牌（可能为空）
	remoteAddr   string
	roomID       uint

	send      chan []byte
	closeOnce sync.Once

	lastDraw int64 // 上次绘制的 UnixNano，限流用
}

// NewClient 创建一个新的 Client 实例，连接号由进程内生成。
func NewClient(hub *Hub, conn *websocket.Conn, roomID uint, clientID, creatorToken, remoteAddr string) *Client {
	return &Client{
		hub:          hub,
		conn:         conn,
		connID:       uuid.NewString(),
		clientID:     clientID,
		creatorToken: creatorToken,
		remoteAddr:   remoteAddr,
		roomID:       roomID,
		send:         make(chan []byte, 256),
	}
}

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

func (c *Client) ConnID() string       { return c.connID }
func (c *Client) ClientID() string     { return c.clientID }
func (c *Client) CreatorToken() string { return c.creatorToken }
func (c *Client) RemoteAddr() string   { return c.remoteAddr }
func (c *Client) RoomID() uint         { return c.roomID }

// Send 把消息放入该连接的发送队列（非阻塞）；队列满时返回 false。
func (c *Client) Send(message []byte) bool {
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// allowDraw 检查距离上次绘制是否超过最小间隔，超过则记录本次时间。
// CAS 保证同一连接的并发绘制里窗口内只放行一次。
func (c *Client) allowDraw(min time.Duration) bool {
	now := time.Now().UnixNano()
	for {
		last := atomic.LoadInt64(&c.lastDraw)
		if now-last < int64(min) {
			return false
		}
		if atomic.CompareAndSwapInt64(&c.lastDraw, last, now) {
			return true
		}
	}
}

// closeSend 关闭发送通道，让 WritePump 退出。只会执行一次。
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// CloseConn 直接关闭底层连接（注册失败时使用）。
func (c *Client) CloseConn() { c.conn.Close() }

// ReadPump 将消息从 WebSocket 连接泵送到 Hub 的处理通道。
// 它在自己的 goroutine 中运行。
func (c *Client) ReadPump() {
	defer func() {
		unregisterMsg := HubMessage{Type: "unregister", Client: c}
		select {
		case c.hub.messageChan <- unregisterMsg:
		case <-time.After(1 * time.Second):
			logrus.WithFields(logrus.Fields{"conn_id": c.connID, "room_id": c.roomID}).
				Warn("Timeout sending unregister message to Hub channel")
		}
		c.conn.Close()
		logrus.WithFields(logrus.Fields{"conn_id": c.connID, "room_id": c.roomID}).
			Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			logCtx := logrus.WithFields(logrus.Fields{"conn_id": c.connID, "room_id": c.roomID})
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			break
		}

		if messageType != websocket.TextMessage {
			continue
		}

		inbound := HubMessage{Type: "message", Client: c, RawData: message}
		select {
		case c.hub.messageChan <- inbound:
		default:
			// 系统过载或 Hub 阻塞，丢弃该消息
			logrus.WithFields(logrus.Fields{"conn_id": c.connID, "room_id": c.roomID}).
				Warn("Hub message channel full, dropping client message")
		}
	}
}

// WritePump 将消息从 send 通道泵送到 WebSocket 连接。
// 它在自己的 goroutine 中运行。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logrus.WithFields(logrus.Fields{"conn_id": c.connID, "room_id": c.roomID}).
			Info("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// send 通道被 Hub 关闭（注销时）
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithFields(logrus.Fields{"conn_id": c.connID, "room_id": c.roomID}).
					WithError(err).Warn("Failed to write message to websocket")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})
		}
	}
}
