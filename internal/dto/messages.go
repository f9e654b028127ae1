package dto

import "github.com/elahist/paint-together/internal/domain"

// IncomingMessage 表示从客户端 WebSocket 消息中解析出的操作信封。
// 加入房间发生在连接建立时（URL 携带房间号），这里只处理连接后的操作。
type IncomingMessage struct {
	Type         string `json:"type" binding:"required,oneof=drawPixel closeRoom"`
	X            int    `json:"x"`
	Y            int    `json:"y"`
	Color        string `json:"color,omitempty"`
	CreatorToken string `json:"creator_token,omitempty"` // 仅 closeRoom 使用
}

// InitDTO 是新连接加入后下发的初始状态。
type InitDTO struct {
	Type        string                         `json:"type"` // "init"
	RoomID      uint                           `json:"room_id"`
	Grid        domain.Grid                    `json:"grid"`
	GridWidth   int                            `json:"grid_width"`
	GridHeight  int                            `json:"grid_height"`
	CanvasWidth int                            `json:"canvas_width"`
	CanvasHeight int                           `json:"canvas_height"`
	IsOwner     bool                           `json:"is_owner"`
	IsAvailable bool                           `json:"is_available"`
	Users       map[string]domain.PresenceView `json:"users"`
}

// DrawPixelDTO 是广播给其他连接的像素更新。
type DrawPixelDTO struct {
	Type        string `json:"type"` // "drawPixel"
	X           int    `json:"x"`
	Y           int    `json:"y"`
	Color       string `json:"color"`
	SenderColor string `json:"sender_color,omitempty"` // 发送者的标识色，供前端画光标
}

// UpdateUsersDTO 是在线用户集合变化时的全量推送。
type UpdateUsersDTO struct {
	Type  string                         `json:"type"` // "updateUsers"
	Users map[string]domain.PresenceView `json:"users"`
}

// RoomClosedDTO 通知房间已关闭。
type RoomClosedDTO struct {
	Type string `json:"type"` // "roomClosed"
}

// ErrorDTO 表示发送给客户端的错误消息数据结构。
type ErrorDTO struct {
	Type    string `json:"type"` // "error"
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
