package domain

import "time"

// Presence 表示房间里的一个在线参与者。
// ConnID 每次重连都会变化；ClientID 由客户端持久保存，跨重连稳定。
type Presence struct {
	ConnID   string
	ClientID string
	Addr     string // 来源网络地址，只在进程内使用，绝不发给客户端
	Nickname string
	Color    string
	JoinedAt time.Time
}

// PresenceView 是可以离开进程边界的脱敏视图：不含网络地址。
type PresenceView struct {
	ConnID   string `json:"conn_id"`
	ClientID string `json:"client_id"`
	Nickname string `json:"nickname"`
	Color    string `json:"color"`
	JoinedAt int64  `json:"joined_at"` // Unix 毫秒；历史用户为 0
}

// View 返回该 Presence 的脱敏视图。
func (p *Presence) View() PresenceView {
	var joined int64
	if !p.JoinedAt.IsZero() {
		joined = p.JoinedAt.UnixMilli()
	}
	return PresenceView{
		ConnID:   p.ConnID,
		ClientID: p.ClientID,
		Nickname: p.Nickname,
		Color:    p.Color,
		JoinedAt: joined,
	}
}
