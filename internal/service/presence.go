package service

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/elahist/paint-together/internal/cache"
	"github.com/elahist/paint-together/internal/domain"
)

// PresenceAssignor 负责给连接中的参与者分配昵称和标识色，
// 并处理按稳定客户端标识的重连去重。
type PresenceAssignor struct {
	nicknames []string
	colors    []string
}

// NewPresenceAssignor 创建 PresenceAssignor；池子作为不透明集合注入。
func NewPresenceAssignor(nicknames, colors []string) *PresenceAssignor {
	return &PresenceAssignor{nicknames: nicknames, colors: colors}
}

// Assign 为新连接建立 Presence 并登记到缓存条目。
//
// 重连场景：同一 clientID 已在线但连接号不同，先删旧条目再插新条目，
// 昵称和颜色原样保留。全新加入则从池中挑一个未被在线用户占用的
// 昵称/颜色，池耗尽时降级为随机生成。
func (a *PresenceAssignor) Assign(entry *cache.CachedRoomState, connID, clientID, addr string) domain.Presence {
	if clientID == "" {
		// 客户端没带稳定标识，给它造一个（仅本次连接有效）
		clientID = uuid.NewString()
	}

	if old, ok := entry.PresenceByClientID(clientID); ok && old.ConnID != connID {
		// 重连/幽灵连接：移除旧连接，保留昵称颜色的连续性
		entry.RemovePresence(old.ConnID)
		p := domain.Presence{
			ConnID:   connID,
			ClientID: clientID,
			Addr:     addr,
			Nickname: old.Nickname,
			Color:    old.Color,
			JoinedAt: old.JoinedAt,
		}
		entry.PutPresence(&p)
		return p
	}

	online := entry.Presences()
	usedNicks := make(map[string]bool, len(online))
	usedColors := make(map[string]bool, len(online))
	for _, p := range online {
		usedNicks[p.Nickname] = true
		usedColors[p.Color] = true
	}

	p := domain.Presence{
		ConnID:   connID,
		ClientID: clientID,
		Addr:     addr,
		Nickname: pickUnused(a.nicknames, usedNicks, generateRandomName),
		Color:    pickUnused(a.colors, usedColors, func() string { return domain.DefaultPresenceColor }),
		JoinedAt: time.Now(),
	}
	entry.PutPresence(&p)
	return p
}

// HistoricalViews 根据持久审计列表为已关闭房间重建去重后的历史用户视图。
// 历史昵称/颜色从池中按序取用（与在线池独立消费），溢出后降级。
func (a *PresenceAssignor) HistoricalViews(participants domain.StringList) map[string]domain.PresenceView {
	views := make(map[string]domain.PresenceView)
	seen := make(map[string]bool, len(participants))
	i := 0
	for _, addr := range participants {
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true

		key := fmt.Sprintf("historical-%d", i)
		nick := fmt.Sprintf("User%d", i+1)
		if i < len(a.nicknames) {
			nick = a.nicknames[i]
		}
		color := domain.DefaultPresenceColor
		if i < len(a.colors) {
			color = a.colors[i]
		}
		// 地址绝不进入视图
		views[key] = domain.PresenceView{
			ConnID:   key,
			ClientID: key,
			Nickname: nick,
			Color:    color,
			JoinedAt: 0,
		}
		i++
	}
	return views
}

// pickUnused 从池里随机挑一个未被占用的值，池耗尽时用 fallback。
func pickUnused(pool []string, used map[string]bool, fallback func() string) string {
	available := make([]string, 0, len(pool))
	for _, v := range pool {
		if !used[v] {
			available = append(available, v)
		}
	}
	if len(available) == 0 {
		// 降级：允许碰撞
		return fallback()
	}
	return available[rand.Intn(len(available))]
}

func generateRandomName() string {
	return fmt.Sprintf("User%d", rand.Intn(1000))
}
