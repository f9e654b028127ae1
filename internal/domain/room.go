package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Grid 表示一个房间的像素网格，grid[x][y] 是调色板中的颜色值。
// 以 JSON 文本形式存入数据库的 TEXT 列。
type Grid [][]string

// NewBlankGrid 创建一个 width x height 的空白网格，所有格子填充背景色。
func NewBlankGrid(width, height int, background string) Grid {
	g := make(Grid, width)
	for x := range g {
		row := make([]string, height)
		for y := range row {
			row[y] = background
		}
		g[x] = row
	}
	return g
}

// InBounds 检查坐标是否落在网格内。
func (g Grid) InBounds(x, y int) bool {
	return x >= 0 && x < len(g) && len(g) > 0 && y >= 0 && y < len(g[0])
}

// IsBlank 判断网格是否所有格子都是背景色。
func (g Grid) IsBlank(background string) bool {
	for _, row := range g {
		for _, cell := range row {
			if cell != background {
				return false
			}
		}
	}
	return true
}

// Clone 返回网格的深拷贝，避免缓存内外共享底层切片。
func (g Grid) Clone() Grid {
	out := make(Grid, len(g))
	for x, row := range g {
		out[x] = append([]string(nil), row...)
	}
	return out
}

// Value 实现 driver.Valuer，GORM 写库时序列化为 JSON。
func (g Grid) Value() (driver.Value, error) {
	b, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("domain: marshal grid: %w", err)
	}
	return string(b), nil
}

// Scan 实现 sql.Scanner，GORM 读库时从 JSON 反序列化。
func (g *Grid) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*g = nil
		return nil
	case []byte:
		return json.Unmarshal(v, g)
	case string:
		return json.Unmarshal([]byte(v), g)
	default:
		return fmt.Errorf("domain: cannot scan %T into Grid", value)
	}
}

// StringList 是存为 JSON 文本列的字符串列表（参与者审计列表）。
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	b, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("domain: marshal string list: %w", err)
	}
	return string(b), nil
}

func (l *StringList) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("domain: cannot scan %T into StringList", value)
	}
}

// Contains 检查列表是否包含给定值。
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// Room 表示一个持久化的像素画板房间。
// ID 是短数字房间号（创建时生成，非自增），网格尺寸创建后不可变。
type Room struct {
	ID               uint       `gorm:"primaryKey;autoIncrement:false"`
	GridWidth        int        `gorm:"not null"`
	GridHeight       int        `gorm:"not null"`
	CanvasWidth      int        `gorm:"not null"`
	CanvasHeight     int        `gorm:"not null"`
	Grid             Grid       `gorm:"type:longtext;not null"`
	CreatorAddr      string     `gorm:"size:64"`            // 创建者的网络地址
	CreatorTokenHash string     `gorm:"size:191;not null"`  // 创建者令牌的 bcrypt 哈希，加入/关闭时校验
	Participants     StringList `gorm:"type:text"`          // 曾加入过的访客地址（审计列表，按地址去重）
	IsAvailable      bool       `gorm:"default:true;index"` // false = 房间已关闭（只读）
	CreatedAt        time.Time  `gorm:"autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"index"`
}
