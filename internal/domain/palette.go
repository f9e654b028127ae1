package domain

// Palette 是注入的不透明颜色枚举集合。成员值必须原样（字符串相等）
// 在客户端之间往返；White 是空白/背景色。
type Palette struct {
	colors map[string]struct{}
	white  string
}

// NewPalette 用给定颜色集合创建 Palette。white 必须是集合成员。
func NewPalette(colors []string, white string) Palette {
	set := make(map[string]struct{}, len(colors))
	for _, c := range colors {
		set[c] = struct{}{}
	}
	set[white] = struct{}{}
	return Palette{colors: set, white: white}
}

// Contains 判断颜色是否为调色板成员。
func (p Palette) Contains(color string) bool {
	_, ok := p.colors[color]
	return ok
}

// White 返回空白/背景色。
func (p Palette) White() string { return p.white }

// DefaultPaletteWhite 是默认调色板的背景色。
const DefaultPaletteWhite = "rgba(255, 255, 255, 1)"

// DefaultPaletteColors 是前端默认使用的 32 色调色板。
func DefaultPaletteColors() []string {
	return []string{
		"rgba(255, 199, 199, 1)", "rgba(204, 102, 102, 1)", "rgba(153, 51, 51, 1)",
		"rgba(173, 216, 230, 1)", "rgba(100, 149, 237, 1)", "rgba(65, 105, 145, 1)",
		"rgba(180, 238, 180, 1)", "rgba(102, 180, 102, 1)", "rgba(56, 94, 56, 1)",
		"rgba(255, 255, 153, 1)", "rgba(255, 218, 110, 1)", "rgba(204, 153, 0, 1)",
		"rgba(221, 160, 221, 1)", "rgba(147, 112, 219, 1)", "rgba(106, 90, 205, 1)",
		"rgba(255, 204, 153, 1)", "rgba(255, 140, 0, 1)", "rgba(204, 102, 0, 1)",
		"rgba(175, 238, 238, 1)", "rgba(0, 139, 139, 1)", "rgba(0, 100, 100, 1)",
		"rgba(210, 180, 140, 1)", "rgba(139, 69, 19, 1)", "rgba(101, 67, 33, 1)",
		"rgba(220, 220, 220, 1)", "rgba(169, 169, 169, 1)", "rgba(105, 105, 105, 1)",
		DefaultPaletteWhite, "rgba(0, 0, 0, 1)",
	}
}

// DefaultPresenceColor 是昵称颜色池耗尽时的降级颜色。
const DefaultPresenceColor = "#DDD"

// DefaultNicknames 是默认昵称池，同一房间内在线用户之间不重复。
func DefaultNicknames() []string {
	return []string{
		"Pistachio", "Mango", "Papaya", "Clementine", "Huckleberry",
		"Marzipan", "Waffles", "Biscotti", "Pumpernickel", "Gnocchi",
		"Tiramisu", "Macaroon", "Pretzel", "Crumpet", "Strudel",
		"Noodle", "Dumpling", "Pickle", "Sprout", "Turnip",
		"Walnut", "Chestnut", "Maple", "Juniper", "Clover",
		"Pebble", "Doodle", "Scribble", "Smudge", "Speckle",
	}
}

// DefaultPresenceColors 是默认的在线用户标识色池（柔和色）。
func DefaultPresenceColors() []string {
	return []string{
		"#FFB3BA", "#FFDFBA", "#FFFFBA", "#BAFFC9", "#BAE1FF",
		"#E3BAFF", "#FFBAF2", "#BAFFF4", "#D4BAFF", "#C9FFBA",
		"#FFD1BA", "#BAD7FF", "#F2FFBA", "#FFBACD", "#BAFFE0",
	}
}
