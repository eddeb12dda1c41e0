package internal

import (
	"math"
	"math/rand/v2"
)

// 系統設計問題：
//   如何為每個房間產生一張「可破壞牆」地圖，讓同一組牆在第一次被擊中時一起消失？
//
// 核心挑戰：
//   1. 分組：一個障礙物由多個格子組成，必須原子地一起揭露
//   2. 邊界：外圍牆永遠存在且不屬於任何群組
//   3. 可重現：測試需要相同種子產生相同地圖
//
// 設計方案：
//   ✅ 注入 *rand.Rand - 產生過程只依賴亂數來源
//   ✅ 兩個索引：格子 → 群組 ID、群組 ID → 像素中心列表
//   ✅ 重疊時後寫者勝（WallGroups），GroupData 保留原始格子

const (
	TileSize = 40 // 每格像素
	Cols     = 20
	Rows     = 15

	// NumShapes 每張地圖的障礙物數量（群組 ID 從 1 開始，0 保留給邊界）
	NumShapes = 12
)

// Cell 格子狀態
type Cell int

const (
	CellEmpty Cell = 0
	CellWall  Cell = 1
)

// Grid 地圖格子，grid[row][col]
//
// 固定大小陣列，JSON 序列化為 15×20 的 0/1 二維陣列。
type Grid [Rows][Cols]Cell

// IsWall 判斷格子是否為牆（越界視為牆）
func (g *Grid) IsWall(col, row int) bool {
	if col < 0 || col >= Cols || row < 0 || row >= Rows {
		return true
	}
	return g[row][col] == CellWall
}

// Tile 格子座標
type Tile struct {
	Col int
	Row int
}

// TileAt 像素座標轉格子座標（向下取整）
func TileAt(x, y float64) Tile {
	return Tile{
		Col: int(math.Floor(x / TileSize)),
		Row: int(math.Floor(y / TileSize)),
	}
}

// Center 格子的像素中心
func (t Tile) Center() Point {
	return Point{
		X: float64(t.Col*TileSize + TileSize/2),
		Y: float64(t.Row*TileSize + TileSize/2),
	}
}

// Point 像素座標
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// GameMap 一張地圖與其牆群組索引
type GameMap struct {
	Grid       Grid
	WallGroups map[Tile]int    // 格子 → 群組 ID（只有可破壞牆）
	GroupData  map[int][]Point // 群組 ID → 像素中心（依放置順序）
}

// Blocks 返回群組的所有方塊位置
func (m *GameMap) Blocks(groupID int) []Point {
	return m.GroupData[groupID]
}

// GroupAt 查詢像素位置所屬的群組
func (m *GameMap) GroupAt(x, y float64) (int, bool) {
	id, ok := m.WallGroups[TileAt(x, y)]
	return id, ok
}

// GenerateMap 產生新地圖
//
// 障礙物形狀（等機率）：
//   - 直線：水平或垂直 3 格
//   - L 形：垂直 3 格 + 第三格右側 1 格
//   - 方塊：1 格，50% 機率向右多 1 格
//
// 任何落在邊界上或之外的格子直接略過，因此形狀可能少於 3 格。
func GenerateMap(rng *rand.Rand) *GameMap {
	m := &GameMap{
		WallGroups: make(map[Tile]int),
		GroupData:  make(map[int][]Point),
	}

	// 邊界（不分組，永遠可見）
	for row := 0; row < Rows; row++ {
		for col := 0; col < Cols; col++ {
			if row == 0 || row == Rows-1 || col == 0 || col == Cols-1 {
				m.Grid[row][col] = CellWall
			}
		}
	}

	groupID := 0
	for i := 0; i < NumShapes; i++ {
		row := rng.IntN(Rows-4) + 2
		col := rng.IntN(Cols-4) + 2
		shape := rng.IntN(3)
		groupID++

		switch shape {
		case 0: // 直線
			vertical := rng.Float64() < 0.5
			for k := 0; k < 3; k++ {
				if vertical {
					m.place(row+k, col, groupID)
				} else {
					m.place(row, col+k, groupID)
				}
			}
		case 1: // L 形
			for k := 0; k < 3; k++ {
				m.place(row+k, col, groupID)
			}
			m.place(row+2, col+1, groupID)
		default: // 方塊
			m.place(row, col, groupID)
			if rng.Float64() > 0.5 {
				m.place(row, col+1, groupID)
			}
		}
	}

	return m
}

// place 在內部格子放一塊可破壞牆；邊界或越界的格子略過
func (m *GameMap) place(row, col, groupID int) {
	if row < 1 || row >= Rows-1 || col < 1 || col >= Cols-1 {
		return
	}

	t := Tile{Col: col, Row: row}
	m.Grid[row][col] = CellWall
	m.WallGroups[t] = groupID // 重疊時後寫者勝
	m.GroupData[groupID] = append(m.GroupData[groupID], t.Center())
}
