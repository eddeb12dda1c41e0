package internal

import (
	"math"
	"math/rand/v2"
)

const (
	// SpawnAttempts 拒絕取樣的最大次數
	SpawnAttempts = 100

	teamOneMinCol = 1
	teamOneMaxCol = 6
	teamTwoMinCol = 13
	teamTwoMaxCol = 18
)

// Spawn 出生點
type Spawn struct {
	X        float64
	Y        float64
	Rotation float64
}

// FallbackSpawn 找不到空格時的固定位置（可能與其他物件重疊）
var FallbackSpawn = Spawn{X: 400, Y: 300, Rotation: 0}

// FindSpawn 在隊伍的半場尋找空格
//
// 拒絕取樣：每次在區域內均勻抽一格，第一個空格即接受。
// 最多嘗試 SpawnAttempts 次，失敗則返回 FallbackSpawn，不回報錯誤。
//
// 一隊朝右（0），二隊朝左（π），面向對手半場。
func FindSpawn(rng *rand.Rand, isTeamOne bool, grid *Grid) Spawn {
	minCol, maxCol := teamTwoMinCol, teamTwoMaxCol
	rotation := math.Pi
	if isTeamOne {
		minCol, maxCol = teamOneMinCol, teamOneMaxCol
		rotation = 0
	}

	for attempt := 0; attempt < SpawnAttempts; attempt++ {
		col := rng.IntN(maxCol-minCol+1) + minCol
		row := rng.IntN(Rows-2) + 1
		if grid[row][col] == CellEmpty {
			c := Tile{Col: col, Row: row}.Center()
			return Spawn{X: c.X, Y: c.Y, Rotation: rotation}
		}
	}

	return FallbackSpawn
}
