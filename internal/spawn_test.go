package internal_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-arena-rooms/internal"
)

func TestFindSpawn(t *testing.T) {
	tests := []struct {
		name     string
		teamOne  bool
		minCol   int
		maxCol   int
		rotation float64
	}{
		{"team one spawns on the left facing right", true, 1, 6, 0},
		{"team two spawns on the right facing left", false, 13, 18, math.Pi},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for seed := uint64(0); seed < 100; seed++ {
				m := internal.GenerateMap(seeded(seed))
				s := internal.FindSpawn(seeded(seed+1000), tt.teamOne, &m.Grid)

				tile := internal.TileAt(s.X, s.Y)
				require.GreaterOrEqual(t, tile.Col, tt.minCol)
				require.LessOrEqual(t, tile.Col, tt.maxCol)
				require.GreaterOrEqual(t, tile.Row, 1)
				require.LessOrEqual(t, tile.Row, internal.Rows-2)

				require.Equal(t, internal.CellEmpty, m.Grid[tile.Row][tile.Col], "spawn must be on an empty tile")
				require.Equal(t, tile.Center(), internal.Point{X: s.X, Y: s.Y})
				require.Equal(t, tt.rotation, s.Rotation)
			}
		})
	}
}

// TestFindSpawn_Fallback 半場全是牆時返回固定位置
func TestFindSpawn_Fallback(t *testing.T) {
	var full internal.Grid
	for row := range full {
		for col := range full[row] {
			full[row][col] = internal.CellWall
		}
	}

	assert.Equal(t, internal.FallbackSpawn, internal.FindSpawn(seeded(1), true, &full))
	assert.Equal(t, internal.Spawn{X: 400, Y: 300, Rotation: 0}, internal.FindSpawn(seeded(2), false, &full))
}

// TestFindSpawn_SingleFreeTile 只剩一格空格時被找到的機率
func TestFindSpawn_SingleFreeTile(t *testing.T) {
	var g internal.Grid
	for row := range g {
		for col := range g[row] {
			g[row][col] = internal.CellWall
		}
	}
	g[7][3] = internal.CellEmpty

	found := 0
	for seed := uint64(0); seed < 200; seed++ {
		s := internal.FindSpawn(seeded(seed), true, &g)
		if s != internal.FallbackSpawn {
			assert.Equal(t, internal.Tile{Col: 3, Row: 7}.Center(), internal.Point{X: s.X, Y: s.Y})
			found++
		}
	}

	// 每次抽中機率 1/78，100 次內至少一次約 72%
	assert.Greater(t, found, 100)
	assert.Less(t, found, 200)
}
