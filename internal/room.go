package internal

import (
	"maps"
	"math/rand/v2"
	"slices"
	"sync"
	"time"
)

// 系統設計問題：
//   如何保證同一房間的事件不會交錯執行（揭露一次、最多兩人）？
//
// 核心挑戰：
//   1. 並發控制：兩個玩家的事件由不同 goroutine 進入
//   2. 冪等性：同一牆群組只能廣播一次
//   3. 生命週期：最後一人離開時房間立即消失
//
// 設計方案：
//   ✅ 每房間一把 Mutex - 整個事件（含發送）在鎖內完成
//   ✅ 房間自帶亂數來源 - 鎖保護下使用，不需全域鎖
//   ✅ closed 旗標 - 已從 Manager 移除的房間不再接受加入

// RoomStatus 房間狀態
//
//	waiting → playing
//
// 沒有 finished：遊戲結束只是事件廣播，由客戶端顯示。
type RoomStatus string

const (
	StatusWaiting RoomStatus = "waiting" // 等待第二位玩家
	StatusPlaying RoomStatus = "playing" // 對戰中
)

// MaxPlayers 每房間人數上限
const MaxPlayers = 2

// Player 玩家資訊
//
// 位置與角度由客戶端回報，伺服器原樣保存（信任客戶端）。
type Player struct {
	ID          string  `json:"playerId"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Rotation    float64 `json:"rotation"`
	IsPlayerOne bool    `json:"isPlayerOne"`
}

// Room 遊戲房間
//
// 除了 Code/CreatedAt 以外的欄位都由 mu 保護。
// 小寫方法要求呼叫者已持有鎖；大寫存取方法自行加鎖。
type Room struct {
	Code      string
	CreatedAt time.Time

	mu          sync.Mutex
	players     map[string]*Player
	order       []string // 加入順序（重新開始時的迭代順序）
	gameMap     *GameMap
	revealed    map[int]struct{}
	revealOrder []int
	status      RoomStatus
	closed      bool
	pending     int // 已保留、尚未入座的席位
	lastActive  time.Time
	rng         *rand.Rand
}

// NewRoom 創建新房間並產生地圖
func NewRoom(code string, rng *rand.Rand) *Room {
	now := time.Now()
	return &Room{
		Code:       code,
		CreatedAt:  now,
		players:    make(map[string]*Player),
		gameMap:    GenerateMap(rng),
		revealed:   make(map[int]struct{}),
		status:     StatusWaiting,
		lastActive: now,
		rng:        rng,
	}
}

// addPlayer 在隊伍半場找出生點並加入玩家（需持有鎖）
func (r *Room) addPlayer(connID string, isPlayerOne bool) *Player {
	spawn := FindSpawn(r.rng, isPlayerOne, &r.gameMap.Grid)
	p := &Player{
		ID:          connID,
		X:           spawn.X,
		Y:           spawn.Y,
		Rotation:    spawn.Rotation,
		IsPlayerOne: isPlayerOne,
	}

	if _, exists := r.players[connID]; !exists {
		r.order = append(r.order, connID)
	}
	r.players[connID] = p
	r.touch()
	return p
}

// removePlayer 移除玩家，返回是否存在（需持有鎖）
func (r *Room) removePlayer(connID string) bool {
	if _, exists := r.players[connID]; !exists {
		return false
	}
	delete(r.players, connID)
	r.order = slices.DeleteFunc(r.order, func(id string) bool { return id == connID })
	r.touch()
	return true
}

// joinable 檢查房間是否可加入（需持有鎖）
func (r *Room) joinable() error {
	if r.closed {
		return ErrRoomNotFound
	}
	if len(r.players)+r.pending >= MaxPlayers {
		return ErrRoomFull
	}
	return nil
}

// reserve 保留一個席位，之後必須以 release 歸還（需持有鎖）
func (r *Room) reserve() error {
	if err := r.joinable(); err != nil {
		return err
	}
	r.pending++
	r.touch()
	return nil
}

func (r *Room) release() {
	if r.pending > 0 {
		r.pending--
	}
}

// reveal 揭露牆群組；已揭露過返回 false（需持有鎖）
func (r *Room) reveal(groupID int) ([]Point, bool) {
	if _, done := r.revealed[groupID]; done {
		return nil, false
	}
	blocks := r.gameMap.Blocks(groupID)
	if blocks == nil {
		return nil, false
	}
	r.revealed[groupID] = struct{}{}
	r.revealOrder = append(r.revealOrder, groupID)
	r.touch()
	return slices.Clone(blocks), true
}

// revealedBlocks 所有已揭露群組的方塊，依揭露順序（需持有鎖）
func (r *Room) revealedBlocks() []Point {
	blocks := []Point{}
	for _, id := range r.revealOrder {
		blocks = append(blocks, r.gameMap.Blocks(id)...)
	}
	return blocks
}

// restart 重新產生地圖並重新配置所有玩家（需持有鎖）
//
// 依加入順序：第一位拿一隊出生點，其餘拿二隊出生點。
// IsPlayerOne 不變，因此原本的二隊玩家可能被放到一隊半場。
func (r *Room) restart() {
	r.gameMap = GenerateMap(r.rng)
	r.revealed = make(map[int]struct{})
	r.revealOrder = nil

	first := true
	for _, id := range r.order {
		p := r.players[id]
		spawn := FindSpawn(r.rng, first, &r.gameMap.Grid)
		p.X, p.Y, p.Rotation = spawn.X, spawn.Y, spawn.Rotation
		first = false
	}
	r.touch()
}

// playerSnapshot 玩家表的值拷貝，可安全交給傳輸層（需持有鎖）
func (r *Room) playerSnapshot() map[string]Player {
	out := make(map[string]Player, len(r.players))
	for id, p := range r.players {
		out[id] = *p
	}
	return out
}

// others 除了 connID 以外的成員，依加入順序（需持有鎖）
func (r *Room) others(connID string) []string {
	out := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if id != connID {
			out = append(out, id)
		}
	}
	return out
}

func (r *Room) touch() {
	r.lastActive = time.Now()
}

// PlayerCount 獲取玩家數量
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// Status 獲取房間狀態
func (r *Room) Status() RoomStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Player 獲取玩家拷貝
func (r *Room) Player(connID string) (Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[connID]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// Players 獲取玩家表拷貝
func (r *Room) Players() map[string]Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playerSnapshot()
}

// Map 獲取目前地圖的深拷貝
func (r *Room) Map() *GameMap {
	r.mu.Lock()
	defer r.mu.Unlock()

	groups := make(map[int][]Point, len(r.gameMap.GroupData))
	for id, blocks := range r.gameMap.GroupData {
		groups[id] = slices.Clone(blocks)
	}
	return &GameMap{
		Grid:       r.gameMap.Grid,
		WallGroups: maps.Clone(r.gameMap.WallGroups),
		GroupData:  groups,
	}
}

// RevealedGroups 已揭露的群組 ID（依揭露順序）
func (r *Room) RevealedGroups() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.revealOrder)
}

// IsExpired 檢查房間是否閒置超過 ttl；ttl <= 0 表示永不過期
func (r *Room) IsExpired(ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.lastActive) > ttl
}
