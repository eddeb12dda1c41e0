package internal

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// 對外可見的錯誤訊息（原樣送給客戶端）
var (
	ErrRoomNotFound = errors.New("La sala no existe.")
	ErrRoomFull     = errors.New("La sala está llena.")
)

const (
	codeLength   = 4
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Manager 房間註冊表
//
// 系統設計考量：
//
//  1. 兩張表：
//     - rooms：房間碼 → Room
//     - sessions：連接 ID → 房間碼（取代掛在連接物件上的隱藏欄位）
//
//  2. 鎖順序：一律先房間鎖、後 Manager 鎖
//     Manager 持鎖時絕不去拿房間鎖（Stats、清理都先拷貝再逐一加鎖）
//
//  3. 房間碼碰撞：不檢查，新房間直接覆蓋舊房間（只記 Warn 日誌）
//
//  4. 資源回收：預設不清理閒置房間；設定 idleTTL 後才啟動清理 goroutine
type Manager struct {
	rooms    map[string]*Room  // code -> Room
	sessions map[string]string // connID -> code
	mu       sync.RWMutex
	logger   *slog.Logger

	rngMu  sync.Mutex
	master *rand.Rand
	codeFn func() string

	idleTTL         time.Duration
	cleanupInterval time.Duration
	onRemove        func(code, reason string)
	onEvict         func(code string, members []string)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// ManagerOption 設定 Manager
type ManagerOption func(*Manager)

// WithSeed 固定亂數種子（房間碼與地圖都可重現）
func WithSeed(seed uint64) ManagerOption {
	return func(m *Manager) {
		m.master = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithCodeGenerator 自訂房間碼產生器
func WithCodeGenerator(fn func() string) ManagerOption {
	return func(m *Manager) {
		m.codeFn = fn
	}
}

// WithIdleTTL 啟用閒置房間清理
func WithIdleTTL(ttl, interval time.Duration) ManagerOption {
	return func(m *Manager) {
		m.idleTTL = ttl
		m.cleanupInterval = interval
	}
}

// WithRemoveHook 房間移除時回呼（reason: empty / idle / shutdown）
func WithRemoveHook(fn func(code, reason string)) ManagerOption {
	return func(m *Manager) {
		m.onRemove = fn
	}
}

// WithEvictHook 閒置清理關閉房間後回呼，members 為被移出的連接
func WithEvictHook(fn func(code string, members []string)) ManagerOption {
	return func(m *Manager) {
		m.onEvict = fn
	}
}

// NewManager 創建房間管理器
func NewManager(logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		rooms:    make(map[string]*Room),
		sessions: make(map[string]string),
		logger:   logger,
		master:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.codeFn == nil {
		m.codeFn = m.generateCode
	}

	if m.idleTTL > 0 {
		if m.cleanupInterval <= 0 {
			m.cleanupInterval = time.Minute
		}
		m.wg.Add(1)
		go m.cleanupLoop()
	}

	return m
}

// CreateRoom 創建房間（狀態 waiting，地圖已產生）
//
// seat 在房間鎖內、註冊之前執行，用來安排房主；
// 因此房間對其他連接可見時，房主一定已經在裡面。
func (m *Manager) CreateRoom(seat func(*Room)) *Room {
	code := m.codeFn()
	room := NewRoom(code, m.roomRand())

	room.mu.Lock()
	defer room.mu.Unlock()
	if seat != nil {
		seat(room)
	}

	m.mu.Lock()
	if _, exists := m.rooms[code]; exists {
		m.logger.Warn("房間碼碰撞，覆蓋既有房間", "room_code", code)
	}
	m.rooms[code] = room
	m.mu.Unlock()

	m.logger.Info("房間已創建", "room_code", code)
	return room
}

// GetRoom 獲取房間
func (m *Manager) GetRoom(code string) (*Room, error) {
	m.mu.RLock()
	room, exists := m.rooms[code]
	m.mu.RUnlock()

	if !exists {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// DeleteRoom 移除房間
func (m *Manager) DeleteRoom(code string) {
	m.mu.Lock()
	_, exists := m.rooms[code]
	delete(m.rooms, code)
	m.mu.Unlock()

	if exists {
		m.logger.Info("房間已移除", "room_code", code)
	}
}

// removeRoom 只在註冊表中仍是同一個房間時才移除（避免誤刪覆蓋後的新房間）
func (m *Manager) removeRoom(room *Room, reason string) {
	m.mu.Lock()
	current, exists := m.rooms[room.Code]
	if exists && current == room {
		delete(m.rooms, room.Code)
	}
	m.mu.Unlock()

	if exists && current == room {
		m.logger.Info("房間已移除", "room_code", room.Code, "reason", reason)
		if m.onRemove != nil {
			m.onRemove(room.Code, reason)
		}
	}
}

// Bind 記錄連接所在房間
func (m *Manager) Bind(connID, code string) {
	m.mu.Lock()
	m.sessions[connID] = code
	m.mu.Unlock()
}

// Unbind 清除連接的房間記錄
func (m *Manager) Unbind(connID string) {
	m.mu.Lock()
	delete(m.sessions, connID)
	m.mu.Unlock()
}

// Session 獲取連接所在房間碼
func (m *Manager) Session(connID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	code, exists := m.sessions[connID]
	return code, exists
}

// RoomFor 透過 session 找到連接目前的房間
func (m *Manager) RoomFor(connID string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	code, exists := m.sessions[connID]
	if !exists {
		return nil, false
	}
	room, exists := m.rooms[code]
	return room, exists
}

// RoomCount 房間數量
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// snapshot 拷貝房間列表（之後才逐一加房間鎖）
func (m *Manager) snapshot() []*Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Stats 獲取統計資訊
func (m *Manager) Stats() map[string]any {
	statusCount := make(map[RoomStatus]int)
	totalPlayers := 0

	rooms := m.snapshot()
	for _, room := range rooms {
		room.mu.Lock()
		statusCount[room.status]++
		totalPlayers += len(room.players)
		room.mu.Unlock()
	}

	return map[string]any{
		"total_rooms":   len(rooms),
		"total_players": totalPlayers,
		"by_status":     statusCount,
	}
}

// cleanupLoop 定期清理閒置房間
func (m *Manager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stopCh:
			return
		}
	}
}

// Cleanup 執行清理（公開方法供測試使用）
func (m *Manager) Cleanup() {
	m.cleanup()
}

func (m *Manager) cleanup() {
	for _, room := range m.snapshot() {
		if room.IsExpired(m.idleTTL) {
			m.evict(room, "idle")
		}
	}
}

// evict 關閉房間並清除其成員的 session；有人正在入座時跳過
func (m *Manager) evict(room *Room, reason string) {
	room.mu.Lock()
	if room.pending > 0 || room.closed {
		room.mu.Unlock()
		return
	}
	room.closed = true
	members := append([]string(nil), room.order...)
	room.mu.Unlock()

	m.mu.Lock()
	for _, connID := range members {
		if m.sessions[connID] == room.Code {
			delete(m.sessions, connID)
		}
	}
	m.mu.Unlock()

	m.removeRoom(room, reason)
	if m.onEvict != nil && len(members) > 0 {
		m.onEvict(room.Code, members)
	}
}

// Stop 停止管理器
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
	m.logger.Info("房間管理器已停止", "rooms", m.RoomCount())
}

// roomRand 為新房間派生獨立的亂數來源
func (m *Manager) roomRand() *rand.Rand {
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	return rand.New(rand.NewPCG(m.master.Uint64(), m.master.Uint64()))
}

// generateCode 生成 4 碼房間碼
func (m *Manager) generateCode() string {
	m.rngMu.Lock()
	defer m.rngMu.Unlock()

	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[m.master.IntN(len(codeAlphabet))]
	}
	return string(b)
}
