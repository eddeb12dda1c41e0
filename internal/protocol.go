package internal

import (
	"encoding/json"
	"log/slog"
)

// 系統設計問題：
//   如何把每條連接事件路由到正確的房間，並送給正確的對象？
//
// 核心挑戰：
//   1. 受眾：發送者本人 / 房間其他人 / 整個房間
//   2. 順序：同一房間的事件與其輸出不能交錯
//   3. 可用性：缺房間、未加入、格式錯誤一律靜默忽略
//
// 設計方案：
//   ✅ 明確的分派表（事件名 → 處理函式）
//   ✅ 整個事件在房間鎖內完成，含 Emit（非阻塞送入連接緩衝）
//   ✅ 只有兩種錯誤會回給客戶端：房間不存在、房間已滿

// 客戶端 → 伺服器事件
const (
	EventCreateGame     = "createGame"
	EventJoinGame       = "joinGame"
	EventPlayerMovement = "playerMovement"
	EventWallHit        = "wallHit"
	EventShoot          = "shoot"
	EventPlayerDied     = "playerDied"
	EventRequestRestart = "requestRestart"
)

// 伺服器 → 客戶端事件
const (
	EventConnected         = "connected"
	EventGameCode          = "gameCode"
	EventWaitingForPlayer  = "waitingForPlayer"
	EventErrorMsg          = "errorMsg"
	EventMapData           = "mapData"
	EventCurrentPlayers    = "currentPlayers"
	EventCurrentWalls      = "currentWalls"
	EventGameStart         = "gameStart"
	EventNewPlayer         = "newPlayer"
	EventPlayerMoved       = "playerMoved"
	EventWallGroupRevealed = "wallGroupRevealed"
	EventPlayerShot        = "playerShot"
	EventGameOver          = "gameOver"
	EventGameReset         = "gameReset"
	EventDisconnectPlayer  = "disconnectPlayer"
)

// Message 線上訊息格式 {"event": ..., "data": ...}
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Emitter 把訊息送給單一連接（實作必須非阻塞）
type Emitter interface {
	Emit(connID string, msg Message)
}

// Movement 玩家移動回報
type Movement struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation"`
}

// GameReset 重新開始的廣播內容
type GameReset struct {
	Map     Grid              `json:"map"`
	Players map[string]Player `json:"players"`
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// SessionHandler 連接事件分派器
type SessionHandler struct {
	manager  *Manager
	out      Emitter
	logger   *slog.Logger
	metrics  *Metrics
	notifier *Notifier
	routes   map[string]func(connID string, data json.RawMessage)
}

// HandlerOption 設定 SessionHandler
type HandlerOption func(*SessionHandler)

// WithMetrics 接上 Prometheus 指標
func WithMetrics(m *Metrics) HandlerOption {
	return func(h *SessionHandler) { h.metrics = m }
}

// WithNotifier 接上房間生命週期通知
func WithNotifier(n *Notifier) HandlerOption {
	return func(h *SessionHandler) { h.notifier = n }
}

// NewSessionHandler 創建事件分派器
func NewSessionHandler(manager *Manager, out Emitter, logger *slog.Logger, opts ...HandlerOption) *SessionHandler {
	h := &SessionHandler{
		manager: manager,
		out:     out,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}

	h.routes = map[string]func(string, json.RawMessage){
		EventCreateGame: func(connID string, _ json.RawMessage) { h.CreateGame(connID) },
		EventJoinGame: func(connID string, data json.RawMessage) {
			var code string
			if h.decode(connID, EventJoinGame, data, &code) {
				h.JoinGame(connID, code)
			}
		},
		EventPlayerMovement: func(connID string, data json.RawMessage) {
			var mv Movement
			if h.decode(connID, EventPlayerMovement, data, &mv) {
				h.PlayerMovement(connID, mv)
			}
		},
		EventWallHit: func(connID string, data json.RawMessage) {
			var pos Point
			if h.decode(connID, EventWallHit, data, &pos) {
				h.WallHit(connID, pos)
			}
		},
		EventShoot: func(connID string, _ json.RawMessage) { h.Shoot(connID) },
		EventPlayerDied: func(connID string, data json.RawMessage) {
			var victimID string
			if h.decode(connID, EventPlayerDied, data, &victimID) {
				h.PlayerDied(connID, victimID)
			}
		},
		EventRequestRestart: func(connID string, _ json.RawMessage) { h.RequestRestart(connID) },
	}

	return h
}

// Dispatch 解析一則原始訊息並交給對應的處理函式
func (h *SessionHandler) Dispatch(connID string, raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.logger.Debug("解析客戶端消息失敗", "conn_id", connID, "error", err)
		return
	}

	route, ok := h.routes[msg.Event]
	if !ok {
		h.logger.Debug("收到未知消息類型", "conn_id", connID, "event", msg.Event)
		return
	}

	h.metrics.eventReceived(msg.Event)
	route(connID, msg.Data)
}

// CreateGame 創建房間，呼叫者成為一隊玩家
func (h *SessionHandler) CreateGame(connID string) {
	h.leave(connID)

	room := h.manager.CreateRoom(func(room *Room) {
		room.addPlayer(connID, true)
		h.manager.Bind(connID, room.Code)

		h.emit(connID, EventGameCode, room.Code)
		h.emit(connID, EventWaitingForPlayer, nil)
	})

	h.logger.Info("玩家創建房間", "room_code", room.Code, "conn_id", connID)
	h.notifier.Notify(LifecycleEvent{Type: LifecycleRoomCreated, RoomCode: room.Code, ConnID: connID})
}

// JoinGame 加入房間，呼叫者成為二隊玩家並開始遊戲
func (h *SessionHandler) JoinGame(connID, code string) {
	if current, ok := h.manager.Session(connID); ok && current == code {
		return
	}

	room, err := h.manager.GetRoom(code)
	if err != nil {
		h.rejectJoin(connID, code, ErrRoomNotFound)
		return
	}

	// 先在目標保留席位，才離開原本的房間：保留失敗不改變任何狀態，
	// 保留成功後其他連接看到的是已滿
	room.mu.Lock()
	if err := room.reserve(); err != nil {
		room.mu.Unlock()
		h.rejectJoin(connID, code, err)
		return
	}
	room.mu.Unlock()

	h.leave(connID)

	room.mu.Lock()
	defer room.mu.Unlock()

	room.release()
	if !room.closed && len(room.players) == 0 {
		// 保留期間房主離開，房間不再有效
		room.closed = true
		h.manager.removeRoom(room, "empty")
	}
	if room.closed {
		h.rejectJoin(connID, code, ErrRoomNotFound)
		return
	}

	player := room.addPlayer(connID, false)
	room.status = StatusPlaying
	h.manager.Bind(connID, code)

	for _, id := range room.others(connID) {
		h.emit(id, EventNewPlayer, *player)
	}
	h.broadcast(room, "", EventMapData, room.gameMap.Grid)
	h.broadcast(room, "", EventCurrentPlayers, room.playerSnapshot())
	h.broadcast(room, "", EventCurrentWalls, room.revealedBlocks())
	h.broadcast(room, "", EventGameStart, nil)

	h.metrics.gameStarted()
	h.logger.Info("玩家加入房間", "room_code", code, "conn_id", connID)
	h.notifier.Notify(LifecycleEvent{Type: LifecycleGameStarted, RoomCode: code, ConnID: connID})
}

// PlayerMovement 更新位置並轉發給對手（不驗證、不回送給自己）
func (h *SessionHandler) PlayerMovement(connID string, mv Movement) {
	room, ok := h.lockRoom(connID)
	if !ok {
		return
	}
	defer room.mu.Unlock()

	if room.status != StatusPlaying {
		return
	}
	player, exists := room.players[connID]
	if !exists {
		return
	}

	player.X, player.Y, player.Rotation = mv.X, mv.Y, mv.Rotation
	room.touch()

	h.broadcast(room, connID, EventPlayerMoved, *player)
}

// WallHit 揭露被擊中格子所屬的牆群組（每組只廣播一次）
func (h *SessionHandler) WallHit(connID string, pos Point) {
	room, ok := h.lockRoom(connID)
	if !ok {
		return
	}
	defer room.mu.Unlock()

	groupID, grouped := room.gameMap.GroupAt(pos.X, pos.Y)
	if !grouped {
		return
	}
	blocks, revealed := room.reveal(groupID)
	if !revealed {
		return
	}

	h.metrics.wallRevealed()
	h.broadcast(room, "", EventWallGroupRevealed, blocks)
}

// Shoot 轉發開火事件給對手
func (h *SessionHandler) Shoot(connID string) {
	room, ok := h.lockRoom(connID)
	if !ok {
		return
	}
	defer room.mu.Unlock()

	h.broadcast(room, connID, EventPlayerShot, connID)
}

// PlayerDied 廣播遊戲結束（含發送者）；房間狀態不變
func (h *SessionHandler) PlayerDied(connID, victimID string) {
	room, ok := h.lockRoom(connID)
	if !ok {
		return
	}
	defer room.mu.Unlock()

	h.broadcast(room, "", EventGameOver, victimID)

	h.metrics.gameOver()
	h.notifier.Notify(LifecycleEvent{Type: LifecycleGameOver, RoomCode: room.Code, ConnID: connID, VictimID: victimID})
}

// RequestRestart 重新產生地圖並重新配置所有玩家
func (h *SessionHandler) RequestRestart(connID string) {
	room, ok := h.lockRoom(connID)
	if !ok {
		return
	}
	defer room.mu.Unlock()

	room.restart()
	h.broadcast(room, "", EventGameReset, GameReset{
		Map:     room.gameMap.Grid,
		Players: room.playerSnapshot(),
	})

	h.metrics.gameRestarted()
	h.logger.Info("房間重新開始", "room_code", room.Code, "conn_id", connID)
	h.notifier.Notify(LifecycleEvent{Type: LifecycleGameReset, RoomCode: room.Code, ConnID: connID})
}

// Disconnect 連接關閉：移除玩家、通知對手、空房間立即刪除
func (h *SessionHandler) Disconnect(connID string) {
	h.leave(connID)
}

// leave 讓連接離開目前的房間
func (h *SessionHandler) leave(connID string) {
	room, ok := h.manager.RoomFor(connID)
	if !ok {
		h.manager.Unbind(connID)
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	h.manager.Unbind(connID)
	if !room.removePlayer(connID) {
		return
	}

	h.broadcast(room, "", EventDisconnectPlayer, connID)
	h.logger.Info("玩家離開房間", "room_code", room.Code, "conn_id", connID, "remaining", len(room.players))

	if len(room.players) == 0 && room.pending == 0 {
		room.closed = true
		h.manager.removeRoom(room, "empty")
	}
}

// RoomEvicted 通知被閒置清理移出的成員：對手離開、房間已不存在
func (h *SessionHandler) RoomEvicted(code string, members []string) {
	for _, connID := range members {
		for _, other := range members {
			if other != connID {
				h.emit(connID, EventDisconnectPlayer, other)
			}
		}
		h.emit(connID, EventErrorMsg, ErrRoomNotFound.Error())
	}
	h.logger.Info("閒置房間成員已通知", "room_code", code, "members", len(members))
}

// lockRoom 找到連接所在房間並加鎖；找不到或已關閉返回 false
func (h *SessionHandler) lockRoom(connID string) (*Room, bool) {
	room, ok := h.manager.RoomFor(connID)
	if !ok {
		return nil, false
	}
	room.mu.Lock()
	if room.closed {
		room.mu.Unlock()
		return nil, false
	}
	return room, true
}

func (h *SessionHandler) rejectJoin(connID, code string, err error) {
	h.metrics.joinRejected(err)
	h.logger.Debug("加入房間失敗", "room_code", code, "conn_id", connID, "error", err)
	h.emit(connID, EventErrorMsg, err.Error())
}

// broadcast 送給房間所有成員，except 非空時排除該連接（需持有房間鎖）
func (h *SessionHandler) broadcast(room *Room, except, event string, data any) {
	for _, id := range room.order {
		if id == except {
			continue
		}
		h.emit(id, event, data)
	}
}

func (h *SessionHandler) emit(connID, event string, data any) {
	h.out.Emit(connID, Message{Event: event, Data: data})
}

func (h *SessionHandler) decode(connID, event string, data json.RawMessage, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		h.logger.Debug("事件內容格式錯誤", "conn_id", connID, "event", event, "error", err)
		return false
	}
	return true
}
