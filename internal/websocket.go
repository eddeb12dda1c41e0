package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   如何把每條 WebSocket 連接接到房間事件上，而不讓慢客戶端拖垮房間？
//
// 核心挑戰：
//   1. 身份：連接本身就是玩家，連上即分配 ID
//   2. 心跳機制：檢測死連接（網絡異常、客戶端崩潰）
//   3. 背壓：房間鎖內發送，絕不能阻塞
//
// 設計方案：
//   ✅ Hub 模式 - 集中管理所有連接（connID → Connection）
//   ✅ Ping/Pong 心跳 - 檢測死連接（預設 54s/60s）
//   ✅ 緩衝 channel - Emit 只做非阻塞送入，滿了就丟棄

// Dispatcher 處理單一連接的進站事件與斷線
type Dispatcher interface {
	Dispatch(connID string, raw []byte)
	Disconnect(connID string)
}

var (
	_ Dispatcher = (*SessionHandler)(nil)
	_ Emitter    = (*WebSocketHub)(nil)
)

// HubConfig 連接層參數
type HubConfig struct {
	SendBuffer     int
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	Metrics        *Metrics
}

func (c *HubConfig) setDefaults() {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
}

// HubConfig 由配置產生連接層參數
func (c *Config) HubConfig(metrics *Metrics) HubConfig {
	return HubConfig{
		SendBuffer:     c.WebSocket.SendBuffer,
		PingInterval:   c.WebSocket.PingInterval,
		PongWait:       c.WebSocket.PongWait,
		WriteWait:      c.WebSocket.WriteWait,
		MaxMessageSize: c.WebSocket.MaxMessageSize,
		Metrics:        metrics,
	}
}

// WebSocketHub WebSocket 連接中心
//
// 系統設計考量：
//
//  1. 連接映射：map[connID]*Connection
//     - 房間成員由 Room 記錄，Hub 只負責把訊息送到連接
//
//  2. 並發安全：RWMutex
//     - Emit 在讀鎖內查表並送入 channel
//     - unregister 與 Stop 都在同一次寫鎖內關閉 channel 並把連接移出映射
//     - 查不到的連接直接略過，所以 Emit 不會碰到已關閉的 channel
//
//  3. 實作 Emitter：房間事件處理直接呼叫 Emit
type WebSocketHub struct {
	logger      *slog.Logger
	cfg         HubConfig
	upgrader    websocket.Upgrader
	connections map[string]*Connection // connID -> Connection
	dispatcher  Dispatcher
	mu          sync.RWMutex
	stopped     bool
	wg          sync.WaitGroup
}

// Connection WebSocket 連接
type Connection struct {
	ID        string
	Conn      *websocket.Conn
	Send      chan []byte
	Hub       *WebSocketHub
	LastPing  time.Time
	mu        sync.Mutex
	closeOnce sync.Once // 確保 channel 只關閉一次
}

// NewWebSocketHub 創建 WebSocket Hub
func NewWebSocketHub(logger *slog.Logger, cfg HubConfig) *WebSocketHub {
	cfg.setDefaults()
	return &WebSocketHub{
		logger: logger,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 在生產環境應該檢查來源
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[string]*Connection),
	}
}

// Attach 設定事件分派器（必須在開始接受連接前呼叫）
func (hub *WebSocketHub) Attach(d Dispatcher) {
	hub.mu.Lock()
	hub.dispatcher = d
	hub.mu.Unlock()
}

// ServeWS 處理 WebSocket 連接
func (hub *WebSocketHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	connection := &Connection{
		ID:       uuid.NewString(),
		Conn:     conn,
		Send:     make(chan []byte, hub.cfg.SendBuffer),
		Hub:      hub,
		LastPing: time.Now(),
	}

	if !hub.register(connection) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	hub.Emit(connection.ID, Message{Event: EventConnected, Data: map[string]string{"playerId": connection.ID}})

	go connection.writePump()
	go connection.readPump()

	hub.logger.Info("WebSocket 連接建立", "conn_id", connection.ID, "remote", r.RemoteAddr)
}

// register 註冊連接；Hub 已停止時返回 false
func (hub *WebSocketHub) register(conn *Connection) bool {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if hub.stopped {
		return false
	}
	hub.connections[conn.ID] = conn
	hub.wg.Add(1) // readPump 結束時 Done
	return true
}

// unregister 取消註冊連接
func (hub *WebSocketHub) unregister(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if actual, exists := hub.connections[conn.ID]; exists && actual == conn {
		delete(hub.connections, conn.ID)
	}
	conn.closeOnce.Do(func() {
		close(conn.Send)
	})
}

// Emit 序列化並送入連接的發送緩衝（非阻塞）
//
// 連接不存在（已斷線）時靜默略過；緩衝區滿時丟棄。
func (hub *WebSocketHub) Emit(connID string, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		hub.logger.Error("序列化事件失敗", "event", msg.Event, "error", err)
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	conn, exists := hub.connections[connID]
	if !exists {
		return
	}

	select {
	case conn.Send <- payload:
	default:
		hub.cfg.Metrics.messageDropped()
		hub.logger.Warn("連接緩衝區滿，丟棄消息", "conn_id", connID, "event", msg.Event)
	}
}

// ConnectionCount 獲取連接數
func (hub *WebSocketHub) ConnectionCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.connections)
}

// Stop 關閉所有連接，等待每條連接的斷線處理完成
func (hub *WebSocketHub) Stop() {
	hub.mu.Lock()
	hub.stopped = true
	for _, conn := range hub.connections {
		// 先關閉 Send channel，再關閉連接
		conn.closeOnce.Do(func() {
			close(conn.Send)
		})
		conn.Conn.Close()
	}
	// 斷線處理仍會廣播給房間另一方，移出映射後 Emit 直接略過
	hub.connections = make(map[string]*Connection)
	hub.mu.Unlock()

	hub.wg.Wait()
	hub.logger.Info("WebSocket Hub 已停止")
}

func (hub *WebSocketHub) currentDispatcher() Dispatcher {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return hub.dispatcher
}

// readPump 讀取客戶端消息
//
// 系統設計：心跳機制（讀取端）
//
//  1. 超時設置：PongWait（預設 60 秒）
//     - 期限內沒有收到任何消息（包括 Pong），關閉連接
//     - 配合 writePump 的 PingInterval（預設 54 秒，留 6 秒余量）
//
//  2. Pong 處理器：收到 Pong → 重置超時、更新 LastPing
//
//  3. 結束時：註銷連接，再交給分派器做斷線處理（離開房間、通知對手）
func (c *Connection) readPump() {
	hub := c.Hub
	dispatcher := hub.currentDispatcher()

	defer func() {
		hub.unregister(c)
		c.Conn.Close()
		if dispatcher != nil {
			dispatcher.Disconnect(c.ID)
		}
		hub.logger.Info("WebSocket 連接關閉", "conn_id", c.ID)
		hub.wg.Done()
	}()

	c.Conn.SetReadLimit(hub.cfg.MaxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(hub.cfg.PongWait)); err != nil {
		hub.logger.Error("設置讀取期限失敗", "error", err)
	}

	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(hub.cfg.PongWait)); err != nil {
			hub.logger.Error("設置讀取期限失敗", "error", err)
		}
		c.mu.Lock()
		c.LastPing = time.Now()
		c.mu.Unlock()
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				hub.logger.Error("WebSocket 讀取錯誤", "error", err, "conn_id", c.ID)
			}
			return
		}

		if messageType == websocket.TextMessage && dispatcher != nil {
			dispatcher.Dispatch(c.ID, message)
		}
	}
}

// writePump 寫入消息到客戶端
//
// 系統設計：心跳機制（發送端）
//
//  1. Ping 間隔：PingInterval（預設 54 秒）
//     - 很多代理服務器默認 60 秒超時，54 秒確保在超時前發送 Ping
//
//  2. 發送流程：
//     定時器觸發 → 發送 Ping → 瀏覽器自動回覆 Pong → readPump 重置超時
//
//  3. 批量發送：一次喚醒把緩衝中已排隊的消息一起寫出
func (c *Connection) writePump() {
	hub := c.Hub
	ticker := time.NewTicker(hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(hub.cfg.WriteWait)); err != nil {
				hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Hub 關閉了通道，優雅關閉連接
				deadline := time.Now().Add(time.Second)
				if err := c.Conn.SetWriteDeadline(deadline); err == nil {
					_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				}
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			n := len(c.Send)
			for i := 0; i < n; i++ {
				next, ok := <-c.Send
				if !ok {
					return
				}
				if err := c.Conn.WriteMessage(websocket.TextMessage, next); err != nil {
					hub.logger.Error("發送消息失敗", "error", err, "conn_id", c.ID)
					return
				}
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(hub.cfg.WriteWait)); err != nil {
				hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
