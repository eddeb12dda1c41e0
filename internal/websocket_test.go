package internal_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-arena-rooms/internal"
	"github.com/koopa0/system-design/14-arena-rooms/internal/testutils"
)

type testServer struct {
	srv     *httptest.Server
	manager *internal.Manager
	hub     *internal.WebSocketHub
	metrics *internal.Metrics
	handler *internal.Handler
}

// newTestServer 完整組裝：Manager + Hub + SessionHandler + HTTP 路由
func newTestServer(t *testing.T, staticDir string, opts ...internal.ManagerOption) *testServer {
	t.Helper()
	logger := testutils.Logger()

	manager := newTestManager(t, opts...)

	var hub *internal.WebSocketHub
	metrics := internal.NewMetrics(manager.RoomCount, func() int { return hub.ConnectionCount() })
	hub = internal.NewWebSocketHub(logger, internal.HubConfig{Metrics: metrics})
	hub.Attach(internal.NewSessionHandler(manager, hub, logger, internal.WithMetrics(metrics)))

	handler := internal.NewHandler(manager, hub, metrics, staticDir, logger)
	srv := httptest.NewServer(handler.Routes())
	t.Cleanup(func() {
		hub.Stop()
		srv.Close()
	})

	return &testServer{srv: srv, manager: manager, hub: hub, metrics: metrics, handler: handler}
}

type wireMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type wsClient struct {
	conn *websocket.Conn
	id   string
}

// dial 連線並讀取 connected 事件
func (s *testServer) dial(t *testing.T) *wsClient {
	t.Helper()

	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	c := &wsClient{conn: conn}
	msg := c.read(t)
	require.Equal(t, internal.EventConnected, msg.Event)

	var payload struct {
		PlayerID string `json:"playerId"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	c.id = payload.PlayerID
	return c
}

func (c *wsClient) send(t *testing.T, event string, data any) {
	t.Helper()
	require.NoError(t, c.conn.WriteJSON(internal.Message{Event: event, Data: data}))
}

func (c *wsClient) read(t *testing.T) wireMessage {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wireMessage
	require.NoError(t, c.conn.ReadJSON(&msg))
	return msg
}

// readUntil 略過其他事件直到收到指定事件
func (c *wsClient) readUntil(t *testing.T, event string) wireMessage {
	t.Helper()
	for {
		msg := c.read(t)
		if msg.Event == event {
			return msg
		}
	}
}

func TestWebSocket_Connected(t *testing.T) {
	s := newTestServer(t, "")

	a := s.dial(t)
	b := s.dial(t)

	_, err := uuid.Parse(a.id)
	assert.NoError(t, err)
	assert.NotEqual(t, a.id, b.id)

	assert.Eventually(t, func() bool { return s.hub.ConnectionCount() == 2 }, time.Second, 10*time.Millisecond)
}

// TestWebSocket_Match 兩個真實連線完成配對、移動、斷線
func TestWebSocket_Match(t *testing.T) {
	s := newTestServer(t, "")
	a := s.dial(t)
	b := s.dial(t)

	a.send(t, internal.EventCreateGame, nil)
	var code string
	require.NoError(t, json.Unmarshal(a.readUntil(t, internal.EventGameCode).Data, &code))
	assert.Len(t, code, 4)
	a.readUntil(t, internal.EventWaitingForPlayer)

	b.send(t, internal.EventJoinGame, code)

	var grid [][]int
	require.NoError(t, json.Unmarshal(b.readUntil(t, internal.EventMapData).Data, &grid))
	require.Len(t, grid, internal.Rows)
	for _, row := range grid {
		require.Len(t, row, internal.Cols)
	}
	assert.Equal(t, 1, grid[0][0])

	var players map[string]internal.Player
	require.NoError(t, json.Unmarshal(b.readUntil(t, internal.EventCurrentPlayers).Data, &players))
	assert.Len(t, players, 2)
	assert.True(t, players[a.id].IsPlayerOne)
	assert.False(t, players[b.id].IsPlayerOne)

	var walls []internal.Point
	require.NoError(t, json.Unmarshal(b.readUntil(t, internal.EventCurrentWalls).Data, &walls))
	assert.Empty(t, walls)
	b.readUntil(t, internal.EventGameStart)

	var newPlayer internal.Player
	require.NoError(t, json.Unmarshal(a.readUntil(t, internal.EventNewPlayer).Data, &newPlayer))
	assert.Equal(t, b.id, newPlayer.ID)
	a.readUntil(t, internal.EventGameStart)

	// 移動只轉發給對手
	a.send(t, internal.EventPlayerMovement, internal.Movement{X: 88, Y: 99, Rotation: 0.25})
	var moved internal.Player
	require.NoError(t, json.Unmarshal(b.readUntil(t, internal.EventPlayerMoved).Data, &moved))
	assert.Equal(t, a.id, moved.ID)
	assert.Equal(t, 88.0, moved.X)

	// 第三個連線：房間已滿
	c := s.dial(t)
	c.send(t, internal.EventJoinGame, code)
	var errMsg string
	require.NoError(t, json.Unmarshal(c.readUntil(t, internal.EventErrorMsg).Data, &errMsg))
	assert.Equal(t, "La sala está llena.", errMsg)

	// B 斷線：A 收到通知
	require.NoError(t, b.conn.Close())
	var gone string
	require.NoError(t, json.Unmarshal(a.readUntil(t, internal.EventDisconnectPlayer).Data, &gone))
	assert.Equal(t, b.id, gone)

	room, err := s.manager.GetRoom(code)
	require.NoError(t, err)
	assert.Equal(t, 1, room.PlayerCount())

	// A 也斷線：房間刪除
	require.NoError(t, a.conn.Close())
	assert.Eventually(t, func() bool {
		_, err := s.manager.GetRoom(code)
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)
}

// TestWebSocket_StopClosesConnections Hub 停止時關閉連線並清空房間
func TestWebSocket_StopClosesConnections(t *testing.T) {
	s := newTestServer(t, "")
	a := s.dial(t)
	a.send(t, internal.EventCreateGame, nil)
	a.readUntil(t, internal.EventWaitingForPlayer)
	require.Equal(t, 1, s.manager.RoomCount())

	s.hub.Stop()

	assert.Zero(t, s.hub.ConnectionCount())
	assert.Zero(t, s.manager.RoomCount(), "disconnect handling runs before Stop returns")

	require.NoError(t, a.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := a.conn.ReadMessage()
	assert.Error(t, err)
}

// TestWebSocket_StopWithMatchedRoom 對戰中停止 Hub：斷線處理向對手廣播不會 panic
func TestWebSocket_StopWithMatchedRoom(t *testing.T) {
	s := newTestServer(t, "", internal.WithCodeGenerator(func() string { return "K3F9" }))
	a := s.dial(t)
	b := s.dial(t)

	a.send(t, internal.EventCreateGame, nil)
	a.readUntil(t, internal.EventWaitingForPlayer)
	b.send(t, internal.EventJoinGame, "K3F9")
	a.readUntil(t, internal.EventGameStart)
	b.readUntil(t, internal.EventGameStart)
	require.Equal(t, 1, s.manager.RoomCount())

	assert.NotPanics(t, s.hub.Stop)

	assert.Zero(t, s.hub.ConnectionCount())
	assert.Zero(t, s.manager.RoomCount())

	// 已停止的 Hub 再次停止與 Emit 都是安全的
	assert.NotPanics(t, s.hub.Stop)
	assert.NotPanics(t, func() {
		s.hub.Emit(a.id, internal.Message{Event: internal.EventGameStart})
	})
}

func TestWebSocket_EmitUnknownConnection(t *testing.T) {
	s := newTestServer(t, "")
	assert.NotPanics(t, func() {
		s.hub.Emit("missing", internal.Message{Event: internal.EventGameStart})
	})
}
