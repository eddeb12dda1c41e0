package internal_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-arena-rooms/internal"
	"github.com/koopa0/system-design/14-arena-rooms/internal/testutils"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

// TestHandler_Health 測試健康檢查
func TestHandler_Health(t *testing.T) {
	s := newTestServer(t, "")

	w := get(t, s.handler.Routes(), "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	resp := decodeBody(t, w)
	assert.Equal(t, "healthy", resp["status"])
	assert.NotZero(t, resp["time"])
}

// TestHandler_Stats 測試統計資訊
func TestHandler_Stats(t *testing.T) {
	s := newTestServer(t, "")
	h := internal.NewSessionHandler(s.manager, newRecorder(), testutils.Logger())
	h.CreateGame("a")
	h.CreateGame("b")

	w := get(t, s.handler.Routes(), "/stats")

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, float64(2), resp["total_rooms"])
	assert.Equal(t, float64(2), resp["total_players"])
	assert.Equal(t, float64(0), resp["connections"])

	byStatus, ok := resp["by_status"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), byStatus["waiting"])
}

func TestHandler_RoomDetail(t *testing.T) {
	s := newTestServer(t, "", internal.WithCodeGenerator(func() string { return "K3F9" }))
	out := newRecorder()
	h := internal.NewSessionHandler(s.manager, out, testutils.Logger())
	h.CreateGame("a")
	h.JoinGame("b", "K3F9")

	tests := []struct {
		name           string
		path           string
		expectedStatus int
		validate       func(t *testing.T, resp map[string]any)
	}{
		{
			name:           "existing room",
			path:           "/rooms/K3F9",
			expectedStatus: http.StatusOK,
			validate: func(t *testing.T, resp map[string]any) {
				assert.Equal(t, "K3F9", resp["code"])
				assert.Equal(t, "playing", resp["status"])
				assert.Equal(t, float64(2), resp["players"])
				assert.Empty(t, resp["revealed_groups"])
			},
		},
		{
			name:           "missing room",
			path:           "/rooms/ZZZZ",
			expectedStatus: http.StatusNotFound,
			validate: func(t *testing.T, resp map[string]any) {
				assert.Equal(t, "La sala no existe.", resp["error"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, s.handler.Routes(), tt.path)
			assert.Equal(t, tt.expectedStatus, w.Code)
			tt.validate(t, decodeBody(t, w))
		})
	}
}

// TestHandler_Metrics 事件會反映在 Prometheus 指標上
func TestHandler_Metrics(t *testing.T) {
	s := newTestServer(t, "", internal.WithCodeGenerator(func() string { return "K3F9" }))
	out := newRecorder()
	h := internal.NewSessionHandler(s.manager, out, testutils.Logger(), internal.WithMetrics(s.metrics))

	h.Dispatch("a", []byte(`{"event":"createGame"}`))
	h.Dispatch("b", []byte(`{"event":"joinGame","data":"K3F9"}`))
	h.Dispatch("c", []byte(`{"event":"joinGame","data":"K3F9"}`))
	h.Dispatch("c", []byte(`{"event":"joinGame","data":"NONE"}`))
	h.Dispatch("a", []byte(`{"event":"requestRestart"}`))

	w := get(t, s.handler.Routes(), "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()

	assert.Contains(t, body, `arena_events_received_total{event="joinGame"} 3`)
	assert.Contains(t, body, `arena_join_rejected_total{reason="full"} 1`)
	assert.Contains(t, body, `arena_join_rejected_total{reason="not_found"} 1`)
	assert.Contains(t, body, `arena_games_started_total 1`)
	assert.Contains(t, body, `arena_games_restarted_total 1`)
	assert.Contains(t, body, `arena_rooms_active 1`)
	assert.Contains(t, body, `arena_connections_active 0`)
}

func TestHandler_StaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>arena</h1>"), 0o600))

	s := newTestServer(t, dir)

	w := get(t, s.handler.Routes(), "/")
	assert.Equal(t, http.StatusOK, w.Code)
	body, _ := io.ReadAll(w.Body)
	assert.Contains(t, string(body), "arena")

	// 沒有設定靜態目錄時不提供
	bare := newTestServer(t, "")
	assert.Equal(t, http.StatusNotFound, get(t, bare.handler.Routes(), "/").Code)
}
