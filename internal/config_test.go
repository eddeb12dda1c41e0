package internal_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-arena-rooms/internal"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := internal.DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Zero(t, cfg.Room.IdleTTL, "idle sweep disabled by default")
	assert.Equal(t, 54*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.WebSocket.PongWait)
	assert.False(t, cfg.Redis.Enabled)
	assert.Empty(t, cfg.ManagerOptions())
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")

	path := writeConfig(t, `
server:
  port: 8081
room:
  idle_ttl: 10m
  cleanup_interval: 30s
  seed: 7
redis:
  enabled: true
  addr: redis:6379
  channel: test:rooms
log:
  level: debug
  format: json
`)

	cfg, err := internal.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 10*time.Minute, cfg.Room.IdleTTL)
	assert.Equal(t, 30*time.Second, cfg.Room.CleanupInterval)
	assert.Equal(t, uint64(7), cfg.Room.Seed)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "test:rooms", cfg.Redis.Channel)
	assert.Equal(t, "debug", cfg.Log.Level)

	// 未寫到的欄位保留預設值
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 256, cfg.WebSocket.SendBuffer)

	assert.Len(t, cfg.ManagerOptions(), 2)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")

	cfg, err := internal.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, internal.DefaultConfig(), cfg)

	cfg, err = internal.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadConfig_RedisAddrEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache.internal:6380")

	cfg, err := internal.LoadConfig("")
	require.NoError(t, err)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache.internal:6380", cfg.Redis.Addr)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")

	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"bad yaml", "server: [", "parse config"},
		{"bad port", "server:\n  port: 70000\n", "invalid server port"},
		{"ping not shorter than pong", "websocket:\n  ping_interval: 60s\n  pong_wait: 60s\n", "ping_interval"},
		{"negative ttl", "room:\n  idle_ttl: -1s\n", "idle_ttl"},
		{"zero send buffer", "websocket:\n  send_buffer: 0\n", "send_buffer"},
		{"redis without addr", "redis:\n  enabled: true\n  addr: \"\"\n", "redis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := internal.LoadConfig(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
