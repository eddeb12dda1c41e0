// Package testutils 提供測試用的共用工具
//
// 目前只有 Redis 測試容器，用來驗證生命週期事件確實發布到頻道上。
// 容器會在測試結束時自動清理。
package testutils

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// RedisEnvironment 封裝 Redis 測試環境
type RedisEnvironment struct {
	Client    *redis.Client
	Container tc.Container
	Addr      string
}

// SetupRedis 啟動 Redis 容器並建立客戶端
//
// 使用範例：
//
//	func TestSomething(t *testing.T) {
//	    env := testutils.SetupRedis(t)
//	    // 使用 env.Client
//	}
func SetupRedis(t testing.TB) *RedisEnvironment {
	t.Helper()

	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}

	env := &RedisEnvironment{Container: container}
	t.Cleanup(env.Cleanup)

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}
	env.Addr = endpoint

	env.Client = redis.NewClient(&redis.Options{
		Addr:         endpoint,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := env.Client.Ping(pingCtx).Err(); err != nil {
		t.Fatalf("failed to ping redis: %v", err)
	}

	return env
}

// Cleanup 關閉客戶端並停止容器
func (env *RedisEnvironment) Cleanup() {
	if env.Client != nil {
		_ = env.Client.Close()
	}
	if env.Container != nil {
		_ = env.Container.Terminate(context.Background())
	}
}

// Logger 測試用日誌（丟棄輸出，減少噪音）
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
