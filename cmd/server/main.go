package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/koopa0/system-design/14-arena-rooms/internal"
)

func main() {
	// 解析命令行參數
	var (
		configPath = flag.String("config", "config.yaml", "配置檔案路徑")
		port       = flag.Int("port", 0, "服務器端口（覆蓋配置檔案）")
		logLevel   = flag.String("log-level", "", "日誌級別 (debug, info, warn, error)")
		logFormat  = flag.String("log-format", "", "日誌格式 (text, json)")
	)
	flag.Parse()

	cfg, err := internal.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "載入配置失敗: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)

	if err := run(cfg, logger); err != nil {
		logger.Error("服務器異常結束", "error", err)
		os.Exit(1)
	}
}

func run(cfg *internal.Config, logger *slog.Logger) error {
	// 生命週期通知（可選）
	var notifier *internal.Notifier
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		publisher, err := internal.NewRedisPublisher(ctx, rdb, cfg.Redis.Channel)
		cancel()
		if err != nil {
			// 遊戲不依賴 Redis，連不上就只關閉通知
			logger.Warn("Redis 無法連線，停用生命週期通知", "addr", cfg.Redis.Addr, "error", err)
		} else {
			notifier = internal.NewNotifier(publisher, logger, 1024)
			logger.Info("生命週期通知已啟用", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
		}
	}

	// GaugeFunc 只在抓取時呼叫，hub 在下面才建立
	var (
		manager *internal.Manager
		hub     *internal.WebSocketHub
		metrics *internal.Metrics
		session *internal.SessionHandler
	)
	metrics = internal.NewMetrics(
		func() int { return manager.RoomCount() },
		func() int { return hub.ConnectionCount() },
	)

	opts := append(cfg.ManagerOptions(),
		internal.WithRemoveHook(func(code, reason string) {
			metrics.RoomRemoved(reason)
			notifier.Notify(internal.LifecycleEvent{
				Type:     internal.LifecycleRoomClosed,
				RoomCode: code,
				Reason:   reason,
			})
		}),
		// 只有已存在的房間會被清理，房間建立前 session 已指派
		internal.WithEvictHook(func(code string, members []string) {
			session.RoomEvicted(code, members)
		}),
	)
	manager = internal.NewManager(logger, opts...)

	hub = internal.NewWebSocketHub(logger, cfg.HubConfig(metrics))
	session = internal.NewSessionHandler(manager, hub, logger,
		internal.WithMetrics(metrics),
		internal.WithNotifier(notifier),
	)
	hub.Attach(session)

	handler := internal.NewHandler(manager, hub, metrics, cfg.Server.StaticDir, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("對戰房間服務器啟動",
			"port", cfg.Server.Port,
			"log_level", cfg.Log.Level,
			"idle_ttl", cfg.Room.IdleTTL)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待中斷信號
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-sigChan:
	}

	logger.Info("收到關閉信號，開始優雅關閉...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 停止接受新連接
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服務器關閉失敗", "error", err)
	}

	// 關閉所有連接（斷線處理會清空房間），之後才停止通知
	hub.Stop()
	manager.Stop()
	notifier.Stop()

	logger.Info("服務器已關閉")
	return nil
}

// setupLogger 設置日誌
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: level == "debug", // debug 模式顯示源碼位置
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
