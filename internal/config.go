package internal

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port         int           `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		StaticDir    string        `yaml:"static_dir"` // 空字串表示不提供靜態檔案
	} `yaml:"server"`

	Room struct {
		IdleTTL         time.Duration `yaml:"idle_ttl"` // 0 表示永不清理
		CleanupInterval time.Duration `yaml:"cleanup_interval"`
		Seed            uint64        `yaml:"seed"` // 0 表示隨機
	} `yaml:"room"`

	WebSocket struct {
		SendBuffer     int           `yaml:"send_buffer"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		PongWait       time.Duration `yaml:"pong_wait"`
		WriteWait      time.Duration `yaml:"write_wait"`
		MaxMessageSize int64         `yaml:"max_message_size"`
	} `yaml:"websocket"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Channel  string `yaml:"channel"`
	} `yaml:"redis"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DefaultConfig 返回預設配置
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Port = 3000
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second

	cfg.Room.CleanupInterval = time.Minute

	// 54s Ping / 60s 超時，與 Hub 原本的心跳設定相同
	cfg.WebSocket.SendBuffer = 256
	cfg.WebSocket.PingInterval = 54 * time.Second
	cfg.WebSocket.PongWait = 60 * time.Second
	cfg.WebSocket.WriteWait = 10 * time.Second
	cfg.WebSocket.MaxMessageSize = 4096

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.Channel = "arena:rooms"

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	return cfg
}

// LoadConfig 載入配置檔案
//
// 以 DefaultConfig 為底覆蓋檔案內容；path 為空或檔案不存在時只用預設值。
// REDIS_ADDR 環境變數優先於檔案（部署時常用）。
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		// #nosec G304 - path 來自命令列參數
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 檢查配置
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("websocket send_buffer must be positive")
	}
	if c.WebSocket.PingInterval >= c.WebSocket.PongWait {
		return fmt.Errorf("websocket ping_interval (%s) must be shorter than pong_wait (%s)",
			c.WebSocket.PingInterval, c.WebSocket.PongWait)
	}
	if c.Room.IdleTTL < 0 {
		return fmt.Errorf("room idle_ttl must not be negative")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis enabled without addr")
	}
	return nil
}

// ManagerOptions 由配置產生 Manager 選項
func (c *Config) ManagerOptions() []ManagerOption {
	var opts []ManagerOption
	if c.Room.Seed != 0 {
		opts = append(opts, WithSeed(c.Room.Seed))
	}
	if c.Room.IdleTTL > 0 {
		opts = append(opts, WithIdleTTL(c.Room.IdleTTL, c.Room.CleanupInterval))
	}
	return opts
}
