package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// 系統設計問題：
//   如何讓外部系統（統計、排行榜、監控）得知房間生命週期，又不拖慢遊戲事件？
//
// 設計方案：
//   ✅ Redis Pub/Sub - 發布即忘，沒有訂閱者也不影響
//   ✅ 異步佇列 - 事件處理只做 channel 送入，網路 I/O 在 worker
//   ✅ 佇列滿就丟棄 - 遊戲可用性優先於通知完整性

// LifecycleType 生命週期事件類型
type LifecycleType string

const (
	LifecycleRoomCreated LifecycleType = "room_created"
	LifecycleGameStarted LifecycleType = "game_started"
	LifecycleGameOver    LifecycleType = "game_over"
	LifecycleGameReset   LifecycleType = "game_reset"
	LifecycleRoomClosed  LifecycleType = "room_closed"
)

// LifecycleEvent 房間生命週期事件
type LifecycleEvent struct {
	Type     LifecycleType `json:"type"`
	RoomCode string        `json:"room_code"`
	ConnID   string        `json:"conn_id,omitempty"`
	VictimID string        `json:"victim_id,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	At       time.Time     `json:"at"`
}

// Publisher 發布生命週期事件
type Publisher interface {
	Publish(ctx context.Context, event LifecycleEvent) error
}

// RedisPublisher 以 Redis PUBLISH 發布事件
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

// NewRedisPublisher 建立發布者並確認連線
func NewRedisPublisher(ctx context.Context, rdb *redis.Client, channel string) (*RedisPublisher, error) {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisPublisher{rdb: rdb, channel: channel}, nil
}

// Publish 序列化並發布到頻道
func (p *RedisPublisher) Publish(ctx context.Context, event LifecycleEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal lifecycle event: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", p.channel, err)
	}
	return nil
}

// Notifier 生命週期事件的異步佇列
//
// nil *Notifier 的 Notify 是 no-op，未啟用 Redis 時不需要判斷。
type Notifier struct {
	publisher Publisher
	logger    *slog.Logger
	timeout   time.Duration

	queue    chan LifecycleEvent
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewNotifier 啟動發布 worker
func NewNotifier(publisher Publisher, logger *slog.Logger, bufferSize int) *Notifier {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	n := &Notifier{
		publisher: publisher,
		logger:    logger,
		timeout:   time.Second,
		queue:     make(chan LifecycleEvent, bufferSize),
	}

	n.wg.Add(1)
	go n.worker()

	return n
}

// Notify 非阻塞送入佇列
func (n *Notifier) Notify(event LifecycleEvent) {
	if n == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}

	select {
	case n.queue <- event:
	default:
		n.logger.Warn("生命週期佇列已滿，丟棄事件", "type", event.Type, "room_code", event.RoomCode)
	}
}

// Stop 停止 worker，佇列中剩餘事件發布完才返回
//
// Stop 之後不可再呼叫 Notify。
func (n *Notifier) Stop() {
	if n == nil {
		return
	}
	n.stopOnce.Do(func() {
		close(n.queue)
	})
	n.wg.Wait()
}

func (n *Notifier) worker() {
	defer n.wg.Done()

	for event := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		if err := n.publisher.Publish(ctx, event); err != nil {
			n.logger.Error("發布生命週期事件失敗", "type", event.Type, "room_code", event.RoomCode, "error", err)
		}
		cancel()
	}
}
