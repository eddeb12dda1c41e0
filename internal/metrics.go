package internal

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 遊戲伺服器指標
//
// 所有方法都允許 nil receiver，未接上指標時直接略過。
type Metrics struct {
	registry *prometheus.Registry

	events       *prometheus.CounterVec
	joinRejects  *prometheus.CounterVec
	walls        prometheus.Counter
	started      prometheus.Counter
	over         prometheus.Counter
	restarts     prometheus.Counter
	dropped      prometheus.Counter
	roomsRemoved *prometheus.CounterVec
}

// NewMetrics 在獨立的 Registry 上註冊指標
//
// rooms / connections 由 GaugeFunc 讀取即時狀態，房間碼覆蓋也不會讓數字失準。
func NewMetrics(rooms, connections func() int) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "events_received_total",
			Help:      "客戶端事件數量",
		}, []string{"event"}),
		joinRejects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "join_rejected_total",
			Help:      "加入房間失敗次數",
		}, []string{"reason"}),
		walls: f.NewCounter(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "wall_groups_revealed_total",
			Help:      "揭露的牆群組數量",
		}),
		started: f.NewCounter(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "games_started_total",
			Help:      "開始的對戰數量",
		}),
		over: f.NewCounter(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "games_over_total",
			Help:      "遊戲結束廣播次數",
		}),
		restarts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "games_restarted_total",
			Help:      "重新開始次數",
		}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "messages_dropped_total",
			Help:      "因連接緩衝區滿而丟棄的訊息",
		}),
		roomsRemoved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "rooms_removed_total",
			Help:      "移除的房間數量",
		}, []string{"reason"}),
	}

	if rooms != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "arena",
			Name:      "rooms_active",
			Help:      "目前的房間數量",
		}, func() float64 { return float64(rooms()) })
	}
	if connections != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "arena",
			Name:      "connections_active",
			Help:      "目前的 WebSocket 連接數",
		}, func() float64 { return float64(connections()) })
	}

	return m
}

// Handler 以 Prometheus 格式輸出指標
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 底層 Registry（測試用）
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) eventReceived(event string) {
	if m != nil {
		m.events.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) joinRejected(err error) {
	if m == nil {
		return
	}
	reason := "not_found"
	if errors.Is(err, ErrRoomFull) {
		reason = "full"
	}
	m.joinRejects.WithLabelValues(reason).Inc()
}

func (m *Metrics) wallRevealed() {
	if m != nil {
		m.walls.Inc()
	}
}

func (m *Metrics) gameStarted() {
	if m != nil {
		m.started.Inc()
	}
}

func (m *Metrics) gameOver() {
	if m != nil {
		m.over.Inc()
	}
}

func (m *Metrics) gameRestarted() {
	if m != nil {
		m.restarts.Inc()
	}
}

func (m *Metrics) messageDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}

// RoomRemoved 記錄房間移除原因（接在 Manager 的 remove hook 上）
func (m *Metrics) RoomRemoved(reason string) {
	if m != nil {
		m.roomsRemoved.WithLabelValues(reason).Inc()
	}
}
