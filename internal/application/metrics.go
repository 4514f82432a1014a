package application

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/EthanQC/warpong/internal/ports/out"
)

// Metrics 实时通道指标
type Metrics struct {
	events     *prometheus.CounterVec
	deliveries *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warpong_realtime_events_total",
			Help: "Realtime events handled, by event type and result.",
		}, []string{"event", "result"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warpong_deliveries_total",
			Help: "Outbound realtime frames, by delivery kind.",
		}, []string{"kind"}),
	}
}

// Register 注册计数器，并用 GaugeFunc 暴露在线人数与连接数
func (m *Metrics) Register(reg prometheus.Registerer, registry out.PresenceRegistry, conns out.ConnectionManager) error {
	collectors := []prometheus.Collector{
		m.events,
		m.deliveries,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "warpong_online_users",
			Help: "Usernames currently bound to a live connection.",
		}, func() float64 { return float64(registry.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "warpong_ws_connections",
			Help: "Open realtime connections.",
		}, func() float64 { return float64(conns.Count()) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) event(event, result string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event, result).Inc()
}

func (m *Metrics) delivered(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.deliveries.WithLabelValues(kind).Add(float64(n))
}
