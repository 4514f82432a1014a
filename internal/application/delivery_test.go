package application

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EthanQC/warpong/internal/adapters/out/memory"
	"github.com/EthanQC/warpong/internal/domain/protocol"
)

func TestDeliveryBroadcastAndUnicast(t *testing.T) {
	hub := newFakeHub()
	registry := memory.NewPresenceRegistry()
	metrics := NewMetrics()
	d := NewDelivery(hub, registry, metrics)

	a, b := newFakeConn("a"), newFakeConn("b")
	_ = hub.Register(a)
	_ = hub.Register(b)
	registry.SetOnline("bob", b.ID())

	assert.Equal(t, 1, d.Broadcast(protocol.TypeUserOnline, "x", a.ID()))
	assert.Empty(t, a.ofType(t, protocol.TypeUserOnline))
	assert.Len(t, b.ofType(t, protocol.TypeUserOnline), 1)

	assert.True(t, d.Unicast("bob", protocol.TypeNewMessage, protocol.NewMessagePayload{Message: "m"}))
	assert.False(t, d.Unicast("nobody", protocol.TypeNewMessage, protocol.NewMessagePayload{}))

	// 在线表里有记录但连接已注销
	registry.SetOnline("ghost", "gone")
	assert.False(t, d.Unicast("ghost", protocol.TypeNewMessage, protocol.NewMessagePayload{}))

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.deliveries.WithLabelValues("dropped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.deliveries.WithLabelValues("unicast")))
}

func TestMetricsRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	hub := newFakeHub()
	registry := memory.NewPresenceRegistry()
	require.NoError(t, NewMetrics().Register(reg, registry, hub))

	registry.SetOnline("alice", "c1")
	_ = hub.Register(newFakeConn("c1"))
	_ = hub.Register(newFakeConn("c2"))

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		if len(f.GetMetric()) == 1 && f.GetMetric()[0].GetGauge() != nil {
			values[f.GetName()] = f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, 1.0, values["warpong_online_users"])
	assert.Equal(t, 2.0, values["warpong_ws_connections"])
}
