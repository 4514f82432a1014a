package application

import (
	"go.uber.org/zap"

	"github.com/EthanQC/warpong/internal/domain/entity"
	"github.com/EthanQC/warpong/internal/domain/protocol"
	"github.com/EthanQC/warpong/internal/ports/out"
)

// Delivery 决定每个事件发给谁：广播或按在线表单播，不重试不排队
type Delivery struct {
	conns    out.ConnectionManager
	registry out.PresenceRegistry
	metrics  *Metrics
}

func NewDelivery(conns out.ConnectionManager, registry out.PresenceRegistry, metrics *Metrics) *Delivery {
	return &Delivery{conns: conns, registry: registry, metrics: metrics}
}

// Broadcast 发给除 except 外的所有连接，返回送达数
func (d *Delivery) Broadcast(t protocol.Type, data any, except entity.ConnID) int {
	frame, err := protocol.Encode(t, data)
	if err != nil {
		zap.L().Error("encode broadcast frame failed", zap.String("type", string(t)), zap.Error(err))
		return 0
	}
	n := d.conns.Broadcast(frame, except)
	d.metrics.delivered("broadcast", n)
	return n
}

// Unicast 收件人在线则推送到其当前连接，否则丢弃
func (d *Delivery) Unicast(username string, t protocol.Type, data any) bool {
	id, ok := d.registry.Get(username)
	if !ok {
		d.metrics.delivered("dropped", 1)
		return false
	}
	frame, err := protocol.Encode(t, data)
	if err != nil {
		zap.L().Error("encode unicast frame failed", zap.String("type", string(t)), zap.Error(err))
		return false
	}
	if err := d.conns.SendTo(id, frame); err != nil {
		zap.L().Warn("unicast failed",
			zap.String("to", username),
			zap.String("conn_id", string(id)),
			zap.Error(err))
		d.metrics.delivered("dropped", 1)
		return false
	}
	d.metrics.delivered("unicast", 1)
	return true
}

// Reply 回给发起方自己的连接
func (d *Delivery) Reply(conn out.Connection, t protocol.Type, data any) {
	frame, err := protocol.Encode(t, data)
	if err != nil {
		zap.L().Error("encode reply frame failed", zap.String("type", string(t)), zap.Error(err))
		return
	}
	if err := conn.Send(frame); err != nil {
		zap.L().Debug("reply dropped", zap.String("conn_id", string(conn.ID())), zap.Error(err))
		return
	}
	d.metrics.delivered("reply", 1)
}
