package zlog

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zapcore"
)

var logCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "warpong_log_entries_total",
		Help: "Number of log entries by level.",
	},
	[]string{"service", "level"},
)

// RegisterMetrics 在 main 里把日志计数器挂到 registry
func RegisterMetrics(reg prometheus.Registerer) error {
	return reg.Register(logCounter)
}

// metricsCore 装饰 zapcore.Core，只统计真正会被写出的条目
type metricsCore struct {
	zapcore.Core
	service string
}

func (m metricsCore) With(fields []zapcore.Field) zapcore.Core {
	return metricsCore{Core: m.Core.With(fields), service: m.service}
}

func (m metricsCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if m.Enabled(ent.Level) {
		logCounter.WithLabelValues(m.service, ent.Level.String()).Inc()
	}
	return m.Core.Check(ent, ce)
}
