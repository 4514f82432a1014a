package zlog

import (
	"context"

	"go.uber.org/zap"
)

type loggerKey struct{}

// WithContext 绑定 logger 到 ctx，l 为 nil 时原样返回
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, l)
}

// With 在 ctx 当前 logger 上追加字段
func With(ctx context.Context, fields ...zap.Field) context.Context {
	return WithContext(ctx, C(ctx).With(fields...))
}

// C 取 ctx 绑定的 logger，未绑定时用全局 logger
func C(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return zap.L()
	}
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return l
	}
	return zap.L()
}
