package in

import (
	"context"

	"github.com/EthanQC/warpong/internal/domain/entity"
	"github.com/EthanQC/warpong/internal/domain/session"
	"github.com/EthanQC/warpong/internal/ports/out"
)

// Session 单条实时连接的会话，由读协程顺序驱动
type Session interface {
	// HandleFrame 处理一帧客户端数据
	HandleFrame(ctx context.Context, frame []byte)
	// Login 绑定用户名
	Login(ctx context.Context, username string) error
	// SendLocation 上报位置并广播
	SendLocation(ctx context.Context, loc entity.Location) error
	// SendMessage 发送私信
	SendMessage(ctx context.Context, to, body string) error
	// Close 传输层断开，重复调用无副作用
	Close(ctx context.Context)
	State() session.State
	Username() string
}

// RealtimeUseCase 会话工厂与统计
type RealtimeUseCase interface {
	// Open 为新连接创建会话
	Open(conn out.Connection) Session
	// OnlineUsers 当前在线用户
	OnlineUsers() []string
}
