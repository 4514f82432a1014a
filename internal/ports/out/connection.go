package out

import "github.com/EthanQC/warpong/internal/domain/entity"

// Connection 实时连接
type Connection interface {
	// ID 连接标识
	ID() entity.ConnID
	// RemoteAddr 对端地址
	RemoteAddr() string
	// Send 非阻塞写入发送缓冲
	Send(message []byte) error
	// Close 关闭连接
	Close() error
}

// ConnectionManager 连接管理器
type ConnectionManager interface {
	// Register 注册连接
	Register(conn Connection) error
	// Unregister 注销连接
	Unregister(id entity.ConnID) error
	// SendTo 发给指定连接
	SendTo(id entity.ConnID, message []byte) error
	// Broadcast 发给除 except 外的全部连接，返回成功写入的数量
	Broadcast(message []byte, except entity.ConnID) int
	// Count 当前连接数
	Count() int
}
