package out

import "github.com/EthanQC/warpong/internal/domain/entity"

// PresenceRegistry 进程内在线表 username -> connID
type PresenceRegistry interface {
	// SetOnline 绑定连接，后登录者覆盖，返回被覆盖的旧连接
	SetOnline(username string, conn entity.ConnID) (prev entity.ConnID, replaced bool)
	// Get 查询用户当前连接
	Get(username string) (entity.ConnID, bool)
	// RemoveIfOwner 仅当记录的连接等于 conn 时删除
	RemoveIfOwner(username string, conn entity.ConnID) bool
	// Online 当前在线用户名
	Online() []string
	// Len 在线人数
	Len() int
}
