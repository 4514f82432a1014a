package out

import (
	"context"
	"time"

	"github.com/EthanQC/warpong/internal/domain/entity"
)

// Storage 用户与消息的持久化接口，文件/MySQL/Mongo 后端实现同一语义
type Storage interface {
	// FindUser 按用户名查找，不存在返回 ErrUserNotFound
	FindUser(ctx context.Context, username string) (*entity.User, error)
	// CreateUser 原子地插入新用户，用户名已存在返回 ErrDuplicateUsername 且不修改原记录
	CreateUser(ctx context.Context, user *entity.User) error
	// UpsertUser 整条写入
	UpsertUser(ctx context.Context, user *entity.User) error
	// SetStatus 只更新 status 与 lastSeen
	SetStatus(ctx context.Context, username string, status entity.UserStatus, lastSeen time.Time) error
	// SetLocation 只更新 location
	SetLocation(ctx context.Context, username string, loc entity.Location) error
	// ListUsers 全部用户
	ListUsers(ctx context.Context) ([]*entity.User, error)
	// AppendMessage 追加一条不可变消息
	AppendMessage(ctx context.Context, msg *entity.Message) error
	// ListConversation a 与 b 的双向会话中最近 limit 条，按时间正序
	ListConversation(ctx context.Context, a, b string, limit int) ([]*entity.Message, error)
	// Close 释放底层资源
	Close(ctx context.Context) error
}
