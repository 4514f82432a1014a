package in

import (
	"context"

	"github.com/EthanQC/warpong/internal/domain/entity"
)

// RegisterRequest 注册参数
type RegisterRequest struct {
	Username    string
	Password    string
	DisplayName string
}

// LoginResult 登录结果
type LoginResult struct {
	Token string
	User  entity.PublicUser
}

// AccountUseCase HTTP 侧账号与查询用例
type AccountUseCase interface {
	// Register 注册，用户名冲突返回 ErrDuplicateUsername
	Register(ctx context.Context, req RegisterRequest) (*entity.PublicUser, error)
	// Login 校验密码并签发令牌，同时标记在线
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	// UpdateLocation 凭令牌更新位置
	UpdateLocation(ctx context.Context, token string, loc entity.Location) error
	// ListUsers 全部用户的公开视图
	ListUsers(ctx context.Context) ([]entity.PublicUser, error)
	// Conversation 双向会话最近 50 条，时间正序
	Conversation(ctx context.Context, a, b string) ([]*entity.Message, error)
}
