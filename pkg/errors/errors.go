package errors

import (
	"errors"
	"fmt"
)

var (
	// 校验相关
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidLocation   = errors.New("invalid location")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidPassword   = errors.New("invalid password")

	// 认证相关
	ErrInvalidToken         = errors.New("invalid token")
	ErrNotAuthenticated     = errors.New("login required")
	ErrAlreadyAuthenticated = errors.New("connection already logged in as another user")
	ErrSessionClosed        = errors.New("session closed")

	// 存储相关
	ErrStorage = errors.New("storage failure")
)

// Kind 错误分类
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuth
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// KindOf 按错误链判断分类
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrStorage):
		return KindStorage
	case errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrNotAuthenticated),
		errors.Is(err, ErrAlreadyAuthenticated),
		errors.Is(err, ErrSessionClosed):
		return KindAuth
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidLocation),
		errors.Is(err, ErrDuplicateUsername),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrInvalidPassword):
		return KindValidation
	default:
		return KindUnknown
	}
}

// Storage 把后端错误包装成 StorageError，保留原始错误链
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// Is / As 透传标准库，调用方只引一个包即可
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
