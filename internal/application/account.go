package application

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/EthanQC/warpong/internal/domain/entity"
	"github.com/EthanQC/warpong/internal/ports/in"
	"github.com/EthanQC/warpong/internal/ports/out"
	apperrors "github.com/EthanQC/warpong/pkg/errors"
	"github.com/EthanQC/warpong/pkg/jwt"
	"github.com/EthanQC/warpong/pkg/zlog"
)

const maxUsernameLen = 64

// AccountOptions 注册默认值
type AccountOptions struct {
	DefaultLocation entity.Location
	AvatarTemplate  string // %s 替换为转义后的用户名
	BcryptCost      int
	OpTimeout       time.Duration
}

// AccountService 注册、登录与查询
type AccountService struct {
	storage   out.Storage
	tokens    jwt.Manager
	publisher out.EventPublisher
	opts      AccountOptions
	now       func() time.Time
}

var _ in.AccountUseCase = (*AccountService)(nil)

func NewAccountService(storage out.Storage, tokens jwt.Manager, publisher out.EventPublisher, opts AccountOptions) *AccountService {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 5 * time.Second
	}
	return &AccountService{
		storage:   storage,
		tokens:    tokens,
		publisher: publisher,
		opts:      opts,
		now:       time.Now,
	}
}

func (s *AccountService) Register(ctx context.Context, req in.RegisterRequest) (*entity.PublicUser, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || len(username) > maxUsernameLen || req.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", apperrors.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.opts.BcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: password too long", apperrors.ErrInvalidInput)
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = username
	}
	loc := s.opts.DefaultLocation
	user := &entity.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		Status:       entity.StatusOffline,
		LastSeen:     s.now(),
		Location:     &loc,
		AvatarURL:    s.avatarURL(username),
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()
	if err := s.storage.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.publish(out.EventUserRegistered, username, map[string]any{"id": user.ID, "username": username})
	zlog.C(ctx).Info("user registered", zap.String("username", username), zap.String("user_id", user.ID))
	pub := user.Public()
	return &pub, nil
}

func (s *AccountService) Login(ctx context.Context, username, password string) (*in.LoginResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	user, err := s.storage.FindUser(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.ErrInvalidPassword
	}

	token, err := s.tokens.Generate(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	now := s.now()
	if err := s.storage.SetStatus(ctx, user.Username, entity.StatusOnline, now); err != nil {
		return nil, err
	}
	user.Status = entity.StatusOnline
	user.LastSeen = now

	return &in.LoginResult{Token: token, User: user.Public()}, nil
}

// UpdateLocation 令牌有效但用户已不存在时仍视为成功
func (s *AccountService) UpdateLocation(ctx context.Context, token string, loc entity.Location) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, err)
	}
	if err := loc.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()
	err = s.storage.SetLocation(ctx, claims.Username, loc)
	if errors.Is(err, apperrors.ErrUserNotFound) {
		zlog.C(ctx).Debug("location update for unknown user ignored", zap.String("username", claims.Username))
		return nil
	}
	return err
}

func (s *AccountService) ListUsers(ctx context.Context) ([]entity.PublicUser, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	users, err := s.storage.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]entity.PublicUser, 0, len(users))
	for _, u := range users {
		views = append(views, u.Public())
	}
	return views, nil
}

func (s *AccountService) Conversation(ctx context.Context, a, b string) ([]*entity.Message, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return nil, fmt.Errorf("%w: both usernames are required", apperrors.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()
	msgs, err := s.storage.ListConversation(ctx, a, b, entity.ConversationLimit)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []*entity.Message{}
	}
	return msgs, nil
}

func (s *AccountService) avatarURL(username string) string {
	if s.opts.AvatarTemplate == "" {
		return ""
	}
	return fmt.Sprintf(s.opts.AvatarTemplate, url.QueryEscape(username))
}

func (s *AccountService) publish(evtType, key string, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.OpTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, out.DomainEvent{
		Type: evtType, Key: key, Payload: payload, OccurredAt: s.now(),
	}); err != nil {
		zap.L().Warn("publish event failed", zap.String("type", evtType), zap.Error(err))
	}
}
