package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/EthanQC/warpong/internal/domain/entity"
	"github.com/EthanQC/warpong/internal/ports/out"
	apperrors "github.com/EthanQC/warpong/pkg/errors"
)

// snapshot 落盘格式 {"users": [...], "messages": [...]}
type snapshot struct {
	Users    []*entity.User    `json:"users"`
	Messages []*entity.Message `json:"messages"`
}

// Store 单 JSON 文件存储，每次变更整体重写，写入先落临时文件再 rename
type Store struct {
	path string

	mu       sync.Mutex
	users    []*entity.User
	index    map[string]int // username -> users 下标
	messages []*entity.Message
}

var _ out.Storage = (*Store)(nil)

// NewStore 打开或创建快照文件
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, index: make(map[string]int)}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.Storage("file.mkdir", err)
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := s.flushLocked(); err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		return nil, apperrors.Storage("file.read", err)
	}

	var snap snapshot
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, apperrors.Storage("file.decode", err)
		}
	}
	for _, u := range snap.Users {
		if u == nil || u.Username == "" {
			continue
		}
		if _, dup := s.index[u.Username]; dup {
			zap.L().Warn("duplicate username in snapshot, keeping first", zap.String("username", u.Username))
			continue
		}
		s.index[u.Username] = len(s.users)
		s.users = append(s.users, u)
	}
	for _, m := range snap.Messages {
		if m != nil {
			s.messages = append(s.messages, m)
		}
	}
	zap.L().Info("file store loaded",
		zap.String("path", path),
		zap.Int("users", len(s.users)),
		zap.Int("messages", len(s.messages)))
	return s, nil
}

func (s *Store) FindUser(ctx context.Context, username string) (*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Storage("file.find_user", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[username]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return s.users[i].Clone(), nil
}

func (s *Store) CreateUser(ctx context.Context, user *entity.User) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Storage("file.create_user", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[user.Username]; ok {
		return apperrors.ErrDuplicateUsername
	}
	s.index[user.Username] = len(s.users)
	s.users = append(s.users, user.Clone())
	if err := s.flushLocked(); err != nil {
		s.users = s.users[:len(s.users)-1]
		delete(s.index, user.Username)
		return err
	}
	return nil
}

func (s *Store) UpsertUser(ctx context.Context, user *entity.User) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Storage("file.upsert_user", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.index[user.Username]; ok {
		old := s.users[i]
		s.users[i] = user.Clone()
		if err := s.flushLocked(); err != nil {
			s.users[i] = old
			return err
		}
		return nil
	}
	s.index[user.Username] = len(s.users)
	s.users = append(s.users, user.Clone())
	if err := s.flushLocked(); err != nil {
		s.users = s.users[:len(s.users)-1]
		delete(s.index, user.Username)
		return err
	}
	return nil
}

func (s *Store) SetStatus(ctx context.Context, username string, status entity.UserStatus, lastSeen time.Time) error {
	return s.mutateUser(ctx, "file.set_status", username, func(u *entity.User) {
		u.Status = status
		u.LastSeen = lastSeen
	})
}

func (s *Store) SetLocation(ctx context.Context, username string, loc entity.Location) error {
	return s.mutateUser(ctx, "file.set_location", username, func(u *entity.User) {
		l := loc
		u.Location = &l
	})
}

// mutateUser 在副本上修改，落盘成功后才替换
func (s *Store) mutateUser(ctx context.Context, op, username string, fn func(*entity.User)) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Storage(op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[username]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	old := s.users[i]
	next := old.Clone()
	fn(next)
	s.users[i] = next
	if err := s.flushLocked(); err != nil {
		s.users[i] = old
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Storage("file.list_users", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]*entity.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u.Clone())
	}
	return users, nil
}

func (s *Store) AppendMessage(ctx context.Context, msg *entity.Message) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Storage("file.append_message", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m := *msg
	s.messages = append(s.messages, &m)
	if err := s.flushLocked(); err != nil {
		s.messages = s.messages[:len(s.messages)-1]
		return err
	}
	return nil
}

func (s *Store) ListConversation(ctx context.Context, a, b string, limit int) ([]*entity.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Storage("file.list_conversation", err)
	}
	s.mu.Lock()
	var conv []*entity.Message
	for _, m := range s.messages {
		if m.Between(a, b) {
			c := *m
			conv = append(conv, &c)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(conv, func(i, j int) bool { return conv[i].Timestamp.Before(conv[j].Timestamp) })
	if limit > 0 && len(conv) > limit {
		conv = conv[len(conv)-limit:]
	}
	return conv, nil
}

func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// flushLocked 调用方需持有 mu
func (s *Store) flushLocked() error {
	snap := snapshot{Users: s.users, Messages: s.messages}
	if snap.Users == nil {
		snap.Users = []*entity.User{}
	}
	if snap.Messages == nil {
		snap.Messages = []*entity.Message{}
	}
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return apperrors.Storage("file.encode", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return apperrors.Storage("file.write", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.Storage("file.write", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.Storage("file.write", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return apperrors.Storage("file.rename", fmt.Errorf("%s: %w", s.path, err))
	}
	return nil
}
