package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/EthanQC/warpong/internal/domain/entity"
	"github.com/EthanQC/warpong/internal/ports/out"
	apperrors "github.com/EthanQC/warpong/pkg/errors"
)

// UserModel users 表
type UserModel struct {
	ID           string    `gorm:"column:id;type:varchar(64);primaryKey"`
	Username     string    `gorm:"column:username;type:varchar(64);not null;uniqueIndex"`
	PasswordHash string    `gorm:"column:password_hash;type:varchar(255);not null"`
	DisplayName  string    `gorm:"column:display_name;type:varchar(128)"`
	Status       string    `gorm:"column:status;type:varchar(16);not null;default:offline"`
	LastSeen     time.Time `gorm:"column:last_seen;precision:3"`
	Lat          *float64  `gorm:"column:lat"`
	Lng          *float64  `gorm:"column:lng"`
	IsVIP        bool      `gorm:"column:is_vip;default:false"`
	AvatarURL    string    `gorm:"column:avatar_url;type:varchar(512)"`
}

func (UserModel) TableName() string {
	return "users"
}

func (m *UserModel) toEntity() *entity.User {
	u := &entity.User{
		ID:           m.ID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		DisplayName:  m.DisplayName,
		Status:       entity.UserStatus(m.Status),
		LastSeen:     m.LastSeen,
		IsVIP:        m.IsVIP,
		AvatarURL:    m.AvatarURL,
	}
	if m.Lat != nil && m.Lng != nil {
		u.Location = &entity.Location{Lat: *m.Lat, Lng: *m.Lng}
	}
	return u
}

func userModelFromEntity(u *entity.User) *UserModel {
	m := &UserModel{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		DisplayName:  u.DisplayName,
		Status:       string(u.Status),
		LastSeen:     u.LastSeen,
		IsVIP:        u.IsVIP,
		AvatarURL:    u.AvatarURL,
	}
	if u.Location != nil {
		lat, lng := u.Location.Lat, u.Location.Lng
		m.Lat, m.Lng = &lat, &lng
	}
	return m
}

// MessageModel messages 表，Seq 自增用于同一毫秒内的稳定排序
type MessageModel struct {
	Seq       uint64    `gorm:"column:seq;primaryKey;autoIncrement"`
	ID        string    `gorm:"column:id;type:varchar(64);not null;uniqueIndex"`
	FromUser  string    `gorm:"column:from_user;type:varchar(64);not null;index:idx_pair,priority:1"`
	ToUser    string    `gorm:"column:to_user;type:varchar(64);not null;index:idx_pair,priority:2"`
	Body      string    `gorm:"column:body;type:text;not null"`
	Timestamp time.Time `gorm:"column:ts;precision:3;not null;index"`
	IsRead    bool      `gorm:"column:is_read;default:false"`
}

func (MessageModel) TableName() string {
	return "messages"
}

func (m *MessageModel) toEntity() *entity.Message {
	return &entity.Message{
		ID:        m.ID,
		From:      m.FromUser,
		To:        m.ToUser,
		Body:      m.Body,
		Timestamp: m.Timestamp,
		IsRead:    m.IsRead,
	}
}

// Store gorm 实现，MySQL 生产使用，测试用 sqlite
type Store struct {
	db *gorm.DB
}

var _ out.Storage = (*Store)(nil)

// NewStore 建表后返回
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&UserModel{}, &MessageModel{}); err != nil {
		return nil, apperrors.Storage("db.migrate", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) FindUser(ctx context.Context, username string) (*entity.User, error) {
	var m UserModel
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Storage("db.find_user", err)
	}
	return m.toEntity(), nil
}

func (s *Store) CreateUser(ctx context.Context, user *entity.User) error {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(userModelFromEntity(user))
	if res.Error != nil {
		return apperrors.Storage("db.create_user", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrDuplicateUsername
	}
	return nil
}

func (s *Store) UpsertUser(ctx context.Context, user *entity.User) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "username"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"password_hash", "display_name", "status", "last_seen",
				"lat", "lng", "is_vip", "avatar_url",
			}),
		}).
		Create(userModelFromEntity(user)).Error
	if err != nil {
		return apperrors.Storage("db.upsert_user", err)
	}
	return nil
}

func (s *Store) SetStatus(ctx context.Context, username string, status entity.UserStatus, lastSeen time.Time) error {
	return s.updateUser(ctx, "db.set_status", username, map[string]interface{}{
		"status":    string(status),
		"last_seen": lastSeen,
	})
}

func (s *Store) SetLocation(ctx context.Context, username string, loc entity.Location) error {
	return s.updateUser(ctx, "db.set_location", username, map[string]interface{}{
		"lat": loc.Lat,
		"lng": loc.Lng,
	})
}

// updateUser 单条 UPDATE 保证字段级原子；MySQL 值未变时 RowsAffected 为 0，需要再确认记录存在
func (s *Store) updateUser(ctx context.Context, op, username string, fields map[string]interface{}) error {
	res := s.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("username = ?", username).
		Updates(fields)
	if res.Error != nil {
		return apperrors.Storage(op, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&UserModel{}).Where("username = ?", username).Count(&n).Error; err != nil {
		return apperrors.Storage(op, err)
	}
	if n == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*entity.User, error) {
	var models []UserModel
	if err := s.db.WithContext(ctx).Order("username ASC").Find(&models).Error; err != nil {
		return nil, apperrors.Storage("db.list_users", err)
	}
	users := make([]*entity.User, len(models))
	for i := range models {
		users[i] = models[i].toEntity()
	}
	return users, nil
}

func (s *Store) AppendMessage(ctx context.Context, msg *entity.Message) error {
	m := &MessageModel{
		ID:        msg.ID,
		FromUser:  msg.From,
		ToUser:    msg.To,
		Body:      msg.Body,
		Timestamp: msg.Timestamp,
		IsRead:    msg.IsRead,
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return apperrors.Storage("db.append_message", err)
	}
	return nil
}

func (s *Store) ListConversation(ctx context.Context, a, b string, limit int) ([]*entity.Message, error) {
	q := s.db.WithContext(ctx).
		Where("(from_user = ? AND to_user = ?) OR (from_user = ? AND to_user = ?)", a, b, b, a).
		Order("ts DESC, seq DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []MessageModel
	if err := q.Find(&models).Error; err != nil {
		return nil, apperrors.Storage("db.list_conversation", err)
	}

	// 倒序取最近 limit 条，再翻转成正序
	msgs := make([]*entity.Message, len(models))
	for i := range models {
		msgs[len(models)-1-i] = models[i].toEntity()
	}
	return msgs, nil
}

func (s *Store) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return apperrors.Storage("db.close", err)
	}
	return sqlDB.Close()
}
