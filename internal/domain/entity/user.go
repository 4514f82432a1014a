package entity

import (
	"time"

	apperrors "github.com/EthanQC/warpong/pkg/errors"
)

// UserStatus 在线状态
type UserStatus string

const (
	StatusOnline  UserStatus = "online"  // 在线
	StatusOffline UserStatus = "offline" // 离线
)

// Location 经纬度
type Location struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

// Validate 校验经纬度范围
func (l Location) Validate() error {
	if l.Lat < -90 || l.Lat > 90 || l.Lng < -180 || l.Lng > 180 {
		return apperrors.ErrInvalidLocation
	}
	return nil
}

// User 用户聚合根，Username 全局唯一且不可变
type User struct {
	ID           string     `json:"id" bson:"id"`
	Username     string     `json:"username" bson:"username"`
	PasswordHash string     `json:"password" bson:"password"`
	DisplayName  string     `json:"nama" bson:"nama"`
	Status       UserStatus `json:"status" bson:"status"`
	LastSeen     time.Time  `json:"lastSeen" bson:"lastSeen"`
	Location     *Location  `json:"location,omitempty" bson:"location,omitempty"`
	IsVIP        bool       `json:"isVip" bson:"isVip"`
	AvatarURL    string     `json:"avatar" bson:"avatar"`
}

// PublicUser 对外视图，不含密码
type PublicUser struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"nama"`
	Status      UserStatus `json:"status"`
	LastSeen    time.Time  `json:"lastSeen"`
	Location    *Location  `json:"location,omitempty"`
	IsVIP       bool       `json:"isVip"`
	AvatarURL   string     `json:"avatar"`
}

// Public 去掉敏感字段
func (u *User) Public() PublicUser {
	var loc *Location
	if u.Location != nil {
		l := *u.Location
		loc = &l
	}
	return PublicUser{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Status:      u.Status,
		LastSeen:    u.LastSeen,
		Location:    loc,
		IsVIP:       u.IsVIP,
		AvatarURL:   u.AvatarURL,
	}
}

// Clone 深拷贝，存储层返回副本避免共享可变状态
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Location != nil {
		l := *u.Location
		c.Location = &l
	}
	return &c
}
