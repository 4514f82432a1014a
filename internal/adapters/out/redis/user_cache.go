package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/EthanQC/warpong/internal/domain/entity"
	"github.com/EthanQC/warpong/internal/ports/out"
)

const (
	// 用户缓存 Key 前缀
	userKeyPrefix = "warpong:user:"
	// 版本号 Key 后缀，每次写操作自增
	versionSuffix = ":ver"
	// 默认缓存时间
	defaultUserTTL = 10 * time.Minute
)

// CachedStorage 在任意 Storage 外包一层用户读缓存，写操作先落库再删缓存
type CachedStorage struct {
	out.Storage
	client *redis.Client
	ttl    time.Duration
}

var _ out.Storage = (*CachedStorage)(nil)

func NewCachedStorage(inner out.Storage, client *redis.Client, ttl time.Duration) *CachedStorage {
	if ttl <= 0 {
		ttl = defaultUserTTL
	}
	return &CachedStorage{Storage: inner, client: client, ttl: ttl}
}

func userKey(username string) string {
	return userKeyPrefix + username
}

func versionKey(username string) string {
	return userKeyPrefix + username + versionSuffix
}

var errStaleFill = errors.New("user changed during cache fill")

// FindUser 先查缓存，未命中回源并回填；缓存异常只记录日志
func (c *CachedStorage) FindUser(ctx context.Context, username string) (*entity.User, error) {
	data, err := c.client.Get(ctx, userKey(username)).Bytes()
	switch {
	case err == nil:
		var u entity.User
		if jerr := json.Unmarshal(data, &u); jerr == nil {
			return &u, nil
		}
		zap.L().Warn("drop undecodable user cache entry", zap.String("username", username))
	case !errors.Is(err, redis.Nil):
		zap.L().Warn("user cache get failed", zap.String("username", username), zap.Error(err))
	}

	// 回源前记下版本号，回填时版本变化说明期间有写入，放弃回填
	ver, verErr := c.version(ctx, username)
	u, err := c.Storage.FindUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if verErr == nil {
		c.fill(ctx, u, ver)
	}
	return u, nil
}

func (c *CachedStorage) version(ctx context.Context, username string) (string, error) {
	v, err := c.client.Get(ctx, versionKey(username)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

// fill 在 WATCH 版本号的事务里写缓存
func (c *CachedStorage) fill(ctx context.Context, u *entity.User, ver string) {
	raw, err := json.Marshal(u)
	if err != nil {
		return
	}
	vkey := versionKey(u.Username)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, vkey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != ver {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, userKey(u.Username), raw, c.ttl)
			return nil
		})
		return err
	}, vkey)

	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		zap.L().Debug("user cache fill skipped, concurrent write", zap.String("username", u.Username))
	default:
		zap.L().Warn("user cache set failed", zap.String("username", u.Username), zap.Error(err))
	}
}

func (c *CachedStorage) CreateUser(ctx context.Context, user *entity.User) error {
	if err := c.Storage.CreateUser(ctx, user); err != nil {
		return err
	}
	c.invalidate(ctx, user.Username)
	return nil
}

func (c *CachedStorage) UpsertUser(ctx context.Context, user *entity.User) error {
	if err := c.Storage.UpsertUser(ctx, user); err != nil {
		return err
	}
	c.invalidate(ctx, user.Username)
	return nil
}

func (c *CachedStorage) SetStatus(ctx context.Context, username string, status entity.UserStatus, lastSeen time.Time) error {
	if err := c.Storage.SetStatus(ctx, username, status, lastSeen); err != nil {
		return err
	}
	c.invalidate(ctx, username)
	return nil
}

func (c *CachedStorage) SetLocation(ctx context.Context, username string, loc entity.Location) error {
	if err := c.Storage.SetLocation(ctx, username, loc); err != nil {
		return err
	}
	c.invalidate(ctx, username)
	return nil
}

// Close 关闭底层存储与 redis 客户端
func (c *CachedStorage) Close(ctx context.Context) error {
	err := c.Storage.Close(ctx)
	if cerr := c.client.Close(); err == nil {
		err = cerr
	}
	return err
}

// invalidate 自增版本号并删除缓存，版本号存活时间长于缓存本身
func (c *CachedStorage) invalidate(ctx context.Context, username string) {
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, versionKey(username))
		p.Expire(ctx, versionKey(username), 2*c.ttl)
		p.Del(ctx, userKey(username))
		return nil
	})
	if err != nil {
		zap.L().Warn("user cache invalidate failed", zap.String("username", username), zap.Error(err))
	}
}

// NewClient 创建并探活 redis 客户端
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
