package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/EthanQC/warpong/pkg/zlog"
)

// ServerConfig HTTP 监听
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"` // 每秒每 IP，<=0 关闭
	RateBurst       int           `mapstructure:"rate_burst"`
}

// StorageConfig 持久化后端
type StorageConfig struct {
	Driver    string        `mapstructure:"driver"` // file|mysql|mongo
	Path      string        `mapstructure:"path"`   // file
	DSN       string        `mapstructure:"dsn"`    // mysql
	URI       string        `mapstructure:"uri"`    // mongo
	Database  string        `mapstructure:"database"`
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

// RedisConfig 用户缓存，addr 为空表示不启用
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	UserTTL  time.Duration `mapstructure:"user_ttl"`
}

// KafkaConfig 审计事件，brokers 为空表示不启用
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// JWTConfig 令牌
type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
	Issuer string        `mapstructure:"issuer"`
}

// AccountConfig 注册默认值
type AccountConfig struct {
	DefaultLat     float64 `mapstructure:"default_lat"`
	DefaultLng     float64 `mapstructure:"default_lng"`
	AvatarTemplate string  `mapstructure:"avatar_template"` // %s 替换为用户名
	BcryptCost     int     `mapstructure:"bcrypt_cost"`
}

// RealtimeConfig WebSocket 参数
type RealtimeConfig struct {
	SendBuffer     int           `mapstructure:"send_buffer"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
}

// Config 应用配置
type Config struct {
	Env      string         `mapstructure:"-"`
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Account  AccountConfig  `mapstructure:"account"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Log      zlog.Config    `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit", 20)
	v.SetDefault("server.rate_burst", 40)

	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.path", "data/database.json")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.uri", "")
	v.SetDefault("storage.database", "warpong")
	v.SetDefault("storage.op_timeout", 5*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.user_ttl", 10*time.Minute)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "warpong.events")

	// 环境变量覆盖需要 key 先被注册
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.ttl", 24*time.Hour)
	v.SetDefault("jwt.issuer", "warpong")

	v.SetDefault("account.default_lat", -6.2088)
	v.SetDefault("account.default_lng", 106.8456)
	v.SetDefault("account.avatar_template", "https://ui-avatars.com/api/?name=%s&background=1DB954&color=fff")
	v.SetDefault("account.bcrypt_cost", 10)

	v.SetDefault("realtime.send_buffer", 256)
	v.SetDefault("realtime.max_message_size", 64*1024)
	v.SetDefault("realtime.write_wait", 10*time.Second)
	v.SetDefault("realtime.pong_wait", 60*time.Second)
	v.SetDefault("realtime.ping_period", 30*time.Second)

	zlog.SetDefaults(v, "log")
}

// Load 按 APP_ENV 读取 configs/config.<env>.yaml，文件不存在时仅使用默认值与环境变量
func Load() (*Config, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFrom(env, "./configs", "../configs", "../../configs")
}

// LoadFrom 在给定目录中查找 config.<env>.yaml
func LoadFrom(env string, paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix("WARPONG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Env = env
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验关键字段
func (c *Config) Validate() error {
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	switch c.Storage.Driver {
	case "file":
		if c.Storage.Path == "" {
			return fmt.Errorf("config: storage.path is required for the file driver")
		}
	case "mysql":
		if c.Storage.DSN == "" {
			return fmt.Errorf("config: storage.dsn is required for the mysql driver")
		}
	case "mongo":
		if c.Storage.URI == "" {
			return fmt.Errorf("config: storage.uri is required for the mongo driver")
		}
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Storage.OpTimeout <= 0 {
		return fmt.Errorf("config: storage.op_timeout must be positive")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("config: jwt.secret cannot be empty")
	}
	if c.Realtime.PingPeriod >= c.Realtime.PongWait {
		return fmt.Errorf("config: realtime.ping_period must be shorter than realtime.pong_wait")
	}
	if c.Realtime.SendBuffer <= 0 {
		return fmt.Errorf("config: realtime.send_buffer must be positive")
	}
	return c.Log.Validate()
}
