package zlog

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// FileConfig 本地轮转文件策略
type FileConfig struct {
	Path       string `mapstructure:"path"`        // 日志文件路径，为空则不落盘
	MaxSizeMB  int    `mapstructure:"max_size"`    // 单个文件最大容量（MB）
	MaxBackups int    `mapstructure:"max_backups"` // 保留旧文件数量
	MaxAgeDay  int    `mapstructure:"max_age"`     // 最长保存天数
	Compress   bool   `mapstructure:"compress"`    // 是否 gzip 旧文件
}

// Config 日志配置，挂在应用配置的 log 节点下
type Config struct {
	Service      string     `mapstructure:"service"`
	Level        string     `mapstructure:"level"`    // debug|info|warn|error
	Encoding     string     `mapstructure:"encoding"` // json|console
	Stdout       bool       `mapstructure:"stdout"`
	File         FileConfig `mapstructure:"file"`
	EnableMetric bool       `mapstructure:"enable_metric"`
}

// SetDefaults 在 viper 上注册日志默认值，prefix 一般为 "log"
func SetDefaults(v *viper.Viper, prefix string) {
	key := func(k string) string {
		if prefix == "" {
			return k
		}
		return prefix + "." + k
	}
	v.SetDefault(key("service"), "warpong")
	v.SetDefault(key("level"), "info")
	v.SetDefault(key("encoding"), "json")
	v.SetDefault(key("stdout"), true)
	v.SetDefault(key("file.max_size"), 100)
	v.SetDefault(key("file.max_backups"), 60)
	v.SetDefault(key("file.max_age"), 30)
	v.SetDefault(key("enable_metric"), true)
}

// Validate 严格校验并补齐文件轮转参数
func (c *Config) Validate() error {
	if c.Service == "" {
		return fmt.Errorf("log config: service cannot be empty")
	}

	c.Level = strings.ToLower(c.Level)
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log config: level must be one of debug/info/warn/error, got %q", c.Level)
	}

	c.Encoding = strings.ToLower(c.Encoding)
	switch c.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("log config: encoding must be json or console, got %q", c.Encoding)
	}

	if !c.Stdout && c.File.Path == "" {
		return fmt.Errorf("log config: file.path is required when stdout is disabled")
	}

	if c.File.Path != "" {
		if c.File.MaxSizeMB <= 0 {
			c.File.MaxSizeMB = 100
		}
		if c.File.MaxBackups < 0 {
			c.File.MaxBackups = 60
		}
		if c.File.MaxAgeDay < 0 {
			c.File.MaxAgeDay = 30
		}
	}
	return nil
}
