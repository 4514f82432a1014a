package zlog

import (
	"net/http"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	dynamicLevel = zap.NewAtomicLevelAt(zap.InfoLevel) // 全局可变级别
	levelName    atomic.Value                         // 字符串形式
)

func initLevel(lvl string) {
	SetLevel(lvl)
}

func parseLevel(lvl string) (zapcore.Level, bool) {
	switch strings.ToLower(lvl) {
	case "debug":
		return zap.DebugLevel, true
	case "info":
		return zap.InfoLevel, true
	case "warn":
		return zap.WarnLevel, true
	case "error":
		return zap.ErrorLevel, true
	default:
		return zap.InfoLevel, false
	}
}

// SetLevel 热更新日志级别，未知级别返回 false 且不生效
func SetLevel(lvl string) bool {
	l, ok := parseLevel(lvl)
	if !ok {
		return false
	}
	dynamicLevel.SetLevel(l)
	levelName.Store(strings.ToLower(lvl))
	return true
}

// GetLevel 返回当前级别字符串
func GetLevel() string {
	if v, ok := levelName.Load().(string); ok {
		return v
	}
	return "info"
}

// LevelHTTPHandler 注册到 /log/level，GET 查询，PUT ?v=debug 修改
func LevelHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			lvl := r.URL.Query().Get("v")
			if lvl == "" {
				lvl = r.FormValue("v")
			}
			if !SetLevel(lvl) {
				http.Error(w, "unknown level", http.StatusBadRequest)
				return
			}
		}
		_, _ = w.Write([]byte(GetLevel()))
	}
}
