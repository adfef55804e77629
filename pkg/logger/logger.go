// Package logger 进程日志，基于zap
package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	sugared = base.Sugar()
)

// Options 日志构建选项（对外导出）
type Options struct {
	Level string // debug/info/warn/error
	Env   string // development 使用控制台编码，其余使用JSON
}

// New 根据选项构建zap Logger
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(opts.Level))); err != nil {
			return nil, err
		}
	}
	var cfg zap.Config
	if opts.Env == "development" || opts.Env == "dev" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

// Init 构建并设置全局Logger
func Init(opts Options) (*zap.Logger, error) {
	l, err := New(opts)
	if err != nil {
		return nil, err
	}
	Set(l)
	return l, nil
}

// Set 替换全局Logger
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	base = l
	sugared = l.Sugar()
	mu.Unlock()
}

// L 返回全局SugaredLogger，未初始化时为Nop
func L() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugared
}

// Z 返回全局zap.Logger
func Z() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Sync 刷新缓冲
func Sync() {
	_ = Z().Sync()
}
