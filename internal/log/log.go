// Package log はアプリケーション全体で使用する構造化ロガーを提供する
// zap をラップし、本番環境では JSON、それ以外ではコンソール形式で出力する
package log

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	mu     sync.Mutex
)

// ParseLevel はレベル名を zapcore.Level に変換する
// 未知の値は info として扱う
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New は指定されたレベルのロガーを作成する
// GO_ENV=production の場合は JSON で出力する
func New(level string) (*zap.Logger, error) {
	var cfg zap.Config
	if os.Getenv("GO_ENV") == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	cfg.DisableStacktrace = true

	return cfg.Build()
}

// Init はグローバルロガーを初期化する
func Init(level string) (*zap.Logger, error) {
	l, err := New(level)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	logger = l
	mu.Unlock()

	zap.ReplaceGlobals(l)
	return l, nil
}

// L はグローバルロガーを返す
func L() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()

	if logger == nil {
		l, err := New("info")
		if err != nil {
			l = zap.NewNop()
		}
		logger = l
	}
	return logger
}

// Named はコンポーネント名付きのロガーを返す
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// Sync はバッファされたログを書き出す
func Sync() {
	_ = L().Sync()
}

// Debug はグローバルロガーで debug レベルのログを出力する
func Debug(msg string, fields ...zap.Field) {
	L().Debug(msg, fields...)
}

// Info はグローバルロガーで info レベルのログを出力する
func Info(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

// Warn はグローバルロガーで warn レベルのログを出力する
func Warn(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

// Error はグローバルロガーで error レベルのログを出力する
func Error(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
}
