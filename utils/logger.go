package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 全局日志，InitLogger 之前为 no-op
var Logger = zap.NewNop()

// InitLogger 按 gin 的运行模式选择日志配置：
// release 输出 JSON，test 不输出，其余为带颜色的开发格式
func InitLogger(mode string) error {
	var cfg zap.Config

	switch mode {
	case "test":
		Logger = zap.NewNop()
		return nil
	case "release":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.DisableStacktrace = true
	}

	logger, err := cfg.Build(zap.Fields(zap.String("service", "labelu")))
	if err != nil {
		return err
	}

	Logger = logger
	return nil
}

// Sync 刷新缓冲，退出前调用
func Sync() {
	_ = Logger.Sync()
}
