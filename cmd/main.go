package main

import (
	"log"
	"os"

	"go.uber.org/zap"

	"alpha15-sentry/pkg/config"
	"alpha15-sentry/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Println("加载配置失败:", err)
		return 1
	}

	// 初始化日志
	appLogger, err := logger.New(cfg.Log)
	if err != nil {
		log.Println("初始化日志失败:", err)
		return 1
	}
	defer func() { _ = appLogger.Sync() }()

	if err := cfg.Validate(); err != nil {
		zap.L().Error("❌ 配置无效", zap.Error(err))
		return 1
	}

	app, err := NewApp(cfg)
	if err != nil {
		zap.L().Error("❌ 初始化失败", zap.Error(err))
		return 1
	}

	if err := app.Start(); err != nil {
		zap.L().Error("❌ 启动失败", zap.Error(err))
		app.Stop()
		return 1
	}

	app.WaitForShutdown()
	app.Stop()

	if err := app.Err(); err != nil {
		zap.L().Error("❌ 监控会话异常结束", zap.Error(err))
		return 1
	}
	return 0
}
