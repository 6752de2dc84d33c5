package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatsphere_server/internal/config"
	dao "chatsphere_server/internal/dao/mysql"
	myredis "chatsphere_server/internal/dao/redis"
	"chatsphere_server/internal/gateway/websocket"
	"chatsphere_server/internal/handler"
	"chatsphere_server/internal/https_server"
	"chatsphere_server/internal/infrastructure/logger"
	mq "chatsphere_server/internal/infrastructure/mq"
	"chatsphere_server/internal/infrastructure/validate"
	"chatsphere_server/internal/service"
	"chatsphere_server/pkg/util/jwt"
	"chatsphere_server/pkg/util/snowflake"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	if err := config.LoadConfig(); err != nil {
		log.Printf("load config failed, using defaults: %v", err)
	}
	conf := config.GetConfig()

	// 2. 初始化日志
	if err := logger.Init(&conf.LogConfig, conf.MainConfig.Mode); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer func() { _ = zap.L().Sync() }()
	zap.L().Info("日志初始化成功")

	// 3. 初始化 ID 生成器和 JWT
	snowflake.SetMachineID(conf.SnowflakeConfig.MachineID)
	snowflake.Init()
	jwt.Init(conf.JWTConfig.Secret, conf.JWTConfig.Issuer, conf.JWTConfig.AccessTokenExpiry)
	zap.L().Info("JWT 初始化成功")

	// 4. 初始化数据库（未配置时不落库）
	repos, err := dao.Init(conf.MysqlConfig)
	if err != nil {
		zap.L().Fatal("数据库初始化失败", zap.Error(err))
	}

	// 5. 初始化缓存（未配置时使用进程内缓存）
	cache, err := myredis.Init(conf.RedisConfig)
	if err != nil {
		zap.L().Fatal("Redis 初始化失败", zap.Error(err))
	}

	// 6. 初始化事件导出
	pub, err := mq.NewPublisher(conf.MQConfig)
	if err != nil {
		zap.L().Fatal("事件导出初始化失败", zap.Error(err))
	}
	exporter := mq.NewExporter(pub, conf.MQConfig)
	zap.L().Info("事件导出初始化成功", zap.String("mode", conf.MQConfig.Mode))

	// 7. 初始化 Service 层 (依赖注入)
	svc := service.NewServices(conf, repos, cache, exporter)
	gw := websocket.NewGateway(svc.Registry, svc.Chat, svc.Auth, conf.ChatConfig)
	if err := validate.Init("zh"); err != nil {
		zap.L().Fatal("初始化参数校验失败", zap.Error(err))
	}
	handlers := handler.NewHandlers(svc, gw)
	zap.L().Info("Service 层初始化成功")

	// 8. 启动后台任务和 HTTP 服务
	ctx, cancel := context.WithCancel(context.Background())
	svc.Run(ctx)

	engine := https_server.Init(conf.MainConfig, handlers, svc.Auth)
	srv := https_server.NewServer(conf.MainConfig, engine)
	go func() {
		zap.L().Info("服务启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("server running fault", zap.Error(err))
		}
	}()

	// 设置信号监听
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// 等待信号
	<-quit
	zap.L().Info("关闭服务器...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("HTTP 服务关闭超时", zap.Error(err))
	}

	// 停止后台任务；注册表退出时以 shutdown 原因关闭所有连接
	cancel()
	svc.Close()

	zap.L().Info("服务器已关闭")
}
