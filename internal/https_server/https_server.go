// Package https_server 提供 HTTP/HTTPS 服务器的初始化和配置
// 负责创建 Gin 引擎实例并配置中间件和路由
package https_server

import (
	"fmt"
	"net/http"
	"time"

	"chatsphere_server/internal/config"
	"chatsphere_server/internal/handler"
	"chatsphere_server/internal/infrastructure/logger"
	"chatsphere_server/internal/infrastructure/middleware"
	"chatsphere_server/internal/metrics"
	"chatsphere_server/internal/router"
	"chatsphere_server/internal/service/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Init 初始化 Gin 引擎
// 配置顺序：
//  1. 创建 Gin 引擎（空白，不含默认中间件）
//  2. 注册请求 ID、日志、恢复和指标中间件
//  3. 配置 CORS 跨域规则，按需开启 TLS 重定向
//  4. 注册业务路由
func Init(conf config.MainConfig, handlers *handler.Handlers, authn auth.Authenticator) *gin.Engine {
	if conf.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()

	engine.Use(logger.RequestID())
	engine.Use(logger.GinLogger())
	engine.Use(logger.GinRecovery(true))
	engine.Use(metrics.GinMiddleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"} // 允许所有来源（生产环境应指定具体域名）
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", logger.RequestIDHeader}
	engine.Use(cors.New(corsConfig))

	// 由 Nginx 处理 SSL 时保持关闭
	if conf.ForceTLS {
		engine.Use(middleware.TlsHandler(conf))
	}

	rt := router.NewRouter(handlers, authn)
	rt.RegisterRoutes(engine)
	return engine
}

// NewServer 包装为 http.Server 以便优雅关闭
// WebSocket 连接被劫持后不受 WriteTimeout 约束
func NewServer(conf config.MainConfig, engine *gin.Engine) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
