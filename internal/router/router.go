// Package router 提供 HTTP 路由注册
// 本文件是路由注册的入口，聚合所有子模块的路由
package router

import (
	"chatsphere_server/internal/handler"
	"chatsphere_server/internal/infrastructure/middleware"
	"chatsphere_server/internal/service/auth"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router 路由管理器
type Router struct {
	handlers *handler.Handlers
	authn    auth.Authenticator
}

// NewRouter 创建路由管理器
func NewRouter(handlers *handler.Handlers, authn auth.Authenticator) *Router {
	return &Router{handlers: handlers, authn: authn}
}

// RegisterRoutes 注册所有路由
// 在 https_server.Init() 中调用
func (rt *Router) RegisterRoutes(r *gin.Engine) {
	// 公开接口 (无需认证)
	r.GET("/healthz", rt.handlers.Health.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket 在连接建立后自行认证
	rt.RegisterWebSocketRoutes(&r.RouterGroup)

	// 需要认证的接口
	api := r.Group("/api/v1")
	api.Use(middleware.JWTAuth(rt.authn))
	rt.RegisterRoomRoutes(api)
}
