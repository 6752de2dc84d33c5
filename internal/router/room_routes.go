// Package router 提供 HTTP 路由注册
// 本文件定义房间相关的路由
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoomRoutes 注册房间相关路由（需要认证）
// 成员、消息、审核等实时操作走 WebSocket，这里只提供创建、查询和管理接口
func (rt *Router) RegisterRoomRoutes(rg *gin.RouterGroup) {
	roomGroup := rg.Group("/rooms")
	{
		// ===== 房间基本操作 =====
		roomGroup.POST("", rt.handlers.Room.CreateRoom)          // 创建房间
		roomGroup.GET("/:id", rt.handlers.Room.GetRoom)          // 获取房间详情
		roomGroup.DELETE("/:id", rt.handlers.Room.CloseRoom)     // 关闭房间（房主）
		roomGroup.GET("/:id/messages", rt.handlers.Room.History) // 最近消息

		// ===== 审核与分析（审核员） =====
		roomGroup.GET("/:id/analytics", rt.handlers.Room.Analytics)      // 分析快照
		roomGroup.GET("/:id/moderation", rt.handlers.Room.ModerationLog) // 审核记录
		roomGroup.GET("/:id/review", rt.handlers.Room.ReviewQueue)       // 待复核消息
		roomGroup.DELETE("/:id/bans/:user_id", rt.handlers.Room.Unban)   // 解除封禁
	}
}
