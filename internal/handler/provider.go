// Package handler 提供 HTTP 请求处理器
// 本文件定义 Handler 聚合结构和构造函数
// 遵循依赖倒置原则，通过构造函数注入 Service 依赖
package handler

import (
	"chatsphere_server/internal/gateway/websocket"
	"chatsphere_server/internal/service"
)

// Handlers 聚合所有 Handler 实例
// 作为依赖注入的入口，Router 层通过此结构访问各个 Handler
type Handlers struct {
	Room   *RoomHandler
	Ws     *WsHandler
	Health *HealthHandler
}

// NewHandlers 创建并注入所有 Handler 实例
// 依赖注入流程：
//  1. 接收 Services 聚合实例和 WebSocket 网关
//  2. 创建各个 Handler 实例，注入对应的 Service
//  3. 返回 Handlers 聚合
func NewHandlers(svc *service.Services, gw *websocket.Gateway) *Handlers {
	return &Handlers{
		Room:   NewRoomHandler(svc),
		Ws:     NewWsHandler(gw),
		Health: NewHealthHandler(svc),
	}
}
