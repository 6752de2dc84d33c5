// Package handler 提供 HTTP 请求处理器
// 本文件处理 WebSocket 连接入口
package handler

import (
	"strings"

	"chatsphere_server/internal/gateway/websocket"

	"github.com/gin-gonic/gin"
)

// WsHandler WebSocket 入口
type WsHandler struct {
	gateway *websocket.Gateway
}

// NewWsHandler 创建 WsHandler
func NewWsHandler(gw *websocket.Gateway) *WsHandler {
	return &WsHandler{gateway: gw}
}

// Connect 升级 HTTP 连接为 WebSocket
// GET /wss?token=xxx
// token 可以放在查询参数或 Authorization: Bearer 头中；都没有时连接建立后需要发送 authenticate 事件
func (h *WsHandler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		if parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
			token = parts[1]
		}
	}
	h.gateway.Serve(c.Writer, c.Request, token)
}
