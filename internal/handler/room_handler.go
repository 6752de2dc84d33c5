// Package handler 提供 HTTP 请求处理器
// 本文件处理房间相关的 REST 接口，实时操作走 WebSocket
package handler

import (
	"chatsphere_server/internal/dto/request"
	"chatsphere_server/internal/dto/respond"
	"chatsphere_server/internal/service"
	"chatsphere_server/internal/service/room"
	"chatsphere_server/pkg/errorx"

	"github.com/gin-gonic/gin"
)

// RoomHandler 房间接口
type RoomHandler struct {
	svc *service.Services
}

// NewRoomHandler 创建 RoomHandler
func NewRoomHandler(svc *service.Services) *RoomHandler {
	return &RoomHandler{svc: svc}
}

// currentUser JWTAuth 中间件写入的用户 ID
func currentUser(c *gin.Context) string {
	return c.GetString("user_id")
}

// requireModerator 当前用户必须是房间审核员
func (h *RoomHandler) requireModerator(roomID, userID string) error {
	ok, err := h.svc.Store.IsModerator(roomID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return errorx.New(errorx.CodeForbidden, "没有审核权限")
	}
	return nil
}

// CreateRoom 创建房间，当前用户成为房主
// POST /api/v1/rooms
// 请求体: request.CreateRoomRequest
// 响应: room.View
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req request.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	v, err := h.svc.Chat.CreateRoom(currentUser(c), room.Type(req.Type), req.Options())
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, v)
}

// GetRoom 房间详情
// GET /api/v1/rooms/:id
// 非公开房间只对成员可见
func (h *RoomHandler) GetRoom(c *gin.Context) {
	roomID := c.Param("id")
	v, err := h.svc.Store.Get(roomID)
	if err != nil {
		HandleError(c, err)
		return
	}
	if !v.Settings.IsPublic {
		if _, err := h.svc.Store.Member(roomID, currentUser(c)); err != nil {
			HandleError(c, err)
			return
		}
	}
	HandleSuccess(c, v)
}

// History 最近的可见消息
// GET /api/v1/rooms/:id/messages?limit=50
func (h *RoomHandler) History(c *gin.Context) {
	var req request.HistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	msgs, err := h.svc.Chat.History(c.Param("id"), currentUser(c), req.Limit)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, msgs)
}

// Analytics 房间分析快照，仅审核员可读
// GET /api/v1/rooms/:id/analytics
// 本实例还没有采样过时读取缓存中的快照
func (h *RoomHandler) Analytics(c *gin.Context) {
	roomID := c.Param("id")
	if err := h.requireModerator(roomID, currentUser(c)); err != nil {
		HandleError(c, err)
		return
	}
	snap, err := h.svc.Sampler.Latest(roomID)
	if errorx.IsNotFound(err) {
		snap, err = h.svc.Sampler.Cached(c.Request.Context(), roomID)
	}
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, snap)
}

// ModerationLog 审核记录、被移除消息和封禁名单
// GET /api/v1/rooms/:id/moderation?persisted=true&limit=100
func (h *RoomHandler) ModerationLog(c *gin.Context) {
	var req request.ModerationLogRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	roomID, userID := c.Param("id"), currentUser(c)

	actions, err := h.svc.Store.AuditLog(roomID, userID)
	if err != nil {
		HandleError(c, err)
		return
	}
	removed, err := h.svc.Store.Removed(roomID, userID)
	if err != nil {
		HandleError(c, err)
		return
	}
	bans, err := h.svc.Store.Bans(roomID)
	if err != nil {
		HandleError(c, err)
		return
	}
	resp := respond.ModerationLogRespond{Actions: actions, Removed: removed, Bans: bans}
	if req.Persisted {
		records, err := h.svc.Recorder.History(c.Request.Context(), roomID, req.Limit)
		if err != nil {
			HandleError(c, err)
			return
		}
		resp.Records = records
	}
	HandleSuccess(c, resp)
}

// ReviewQueue 待人工复核的 flagged 消息
// GET /api/v1/rooms/:id/review
func (h *RoomHandler) ReviewQueue(c *gin.Context) {
	items, err := h.svc.Store.ReviewQueue(c.Param("id"), currentUser(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, items)
}

// Unban 解除封禁
// DELETE /api/v1/rooms/:id/bans/:user_id
func (h *RoomHandler) Unban(c *gin.Context) {
	target := c.Param("user_id")
	ok, err := h.svc.Chat.Unban(c.Param("id"), currentUser(c), target)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, respond.UnbanRespond{UserID: target, Unbanned: ok})
}

// CloseRoom 房主关闭房间，全部成员收到 room_closed
// DELETE /api/v1/rooms/:id
func (h *RoomHandler) CloseRoom(c *gin.Context) {
	if err := h.svc.Chat.CloseRoom(c.Param("id"), currentUser(c)); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}
