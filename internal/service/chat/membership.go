package chat

import (
	"time"

	"chatsphere_server/internal/service/registry"
	"chatsphere_server/internal/service/room"
	"chatsphere_server/pkg/errorx"

	"go.uber.org/zap"
)

// CreateRoom 创建房间，房主之后需要自己加入才会上线
func (r *Router) CreateRoom(owner string, typ room.Type, opts room.Options) (room.View, error) {
	return r.store.CreateRoom(owner, typ, opts)
}

// JoinRoom 连接加入房间
// 成功后连接与房间关联，其余成员收到 member_joined（重新加入时为 presence_update）和 viewer_count
func (r *Router) JoinRoom(h *registry.Handle, roomID string) (room.JoinResult, error) {
	identity := h.Identity()
	if identity == "" {
		return room.JoinResult{}, errorx.ErrUnauthorized
	}
	res, err := r.store.Join(roomID, identity, h.Metadata().Profile)
	if err != nil {
		return room.JoinResult{}, err
	}
	r.registry.JoinRoom(h, roomID)
	res.Replay = publicMessages(res.Replay)

	if res.Rejoined {
		r.broadcast(res.Audience, registry.EventPresenceUpdate, PresencePayload{
			UserID:            identity,
			Status:            res.Member.Status,
			ConnectionQuality: res.Member.ConnectionQuality,
		}, identity)
	} else {
		r.broadcast(res.Audience, registry.EventMemberJoined, MemberPayload{
			UserID: identity,
			Role:   res.Member.Role,
			Status: res.Member.Status,
		}, identity)
	}
	r.broadcast(res.Audience, registry.EventViewerCount, ViewerCountPayload{Count: res.ViewerCount})
	return res, nil
}

// LeaveRoom 连接离开房间
// 同一身份的其它连接仍在房间时只解除这条连接的关联，不改变成员身份
func (r *Router) LeaveRoom(h *registry.Handle, roomID string) error {
	identity := h.Identity()
	if identity == "" {
		return errorx.ErrUnauthorized
	}
	r.registry.LeaveRoom(h, roomID)
	if r.stillConnected(identity, roomID) {
		return nil
	}
	return r.leave(identity, roomID)
}

func (r *Router) stillConnected(identity, roomID string) bool {
	for _, other := range r.registry.Handles(identity) {
		for _, id := range other.Rooms() {
			if id == roomID {
				return true
			}
		}
	}
	return false
}

// leave 成员离开：先隐式退出会话，再移除成员身份
func (r *Router) leave(identity, roomID string) error {
	for _, c := range r.sessions.LeaveRooms(identity, []string{roomID}) {
		r.broadcastSession(c)
	}
	aud, changed, err := r.store.Leave(roomID, identity)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	r.broadcast(aud, registry.EventMemberLeft, MemberPayload{UserID: identity}, identity)
	r.broadcastViewerCount(aud)
	return nil
}

// handleDisconnect 连接断开后的清理，由注册表回调
func (r *Router) handleDisconnect(identity string, rooms []string) {
	for _, roomID := range rooms {
		if err := r.leave(identity, roomID); err != nil && !errorx.IsNotFound(err) {
			zap.L().Warn("断开连接后离开房间失败", zap.String("identity", identity), zap.String("room_id", roomID), zap.Error(err))
		}
	}
}

// UpdatePresence 更新在线状态；roomID 为空时更新该身份所在的全部房间
func (r *Router) UpdatePresence(identity, roomID string, status room.Presence, quality float64) error {
	rooms := []string{roomID}
	if roomID == "" {
		rooms = r.roomsOf(identity)
	}
	var firstErr error
	for _, id := range rooms {
		m, aud, err := r.store.UpdatePresence(id, identity, status, quality)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		r.broadcast(aud, registry.EventPresenceUpdate, PresencePayload{
			UserID:            identity,
			Status:            m.Status,
			ConnectionQuality: m.ConnectionQuality,
		})
		r.broadcastViewerCount(aud)
	}
	return firstErr
}

func (r *Router) roomsOf(identity string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, h := range r.registry.Handles(identity) {
		for _, id := range h.Rooms() {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out
}

// CloseRoom 房主关闭房间
func (r *Router) CloseRoom(roomID, actor string) error {
	aud, err := r.store.CloseRoom(roomID, actor)
	if err != nil {
		return err
	}
	r.teardown(aud, "closed_by_owner")
	return nil
}

// ReapIdle 关闭空闲房间，返回关闭数量
func (r *Router) ReapIdle(now time.Time, ttl time.Duration) int {
	closed := r.store.ReapIdle(now, ttl)
	for _, aud := range closed {
		r.teardown(aud, "idle")
	}
	return len(closed)
}

// teardown 房间关闭后结束会话、通知成员并解除连接关联
func (r *Router) teardown(aud room.Audience, reason string) {
	for _, v := range r.sessions.EndRoom(aud.RoomID) {
		r.broadcast(aud, registry.EventSessionEnded, SessionPayload{Session: v})
	}
	r.broadcast(aud, registry.EventRoomClosed, RoomClosedPayload{Reason: reason})
	for _, id := range aud.Members {
		r.registry.DetachRoom(id, aud.RoomID)
	}
}
