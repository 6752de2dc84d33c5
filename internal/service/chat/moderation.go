package chat

import (
	"chatsphere_server/internal/service/ratelimit"
	"chatsphere_server/internal/service/registry"
	"chatsphere_server/internal/service/room"
)

// Moderate 人工审核动作
func (r *Router) Moderate(roomID, actor string, action room.ModerationAction) (room.ModerationAction, error) {
	res, err := r.store.Moderate(roomID, actor, action)
	if err != nil {
		return room.ModerationAction{}, err
	}
	r.enact(res)
	return res.Action, nil
}

// enact 把已执行的审核动作同步到连接和会话
// 审核员和目标收到 moderation_action；被移出房间的目标收到 user_kicked 并解除连接关联
func (r *Router) enact(res room.ActionResult) {
	a := res.Action
	aud := res.Audience
	r.notifyModerators(aud, registry.EventModeration, a, a.TargetID)

	if res.DeletedMessage != "" {
		r.broadcast(aud, registry.EventMessageDeleted, DeletedPayload{MessageID: res.DeletedMessage, ActionID: a.ID})
	}
	if !res.Evicted {
		return
	}
	for _, c := range r.sessions.LeaveRooms(a.TargetID, []string{aud.RoomID}) {
		r.broadcastSession(c)
	}
	r.registry.SendToIdentity(a.TargetID, registry.NewEvent(registry.EventUserKicked, aud.RoomID, a))
	r.registry.DetachRoom(a.TargetID, aud.RoomID)
	r.broadcast(aud, registry.EventMemberLeft, MemberPayload{UserID: a.TargetID})
	r.broadcastViewerCount(aud)
}

// Report 举报成员，达到房间阈值后自动禁言
func (r *Router) Report(roomID, reporter, target, reason string) (room.ReportResult, error) {
	if err := r.admit(reporter, ratelimit.KindReport, 0); err != nil {
		return room.ReportResult{}, err
	}
	res, err := r.store.Report(roomID, reporter, target, reason)
	if err != nil {
		return room.ReportResult{}, err
	}
	aud, err := r.store.Audience(roomID)
	if err == nil {
		r.notifyModerators(aud, registry.EventReportReceived, ReportPayload{
			ReporterID: reporter,
			TargetID:   target,
			Reason:     reason,
			Count:      res.Count,
			Threshold:  res.Threshold,
		})
	}
	if res.Action != nil {
		r.enact(*res.Action)
	}
	return res, nil
}

// SetRole 调整成员角色，房间内全部成员收到 role_updated
func (r *Router) SetRole(roomID, actor, target string, role room.Role) (room.Member, error) {
	m, aud, err := r.store.SetRole(roomID, actor, target, role)
	if err != nil {
		return room.Member{}, err
	}
	r.broadcast(aud, registry.EventRoleUpdated, MemberPayload{UserID: m.UserID, Role: m.Role, Status: m.Status})
	return m, nil
}

// Unban 解除封禁
func (r *Router) Unban(roomID, actor, target string) (bool, error) {
	return r.store.Unban(roomID, actor, target)
}
