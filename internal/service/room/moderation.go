package room

import (
	"sort"

	"chatsphere_server/pkg/constants"
	"chatsphere_server/pkg/errorx"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ApplyModerationAction 执行审核动作
// kick/ban 移除成员身份，ban 还会阻止之后的加入；mute 在动作时长内关闭发送类权限；
// 所有动作无论是否实际生效都写入审计日志。房主不受 mute/kick/ban 影响
func (s *Store) ApplyModerationAction(roomID string, action ModerationAction) (ActionResult, error) {
	if !action.Kind.Valid() {
		return ActionResult{}, errorx.Newf(errorx.CodeInvalidParam, "未知的审核动作 %q", action.Kind)
	}
	r, err := s.lock(roomID)
	if err != nil {
		return ActionResult{}, err
	}
	defer r.mu.Unlock()
	return s.applyLocked(r, action), nil
}

func (s *Store) applyLocked(r *Room, a ModerationAction) ActionResult {
	now := s.now()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.ActorID == "" {
		a.ActorID = constants.AUTOMATED_MODERATOR
	}
	a.RoomID = r.id
	if a.ActorID == constants.AUTOMATED_MODERATOR {
		a.Automated = true
		a.Appealable = true
	}

	res := ActionResult{}
	target, isMember := r.members[a.TargetID]
	immune := a.TargetID == r.owner

	switch a.Kind {
	case ActionWarn:
		a.Enacted = isMember
	case ActionMute:
		if isMember && !immune {
			if a.Duration <= 0 {
				a.Duration = r.moderation.banDuration
			}
			target.MutedUntil = now.Add(a.Duration)
			r.mutes[a.TargetID] = target.MutedUntil
			a.Enacted = true
		}
	case ActionKick:
		if isMember && !immune {
			delete(r.members, a.TargetID)
			res.Evicted = true
			a.Enacted = true
		}
	case ActionBan:
		if !immune {
			r.bans[a.TargetID] = now
			delete(r.reports, a.TargetID)
			if isMember {
				delete(r.members, a.TargetID)
				res.Evicted = true
			}
			a.Enacted = true
			s.sink.RecordBan(r.id, a.TargetID, a.ActorID, a.Reason, now)
		}
	case ActionMessageDelete:
		if a.MessageID != "" {
			if m := r.findMessage(a.MessageID); m != nil && m.Status != StatusRemoved {
				m.Status = StatusRemoved
				m.Deleted = true
				m.ModerationReason = a.Reason
				r.quarantine.push(m.clone())
				r.counters.Removed++
				res.DeletedMessage = m.ID
			}
		}
		// 自动审核删除的是尚未入库的新消息，记录本身即为执行
		a.Enacted = true
	}

	r.audit.push(a)
	s.sink.RecordAction(a)
	zap.L().Info("审核动作",
		zap.String("room_id", r.id),
		zap.String("target", a.TargetID),
		zap.String("actor", a.ActorID),
		zap.String("kind", string(a.Kind)),
		zap.Bool("enacted", a.Enacted),
	)
	res.Action = a
	res.Audience = r.audience()
	return res
}

// Moderate 人工审核入口
// 执行人必须拥有审核权限且角色高于目标；房主不可被处理
func (s *Store) Moderate(roomID, actorID string, action ModerationAction) (ActionResult, error) {
	if !action.Kind.Valid() {
		return ActionResult{}, errorx.Newf(errorx.CodeInvalidParam, "未知的审核动作 %q", action.Kind)
	}
	r, err := s.lock(roomID)
	if err != nil {
		return ActionResult{}, err
	}
	defer r.mu.Unlock()

	actor, ok := r.members[actorID]
	if !ok {
		return ActionResult{}, errorx.Newf(errorx.CodeNotMember, "用户 %s 不在房间 %s", actorID, roomID)
	}
	if !actor.Permissions.CanModerate {
		return ActionResult{}, errorx.New(errorx.CodeForbidden, "没有审核权限")
	}

	if action.Kind == ActionMessageDelete {
		m := r.findMessage(action.MessageID)
		if m == nil || m.Status == StatusRemoved {
			return ActionResult{}, errorx.Newf(errorx.CodeNotFound, "消息 %s 不存在", action.MessageID)
		}
		if action.TargetID == "" {
			action.TargetID = m.SenderID
		}
	}
	if action.TargetID == "" {
		return ActionResult{}, errorx.New(errorx.CodeInvalidParam, "缺少处理对象")
	}
	if action.TargetID == r.owner && action.TargetID != actorID {
		return ActionResult{}, errorx.New(errorx.CodeForbidden, "不能处理房主")
	}
	if target, ok := r.members[action.TargetID]; ok && action.TargetID != actorID && !actor.Role.Outranks(target.Role) {
		return ActionResult{}, errorx.New(errorx.CodeForbidden, "只能处理角色低于自己的成员")
	}
	if action.TargetID == actorID && action.Kind != ActionMessageDelete {
		return ActionResult{}, errorx.New(errorx.CodeInvalidParam, "不能处理自己")
	}

	action.ActorID = actorID
	action.Automated = false
	if action.Kind != ActionBan {
		action.Appealable = true
	}
	return s.applyLocked(r, action), nil
}

// Unban 解除封禁，仅审核员可操作；未被封禁时为空操作
func (s *Store) Unban(roomID, actorID, targetID string) (bool, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return false, err
	}
	defer r.mu.Unlock()
	if !r.isModerator(actorID) {
		return false, errorx.New(errorx.CodeForbidden, "没有审核权限")
	}
	if _, ok := r.bans[targetID]; !ok {
		return false, nil
	}
	delete(r.bans, targetID)
	s.sink.RecordUnban(r.id, targetID)
	zap.L().Info("解除封禁", zap.String("room_id", r.id), zap.String("target", targetID), zap.String("actor", actorID))
	return true, nil
}

// Banned 用户是否被房间封禁
func (s *Store) Banned(roomID, userID string) (bool, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return false, err
	}
	defer r.mu.Unlock()
	_, ok := r.bans[userID]
	return ok, nil
}

// ReportResult 举报结果
type ReportResult struct {
	Count     int
	Threshold int
	// Action 达到阈值时自动生成的禁言
	Action *ActionResult
}

// Report 举报成员；同一举报人重复举报只计一次，达到阈值后自动禁言 ban_duration 并清零
func (s *Store) Report(roomID, reporterID, targetID, reason string) (ReportResult, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return ReportResult{}, err
	}
	defer r.mu.Unlock()

	if _, ok := r.members[reporterID]; !ok {
		return ReportResult{}, errorx.Newf(errorx.CodeNotMember, "用户 %s 不在房间 %s", reporterID, roomID)
	}
	if _, ok := r.members[targetID]; !ok {
		return ReportResult{}, errorx.Newf(errorx.CodeNotMember, "用户 %s 不在房间 %s", targetID, roomID)
	}
	if reporterID == targetID {
		return ReportResult{}, errorx.New(errorx.CodeInvalidParam, "不能举报自己")
	}

	reporters, ok := r.reports[targetID]
	if !ok {
		reporters = make(map[string]struct{})
		r.reports[targetID] = reporters
	}
	reporters[reporterID] = struct{}{}
	res := ReportResult{Count: len(reporters), Threshold: r.moderation.reportThreshold}
	if res.Count < res.Threshold {
		return res, nil
	}

	delete(r.reports, targetID)
	if reason == "" {
		reason = "reported"
	}
	act := s.applyLocked(r, ModerationAction{
		TargetID: targetID,
		Kind:     ActionMute,
		Reason:   reason,
		Duration: r.moderation.banDuration,
	})
	res.Action = &act
	return res, nil
}

// SetRole 调整成员角色
// 执行人需审核权限且角色高于目标，新角色必须低于执行人；owner 角色不可授予也不可移除
func (s *Store) SetRole(roomID, actorID, targetID string, role Role) (Member, Audience, error) {
	if !role.Valid() {
		return Member{}, Audience{}, errorx.Newf(errorx.CodeInvalidParam, "未知的角色 %q", role)
	}
	if role == RoleOwner {
		return Member{}, Audience{}, errorx.New(errorx.CodeForbidden, "不能授予房主角色")
	}
	r, err := s.lock(roomID)
	if err != nil {
		return Member{}, Audience{}, err
	}
	defer r.mu.Unlock()

	actor, ok := r.members[actorID]
	if !ok {
		return Member{}, Audience{}, errorx.Newf(errorx.CodeNotMember, "用户 %s 不在房间 %s", actorID, roomID)
	}
	target, ok := r.members[targetID]
	if !ok {
		return Member{}, Audience{}, errorx.Newf(errorx.CodeNotMember, "用户 %s 不在房间 %s", targetID, roomID)
	}
	if !actor.Permissions.CanModerate || !actor.Role.Outranks(target.Role) || !actor.Role.Outranks(role) {
		return Member{}, Audience{}, errorx.New(errorx.CodeForbidden, "没有调整该角色的权限")
	}

	target.Role = role
	target.Permissions = PermissionsFor(role)
	r.roles[targetID] = role
	if role == RoleModerator {
		r.moderation.moderators[targetID] = struct{}{}
	} else {
		delete(r.moderation.moderators, targetID)
	}
	return *target, r.audience(), nil
}

// AuditLog 审核记录（从旧到新），仅审核员可读
func (s *Store) AuditLog(roomID, actorID string) ([]ModerationAction, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return nil, err
	}
	defer r.mu.Unlock()
	if !r.isModerator(actorID) {
		return nil, errorx.New(errorx.CodeForbidden, "没有审核权限")
	}
	return r.audit.items(), nil
}

// ReviewQueue 待复核的 flagged 消息，仅审核员可读
func (s *Store) ReviewQueue(roomID, actorID string) ([]ReviewItem, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return nil, err
	}
	defer r.mu.Unlock()
	if !r.isModerator(actorID) {
		return nil, errorx.New(errorx.CodeForbidden, "没有审核权限")
	}
	return r.review.items(), nil
}

// Removed 被移除消息的审计副本，仅审核员可读
func (s *Store) Removed(roomID, actorID string) ([]Message, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return nil, err
	}
	defer r.mu.Unlock()
	if !r.isModerator(actorID) {
		return nil, errorx.New(errorx.CodeForbidden, "没有审核权限")
	}
	return r.quarantine.items(), nil
}

// Bans 当前封禁名单（按 user id 排序）
func (s *Store) Bans(roomID string) ([]string, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return nil, err
	}
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.bans))
	for id := range r.bans {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// IsModerator 用户是否为房主、审核员名单成员或拥有审核权限的成员
func (s *Store) IsModerator(roomID, userID string) (bool, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return false, err
	}
	defer r.mu.Unlock()
	return r.isModerator(userID), nil
}
