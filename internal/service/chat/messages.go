package chat

import (
	"context"
	"strconv"
	"strings"

	"chatsphere_server/internal/metrics"
	"chatsphere_server/internal/service/payment"
	"chatsphere_server/internal/service/ratelimit"
	"chatsphere_server/internal/service/registry"
	"chatsphere_server/internal/service/room"
	"chatsphere_server/pkg/constants"
	"chatsphere_server/pkg/errorx"
	"chatsphere_server/pkg/util/snowflake"

	"go.uber.org/zap"
)

// TipRequest 打赏请求
type TipRequest struct {
	Recipient string
	Amount    float64
	Currency  string
	Anonymous bool
	Note      string
}

// SendMessage 发送文本或媒体消息，返回审核后的消息
// 1. 校验成员身份和消息类型对应的权限
// 2. 按角色的每分钟上限限流
// 3. 内容审核，结果为 approved / flagged / removed 之一
// 4. 写入房间，写入时再次校验成员身份和权限
// 5. approved 广播给全部成员；flagged 只给审核员和发送者；removed 只告知发送者并执行自动动作
func (r *Router) SendMessage(roomID, sender string, payload room.Payload, replyTo string) (room.Message, error) {
	if payload == nil {
		return room.Message{}, errorx.New(errorx.CodeInvalidParam, "消息内容不能为空")
	}
	switch pl := payload.(type) {
	case *room.TextPayload:
		body := strings.TrimSpace(pl.Body)
		if body == "" {
			return room.Message{}, errorx.New(errorx.CodeInvalidParam, "消息内容不能为空")
		}
		payload = &room.TextPayload{Body: body, Mentions: extractMentions(body), Hashtags: extractHashtags(body)}
	case *room.MediaPayload:
		if pl.URL == "" {
			return room.Message{}, errorx.New(errorx.CodeInvalidParam, "媒体地址不能为空")
		}
	case *room.TipPayload:
		return room.Message{}, errorx.New(errorx.CodeInvalidParam, "打赏请使用 send_tip")
	}

	msg := &room.Message{
		ID:       snowflake.GenerateIDString(),
		RoomID:   roomID,
		SenderID: sender,
		SentAt:   r.now(),
		Kind:     payload.Kind(),
		Status:   room.StatusPending,
		ReplyTo:  replyTo,
		Payload:  payload,
	}

	gate, err := r.store.AuthorizeMessage(roomID, msg)
	if err != nil {
		return room.Message{}, err
	}
	if err := r.admit(sender, ratelimit.KindMessage, gate.Permissions.MessagesPerMinute); err != nil {
		return room.Message{}, err
	}

	verdict := r.pipeline.Evaluate(msg, gate.AutoModeration, gate.Threshold)
	msg.Status = verdict.Status
	if verdict.Status != room.StatusApproved {
		msg.ModerationReason = verdict.Reason
		msg.ModerationScore = verdict.Score
	}

	aud, err := r.store.AppendMessage(roomID, msg)
	if err != nil {
		return room.Message{}, err
	}
	metrics.MessagesTotal.WithLabelValues(string(msg.Kind), string(msg.Status)).Inc()

	switch msg.Status {
	case room.StatusApproved:
		r.broadcast(aud, registry.EventNewMessage, publicMessage(*msg))
		r.exporter.ExportMessage(roomID, msg.ID, msg, gate.Settings.EncryptionEnabled)
	case room.StatusFlagged:
		r.notifyModerators(aud, registry.EventMessageFlagged, FlaggedPayload{
			Message: *msg,
			Reason:  verdict.Reason,
			Score:   verdict.Score,
		}, sender)
	case room.StatusRemoved:
		if verdict.Action != nil {
			res, err := r.store.ApplyModerationAction(roomID, *verdict.Action)
			if err != nil {
				zap.L().Error("执行自动审核动作失败", zap.String("room_id", roomID), zap.String("message_id", msg.ID), zap.Error(err))
			} else {
				r.enact(res)
			}
		}
	}
	return *msg, nil
}

// SendTip 打赏房主
// 校验通过后同步等待结算结果；结算成功才写入房间并广播，失败返回 SettlementFailed 不广播
func (r *Router) SendTip(ctx context.Context, roomID, sender string, req TipRequest) (room.Message, error) {
	if req.Currency == "" {
		req.Currency = constants.DEFAULT_CURRENCY
	}
	gate, err := r.store.AuthorizeTip(roomID, sender, req.Recipient, req.Amount)
	if err != nil {
		return room.Message{}, err
	}
	if err := r.admit(sender, ratelimit.KindTip, gate.Permissions.TipsPerMinute); err != nil {
		return room.Message{}, err
	}

	tip := &room.TipPayload{
		Recipient:        req.Recipient,
		Amount:           req.Amount,
		Currency:         req.Currency,
		Anonymous:        req.Anonymous,
		Note:             strings.TrimSpace(req.Note),
		SettlementStatus: room.SettlementPending,
	}
	msg := &room.Message{
		ID:       snowflake.GenerateIDString(),
		RoomID:   roomID,
		SenderID: sender,
		SentAt:   r.now(),
		Kind:     room.KindTip,
		Status:   room.StatusPending,
		Payload:  tip,
	}

	res, err := r.settler.Charge(ctx, payment.Charge{
		Sender:    sender,
		Recipient: req.Recipient,
		Amount:    req.Amount,
		Currency:  req.Currency,
		RoomID:    roomID,
	})
	if err != nil {
		tip.SettlementStatus = room.SettlementFailed
		return *msg, errorx.Wrap(err, errorx.CodeSettlementFailed, "支付结算失败")
	}
	if !res.Completed {
		tip.SettlementStatus = room.SettlementFailed
		return *msg, errorx.Newf(errorx.CodeSettlementFailed, "支付被拒绝: %s", res.Reason)
	}
	tip.SettlementStatus = room.SettlementCompleted
	tip.SettlementRef = res.Reference
	msg.Status = room.StatusApproved

	aud, err := r.store.AppendMessage(roomID, msg)
	if err != nil {
		// 结算已完成但消息未能写入，留下结算号供对账
		zap.L().Error("打赏已结算但写入房间失败",
			zap.String("room_id", roomID),
			zap.String("sender", sender),
			zap.String("settlement_ref", res.Reference),
			zap.Error(err),
		)
		return *msg, err
	}
	metrics.MessagesTotal.WithLabelValues(string(room.KindTip), string(room.StatusApproved)).Inc()
	metrics.TipVolumeTotal.WithLabelValues(req.Currency).Add(req.Amount)

	public := publicMessage(*msg)
	r.broadcast(aud, registry.EventTipReceived, public)
	r.exporter.ExportMessage(roomID, msg.ID, public, gate.Settings.EncryptionEnabled)

	announce, aud, err := r.store.AppendSystem(roomID, snowflake.GenerateIDString(), "tip", map[string]string{
		"sender":    public.SenderID,
		"recipient": req.Recipient,
		"amount":    strconv.FormatFloat(req.Amount, 'f', 2, 64),
		"currency":  req.Currency,
	})
	if err != nil {
		zap.L().Warn("写入打赏系统消息失败", zap.String("room_id", roomID), zap.Error(err))
		return *msg, nil
	}
	r.broadcast(aud, registry.EventSystemMessage, announce)
	return *msg, nil
}

// React 表情回应；同一表情再次回应即撤销
func (r *Router) React(roomID, identity, messageID, emoji string) (room.ReactionUpdate, error) {
	acc, err := r.store.Access(roomID, identity)
	if err != nil {
		return room.ReactionUpdate{}, err
	}
	if !acc.Permissions.CanSendMessages {
		return room.ReactionUpdate{}, errorx.New(errorx.CodeForbidden, "没有回应权限")
	}
	if err := r.admit(identity, ratelimit.KindReaction, 0); err != nil {
		return room.ReactionUpdate{}, err
	}
	up, aud, err := r.store.React(roomID, identity, messageID, emoji)
	if err != nil {
		return room.ReactionUpdate{}, err
	}
	r.broadcast(aud, registry.EventReactionUpdate, up)
	return up, nil
}

// CreatePoll 发起投票
func (r *Router) CreatePoll(roomID, actor, question string, options []string) (room.PollView, error) {
	p, aud, err := r.store.CreatePoll(roomID, actor, question, options)
	if err != nil {
		return room.PollView{}, err
	}
	r.broadcast(aud, registry.EventPollUpdate, p)
	return p, nil
}

// VotePoll 投票，重复投票替换之前的选择
func (r *Router) VotePoll(roomID, identity, pollID string, option int) (room.PollView, error) {
	acc, err := r.store.Access(roomID, identity)
	if err != nil {
		return room.PollView{}, err
	}
	if !acc.Permissions.CanSendMessages {
		return room.PollView{}, errorx.New(errorx.CodeForbidden, "没有投票权限")
	}
	if err := r.admit(identity, ratelimit.KindVote, 0); err != nil {
		return room.PollView{}, err
	}
	p, aud, err := r.store.VotePoll(roomID, identity, pollID, option)
	if err != nil {
		return room.PollView{}, err
	}
	r.broadcast(aud, registry.EventPollUpdate, p)
	return p, nil
}

// ClosePoll 结束投票
func (r *Router) ClosePoll(roomID, actor, pollID string) (room.PollView, error) {
	p, aud, err := r.store.ClosePoll(roomID, actor, pollID)
	if err != nil {
		return room.PollView{}, err
	}
	r.broadcast(aud, registry.EventPollUpdate, p)
	return p, nil
}

// History 房间最近的可见消息，匿名打赏隐藏发送者
func (r *Router) History(roomID, identity string, limit int) ([]room.Message, error) {
	if _, err := r.store.Member(roomID, identity); err != nil {
		return nil, err
	}
	msgs, err := r.store.History(roomID, limit)
	if err != nil {
		return nil, err
	}
	return publicMessages(msgs), nil
}
