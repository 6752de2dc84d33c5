package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"chatsphere_server/internal/infrastructure/validate"
	"chatsphere_server/internal/service/chat"
	"chatsphere_server/internal/service/registry"
	"chatsphere_server/internal/service/room"
	"chatsphere_server/internal/service/session"
	"chatsphere_server/pkg/errorx"

	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
)

// requestTimeout 单个入站事件的处理时限，主要约束打赏结算
const requestTimeout = 10 * time.Second

type handlerFunc func(ctx context.Context, h *registry.Handle, env Envelope) error

func (g *Gateway) routes() map[InboundType]handlerFunc {
	return map[InboundType]handlerFunc{
		InHeartbeat:      g.heartbeat,
		InJoinRoom:       g.joinRoom,
		InLeaveRoom:      g.leaveRoom,
		InUpdatePresence: g.updatePresence,
		InSendMessage:    g.sendMessage,
		InSendTip:        g.sendTip,
		InReact:          g.react,
		InCreatePoll:     g.createPoll,
		InVotePoll:       g.votePoll,
		InClosePoll:      g.closePoll,
		InStartSession:   g.startSession,
		InJoinSession:    g.joinSession,
		InLeaveSession:   g.leaveSession,
		InEndSession:     g.endSession,
		InSessionSignal:  g.sessionSignal,
		InSessionState:   g.sessionState,
		InModerate:       g.moderate,
		InReport:         g.report,
		InSetRole:        g.setRole,
		InUnban:          g.unban,
	}
}

// Handle 处理一个入站帧，结果和错误都写入该连接的发送队列
// authenticate 与 heartbeat 之外的事件要求连接已绑定身份
func (g *Gateway) Handle(h *registry.Handle, frame []byte) {
	g.registry.Touch(h)

	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		g.fail(h, env, errorx.Wrap(err, errorx.CodeInvalidParam, "无法解析的消息"))
		return
	}
	if err := binding.Validator.ValidateStruct(&env); err != nil {
		g.fail(h, env, errorx.Wrap(err, errorx.CodeInvalidParam, "缺少事件类型"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if env.Type == InAuthenticate {
		var req AuthenticateRequest
		if err := decode(env, &req); err != nil {
			g.fail(h, env, err)
			return
		}
		if err := g.authenticate(ctx, h, env, req.Token); err != nil {
			g.fail(h, env, err)
		}
		return
	}

	fn, ok := g.handlers[env.Type]
	if !ok {
		g.fail(h, env, errorx.Newf(errorx.CodeInvalidParam, "未知的事件类型 %q", env.Type))
		return
	}
	if env.Type != InHeartbeat && h.Identity() == "" {
		g.fail(h, env, errorx.ErrUnauthorized)
		return
	}
	if err := fn(ctx, h, env); err != nil {
		g.fail(h, env, err)
	}
}

// decode 解码并校验 data 字段
func decode(env Envelope, out any) error {
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return errorx.Wrap(err, errorx.CodeInvalidParam, "请求参数格式错误")
		}
	}
	if err := binding.Validator.ValidateStruct(out); err != nil {
		return errorx.New(errorx.CodeInvalidParam, validate.Message(err))
	}
	return nil
}

func requireRoom(env Envelope) error {
	if env.RoomID == "" {
		return errorx.New(errorx.CodeInvalidParam, "缺少 room_id")
	}
	return nil
}

// reply 回复请求方，带上 request_id 便于客户端关联
func (g *Gateway) reply(h *registry.Handle, env Envelope, typ registry.EventType, data any) {
	ev := registry.NewEvent(typ, env.RoomID, data)
	ev.RequestID = env.RequestID
	g.registry.Send(h, ev)
}

// fail 把错误转成 error 事件；非业务错误只记录日志，对外返回服务繁忙
func (g *Gateway) fail(h *registry.Handle, env Envelope, err error) {
	var codeErr *errorx.CodeError
	if !errors.As(err, &codeErr) {
		zap.L().Error("处理 ws 事件失败",
			zap.String("handle", h.ID()),
			zap.String("type", string(env.Type)),
			zap.Error(err),
		)
		codeErr = errorx.ErrServerBusy
	}
	g.reply(h, env, registry.EventError, registry.ErrorPayload{Code: codeErr.Code, Message: codeErr.Error()})
}

func (g *Gateway) authenticate(ctx context.Context, h *registry.Handle, env Envelope, token string) error {
	id, err := g.auth.Authenticate(ctx, token)
	if err != nil {
		return err
	}
	profile := id.Profile
	if err := g.registry.Authenticate(h, id.UserID, registry.Metadata{Username: id.Username, Profile: &profile}); err != nil {
		return err
	}
	g.reply(h, env, registry.EventAuthenticated, AuthenticatedPayload{
		UserID:       id.UserID,
		Username:     id.Username,
		ConnectionID: h.ID(),
	})
	return nil
}

func (g *Gateway) heartbeat(_ context.Context, h *registry.Handle, env Envelope) error {
	g.reply(h, env, registry.EventHeartbeatAck, nil)
	return nil
}

func (g *Gateway) joinRoom(_ context.Context, h *registry.Handle, env Envelope) error {
	if err := requireRoom(env); err != nil {
		return err
	}
	res, err := g.router.JoinRoom(h, env.RoomID)
	if err != nil {
		return err
	}
	g.reply(h, env, registry.EventRoomJoined, res)
	return nil
}

func (g *Gateway) leaveRoom(_ context.Context, h *registry.Handle, env Envelope) error {
	if err := requireRoom(env); err != nil {
		return err
	}
	if err := g.router.LeaveRoom(h, env.RoomID); err != nil {
		return err
	}
	g.reply(h, env, registry.EventRoomLeft, nil)
	return nil
}

func (g *Gateway) updatePresence(_ context.Context, h *registry.Handle, env Envelope) error {
	var req PresenceRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	return g.router.UpdatePresence(h.Identity(), env.RoomID, req.Status, req.ConnectionQuality)
}

func (g *Gateway) sendMessage(_ context.Context, h *registry.Handle, env Envelope) error {
	if err := requireRoom(env); err != nil {
		return err
	}
	var req SendMessageRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	var payload room.Payload
	if req.Kind == room.KindMedia {
		if req.Media == nil {
			return errorx.New(errorx.CodeInvalidParam, "缺少媒体内容")
		}
		payload = req.Media
	} else {
		payload = &room.TextPayload{Body: req.Body}
	}
	msg, err := g.router.SendMessage(env.RoomID, h.Identity(), payload, req.ReplyTo)
	if err != nil {
		return err
	}
	typ, data := chat.Outcome(msg)
	g.reply(h, env, typ, data)
	return nil
}

func (g *Gateway) sendTip(ctx context.Context, h *registry.Handle, env Envelope) error {
	if err := requireRoom(env); err != nil {
		return err
	}
	var req SendTipRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	msg, err := g.router.SendTip(ctx, env.RoomID, h.Identity(), chat.TipRequest{
		Recipient: req.Recipient,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Anonymous: req.Anonymous,
		Note:      req.Note,
	})
	if err != nil {
		return err
	}
	typ, data := chat.Outcome(msg)
	g.reply(h, env, typ, data)
	return nil
}

func (g *Gateway) react(_ context.Context, h *registry.Handle, env Envelope) error {
	if err := requireRoom(env); err != nil {
		return err
	}
	var req ReactRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	_, err := g.router.React(env.RoomID, h.Identity(), req.MessageID, req.Emoji)
	return err
}

func (g *Gateway) createPoll(_ context.Context, h *registry.Handle, env Envelope) error {
	if err := requireRoom(env); err != nil {
		return err
	}
	var req CreatePollRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	_, err := g.router.CreatePoll(env.RoomID, h.Identity(), req.Question, req.Options)
	return err
}

func (g *Gateway) votePoll(_ context.Context, h *registry.Handle, env Envelope) error {
	if err := requireRoom(env); err != nil {
		return err
	}
	var req VotePollRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	_, err := g.router.VotePoll(env.RoomID, h.Identity(), req.PollID, req.Option)
	return err
}

func (g *Gateway) closePoll(_ context.Context, h *registry.Handle, env Envelope) error {
	if err := requireRoom(env); err != nil {
		return err
	}
	var req ClosePollRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	_, err := g.router.ClosePoll(env.RoomID, h.Identity(), req.PollID)
	return err
}

func (g *Gateway) startSession(_ context.Context, h *registry.Handle, env Envelope) error {
	if err := requireRoom(env); err != nil {
		return err
	}
	var req StartSessionRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	start := session.StartRequest{
		RoomID:    env.RoomID,
		Initiator: h.Identity(),
		Type:      req.Type,
		Recording: req.Recording,
	}
	if req.Quality != nil {
		start.Quality = *req.Quality
	}
	if req.Media != nil {
		start.Media = *req.Media
	}
	_, err := g.router.StartSession(start)
	return err
}

func (g *Gateway) joinSession(_ context.Context, h *registry.Handle, env Envelope) error {
	var req SessionRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	_, err := g.router.JoinSession(req.SessionID, h.Identity(), req.Media)
	return err
}

func (g *Gateway) leaveSession(_ context.Context, h *registry.Handle, env Envelope) error {
	var req SessionRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	_, err := g.router.LeaveSession(req.SessionID, h.Identity())
	return err
}

func (g *Gateway) endSession(_ context.Context, h *registry.Handle, env Envelope) error {
	var req SessionRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	_, err := g.router.EndSession(req.SessionID, h.Identity())
	return err
}

func (g *Gateway) sessionSignal(_ context.Context, h *registry.Handle, env Envelope) error {
	var req SignalRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	return g.router.RelaySignal(session.Signal{
		SessionID: req.SessionID,
		From:      h.Identity(),
		To:        req.To,
		Kind:      req.Kind,
		Payload:   req.Payload,
	})
}

func (g *Gateway) sessionState(_ context.Context, h *registry.Handle, env Envelope) error {
	var req SessionStateRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	_, err := g.router.UpdateSessionState(req.SessionID, h.Identity(), req.State)
	return err
}

func (g *Gateway) moderate(_ context.Context, h *registry.Handle, env Envelope) error {
	if err := requireRoom(env); err != nil {
		return err
	}
	var req ModerateRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	_, err := g.router.Moderate(env.RoomID, h.Identity(), room.ModerationAction{
		Kind:      req.Kind,
		TargetID:  req.TargetID,
		MessageID: req.MessageID,
		Reason:    req.Reason,
		Duration:  time.Duration(req.DurationSeconds) * time.Second,
	})
	return err
}

func (g *Gateway) report(_ context.Context, h *registry.Handle, env Envelope) error {
	if err := requireRoom(env); err != nil {
		return err
	}
	var req ReportRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	_, err := g.router.Report(env.RoomID, h.Identity(), req.TargetID, req.Reason)
	return err
}

func (g *Gateway) setRole(_ context.Context, h *registry.Handle, env Envelope) error {
	if err := requireRoom(env); err != nil {
		return err
	}
	var req SetRoleRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	_, err := g.router.SetRole(env.RoomID, h.Identity(), req.TargetID, req.Role)
	return err
}

func (g *Gateway) unban(_ context.Context, h *registry.Handle, env Envelope) error {
	if err := requireRoom(env); err != nil {
		return err
	}
	var req UnbanRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	_, err := g.router.Unban(env.RoomID, h.Identity(), req.TargetID)
	return err
}
