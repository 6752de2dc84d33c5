package chat

import (
	"chatsphere_server/internal/metrics"
	"chatsphere_server/internal/service/ratelimit"
	"chatsphere_server/internal/service/registry"
	"chatsphere_server/internal/service/session"
	"chatsphere_server/pkg/errorx"
)

// StartSession 发起音视频会话，房间全部成员收到 session_started，其他人需要单独加入
func (r *Router) StartSession(req session.StartRequest) (session.View, error) {
	if err := r.admit(req.Initiator, ratelimit.KindSession, 0); err != nil {
		return session.View{}, err
	}
	c, err := r.sessions.Start(req)
	if err != nil {
		return session.View{}, err
	}
	metrics.PeerSessions.Set(float64(r.sessions.Active()))
	r.broadcast(c.Audience, registry.EventSessionStarted, SessionPayload{Session: c.Session})
	return c.Session, nil
}

// JoinSession 加入会话
func (r *Router) JoinSession(sessionID, identity string, media session.Media) (session.View, error) {
	c, err := r.sessions.Join(sessionID, identity, media)
	if err != nil {
		return session.View{}, err
	}
	r.broadcastSession(c)
	return c.Session, nil
}

// LeaveSession 离开会话，最后一个参与者离开时会话结束
func (r *Router) LeaveSession(sessionID, identity string) (session.View, error) {
	c, changed, err := r.sessions.Leave(sessionID, identity)
	if err != nil {
		return session.View{}, err
	}
	if changed {
		r.broadcastSession(c)
	}
	return c.Session, nil
}

// EndSession 结束会话，发起人或审核员可用
func (r *Router) EndSession(sessionID, actor string) (session.View, error) {
	c, err := r.sessions.End(sessionID, actor)
	if err != nil {
		return session.View{}, err
	}
	r.broadcastSession(c)
	return c.Session, nil
}

// UpdateSessionState 参与者上报自己的连接状态，其它参与者收到 session_updated
func (r *Router) UpdateSessionState(sessionID, identity string, state session.ConnState) (session.View, error) {
	c, err := r.sessions.UpdateState(sessionID, identity, state)
	if err != nil {
		return session.View{}, err
	}
	ev := registry.NewEvent(registry.EventSessionUpdated, c.Session.RoomID, SessionPayload{Session: c.Session})
	r.registry.Broadcast(c.Session.RoomID, participants(c.Session), ev, identity)
	return c.Session, nil
}

// RelaySignal 把 SDP/ICE 信令转发给会话中的单个参与者
func (r *Router) RelaySignal(sig session.Signal) error {
	out, err := r.sessions.Relay(sig)
	if err != nil {
		return err
	}
	v, err := r.sessions.Get(out.SessionID)
	if err != nil {
		return err
	}
	if r.registry.SendToIdentity(out.To, registry.NewEvent(registry.EventSessionSignal, v.RoomID, out)) == 0 {
		return errorx.Newf(errorx.CodeNotFound, "用户 %s 当前不在线", out.To)
	}
	return nil
}

// broadcastSession 会话变更通知房间成员，已结束的会话发 session_ended
func (r *Router) broadcastSession(c session.Change) {
	typ := registry.EventSessionUpdated
	if c.Session.Ended {
		typ = registry.EventSessionEnded
		metrics.PeerSessions.Set(float64(r.sessions.Active()))
	}
	r.broadcast(c.Audience, typ, SessionPayload{Session: c.Session})
}

func participants(v session.View) []string {
	out := make([]string, 0, len(v.Participants))
	for _, p := range v.Participants {
		out = append(out, p.UserID)
	}
	return out
}
