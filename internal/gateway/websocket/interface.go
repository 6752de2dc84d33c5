package websocket

import (
	"encoding/json"

	"chatsphere_server/internal/service/room"
	"chatsphere_server/internal/service/session"
)

// InboundType 客户端发来的事件类型
type InboundType string

const (
	InAuthenticate   InboundType = "authenticate"
	InHeartbeat      InboundType = "heartbeat"
	InJoinRoom       InboundType = "join_room"
	InLeaveRoom      InboundType = "leave_room"
	InUpdatePresence InboundType = "update_presence"
	InSendMessage    InboundType = "send_message"
	InSendTip        InboundType = "send_tip"
	InReact          InboundType = "react"
	InCreatePoll     InboundType = "create_poll"
	InVotePoll       InboundType = "vote_poll"
	InClosePoll      InboundType = "close_poll"
	InStartSession   InboundType = "start_session"
	InJoinSession    InboundType = "join_session"
	InLeaveSession   InboundType = "leave_session"
	InEndSession     InboundType = "end_session"
	InSessionSignal  InboundType = "session_signal"
	InSessionState   InboundType = "session_state"
	InModerate       InboundType = "moderate"
	InReport         InboundType = "report"
	InSetRole        InboundType = "set_role"
	InUnban          InboundType = "unban"
)

// Envelope 入站帧外层结构，Data 按 Type 解码为对应的请求
type Envelope struct {
	Type      InboundType     `json:"type" binding:"required"`
	RequestID string          `json:"request_id"`
	RoomID    string          `json:"room_id"`
	Data      json.RawMessage `json:"data"`
}

// AuthenticateRequest 绑定身份
type AuthenticateRequest struct {
	Token string `json:"token" binding:"required"`
}

// AuthenticatedPayload authenticated 事件载荷
type AuthenticatedPayload struct {
	UserID       string `json:"user_id"`
	Username     string `json:"username,omitempty"`
	ConnectionID string `json:"connection_id"`
}

// PresenceRequest 更新在线状态，room_id 为空时作用于全部已加入的房间
type PresenceRequest struct {
	Status            room.Presence `json:"status" binding:"required,presence"`
	ConnectionQuality float64       `json:"connection_quality"`
}

// SendMessageRequest 文本或媒体消息，Kind 为空按文本处理
type SendMessageRequest struct {
	Kind    room.MessageKind   `json:"kind" binding:"omitempty,oneof=text media"`
	Body    string             `json:"body"`
	Media   *room.MediaPayload `json:"media"`
	ReplyTo string             `json:"reply_to"`
}

// SendTipRequest 打赏
type SendTipRequest struct {
	Recipient string  `json:"recipient" binding:"required"`
	Amount    float64 `json:"amount" binding:"gt=0"`
	Currency  string  `json:"currency"`
	Anonymous bool    `json:"anonymous"`
	Note      string  `json:"note" binding:"max=280"`
}

// ReactRequest 表情回应
type ReactRequest struct {
	MessageID string `json:"message_id" binding:"required"`
	Emoji     string `json:"emoji" binding:"required"`
}

// CreatePollRequest 发起投票
type CreatePollRequest struct {
	Question string   `json:"question" binding:"required"`
	Options  []string `json:"options" binding:"required,min=2"`
}

// VotePollRequest 投票，Option 为选项下标
type VotePollRequest struct {
	PollID string `json:"poll_id" binding:"required"`
	Option int    `json:"option" binding:"gte=0"`
}

// ClosePollRequest 结束投票
type ClosePollRequest struct {
	PollID string `json:"poll_id" binding:"required"`
}

// StartSessionRequest 发起音视频会话
type StartSessionRequest struct {
	Type      session.Type     `json:"type" binding:"required,session_type"`
	Quality   *session.Quality `json:"quality"`
	Media     *session.Media   `json:"media"`
	Recording bool             `json:"recording"`
}

// SessionRequest 加入、离开或结束会话
type SessionRequest struct {
	SessionID string        `json:"session_id" binding:"required"`
	Media     session.Media `json:"media"`
}

// SignalRequest SDP/ICE 信令
type SignalRequest struct {
	SessionID string          `json:"session_id" binding:"required"`
	To        string          `json:"to" binding:"required"`
	Kind      string          `json:"kind" binding:"required,oneof=offer answer candidate"`
	Payload   json.RawMessage `json:"payload"`
}

// SessionStateRequest 上报自己在会话中的连接状态
type SessionStateRequest struct {
	SessionID string            `json:"session_id" binding:"required"`
	State     session.ConnState `json:"state" binding:"required,conn_state"`
}

// ModerateRequest 人工审核动作，DurationSeconds 只对 mute 有意义
type ModerateRequest struct {
	Kind            room.ActionKind `json:"kind" binding:"required,action_kind"`
	TargetID        string          `json:"target_id"`
	MessageID       string          `json:"message_id"`
	Reason          string          `json:"reason"`
	DurationSeconds int             `json:"duration_seconds" binding:"gte=0"`
}

// ReportRequest 举报成员
type ReportRequest struct {
	TargetID string `json:"target_id" binding:"required"`
	Reason   string `json:"reason"`
}

// SetRoleRequest 调整成员角色
type SetRoleRequest struct {
	TargetID string    `json:"target_id" binding:"required"`
	Role     room.Role `json:"role" binding:"required,room_role"`
}

// UnbanRequest 解除封禁
type UnbanRequest struct {
	TargetID string `json:"target_id" binding:"required"`
}
