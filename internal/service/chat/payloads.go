package chat

import (
	"chatsphere_server/internal/service/registry"
	"chatsphere_server/internal/service/room"
	"chatsphere_server/internal/service/session"
	"chatsphere_server/pkg/constants"
)

// 出站事件载荷

// MemberPayload member_joined / member_left / role_updated
type MemberPayload struct {
	UserID string        `json:"user_id"`
	Role   room.Role     `json:"role,omitempty"`
	Status room.Presence `json:"status,omitempty"`
}

// PresencePayload presence_update
type PresencePayload struct {
	UserID            string        `json:"user_id"`
	Status            room.Presence `json:"status"`
	ConnectionQuality float64       `json:"connection_quality"`
}

// ViewerCountPayload viewer_count
type ViewerCountPayload struct {
	Count int `json:"count"`
}

// RejectedPayload message_rejected，只回复发起请求的连接
type RejectedPayload struct {
	MessageID string  `json:"message_id"`
	Reason    string  `json:"reason"`
	Score     float64 `json:"score"`
}

// AcceptedPayload message_accepted，只回复发起请求的连接
type AcceptedPayload struct {
	MessageID     string      `json:"message_id"`
	Status        room.Status `json:"status"`
	SettlementRef string      `json:"settlement_ref,omitempty"`
}

// Outcome 发送结果对应的回执：removed 为 message_rejected，其余为 message_accepted
func Outcome(m room.Message) (registry.EventType, any) {
	if m.Status == room.StatusRemoved {
		return registry.EventMessageRejected, RejectedPayload{
			MessageID: m.ID,
			Reason:    m.ModerationReason,
			Score:     m.ModerationScore,
		}
	}
	out := AcceptedPayload{MessageID: m.ID, Status: m.Status}
	if tip := m.Tip(); tip != nil {
		out.SettlementRef = tip.SettlementRef
	}
	return registry.EventMessageAccepted, out
}

// FlaggedPayload message_flagged，只发给审核员和发送者
type FlaggedPayload struct {
	Message room.Message `json:"message"`
	Reason  string       `json:"reason"`
	Score   float64      `json:"score"`
}

// DeletedPayload message_deleted
type DeletedPayload struct {
	MessageID string `json:"message_id"`
	ActionID  string `json:"action_id"`
}

// ReportPayload report_received，只发给审核员
type ReportPayload struct {
	ReporterID string `json:"reporter_id"`
	TargetID   string `json:"target_id"`
	Reason     string `json:"reason"`
	Count      int    `json:"count"`
	Threshold  int    `json:"threshold"`
}

// RoomClosedPayload room_closed
type RoomClosedPayload struct {
	Reason string `json:"reason"` // closed_by_owner, idle
}

// SessionPayload session_started / session_updated / session_ended
type SessionPayload struct {
	Session session.View `json:"session"`
}

// publicMessage 对外展示的消息：匿名打赏隐藏发送者
func publicMessage(m room.Message) room.Message {
	if tip := m.Tip(); tip != nil && tip.Anonymous {
		m.SenderID = constants.ANONYMOUS_SENDER
	}
	return m
}

func publicMessages(ms []room.Message) []room.Message {
	out := make([]room.Message, len(ms))
	for i, m := range ms {
		out[i] = publicMessage(m)
	}
	return out
}
