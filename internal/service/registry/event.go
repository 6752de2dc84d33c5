package registry

import "time"

// EventType 出站事件类型
type EventType string

const (
	EventAuthenticated   EventType = "authenticated"
	EventRoomJoined      EventType = "room_joined"
	EventRoomLeft        EventType = "room_left"
	EventMemberJoined    EventType = "member_joined"
	EventMemberLeft      EventType = "member_left"
	EventPresenceUpdate  EventType = "presence_update"
	EventRoleUpdated     EventType = "role_updated"
	EventReportReceived  EventType = "report_received"
	EventNewMessage      EventType = "new_message"
	EventMessageAccepted EventType = "message_accepted"
	EventMessageRejected EventType = "message_rejected"
	EventMessageFlagged  EventType = "message_flagged"
	EventMessageDeleted  EventType = "message_deleted"
	EventReactionUpdate  EventType = "reaction_update"
	EventTipReceived     EventType = "tip_received"
	EventViewerCount     EventType = "viewer_count"
	EventSystemMessage   EventType = "system_message"
	EventModeration      EventType = "moderation_action"
	EventUserKicked      EventType = "user_kicked"
	EventPollUpdate      EventType = "poll_update"
	EventSessionStarted  EventType = "session_started"
	EventSessionUpdated  EventType = "session_updated"
	EventSessionEnded    EventType = "session_ended"
	EventSessionSignal   EventType = "session_signal"
	EventRoomClosed      EventType = "room_closed"
	EventHeartbeat       EventType = "heartbeat"
	EventHeartbeatAck    EventType = "heartbeat_ack"
	EventError           EventType = "error"
)

// Event 出站事件，Data 为与 Type 对应的具体载荷
type Event struct {
	Type      EventType `json:"type"`
	RequestID string    `json:"request_id,omitempty"`
	RoomID    string    `json:"room_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent 构造带当前时间戳的事件
func NewEvent(typ EventType, roomID string, data any) Event {
	return Event{Type: typ, RoomID: roomID, Data: data, Timestamp: time.Now()}
}

// ErrorPayload error 事件载荷
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
