package room

import (
	"time"
)

// MessageKind 消息类型
type MessageKind string

const (
	KindText   MessageKind = "text"
	KindMedia  MessageKind = "media"
	KindTip    MessageKind = "tip"
	KindSystem MessageKind = "system"
)

// Status 审核状态：pending -> approved | flagged | removed，终态不再迁移
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusFlagged  Status = "flagged"
	StatusRemoved  Status = "removed"
)

// Payload 消息载荷，每种消息类型一个具体结构
type Payload interface {
	Kind() MessageKind
}

// TextPayload 文本消息
type TextPayload struct {
	Body     string   `json:"body"`
	Mentions []string `json:"mentions,omitempty"`
	Hashtags []string `json:"hashtags,omitempty"`
}

func (*TextPayload) Kind() MessageKind { return KindText }

// MediaPayload 媒体消息，Fingerprint 为外部内容指纹引用，本服务不解析
type MediaPayload struct {
	URL         string  `json:"url"`
	MediaType   string  `json:"media_type"` // image, video, audio, gif
	Size        int64   `json:"size,omitempty"`
	Duration    float64 `json:"duration,omitempty"`
	Price       float64 `json:"price,omitempty"`
	Fingerprint string  `json:"fingerprint,omitempty"`
	Caption     string  `json:"caption,omitempty"`
}

func (*MediaPayload) Kind() MessageKind { return KindMedia }

// IsGif gif 走 can_send_gifs 权限而非 can_send_media
func (p *MediaPayload) IsGif() bool { return p.MediaType == "gif" }

// SettlementStatus 打赏结算状态
type SettlementStatus string

const (
	SettlementPending   SettlementStatus = "pending"
	SettlementCompleted SettlementStatus = "completed"
	SettlementFailed    SettlementStatus = "failed"
)

// TipPayload 打赏消息
type TipPayload struct {
	Recipient        string           `json:"recipient"`
	Amount           float64          `json:"amount"`
	Currency         string           `json:"currency"`
	Anonymous        bool             `json:"anonymous"`
	Note             string           `json:"note,omitempty"`
	SettlementRef    string           `json:"settlement_ref,omitempty"`
	SettlementStatus SettlementStatus `json:"settlement_status"`
}

func (*TipPayload) Kind() MessageKind { return KindTip }

// SystemPayload 系统消息
type SystemPayload struct {
	Subtype string            `json:"subtype"`
	Data    map[string]string `json:"data,omitempty"`
}

func (*SystemPayload) Kind() MessageKind { return KindSystem }

// Message 房间消息；RoomID、SenderID、SentAt 创建后不可变
type Message struct {
	ID        string            `json:"id"`
	RoomID    string            `json:"room_id"`
	SenderID  string            `json:"sender_id"`
	SentAt    time.Time         `json:"sent_at"`
	Kind      MessageKind       `json:"kind"`
	Status    Status            `json:"status"`
	ReplyTo   string            `json:"reply_to,omitempty"`
	Reactions map[string]string `json:"reactions,omitempty"` // identity -> emoji
	Edited    bool              `json:"edited,omitempty"`
	Deleted   bool              `json:"deleted,omitempty"`

	// ModerationReason 被 flag 或 remove 的原因（toxic、spam 或人工原因）
	ModerationReason string  `json:"moderation_reason,omitempty"`
	ModerationScore  float64 `json:"moderation_score,omitempty"`

	Payload Payload `json:"payload"`
}

// Text 文本载荷，非文本消息返回 nil
func (m *Message) Text() *TextPayload {
	p, _ := m.Payload.(*TextPayload)
	return p
}

// Tip 打赏载荷，非打赏消息返回 nil
func (m *Message) Tip() *TipPayload {
	p, _ := m.Payload.(*TipPayload)
	return p
}

// clone 深拷贝 Reactions，载荷按值共享（载荷创建后不再修改）
func (m *Message) clone() Message {
	c := *m
	if m.Reactions != nil {
		c.Reactions = make(map[string]string, len(m.Reactions))
		for k, v := range m.Reactions {
			c.Reactions[k] = v
		}
	}
	return c
}

// ActionKind 审核动作类型
type ActionKind string

const (
	ActionWarn          ActionKind = "warn"
	ActionMute          ActionKind = "mute"
	ActionKick          ActionKind = "kick"
	ActionBan           ActionKind = "ban"
	ActionMessageDelete ActionKind = "message_delete"
)

// Valid 是否为已知动作类型
func (k ActionKind) Valid() bool {
	switch k {
	case ActionWarn, ActionMute, ActionKick, ActionBan, ActionMessageDelete:
		return true
	}
	return false
}

// ModerationAction 一次审核决定的记录
type ModerationAction struct {
	ID         string        `json:"id"`
	RoomID     string        `json:"room_id"`
	TargetID   string        `json:"target_id"`
	ActorID    string        `json:"actor_id"`
	Kind       ActionKind    `json:"kind"`
	Reason     string        `json:"reason"`
	MessageID  string        `json:"message_id,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	Automated  bool          `json:"automated"`
	Appealable bool          `json:"appealable"`
	Enacted    bool          `json:"enacted"`
}

// ActionResult 执行审核动作后的结果
type ActionResult struct {
	Action ModerationAction
	// Evicted 目标是否因此失去成员身份（kick/ban）
	Evicted bool
	// DeletedMessage message_delete 命中的历史消息 ID
	DeletedMessage string
	Audience       Audience
}

// ReviewItem 待人工复核的 flagged 消息
type ReviewItem struct {
	Message Message   `json:"message"`
	AddedAt time.Time `json:"added_at"`
}
