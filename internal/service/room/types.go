// Package room 是房间状态的唯一权威：房间存在性、成员、角色权限、消息历史、投票与审核记录
// 所有状态都在内存中，按房间加锁，不使用全局锁串行化不同房间
package room

import (
	"time"
)

// Type 房间类型
type Type string

const (
	TypePrivate    Type = "private"
	TypeGroup      Type = "group"
	TypePublic     Type = "public"
	TypeLiveStream Type = "live_stream"
	TypeVideoCall  Type = "video_call"
	TypeFanClub    Type = "fan_club"
)

// capacities 各房间类型的默认容量
var capacities = map[Type]int{
	TypePrivate:    2,
	TypeGroup:      50,
	TypePublic:     500,
	TypeLiveStream: 10000,
	TypeVideoCall:  10,
	TypeFanClub:    100,
}

// Valid 是否为已知房间类型
func (t Type) Valid() bool {
	_, ok := capacities[t]
	return ok
}

// DefaultCapacity 房间类型的默认最大人数，未知类型返回 0
func DefaultCapacity(t Type) int {
	return capacities[t]
}

// Presence 成员在线状态
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceAway    Presence = "away"
	PresenceBusy    Presence = "busy"
	PresenceOffline Presence = "offline"
)

// Valid 是否为已知在线状态
func (p Presence) Valid() bool {
	switch p {
	case PresenceOnline, PresenceAway, PresenceBusy, PresenceOffline:
		return true
	}
	return false
}

// RecordingPolicy 房间录制策略
type RecordingPolicy string

const (
	RecordingAlways         RecordingPolicy = "always"
	RecordingNever          RecordingPolicy = "never"
	RecordingWithPermission RecordingPolicy = "with_permission"
)

// Valid 是否为已知录制策略
func (p RecordingPolicy) Valid() bool {
	switch p {
	case RecordingAlways, RecordingNever, RecordingWithPermission:
		return true
	}
	return false
}

// Settings 房间设置
type Settings struct {
	IsPublic             bool            `json:"is_public"`
	RequiresSubscription bool            `json:"requires_subscription"`
	MinimumTipAmount     float64         `json:"minimum_tip_amount"`
	MaxParticipants      int             `json:"max_participants"`
	EncryptionEnabled    bool            `json:"encryption_enabled"`
	RecordingPolicy      RecordingPolicy `json:"recording_policy"`
	HistoryEnabled       bool            `json:"history_enabled"`
}

// ModerationConfig 房间审核配置
type ModerationConfig struct {
	AutoModeration    bool          `json:"auto_moderation"`
	ToxicityThreshold float64       `json:"toxicity_threshold"`
	Moderators        []string      `json:"moderators"`
	ReportThreshold   int           `json:"report_threshold"`
	BanDuration       time.Duration `json:"ban_duration"`
}

// Options 创建房间时的可选覆盖项，nil 表示使用按类型生成的默认值
type Options struct {
	Name                 string
	IsPublic             *bool
	RequiresSubscription *bool
	MinimumTipAmount     *float64
	MaxParticipants      *int
	EncryptionEnabled    *bool
	RecordingPolicy      *RecordingPolicy
	HistoryEnabled       *bool
	AutoModeration       *bool
	ToxicityThreshold    *float64
	ReportThreshold      *int
	BanDuration          *time.Duration
}

// Profile 外部身份系统给出的画像信号，只用于计算初始角色和订阅校验
type Profile struct {
	Tier                   string
	PredictedLifetimeValue float64
	LoyaltyLevel           float64
	Subscribed             bool
}

// Member 房间成员
type Member struct {
	UserID            string      `json:"user_id"`
	Role              Role        `json:"role"`
	Permissions       Permissions `json:"permissions"`
	Status            Presence    `json:"status"`
	JoinedAt          time.Time   `json:"joined_at"`
	LastActivity      time.Time   `json:"last_activity"`
	ConnectionQuality float64     `json:"connection_quality"`
	MutedUntil        time.Time   `json:"muted_until,omitempty"`
}

// Muted 在 now 时刻是否处于禁言期
func (m *Member) Muted(now time.Time) bool {
	return !m.MutedUntil.IsZero() && now.Before(m.MutedUntil)
}

// Effective 返回叠加禁言后的实际权限，角色权限表本身不被修改
func (m *Member) Effective(now time.Time) Permissions {
	if m.Muted(now) {
		return m.Permissions.muted()
	}
	return m.Permissions
}

// Audience 一次变更需要通知的对象
type Audience struct {
	RoomID     string
	Members    []string // 当前全部成员
	Moderators []string // 其中拥有审核权限的成员
}

// View 房间的只读快照
type View struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Type         Type             `json:"type"`
	OwnerID      string           `json:"owner_id"`
	Settings     Settings         `json:"settings"`
	Moderation   ModerationConfig `json:"moderation"`
	Members      []Member         `json:"members"`
	ViewerCount  int              `json:"viewer_count"`
	Polls        []PollView       `json:"polls"`
	CreatedAt    time.Time        `json:"created_at"`
	LastActivity time.Time        `json:"last_activity"`
}

// JoinResult 加入房间的结果
type JoinResult struct {
	Member      Member    `json:"member"`
	Rejoined    bool      `json:"rejoined"`
	ViewerCount int       `json:"viewer_count"`
	Replay      []Message `json:"replay"`
	Audience    Audience  `json:"-"`
}

// Counters 房间计数器，供分析采样使用
type Counters struct {
	Messages           int     `json:"messages"`
	Removed            int     `json:"removed"`
	Flagged            int     `json:"flagged"`
	Tips               int     `json:"tips"`
	TipVolume          float64 `json:"tip_volume"`
	Reactions          int     `json:"reactions"`
	Votes              int     `json:"votes"`
	UniqueParticipants int     `json:"unique_participants"`
	PeakViewers        int     `json:"peak_viewers"`
	CurrentViewers     int     `json:"current_viewers"`
}

// Stats 单个房间的计数器快照
type Stats struct {
	RoomID string
	Type   Type
	Counters
	LastActivity time.Time
}
