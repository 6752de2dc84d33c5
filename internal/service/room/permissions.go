package room

import "chatsphere_server/pkg/constants"

// Role 成员角色，rank 越大权限越高
type Role string

const (
	RoleOwner      Role = "owner"
	RoleModerator  Role = "moderator"
	RoleVIP        Role = "vip"
	RolePremium    Role = "premium"
	RoleRegular    Role = "regular"
	RoleNewcomer   Role = "newcomer"
	RoleRestricted Role = "restricted"
)

var roleRank = map[Role]int{
	RoleRestricted: 1,
	RoleNewcomer:   2,
	RoleRegular:    3,
	RolePremium:    4,
	RoleVIP:        5,
	RoleModerator:  6,
	RoleOwner:      7,
}

// Valid 是否为已知角色
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Rank 角色等级，未知角色为 0
func (r Role) Rank() int {
	return roleRank[r]
}

// Outranks r 的等级是否严格高于 o
func (r Role) Outranks(o Role) bool {
	return r.Rank() > o.Rank()
}

// Permissions 由角色推导出的权限集合
type Permissions struct {
	CanSendMessages   bool `json:"can_send_messages"`
	CanSendMedia      bool `json:"can_send_media"`
	CanSendGifs       bool `json:"can_send_gifs"`
	CanTip            bool `json:"can_tip"`
	CanPrivateMessage bool `json:"can_private_message"`
	CanUseVoice       bool `json:"can_use_voice"`
	CanUseVideo       bool `json:"can_use_video"`
	CanScreenShare    bool `json:"can_screen_share"`
	CanModerate       bool `json:"can_moderate"`
	MaxMessageLength  int  `json:"max_message_length"`
	MessagesPerMinute int  `json:"messages_per_minute"`
	TipsPerMinute     int  `json:"tips_per_minute"`
}

var permissionTable = map[Role]Permissions{
	RoleOwner: {
		CanSendMessages: true, CanSendMedia: true, CanSendGifs: true, CanTip: true,
		CanPrivateMessage: true, CanUseVoice: true, CanUseVideo: true, CanScreenShare: true,
		CanModerate: true, MaxMessageLength: 1000, MessagesPerMinute: 100, TipsPerMinute: 50,
	},
	RoleModerator: {
		CanSendMessages: true, CanSendMedia: true, CanSendGifs: true, CanTip: true,
		CanUseVoice: true, CanModerate: true,
		MaxMessageLength: 500, MessagesPerMinute: 50, TipsPerMinute: 20,
	},
	RoleVIP: {
		CanSendMessages: true, CanSendMedia: true, CanSendGifs: true, CanTip: true,
		CanPrivateMessage: true, CanUseVoice: true, CanUseVideo: true,
		MaxMessageLength: 400, MessagesPerMinute: 30, TipsPerMinute: 15,
	},
	RolePremium: {
		CanSendMessages: true, CanSendMedia: true, CanSendGifs: true, CanTip: true,
		CanUseVoice: true,
		MaxMessageLength: 300, MessagesPerMinute: 20, TipsPerMinute: 10,
	},
	RoleRegular: {
		CanSendMessages: true, CanSendGifs: true, CanTip: true,
		MaxMessageLength: 200, MessagesPerMinute: 10, TipsPerMinute: 5,
	},
	RoleNewcomer: {
		CanSendMessages: true, CanTip: true,
		MaxMessageLength: 150, MessagesPerMinute: 5, TipsPerMinute: 3,
	},
	RoleRestricted: {
		CanTip: true, TipsPerMinute: 3,
	},
}

// PermissionsFor 角色对应的权限，是角色的纯函数
func PermissionsFor(r Role) Permissions {
	return permissionTable[r]
}

// muted 禁言期间所有发送类权限和打赏权限都读为 false
func (p Permissions) muted() Permissions {
	p.CanSendMessages = false
	p.CanSendMedia = false
	p.CanSendGifs = false
	p.CanTip = false
	p.CanPrivateMessage = false
	return p
}

// roleFromProfile 依据画像信号推导初始角色
func roleFromProfile(p *Profile) Role {
	if p == nil {
		return RoleRegular
	}
	switch {
	case p.PredictedLifetimeValue > constants.VIP_LIFETIME_VALUE:
		return RoleVIP
	case p.LoyaltyLevel > constants.PREMIUM_LOYALTY_LEVEL:
		return RolePremium
	}
	return RoleRegular
}
