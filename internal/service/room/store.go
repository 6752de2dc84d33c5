package room

import (
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"chatsphere_server/internal/config"
	"chatsphere_server/pkg/constants"
	"chatsphere_server/pkg/errorx"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditSink 审核记录的外部落点，调用发生在房间锁内，实现必须是非阻塞的
type AuditSink interface {
	RecordAction(a ModerationAction)
	RecordBan(roomID, userID, actorID, reason string, at time.Time)
	RecordUnban(roomID, userID string)
	RecordRoomClosed(roomID string)
}

type noopSink struct{}

func (noopSink) RecordAction(ModerationAction)                        {}
func (noopSink) RecordBan(string, string, string, string, time.Time) {}
func (noopSink) RecordUnban(string, string)                           {}
func (noopSink) RecordRoomClosed(string)                              {}

// Option Store 构造选项
type Option func(*Store)

// WithClock 注入时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithAuditSink 注入审核记录落点
func WithAuditSink(sink AuditSink) Option {
	return func(s *Store) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// Store 房间存储
// mu 只保护 rooms 映射本身；房间内部状态由各自的 Room.mu 保护
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	historyCapacity int
	replayCount     int
	auditCapacity   int
	reviewCapacity  int

	now  func() time.Time
	sink AuditSink
}

// NewStore 创建房间存储
func NewStore(conf config.ChatConfig, opts ...Option) *Store {
	s := &Store{
		rooms:           make(map[string]*Room),
		historyCapacity: conf.HistoryCapacity,
		replayCount:     conf.ReplayCount,
		auditCapacity:   conf.AuditCapacity,
		reviewCapacity:  conf.ReviewCapacity,
		now:             time.Now,
		sink:            noopSink{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type moderationState struct {
	auto            bool
	threshold       float64
	moderators      map[string]struct{}
	reportThreshold int
	banDuration     time.Duration
}

// Room 单个房间的可变状态，所有字段受 mu 保护
type Room struct {
	mu sync.Mutex

	id        string
	name      string
	typ       Type
	owner     string
	createdAt time.Time

	settings   Settings
	moderation moderationState

	members map[string]*Member
	bans    map[string]time.Time
	reports map[string]map[string]struct{} // target -> reporters
	// 禁言和角色调整按身份保存，离开后重新加入仍然生效
	mutes map[string]time.Time
	roles map[string]Role

	history    *ring[*Message]
	quarantine *ring[Message] // 被移除的消息，只用于审计
	review     *ring[ReviewItem]
	audit      *ring[ModerationAction]

	polls     map[string]*Poll
	pollOrder []string

	counters     Counters
	participants map[string]struct{}
	lastActivity time.Time
	closed       bool
}

// CreateRoom 创建房间
// 按类型生成默认设置，房主是唯一的初始审核员，并以 offline 状态占据一个成员席位
func (s *Store) CreateRoom(owner string, typ Type, opts Options) (View, error) {
	if owner == "" {
		return View{}, errorx.New(errorx.CodeInvalidParam, "房主不能为空")
	}
	if !typ.Valid() {
		return View{}, errorx.Newf(errorx.CodeInvalidParam, "未知的房间类型 %q", typ)
	}
	now := s.now()

	settings := Settings{
		IsPublic:          typ == TypePublic || typ == TypeLiveStream,
		MinimumTipAmount:  1,
		MaxParticipants:   DefaultCapacity(typ),
		EncryptionEnabled: true,
		RecordingPolicy:   RecordingWithPermission,
		HistoryEnabled:    true,
	}
	mod := moderationState{
		auto:            true,
		threshold:       0.7,
		moderators:      map[string]struct{}{owner: {}},
		reportThreshold: 3,
		banDuration:     60 * time.Minute,
	}
	if err := applyOptions(&settings, &mod, opts); err != nil {
		return View{}, err
	}

	r := &Room{
		id:           uuid.NewString(),
		name:         opts.Name,
		typ:          typ,
		owner:        owner,
		createdAt:    now,
		settings:     settings,
		moderation:   mod,
		members:      make(map[string]*Member),
		bans:         make(map[string]time.Time),
		reports:      make(map[string]map[string]struct{}),
		mutes:        make(map[string]time.Time),
		roles:        make(map[string]Role),
		history:      newRing[*Message](s.historyCapacity),
		quarantine:   newRing[Message](s.auditCapacity),
		review:       newRing[ReviewItem](s.reviewCapacity),
		audit:        newRing[ModerationAction](s.auditCapacity),
		polls:        make(map[string]*Poll),
		participants: make(map[string]struct{}),
		lastActivity: now,
	}
	if r.name == "" {
		r.name = string(typ) + "-" + r.id[:8]
	}
	r.members[owner] = &Member{
		UserID:       owner,
		Role:         RoleOwner,
		Permissions:  PermissionsFor(RoleOwner),
		Status:       PresenceOffline,
		JoinedAt:     now,
		LastActivity: now,
	}
	r.participants[owner] = struct{}{}
	r.counters.UniqueParticipants = 1

	s.mu.Lock()
	s.rooms[r.id] = r
	s.mu.Unlock()

	zap.L().Info("房间已创建", zap.String("room_id", r.id), zap.String("owner", owner), zap.String("type", string(typ)))
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view(), nil
}

func applyOptions(settings *Settings, mod *moderationState, o Options) error {
	if o.IsPublic != nil {
		settings.IsPublic = *o.IsPublic
	}
	if o.RequiresSubscription != nil {
		settings.RequiresSubscription = *o.RequiresSubscription
	}
	if o.MinimumTipAmount != nil {
		if *o.MinimumTipAmount < 0 {
			return errorx.New(errorx.CodeInvalidParam, "最低打赏金额不能为负")
		}
		settings.MinimumTipAmount = *o.MinimumTipAmount
	}
	if o.MaxParticipants != nil {
		if *o.MaxParticipants < 1 {
			return errorx.New(errorx.CodeInvalidParam, "房间容量至少为 1")
		}
		settings.MaxParticipants = *o.MaxParticipants
	}
	if o.EncryptionEnabled != nil {
		settings.EncryptionEnabled = *o.EncryptionEnabled
	}
	if o.RecordingPolicy != nil {
		if !o.RecordingPolicy.Valid() {
			return errorx.Newf(errorx.CodeInvalidParam, "未知的录制策略 %q", *o.RecordingPolicy)
		}
		settings.RecordingPolicy = *o.RecordingPolicy
	}
	if o.HistoryEnabled != nil {
		settings.HistoryEnabled = *o.HistoryEnabled
	}
	if o.AutoModeration != nil {
		mod.auto = *o.AutoModeration
	}
	if o.ToxicityThreshold != nil {
		if *o.ToxicityThreshold < 0 || *o.ToxicityThreshold > 1 {
			return errorx.New(errorx.CodeInvalidParam, "毒性阈值必须在 [0,1] 区间")
		}
		mod.threshold = *o.ToxicityThreshold
	}
	if o.ReportThreshold != nil {
		if *o.ReportThreshold < 1 {
			return errorx.New(errorx.CodeInvalidParam, "举报阈值至少为 1")
		}
		mod.reportThreshold = *o.ReportThreshold
	}
	if o.BanDuration != nil {
		if *o.BanDuration <= 0 {
			return errorx.New(errorx.CodeInvalidParam, "禁言时长必须为正")
		}
		mod.banDuration = *o.BanDuration
	}
	return nil
}

// lock 取出房间并加锁，调用方负责 Unlock
func (s *Store) lock(roomID string) (*Room, error) {
	s.mu.RLock()
	r, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if !ok {
		return nil, errorx.Newf(errorx.CodeNotFound, "房间 %s 不存在", roomID)
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errorx.Newf(errorx.CodeNotFound, "房间 %s 已关闭", roomID)
	}
	return r, nil
}

// Get 返回房间快照
func (s *Store) Get(roomID string) (View, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return View{}, err
	}
	defer r.mu.Unlock()
	return r.view(), nil
}

// Exists 房间是否存在且未关闭
func (s *Store) Exists(roomID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[roomID]
	return ok
}

// Join 加入房间
// 已是成员时刷新为 online 并返回原成员记录；重新加入不受容量限制
func (s *Store) Join(roomID, userID string, profile *Profile) (JoinResult, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return JoinResult{}, err
	}
	defer r.mu.Unlock()
	now := s.now()

	if _, banned := r.bans[userID]; banned {
		return JoinResult{}, errorx.Newf(errorx.CodeBanned, "用户 %s 已被房间 %s 封禁", userID, roomID)
	}

	if m, ok := r.members[userID]; ok {
		m.Status = PresenceOnline
		m.LastActivity = now
		r.touch(now)
		return r.joinResult(m, true, s.replayCount), nil
	}

	role := r.roleFor(userID, profile)
	if r.settings.RequiresSubscription && role.Rank() < RoleModerator.Rank() && (profile == nil || !profile.Subscribed) {
		return JoinResult{}, errorx.Newf(errorx.CodeForbidden, "房间 %s 需要订阅", roomID)
	}
	if len(r.members) >= r.settings.MaxParticipants {
		return JoinResult{}, errorx.Newf(errorx.CodeRoomFull, "房间 %s 已满（%d 人）", roomID, r.settings.MaxParticipants)
	}

	m := &Member{
		UserID:       userID,
		Role:         role,
		Permissions:  PermissionsFor(role),
		Status:       PresenceOnline,
		JoinedAt:     now,
		LastActivity: now,
	}
	if until, ok := r.mutes[userID]; ok {
		if now.Before(until) {
			m.MutedUntil = until
		} else {
			delete(r.mutes, userID)
		}
	}
	r.members[userID] = m
	if _, seen := r.participants[userID]; !seen {
		r.participants[userID] = struct{}{}
		r.counters.UniqueParticipants = len(r.participants)
	}
	r.touch(now)
	return r.joinResult(m, false, s.replayCount), nil
}

func (r *Room) joinResult(m *Member, rejoined bool, replay int) JoinResult {
	viewers := r.viewerCount()
	if viewers > r.counters.PeakViewers {
		r.counters.PeakViewers = viewers
	}
	return JoinResult{
		Member:      *m,
		Rejoined:    rejoined,
		ViewerCount: viewers,
		Replay:      r.visible(replay),
		Audience:    r.audience(),
	}
}

// roleFor 初始角色：房主 > 审核员名单 > 此前调整过的角色 > 画像信号 > regular
func (r *Room) roleFor(userID string, profile *Profile) Role {
	if userID == r.owner {
		return RoleOwner
	}
	if _, ok := r.moderation.moderators[userID]; ok {
		return RoleModerator
	}
	if role, ok := r.roles[userID]; ok {
		return role
	}
	return roleFromProfile(profile)
}

// Leave 离开房间，不是成员时为空操作
// 房主始终是成员，离开只会置为 offline
func (s *Store) Leave(roomID, userID string) (Audience, bool, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return Audience{}, false, err
	}
	defer r.mu.Unlock()

	m, ok := r.members[userID]
	if !ok {
		return r.audience(), false, nil
	}
	if userID == r.owner {
		if m.Status == PresenceOffline {
			return r.audience(), false, nil
		}
		m.Status = PresenceOffline
	} else {
		delete(r.members, userID)
	}
	r.touch(s.now())
	return r.audience(), true, nil
}

// UpdatePresence 更新成员在线状态和连接质量采样
func (s *Store) UpdatePresence(roomID, userID string, status Presence, quality float64) (Member, Audience, error) {
	if !status.Valid() {
		return Member{}, Audience{}, errorx.Newf(errorx.CodeInvalidParam, "未知的在线状态 %q", status)
	}
	r, err := s.lock(roomID)
	if err != nil {
		return Member{}, Audience{}, err
	}
	defer r.mu.Unlock()

	m, ok := r.members[userID]
	if !ok {
		return Member{}, Audience{}, errorx.Newf(errorx.CodeNotMember, "用户 %s 不在房间 %s", userID, roomID)
	}
	now := s.now()
	m.Status = status
	m.LastActivity = now
	if quality >= 0 && quality <= 1 {
		m.ConnectionQuality = quality
	}
	return *m, r.audience(), nil
}

// Member 查询成员
func (s *Store) Member(roomID, userID string) (Member, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return Member{}, err
	}
	defer r.mu.Unlock()
	m, ok := r.members[userID]
	if !ok {
		return Member{}, errorx.Newf(errorx.CodeNotMember, "用户 %s 不在房间 %s", userID, roomID)
	}
	return *m, nil
}

// Access 成员在房间内的实际权限上下文
type Access struct {
	Member      Member
	Permissions Permissions // 叠加禁言后的实际权限
	Moderator   bool
	Settings    Settings
	Audience    Audience
}

// Access 查询成员的实际权限，非成员返回 NotMember
func (s *Store) Access(roomID, userID string) (Access, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return Access{}, err
	}
	defer r.mu.Unlock()
	m, ok := r.members[userID]
	if !ok {
		return Access{}, errorx.Newf(errorx.CodeNotMember, "用户 %s 不在房间 %s", userID, roomID)
	}
	return Access{
		Member:      *m,
		Permissions: m.Effective(s.now()),
		Moderator:   r.isModerator(userID),
		Settings:    r.settings,
		Audience:    r.audience(),
	}, nil
}

// Audience 房间当前的通知对象
func (s *Store) Audience(roomID string) (Audience, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return Audience{}, err
	}
	defer r.mu.Unlock()
	return r.audience(), nil
}

// SendGate 发送前校验通过后返回的上下文
type SendGate struct {
	Member         Member
	Permissions    Permissions // 叠加禁言后的实际权限
	AutoModeration bool
	Threshold      float64
	Settings       Settings
}

// AuthorizeMessage 校验成员身份和消息类型对应的权限，不修改状态
func (s *Store) AuthorizeMessage(roomID string, msg *Message) (SendGate, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return SendGate{}, err
	}
	defer r.mu.Unlock()
	return r.authorize(msg, s.now())
}

func (r *Room) authorize(msg *Message, now time.Time) (SendGate, error) {
	m, ok := r.members[msg.SenderID]
	if !ok {
		return SendGate{}, errorx.Newf(errorx.CodeNotMember, "用户 %s 不在房间 %s", msg.SenderID, r.id)
	}
	perms := m.Effective(now)
	if err := checkPermission(perms, msg); err != nil {
		return SendGate{}, err
	}
	return SendGate{
		Member:         *m,
		Permissions:    perms,
		AutoModeration: r.moderation.auto,
		Threshold:      r.moderation.threshold,
		Settings:       r.settings,
	}, nil
}

func checkPermission(p Permissions, msg *Message) error {
	switch pl := msg.Payload.(type) {
	case *TextPayload:
		if !p.CanSendMessages {
			return errorx.New(errorx.CodeForbidden, "没有发送消息的权限")
		}
		if utf8.RuneCountInString(pl.Body) > p.MaxMessageLength {
			return errorx.Newf(errorx.CodeForbidden, "消息长度超过上限 %d", p.MaxMessageLength)
		}
	case *MediaPayload:
		allowed := p.CanSendMedia
		if pl.IsGif() {
			allowed = p.CanSendGifs
		}
		if !allowed {
			return errorx.New(errorx.CodeForbidden, "没有发送媒体的权限")
		}
	case *TipPayload:
		if !p.CanTip {
			return errorx.New(errorx.CodeForbidden, "没有打赏权限")
		}
	default:
		return errorx.New(errorx.CodeForbidden, "不能发送该类型的消息")
	}
	return nil
}

// AppendMessage 写入一条审核已决的消息
// 调用时重新校验成员身份和权限；approved 进入历史，flagged 进入复核队列，removed 只留审计
func (s *Store) AppendMessage(roomID string, msg *Message) (Audience, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return Audience{}, err
	}
	defer r.mu.Unlock()
	now := s.now()

	if _, err := r.authorize(msg, now); err != nil {
		return Audience{}, err
	}

	switch msg.Status {
	case StatusApproved:
		r.record(msg)
		if tip := msg.Tip(); tip != nil {
			r.counters.Tips++
			r.counters.TipVolume += tip.Amount
		} else {
			r.counters.Messages++
		}
		r.members[msg.SenderID].LastActivity = now
		r.touch(now)
	case StatusFlagged:
		r.review.push(ReviewItem{Message: msg.clone(), AddedAt: now})
		r.counters.Flagged++
	case StatusRemoved:
		r.quarantine.push(msg.clone())
		r.counters.Removed++
	default:
		return Audience{}, errorx.Newf(errorx.CodeInvalidParam, "消息 %s 的审核状态 %q 未决", msg.ID, msg.Status)
	}
	return r.audience(), nil
}

// AppendSystem 写入系统消息，不做权限校验
func (s *Store) AppendSystem(roomID, messageID, subtype string, data map[string]string) (Message, Audience, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return Message{}, Audience{}, err
	}
	defer r.mu.Unlock()
	now := s.now()
	msg := &Message{
		ID:       messageID,
		RoomID:   roomID,
		SenderID: constants.SYSTEM_SENDER,
		SentAt:   now,
		Kind:     KindSystem,
		Status:   StatusApproved,
		Payload:  &SystemPayload{Subtype: subtype, Data: data},
	}
	r.record(msg)
	r.touch(now)
	return msg.clone(), r.audience(), nil
}

// record 历史关闭时消息只广播不保留
func (r *Room) record(msg *Message) {
	if !r.settings.HistoryEnabled {
		return
	}
	stored := msg.clone()
	r.history.push(&stored)
}

// AuthorizeTip 打赏前校验：成员身份、打赏权限、收款人必须是房主、金额不低于房间下限
func (s *Store) AuthorizeTip(roomID, sender, recipient string, amount float64) (SendGate, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return SendGate{}, err
	}
	defer r.mu.Unlock()

	gate, err := r.authorize(&Message{SenderID: sender, Payload: &TipPayload{}}, s.now())
	if err != nil {
		return SendGate{}, err
	}
	if recipient != r.owner {
		return SendGate{}, errorx.New(errorx.CodeForbidden, "只能打赏给房主")
	}
	if amount < r.settings.MinimumTipAmount {
		return SendGate{}, errorx.Newf(errorx.CodeInvalidParam, "打赏金额 %.2f 低于房间下限 %.2f", amount, r.settings.MinimumTipAmount)
	}
	return gate, nil
}

// History 返回最近 limit 条可见消息（不含 removed），limit<=0 返回全部
func (s *Store) History(roomID string, limit int) ([]Message, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return nil, err
	}
	defer r.mu.Unlock()
	return r.visible(limit), nil
}

func (r *Room) visible(limit int) []Message {
	var out []Message
	r.history.each(func(m *Message) bool {
		if m.Status != StatusRemoved {
			out = append(out, m.clone())
		}
		return true
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (r *Room) findMessage(id string) *Message {
	var found *Message
	r.history.each(func(m *Message) bool {
		if m.ID == id {
			found = m
			return false
		}
		return true
	})
	return found
}

// CloseRoom 关闭房间，仅房主可操作；返回关闭前的成员
func (s *Store) CloseRoom(roomID, actorID string) (Audience, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return Audience{}, err
	}
	if actorID != r.owner {
		r.mu.Unlock()
		return Audience{}, errorx.New(errorx.CodeForbidden, "只有房主可以关闭房间")
	}
	aud := s.closeLocked(r)
	r.mu.Unlock()
	return aud, nil
}

// closeLocked 调用方持有 r.mu
func (s *Store) closeLocked(r *Room) Audience {
	aud := r.audience()
	r.closed = true
	s.mu.Lock()
	delete(s.rooms, r.id)
	s.mu.Unlock()
	s.sink.RecordRoomClosed(r.id)
	zap.L().Info("房间已关闭", zap.String("room_id", r.id))
	return aud
}

// ReapIdle 关闭没有在线成员且空闲超过 ttl 的房间，ttl<=0 不回收
func (s *Store) ReapIdle(now time.Time, ttl time.Duration) []Audience {
	if ttl <= 0 {
		return nil
	}
	s.mu.RLock()
	candidates := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		candidates = append(candidates, r)
	}
	s.mu.RUnlock()

	var closed []Audience
	for _, r := range candidates {
		r.mu.Lock()
		if !r.closed && r.viewerCount() == 0 && now.Sub(r.lastActivity) >= ttl {
			closed = append(closed, s.closeLocked(r))
		}
		r.mu.Unlock()
	}
	return closed
}

// Stats 所有房间的计数器快照
func (s *Store) Stats() []Stats {
	s.mu.RLock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.RUnlock()

	out := make([]Stats, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		if !r.closed {
			c := r.counters
			c.CurrentViewers = r.viewerCount()
			out = append(out, Stats{RoomID: r.id, Type: r.typ, Counters: c, LastActivity: r.lastActivity})
		}
		r.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

func (r *Room) touch(now time.Time) {
	r.lastActivity = now
}

func (r *Room) viewerCount() int {
	n := 0
	for _, m := range r.members {
		if m.Status != PresenceOffline {
			n++
		}
	}
	return n
}

func (r *Room) audience() Audience {
	a := Audience{RoomID: r.id, Members: make([]string, 0, len(r.members))}
	for id, m := range r.members {
		a.Members = append(a.Members, id)
		if m.Permissions.CanModerate {
			a.Moderators = append(a.Moderators, id)
		}
	}
	sort.Strings(a.Members)
	sort.Strings(a.Moderators)
	return a
}

func (r *Room) isModerator(userID string) bool {
	if userID == r.owner {
		return true
	}
	if _, ok := r.moderation.moderators[userID]; ok {
		return true
	}
	m, ok := r.members[userID]
	return ok && m.Permissions.CanModerate
}

func (r *Room) view() View {
	v := View{
		ID:       r.id,
		Name:     r.name,
		Type:     r.typ,
		OwnerID:  r.owner,
		Settings: r.settings,
		Moderation: ModerationConfig{
			AutoModeration:    r.moderation.auto,
			ToxicityThreshold: r.moderation.threshold,
			ReportThreshold:   r.moderation.reportThreshold,
			BanDuration:       r.moderation.banDuration,
		},
		ViewerCount:  r.viewerCount(),
		CreatedAt:    r.createdAt,
		LastActivity: r.lastActivity,
	}
	for id := range r.moderation.moderators {
		v.Moderation.Moderators = append(v.Moderation.Moderators, id)
	}
	sort.Strings(v.Moderation.Moderators)
	for _, m := range r.members {
		v.Members = append(v.Members, *m)
	}
	sort.Slice(v.Members, func(i, j int) bool {
		a, b := v.Members[i], v.Members[j]
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.UserID < b.UserID
	})
	for _, id := range r.pollOrder {
		v.Polls = append(v.Polls, r.polls[id].view())
	}
	return v
}
