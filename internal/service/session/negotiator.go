// Package session 管理房间内的点对点音视频会话
// 只负责信令和权限，媒体传输不经过本服务
package session

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"chatsphere_server/internal/service/room"
	"chatsphere_server/pkg/errorx"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Type 会话类型
type Type string

const (
	TypeVideoCall   Type = "video_call"
	TypeAudioCall   Type = "audio_call"
	TypeScreenShare Type = "screen_share"
	TypeLiveStream  Type = "live_stream"
)

// Valid 是否为已知会话类型
func (t Type) Valid() bool {
	switch t {
	case TypeVideoCall, TypeAudioCall, TypeScreenShare, TypeLiveStream:
		return true
	}
	return false
}

// allowed 发起该类型会话需要的权限
func (t Type) allowed(p room.Permissions) bool {
	switch t {
	case TypeVideoCall, TypeLiveStream:
		return p.CanUseVideo
	case TypeAudioCall:
		return p.CanUseVoice
	case TypeScreenShare:
		return p.CanScreenShare
	}
	return false
}

// defaultMedia 未显式请求媒体能力时按会话类型推断
func (t Type) defaultMedia() Media {
	switch t {
	case TypeVideoCall, TypeLiveStream:
		return Media{Audio: true, Video: true}
	case TypeAudioCall:
		return Media{Audio: true}
	case TypeScreenShare:
		return Media{Audio: true, Screen: true}
	}
	return Media{}
}

// Media 参与者的媒体能力
type Media struct {
	Audio  bool `json:"audio"`
	Video  bool `json:"video"`
	Screen bool `json:"screen"`
}

func (m Media) none() bool { return !m.Audio && !m.Video && !m.Screen }

// intersect 请求的能力与角色权限取交集
func (m Media) intersect(p room.Permissions) Media {
	return Media{
		Audio:  m.Audio && p.CanUseVoice,
		Video:  m.Video && p.CanUseVideo,
		Screen: m.Screen && p.CanScreenShare,
	}
}

// Quality 协商的画质参数
type Quality struct {
	Resolution string `json:"resolution"`
	Bitrate    int    `json:"bitrate"`    // kbps
	FrameRate  int    `json:"frame_rate"` // fps
}

// DefaultQuality 未指定画质时使用
var DefaultQuality = Quality{Resolution: "720p", Bitrate: 2500, FrameRate: 30}

// ConnState 参与者的连接状态
type ConnState string

const (
	StateNew          ConnState = "new"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateDisconnected ConnState = "disconnected"
	StateFailed       ConnState = "failed"
)

// Valid 是否为已知连接状态
func (s ConnState) Valid() bool {
	switch s {
	case StateNew, StateConnecting, StateConnected, StateDisconnected, StateFailed:
		return true
	}
	return false
}

// Participant 会话参与者
type Participant struct {
	UserID   string    `json:"user_id"`
	PeerID   string    `json:"peer_id"`
	Media    Media     `json:"media"`
	State    ConnState `json:"state"`
	JoinedAt time.Time `json:"joined_at"`
}

// View 会话快照
type View struct {
	ID           string        `json:"id"`
	RoomID       string        `json:"room_id"`
	Type         Type          `json:"type"`
	Initiator    string        `json:"initiator"`
	Participants []Participant `json:"participants"`
	Quality      Quality       `json:"quality"`
	Recording    bool          `json:"recording"`
	RecordingID  string        `json:"recording_id,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	EndedAt      time.Time     `json:"ended_at,omitempty"`
	Ended        bool          `json:"ended"`
}

type peerSession struct {
	id           string
	roomID       string
	typ          Type
	initiator    string
	participants map[string]*Participant
	quality      Quality
	recording    bool
	recordingID  string
	createdAt    time.Time
	endedAt      time.Time
	ended        bool
}

func (s *peerSession) view() View {
	v := View{
		ID:          s.id,
		RoomID:      s.roomID,
		Type:        s.typ,
		Initiator:   s.initiator,
		Quality:     s.quality,
		Recording:   s.recording,
		RecordingID: s.recordingID,
		CreatedAt:   s.createdAt,
		EndedAt:     s.endedAt,
		Ended:       s.ended,
	}
	for _, p := range s.participants {
		v.Participants = append(v.Participants, *p)
	}
	sort.Slice(v.Participants, func(i, j int) bool {
		return v.Participants[i].JoinedAt.Before(v.Participants[j].JoinedAt) ||
			(v.Participants[i].JoinedAt.Equal(v.Participants[j].JoinedAt) && v.Participants[i].UserID < v.Participants[j].UserID)
	})
	return v
}

// StartRequest 发起会话的参数
type StartRequest struct {
	RoomID    string
	Initiator string
	Type      Type
	Quality   Quality
	Media     Media
	Recording bool
}

// Change 一次会话变更及需要通知的房间成员
type Change struct {
	Session  View
	Audience room.Audience
}

// Signal 转发给单个参与者的信令
type Signal struct {
	SessionID string          `json:"session_id"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Kind      string          `json:"kind"` // offer, answer, candidate
	Payload   json.RawMessage `json:"payload"`
}

// Option Negotiator 构造选项
type Option func(*Negotiator)

// WithClock 注入时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(n *Negotiator) { n.now = now }
}

// Negotiator 会话协商器，成员身份和权限以 room.Store 为准
type Negotiator struct {
	store *room.Store
	now   func() time.Time

	mu       sync.Mutex
	sessions map[string]*peerSession
	byRoom   map[string]map[string]struct{}
}

// NewNegotiator 创建会话协商器
func NewNegotiator(store *room.Store, opts ...Option) *Negotiator {
	n := &Negotiator{
		store:    store,
		now:      time.Now,
		sessions: make(map[string]*peerSession),
		byRoom:   make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Start 发起会话，发起人自动成为第一个参与者；其他成员需要单独加入
func (n *Negotiator) Start(req StartRequest) (Change, error) {
	if !req.Type.Valid() {
		return Change{}, errorx.Newf(errorx.CodeInvalidParam, "未知的会话类型 %q", req.Type)
	}
	acc, err := n.store.Access(req.RoomID, req.Initiator)
	if err != nil {
		return Change{}, err
	}
	if !req.Type.allowed(acc.Permissions) {
		return Change{}, errorx.Newf(errorx.CodeForbidden, "没有发起 %s 会话的权限", req.Type)
	}
	recording, err := recordingFor(acc, req.Recording)
	if err != nil {
		return Change{}, err
	}
	quality := req.Quality
	if quality.Resolution == "" {
		quality = DefaultQuality
	}
	media := req.Media
	if media.none() {
		media = req.Type.defaultMedia()
	}

	now := n.now()
	s := &peerSession{
		id:           uuid.NewString(),
		roomID:       req.RoomID,
		typ:          req.Type,
		initiator:    req.Initiator,
		participants: make(map[string]*Participant),
		quality:      quality,
		recording:    recording,
		createdAt:    now,
	}
	if recording {
		s.recordingID = uuid.NewString()
	}
	s.participants[req.Initiator] = &Participant{
		UserID:   req.Initiator,
		PeerID:   uuid.NewString(),
		Media:    media.intersect(acc.Permissions),
		State:    StateNew,
		JoinedAt: now,
	}

	n.mu.Lock()
	n.sessions[s.id] = s
	ids, ok := n.byRoom[s.roomID]
	if !ok {
		ids = make(map[string]struct{})
		n.byRoom[s.roomID] = ids
	}
	ids[s.id] = struct{}{}
	v := s.view()
	n.mu.Unlock()

	zap.L().Info("会话已发起",
		zap.String("session_id", s.id),
		zap.String("room_id", s.roomID),
		zap.String("type", string(s.typ)),
		zap.Bool("recording", recording),
	)
	return Change{Session: v, Audience: acc.Audience}, nil
}

// recordingFor 按房间录制策略决定是否录制
// always 强制开启；never 拒绝录制请求；with_permission 只有审核员可以开启
func recordingFor(acc room.Access, requested bool) (bool, error) {
	switch acc.Settings.RecordingPolicy {
	case room.RecordingAlways:
		return true, nil
	case room.RecordingNever:
		if requested {
			return false, errorx.New(errorx.CodeForbidden, "房间禁止录制")
		}
		return false, nil
	default:
		if requested && !acc.Moderator {
			return false, errorx.New(errorx.CodeForbidden, "只有审核员可以开启录制")
		}
		return requested, nil
	}
}

// Join 加入会话，媒体能力为请求与权限的交集；已在会话中时更新媒体能力
func (n *Negotiator) Join(sessionID, userID string, media Media) (Change, error) {
	n.mu.Lock()
	s, ok := n.sessions[sessionID]
	n.mu.Unlock()
	if !ok {
		return Change{}, errorx.Newf(errorx.CodeNotFound, "会话 %s 不存在", sessionID)
	}
	acc, err := n.store.Access(s.roomID, userID)
	if err != nil {
		return Change{}, err
	}
	if media.none() {
		media = s.typ.defaultMedia()
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if s.ended {
		return Change{}, errorx.Newf(errorx.CodeNotFound, "会话 %s 已结束", sessionID)
	}
	if p, ok := s.participants[userID]; ok {
		p.Media = media.intersect(acc.Permissions)
	} else {
		s.participants[userID] = &Participant{
			UserID:   userID,
			PeerID:   uuid.NewString(),
			Media:    media.intersect(acc.Permissions),
			State:    StateNew,
			JoinedAt: n.now(),
		}
	}
	return Change{Session: s.view(), Audience: acc.Audience}, nil
}

// Leave 离开会话，最后一个参与者离开时会话自动结束；不在会话中为空操作
func (n *Negotiator) Leave(sessionID, userID string) (Change, bool, error) {
	n.mu.Lock()
	s, ok := n.sessions[sessionID]
	if !ok {
		n.mu.Unlock()
		return Change{}, false, errorx.Newf(errorx.CodeNotFound, "会话 %s 不存在", sessionID)
	}
	if _, in := s.participants[userID]; !in {
		v := s.view()
		n.mu.Unlock()
		return Change{Session: v}, false, nil
	}
	delete(s.participants, userID)
	if len(s.participants) == 0 {
		n.endLocked(s)
	}
	v := s.view()
	roomID := s.roomID
	n.mu.Unlock()

	aud, _ := n.store.Audience(roomID)
	return Change{Session: v, Audience: aud}, true, nil
}

// End 结束会话，发起人或房间审核员可用
func (n *Negotiator) End(sessionID, actorID string) (Change, error) {
	n.mu.Lock()
	s, ok := n.sessions[sessionID]
	n.mu.Unlock()
	if !ok {
		return Change{}, errorx.Newf(errorx.CodeNotFound, "会话 %s 不存在", sessionID)
	}
	if actorID != s.initiator {
		mod, err := n.store.IsModerator(s.roomID, actorID)
		if err != nil {
			return Change{}, err
		}
		if !mod {
			return Change{}, errorx.New(errorx.CodeForbidden, "只有发起人或审核员可以结束会话")
		}
	}
	n.mu.Lock()
	n.endLocked(s)
	v := s.view()
	n.mu.Unlock()

	aud, _ := n.store.Audience(s.roomID)
	return Change{Session: v, Audience: aud}, nil
}

// UpdateState 更新参与者连接状态
func (n *Negotiator) UpdateState(sessionID, userID string, state ConnState) (Change, error) {
	if !state.Valid() {
		return Change{}, errorx.Newf(errorx.CodeInvalidParam, "未知的连接状态 %q", state)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.sessions[sessionID]
	if !ok {
		return Change{}, errorx.Newf(errorx.CodeNotFound, "会话 %s 不存在", sessionID)
	}
	p, ok := s.participants[userID]
	if !ok {
		return Change{}, errorx.Newf(errorx.CodeNotMember, "用户 %s 不在会话 %s", userID, sessionID)
	}
	p.State = state
	return Change{Session: s.view()}, nil
}

// Relay 校验信令双方都是会话参与者，返回需要转发的信令
func (n *Negotiator) Relay(sig Signal) (Signal, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.sessions[sig.SessionID]
	if !ok {
		return Signal{}, errorx.Newf(errorx.CodeNotFound, "会话 %s 不存在", sig.SessionID)
	}
	if _, ok := s.participants[sig.From]; !ok {
		return Signal{}, errorx.Newf(errorx.CodeNotMember, "用户 %s 不在会话 %s", sig.From, sig.SessionID)
	}
	if _, ok := s.participants[sig.To]; !ok {
		return Signal{}, errorx.Newf(errorx.CodeNotFound, "会话 %s 中没有用户 %s", sig.SessionID, sig.To)
	}
	return sig, nil
}

// LeaveRooms 断开连接时的隐式离开：退出身份在这些房间里参与的所有会话
func (n *Negotiator) LeaveRooms(identity string, roomIDs []string) []Change {
	var targets []string
	n.mu.Lock()
	for _, roomID := range roomIDs {
		for id := range n.byRoom[roomID] {
			if _, in := n.sessions[id].participants[identity]; in {
				targets = append(targets, id)
			}
		}
	}
	n.mu.Unlock()

	sort.Strings(targets)
	changes := make([]Change, 0, len(targets))
	for _, id := range targets {
		if c, changed, err := n.Leave(id, identity); err == nil && changed {
			changes = append(changes, c)
		}
	}
	return changes
}

// EndRoom 结束房间内的所有会话，房间关闭时调用
func (n *Negotiator) EndRoom(roomID string) []View {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []View
	for id := range n.byRoom[roomID] {
		s := n.sessions[id]
		n.endLocked(s)
		out = append(out, s.view())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// endLocked 调用方持有 n.mu；结束的会话从索引中移除
func (n *Negotiator) endLocked(s *peerSession) {
	if s.ended {
		return
	}
	s.ended = true
	s.endedAt = n.now()
	delete(n.sessions, s.id)
	if ids, ok := n.byRoom[s.roomID]; ok {
		delete(ids, s.id)
		if len(ids) == 0 {
			delete(n.byRoom, s.roomID)
		}
	}
	zap.L().Info("会话已结束", zap.String("session_id", s.id), zap.String("room_id", s.roomID))
}

// Get 查询会话
func (n *Negotiator) Get(sessionID string) (View, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.sessions[sessionID]
	if !ok {
		return View{}, errorx.Newf(errorx.CodeNotFound, "会话 %s 不存在", sessionID)
	}
	return s.view(), nil
}

// ByRoom 房间内进行中的会话
func (n *Negotiator) ByRoom(roomID string) []View {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]View, 0, len(n.byRoom[roomID]))
	for id := range n.byRoom[roomID] {
		out = append(out, n.sessions[id].view())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Active 进行中的会话总数
func (n *Negotiator) Active() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sessions)
}
