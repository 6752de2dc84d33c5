// Package registry 维护所有活跃连接
// 连接注册后处于未认证状态，认证后按 identity 建立索引；出站事件写入每个连接自己的发送队列，
// 由传输层消费。Registry 不决定房间成员关系，只在调用方给出的 identity 中投递给已加入该房间的连接
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"chatsphere_server/internal/config"
	"chatsphere_server/internal/metrics"
	"chatsphere_server/internal/service/room"
	"chatsphere_server/pkg/errorx"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 断开原因
const (
	ReasonClosed       = "closed"
	ReasonInactive     = "inactive"
	ReasonSlowConsumer = "slow_consumer"
	ReasonShutdown     = "shutdown"
)

// Metadata 认证时附带的身份信息
type Metadata struct {
	Username string
	Profile  *room.Profile
}

// Handle 一个活跃连接
type Handle struct {
	id         string
	remoteAddr string
	queue      chan Event
	done       chan struct{}
	closeOnce  sync.Once

	mu       sync.Mutex
	identity string
	meta     Metadata
	rooms    map[string]struct{}
	lastSeen time.Time
	reason   string
}

// ID 连接 ID
func (h *Handle) ID() string { return h.id }

// RemoteAddr 连接的远端地址
func (h *Handle) RemoteAddr() string { return h.remoteAddr }

// Queue 出站事件队列，由传输层的写协程消费
func (h *Handle) Queue() <-chan Event { return h.queue }

// Done 连接被关闭时关闭
func (h *Handle) Done() <-chan struct{} { return h.done }

// Identity 已认证的身份，未认证时为空
func (h *Handle) Identity() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.identity
}

// Metadata 认证时的身份信息
func (h *Handle) Metadata() Metadata {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.meta
}

// Rooms 该连接加入过的房间
func (h *Handle) Rooms() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Reason 关闭原因，未关闭时为空
func (h *Handle) Reason() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reason
}

// Closed 连接是否已关闭
func (h *Handle) Closed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// InRoom 连接是否已加入房间
func (h *Handle) InRoom(roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.rooms[roomID]
	return ok
}

func (h *Handle) kill(reason string) bool {
	killed := false
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.reason = reason
		h.mu.Unlock()
		close(h.done)
		killed = true
	})
	return killed
}

// DisconnectHook 连接断开后的清理回调，rooms 为该身份已没有其它活跃连接的房间
type DisconnectHook func(identity string, rooms []string)

// Option Registry 构造选项
type Option func(*Registry)

// WithClock 注入时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry 连接注册表
type Registry struct {
	mu         sync.RWMutex
	handles    map[string]*Handle
	byIdentity map[string]map[string]*Handle

	queueSize  int
	heartbeat  time.Duration
	inactivity time.Duration
	now        func() time.Time

	hookMu sync.RWMutex
	hook   DisconnectHook
}

// New 创建连接注册表
func New(conf config.ChatConfig, opts ...Option) *Registry {
	r := &Registry{
		handles:    make(map[string]*Handle),
		byIdentity: make(map[string]map[string]*Handle),
		queueSize:  conf.SendQueueSize,
		heartbeat:  conf.HeartbeatInterval,
		inactivity: conf.InactivityTimeout,
		now:        time.Now,
	}
	if r.queueSize <= 0 {
		r.queueSize = 256
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnDisconnect 设置断开回调
func (r *Registry) OnDisconnect(hook DisconnectHook) {
	r.hookMu.Lock()
	r.hook = hook
	r.hookMu.Unlock()
}

// Register 注册新连接，总是成功，初始为未认证
func (r *Registry) Register(remoteAddr string) *Handle {
	h := &Handle{
		id:         uuid.NewString(),
		remoteAddr: remoteAddr,
		queue:      make(chan Event, r.queueSize),
		done:       make(chan struct{}),
		rooms:      make(map[string]struct{}),
		lastSeen:   r.now(),
	}
	r.mu.Lock()
	r.handles[h.id] = h
	r.mu.Unlock()
	return h
}

// Authenticate 绑定身份，每个连接只能绑定一次
func (r *Registry) Authenticate(h *Handle, identity string, meta Metadata) error {
	if identity == "" {
		return errorx.New(errorx.CodeUnauthorized, "身份不能为空")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handles[h.id]; !ok {
		return errorx.New(errorx.CodeNotFound, "连接已关闭")
	}

	h.mu.Lock()
	if h.identity != "" {
		h.mu.Unlock()
		return errorx.ErrAlreadyAuthenticated
	}
	h.identity = identity
	h.meta = meta
	h.lastSeen = r.now()
	h.mu.Unlock()

	set, ok := r.byIdentity[identity]
	if !ok {
		set = make(map[string]*Handle)
		r.byIdentity[identity] = set
	}
	set[h.id] = h
	return nil
}

// Touch 记录连接活动
func (r *Registry) Touch(h *Handle) {
	h.mu.Lock()
	h.lastSeen = r.now()
	h.mu.Unlock()
}

// JoinRoom 记录连接加入房间，用于断开时清理
func (r *Registry) JoinRoom(h *Handle, roomID string) {
	h.mu.Lock()
	h.rooms[roomID] = struct{}{}
	h.mu.Unlock()
}

// LeaveRoom 取消连接与房间的关联
func (r *Registry) LeaveRoom(h *Handle, roomID string) {
	h.mu.Lock()
	delete(h.rooms, roomID)
	h.mu.Unlock()
}

// DetachRoom 取消某个身份所有连接与房间的关联（被踢出、封禁或房间关闭）
func (r *Registry) DetachRoom(identity, roomID string) {
	for _, h := range r.handlesOf(identity) {
		r.LeaveRoom(h, roomID)
	}
}

// Disconnect 关闭连接并清理，重复调用为空操作
func (r *Registry) Disconnect(h *Handle, reason string) {
	r.mu.Lock()
	if _, ok := r.handles[h.id]; !ok {
		r.mu.Unlock()
		h.kill(reason)
		return
	}
	delete(r.handles, h.id)

	identity := h.Identity()
	var orphaned []string
	if identity != "" {
		set := r.byIdentity[identity]
		delete(set, h.id)
		if len(set) == 0 {
			delete(r.byIdentity, identity)
		}
		for _, roomID := range h.Rooms() {
			if !inRoom(set, roomID) {
				orphaned = append(orphaned, roomID)
			}
		}
	}
	r.mu.Unlock()

	h.kill(reason)
	zap.L().Info("连接断开",
		zap.String("handle", h.id),
		zap.String("identity", identity),
		zap.String("reason", reason),
	)

	if identity == "" {
		return
	}
	r.hookMu.RLock()
	hook := r.hook
	r.hookMu.RUnlock()
	if hook != nil {
		hook(identity, orphaned)
	}
}

func inRoom(set map[string]*Handle, roomID string) bool {
	for _, other := range set {
		other.mu.Lock()
		_, ok := other.rooms[roomID]
		other.mu.Unlock()
		if ok {
			return true
		}
	}
	return false
}

// Send 投递事件到连接的发送队列，不阻塞
// 已关闭的连接静默丢弃；队列满说明消费过慢，连接会被关闭
func (r *Registry) Send(h *Handle, ev Event) bool {
	if h == nil || h.Closed() {
		metrics.EventsDroppedTotal.Inc()
		return false
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.now()
	}
	select {
	case h.queue <- ev:
		return true
	default:
	}
	metrics.EventsDroppedTotal.Inc()
	if h.kill(ReasonSlowConsumer) {
		zap.L().Warn("发送队列已满，关闭连接", zap.String("handle", h.id), zap.String("identity", h.Identity()))
		go r.Disconnect(h, ReasonSlowConsumer)
	}
	return false
}

// SendToIdentity 投递事件到某个身份的所有连接，返回成功投递的连接数
func (r *Registry) SendToIdentity(identity string, ev Event) int {
	n := 0
	for _, h := range r.handlesOf(identity) {
		if r.Send(h, ev) {
			n++
		}
	}
	return n
}

// Broadcast 投递事件到 recipients 中每个身份已加入 roomID 的连接，exclude 中的身份跳过
// 同一身份未加入该房间的其它连接收不到房间事件
func (r *Registry) Broadcast(roomID string, recipients []string, ev Event, exclude ...string) int {
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.now()
	}
	n := 0
	for _, identity := range recipients {
		if _, ok := skip[identity]; ok {
			continue
		}
		for _, h := range r.handlesOf(identity) {
			if h.InRoom(roomID) && r.Send(h, ev) {
				n++
			}
		}
	}
	return n
}

// Online 身份当前是否有活跃连接
func (r *Registry) Online(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity[identity]) > 0
}

// Handles 身份的所有活跃连接
func (r *Registry) Handles(identity string) []*Handle {
	return r.handlesOf(identity)
}

func (r *Registry) handlesOf(identity string) []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byIdentity[identity]
	out := make([]*Handle, 0, len(set))
	for _, h := range set {
		out = append(out, h)
	}
	return out
}

// Count 活跃连接数和已认证身份数
func (r *Registry) Count() (handles, identities int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles), len(r.byIdentity)
}

// Sweep 心跳巡检：超过无活动窗口的连接被关闭，其余连接收到一次心跳
// 返回被关闭的连接数
func (r *Registry) Sweep(now time.Time) int {
	r.mu.RLock()
	all := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		all = append(all, h)
	}
	r.mu.RUnlock()

	closed := 0
	for _, h := range all {
		h.mu.Lock()
		idle := now.Sub(h.lastSeen)
		h.mu.Unlock()
		if r.inactivity > 0 && idle > r.inactivity {
			r.Disconnect(h, ReasonInactive)
			closed++
			continue
		}
		r.Send(h, Event{Type: EventHeartbeat, Timestamp: now})
	}
	return closed
}

// Run 按心跳间隔执行巡检，直到 ctx 取消；退出时关闭所有连接
func (r *Registry) Run(ctx context.Context) {
	interval := r.heartbeat
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.CloseAll(ReasonShutdown)
			return
		case <-ticker.C:
			if n := r.Sweep(r.now()); n > 0 {
				zap.L().Info("心跳巡检关闭空闲连接", zap.Int("count", n))
			}
		}
	}
}

// CloseAll 关闭所有连接
func (r *Registry) CloseAll(reason string) {
	r.mu.RLock()
	all := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		all = append(all, h)
	}
	r.mu.RUnlock()
	for _, h := range all {
		r.Disconnect(h, reason)
	}
}
