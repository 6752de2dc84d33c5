// Package ratelimit 提供按 (identity, action) 计数的固定窗口限流
// 作为所有变更类操作之前的准入闸门，不做持久化
package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"chatsphere_server/internal/config"

	"go.uber.org/zap"
)

// Kind 限流的动作类型，不同类型独立计数
type Kind string

const (
	KindMessage  Kind = "message"
	KindTip      Kind = "tip"
	KindReaction Kind = "reaction"
	KindVote     Kind = "vote"
	KindReport   Kind = "report"
	KindSession  Kind = "session"
)

const shardCount = 32

type window struct {
	count    int
	deadline time.Time
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*window
}

// Limiter 固定窗口限流器
// 分片加锁，不同身份之间不争用同一把锁
type Limiter struct {
	shards   [shardCount]shard
	window   time.Duration
	ceilings map[Kind]int
	now      func() time.Time
}

// Option Limiter 构造选项
type Option func(*Limiter)

// WithClock 注入时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New 按配置创建限流器
func New(conf config.ChatConfig, opts ...Option) *Limiter {
	l := &Limiter{
		window: conf.RateWindow,
		ceilings: map[Kind]int{
			KindMessage:  conf.MessageCeiling,
			KindTip:      conf.TipCeiling,
			KindReaction: conf.ReactionCeiling,
			KindVote:     conf.VoteCeiling,
			KindReport:   conf.VoteCeiling,
			KindSession:  conf.VoteCeiling,
		},
		now: time.Now,
	}
	if l.window <= 0 {
		l.window = time.Minute
	}
	for i := range l.shards {
		l.shards[i].windows = make(map[string]*window)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Ceiling 动作类型的默认上限
func (l *Limiter) Ceiling(kind Kind) int {
	return l.ceilings[kind]
}

// Allow 用默认上限判断本次动作是否放行
func (l *Limiter) Allow(identity string, kind Kind) bool {
	return l.AllowWithin(identity, kind, 0)
}

// AllowWithin 用指定上限判断本次动作是否放行，ceiling<=0 时使用该类型的默认上限
// 窗口首次计数时设置截止时间 now+window，到期后重新开窗
func (l *Limiter) AllowWithin(identity string, kind Kind, ceiling int) bool {
	if ceiling <= 0 {
		ceiling = l.ceilings[kind]
	}
	if ceiling <= 0 {
		return false
	}
	key := string(kind) + "|" + identity
	sh := l.shardFor(key)
	now := l.now()

	sh.mu.Lock()
	defer sh.mu.Unlock()
	w, ok := sh.windows[key]
	if !ok || !now.Before(w.deadline) {
		sh.windows[key] = &window{count: 1, deadline: now.Add(l.window)}
		return true
	}
	if w.count >= ceiling {
		return false
	}
	w.count++
	return true
}

// Reset 清除某个身份在所有动作类型上的计数
func (l *Limiter) Reset(identity string) {
	for kind := range l.ceilings {
		key := string(kind) + "|" + identity
		sh := l.shardFor(key)
		sh.mu.Lock()
		delete(sh.windows, key)
		sh.mu.Unlock()
	}
}

// Cleanup 删除已过期的窗口，返回删除数量
func (l *Limiter) Cleanup() int {
	now := l.now()
	removed := 0
	for i := range l.shards {
		sh := &l.shards[i]
		sh.mu.Lock()
		for k, w := range sh.windows {
			if !now.Before(w.deadline) {
				delete(sh.windows, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Run 周期性清理过期窗口，直到 ctx 取消
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Cleanup(); n > 0 {
				zap.L().Debug("清理过期限流窗口", zap.Int("count", n))
			}
		}
	}
}

func (l *Limiter) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &l.shards[h.Sum32()%shardCount]
}
