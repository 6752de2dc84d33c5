package redis

import (
	"context"
	"sync"
	"time"

	"chatsphere_server/pkg/errorx"
)

type memoryEntry struct {
	value    string
	expireAt time.Time
}

// MemoryCache 进程内缓存，未配置 Redis 时使用，也用于测试
// SubmitTask 同步执行任务
type MemoryCache struct {
	mu   sync.Mutex
	kv   map[string]memoryEntry
	sets map[string]map[string]struct{}
	now  func() time.Time
}

// NewMemoryCache 创建进程内缓存
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		kv:   make(map[string]memoryEntry),
		sets: make(map[string]map[string]struct{}),
		now:  time.Now,
	}
}

func (m *MemoryCache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expireAt = m.now().Add(ttl)
	}
	m.kv[key] = e
	return nil
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, _ := m.lookup(key)
	return v, nil
}

func (m *MemoryCache) GetOrError(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.lookup(key)
	if !ok {
		return "", errorx.Newf(errorx.CodeNotFound, "cache key %s not found", key)
	}
	return v, nil
}

// lookup 调用方需持有锁
func (m *MemoryCache) lookup(key string) (string, bool) {
	e, ok := m.kv[key]
	if !ok {
		return "", false
	}
	if !e.expireAt.IsZero() && !m.now().Before(e.expireAt) {
		delete(m.kv, key)
		return "", false
	}
	return e.value, true
}

func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, key)
	delete(m.sets, key)
	return nil
}

func (m *MemoryCache) AddToSet(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	for _, member := range members {
		set[member] = struct{}{}
	}
	return nil
}

func (m *MemoryCache) GetSetMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		out = append(out, member)
	}
	return out, nil
}

func (m *MemoryCache) RemoveFromSet(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, member := range members {
		delete(m.sets[key], member)
	}
	return nil
}

func (m *MemoryCache) SubmitTask(action func()) {
	runTask(action)
}

func (m *MemoryCache) Close() error { return nil }

var _ AsyncCacheService = (*MemoryCache)(nil)
