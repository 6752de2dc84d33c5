package mq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"chatsphere_server/internal/config"
	"chatsphere_server/pkg/aes"

	"go.uber.org/zap"
)

type exportTask struct {
	topic string
	key   []byte
	value []byte
}

// Envelope 导出消息的统一外层结构
// 房间开启加密时 Payload 为空，Sealed 为 AES-GCM 密文
type Envelope struct {
	Kind       string          `json:"kind"`
	RoomID     string          `json:"room_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Sealed     string          `json:"sealed,omitempty"`
	ExportedAt time.Time       `json:"exported_at"`
}

// Exporter 异步事件导出器
// 调用方在房间锁内调用 Export*，只做序列化和入队；发布由后台 Worker 完成
type Exporter struct {
	pub        Publisher
	eventTopic string
	auditTopic string
	key        []byte
	timeout    time.Duration

	tasks     chan exportTask
	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewExporter 创建导出器并启动 Worker
func NewExporter(pub Publisher, conf config.MQConfig) *Exporter {
	workers := conf.Workers
	if workers <= 0 {
		workers = 1
	}
	e := &Exporter{
		pub:        pub,
		eventTopic: conf.EventTopic,
		auditTopic: conf.AuditTopic,
		timeout:    conf.Timeout,
		tasks:      make(chan exportTask, conf.Buffer),
	}
	if conf.EncryptKey != "" {
		e.key = []byte(conf.EncryptKey)
	}
	if e.timeout <= 0 {
		e.timeout = 5 * time.Second
	}
	e.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go e.worker()
	}
	return e
}

func (e *Exporter) worker() {
	defer e.wg.Done()
	for task := range e.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		if err := e.pub.Publish(ctx, task.topic, task.key, task.value); err != nil {
			zap.L().Warn("导出事件失败", zap.String("topic", task.topic), zap.Error(err))
		}
		cancel()
	}
}

// ExportMessage 导出一条已通过审核的消息，encrypted 为房间的加密开关
func (e *Exporter) ExportMessage(roomID, messageID string, payload any, encrypted bool) {
	if e == nil {
		return
	}
	e.enqueue(e.eventTopic, "message", roomID, messageID, payload, encrypted)
}

// ExportModeration 导出一条审核动作，不加密
func (e *Exporter) ExportModeration(roomID, actionID string, payload any) {
	if e == nil {
		return
	}
	e.enqueue(e.auditTopic, "moderation_action", roomID, actionID, payload, false)
}

func (e *Exporter) enqueue(topic, kind, roomID, key string, payload any, encrypted bool) {
	value, err := e.encode(kind, roomID, payload, encrypted)
	if err != nil {
		zap.L().Error("序列化导出事件失败", zap.String("kind", kind), zap.Error(err))
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	select {
	case e.tasks <- exportTask{topic: topic, key: []byte(key), value: value}:
	default:
		// 导出是旁路，队列满时丢弃，不阻塞房间
		zap.L().Warn("导出队列已满，丢弃事件", zap.String("kind", kind), zap.String("room_id", roomID))
	}
}

func (e *Exporter) encode(kind, roomID string, payload any, encrypted bool) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	env := Envelope{Kind: kind, RoomID: roomID, ExportedAt: time.Now().UTC()}
	if encrypted && len(e.key) > 0 {
		sealed, err := aes.Encrypt(raw, e.key)
		if err != nil {
			return nil, err
		}
		env.Sealed = sealed
	} else {
		env.Payload = raw
	}
	return json.Marshal(env)
}

// Close 排空队列后关闭发布者
func (e *Exporter) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		close(e.tasks)
		e.mu.Unlock()
		e.wg.Wait()
		err = e.pub.Close()
	})
	return err
}
