// Package mq 负责把聊天核心产生的事件导出到外部消息系统
// 导出是旁路的：发布失败只记录日志，不影响房间内的投递
package mq

import (
	"context"
	"fmt"

	"chatsphere_server/internal/config"
)

// Publisher 消息发布接口，Kafka 与 NATS 各自实现
type Publisher interface {
	// Publish 同步发布一条消息，key 用于分区或去重
	Publish(ctx context.Context, topic string, key, value []byte) error
	// Close 刷新缓冲并断开连接
	Close() error
}

// NoopPublisher 未启用导出时使用
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, []byte, []byte) error { return nil }
func (NoopPublisher) Close() error                                         { return nil }

// NewPublisher 按 mqConfig.mode 创建发布者
func NewPublisher(conf config.MQConfig) (Publisher, error) {
	switch conf.Mode {
	case "", "none":
		return NoopPublisher{}, nil
	case "kafka":
		return NewKafkaPublisher(conf), nil
	case "nats":
		return NewNatsPublisher(conf)
	default:
		return nil, fmt.Errorf("mq: unknown mode %q", conf.Mode)
	}
}
