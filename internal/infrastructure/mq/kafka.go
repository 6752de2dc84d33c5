package mq

import (
	"context"

	"chatsphere_server/internal/config"
	"chatsphere_server/pkg/errorx"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher 基于 kafka-go Writer 的发布者
// Writer 不绑定 Topic，每条消息自带 Topic，一个 Writer 服务全部主题
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher 创建 Kafka 发布者
func NewKafkaPublisher(conf config.MQConfig) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(conf.HostPort),
			Balancer:               &kafka.Hash{},
			WriteTimeout:           conf.Timeout,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish 同步写入一条消息，相同 key（房间 ID）落在同一分区以保持房间内顺序
func (k *KafkaPublisher) Publish(ctx context.Context, topic string, key, value []byte) error {
	err := k.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	})
	if err != nil {
		return errorx.Wrapf(err, errorx.CodeMQError, "kafka write topic=%s", topic)
	}
	return nil
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}
