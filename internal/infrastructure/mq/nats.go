package mq

import (
	"context"
	"errors"
	"time"

	"chatsphere_server/internal/config"
	"chatsphere_server/pkg/errorx"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NatsPublisher 基于 NATS Core 的发布者，topic 直接作为 subject
type NatsPublisher struct {
	nc *nats.Conn
}

// NewNatsPublisher 连接 NATS，断线后无限重连
func NewNatsPublisher(conf config.MQConfig) (*NatsPublisher, error) {
	if conf.NatsURL == "" {
		return nil, errors.New("mq: natsUrl missing")
	}
	timeout := conf.Timeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	nc, err := nats.Connect(conf.NatsURL,
		nats.Name("chatsphere"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				zap.L().Warn("nats disconnected", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeMQError, "nats connect")
	}
	return &NatsPublisher{nc: nc}, nil
}

// Publish key 写入消息头 Nats-Msg-Id，供 JetStream 去重
func (n *NatsPublisher) Publish(_ context.Context, topic string, key, value []byte) error {
	msg := nats.NewMsg(topic)
	msg.Data = value
	if len(key) > 0 {
		msg.Header.Set(nats.MsgIdHdr, string(key))
	}
	if err := n.nc.PublishMsg(msg); err != nil {
		return errorx.Wrapf(err, errorx.CodeMQError, "nats publish subject=%s", topic)
	}
	return nil
}

func (n *NatsPublisher) Close() error {
	return n.nc.Drain()
}
