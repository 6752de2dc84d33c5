package mq

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"chatsphere_server/internal/config"
	"chatsphere_server/pkg/aes"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	keys   []string
	values [][]byte
	closed bool
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, string(key))
	p.values = append(p.values, value)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func testMQConfig() config.MQConfig {
	c := config.Default()
	c.MQConfig.Workers = 1
	c.MQConfig.EncryptKey = "0123456789abcdef"
	return c.MQConfig
}

func TestExporterPublishesPlainAndSealed(t *testing.T) {
	pub := &recordingPublisher{}
	conf := testMQConfig()
	e := NewExporter(pub, conf)

	e.ExportMessage("R1", "M1", map[string]string{"body": "hi"}, false)
	e.ExportMessage("R1", "M2", map[string]string{"body": "secret"}, true)
	e.ExportModeration("R1", "A1", map[string]string{"kind": "warn"})
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if len(pub.values) != 3 || !pub.closed {
		t.Fatalf("published %d events, closed=%v; want 3, true", len(pub.values), pub.closed)
	}
	if pub.topics[0] != conf.EventTopic || pub.topics[2] != conf.AuditTopic {
		t.Fatalf("topics = %v", pub.topics)
	}
	if pub.keys[1] != "M2" {
		t.Fatalf("key = %q, want M2", pub.keys[1])
	}

	var plain Envelope
	if err := json.Unmarshal(pub.values[0], &plain); err != nil {
		t.Fatalf("unmarshal plain: %v", err)
	}
	if plain.Kind != "message" || plain.Sealed != "" || string(plain.Payload) != `{"body":"hi"}` {
		t.Fatalf("plain envelope = %+v", plain)
	}

	var sealed Envelope
	if err := json.Unmarshal(pub.values[1], &sealed); err != nil {
		t.Fatalf("unmarshal sealed: %v", err)
	}
	if sealed.Payload != nil || sealed.Sealed == "" {
		t.Fatalf("sealed envelope = %+v, want ciphertext only", sealed)
	}
	raw, err := aes.Decrypt(sealed.Sealed, []byte(conf.EncryptKey))
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if string(raw) != `{"body":"secret"}` {
		t.Fatalf("decrypted = %s", raw)
	}
}

func TestExporterDropsAfterClose(t *testing.T) {
	pub := &recordingPublisher{}
	e := NewExporter(pub, testMQConfig())
	_ = e.Close()
	e.ExportMessage("R1", "M1", "late", false)
	if len(pub.values) != 0 {
		t.Fatalf("published %d events after Close", len(pub.values))
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestNewPublisherModes(t *testing.T) {
	if p, err := NewPublisher(config.MQConfig{Mode: "none"}); err != nil {
		t.Fatalf("none: %v", err)
	} else if _, ok := p.(NoopPublisher); !ok {
		t.Fatalf("none mode returned %T", p)
	}
	if _, err := NewPublisher(config.MQConfig{Mode: "carrier-pigeon"}); err == nil {
		t.Fatal("unknown mode accepted")
	}
	if _, err := NewPublisher(config.MQConfig{Mode: "nats"}); err == nil {
		t.Fatal("nats without url accepted")
	}
}
