package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"canforge/config"
)

// fakeToken completes immediately with err.
type fakeToken struct {
	pahomqtt.Token
	err     error
	timeout bool
}

func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient records publishes instead of talking to a broker.
type fakeClient struct {
	pahomqtt.Client
	mu           sync.Mutex
	connectErr   error
	publishErr   error
	messages     []published
	disconnected bool
}

func (c *fakeClient) Connect() pahomqtt.Token { return &fakeToken{err: c.connectErr} }
func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}
func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic, qos, retained, payload.([]byte)})
	return &fakeToken{err: c.publishErr}
}

func newTestPublisher(cfg *config.MQTTConfig, client *fakeClient) *Publisher {
	p := NewPublisher(cfg, "plant")
	p.newClient = func(*pahomqtt.ClientOptions) pahomqtt.Client { return client }
	return p
}

func TestPublisherAddress(t *testing.T) {
	cfg := config.DefaultMQTTConfig("local")
	p := NewPublisher(&cfg, "plant")
	if got := p.Address(); got != "tcp://localhost:1883" {
		t.Errorf("Address() = %q", got)
	}
	cfg.UseTLS = true
	cfg.Port = 8883
	if got := p.Address(); got != "ssl://localhost:8883" {
		t.Errorf("TLS Address() = %q", got)
	}
}

func TestPublisherTopic(t *testing.T) {
	cfg := config.DefaultMQTTConfig("local")
	if got := NewPublisher(&cfg, "plant").Topic("bench"); got != "plant/dbc/bench" {
		t.Errorf("Topic() = %q", got)
	}
	cfg.Selector = "line2"
	if got := NewPublisher(&cfg, "plant").Topic("bench"); got != "plant/line2/dbc/bench" {
		t.Errorf("Topic() with selector = %q", got)
	}
}

func TestPublishDBC(t *testing.T) {
	cfg := config.DefaultMQTTConfig("local")
	client := &fakeClient{}
	p := newTestPublisher(&cfg, client)

	if err := p.PublishDBC(context.Background(), "bench", []byte("x")); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("publish before Start: got %v, want ErrNotRunning", err)
	}

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !p.IsRunning() {
		t.Fatal("expected running after Start")
	}

	if err := p.PublishDBC(context.Background(), "bench", []byte(`{"dbc":""}`)); err != nil {
		t.Fatalf("PublishDBC: %v", err)
	}
	if len(client.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(client.messages))
	}
	m := client.messages[0]
	if m.topic != "plant/dbc/bench" || m.qos != 1 || !m.retained || string(m.payload) != `{"dbc":""}` {
		t.Errorf("unexpected publish: %+v", m)
	}

	p.Stop()
	if p.IsRunning() || !client.disconnected {
		t.Error("expected stopped and disconnected")
	}
	p.Stop() // idempotent
}

func TestStartErrors(t *testing.T) {
	cfg := config.DefaultMQTTConfig("local")
	p := newTestPublisher(&cfg, &fakeClient{connectErr: errors.New("refused")})
	if err := p.Start(); err == nil {
		t.Error("expected connect error")
	}
	if p.IsRunning() {
		t.Error("publisher running after failed connect")
	}
}

func TestManager(t *testing.T) {
	cfgs := []config.MQTTConfig{config.DefaultMQTTConfig("a"), config.DefaultMQTTConfig("b")}
	cfgs[0].Enabled = true

	m := NewManager()
	m.LoadFromConfig(cfgs, "plant")
	clients := map[string]*fakeClient{"a": {}, "b": {publishErr: errors.New("denied")}}
	for _, p := range m.List() {
		c := clients[p.Name()]
		p.newClient = func(*pahomqtt.ClientOptions) pahomqtt.Client { return c }
	}

	if n := m.StartAll(); n != 1 {
		t.Fatalf("StartAll started %d, want 1 (only enabled)", n)
	}
	if !m.AnyRunning() {
		t.Fatal("expected a running publisher")
	}

	if err := m.Start("b"); err != nil {
		t.Fatalf("Start(b): %v", err)
	}
	if err := m.Start("missing"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Start(missing) = %v, want ErrNotConfigured", err)
	}

	results := m.PublishDBC(context.Background(), "bench", []byte("payload"))
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results["a"] != nil {
		t.Errorf("a: unexpected error %v", results["a"])
	}
	if results["b"] == nil {
		t.Error("b: expected publish error")
	}

	m.StopAll()
	if m.AnyRunning() {
		t.Error("expected all stopped")
	}
	m.Remove("a")
	if m.Get("a") != nil {
		t.Error("publisher not removed")
	}
}
