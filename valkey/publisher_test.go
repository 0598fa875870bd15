package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"canforge/config"
)

type setCall struct {
	key   string
	value []byte
	ttl   time.Duration
}

type publishCall struct {
	channel string
	message []byte
}

// fakeClient records commands instead of talking to a server.
type fakeClient struct {
	pingErr   error
	sets      []setCall
	publishes []publishCall
	closed    bool
}

func (c *fakeClient) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", c.pingErr)
}

func (c *fakeClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	c.sets = append(c.sets, setCall{key, value.([]byte), ttl})
	return redis.NewStatusResult("OK", nil)
}

func (c *fakeClient) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	c.publishes = append(c.publishes, publishCall{channel, message.([]byte)})
	return redis.NewIntResult(1, nil)
}

func (c *fakeClient) Close() error {
	c.closed = true
	return nil
}

func newTestPublisher(cfg *config.ValkeyConfig, c *fakeClient) *Publisher {
	p := NewPublisher(cfg, "plant")
	p.dial = func(*redis.Options) client { return c }
	return p
}

func TestPublishDBC(t *testing.T) {
	cfg := config.DefaultValkeyConfig("cache")
	cfg.KeyTTL = time.Hour
	c := &fakeClient{}
	p := newTestPublisher(&cfg, c)

	if err := p.PublishDBC(context.Background(), "bench", []byte("x")); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("publish before Start: got %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	payload := []byte(`{"project":"bench"}`)
	if err := p.PublishDBC(context.Background(), "bench", payload); err != nil {
		t.Fatalf("PublishDBC: %v", err)
	}

	if len(c.sets) != 1 {
		t.Fatalf("expected 1 SET, got %d", len(c.sets))
	}
	if s := c.sets[0]; s.key != "plant:dbc:bench" || s.ttl != time.Hour || string(s.value) != string(payload) {
		t.Errorf("unexpected SET: %+v", s)
	}

	if len(c.publishes) != 1 || c.publishes[0].channel != "plant:dbc:changes" {
		t.Fatalf("unexpected publishes: %+v", c.publishes)
	}
	var notice ChangeNotice
	if err := json.Unmarshal(c.publishes[0].message, &notice); err != nil {
		t.Fatalf("notice is not JSON: %v", err)
	}
	if notice.Project != "bench" || notice.Key != "plant:dbc:bench" || notice.Bytes != len(payload) {
		t.Errorf("unexpected notice: %+v", notice)
	}

	if err := p.Stop(); err != nil || !c.closed || p.IsRunning() {
		t.Errorf("Stop: err=%v closed=%v running=%v", err, c.closed, p.IsRunning())
	}
}

func TestPublishWithoutChanges(t *testing.T) {
	cfg := config.DefaultValkeyConfig("cache")
	cfg.PublishChanges = false
	c := &fakeClient{}
	p := newTestPublisher(&cfg, c)
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.PublishDBC(context.Background(), "bench", []byte("x")); err != nil {
		t.Fatalf("PublishDBC: %v", err)
	}
	if len(c.publishes) != 0 {
		t.Errorf("expected no change notice, got %d", len(c.publishes))
	}
}

func TestStartPingFailure(t *testing.T) {
	cfg := config.DefaultValkeyConfig("cache")
	c := &fakeClient{pingErr: errors.New("connection refused")}
	p := newTestPublisher(&cfg, c)
	if err := p.Start(); err == nil {
		t.Fatal("expected Start to fail")
	}
	if p.IsRunning() || !c.closed {
		t.Error("failed Start must close the client and stay stopped")
	}
}

func TestAddressAndKey(t *testing.T) {
	cfg := config.DefaultValkeyConfig("cache")
	cfg.Selector = "line2"
	p := NewPublisher(&cfg, "plant")
	if got := p.Address(); got != "redis://localhost:6379" {
		t.Errorf("Address() = %q", got)
	}
	if got := p.Key("bench"); got != "plant:line2:dbc:bench" {
		t.Errorf("Key() = %q", got)
	}
	cfg.UseTLS = true
	if got := p.Address(); got != "rediss://localhost:6379" {
		t.Errorf("TLS Address() = %q", got)
	}
}

func TestManager(t *testing.T) {
	cfgs := []config.ValkeyConfig{config.DefaultValkeyConfig("a"), config.DefaultValkeyConfig("b")}
	cfgs[1].Enabled = true

	m := NewManager()
	m.LoadFromConfig(cfgs, "plant")
	for _, p := range m.List() {
		c := &fakeClient{}
		p.dial = func(*redis.Options) client { return c }
	}

	if n := m.StartAll(); n != 1 {
		t.Fatalf("StartAll = %d, want 1", n)
	}
	results := m.PublishDBC(context.Background(), "bench", []byte("x"))
	if len(results) != 1 || results["b"] != nil {
		t.Errorf("unexpected results: %v", results)
	}
	if err := m.Stop("missing"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Stop(missing) = %v", err)
	}
	if !m.Remove("a") || m.Get("a") != nil {
		t.Error("Remove(a) failed")
	}
	m.StopAll()
	if m.AnyRunning() {
		t.Error("expected all stopped")
	}
}
