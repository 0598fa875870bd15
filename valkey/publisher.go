// Package valkey stores DBC exports in Valkey/Redis and announces them on a
// pub/sub channel.
package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"canforge/config"
	"canforge/logging"
	"canforge/namespace"
)

// ErrNotConfigured is returned for an unknown publisher name.
var ErrNotConfigured = errors.New("valkey publisher not configured")

// ErrNotRunning is returned when publishing through a stopped publisher.
var ErrNotRunning = errors.New("valkey publisher not running")

const opTimeout = 2 * time.Second

// ChangeNotice is published on the changes channel after a DBC is stored.
type ChangeNotice struct {
	Project   string    `json:"project"`
	Key       string    `json:"key"`
	Bytes     int       `json:"bytes"`
	Timestamp time.Time `json:"timestamp"`
}

// client is the subset of *redis.Client the publisher uses.
type client interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// Publisher handles publishing DBC exports to a Valkey server.
type Publisher struct {
	config  *config.ValkeyConfig
	builder *namespace.Builder
	client  client
	running bool
	mu      sync.RWMutex

	// dial is replaced in tests.
	dial func(*redis.Options) client
}

// NewPublisher creates a new Valkey publisher.
func NewPublisher(cfg *config.ValkeyConfig, ns string) *Publisher {
	return &Publisher{
		config:  cfg,
		builder: namespace.New(ns, cfg.Selector),
		dial:    func(o *redis.Options) client { return redis.NewClient(o) },
	}
}

// Name returns the publisher's name.
func (p *Publisher) Name() string {
	return p.config.Name
}

// Start connects to the Valkey server.
func (p *Publisher) Start() error {
	p.mu.RLock()
	if p.running {
		p.mu.RUnlock()
		return nil
	}
	p.mu.RUnlock()

	opts := &redis.Options{
		Addr:         p.config.Address,
		Password:     p.config.Password,
		DB:           p.config.Database,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	}
	if p.config.UseTLS {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	// Create client and test connection WITHOUT holding the lock
	c := p.dial(opts)
	logging.DebugConnect(logging.CatValkey, p.Address())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.Ping(ctx).Err(); err != nil {
		logging.DebugConnectError(logging.CatValkey, p.Address(), err)
		c.Close()
		return fmt.Errorf("failed to connect to Valkey at %s: %w", p.config.Address, err)
	}
	logging.DebugConnectSuccess(logging.CatValkey, p.Address(), fmt.Sprintf("db %d", p.config.Database))

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check we're not already running (race condition check)
	if p.running {
		c.Close()
		return nil
	}
	p.client = c
	p.running = true
	return nil
}

// Stop disconnects from the Valkey server.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	c := p.client
	p.client = nil
	p.mu.Unlock()

	logging.DebugDisconnect(logging.CatValkey, p.Address(), "stopped")
	if c != nil {
		return c.Close()
	}
	return nil
}

// IsRunning returns whether the publisher is connected.
func (p *Publisher) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Config returns the publisher's configuration.
func (p *Publisher) Config() *config.ValkeyConfig {
	return p.config
}

// Address returns the server address.
func (p *Publisher) Address() string {
	scheme := "redis"
	if p.config.UseTLS {
		scheme = "rediss"
	}
	return fmt.Sprintf("%s://%s", scheme, p.config.Address)
}

// Key returns the key a project's DBC is stored under.
func (p *Publisher) Key(project string) string {
	return p.builder.ValkeyDBCKey(project)
}

// PublishDBC stores payload under the project's key with the configured TTL
// and, when enabled, announces it on the changes channel.
func (p *Publisher) PublishDBC(ctx context.Context, project string, payload []byte) error {
	p.mu.RLock()
	if !p.running || p.client == nil {
		p.mu.RUnlock()
		return ErrNotRunning
	}
	c := p.client
	cfg := p.config
	p.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := p.Key(project)
	if err := c.Set(ctx, key, payload, cfg.KeyTTL).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	if cfg.PublishChanges {
		notice, err := json.Marshal(ChangeNotice{Project: project, Key: key, Bytes: len(payload), Timestamp: time.Now().UTC()})
		if err != nil {
			return fmt.Errorf("failed to marshal change notice: %w", err)
		}
		channel := p.builder.ValkeyChangesChannel()
		if err := c.Publish(ctx, channel, notice).Err(); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", channel, err)
		}
	}

	logging.DebugLog(logging.CatValkey, "%s: stored %d bytes at %s (ttl %v)", p.Name(), len(payload), key, cfg.KeyTTL)
	return nil
}
