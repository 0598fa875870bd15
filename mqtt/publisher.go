// Package mqtt publishes DBC exports to MQTT brokers as retained messages.
package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"canforge/config"
	"canforge/logging"
	"canforge/namespace"
)

// ErrNotConfigured is returned for an unknown publisher name.
var ErrNotConfigured = errors.New("mqtt publisher not configured")

// ErrNotRunning is returned when publishing through a stopped publisher.
var ErrNotRunning = errors.New("mqtt publisher not running")

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// Publisher handles one MQTT broker connection.
type Publisher struct {
	config  *config.MQTTConfig
	builder *namespace.Builder
	client  pahomqtt.Client
	running bool
	mu      sync.RWMutex

	// newClient is replaced in tests.
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client
}

// NewPublisher creates a publisher for a single broker. Topics are built
// under ns and the config's selector.
func NewPublisher(cfg *config.MQTTConfig, ns string) *Publisher {
	return &Publisher{
		config:    cfg,
		builder:   namespace.New(ns, cfg.Selector),
		newClient: pahomqtt.NewClient,
	}
}

// Name returns the publisher's name.
func (p *Publisher) Name() string {
	return p.config.Name
}

// Config returns the broker configuration.
func (p *Publisher) Config() *config.MQTTConfig {
	return p.config
}

// IsRunning returns whether the publisher is connected.
func (p *Publisher) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Address returns the broker URL.
func (p *Publisher) Address() string {
	if p.config.UseTLS {
		return fmt.Sprintf("ssl://%s:%d", p.config.Broker, p.config.Port)
	}
	return fmt.Sprintf("tcp://%s:%d", p.config.Broker, p.config.Port)
}

// Topic returns the retained topic for a project's DBC.
func (p *Publisher) Topic(project string) string {
	return p.builder.MQTTDBCTopic(project)
}

func (p *Publisher) options() *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(p.Address())
	if p.config.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	clientID := p.config.ClientID
	if clientID == "" {
		clientID = "canforge-" + p.config.Name
	}
	opts.SetClientID(clientID)

	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetKeepAlive(30 * time.Second)
	return opts
}

// Start connects to the broker.
func (p *Publisher) Start() error {
	p.mu.RLock()
	if p.running {
		p.mu.RUnlock()
		return nil
	}
	p.mu.RUnlock()

	// Connect WITHOUT holding the lock
	addr := p.Address()
	client := p.newClient(p.options())
	logging.DebugConnect(logging.CatMQTT, addr)

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		err := fmt.Errorf("connection to %s timed out", addr)
		logging.DebugConnectError(logging.CatMQTT, addr, err)
		return err
	}
	if err := token.Error(); err != nil {
		logging.DebugConnectError(logging.CatMQTT, addr, err)
		return err
	}
	logging.DebugConnectSuccess(logging.CatMQTT, addr, "client "+p.config.ClientID)

	p.mu.Lock()
	if p.running {
		// Lost a race with a concurrent Start
		p.mu.Unlock()
		client.Disconnect(100)
		return nil
	}
	p.client = client
	p.running = true
	p.mu.Unlock()
	return nil
}

// Stop disconnects from the broker.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if !p.running || p.client == nil {
		p.mu.Unlock()
		return
	}
	client := p.client
	p.client = nil
	p.running = false
	p.mu.Unlock()

	// Disconnect OUTSIDE the lock
	client.Disconnect(500)
	logging.DebugDisconnect(logging.CatMQTT, p.Address(), "stopped")
}

// PublishDBC publishes payload retained at QoS 1 on the project's topic.
func (p *Publisher) PublishDBC(ctx context.Context, project string, payload []byte) error {
	p.mu.RLock()
	running := p.running
	client := p.client
	p.mu.RUnlock()

	if !running || client == nil {
		return ErrNotRunning
	}

	timeout := publishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}

	topic := p.Topic(project)
	token := client.Publish(topic, 1, true, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	logging.DebugLog(logging.CatMQTT, "%s: published %d bytes to %s", p.Name(), len(payload), topic)
	return nil
}
