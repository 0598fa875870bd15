package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"canforge/logging"
	"canforge/namespace"
)

// ErrNotConfigured is returned for an unknown cluster name.
var ErrNotConfigured = errors.New("kafka cluster not configured")

// ErrNotConnected is returned when producing through a disconnected cluster.
var ErrNotConnected = errors.New("kafka cluster not connected")

// ConnectionStatus represents the state of a Kafka connection.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "Disconnected"
	case StatusConnecting:
		return "Connecting"
	case StatusConnected:
		return "Connected"
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes messages to one Kafka cluster with a writer per topic.
type Producer struct {
	config  *Config
	builder *namespace.Builder
	writers map[string]messageWriter // topic -> writer
	status  ConnectionStatus
	lastErr error
	mu      sync.RWMutex

	// Stats
	messagesSent  int64
	messagesError int64
	lastSendTime  time.Time

	// Replaced in tests.
	dial      func(ctx context.Context) error
	newWriter func(topic string) messageWriter
}

// NewProducer creates a new Kafka producer. Topics are built under ns and
// the config's selector.
func NewProducer(config *Config, ns string) *Producer {
	p := &Producer{
		config:  config,
		builder: namespace.New(ns, config.Selector),
		writers: make(map[string]messageWriter),
		status:  StatusDisconnected,
	}
	p.dial = p.dialBroker
	p.newWriter = p.createWriter
	return p
}

// Name returns the cluster name.
func (p *Producer) Name() string {
	return p.config.Name
}

// Config returns the cluster configuration.
func (p *Producer) Config() *Config {
	return p.config
}

// Address returns the broker list.
func (p *Producer) Address() string {
	return strings.Join(p.config.Brokers, ",")
}

// Topic returns the topic DBC exports are produced to.
func (p *Producer) Topic() string {
	return p.builder.KafkaDBCTopic()
}

// GetStatus returns the current connection status.
func (p *Producer) GetStatus() ConnectionStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// GetError returns the last error.
func (p *Producer) GetError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// GetStats returns producer statistics.
func (p *Producer) GetStats() (sent, errors int64, lastSend time.Time) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.messagesSent, p.messagesError, p.lastSendTime
}

// Connect verifies the cluster is reachable.
func (p *Producer) Connect() error {
	if len(p.config.Brokers) == 0 {
		return fmt.Errorf("kafka cluster '%s' has no brokers", p.config.Name)
	}

	p.mu.Lock()
	p.status = StatusConnecting
	p.lastErr = nil
	p.mu.Unlock()

	addr := p.Address()
	logging.DebugConnect(logging.CatKafka, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.dial(ctx); err != nil {
		p.mu.Lock()
		p.status = StatusError
		p.lastErr = fmt.Errorf("failed to connect: %w", err)
		p.mu.Unlock()
		logging.DebugConnectError(logging.CatKafka, addr, err)
		return p.lastErr
	}

	p.mu.Lock()
	p.status = StatusConnected
	p.mu.Unlock()

	logging.DebugConnectSuccess(logging.CatKafka, addr, "topic "+p.Topic())
	return nil
}

// Disconnect closes all writers.
func (p *Producer) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for topic, writer := range p.writers {
		writer.Close()
		delete(p.writers, topic)
	}
	if p.status != StatusDisconnected {
		logging.DebugDisconnect(logging.CatKafka, p.Address(), "closed")
	}
	p.status = StatusDisconnected
	p.lastErr = nil
}

// Produce sends one message and blocks until it is acknowledged.
func (p *Producer) Produce(ctx context.Context, topic string, key, value []byte) error {
	writer, err := p.getWriter(topic)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   key,
		Value: value,
		Time:  time.Now(),
	}
	if err := writer.WriteMessages(ctx, msg); err != nil {
		p.mu.Lock()
		p.messagesError++
		p.lastErr = err
		p.mu.Unlock()
		if strings.Contains(err.Error(), "Unknown Topic") {
			logging.DebugLog(logging.CatKafka, "%s: topic '%s' not found on broker", p.config.Name, topic)
		}
		return fmt.Errorf("kafka produce failed: %w", err)
	}

	p.mu.Lock()
	p.messagesSent++
	p.lastSendTime = time.Now()
	p.lastErr = nil
	p.mu.Unlock()
	return nil
}

// ProduceWithRetry sends a message with custom retry logic.
// Returns only after successful send or all retries exhausted.
func (p *Producer) ProduceWithRetry(ctx context.Context, topic string, key, value []byte, maxRetries int, backoff time.Duration) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff * time.Duration(attempt)):
			}
		}

		err := p.Produce(ctx, topic, key, value)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotConnected) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("kafka produce failed after %d attempts: %w", maxRetries+1, lastErr)
}

// PublishDBC produces payload to the DBC topic keyed by project.
func (p *Producer) PublishDBC(ctx context.Context, project string, payload []byte) error {
	topic := p.Topic()
	if err := p.ProduceWithRetry(ctx, topic, []byte(project), payload, p.config.MaxRetries, p.config.RetryBackoff); err != nil {
		return err
	}
	logging.DebugLog(logging.CatKafka, "%s: produced %d bytes to %s key %s", p.config.Name, len(payload), topic, project)
	return nil
}

// getWriter returns or creates a writer for the given topic.
func (p *Producer) getWriter(topic string) (messageWriter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != StatusConnected {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, p.config.Name)
	}
	if writer, exists := p.writers[topic]; exists {
		return writer, nil
	}

	writer := p.newWriter(topic)
	p.writers[topic] = writer
	logging.DebugLog(logging.CatKafka, "%s: created writer for topic '%s' (auto-create=%v)",
		p.config.Name, topic, p.config.AutoCreateTopics)
	return writer, nil
}

// createWriter builds a synchronous writer. Exports are single large
// messages, so batching is disabled.
func (p *Producer) createWriter(topic string) messageWriter {
	return &kafka.Writer{
		Addr:      kafka.TCP(p.config.Brokers...),
		Topic:     topic,
		Balancer:  &kafka.Hash{},
		Transport: p.createTransport(),

		RequiredAcks: kafka.RequiredAcks(p.config.RequiredAcks),
		Async:        false,
		MaxAttempts:  max(p.config.MaxRetries, 1),
		BatchSize:    1,
		BatchBytes:   16 << 20,

		AllowAutoTopicCreation: p.config.AutoCreateTopics,
	}
}

// dialBroker opens and closes a connection to the first reachable broker.
func (p *Producer) dialBroker(ctx context.Context) error {
	dialer := p.createDialer()
	var lastErr error
	for _, broker := range p.config.Brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		conn.Close()
		return nil
	}
	return lastErr
}

// createDialer creates a Kafka dialer with auth and TLS.
func (p *Producer) createDialer() *kafka.Dialer {
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	if p.config.UseTLS {
		dialer.TLS = p.config.GetTLSConfig()
	}

	if mechanism := p.getSASLMechanism(); mechanism != nil {
		dialer.SASLMechanism = mechanism
	}

	return dialer
}

// createTransport creates a Kafka transport with auth and TLS.
func (p *Producer) createTransport() *kafka.Transport {
	transport := &kafka.Transport{
		DialTimeout: 10 * time.Second,
	}

	if p.config.UseTLS {
		transport.TLS = p.config.GetTLSConfig()
	}

	if mechanism := p.getSASLMechanism(); mechanism != nil {
		transport.SASL = mechanism
	}

	return transport
}

// getSASLMechanism returns the configured SASL mechanism.
func (p *Producer) getSASLMechanism() sasl.Mechanism {
	if p.config.Username == "" {
		return nil
	}

	switch p.config.SASLMechanism {
	case SASLPlain:
		return plain.Mechanism{
			Username: p.config.Username,
			Password: p.config.Password,
		}
	case SASLSCRAMSHA256:
		mechanism, _ := scram.Mechanism(scram.SHA256, p.config.Username, p.config.Password)
		return mechanism
	case SASLSCRAMSHA512:
		mechanism, _ := scram.Mechanism(scram.SHA512, p.config.Username, p.config.Password)
		return mechanism
	default:
		return nil
	}
}
