// Package kafka produces DBC exports to Kafka topics.
package kafka

import (
	"crypto/tls"
	"time"
)

// SASLMechanism represents the SASL authentication mechanism.
type SASLMechanism string

const (
	SASLNone        SASLMechanism = ""
	SASLPlain       SASLMechanism = "PLAIN"
	SASLSCRAMSHA256 SASLMechanism = "SCRAM-SHA-256"
	SASLSCRAMSHA512 SASLMechanism = "SCRAM-SHA-512"
)

// Config holds configuration for a Kafka cluster connection.
type Config struct {
	Name          string
	Enabled       bool
	Brokers       []string
	UseTLS        bool
	TLSSkipVerify bool
	SASLMechanism SASLMechanism
	Username      string
	Password      string

	// Producer settings
	RequiredAcks     int // -1=all, 0=none, 1=leader only
	MaxRetries       int
	RetryBackoff     time.Duration
	Selector         string
	AutoCreateTopics bool
}

// DefaultConfig returns a Kafka configuration with sensible defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		Enabled:          false,
		Brokers:          []string{"localhost:9092"},
		RequiredAcks:     -1, // All replicas must acknowledge
		MaxRetries:       3,
		RetryBackoff:     100 * time.Millisecond,
		AutoCreateTopics: true,
	}
}

// GetTLSConfig returns a TLS configuration if TLS is enabled.
func (c *Config) GetTLSConfig() *tls.Config {
	if !c.UseTLS {
		return nil
	}
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.TLSSkipVerify,
	}
}
