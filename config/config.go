// Package config handles project persistence for canforge.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"canforge/layout"
	"canforge/message"
)

// ConfigListenerID is a unique identifier for a config change listener.
type ConfigListenerID string

// FieldConfig is an identifier field as stored in the project file.
type FieldConfig = layout.Field

// MessageConfig is a message template as stored in the project file.
type MessageConfig = message.Template

// DefaultPreset is the field layout a new project starts with.
const DefaultPreset = "default"

// Config holds the complete project configuration.
type Config struct {
	Name      string          `yaml:"name"`      // Project name, used in sink topics and keys
	Namespace string          `yaml:"namespace"` // Instance namespace for topic/key isolation
	Frame     layout.Frame    `yaml:"frame"`
	Threshold uint64          `yaml:"confirm_threshold,omitempty"` // Generation size above which -y is needed
	Fields    []FieldConfig   `yaml:"fields"`
	Messages  []MessageConfig `yaml:"messages"`
	Web       WebConfig       `yaml:"web"`
	MQTT      []MQTTConfig    `yaml:"mqtt,omitempty"`
	Valkey    []ValkeyConfig  `yaml:"valkey,omitempty"`
	Kafka     []KafkaConfig   `yaml:"kafka,omitempty"`

	// Data mutex protects all config fields against concurrent access.
	// Callers that modify config should Lock(), modify, then call UnlockAndSave().
	// Save() acquires the lock internally for callers that don't hold it.
	dataMu sync.Mutex `yaml:"-"`

	// Change listeners (not serialized)
	changeListeners map[ConfigListenerID]func() `yaml:"-"`
	listenersMu     sync.RWMutex                `yaml:"-"`
	listenerCounter uint64                      `yaml:"-"`
}

// WebConfig holds REST server configuration.
type WebConfig struct {
	Enabled bool      `yaml:"enabled"`
	Host    string    `yaml:"host"`
	Port    int       `yaml:"port"`
	Users   []WebUser `yaml:"users,omitempty"` // When empty, mutations are unauthenticated
}

// WebUser is an API account checked with HTTP basic auth.
type WebUser struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
	Role         string `yaml:"role"`          // "admin" or "viewer"
}

// Web user roles
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// MQTTConfig holds an MQTT export sink.
type MQTTConfig struct {
	Name     string `yaml:"name"`
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	ClientID string `yaml:"client_id"`
	Selector string `yaml:"selector,omitempty"` // Optional sub-namespace
	UseTLS   bool   `yaml:"use_tls,omitempty"`
}

// ValkeyConfig holds a Valkey/Redis export sink.
type ValkeyConfig struct {
	Name           string        `yaml:"name"`
	Enabled        bool          `yaml:"enabled"`
	Address        string        `yaml:"address"` // host:port format
	Password       string        `yaml:"password,omitempty"`
	Database       int           `yaml:"database"`
	Selector       string        `yaml:"selector,omitempty"`
	UseTLS         bool          `yaml:"use_tls,omitempty"`
	KeyTTL         time.Duration `yaml:"key_ttl,omitempty"`         // 0 = no expiry
	PublishChanges bool          `yaml:"publish_changes,omitempty"` // Announce exports on the changes channel
}

// KafkaConfig holds a Kafka export sink.
// AutoCreateTopics is a pointer so "not set" can default to true.
type KafkaConfig struct {
	Name             string        `yaml:"name"`
	Enabled          bool          `yaml:"enabled"`
	Brokers          []string      `yaml:"brokers"`
	UseTLS           bool          `yaml:"use_tls,omitempty"`
	TLSSkipVerify    bool          `yaml:"tls_skip_verify,omitempty"`
	SASLMechanism    string        `yaml:"sasl_mechanism,omitempty"` // PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	Username         string        `yaml:"username,omitempty"`
	Password         string        `yaml:"password,omitempty"`
	RequiredAcks     int           `yaml:"required_acks,omitempty"` // -1=all, 0=none, 1=leader
	MaxRetries       int           `yaml:"max_retries,omitempty"`
	RetryBackoff     time.Duration `yaml:"retry_backoff,omitempty"`
	Selector         string        `yaml:"selector,omitempty"`
	AutoCreateTopics *bool         `yaml:"auto_create_topics,omitempty"`
}

// DefaultConfig returns a configuration with sensible defaults and no fields.
func DefaultConfig() *Config {
	return &Config{
		Name:      "canforge",
		Frame:     layout.FrameExtended,
		Threshold: 100,
		Fields:    []FieldConfig{},
		Messages:  []MessageConfig{},
		Web: WebConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8080,
		},
		MQTT:   []MQTTConfig{},
		Valkey: []ValkeyConfig{},
		Kafka:  []KafkaConfig{},
	}
}

// NewProject returns the default configuration populated with the default
// preset and one default message.
func NewProject() *Config {
	cfg := DefaultConfig()
	if p, ok := layout.LookupPreset(DefaultPreset); ok {
		cfg.Frame = p.Frame
		cfg.Fields = p.Fields()
	}
	cfg.Messages = []MessageConfig{message.DefaultTemplate()}
	return cfg
}

// DefaultMQTTConfig returns an MQTT sink pointed at a local broker.
func DefaultMQTTConfig(name string) MQTTConfig {
	return MQTTConfig{Name: name, Broker: "localhost", Port: 1883, ClientID: "canforge-" + name}
}

// DefaultValkeyConfig returns a Valkey sink pointed at a local server.
func DefaultValkeyConfig(name string) ValkeyConfig {
	return ValkeyConfig{Name: name, Address: "localhost:6379", PublishChanges: true}
}

// DefaultKafkaConfig returns a Kafka sink pointed at a local broker.
func DefaultKafkaConfig(name string) KafkaConfig {
	return KafkaConfig{Name: name, Brokers: []string{"localhost:9092"}, RequiredAcks: -1, MaxRetries: 3, RetryBackoff: 100 * time.Millisecond}
}

// DefaultPath returns the default project file path (~/.canforge/project.yaml).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "project.yaml"
	}
	return filepath.Join(home, ".canforge", "project.yaml")
}

// Load reads a project from a YAML file. A missing file yields NewProject(),
// which is saved best-effort.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg := NewProject()
		cfg.Save(path) // Best-effort save
		return cfg, nil
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Frame == "" {
		cfg.Frame = layout.FrameExtended
	}
	if cfg.Fields == nil {
		cfg.Fields = []FieldConfig{}
	}
	if cfg.Messages == nil {
		cfg.Messages = []MessageConfig{}
	}
	return cfg, nil
}

// AddOnChangeListener registers a callback to be called when the config is saved.
// Returns an ID that can be used to remove the listener later.
func (c *Config) AddOnChangeListener(cb func()) ConfigListenerID {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	if c.changeListeners == nil {
		c.changeListeners = make(map[ConfigListenerID]func())
	}

	id := ConfigListenerID(fmt.Sprintf("listener-%d", atomic.AddUint64(&c.listenerCounter, 1)))
	c.changeListeners[id] = cb
	return id
}

// RemoveOnChangeListener removes a previously registered listener.
func (c *Config) RemoveOnChangeListener(id ConfigListenerID) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	delete(c.changeListeners, id)
}

func (c *Config) notifyChangeListeners() {
	c.listenersMu.RLock()
	listeners := make([]func(), 0, len(c.changeListeners))
	for _, cb := range c.changeListeners {
		listeners = append(listeners, cb)
	}
	c.listenersMu.RUnlock()

	for _, cb := range listeners {
		go cb()
	}
}

// Lock acquires the config data mutex for exclusive access.
// Use this before modifying config fields, then call UnlockAndSave.
func (c *Config) Lock() { c.dataMu.Lock() }

// Unlock releases the config data mutex without saving.
func (c *Config) Unlock() { c.dataMu.Unlock() }

// Save acquires the lock, marshals, writes, and notifies.
func (c *Config) Save(path string) error {
	c.dataMu.Lock()
	return c.saveLocked(path)
}

// UnlockAndSave marshals, releases the lock, writes, and notifies.
// The caller must already hold the lock via Lock().
func (c *Config) UnlockAndSave(path string) error {
	return c.saveLocked(path)
}

// saveLocked marshals config (lock must be held), unlocks, then writes and notifies.
func (c *Config) saveLocked(path string) error {
	data, err := yaml.Marshal(c)
	c.dataMu.Unlock()

	if err != nil {
		return err
	}
	if path == "" {
		c.notifyChangeListeners()
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}

	c.notifyChangeListeners()
	return nil
}

// FindField returns the field with the given name, or nil if not found.
func (c *Config) FindField(name string) *FieldConfig {
	for i := range c.Fields {
		if c.Fields[i].Name == name {
			return &c.Fields[i]
		}
	}
	return nil
}

// AddField appends a field without validation.
func (c *Config) AddField(f FieldConfig) {
	c.Fields = append(c.Fields, f)
}

// RemoveField removes a field by name.
func (c *Config) RemoveField(name string) bool {
	for i, f := range c.Fields {
		if f.Name == name {
			c.Fields = append(c.Fields[:i], c.Fields[i+1:]...)
			return true
		}
	}
	return false
}

// UpdateField replaces an existing field.
func (c *Config) UpdateField(name string, updated FieldConfig) bool {
	for i, f := range c.Fields {
		if f.Name == name {
			c.Fields[i] = updated
			return true
		}
	}
	return false
}

// FindMessage returns the message template with the given name, or nil if not found.
func (c *Config) FindMessage(name string) *MessageConfig {
	for i := range c.Messages {
		if c.Messages[i].Name == name {
			return &c.Messages[i]
		}
	}
	return nil
}

// AddMessage appends a message template.
func (c *Config) AddMessage(m MessageConfig) {
	c.Messages = append(c.Messages, m)
}

// RemoveMessage removes a message template by name.
func (c *Config) RemoveMessage(name string) bool {
	for i, m := range c.Messages {
		if m.Name == name {
			c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
			return true
		}
	}
	return false
}

// UpdateMessage replaces an existing message template.
func (c *Config) UpdateMessage(name string, updated MessageConfig) bool {
	for i, m := range c.Messages {
		if m.Name == name {
			c.Messages[i] = updated
			return true
		}
	}
	return false
}

// FindMQTT returns the MQTT config with the given name, or nil if not found.
func (c *Config) FindMQTT(name string) *MQTTConfig {
	for i := range c.MQTT {
		if c.MQTT[i].Name == name {
			return &c.MQTT[i]
		}
	}
	return nil
}

// FindValkey returns the Valkey config with the given name, or nil if not found.
func (c *Config) FindValkey(name string) *ValkeyConfig {
	for i := range c.Valkey {
		if c.Valkey[i].Name == name {
			return &c.Valkey[i]
		}
	}
	return nil
}

// FindKafka returns the Kafka config with the given name, or nil if not found.
func (c *Config) FindKafka(name string) *KafkaConfig {
	for i := range c.Kafka {
		if c.Kafka[i].Name == name {
			return &c.Kafka[i]
		}
	}
	return nil
}

// FindWebUser returns the web user with the given username, or nil if not found.
func (c *Config) FindWebUser(username string) *WebUser {
	for i := range c.Web.Users {
		if c.Web.Users[i].Username == username {
			return &c.Web.Users[i]
		}
	}
	return nil
}

// SetWebUser adds a web user, or replaces the hash and role of an existing one.
func (c *Config) SetWebUser(user WebUser) {
	if existing := c.FindWebUser(user.Username); existing != nil {
		*existing = user
		return
	}
	c.Web.Users = append(c.Web.Users, user)
}

// Validate checks the project for errors that would make it unusable. Layout
// conflicts are not errors here; they block generation only.
func (c *Config) Validate() error {
	if c.Namespace != "" && !IsValidNamespace(c.Namespace) {
		return fmt.Errorf("invalid namespace: must contain only alphanumeric characters, hyphens, underscores, and dots")
	}
	if c.Name != "" && !IsValidNamespace(c.Name) {
		return fmt.Errorf("invalid project name %q: must contain only alphanumeric characters, hyphens, underscores, and dots", c.Name)
	}
	switch c.Frame {
	case layout.FrameStandard, layout.FrameExtended, "":
	default:
		return fmt.Errorf("invalid frame %q: must be standard or extended", c.Frame)
	}
	seen := make(map[string]bool)
	for _, f := range c.Fields {
		if f.Name == "" {
			return fmt.Errorf("field with empty name")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = true
	}
	seen = make(map[string]bool)
	for _, m := range c.Messages {
		if m.Name == "" {
			return fmt.Errorf("message with empty name")
		}
		if seen[m.Name] {
			return fmt.Errorf("duplicate message %q", m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}

// EffectiveNamespace returns the namespace used for sink topics and keys,
// falling back to "canforge" when none is configured.
func (c *Config) EffectiveNamespace() string {
	if c.Namespace != "" {
		return c.Namespace
	}
	return "canforge"
}

// ProjectName returns the project name, falling back to "canforge".
func (c *Config) ProjectName() string {
	if c.Name != "" {
		return c.Name
	}
	return "canforge"
}

// IsValidNamespace returns true if the namespace is valid.
// Valid namespaces contain only alphanumeric characters, hyphens, underscores, and dots.
func IsValidNamespace(ns string) bool {
	if ns == "" {
		return false
	}
	for _, r := range ns {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.') {
			return false
		}
	}
	return true
}
