package mqtt

import (
	"context"
	"fmt"
	"sync"

	"canforge/config"
	"canforge/logging"
)

// Manager manages multiple MQTT publishers.
type Manager struct {
	publishers map[string]*Publisher
	mu         sync.RWMutex
}

// NewManager creates a new MQTT manager.
func NewManager() *Manager {
	return &Manager{
		publishers: make(map[string]*Publisher),
	}
}

// LoadFromConfig creates publishers from configuration.
func (m *Manager) LoadFromConfig(cfgs []config.MQTTConfig, ns string) {
	for i := range cfgs {
		m.Add(NewPublisher(&cfgs[i], ns))
	}
}

// Add adds a publisher, replacing and stopping any with the same name.
func (m *Manager) Add(pub *Publisher) {
	m.mu.Lock()
	old := m.publishers[pub.Name()]
	m.publishers[pub.Name()] = pub
	m.mu.Unlock()

	if old != nil && old != pub {
		old.Stop()
	}
}

// Remove stops and removes a publisher by name.
func (m *Manager) Remove(name string) {
	m.mu.Lock()
	pub, exists := m.publishers[name]
	delete(m.publishers, name)
	m.mu.Unlock()

	if exists {
		pub.Stop()
	}
}

// Get returns a publisher by name.
func (m *Manager) Get(name string) *Publisher {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.publishers[name]
}

// List returns all publishers.
func (m *Manager) List() []*Publisher {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Publisher, 0, len(m.publishers))
	for _, pub := range m.publishers {
		result = append(result, pub)
	}
	return result
}

// Start connects the named publisher.
func (m *Manager) Start(name string) error {
	pub := m.Get(name)
	if pub == nil {
		return fmt.Errorf("%w: %s", ErrNotConfigured, name)
	}
	return pub.Start()
}

// Stop disconnects the named publisher.
func (m *Manager) Stop(name string) error {
	pub := m.Get(name)
	if pub == nil {
		return fmt.Errorf("%w: %s", ErrNotConfigured, name)
	}
	pub.Stop()
	return nil
}

// StartAll starts all publishers that are configured as enabled.
// Returns the number of publishers successfully started.
func (m *Manager) StartAll() int {
	started := 0
	for _, pub := range m.List() {
		if pub.config.Enabled && !pub.IsRunning() {
			logging.DebugLog(logging.CatMQTT, "Auto-starting MQTT publisher: %s", pub.Name())
			if err := pub.Start(); err != nil {
				logging.DebugError(logging.CatMQTT, "auto-start "+pub.Name(), err)
			} else {
				started++
			}
		}
	}
	return started
}

// StopAll stops all publishers.
func (m *Manager) StopAll() {
	for _, pub := range m.List() {
		pub.Stop()
	}
}

// AnyRunning returns true if any publisher is running.
func (m *Manager) AnyRunning() bool {
	for _, pub := range m.List() {
		if pub.IsRunning() {
			return true
		}
	}
	return false
}

// PublishDBC publishes payload through every running publisher and returns
// the outcome keyed by publisher name.
func (m *Manager) PublishDBC(ctx context.Context, project string, payload []byte) map[string]error {
	results := make(map[string]error)
	for _, pub := range m.List() {
		if pub.IsRunning() {
			results[pub.Name()] = pub.PublishDBC(ctx, project, payload)
		}
	}
	return results
}
