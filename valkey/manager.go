package valkey

import (
	"context"
	"fmt"
	"sync"

	"canforge/config"
	"canforge/logging"
)

// Manager manages multiple Valkey publishers.
type Manager struct {
	publishers []*Publisher
	mu         sync.RWMutex
}

// NewManager creates a new Valkey manager.
func NewManager() *Manager {
	return &Manager{
		publishers: make([]*Publisher, 0),
	}
}

// LoadFromConfig loads publishers from configuration.
func (m *Manager) LoadFromConfig(configs []config.ValkeyConfig, ns string) {
	for i := range configs {
		m.Add(&configs[i], ns)
	}
}

// Add adds a new publisher.
func (m *Manager) Add(cfg *config.ValkeyConfig, ns string) *Publisher {
	m.mu.Lock()
	defer m.mu.Unlock()

	pub := NewPublisher(cfg, ns)
	m.publishers = append(m.publishers, pub)
	return pub
}

// Remove stops and removes a publisher by name.
func (m *Manager) Remove(name string) bool {
	m.mu.Lock()
	var removed *Publisher
	for i, pub := range m.publishers {
		if pub.Name() == name {
			removed = pub
			m.publishers = append(m.publishers[:i], m.publishers[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if removed == nil {
		return false
	}
	removed.Stop()
	return true
}

// Get returns a publisher by name.
func (m *Manager) Get(name string) *Publisher {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, pub := range m.publishers {
		if pub.Name() == name {
			return pub
		}
	}
	return nil
}

// List returns all publishers.
func (m *Manager) List() []*Publisher {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Publisher, len(m.publishers))
	copy(result, m.publishers)
	return result
}

// Start starts a publisher by name.
func (m *Manager) Start(name string) error {
	pub := m.Get(name)
	if pub == nil {
		return fmt.Errorf("%w: %s", ErrNotConfigured, name)
	}
	return pub.Start()
}

// Stop stops a publisher by name.
func (m *Manager) Stop(name string) error {
	pub := m.Get(name)
	if pub == nil {
		return fmt.Errorf("%w: %s", ErrNotConfigured, name)
	}
	return pub.Stop()
}

// StartAll starts all enabled publishers and returns how many connected.
func (m *Manager) StartAll() int {
	count := 0
	for _, pub := range m.List() {
		if pub.Config().Enabled && !pub.IsRunning() {
			if err := pub.Start(); err != nil {
				logging.DebugError(logging.CatValkey, "auto-start "+pub.Name(), err)
				continue
			}
			count++
		}
	}
	return count
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

// PublishDBC stores payload through every running publisher and returns the
// outcome keyed by publisher name.
func (m *Manager) PublishDBC(ctx context.Context, project string, payload []byte) map[string]error {
	results := make(map[string]error)
	for _, pub := range m.List() {
		if pub.IsRunning() {
			results[pub.Name()] = pub.PublishDBC(ctx, project, payload)
		}
	}
	return results
}
