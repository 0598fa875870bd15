package kafka

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Manager manages multiple Kafka producer connections.
type Manager struct {
	producers map[string]*Producer
	mu        sync.RWMutex
}

// NewManager creates a new Kafka manager.
func NewManager() *Manager {
	return &Manager{
		producers: make(map[string]*Producer),
	}
}

// AddCluster adds a new Kafka cluster configuration. A cluster with the same
// name is kept.
func (m *Manager) AddCluster(config *Config, ns string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.producers[config.Name]; exists {
		return
	}
	m.producers[config.Name] = NewProducer(config, ns)
}

// RemoveCluster removes a Kafka cluster and disconnects.
func (m *Manager) RemoveCluster(name string) {
	m.mu.Lock()
	producer, exists := m.producers[name]
	delete(m.producers, name)
	m.mu.Unlock()

	if exists {
		producer.Disconnect()
	}
}

// GetProducer returns the producer for a cluster.
func (m *Manager) GetProducer(name string) *Producer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.producers[name]
}

// ListClusters returns the sorted cluster names.
func (m *Manager) ListClusters() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.producers))
	for name := range m.producers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) all() []*Producer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Producer, 0, len(m.producers))
	for _, p := range m.producers {
		out = append(out, p)
	}
	return out
}

// Connect connects to a specific cluster.
func (m *Manager) Connect(name string) error {
	producer := m.GetProducer(name)
	if producer == nil {
		return fmt.Errorf("%w: %s", ErrNotConfigured, name)
	}
	return producer.Connect()
}

// Disconnect disconnects from a specific cluster.
func (m *Manager) Disconnect(name string) error {
	producer := m.GetProducer(name)
	if producer == nil {
		return fmt.Errorf("%w: %s", ErrNotConfigured, name)
	}
	producer.Disconnect()
	return nil
}

// ConnectEnabled connects every enabled cluster concurrently and returns how
// many connected.
func (m *Manager) ConnectEnabled() int {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		connected int
	)
	for _, p := range m.all() {
		if !p.config.Enabled {
			continue
		}
		wg.Add(1)
		go func(p *Producer) {
			defer wg.Done()
			if err := p.Connect(); err == nil {
				mu.Lock()
				connected++
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()
	return connected
}

// StopAll disconnects from all Kafka clusters.
func (m *Manager) StopAll() {
	for _, p := range m.all() {
		p.Disconnect()
	}
}

// AnyPublishing returns true if any cluster is connected.
func (m *Manager) AnyPublishing() bool {
	for _, p := range m.all() {
		if p.GetStatus() == StatusConnected {
			return true
		}
	}
	return false
}

// PublishDBC produces payload to every connected cluster and returns the
// outcome keyed by cluster name.
func (m *Manager) PublishDBC(ctx context.Context, project string, payload []byte) map[string]error {
	results := make(map[string]error)
	for _, p := range m.all() {
		if p.GetStatus() == StatusConnected {
			results[p.Name()] = p.PublishDBC(ctx, project, payload)
		}
	}
	return results
}
