// Package namespace provides utilities for constructing topic and key paths
// with consistent namespace prefixing across all sinks (MQTT, Valkey, Kafka).
package namespace

// Builder constructs namespace-prefixed topics and keys.
type Builder struct {
	namespace string
	selector  string
}

// New creates a new namespace builder.
func New(namespace, selector string) *Builder {
	return &Builder{
		namespace: namespace,
		selector:  selector,
	}
}

// --- MQTT (delimiter: /) ---

// MQTTDBCTopic returns the retained topic for a project's DBC: {ns}[/{sel}]/dbc/{project}
func (b *Builder) MQTTDBCTopic(project string) string {
	return b.mqttBase() + "/dbc/" + project
}

// MQTTBase returns the base topic: {ns}[/{sel}]
func (b *Builder) MQTTBase() string {
	return b.mqttBase()
}

func (b *Builder) mqttBase() string {
	if b.selector != "" {
		return b.namespace + "/" + b.selector
	}
	return b.namespace
}

// --- Valkey (delimiter: :) ---

// ValkeyDBCKey returns the key holding a project's DBC: {ns}[:{sel}]:dbc:{project}
func (b *Builder) ValkeyDBCKey(project string) string {
	return b.valkeyBase() + ":dbc:" + project
}

// ValkeyChangesChannel returns the channel announcing new exports: {ns}[:{sel}]:dbc:changes
func (b *Builder) ValkeyChangesChannel() string {
	return b.valkeyBase() + ":dbc:changes"
}

func (b *Builder) valkeyBase() string {
	if b.selector != "" {
		return b.namespace + ":" + b.selector
	}
	return b.namespace
}

// --- Kafka (delimiter: - for selector, . for topic kind) ---

// KafkaDBCTopic returns the topic for DBC exports: {ns}[-{sel}].dbc
// The project name is used as the message key.
func (b *Builder) KafkaDBCTopic() string {
	return b.kafkaBase() + ".dbc"
}

func (b *Builder) kafkaBase() string {
	if b.selector != "" {
		return b.namespace + "-" + b.selector
	}
	return b.namespace
}
