package engine

import (
	"sync"
	"time"

	"canforge/batch"
	"canforge/config"
	"canforge/kafka"
	"canforge/logging"
	"canforge/mqtt"
	"canforge/valkey"
)

// LogFunc is the logging callback signature.
type LogFunc func(format string, args ...interface{})

// Config holds the parameters needed to create an Engine.
type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	LogFunc    LogFunc
}

// Engine owns the project: validated field and message mutations, generation
// runs, DBC export and publishing to the export sinks. The CLI and the REST
// API are thin consumers.
type Engine struct {
	cfg        *config.Config
	configPath string
	logFn      LogFunc

	// last holds the most recent successful generation run.
	mu          sync.RWMutex
	last        *batch.Result
	generatedAt time.Time

	mqttMgr   *mqtt.Manager
	valkeyMgr *valkey.Manager
	kafkaMgr  *kafka.Manager

	Events *EventBus
}

// New creates a new Engine. Call Start() to connect the configured sinks.
func New(c Config) *Engine {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = func(string, ...interface{}) {}
	}
	return &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		logFn:      logFn,
		mqttMgr:    mqtt.NewManager(),
		valkeyMgr:  valkey.NewManager(),
		kafkaMgr:   kafka.NewManager(),
		Events:     NewEventBus(),
	}
}

// Start loads the sink configuration and connects every enabled sink.
// It blocks until each connection attempt has finished.
func (e *Engine) Start() {
	cfg := e.cfg
	ns := cfg.EffectiveNamespace()

	e.mqttMgr.LoadFromConfig(cfg.MQTT, ns)
	e.valkeyMgr.LoadFromConfig(cfg.Valkey, ns)
	for i := range cfg.Kafka {
		e.kafkaMgr.AddCluster(buildKafkaRuntimeConfig(&cfg.Kafka[i]), ns)
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if n := e.mqttMgr.StartAll(); n > 0 {
			e.logFn("MQTT: %d publisher(s) connected", n)
		}
	}()
	go func() {
		defer wg.Done()
		if n := e.valkeyMgr.StartAll(); n > 0 {
			e.logFn("Valkey: %d publisher(s) connected", n)
		}
	}()
	go func() {
		defer wg.Done()
		if n := e.kafkaMgr.ConnectEnabled(); n > 0 {
			e.logFn("Kafka: %d cluster(s) connected", n)
		}
	}()
	wg.Wait()

	logging.DebugLog(logging.CatEngine, "started project %q (%s frame, %d fields, %d messages)",
		cfg.Name, cfg.Frame, len(cfg.Fields), len(cfg.Messages))
}

// Stop disconnects all sinks.
func (e *Engine) Stop() {
	e.mqttMgr.StopAll()
	e.valkeyMgr.StopAll()
	e.kafkaMgr.StopAll()
}

// Managers provides access to the project and the sink managers.
// *Engine satisfies this interface via its accessor methods.
type Managers interface {
	GetConfig() *config.Config
	GetConfigPath() string
	GetMQTTMgr() *mqtt.Manager
	GetValkeyMgr() *valkey.Manager
	GetKafkaMgr() *kafka.Manager
}

// Verify *Engine implements Managers at compile time.
var _ Managers = (*Engine)(nil)

func (e *Engine) GetConfig() *config.Config    { return e.cfg }
func (e *Engine) GetConfigPath() string         { return e.configPath }
func (e *Engine) GetMQTTMgr() *mqtt.Manager     { return e.mqttMgr }
func (e *Engine) GetValkeyMgr() *valkey.Manager { return e.valkeyMgr }
func (e *Engine) GetKafkaMgr() *kafka.Manager   { return e.kafkaMgr }

// saveConfig writes the project and releases the config lock.
func (e *Engine) saveConfig() error {
	return e.cfg.UnlockAndSave(e.configPath)
}

func (e *Engine) emit(t EventType, payload interface{}) {
	e.Events.Emit(Event{Type: t, Payload: payload})
}
