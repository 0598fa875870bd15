package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"canforge/config"
	"canforge/dbc"
	"canforge/kafka"
	"canforge/logging"
	"canforge/mqtt"
	"canforge/valkey"
)

// Sink kinds.
const (
	SinkMQTT   = "mqtt"
	SinkValkey = "valkey"
	SinkKafka  = "kafka"
)

// Artifact is the JSON envelope published to every sink.
type Artifact struct {
	Project   string    `json:"project"`
	Frame     string    `json:"frame"`
	Messages  int       `json:"messages"`
	Generated bool      `json:"generated"` // false when the export fell back to template defaults
	Timestamp time.Time `json:"timestamp"`
	DBC       string    `json:"dbc"`
}

// SinkResult is the outcome of publishing to one sink.
type SinkResult struct {
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Error string `json:"error,omitempty"`
}

// PublishReport lists every sink a publish reached.
type PublishReport struct {
	Project string       `json:"project"`
	Bytes   int          `json:"bytes"`
	Results []SinkResult `json:"results"`
}

// Failed returns the number of sinks that rejected the artifact.
func (r *PublishReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Error != "" {
			n++
		}
	}
	return n
}

// SinkStatus describes one configured sink.
type SinkStatus struct {
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Enabled bool   `json:"enabled"`
	Running bool   `json:"running"`
}

// BuildArtifact encodes the current export into the publish envelope.
func (e *Engine) BuildArtifact() Artifact {
	s := e.snapshot()
	msgs, generated := e.exportMessages(s)
	return Artifact{
		Project:   s.name,
		Frame:     s.frame.String(),
		Messages:  len(msgs),
		Generated: generated,
		Timestamp: time.Now().UTC(),
		DBC:       dbc.Encode(msgs, s.frame),
	}
}

// Publish sends the current export to every running sink. It fails with
// ErrNoSinks when none is running; individual sink failures are reported in
// the result.
func (e *Engine) Publish(ctx context.Context) (*PublishReport, error) {
	if !e.mqttMgr.AnyRunning() && !e.valkeyMgr.AnyRunning() && !e.kafkaMgr.AnyPublishing() {
		return nil, ErrNoSinks
	}

	art := e.BuildArtifact()
	payload, err := json.Marshal(art)
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}

	report := &PublishReport{Project: art.Project, Bytes: len(payload)}
	collect := func(kind string, errs map[string]error) {
		for name, err := range errs {
			res := SinkResult{Kind: kind, Name: name}
			if err != nil {
				res.Error = err.Error()
				logging.DebugError(kind, "publish "+name, err)
			}
			report.Results = append(report.Results, res)
		}
	}
	collect(SinkMQTT, e.mqttMgr.PublishDBC(ctx, art.Project, payload))
	collect(SinkValkey, e.valkeyMgr.PublishDBC(ctx, art.Project, payload))
	collect(SinkKafka, e.kafkaMgr.PublishDBC(ctx, art.Project, payload))
	sort.Slice(report.Results, func(i, j int) bool {
		if report.Results[i].Kind != report.Results[j].Kind {
			return report.Results[i].Kind < report.Results[j].Kind
		}
		return report.Results[i].Name < report.Results[j].Name
	})

	failed := report.Failed()
	e.logFn("Published %s (%d messages, %d bytes) to %d sink(s), %d failed",
		art.Project, art.Messages, len(payload), len(report.Results), failed)
	e.emit(EventPublished, PublishEvent{Project: art.Project, Delivered: len(report.Results) - failed, Failed: failed})
	return report, nil
}

// ListSinks returns the status of every configured sink.
func (e *Engine) ListSinks() []SinkStatus {
	var out []SinkStatus
	for _, p := range e.mqttMgr.List() {
		out = append(out, SinkStatus{Kind: SinkMQTT, Name: p.Name(), Address: p.Address(), Enabled: p.Config().Enabled, Running: p.IsRunning()})
	}
	for _, p := range e.valkeyMgr.List() {
		out = append(out, SinkStatus{Kind: SinkValkey, Name: p.Name(), Address: p.Address(), Enabled: p.Config().Enabled, Running: p.IsRunning()})
	}
	for _, name := range e.kafkaMgr.ListClusters() {
		p := e.kafkaMgr.GetProducer(name)
		if p == nil {
			continue
		}
		out = append(out, SinkStatus{Kind: SinkKafka, Name: name, Address: p.Address(), Enabled: p.Config().Enabled, Running: p.GetStatus() == kafka.StatusConnected})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// StartSink connects one sink.
func (e *Engine) StartSink(kind, name string) error {
	var err error
	switch kind {
	case SinkMQTT:
		err = e.mqttMgr.Start(name)
	case SinkValkey:
		err = e.valkeyMgr.Start(name)
	case SinkKafka:
		err = e.kafkaMgr.Connect(name)
	default:
		return fmt.Errorf("%w: unknown sink kind '%s'", ErrInvalidInput, kind)
	}
	if err != nil {
		return e.sinkError(kind, name, err)
	}

	e.logFn("%s sink %s started", kind, name)
	e.emit(EventSinkStarted, ServiceEvent{Kind: kind, Name: name})
	return nil
}

// StopSink disconnects one sink.
func (e *Engine) StopSink(kind, name string) error {
	var err error
	switch kind {
	case SinkMQTT:
		err = e.mqttMgr.Stop(name)
	case SinkValkey:
		err = e.valkeyMgr.Stop(name)
	case SinkKafka:
		err = e.kafkaMgr.Disconnect(name)
	default:
		return fmt.Errorf("%w: unknown sink kind '%s'", ErrInvalidInput, kind)
	}
	if err != nil {
		return e.sinkError(kind, name, err)
	}

	e.logFn("%s sink %s stopped", kind, name)
	e.emit(EventSinkStopped, ServiceEvent{Kind: kind, Name: name})
	return nil
}

func (e *Engine) sinkError(kind, name string, err error) error {
	if errors.Is(err, mqtt.ErrNotConfigured) || errors.Is(err, valkey.ErrNotConfigured) || errors.Is(err, kafka.ErrNotConfigured) {
		return fmt.Errorf("%w: %s sink '%s'", ErrNotFound, kind, name)
	}
	return err
}

// buildKafkaRuntimeConfig converts the project's Kafka settings into the
// producer configuration.
func buildKafkaRuntimeConfig(kc *config.KafkaConfig) *kafka.Config {
	autoCreate := true
	if kc.AutoCreateTopics != nil {
		autoCreate = *kc.AutoCreateTopics
	}
	return &kafka.Config{
		Name:             kc.Name,
		Enabled:          kc.Enabled,
		Brokers:          kc.Brokers,
		UseTLS:           kc.UseTLS,
		TLSSkipVerify:    kc.TLSSkipVerify,
		SASLMechanism:    kafka.SASLMechanism(kc.SASLMechanism),
		Username:         kc.Username,
		Password:         kc.Password,
		RequiredAcks:     kc.RequiredAcks,
		MaxRetries:       kc.MaxRetries,
		RetryBackoff:     kc.RetryBackoff,
		Selector:         kc.Selector,
		AutoCreateTopics: autoCreate,
	}
}
