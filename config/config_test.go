package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"canforge/layout"
	"canforge/message"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Frame != layout.FrameExtended {
		t.Errorf("expected extended frame, got %v", cfg.Frame)
	}
	if cfg.Threshold != 100 {
		t.Errorf("expected threshold 100, got %d", cfg.Threshold)
	}
	if cfg.Web.Enabled {
		t.Error("expected Web disabled by default")
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("expected Web port 8080, got %d", cfg.Web.Port)
	}
	if len(cfg.Fields) != 0 || len(cfg.Messages) != 0 {
		t.Error("expected empty fields and messages")
	}
}

func TestNewProject(t *testing.T) {
	cfg := NewProject()
	if len(cfg.Fields) != 5 {
		t.Errorf("expected 5 default preset fields, got %d", len(cfg.Fields))
	}
	if len(cfg.Messages) != 1 || cfg.Messages[0].Name != "Channel_Data" {
		t.Errorf("expected the default message, got %+v", cfg.Messages)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestDefaultSinkConfigs(t *testing.T) {
	mqtt := DefaultMQTTConfig("test")
	if mqtt.Broker != "localhost" || mqtt.Port != 1883 || mqtt.Selector != "" {
		t.Errorf("unexpected MQTT defaults: %+v", mqtt)
	}

	valkey := DefaultValkeyConfig("test")
	if valkey.Address != "localhost:6379" || !valkey.PublishChanges {
		t.Errorf("unexpected Valkey defaults: %+v", valkey)
	}

	kafka := DefaultKafkaConfig("test")
	if len(kafka.Brokers) != 1 || kafka.Brokers[0] != "localhost:9092" {
		t.Errorf("expected brokers ['localhost:9092'], got %v", kafka.Brokers)
	}
	if kafka.RequiredAcks != -1 {
		t.Errorf("expected RequiredAcks -1, got %d", kafka.RequiredAcks)
	}
}

func TestLoadAndSave(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("missing file creates a new project", func(t *testing.T) {
		path := filepath.Join(tmpDir, "nonexistent.yaml")
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if len(cfg.Fields) == 0 || len(cfg.Messages) == 0 {
			t.Error("expected default preset and message")
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected new project to be saved: %v", err)
		}
	})

	t.Run("save and load roundtrip", func(t *testing.T) {
		path := filepath.Join(tmpDir, "test.yaml")

		cfg := DefaultConfig()
		cfg.Name = "bench"
		cfg.Frame = layout.FrameStandard
		cfg.Fields = []FieldConfig{
			{Name: "Channel", Abbreviation: "CH", Bits: 6, Segments: []layout.Segment{{Position: 5, Bits: 6}},
				Kind: layout.KindBatch, BatchRange: &layout.Range{Min: 2, Max: 9}},
		}
		cfg.Messages = []MessageConfig{{Name: "M", Length: 4, NamingPattern: "M_{CH}", Signals: []message.Signal{
			{Name: "S", Length: 8, Factor: 0.5, ByteOrder: message.Motorola},
		}}}
		cfg.Valkey = []ValkeyConfig{{Name: "cache", Address: "redis:6379", KeyTTL: time.Minute}}

		if err := cfg.Save(path); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		loaded, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if loaded.Name != "bench" || loaded.Frame != layout.FrameStandard {
			t.Errorf("project header not preserved: %s %s", loaded.Name, loaded.Frame)
		}
		f := loaded.FindField("Channel")
		if f == nil || f.BatchRange == nil || f.BatchRange.Max != 9 || len(f.Segments) != 1 {
			t.Errorf("field not preserved: %+v", f)
		}
		m := loaded.FindMessage("M")
		if m == nil || len(m.Signals) != 1 || m.Signals[0].ByteOrder != message.Motorola || m.Signals[0].Factor != 0.5 {
			t.Errorf("message not preserved: %+v", m)
		}
		if v := loaded.FindValkey("cache"); v == nil || v.KeyTTL != time.Minute {
			t.Errorf("valkey not preserved: %+v", v)
		}
	})

	t.Run("creates directory if needed", func(t *testing.T) {
		path := filepath.Join(tmpDir, "subdir", "nested", "project.yaml")
		if err := DefaultConfig().Save(path); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Error("project file was not created")
		}
	})

	t.Run("returns error for invalid yaml", func(t *testing.T) {
		path := filepath.Join(tmpDir, "invalid.yaml")
		os.WriteFile(path, []byte("invalid: yaml: content: ["), 0644)

		if _, err := Load(path); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("missing frame defaults to extended", func(t *testing.T) {
		path := filepath.Join(tmpDir, "noframe.yaml")
		os.WriteFile(path, []byte("name: x\n"), 0644)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Frame != layout.FrameExtended || cfg.Fields == nil || cfg.Messages == nil {
			t.Errorf("unexpected defaults: %+v", cfg)
		}
	})
}

func TestFieldOperations(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("AddField and FindField", func(t *testing.T) {
		cfg.AddField(FieldConfig{Name: "DEV", Bits: 4})
		found := cfg.FindField("DEV")
		if found == nil {
			t.Fatal("FindField returned nil")
		}
		if found.Bits != 4 {
			t.Errorf("expected 4 bits, got %d", found.Bits)
		}
	})

	t.Run("UpdateField", func(t *testing.T) {
		if !cfg.UpdateField("DEV", FieldConfig{Name: "DEV", Bits: 6}) {
			t.Error("UpdateField returned false")
		}
		if cfg.FindField("DEV").Bits != 6 {
			t.Error("field not updated")
		}
		if cfg.UpdateField("nonexistent", FieldConfig{}) {
			t.Error("expected false for nonexistent field")
		}
	})

	t.Run("RemoveField", func(t *testing.T) {
		if !cfg.RemoveField("DEV") {
			t.Error("RemoveField returned false")
		}
		if cfg.FindField("DEV") != nil {
			t.Error("field not removed")
		}
		if cfg.RemoveField("DEV") {
			t.Error("expected false for removed field")
		}
	})
}

func TestMessageOperations(t *testing.T) {
	cfg := DefaultConfig()

	cfg.AddMessage(MessageConfig{Name: "M1", Length: 8})
	if cfg.FindMessage("M1") == nil {
		t.Fatal("FindMessage returned nil")
	}
	if !cfg.UpdateMessage("M1", MessageConfig{Name: "M1", Length: 2}) {
		t.Error("UpdateMessage returned false")
	}
	if cfg.FindMessage("M1").Length != 2 {
		t.Error("message not updated")
	}
	if !cfg.RemoveMessage("M1") || cfg.FindMessage("M1") != nil {
		t.Error("message not removed")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"bad namespace", func(c *Config) { c.Namespace = "a/b" }, true},
		{"bad name", func(c *Config) { c.Name = "my project" }, true},
		{"bad frame", func(c *Config) { c.Frame = "fd" }, true},
		{"duplicate field", func(c *Config) { c.Fields = []FieldConfig{{Name: "A"}, {Name: "A"}} }, true},
		{"empty message name", func(c *Config) { c.Messages = []MessageConfig{{}} }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestChangeListeners(t *testing.T) {
	cfg := DefaultConfig()
	called := make(chan struct{}, 1)
	id := cfg.AddOnChangeListener(func() { called <- struct{}{} })

	if err := cfg.Save(filepath.Join(t.TempDir(), "p.yaml")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("listener not called")
	}

	cfg.RemoveOnChangeListener(id)
	if err := cfg.Save(filepath.Join(t.TempDir(), "p.yaml")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	select {
	case <-called:
		t.Error("removed listener called")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDefaultPath(t *testing.T) {
	path := DefaultPath()
	if path == "" {
		t.Error("DefaultPath returned empty string")
	}
	if !filepath.IsAbs(path) && path != "project.yaml" {
		t.Error("expected absolute path or 'project.yaml'")
	}
}

func TestSetWebUser(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SetWebUser(WebUser{Username: "admin", PasswordHash: "a", Role: RoleViewer})
	cfg.SetWebUser(WebUser{Username: "admin", PasswordHash: "b", Role: RoleAdmin})
	cfg.SetWebUser(WebUser{Username: "ops", PasswordHash: "c", Role: RoleViewer})

	if len(cfg.Web.Users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(cfg.Web.Users))
	}
	u := cfg.FindWebUser("admin")
	if u == nil || u.PasswordHash != "b" || u.Role != RoleAdmin {
		t.Errorf("admin not replaced: %+v", u)
	}
	if cfg.FindWebUser("nobody") != nil {
		t.Error("unexpected user")
	}
}
