package namespace

import "testing"

func TestBuilder(t *testing.T) {
	tests := []struct {
		name    string
		ns, sel string
		mqtt    string
		key     string
		channel string
		kafka   string
	}{
		{"no selector", "plant", "", "plant/dbc/bench", "plant:dbc:bench", "plant:dbc:changes", "plant.dbc"},
		{"with selector", "plant", "line2", "plant/line2/dbc/bench", "plant:line2:dbc:bench", "plant:line2:dbc:changes", "plant-line2.dbc"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := New(tc.ns, tc.sel)
			if got := b.MQTTDBCTopic("bench"); got != tc.mqtt {
				t.Errorf("MQTTDBCTopic = %q, want %q", got, tc.mqtt)
			}
			if got := b.ValkeyDBCKey("bench"); got != tc.key {
				t.Errorf("ValkeyDBCKey = %q, want %q", got, tc.key)
			}
			if got := b.ValkeyChangesChannel(); got != tc.channel {
				t.Errorf("ValkeyChangesChannel = %q, want %q", got, tc.channel)
			}
			if got := b.KafkaDBCTopic(); got != tc.kafka {
				t.Errorf("KafkaDBCTopic = %q, want %q", got, tc.kafka)
			}
		})
	}
}
