package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %s, want info", cfg.Log.Level)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %s, want text", cfg.Log.Format)
	}
	if !cfg.UDP.MulticastLoopback {
		t.Error("UDP.MulticastLoopback should be true by default")
	}
	if cfg.Poll.Interval != 100*time.Millisecond {
		t.Errorf("Poll.Interval = %v, want 100ms", cfg.Poll.Interval)
	}
	if cfg.Health.Enabled {
		t.Error("Health.Enabled should be false by default")
	}
	if cfg.Send.Count != 1 {
		t.Errorf("Send.Count = %d, want 1", cfg.Send.Count)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestParse_ValidConfig(t *testing.T) {
	yamlConfig := `
log:
  level: "debug"
  format: "json"

udp:
  multicast_interface: "eth0"
  multicast_loopback: false
  read_buffer_size: 4194304
  write_buffer_size: 1048576

poll:
  interval: 50ms

health:
  enabled: true
  address: "127.0.0.1:9100"

send:
  count: 10
  rate: 100
  size: 1200
  wait: 2s
`

	cfg, err := Parse([]byte(yamlConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
	}
	if cfg.UDP.MulticastInterface != "eth0" {
		t.Errorf("UDP.MulticastInterface = %s, want eth0", cfg.UDP.MulticastInterface)
	}
	if cfg.UDP.MulticastLoopback {
		t.Error("UDP.MulticastLoopback = true, want false")
	}
	if cfg.Poll.Interval != 50*time.Millisecond {
		t.Errorf("Poll.Interval = %v, want 50ms", cfg.Poll.Interval)
	}
	if !cfg.Health.Enabled || cfg.Health.Address != "127.0.0.1:9100" {
		t.Errorf("Health = %+v, want enabled on 127.0.0.1:9100", cfg.Health)
	}
	if cfg.Send.Count != 10 || cfg.Send.Rate != 100 || cfg.Send.Size != 1200 || cfg.Send.Wait != 2*time.Second {
		t.Errorf("Send = %+v", cfg.Send)
	}

	settings := cfg.UDPSettings()
	if settings.ReadBufferSize != 4194304 || settings.WriteBufferSize != 1048576 {
		t.Errorf("UDPSettings() = %+v", settings)
	}
	if err := settings.Validate(); err != nil {
		t.Errorf("UDPSettings().Validate() error = %v", err)
	}
}

func TestParse_MinimalConfig(t *testing.T) {
	cfg, err := Parse([]byte("log:\n  level: warn\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %s, want warn", cfg.Log.Level)
	}
	// Defaults are kept for everything else.
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %s, want text", cfg.Log.Format)
	}
	if cfg.Send.Wait != time.Second {
		t.Errorf("Send.Wait = %v, want 1s", cfg.Send.Wait)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("log: [unclosed"))
	if err == nil {
		t.Error("Parse() should fail for invalid YAML")
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		config    string
		wantError string
	}{
		{
			name:      "invalid log level",
			config:    "log:\n  level: verbose\n",
			wantError: "invalid log.level",
		},
		{
			name:      "invalid log format",
			config:    "log:\n  format: xml\n",
			wantError: "invalid log.format",
		},
		{
			name:      "negative read buffer",
			config:    "udp:\n  read_buffer_size: -1\n",
			wantError: "udp.read_buffer_size",
		},
		{
			name:      "zero poll interval",
			config:    "poll:\n  interval: 0s\n",
			wantError: "poll.interval",
		},
		{
			name:      "health without address",
			config:    "health:\n  enabled: true\n  address: \"\"\n",
			wantError: "health.address is required",
		},
		{
			name:      "health with bad address",
			config:    "health:\n  enabled: true\n  address: \"no-port\"\n",
			wantError: "invalid health.address",
		},
		{
			name:      "zero count",
			config:    "send:\n  count: 0\n",
			wantError: "send.count",
		},
		{
			name:      "oversized payload",
			config:    "send:\n  size: 70000\n",
			wantError: "send.size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.config))
			if err == nil {
				t.Error("Parse() should fail")
				return
			}
			if !strings.Contains(err.Error(), tt.wantError) {
				t.Errorf("Error = %v, want to contain %q", err, tt.wantError)
			}
		})
	}
}

func TestParse_EnvVarSubstitution(t *testing.T) {
	t.Setenv("TEST_DGRAM_LEVEL", "error")
	t.Setenv("TEST_DGRAM_IFACE", "lo")

	yamlConfig := `
log:
  level: "${TEST_DGRAM_LEVEL}"
udp:
  multicast_interface: "$TEST_DGRAM_IFACE"
`

	cfg, err := Parse([]byte(yamlConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %s, want error", cfg.Log.Level)
	}
	if cfg.UDP.MulticastInterface != "lo" {
		t.Errorf("UDP.MulticastInterface = %s, want lo", cfg.UDP.MulticastInterface)
	}
}

func TestParse_EnvVarDefaultValue(t *testing.T) {
	os.Unsetenv("NONEXISTENT_VAR")

	cfg, err := Parse([]byte("health:\n  address: \"${NONEXISTENT_VAR:-0.0.0.0:9200}\"\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Health.Address != "0.0.0.0:9200" {
		t.Errorf("Health.Address = %s, want 0.0.0.0:9200", cfg.Health.Address)
	}
}

func TestParse_EnvVarNotFound(t *testing.T) {
	os.Unsetenv("NONEXISTENT_VAR")

	cfg, err := Parse([]byte("udp:\n  multicast_interface: \"${NONEXISTENT_VAR}\"\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// Should keep the original placeholder if not found
	if cfg.UDP.MulticastInterface != "${NONEXISTENT_VAR}" {
		t.Errorf("UDP.MulticastInterface = %s, want ${NONEXISTENT_VAR}", cfg.UDP.MulticastInterface)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() should fail for nonexistent file")
	}
}

func TestLoad_ValidFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	configContent := `
log:
  level: "debug"
send:
  count: 3
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
	}
	if cfg.Send.Count != 3 {
		t.Errorf("Send.Count = %d, want 3", cfg.Send.Count)
	}
}

func TestConfig_String(t *testing.T) {
	out := Default().String()

	if !strings.Contains(out, "level: info") {
		t.Errorf("String() should contain the log level, got:\n%s", out)
	}
	if !strings.Contains(out, "multicast_loopback: true") {
		t.Errorf("String() should contain udp settings, got:\n%s", out)
	}
}
