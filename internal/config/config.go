// Package config provides configuration parsing and validation for the
// dgram tool.
package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/postalsys/dgram/internal/logging"
	"github.com/postalsys/dgram/internal/udp"
)

// Config represents the complete tool configuration.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	UDP    UDPConfig    `yaml:"udp"`
	Poll   PollConfig   `yaml:"poll"`
	Health HealthConfig `yaml:"health"`
	Send   SendConfig   `yaml:"send"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// UDPConfig contains socket settings shared by all endpoints.
type UDPConfig struct {
	MulticastInterface string `yaml:"multicast_interface"` // empty = any
	MulticastLoopback  bool   `yaml:"multicast_loopback"`
	ReadBufferSize     int    `yaml:"read_buffer_size"`  // 0 = OS default
	WriteBufferSize    int    `yaml:"write_buffer_size"` // 0 = OS default
}

// PollConfig defines the readiness loop parameters.
type PollConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// HealthConfig defines health and metrics server settings.
type HealthConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// SendConfig defines defaults of the send command.
type SendConfig struct {
	Count int           `yaml:"count"`
	Rate  float64       `yaml:"rate"` // datagrams per second, 0 = unlimited
	Size  int           `yaml:"size"` // pad payloads to this size, 0 = as given
	Wait  time.Duration `yaml:"wait"` // how long to wait for replies
}

// Default returns a Config with default values.
func Default() *Config {
	udpDefaults := udp.DefaultConfig()

	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		UDP: UDPConfig{
			MulticastInterface: udpDefaults.MulticastInterface,
			MulticastLoopback:  udpDefaults.MulticastLoopback,
			ReadBufferSize:     udpDefaults.ReadBufferSize,
			WriteBufferSize:    udpDefaults.WriteBufferSize,
		},
		Poll: PollConfig{
			Interval: 100 * time.Millisecond,
		},
		Health: HealthConfig{
			Enabled:      false,
			Address:      "127.0.0.1:9090",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Send: SendConfig{
			Count: 1,
			Rate:  0,
			Size:  0,
			Wait:  time.Second,
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	// Start with defaults
	cfg := Default()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envVarRegex matches ${VAR} or $VAR patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their values.
// ${VAR:-default} falls back to default; unknown variables are kept as is.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		if idx := strings.Index(name, ":-"); idx != -1 {
			if val, ok := os.LookupEnv(name[:idx]); ok {
				return val
			}
			return name[idx+2:]
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if !logging.IsValidLevel(c.Log.Level) {
		errs = append(errs, fmt.Sprintf("invalid log.level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}
	if !logging.IsValidFormat(c.Log.Format) {
		errs = append(errs, fmt.Sprintf("invalid log.format: %s (must be text or json)", c.Log.Format))
	}

	if c.UDP.ReadBufferSize < 0 {
		errs = append(errs, "udp.read_buffer_size must not be negative")
	}
	if c.UDP.WriteBufferSize < 0 {
		errs = append(errs, "udp.write_buffer_size must not be negative")
	}

	if c.Poll.Interval <= 0 {
		errs = append(errs, "poll.interval must be positive")
	}

	if c.Health.Enabled {
		if c.Health.Address == "" {
			errs = append(errs, "health.address is required when enabled")
		} else if _, _, err := net.SplitHostPort(c.Health.Address); err != nil {
			errs = append(errs, fmt.Sprintf("invalid health.address: %s", c.Health.Address))
		}
	}

	if c.Send.Count < 1 {
		errs = append(errs, "send.count must be positive")
	}
	if c.Send.Rate < 0 {
		errs = append(errs, "send.rate must not be negative")
	}
	if c.Send.Size < 0 || c.Send.Size > udp.MaxPayloadLen {
		errs = append(errs, fmt.Sprintf("send.size must be between 0 and %d", udp.MaxPayloadLen))
	}
	if c.Send.Wait < 0 {
		errs = append(errs, "send.wait must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// UDPSettings returns the socket settings for udp.NewAdapter.
func (c *Config) UDPSettings() udp.Config {
	return udp.Config{
		MulticastInterface: c.UDP.MulticastInterface,
		MulticastLoopback:  c.UDP.MulticastLoopback,
		ReadBufferSize:     c.UDP.ReadBufferSize,
		WriteBufferSize:    c.UDP.WriteBufferSize,
	}
}

// String returns the configuration as YAML.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}
