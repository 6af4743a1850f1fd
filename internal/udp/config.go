package udp

import (
	"fmt"
	"net"
	"strings"
)

// Config holds socket settings shared by all endpoints of an Adapter.
type Config struct {
	// MulticastInterface is the name of the interface used to join
	// multicast groups. Empty means any interface.
	MulticastInterface string

	// MulticastLoopback controls whether multicast datagrams sent by a
	// listening endpoint are looped back to local listeners.
	MulticastLoopback bool

	// ReadBufferSize sets SO_RCVBUF. 0 keeps the OS default.
	ReadBufferSize int

	// WriteBufferSize sets SO_SNDBUF. 0 keeps the OS default.
	WriteBufferSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MulticastInterface: "",
		MulticastLoopback:  true,
		ReadBufferSize:     0,
		WriteBufferSize:    0,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.ReadBufferSize < 0 {
		errs = append(errs, "read_buffer_size must not be negative")
	}
	if c.WriteBufferSize < 0 {
		errs = append(errs, "write_buffer_size must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid udp config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// multicastInterface resolves MulticastInterface. A nil interface means any.
func (c *Config) multicastInterface() (*net.Interface, error) {
	if c.MulticastInterface == "" {
		return nil, nil
	}
	ifi, err := net.InterfaceByName(c.MulticastInterface)
	if err != nil {
		return nil, fmt.Errorf("multicast interface %q: %w", c.MulticastInterface, err)
	}
	return ifi, nil
}

// applyBuffers sets the configured socket buffer sizes on conn.
func (c *Config) applyBuffers(conn *net.UDPConn) error {
	if c.ReadBufferSize > 0 {
		if err := conn.SetReadBuffer(c.ReadBufferSize); err != nil {
			return fmt.Errorf("set read buffer: %w", err)
		}
	}
	if c.WriteBufferSize > 0 {
		if err := conn.SetWriteBuffer(c.WriteBufferSize); err != nil {
			return fmt.Errorf("set write buffer: %w", err)
		}
	}
	return nil
}
