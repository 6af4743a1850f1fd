//go:build unix

package udp

import (
	"io"
	"log/slog"
	"net"
	"net/netip"
	"syscall"

	"github.com/postalsys/dgram/internal/logging"
	"github.com/postalsys/dgram/internal/metrics"
)

// Endpoint kinds used as metric labels and log attributes.
const (
	kindRemote = "remote"
	kindLocal  = "local"
)

// Resource is the capability set shared by both endpoint kinds.
type Resource interface {
	// Source returns the socket as a readiness source for the poller.
	// It is the same value for the whole lifetime of the endpoint.
	Source() syscall.RawConn

	io.Closer
}

var (
	_ Resource = (*Remote)(nil)
	_ Resource = (*Local)(nil)
)

// Adapter creates UDP endpoints.
type Adapter struct {
	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewAdapter creates a new adapter. A nil logger discards output and nil
// metrics disables instrumentation.
func NewAdapter(cfg Config, logger *slog.Logger, m *metrics.Metrics) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	return &Adapter{
		config:  cfg,
		logger:  logger.With(slog.String(logging.KeyComponent, "udp")),
		metrics: m,
	}, nil
}

// networkFor returns the socket network matching the family of addr.
func networkFor(addr netip.Addr) string {
	if addr.Is4() {
		return "udp4"
	}
	return "udp6"
}

// unmapAddrPort strips an IPv4-mapped IPv6 prefix.
func unmapAddrPort(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// addrPortOf returns the address of a bound socket.
func addrPortOf(addr net.Addr) netip.AddrPort {
	if u, ok := addr.(*net.UDPAddr); ok {
		return unmapAddrPort(u.AddrPort())
	}
	return netip.AddrPort{}
}

