//go:build unix

package udp

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"runtime"
	"sync"
	"syscall"

	"github.com/postalsys/dgram/internal/logging"
	"github.com/postalsys/dgram/internal/metrics"
)

// Local is a listening endpoint. It keeps no per-sender state: every datagram
// is delivered with its sender address and replies are explicitly addressed.
type Local struct {
	sock *localSocket
	raw  syscall.RawConn

	localAddr netip.AddrPort
	ipv6      bool

	// buf is reused by every Accept.
	buf []byte

	logger  *slog.Logger
	metrics *metrics.Metrics

	cleanup runtime.Cleanup
}

// localSocket owns what must be released when a Local goes away. It is kept
// apart from Local so the runtime cleanup can hold it without keeping the
// Local reachable.
type localSocket struct {
	conn       *net.UDPConn
	membership *membership // nil unless bound to a multicast group

	logger  *slog.Logger
	metrics *metrics.Metrics

	once sync.Once
	err  error
}

// release leaves the multicast group, if any, then closes the socket. Only
// the first call has an effect. A failed leave is logged and the socket is
// closed anyway.
func (s *localSocket) release() error {
	s.once.Do(func() {
		var leaveErr error
		if s.membership != nil {
			leaveErr = s.membership.leave()
			s.metrics.RecordMulticastLeave(leaveErr)
			if leaveErr != nil {
				s.logger.Error("multicast leave failed",
					logging.KeyGroup, s.membership.group.String(),
					logging.KeyError, leaveErr)
			}
		}

		closeErr := s.conn.Close()
		s.metrics.RecordEndpointClose(kindLocal)
		s.logger.Debug("udp listener released")

		s.err = errors.Join(leaveErr, closeErr)
	})
	return s.err
}

// Listen opens a listening endpoint on addr. If addr is an IPv4 multicast
// address the endpoint binds the wildcard address on the same port and joins
// the group.
func (a *Adapter) Listen(addr netip.AddrPort) (*Local, error) {
	if !addr.IsValid() {
		return nil, fmt.Errorf("listen udp socket: invalid address %q", addr)
	}
	addr = unmapAddrPort(addr)

	var (
		conn *net.UDPConn
		m    *membership
		err  error
	)
	if isMulticastV4(addr.Addr()) {
		conn, m, err = a.listenMulticast(addr)
		if err != nil {
			return nil, err
		}
		a.metrics.RecordMulticastJoin()
	} else {
		conn, err = net.ListenUDP(networkFor(addr.Addr()), net.UDPAddrFromAddrPort(addr))
		if err != nil {
			return nil, fmt.Errorf("bind udp socket to %s: %w", addr, err)
		}
	}

	localAddr := addrPortOf(conn.LocalAddr())
	logger := a.logger.With(
		slog.String(logging.KeyEndpoint, kindLocal),
		slog.String(logging.KeyLocalAddr, localAddr.String()))

	sock := &localSocket{
		conn:       conn,
		membership: m,
		logger:     logger,
		metrics:    a.metrics,
	}
	a.metrics.RecordEndpointOpen(kindLocal)

	if err := a.config.applyBuffers(conn); err != nil {
		sock.release()
		return nil, err
	}

	raw, err := conn.SyscallConn()
	if err != nil {
		sock.release()
		return nil, fmt.Errorf("udp socket source: %w", err)
	}

	l := &Local{
		sock:      sock,
		raw:       raw,
		localAddr: localAddr,
		ipv6:      localAddr.Addr().Is6(),
		buf:       make([]byte, inputBufferSize),
		logger:    logger,
		metrics:   a.metrics,
	}
	// Leave the group even if the owner drops the endpoint without Close.
	l.cleanup = runtime.AddCleanup(l, func(s *localSocket) { s.release() }, sock)

	if m != nil {
		logger.Debug("udp listener created", logging.KeyGroup, m.group.String())
	} else {
		logger.Debug("udp listener created")
	}

	return l, nil
}

// LocalAddr returns the resolved bound address. For a multicast endpoint this
// is the wildcard address on the group port.
func (l *Local) LocalAddr() netip.AddrPort {
	return l.localAddr
}

// Group returns the multicast group the endpoint joined, if any.
func (l *Local) Group() (netip.Addr, bool) {
	if l.sock.membership == nil {
		return netip.Addr{}, false
	}
	return l.sock.membership.group, true
}

// Source returns the socket as a readiness source.
func (l *Local) Source() syscall.RawConn {
	return l.raw
}

// Accept drains every datagram queued on the socket, calling fn once per
// datagram with its sender. data is only valid until fn returns.
func (l *Local) Accept(fn func(from netip.AddrPort, data []byte)) {
	for {
		n, from, err := recvFrom(l.raw, l.buf)
		switch {
		case err == nil:
			l.metrics.RecordReceived(kindLocal, n)
			fn(from, l.buf[:n])
		case isWouldBlock(err):
			return
		default:
			// Should not happen; the next readiness event retries.
			l.metrics.RecordReceiveError(kindLocal)
			l.logger.Error("udp accept error", logging.KeyError, err)
			return
		}
	}
}

// SendTo sends data to addr.
func (l *Local) SendTo(addr netip.AddrPort, data []byte) SendResult {
	res := sendPacket(l.logger, data, func(b []byte) error {
		sa, err := addrPortToSockaddr(addr, l.ipv6)
		if err != nil {
			return err
		}
		return sendTo(l.raw, b, sa)
	})
	recordSend(l.metrics, kindLocal, res)
	return res
}

// Close leaves the multicast group, if any, and releases the socket.
func (l *Local) Close() error {
	l.cleanup.Stop()
	return l.sock.release()
}
