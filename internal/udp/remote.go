//go:build unix

package udp

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"syscall"

	"github.com/postalsys/dgram/internal/logging"
	"github.com/postalsys/dgram/internal/metrics"
)

// Remote is an association of a local socket with a single peer.
type Remote struct {
	conn *net.UDPConn
	raw  syscall.RawConn

	localAddr netip.AddrPort
	peerAddr  netip.AddrPort

	// buf is reused by every Receive. Only the bytes of the last read are
	// ever exposed.
	buf []byte

	logger  *slog.Logger
	metrics *metrics.Metrics

	closeOnce sync.Once
	closeErr  error
}

// Connect binds a socket to an OS-assigned local port and associates it with
// peer. No packet is exchanged: the association only makes the kernel label
// and filter traffic for that peer.
func (a *Adapter) Connect(peer netip.AddrPort) (*Remote, error) {
	if !peer.IsValid() {
		return nil, fmt.Errorf("connect udp socket: invalid peer address %q", peer)
	}
	peer = unmapAddrPort(peer)

	unspecified := netip.IPv4Unspecified()
	if peer.Addr().Is6() {
		unspecified = netip.IPv6Unspecified()
	}

	network := networkFor(peer.Addr())
	conn, err := net.DialUDP(network,
		net.UDPAddrFromAddrPort(netip.AddrPortFrom(unspecified, 0)),
		net.UDPAddrFromAddrPort(peer))
	if err != nil {
		return nil, fmt.Errorf("connect udp socket to %s: %w", peer, err)
	}

	if err := a.config.applyBuffers(conn); err != nil {
		conn.Close()
		return nil, err
	}

	raw, err := conn.SyscallConn()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("udp socket source: %w", err)
	}

	r := &Remote{
		conn:      conn,
		raw:       raw,
		localAddr: addrPortOf(conn.LocalAddr()),
		peerAddr:  peer,
		buf:       make([]byte, inputBufferSize),
		metrics:   a.metrics,
	}
	r.logger = a.logger.With(
		slog.String(logging.KeyEndpoint, kindRemote),
		slog.String(logging.KeyLocalAddr, r.localAddr.String()),
		slog.String(logging.KeyRemoteAddr, peer.String()))

	a.metrics.RecordEndpointOpen(kindRemote)
	r.logger.Debug("udp association created")

	return r, nil
}

// LocalAddr returns the resolved local address of the association.
func (r *Remote) LocalAddr() netip.AddrPort {
	return r.localAddr
}

// PeerAddr returns the peer the association is bound to.
func (r *Remote) PeerAddr() netip.AddrPort {
	return r.peerAddr
}

// Source returns the socket as a readiness source.
func (r *Remote) Source() syscall.RawConn {
	return r.raw
}

// Receive drains every datagram queued on the socket, calling fn once per
// datagram. data is only valid until fn returns.
func (r *Remote) Receive(fn func(data []byte)) ReadStatus {
	for {
		n, _, err := recvFrom(r.raw, r.buf)
		switch {
		case err == nil:
			r.metrics.RecordReceived(kindRemote, n)
			fn(r.buf[:n])
		case isWouldBlock(err):
			return WaitNextEvent
		case isUnreachable(err):
			// ICMP generated by a previous send: not logged.
			return WaitNextEvent
		default:
			r.metrics.RecordReceiveError(kindRemote)
			r.logger.Error("udp receive error", logging.KeyError, err)
			return WaitNextEvent
		}
	}
}

// Send sends data to the peer.
func (r *Remote) Send(data []byte) SendResult {
	res := sendPacket(r.logger, data, func(b []byte) error {
		return sendTo(r.raw, b, nil)
	})
	recordSend(r.metrics, kindRemote, res)
	return res
}

// Close releases the socket.
func (r *Remote) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.conn.Close()
		r.metrics.RecordEndpointClose(kindRemote)
		r.logger.Debug("udp association released")
	})
	return r.closeErr
}
