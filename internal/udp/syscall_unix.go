//go:build unix

package udp

import (
	"errors"
	"net"
	"net/netip"
	"os"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// recvFrom reads one datagram without waiting for readiness.
func recvFrom(c syscall.RawConn, buf []byte) (int, netip.AddrPort, error) {
	var (
		n     int
		from  unix.Sockaddr
		opErr error
	)
	err := c.Read(func(fd uintptr) bool {
		for {
			n, from, opErr = unix.Recvfrom(int(fd), buf, 0)
			if opErr != unix.EINTR {
				return true
			}
		}
	})
	if err != nil {
		return 0, netip.AddrPort{}, err
	}
	if opErr != nil {
		return 0, netip.AddrPort{}, os.NewSyscallError("recvfrom", opErr)
	}
	return n, sockaddrToAddrPort(from), nil
}

// sendTo writes one datagram without waiting for readiness. A nil to sends
// on a connected socket.
func sendTo(c syscall.RawConn, data []byte, to unix.Sockaddr) error {
	var opErr error
	err := c.Write(func(fd uintptr) bool {
		for {
			opErr = unix.Sendto(int(fd), data, 0, to)
			if opErr != unix.EINTR {
				return true
			}
		}
	})
	if err != nil {
		return err
	}
	return os.NewSyscallError("sendto", opErr)
}

// reuseAddress is a net.ListenConfig control hook enabling SO_REUSEADDR
// before bind.
func reuseAddress(network, address string, c syscall.RawConn) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return os.NewSyscallError("setsockopt", opErr)
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// isUnreachable reports errors raised by ICMP unreachable notifications.
func isUnreachable(err error) bool {
	return errors.Is(err, unix.ECONNREFUSED) ||
		errors.Is(err, unix.EHOSTUNREACH) ||
		errors.Is(err, unix.ENETUNREACH)
}

func isMessageTooLarge(err error) bool {
	return errors.Is(err, unix.EMSGSIZE)
}

func sockaddrToAddrPort(sa unix.Sockaddr) netip.AddrPort {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port))
	case *unix.SockaddrInet6:
		addr := netip.AddrFrom16(sa.Addr)
		if addr.Is4In6() {
			return netip.AddrPortFrom(addr.Unmap(), uint16(sa.Port))
		}
		if sa.ZoneId != 0 {
			addr = addr.WithZone(zoneName(sa.ZoneId))
		}
		return netip.AddrPortFrom(addr, uint16(sa.Port))
	default:
		return netip.AddrPort{}
	}
}

// addrPortToSockaddr converts ap for a socket of the given family.
func addrPortToSockaddr(ap netip.AddrPort, ipv6 bool) (unix.Sockaddr, error) {
	addr := ap.Addr()
	if !addr.IsValid() {
		return nil, os.NewSyscallError("sendto", unix.EINVAL)
	}

	if !ipv6 {
		addr = addr.Unmap()
		if !addr.Is4() {
			return nil, os.NewSyscallError("sendto", unix.EAFNOSUPPORT)
		}
		return &unix.SockaddrInet4{Port: int(ap.Port()), Addr: addr.As4()}, nil
	}

	sa := &unix.SockaddrInet6{Port: int(ap.Port()), Addr: addr.As16()}
	if zone := addr.Zone(); zone != "" {
		sa.ZoneId = zoneIndex(zone)
	}
	return sa, nil
}

func zoneName(index uint32) string {
	if ifi, err := net.InterfaceByIndex(int(index)); err == nil {
		return ifi.Name
	}
	return strconv.FormatUint(uint64(index), 10)
}

func zoneIndex(zone string) uint32 {
	if ifi, err := net.InterfaceByName(zone); err == nil {
		return uint32(ifi.Index)
	}
	if n, err := strconv.ParseUint(zone, 10, 32); err == nil {
		return uint32(n)
	}
	return 0
}
