//go:build unix

package udp

import (
	"net/netip"
	"testing"

	"golang.org/x/sys/unix"
)

func TestSockaddrRoundTrip(t *testing.T) {
	tests := []struct {
		addr string
		ipv6 bool
	}{
		{"127.0.0.1:5000", false},
		{"[::1]:5000", true},
		{"[2001:db8::10]:443", true},
	}

	for _, tt := range tests {
		ap := netip.MustParseAddrPort(tt.addr)
		sa, err := addrPortToSockaddr(ap, tt.ipv6)
		if err != nil {
			t.Fatalf("addrPortToSockaddr(%s) error = %v", ap, err)
		}
		if got := sockaddrToAddrPort(sa); got != ap {
			t.Errorf("round trip of %s = %s", ap, got)
		}
	}
}

func TestAddrPortToSockaddr_IPv4OnIPv6Socket(t *testing.T) {
	sa, err := addrPortToSockaddr(netip.MustParseAddrPort("10.0.0.1:53"), true)
	if err != nil {
		t.Fatalf("addrPortToSockaddr() error = %v", err)
	}
	sa6, ok := sa.(*unix.SockaddrInet6)
	if !ok {
		t.Fatalf("addrPortToSockaddr() = %T, want *unix.SockaddrInet6", sa)
	}
	if got := netip.AddrFrom16(sa6.Addr); !got.Is4In6() {
		t.Errorf("address = %v, want IPv4-mapped", got)
	}

	// Mapped senders are reported as plain IPv4.
	if got := sockaddrToAddrPort(sa); got != netip.MustParseAddrPort("10.0.0.1:53") {
		t.Errorf("sockaddrToAddrPort() = %v, want 10.0.0.1:53", got)
	}
}

func TestAddrPortToSockaddr_Errors(t *testing.T) {
	if _, err := addrPortToSockaddr(netip.AddrPort{}, false); err == nil {
		t.Error("expected an error for an invalid address")
	}
	if _, err := addrPortToSockaddr(netip.MustParseAddrPort("[2001:db8::1]:1"), false); err == nil {
		t.Error("expected an error for an IPv6 address on an IPv4 socket")
	}
}
