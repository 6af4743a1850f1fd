//go:build unix

package udp

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/net/ipv4"
)

// groupConn contains the group methods of *ipv4.PacketConn.
type groupConn interface {
	JoinGroup(ifi *net.Interface, group net.Addr) error
	LeaveGroup(ifi *net.Interface, group net.Addr) error
}

// membership is the multicast group a listening socket joined.
type membership struct {
	conn  groupConn
	ifi   *net.Interface // nil means any interface
	group netip.Addr
}

func (m *membership) groupAddr() net.Addr {
	return &net.UDPAddr{IP: m.group.AsSlice()}
}

func (m *membership) join() error {
	if err := m.conn.JoinGroup(m.ifi, m.groupAddr()); err != nil {
		return fmt.Errorf("join multicast group %s: %w", m.group, err)
	}
	return nil
}

func (m *membership) leave() error {
	if err := m.conn.LeaveGroup(m.ifi, m.groupAddr()); err != nil {
		return fmt.Errorf("leave multicast group %s: %w", m.group, err)
	}
	return nil
}

func isMulticastV4(addr netip.Addr) bool {
	return addr.Is4() && addr.IsMulticast()
}

// listenMulticast binds the wildcard address on the group's port, since some
// platforms reject a bind to the group address itself, and joins the group.
// SO_REUSEADDR lets several listeners share the port.
func (a *Adapter) listenMulticast(group netip.AddrPort) (*net.UDPConn, *membership, error) {
	ifi, err := a.config.multicastInterface()
	if err != nil {
		return nil, nil, err
	}

	bind := netip.AddrPortFrom(netip.IPv4Unspecified(), group.Port())
	lc := net.ListenConfig{Control: reuseAddress}
	pc, err := lc.ListenPacket(context.Background(), "udp4", bind.String())
	if err != nil {
		return nil, nil, fmt.Errorf("bind udp socket to %s: %w", bind, err)
	}
	conn := pc.(*net.UDPConn)

	p := ipv4.NewPacketConn(conn)
	m := &membership{conn: p, ifi: ifi, group: group.Addr()}
	if err := m.join(); err != nil {
		conn.Close()
		return nil, nil, err
	}

	if err := p.SetMulticastLoopback(a.config.MulticastLoopback); err != nil {
		m.leave()
		conn.Close()
		return nil, nil, fmt.Errorf("set multicast loopback: %w", err)
	}

	return conn, m, nil
}
