//go:build !windows

package icmpprobe

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"golang.org/x/sys/unix"
)

// RawOpener opens raw ICMP sockets. It needs root or CAP_NET_RAW.
type RawOpener struct{}

// Open creates a raw ICMP (or ICMPv6) socket with max TTL in non-blocking
// mode and connects it to addr. Connecting only records the peer, so plain
// reads and writes work without passing the address again.
func (RawOpener) Open(addr netip.Addr) (Conn, error) {
	family, proto := unix.AF_INET, unix.IPPROTO_ICMP
	var sa unix.Sockaddr
	if addr.Is4() {
		sa = &unix.SockaddrInet4{Addr: addr.As4()}
	} else {
		family, proto = unix.AF_INET6, unix.IPPROTO_ICMPV6
		sa6 := &unix.SockaddrInet6{Addr: addr.As16()}
		if zone := addr.Zone(); zone != "" {
			sa6.ZoneId = zoneIndex(zone)
		}
		sa = sa6
	}

	fd, err := unix.Socket(family, unix.SOCK_RAW, proto)
	if err != nil {
		return nil, fmt.Errorf("could not open raw icmp socket: %w", err)
	}

	if err := configure(fd, addr.Is4(), sa); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return &rawConn{fd: fd}, nil
}

func configure(fd int, isIPv4 bool, sa unix.Sockaddr) error {
	var err error
	if isIPv4 {
		err = unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TTL, MaxTTL)
	} else {
		err = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_UNICAST_HOPS, MaxTTL)
	}
	if err != nil {
		return fmt.Errorf("could not set ttl: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("could not set non-blocking mode: %w", err)
	}
	if err := unix.Connect(fd, sa); err != nil {
		return fmt.Errorf("could not connect socket: %w", err)
	}
	return nil
}

func zoneIndex(zone string) uint32 {
	if iface, err := net.InterfaceByName(zone); err == nil {
		return uint32(iface.Index)
	}
	if idx, err := strconv.ParseUint(zone, 10, 32); err == nil {
		return uint32(idx)
	}
	return 0
}

type rawConn struct {
	fd int
}

func (c *rawConn) Fd() int { return c.fd }

func (c *rawConn) Write(b []byte) (int, error) {
	return unix.Write(c.fd, b)
}

func (c *rawConn) Recv(b []byte) (int, error) {
	n, err := unix.Read(c.fd, b)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, err
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

func (c *rawConn) Close() error {
	return unix.Close(c.fd)
}
