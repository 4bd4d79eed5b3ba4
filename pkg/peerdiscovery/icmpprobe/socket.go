package icmpprobe

import (
	"net/netip"

	"github.com/projectdiscovery/gologger"
)

// MaxTTL is the TTL (hop limit for IPv6) set on every outgoing probe
const MaxTTL = 255

// Conn is a connected, non-blocking ICMP socket owned by one target
type Conn interface {
	// Fd returns the socket descriptor, used as the echo identifier
	Fd() int
	Write(b []byte) (int, error)
	// Recv reads whatever is pending without blocking.
	// It returns 0 and a nil error when nothing has arrived yet.
	Recv(b []byte) (int, error)
	Close() error
}

// Opener creates the socket for a destination address
type Opener interface {
	Open(addr netip.Addr) (Conn, error)
}

// initTarget resolves the target, opens its socket and sends exactly one probe
func (s *Scanner) initTarget(t *Target) {
	if t.state != Pending {
		return
	}

	addr, err := s.resolver.Resolve(t.Address)
	if err != nil {
		gologger.Debug().Msgf("icmpprobe: %s: %v", t.Address, err)
		t.fail(err)
		return
	}
	t.addr = addr

	conn, err := s.opener.Open(addr)
	if err != nil {
		// admin rights are required for raw sockets
		gologger.Debug().Msgf("icmpprobe: %s: %v", t.Address, err)
		t.fail(err)
		return
	}

	t.probe = &probe{conn: conn}
	t.state = InProgress

	req, pkt, err := s.builder.Build(conn.Fd(), !addr.Is4())
	if err != nil {
		// nothing was sent, the target will time out like any silent host
		gologger.Debug().Msgf("icmpprobe: %s: %v", t.Address, err)
		return
	}
	t.request = req

	t.probe.sentAt = s.now()
	if _, err := conn.Write(pkt); err != nil {
		gologger.Debug().Msgf("icmpprobe: %s: could not send probe: %v", t.Address, err)
		return
	}
	gologger.Debug().Msgf("icmpprobe: %s: sent echo request id=%d seq=%d", t.Address, req.ID, req.Seq)
}
