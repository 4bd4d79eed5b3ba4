package icmpprobe

import (
	"net/netip"
	"time"
)

// State is the resolution state of a probed target
type State uint8

const (
	// Pending means the target has not been probed yet
	Pending State = iota
	// InProgress means a probe was sent and the target awaits a reply
	InProgress
	// ReplyReceived means something arrived on the probe's socket
	ReplyReceived
	// TimedOut means nothing arrived before the forcing tick
	TimedOut
	// ScanFailed means no probe could be sent (e.g. no raw socket privilege)
	ScanFailed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case InProgress:
		return "in-progress"
	case ReplyReceived:
		return "reply-received"
	case TimedOut:
		return "timed-out"
	case ScanFailed:
		return "scan-failed"
	}
	return "unknown"
}

// Terminal reports whether no further transition can happen from s
func (s State) Terminal() bool {
	return s == ReplyReceived || s == TimedOut || s == ScanFailed
}

// probe is the in-flight resource of an InProgress target.
// It is owned by exactly one target and released exactly once.
type probe struct {
	conn   Conn
	sentAt time.Time
}

// Target is a host to probe. Only Address is set by the caller, the rest is
// owned by the scanner.
type Target struct {
	Address string

	state   State
	addr    netip.Addr
	probe   *probe
	request *EchoRequest

	rtt   time.Duration
	reply string
	err   error
}

// NewTargets wraps each address in a pending Target
func NewTargets(addresses ...string) []*Target {
	targets := make([]*Target, 0, len(addresses))
	for _, address := range addresses {
		targets = append(targets, &Target{Address: address})
	}
	return targets
}

// State returns the current resolution state
func (t *Target) State() State { return t.state }

// Alive reports whether a reply was observed
func (t *Target) Alive() bool { return t.state == ReplyReceived }

// Addr returns the resolved address, invalid until resolution succeeded
func (t *Target) Addr() netip.Addr { return t.addr }

// RTT returns the time between send and the poll that saw the reply.
// It is zero unless the state is ReplyReceived. The value is quantized to the
// poll tick.
func (t *Target) RTT() time.Duration { return t.rtt }

// Reply returns the decoded ICMP type of the received message, if any
func (t *Target) Reply() string { return t.reply }

// Err returns why the scan failed, nil unless the state is ScanFailed
func (t *Target) Err() error { return t.err }

// Request returns the echo request built for this target, nil if none was
func (t *Target) Request() *EchoRequest { return t.request }

func (t *Target) fail(err error) {
	t.state = ScanFailed
	t.err = err
}

// resolve moves an InProgress target to a terminal state and releases its probe
func (t *Target) resolve(state State) {
	t.state = state
	p := t.probe
	t.probe = nil
	if p != nil && p.conn != nil {
		_ = p.conn.Close()
	}
}
