package icmpprobe

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"sync/atomic"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	// DefaultPayloadSize is the number of random bytes carried by each probe
	DefaultPayloadSize = 32

	protocolICMP   = 1
	protocolICMPv6 = 58
)

// Sequencer hands out echo sequence numbers. One Sequencer can be shared by
// scans running on different goroutines.
type Sequencer struct {
	next atomic.Uint32
}

// NewSequencer returns a sequencer starting at zero
func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// Next returns the next sequence number, wrapping at 2^16
func (s *Sequencer) Next() uint16 {
	return uint16(s.next.Add(1) - 1)
}

// EchoRequest describes one constructed probe
type EchoRequest struct {
	Type     icmp.Type
	ID       uint16
	Seq      uint16
	Checksum uint16
	Payload  []byte
}

// ProbeBuilder constructs echo request packets
type ProbeBuilder struct {
	seq         *Sequencer
	payloadSize int
	rand        io.Reader
}

// NewProbeBuilder creates a builder drawing sequence numbers from seq.
// A nil seq gets a private sequencer and a nil random source uses crypto/rand.
func NewProbeBuilder(seq *Sequencer, payloadSize int, random io.Reader) *ProbeBuilder {
	if seq == nil {
		seq = NewSequencer()
	}
	if payloadSize < 0 {
		payloadSize = 0
	}
	if random == nil {
		random = rand.Reader
	}
	return &ProbeBuilder{seq: seq, payloadSize: payloadSize, rand: random}
}

// Build returns a serialized echo request whose identifier is id (truncated
// to 16 bits) and whose sequence number is taken from the builder's sequencer.
func (b *ProbeBuilder) Build(id int, isIPv6 bool) (*EchoRequest, []byte, error) {
	var (
		msgType icmp.Type = ipv4.ICMPTypeEcho
		proto             = protocolICMP
		code    byte
	)
	if isIPv6 {
		msgType = ipv6.ICMPTypeEchoRequest
		proto = protocolICMPv6
	}

	payload := make([]byte, b.payloadSize)
	if _, err := io.ReadFull(b.rand, payload); err != nil {
		return nil, nil, fmt.Errorf("failed to generate payload: %w", err)
	}

	req := &EchoRequest{
		Type:    msgType,
		ID:      uint16(id & 0xffff),
		Seq:     b.seq.Next(),
		Payload: payload,
	}

	body, err := (&icmp.Echo{ID: int(req.ID), Seq: int(req.Seq), Data: payload}).Marshal(proto)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal echo body: %w", err)
	}

	pkt := make([]byte, 4, 4+len(body))
	pkt[0] = byte(typeNumber(msgType))
	pkt[1] = code
	pkt = append(pkt, body...)

	req.Checksum = Checksum(pkt)
	binary.BigEndian.PutUint16(pkt[2:4], req.Checksum)

	return req, pkt, nil
}

func typeNumber(t icmp.Type) int {
	switch v := t.(type) {
	case ipv4.ICMPType:
		return int(v)
	case ipv6.ICMPType:
		return int(v)
	}
	return 0
}
