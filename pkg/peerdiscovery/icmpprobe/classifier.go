package icmpprobe

import (
	"github.com/projectdiscovery/gologger"
)

const recvBufferSize = 1024

// poll checks once whether anything arrived for t and resolves it when
// either a reply is there or last is set. Resolution releases the socket.
//
// The received bytes are not matched against the probe's identifier or
// sequence: whatever the kernel delivers to this socket counts as a reply.
func (s *Scanner) poll(t *Target, last bool) {
	if t.state != InProgress || t.probe == nil {
		return
	}

	buf := make([]byte, recvBufferSize)
	n, err := t.probe.conn.Recv(buf)
	if err != nil {
		gologger.Debug().Msgf("icmpprobe: %s: receive failed: %v", t.Address, err)
	}

	switch {
	case n > 0:
		t.rtt = s.now().Sub(t.probe.sentAt)
		t.reply = describeReply(!t.addr.Is4(), buf[:n])
		t.resolve(ReplyReceived)
		gologger.Debug().Msgf("icmpprobe: %s: %s after %s", t.Address, t.reply, t.rtt)
	case last:
		t.resolve(TimedOut)
		gologger.Debug().Msgf("icmpprobe: %s: timed out", t.Address)
	}
}
