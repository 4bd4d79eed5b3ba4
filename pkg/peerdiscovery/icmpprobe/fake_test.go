package icmpprobe

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"time"
)

var errNoPrivilege = errors.New("operation not permitted")

// fakeConn delivers a reply after a fixed number of empty polls
type fakeConn struct {
	fd         int
	replyAfter int // -1 never replies
	reply      []byte

	mu      sync.Mutex
	polls   int
	closed  int
	written [][]byte
}

func (c *fakeConn) Fd() int { return c.fd }

func (c *fakeConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), b...))
	return len(b), nil
}

func (c *fakeConn) Recv(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls++
	if c.replyAfter < 0 || c.polls <= c.replyAfter {
		return 0, nil
	}
	return copy(b, c.reply), nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

// fakeOpener hands out fakeConns configured per address
type fakeOpener struct {
	// replyAfter maps an address to the number of empty polls before a reply,
	// addresses missing from the map never reply
	replyAfter map[string]int
	fail       map[string]error

	mu     sync.Mutex
	nextFd int
	conns  map[string]*fakeConn
}

func newFakeOpener(replyAfter map[string]int, fail map[string]error) *fakeOpener {
	return &fakeOpener{
		replyAfter: replyAfter,
		fail:       fail,
		nextFd:     3,
		conns:      make(map[string]*fakeConn),
	}
}

func (o *fakeOpener) Open(addr netip.Addr) (Conn, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err, ok := o.fail[addr.String()]; ok {
		return nil, err
	}
	after, ok := o.replyAfter[addr.String()]
	if !ok {
		after = -1
	}
	conn := &fakeConn{fd: o.nextFd, replyAfter: after, reply: echoReplyV4}
	o.nextFd++
	o.conns[addr.String()] = conn
	return conn, nil
}

func (o *fakeOpener) conn(address string) *fakeConn {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conns[address]
}

// fakeClock advances only when the scanner sleeps
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps int
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps++
	c.now = c.now.Add(d)
	return nil
}

// bare ICMPv4 echo reply, id 1 seq 1
var echoReplyV4 = []byte{0x00, 0x00, 0xff, 0xfd, 0x00, 0x01, 0x00, 0x01}

func newTestScanner(timeout time.Duration, opener Opener, clock *fakeClock, opts ...Option) *Scanner {
	base := []Option{
		WithTimeout(timeout),
		WithOpener(opener),
		WithClock(clock.Now, clock.Sleep),
	}
	return New(append(base, opts...)...)
}
