package icmpprobe

import (
	"context"
	"encoding/binary"
	"strconv"
	"sync"
	"testing"
	"time"
)

func TestScanTerminalStates(t *testing.T) {
	addresses := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "bogus"}
	replyAfter := map[string]int{"10.0.0.1": 0, "10.0.0.2": 3}
	fail := map[string]error{"10.0.0.4": errNoPrivilege}

	tests := []struct {
		name    string
		timeout time.Duration
	}{
		{name: "zero timeout", timeout: 0},
		{name: "below one tick", timeout: 5 * time.Millisecond},
		{name: "one tick", timeout: TickInterval},
		{name: "two ticks", timeout: 2 * TickInterval},
		{name: "one second", timeout: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opener := newFakeOpener(replyAfter, fail)
			scanner := newTestScanner(tt.timeout, opener, newFakeClock())
			targets := NewTargets(addresses...)

			scanner.Scan(context.Background(), targets)

			for _, target := range targets {
				if !target.State().Terminal() {
					t.Errorf("%s: state %s is not terminal", target.Address, target.State())
				}
				if target.probe != nil {
					t.Errorf("%s: probe resource not released", target.Address)
				}
				if target.Alive() != (target.State() == ReplyReceived) {
					t.Errorf("%s: alive %v disagrees with state %s", target.Address, target.Alive(), target.State())
				}
				if conn := opener.conn(target.Address); conn != nil && conn.closed != 1 {
					t.Errorf("%s: socket closed %d times, want 1", target.Address, conn.closed)
				}
			}

			for _, address := range []string{"10.0.0.4", "bogus"} {
				target := findTarget(targets, address)
				if target.State() != ScanFailed || target.Err() == nil {
					t.Errorf("%s: state %s err %v, want scan-failed with error", address, target.State(), target.Err())
				}
			}
		})
	}
}

func TestScanEarlyExitWaitsForPending(t *testing.T) {
	opener := newFakeOpener(map[string]int{"10.0.0.1": 0, "10.0.0.2": 1}, nil)
	clock := newFakeClock()
	scanner := newTestScanner(100*time.Millisecond, opener, clock)
	targets := NewTargets("10.0.0.1", "10.0.0.2", "10.0.0.3")

	scanner.Scan(context.Background(), targets)

	want := []State{ReplyReceived, ReplyReceived, TimedOut}
	for i, target := range targets {
		if target.State() != want[i] {
			t.Errorf("%s: state %s, want %s", target.Address, target.State(), want[i])
		}
	}
	// iters = 10, the silent target is forced on tick 9
	if clock.sleeps != 9 {
		t.Errorf("slept %d ticks, want 9", clock.sleeps)
	}
	if polls := opener.conn("10.0.0.1").polls; polls != 1 {
		t.Errorf("resolved target polled %d times, want 1", polls)
	}
	if polls := opener.conn("10.0.0.3").polls; polls != 10 {
		t.Errorf("silent target polled %d times, want 10", polls)
	}
}

func TestScanExitsWhenAllResolved(t *testing.T) {
	opener := newFakeOpener(map[string]int{"10.0.0.1": 0, "10.0.0.2": 2}, nil)
	clock := newFakeClock()
	scanner := newTestScanner(time.Second, opener, clock)

	scanner.Scan(context.Background(), NewTargets("10.0.0.1", "10.0.0.2"))

	if clock.sleeps != 2 {
		t.Errorf("slept %d ticks, want 2", clock.sleeps)
	}
}

func TestScanAllFailedReturnsImmediately(t *testing.T) {
	opener := newFakeOpener(nil, map[string]error{"10.0.0.1": errNoPrivilege, "10.0.0.2": errNoPrivilege})
	clock := newFakeClock()
	scanner := newTestScanner(time.Second, opener, clock)
	targets := NewTargets("10.0.0.1", "10.0.0.2")

	scanner.Scan(context.Background(), targets)

	if clock.sleeps != 0 {
		t.Errorf("slept %d ticks, want 0", clock.sleeps)
	}
	for _, target := range targets {
		if target.State() != ScanFailed {
			t.Errorf("%s: state %s, want scan-failed", target.Address, target.State())
		}
		if target.Request() != nil {
			t.Errorf("%s: no packet should be built for a failed socket", target.Address)
		}
	}
}

func TestScanForcingTick(t *testing.T) {
	tests := []struct {
		name       string
		replyAfter int
		want       State
		wantSleeps int
	}{
		// timeout 50ms gives iters 5, the forcing poll is the one at i == 4
		{name: "reply on forcing tick", replyAfter: 4, want: ReplyReceived, wantSleeps: 4},
		{name: "reply one tick after forcing tick", replyAfter: 5, want: TimedOut, wantSleeps: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opener := newFakeOpener(map[string]int{"10.0.0.1": tt.replyAfter}, nil)
			clock := newFakeClock()
			scanner := newTestScanner(50*time.Millisecond, opener, clock)
			target := &Target{Address: "10.0.0.1"}

			scanner.ScanTarget(context.Background(), target)

			if target.State() != tt.want {
				t.Errorf("state %s, want %s", target.State(), tt.want)
			}
			if clock.sleeps != tt.wantSleeps {
				t.Errorf("slept %d ticks, want %d", clock.sleeps, tt.wantSleeps)
			}
		})
	}
}

func TestScanTargetRTT(t *testing.T) {
	opener := newFakeOpener(map[string]int{"10.0.0.1": 3}, nil)
	clock := newFakeClock()
	scanner := newTestScanner(time.Second, opener, clock)
	target := &Target{Address: "10.0.0.1"}

	scanner.ScanTarget(context.Background(), target)

	if !target.Alive() {
		t.Fatalf("state %s, want reply-received", target.State())
	}
	if target.RTT() != 3*TickInterval {
		t.Errorf("RTT = %s, want %s", target.RTT(), 3*TickInterval)
	}
	if target.Reply() != "EchoReply" {
		t.Errorf("Reply = %q, want EchoReply", target.Reply())
	}
	if conn := opener.conn("10.0.0.1"); len(conn.written) != 1 {
		t.Errorf("sent %d packets, want exactly 1", len(conn.written))
	}
}

func TestScanFailureIsolation(t *testing.T) {
	replyAfter := map[string]int{"10.0.0.1": 2}
	addresses := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}

	batchOpener := newFakeOpener(replyAfter, map[string]error{"10.0.0.2": errNoPrivilege})
	batch := NewTargets(addresses...)
	newTestScanner(200*time.Millisecond, batchOpener, newFakeClock()).Scan(context.Background(), batch)

	if batch[1].State() != ScanFailed {
		t.Fatalf("failing target state %s, want scan-failed", batch[1].State())
	}

	for _, i := range []int{0, 2} {
		alone := &Target{Address: addresses[i]}
		newTestScanner(200*time.Millisecond, newFakeOpener(replyAfter, nil), newFakeClock()).ScanTarget(context.Background(), alone)

		if batch[i].State() != alone.State() || batch[i].RTT() != alone.RTT() {
			t.Errorf("%s: batch result %s/%s differs from single scan %s/%s",
				addresses[i], batch[i].State(), batch[i].RTT(), alone.State(), alone.RTT())
		}
	}
}

func TestScanMonotonicSequence(t *testing.T) {
	opener := newFakeOpener(nil, nil)
	scanner := newTestScanner(20*time.Millisecond, opener, newFakeClock())

	var addresses []string
	for i := 1; i <= 40; i++ {
		addresses = append(addresses, "10.0.1."+itoa(i))
	}
	batch := NewTargets(addresses[:30]...)
	scanner.Scan(context.Background(), batch)

	singles := NewTargets(addresses[30:]...)
	for _, target := range singles {
		scanner.ScanTarget(context.Background(), target)
	}

	last := -1
	for _, target := range append(batch, singles...) {
		conn := opener.conn(target.Address)
		if len(conn.written) != 1 {
			t.Fatalf("%s: sent %d packets, want 1", target.Address, len(conn.written))
		}
		seq := int(binary.BigEndian.Uint16(conn.written[0][6:8]))
		if seq != int(target.Request().Seq) {
			t.Errorf("%s: wire sequence %d differs from request %d", target.Address, seq, target.Request().Seq)
		}
		if seq <= last {
			t.Fatalf("%s: sequence %d not greater than %d", target.Address, seq, last)
		}
		last = seq
	}
}

func TestScanSharedSequencerConcurrent(t *testing.T) {
	seq := NewSequencer()
	var wg sync.WaitGroup
	results := make([][]*Target, 4)

	for i := range results {
		var addresses []string
		for j := 1; j <= 25; j++ {
			addresses = append(addresses, "10."+itoa(i)+".0."+itoa(j))
		}
		results[i] = NewTargets(addresses...)

		wg.Add(1)
		go func(targets []*Target) {
			defer wg.Done()
			scanner := newTestScanner(20*time.Millisecond, newFakeOpener(nil, nil), newFakeClock(), WithSequencer(seq))
			scanner.Scan(context.Background(), targets)
		}(results[i])
	}
	wg.Wait()

	seen := make(map[uint16]struct{})
	for _, targets := range results {
		for _, target := range targets {
			s := target.Request().Seq
			if _, dup := seen[s]; dup {
				t.Fatalf("sequence %d handed out twice", s)
			}
			seen[s] = struct{}{}
		}
	}
	if len(seen) != 100 {
		t.Errorf("got %d distinct sequence numbers, want 100", len(seen))
	}
}

func TestScanContextCancelled(t *testing.T) {
	opener := newFakeOpener(nil, nil)
	clock := newFakeClock()
	scanner := newTestScanner(time.Second, opener, clock)
	targets := NewTargets("10.0.0.1", "10.0.0.2")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	scanner.Scan(ctx, targets)

	for _, target := range targets {
		if target.State() != TimedOut {
			t.Errorf("%s: state %s, want timed-out", target.Address, target.State())
		}
		if conn := opener.conn(target.Address); conn.closed != 1 {
			t.Errorf("%s: socket closed %d times, want 1", target.Address, conn.closed)
		}
	}
	if clock.sleeps != 0 {
		t.Errorf("slept %d ticks after cancellation, want 0", clock.sleeps)
	}
}

func TestScanBoundedWallTime(t *testing.T) {
	timeout := 50 * time.Millisecond
	scanner := New(WithTimeout(timeout), WithOpener(newFakeOpener(nil, nil)))

	var addresses []string
	for i := 1; i <= 200; i++ {
		addresses = append(addresses, "10.2."+itoa(i/250)+"."+itoa(i%250))
	}
	targets := NewTargets(addresses...)

	start := time.Now()
	scanner.Scan(context.Background(), targets)
	elapsed := time.Since(start)

	// generous slack for slow CI schedulers
	if limit := timeout + TickInterval + 250*time.Millisecond; elapsed > limit {
		t.Errorf("scan took %s, want at most %s", elapsed, limit)
	}
	for _, target := range targets {
		if target.State() != TimedOut {
			t.Fatalf("%s: state %s, want timed-out", target.Address, target.State())
		}
	}
}

func TestScanSkipsResolvedTargets(t *testing.T) {
	opener := newFakeOpener(map[string]int{"10.0.0.1": 0}, nil)
	scanner := newTestScanner(100*time.Millisecond, opener, newFakeClock())
	target := &Target{Address: "10.0.0.1"}

	scanner.ScanTarget(context.Background(), target)
	scanner.ScanTarget(context.Background(), target)

	if target.State() != ReplyReceived {
		t.Errorf("state %s, want reply-received", target.State())
	}
	if conn := opener.conn("10.0.0.1"); len(conn.written) != 1 || conn.closed != 1 {
		t.Errorf("rescan of a resolved target touched its socket: written %d closed %d", len(conn.written), conn.closed)
	}
}

func findTarget(targets []*Target, address string) *Target {
	for _, target := range targets {
		if target.Address == address {
			return target
		}
	}
	return nil
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
