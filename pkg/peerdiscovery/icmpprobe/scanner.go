package icmpprobe

import (
	"context"
	"io"
	"time"

	"github.com/projectdiscovery/gologger"
)

const (
	// TickInterval is the fixed polling granularity
	TickInterval = 10 * time.Millisecond
	// DefaultTimeout is the per-scan budget used when none is configured
	DefaultTimeout = time.Second
)

// Scanner probes targets with ICMP echo requests and polls their sockets on a
// fixed tick schedule. A Scanner holds no per-scan state, so Scan may be
// called from several goroutines; they then share the sequencer.
type Scanner struct {
	timeout  time.Duration
	opener   Opener
	resolver Resolver
	builder  *ProbeBuilder

	seq         *Sequencer
	payloadSize int
	random      io.Reader

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Scanner
type Option func(*Scanner)

// WithTimeout sets the total time budget of a scan
func WithTimeout(timeout time.Duration) Option {
	return func(s *Scanner) { s.timeout = timeout }
}

// WithOpener replaces the raw socket opener
func WithOpener(opener Opener) Option {
	return func(s *Scanner) { s.opener = opener }
}

// WithResolver replaces the address resolver
func WithResolver(resolver Resolver) Option {
	return func(s *Scanner) { s.resolver = resolver }
}

// WithSequencer shares a sequence counter between scanners
func WithSequencer(seq *Sequencer) Option {
	return func(s *Scanner) { s.seq = seq }
}

// WithPayloadSize sets the number of random payload bytes per probe
func WithPayloadSize(size int) Option {
	return func(s *Scanner) { s.payloadSize = size }
}

// WithRandom sets the payload source
func WithRandom(r io.Reader) Option {
	return func(s *Scanner) { s.random = r }
}

// WithClock replaces the wall clock and the inter-tick wait
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scanner) {
		s.now = now
		s.sleep = sleep
	}
}

// New creates a Scanner
func New(opts ...Option) *Scanner {
	s := &Scanner{
		timeout:     DefaultTimeout,
		opener:      RawOpener{},
		payloadSize: DefaultPayloadSize,
		now:         time.Now,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.resolver == nil {
		s.resolver = NewCachingResolver(NumericResolver{}, 1024, time.Hour)
	}
	if s.seq == nil {
		s.seq = NewSequencer()
	}
	s.builder = NewProbeBuilder(s.seq, s.payloadSize, s.random)
	return s
}

// Timeout returns the configured budget
func (s *Scanner) Timeout() time.Duration { return s.timeout }

// ScanTarget probes a single target, blocking for at most the timeout plus
// one tick.
func (s *Scanner) ScanTarget(ctx context.Context, t *Target) {
	s.Scan(ctx, []*Target{t})
}

// Scan probes all targets at once by interleaving non-blocking polls. It
// returns when every target is resolved or the budget is spent, whichever
// comes first. On return every target is in a terminal state.
func (s *Scanner) Scan(ctx context.Context, targets []*Target) {
	for _, t := range targets {
		s.initTarget(t)
	}

	left := 0
	for _, t := range targets {
		if t.state == InProgress {
			left++
		}
	}

	iters := int(s.timeout / TickInterval)

	for i := 0; i <= iters && left > 0; i++ {
		if i != 0 {
			if err := s.sleep(ctx, TickInterval); err != nil {
				gologger.Verbose().Msgf("icmpprobe: scan interrupted at tick %d/%d: %v", i, iters, err)
				break
			}
		}

		// the forcing tick is iters-1, the final iteration only sees
		// already resolved targets
		last := i == iters-1
		for _, t := range targets {
			if t.state != InProgress {
				continue
			}
			s.poll(t, last)
			if t.state != InProgress {
				left--
			}
		}
	}

	// budgets below two ticks never reach a forcing tick, and a cancelled
	// scan stops early
	for _, t := range targets {
		if t.state == InProgress {
			t.resolve(TimedOut)
		}
	}

	logSummary(targets)
}

func logSummary(targets []*Target) {
	var alive, dead, failed int
	for _, t := range targets {
		switch t.state {
		case ReplyReceived:
			alive++
		case TimedOut:
			dead++
		case ScanFailed:
			failed++
		}
	}
	gologger.Verbose().Msgf("icmpprobe: %d targets, %d replied, %d timed out, %d failed", len(targets), alive, dead, failed)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
