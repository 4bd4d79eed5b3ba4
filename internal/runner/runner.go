package runner

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/pingprobe/pkg/peerdiscovery/pingsweep"
	"github.com/projectdiscovery/pingprobe/pkg/types"
	errorutil "github.com/projectdiscovery/utils/errors"
	osutils "github.com/projectdiscovery/utils/os"
	"github.com/rs/xid"
)

// ErrNoTargets is returned when no input produced a probeable target
var ErrNoTargets = errors.New("no targets to probe")

// Runner contains the internal logic of the program
type Runner struct {
	options *Options
	stdin   io.Reader
	writer  *resultWriter
	now     func() time.Time
}

// NewRunner instance
func NewRunner(options *Options) (*Runner, error) {
	writer, err := newResultWriter(options)
	if err != nil {
		return nil, err
	}
	return &Runner{
		options: options,
		stdin:   stdinReader(),
		writer:  writer,
		now:     time.Now,
	}, nil
}

// Run probes every target once and reports one record per probed address.
// A cancelled ctx still reports the targets that reached a final state.
func (r *Runner) Run(ctx context.Context) error {
	if osutils.IsWindows() {
		gologger.Warning().Msgf("Raw ICMP sockets are not supported on windows, every target will be reported as scan-failed")
	}

	targets, err := r.collectTargets()
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return ErrNoTargets
	}

	scanID := xid.New().String()
	gologger.Info().Msgf("Starting scan %s with %d targets (timeout %s)", scanID, len(targets), r.options.Timeout)

	started := r.now()
	probed, sweepErr := pingsweep.Sweep(ctx, targets, r.options.sweepOptions())
	if sweepErr != nil && !errors.Is(sweepErr, context.Canceled) && !errors.Is(sweepErr, context.DeadlineExceeded) {
		return errorutil.NewWithErr(sweepErr).Msgf("could not probe targets")
	}

	var alive, reported int
	for _, target := range probed {
		if !target.State().Terminal() {
			continue
		}
		result := types.NewProbeResult(scanID, target, r.now())
		if err := result.Validate(); err != nil {
			gologger.Warning().Msgf("Dropping invalid result for %s: %s", target.Address, err)
			continue
		}
		if result.Alive {
			alive++
		}
		reported++
		r.writer.Write(result)
	}

	gologger.Info().Msgf("Scan %s finished in %s: %d/%d targets alive", scanID, r.now().Sub(started).Round(time.Millisecond), alive, reported)
	if sweepErr != nil {
		gologger.Warning().Msgf("Scan interrupted, %d targets were not probed", len(probed)-reported)
	}
	return nil
}

// Close flushes and closes the output
func (r *Runner) Close() {
	if err := r.writer.Close(); err != nil {
		gologger.Error().Msgf("Could not close output: %s", err)
	}
}
