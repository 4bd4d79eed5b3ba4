package runner

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/pingprobe/pkg/types"
	"github.com/projectdiscovery/utils/batcher"
	errorutil "github.com/projectdiscovery/utils/errors"
)

const (
	outputBatchSize     = 100
	outputFlushInterval = time.Second
)

// resultWriter prints results on the console and batches them into the
// output file when one is set
type resultWriter struct {
	aliveOnly bool
	console   io.Writer

	mu      sync.Mutex
	file    io.WriteCloser
	csv     *csv.Writer
	json    *json.Encoder
	batcher *batcher.Batcher[*types.ProbeResult]
	written int
}

func newResultWriter(options *Options) (*resultWriter, error) {
	w := &resultWriter{aliveOnly: options.AliveOnly}
	if options.Output == "" {
		return w, nil
	}

	file, err := os.Create(options.Output)
	if err != nil {
		return nil, errorutil.NewWithErr(err).Msgf("could not create output file %s", options.Output)
	}
	if err := w.attach(file, options.CSV); err != nil {
		_ = file.Close()
		return nil, err
	}
	return w, nil
}

// attach starts batching results into out
func (w *resultWriter) attach(out io.WriteCloser, asCSV bool) error {
	w.file = out
	if asCSV {
		w.csv = csv.NewWriter(out)
		if err := w.csv.Write(types.CSVHeader()); err != nil {
			return errorutil.NewWithErr(err).Msgf("could not write csv header")
		}
	} else {
		w.json = json.NewEncoder(out)
	}

	w.batcher = batcher.New(
		batcher.WithMaxCapacity[*types.ProbeResult](outputBatchSize),
		batcher.WithFlushInterval[*types.ProbeResult](outputFlushInterval),
		batcher.WithFlushCallback[*types.ProbeResult](w.flush),
	)
	go w.batcher.Run()
	return nil
}

func (w *resultWriter) flush(results []*types.ProbeResult) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, result := range results {
		var err error
		if w.csv != nil {
			err = w.csv.Write(result.CSVRow())
		} else {
			err = w.json.Encode(result)
		}
		if err != nil {
			gologger.Error().Msgf("Could not write result for %s: %s", result.Target, err)
			continue
		}
		w.written++
	}
	if w.csv != nil {
		w.csv.Flush()
		if err := w.csv.Error(); err != nil {
			gologger.Error().Msgf("Could not flush csv output: %s", err)
		}
	}
}

// Write reports one result, skipping dead targets when only alive ones are wanted
func (w *resultWriter) Write(result *types.ProbeResult) {
	if w.aliveOnly && !result.Alive {
		return
	}
	if w.console != nil {
		_, _ = fmt.Fprintln(w.console, formatResult(result))
	} else {
		gologger.Silent().Msgf("%s", formatResult(result))
	}
	if w.batcher != nil {
		w.batcher.Append(result)
	}
}

// Close flushes pending results and closes the output file
func (w *resultWriter) Close() error {
	if w.batcher == nil {
		return nil
	}
	w.batcher.Stop()
	w.batcher.WaitDone()
	return w.file.Close()
}

func formatResult(result *types.ProbeResult) string {
	switch {
	case result.Alive:
		return fmt.Sprintf("%s [%s] [%s]", result.Target, au.Green(result.Status), au.Cyan(fmt.Sprintf("%.2fms", result.RTTMillis)))
	case result.Error != nil:
		return fmt.Sprintf("%s [%s] [%s]", result.Target, au.Red(result.Status), *result.Error)
	default:
		return fmt.Sprintf("%s [%s]", result.Target, au.Yellow(result.Status))
	}
}
