package runner

import (
	"os"
	"strconv"
	"time"

	"github.com/logrusorgru/aurora/v4"
	"github.com/projectdiscovery/goflags"
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/gologger/formatter"
	"github.com/projectdiscovery/gologger/levels"
	"github.com/projectdiscovery/pingprobe/pkg/peerdiscovery/icmpprobe"
	"github.com/projectdiscovery/pingprobe/pkg/peerdiscovery/pingsweep"
	"github.com/projectdiscovery/pingprobe/pkg/version"
	envutil "github.com/projectdiscovery/utils/env"
	errorutil "github.com/projectdiscovery/utils/errors"
	fileutil "github.com/projectdiscovery/utils/file"
)

var au = aurora.New(aurora.WithColors(true))

var (
	TimeoutEnv     = envutil.GetEnvOrDefault("PINGPROBE_TIMEOUT", "")
	ParallelismEnv = envutil.GetEnvOrDefault("PINGPROBE_PARALLELISM", "")
	ChunkSizeEnv   = envutil.GetEnvOrDefault("PINGPROBE_CHUNK_SIZE", "")
)

// Options contains the configuration options for a probe run
type Options struct {
	Targets      goflags.StringSlice `yaml:"target,omitempty"`
	TargetsFile  string              `yaml:"list,omitempty"`
	JSONField    string              `yaml:"json-field,omitempty"`
	AutoDiscover bool                `yaml:"auto-discover,omitempty"`

	Timeout     time.Duration `yaml:"timeout,omitempty"`
	PayloadSize int           `yaml:"payload-size,omitempty"`
	ChunkSize   int           `yaml:"chunk-size,omitempty"`
	Parallelism int           `yaml:"parallelism,omitempty"`
	Prioritize  bool          `yaml:"prioritize,omitempty"`
	TopPercent  int           `yaml:"top-percent,omitempty"`

	Output    string `yaml:"output,omitempty"`
	CSV       bool   `yaml:"csv,omitempty"`
	AliveOnly bool   `yaml:"alive-only,omitempty"`

	ConfigFile string `yaml:"-"`
	Verbose    bool   `yaml:"verbose,omitempty"`
	Debug      bool   `yaml:"debug,omitempty"`
	Silent     bool   `yaml:"silent,omitempty"`
	NoColor    bool   `yaml:"no-color,omitempty"`
	Version    bool   `yaml:"-"`

	// Opener overrides raw sockets, only set by tests
	Opener icmpprobe.Opener `yaml:"-"`
}

// DefaultOptions returns the built-in defaults overlaid with the environment
func DefaultOptions() *Options {
	sweep := pingsweep.DefaultOptions()
	options := &Options{
		JSONField:   "ip",
		Timeout:     sweep.Timeout,
		PayloadSize: sweep.PayloadSize,
		ChunkSize:   sweep.ChunkSize,
		Parallelism: sweep.Parallelism,
	}
	options.applyEnv()
	return options
}

func (options *Options) applyEnv() {
	if d, err := time.ParseDuration(TimeoutEnv); err == nil && d >= 0 {
		options.Timeout = d
	}
	if val, err := strconv.Atoi(ParallelismEnv); err == nil && val > 0 {
		options.Parallelism = val
	}
	if val, err := strconv.Atoi(ChunkSizeEnv); err == nil && val > 0 {
		options.ChunkSize = val
	}
}

// ParseOptions parses the command line flags provided by a user
func ParseOptions() *Options {
	options := DefaultOptions()
	defaults := *options
	flagSet := goflags.NewFlagSet()

	flagSet.SetDescription(`pingprobe checks host liveness with ICMP echo requests`)

	flagSet.CreateGroup("input", "Input",
		flagSet.StringSliceVarP(&options.Targets, "target", "t", nil, "target ips or cidrs to probe (comma separated or file)", goflags.FileCommaSeparatedStringSliceOptions),
		flagSet.StringVarP(&options.TargetsFile, "list", "l", "", "file containing targets to probe, one per line"),
		flagSet.StringVarP(&options.JSONField, "json-field", "jf", defaults.JSONField, "json field holding the target when input lines are json"),
		flagSet.BoolVarP(&options.AutoDiscover, "auto-discover", "ad", false, "probe the private networks of the local interfaces"),
	)

	flagSet.CreateGroup("probe", "Probe",
		flagSet.DurationVarP(&options.Timeout, "timeout", "to", defaults.Timeout, "time to wait for replies to a chunk of targets"),
		flagSet.IntVarP(&options.PayloadSize, "payload-size", "ps", defaults.PayloadSize, "echo request payload size in bytes"),
		flagSet.IntVarP(&options.ChunkSize, "chunk-size", "cs", defaults.ChunkSize, "number of targets probed together"),
		flagSet.IntVarP(&options.Parallelism, "parallelism", "p", defaults.Parallelism, "number of chunks probed in parallel"),
		flagSet.BoolVarP(&options.Prioritize, "prioritize", "pr", false, "probe likely gateways and early dhcp leases first"),
		flagSet.IntVarP(&options.TopPercent, "top-percent", "tp", 0, "with -prioritize, probe only this percentage of the addresses (0 = all)"),
	)

	flagSet.CreateGroup("output", "Output",
		flagSet.StringVarP(&options.Output, "output", "o", "", "file to write results to (json lines)"),
		flagSet.BoolVar(&options.CSV, "csv", false, "write results as csv"),
		flagSet.BoolVarP(&options.AliveOnly, "alive-only", "ao", false, "only report targets that replied"),
	)

	flagSet.CreateGroup("config", "Config",
		flagSet.StringVar(&options.ConfigFile, "config", "", "yaml configuration file"),
	)

	flagSet.CreateGroup("debug", "Debug",
		flagSet.BoolVarP(&options.Verbose, "verbose", "v", false, "show verbose output"),
		flagSet.BoolVar(&options.Debug, "debug", false, "show per-target probe details"),
		flagSet.BoolVar(&options.Silent, "silent", false, "show only results"),
		flagSet.BoolVarP(&options.NoColor, "no-color", "nc", false, "disable output content coloring (ANSI escape codes)"),
		flagSet.BoolVar(&options.Version, "version", false, "show version of the project"),
	)

	if err := flagSet.Parse(); err != nil {
		gologger.Fatal().Msgf("%s\n", err)
	}

	if options.ConfigFile != "" {
		if err := options.loadConfigFrom(options.ConfigFile, &defaults); err != nil {
			gologger.Fatal().Msgf("Could not read config %s: %s\n", options.ConfigFile, err)
		}
	}

	options.configureOutput()

	if options.Version {
		gologger.Info().Msgf("Current Version: %s\n", version.GetVersion())
		os.Exit(0)
	}

	if err := options.validate(); err != nil {
		gologger.Fatal().Msgf("Program exiting: %s\n", err)
	}

	return options
}

// configureOutput configures the output on the screen
func (options *Options) configureOutput() {
	if options.Verbose {
		gologger.DefaultLogger.SetMaxLevel(levels.LevelVerbose)
	}
	if options.Debug {
		gologger.DefaultLogger.SetMaxLevel(levels.LevelDebug)
	}
	if options.NoColor {
		gologger.DefaultLogger.SetFormatter(formatter.NewCLI(true))
		au = aurora.New(aurora.WithColors(false))
	}
	if options.Silent {
		gologger.DefaultLogger.SetMaxLevel(levels.LevelSilent)
	}
}

// loadConfigFrom fills the options still at their defaults from a yaml file,
// so flags and env keep precedence over it
func (options *Options) loadConfigFrom(location string, defaults *Options) error {
	config := &Options{}
	if err := fileutil.Unmarshal(fileutil.YAML, []byte(location), config); err != nil {
		return err
	}
	options.merge(config, defaults)
	return nil
}

func (options *Options) merge(config, defaults *Options) {
	if len(options.Targets) == 0 {
		options.Targets = config.Targets
	}
	if options.TargetsFile == "" {
		options.TargetsFile = config.TargetsFile
	}
	if options.JSONField == defaults.JSONField && config.JSONField != "" {
		options.JSONField = config.JSONField
	}
	options.AutoDiscover = options.AutoDiscover || config.AutoDiscover

	// env values already live in defaults and win over the file
	if options.Timeout == defaults.Timeout && TimeoutEnv == "" && config.Timeout > 0 {
		options.Timeout = config.Timeout
	}
	if options.PayloadSize == defaults.PayloadSize && config.PayloadSize > 0 {
		options.PayloadSize = config.PayloadSize
	}
	if options.ChunkSize == defaults.ChunkSize && ChunkSizeEnv == "" && config.ChunkSize > 0 {
		options.ChunkSize = config.ChunkSize
	}
	if options.Parallelism == defaults.Parallelism && ParallelismEnv == "" && config.Parallelism > 0 {
		options.Parallelism = config.Parallelism
	}

	if options.Output == "" {
		options.Output = config.Output
	}
	options.Prioritize = options.Prioritize || config.Prioritize
	if options.TopPercent == 0 {
		options.TopPercent = config.TopPercent
	}
	options.CSV = options.CSV || config.CSV
	options.AliveOnly = options.AliveOnly || config.AliveOnly
	options.Verbose = options.Verbose || config.Verbose
	options.Debug = options.Debug || config.Debug
	options.Silent = options.Silent || config.Silent
	options.NoColor = options.NoColor || config.NoColor
}

func (options *Options) validate() error {
	switch {
	case options.Timeout < 0:
		return errInvalidOption("timeout", "must not be negative")
	case options.PayloadSize < 0:
		return errInvalidOption("payload-size", "must not be negative")
	case options.ChunkSize < 1:
		return errInvalidOption("chunk-size", "must be at least 1")
	case options.Parallelism < 1:
		return errInvalidOption("parallelism", "must be at least 1")
	case options.TopPercent < 0 || options.TopPercent > 100:
		return errInvalidOption("top-percent", "must be between 0 and 100")
	case options.JSONField == "":
		return errInvalidOption("json-field", "must not be empty")
	}
	return nil
}

func errInvalidOption(name, reason string) error {
	return errorutil.New("invalid -%s: %s", name, reason)
}

func (options *Options) sweepOptions() pingsweep.Options {
	return pingsweep.Options{
		Timeout:     options.Timeout,
		ChunkSize:   options.ChunkSize,
		Parallelism: options.Parallelism,
		PayloadSize: options.PayloadSize,
		Prioritize:  options.Prioritize,
		TopRatio:    float64(options.TopPercent) / 100,
		Opener:      options.Opener,
	}
}
