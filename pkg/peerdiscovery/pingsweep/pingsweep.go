package pingsweep

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/mapcidr"
	"github.com/projectdiscovery/pingprobe/pkg/peerdiscovery/common"
	"github.com/projectdiscovery/pingprobe/pkg/peerdiscovery/icmpprobe"
	mapsutil "github.com/projectdiscovery/utils/maps"
	syncutil "github.com/projectdiscovery/utils/sync"
)

// maxNetworkBits caps network expansion at 2^16 addresses
const maxNetworkBits = 16

// ErrNetworkTooLarge is returned for ranges that would expand to too many hosts
var ErrNetworkTooLarge = errors.New("network too large to sweep")

// Peer represents a host that answered the sweep
type Peer struct {
	IP  net.IP
	RTT time.Duration // Quantized to the poll tick
}

// Options tunes a sweep
type Options struct {
	// Timeout is the budget of each chunk
	Timeout time.Duration
	// ChunkSize is the number of targets probed as one batch
	ChunkSize int
	// Parallelism is the number of chunks in flight
	Parallelism int
	// PayloadSize is the echo payload length in bytes
	PayloadSize int
	// Prioritize probes likely gateways and early DHCP leases first
	Prioritize bool
	// TopRatio keeps only this share of the prioritized addresses, 0 keeps all
	TopRatio float64
	// Opener overrides the raw socket opener, mostly for tests
	Opener icmpprobe.Opener
}

// DefaultOptions returns the options used by the CLI when nothing is set
func DefaultOptions() Options {
	return Options{
		Timeout:     icmpprobe.DefaultTimeout,
		ChunkSize:   256,
		Parallelism: 1,
		PayloadSize: icmpprobe.DefaultPayloadSize,
	}
}

// Sweep probes every address in targets and returns the probed targets in
// input order, or in likelihood order when opts.Prioritize is set. targets can be CIDR notation (e.g. "192.168.1.0/24") or
// individual IPs. When ctx is cancelled, chunks that never started stay
// Pending and ctx's error is returned along with the partial results.
func Sweep(ctx context.Context, targets []string, opts Options) ([]*icmpprobe.Target, error) {
	addresses, err := expandTargets(targets)
	if err != nil {
		return nil, err
	}
	if opts.Prioritize {
		addresses = prioritize(addresses, opts.TopRatio)
	}
	probeTargets := icmpprobe.NewTargets(addresses...)
	if len(probeTargets) == 0 {
		return probeTargets, nil
	}

	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	chunkSize := clampChunkSize(opts.ChunkSize, opts.Parallelism)

	scannerOpts := []icmpprobe.Option{
		icmpprobe.WithTimeout(opts.Timeout),
		icmpprobe.WithSequencer(icmpprobe.NewSequencer()),
		icmpprobe.WithPayloadSize(opts.PayloadSize),
	}
	if opts.Opener != nil {
		scannerOpts = append(scannerOpts, icmpprobe.WithOpener(opts.Opener))
	}
	scanner := icmpprobe.New(scannerOpts...)

	awg, err := syncutil.New(syncutil.WithSize(opts.Parallelism))
	if err != nil {
		return nil, fmt.Errorf("failed to create adaptive waitgroup: %w", err)
	}

	gologger.Verbose().Msgf("pingsweep: probing %d targets in chunks of %d (%d in parallel)", len(probeTargets), chunkSize, opts.Parallelism)

	for start := 0; start < len(probeTargets); start += chunkSize {
		if ctx.Err() != nil {
			break
		}
		end := start + chunkSize
		if end > len(probeTargets) {
			end = len(probeTargets)
		}

		awg.Add()
		go func(chunk []*icmpprobe.Target) {
			defer awg.Done()
			scanner.Scan(ctx, chunk)
		}(probeTargets[start:end])
	}
	awg.Wait()

	return probeTargets, ctx.Err()
}

// DiscoverPeers sweeps targets and returns the peers that replied
func DiscoverPeers(ctx context.Context, targets []string, opts Options) ([]Peer, error) {
	probed, err := Sweep(ctx, targets, opts)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	peers := mapsutil.NewSyncLockMap[string, *Peer]()
	for _, target := range probed {
		if !target.Alive() {
			continue
		}
		key := target.Addr().String()
		if _, exists := peers.Get(key); exists {
			continue
		}
		_ = peers.Set(key, &Peer{
			IP:  net.IP(target.Addr().AsSlice()),
			RTT: target.RTT(),
		})
	}

	var result []Peer
	_ = peers.Iterate(func(key string, peer *Peer) error {
		if peer != nil {
			result = append(result, *peer)
		}
		return nil
	})

	return result, nil
}

// Autodiscover sweeps the private IPv4 networks of the local interfaces
func Autodiscover(ctx context.Context, opts Options) ([]Peer, error) {
	targets, err := LocalTargets()
	if err != nil {
		return nil, err
	}
	return DiscoverPeers(ctx, targets, opts)
}

// LocalTargets returns the local private IPv4 /24 ranges as sweep targets.
// IPv6 /64 ranges are far too large to sweep and are left out.
func LocalTargets() ([]string, error) {
	networks, err := common.GetLocalNetworks(common.FamilyIPv4)
	if err != nil {
		return nil, fmt.Errorf("failed to get local networks: %w", err)
	}

	targets := make([]string, 0, len(networks))
	for _, network := range networks {
		targets = append(targets, network.String())
	}
	return targets, nil
}

// expandTargets turns CIDRs and IPs into a deduplicated address list,
// keeping first-seen order
func expandTargets(targets []string) ([]string, error) {
	networks, individualIPs, err := parseTargets(targets)
	if err != nil {
		return nil, fmt.Errorf("failed to parse targets: %w", err)
	}

	var addresses []string
	seen := make(map[string]struct{})
	add := func(address string) {
		if _, exists := seen[address]; exists {
			return
		}
		seen[address] = struct{}{}
		addresses = append(addresses, address)
	}

	for _, network := range networks {
		ips, err := expandNetwork(network)
		if err != nil {
			return nil, err
		}
		for _, ip := range ips {
			add(ip)
		}
	}
	for _, ip := range individualIPs {
		add(ip)
	}

	return addresses, nil
}

// parseTargets parses a list of target strings into networks and individual IPs
func parseTargets(targets []string) ([]*net.IPNet, []string, error) {
	var networks []*net.IPNet
	var individualIPs []string
	seenNetworks := make(map[string]struct{})

	for _, target := range targets {
		// Try to parse as CIDR first
		if _, ipNet, err := net.ParseCIDR(target); err == nil {
			key := ipNet.String()
			if _, exists := seenNetworks[key]; !exists {
				seenNetworks[key] = struct{}{}
				networks = append(networks, ipNet)
			}
			continue
		}

		addr, err := icmpprobe.NumericResolver{}.Resolve(target)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid target format: %s (must be CIDR or IP)", target)
		}
		individualIPs = append(individualIPs, addr.String())
	}

	return networks, individualIPs, nil
}

// expandNetwork lists the addresses of network worth probing
func expandNetwork(network *net.IPNet) ([]string, error) {
	ones, bits := network.Mask.Size()
	if bits-ones > maxNetworkBits {
		return nil, fmt.Errorf("%w: %s", ErrNetworkTooLarge, network)
	}

	cidr := network.String()
	ips, err := mapcidr.IPAddresses(cidr)
	if err != nil {
		return nil, fmt.Errorf("failed to expand CIDR %s: %w", cidr, err)
	}

	// a single-host network is probed as is
	if ones == bits {
		return ips, nil
	}

	usable := make([]string, 0, len(ips))
	for _, ipStr := range ips {
		ip := net.ParseIP(ipStr)
		if ip == nil || common.IsNetworkOrBroadcast(ip, network) {
			continue
		}
		usable = append(usable, ip.String())
	}
	return usable, nil
}
