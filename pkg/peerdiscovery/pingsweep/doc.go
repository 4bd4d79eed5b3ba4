// Package pingsweep discovers active hosts on a network with an ICMP ping
// sweep built on the icmpprobe engine.
//
// The package provides three entry points:
//   - Sweep: probes a list of CIDRs or IPs and returns every probed target
//   - DiscoverPeers: same input, returns only the hosts that replied
//   - Autodiscover: sweeps the private IPv4 networks of the local interfaces
//
// Discovery is performed by:
// - Expanding network ranges to individual IPs (network/broadcast skipped)
// - Splitting the addresses into chunks, one raw socket per address
// - Probing each chunk as one interleaved batch, several chunks in parallel
// - Optionally ordering addresses so gateways and early DHCP leases go first
//
// Example usage:
//
//	// Manual scan of specific targets
//	targets := []string{"192.168.1.0/24", "10.0.0.1"}
//	peers, err := pingsweep.DiscoverPeers(ctx, targets, pingsweep.DefaultOptions())
//
//	// Automatic discovery of local networks
//	peers, err := pingsweep.Autodiscover(ctx, pingsweep.DefaultOptions())
//
// Privilege Requirements:
// - Raw ICMP sockets require root/admin privileges on most systems
// - Without them every target is reported as scan-failed
//
// Limitations:
// - Hosts with ICMP disabled or firewalled will not respond
// - Chunk size is capped by the open file limit of the process
// - Networks larger than 65536 addresses are rejected
package pingsweep
