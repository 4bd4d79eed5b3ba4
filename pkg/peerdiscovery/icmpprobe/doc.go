// Package icmpprobe determines host liveness with ICMP echo requests.
//
// Every target gets its own raw ICMP socket and exactly one echo request.
// A single control loop then polls all outstanding sockets with non-blocking
// reads on a fixed 10ms tick until every target is resolved or the timeout
// budget is spent.
//
// Target lifecycle:
//
//	Pending -> InProgress -> ReplyReceived | TimedOut
//	Pending -> ScanFailed
//
// Example usage:
//
//	scanner := icmpprobe.New(icmpprobe.WithTimeout(time.Second))
//	targets := icmpprobe.NewTargets("192.168.1.1", "10.0.0.1")
//	scanner.Scan(ctx, targets)
//	for _, t := range targets {
//		fmt.Println(t.Address, t.State(), t.RTT())
//	}
//
// Privilege Requirements:
// - Raw ICMP sockets require root or CAP_NET_RAW
// - Targets that cannot get a socket end up ScanFailed
//
// Limitations:
// - Replies are not matched against the identifier/sequence of the probe.
// Any ICMP message the kernel delivers to the probe's socket counts as a
// reply, so unrelated ICMP traffic can produce false positives.
// - Windows is not supported, every target is ScanFailed there
package icmpprobe
