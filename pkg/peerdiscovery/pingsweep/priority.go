package pingsweep

import (
	"cmp"
	"math"
	"net/netip"
	"slices"
)

// Likelihood scores (0-100) of an IPv4 host being online, keyed on the last
// octet. Gateways and early DHCP leases score highest.
const (
	scoreGateway  = 100 // .1, .254
	scoreReserved = 90  // .2-.5, .250-.253
	scoreEarly    = 80  // .6-.10
	scorePeak     = 70  // .50, .100, .150
	scorePool     = 50  // .51-.99, .101-.149, .151-.200
	scoreLongTail = 20  // everything else, and IPv6
)

type octetRange struct {
	from, to uint8
	score    int
}

var octetScores = []octetRange{
	{1, 1, scoreGateway},
	{254, 254, scoreGateway},
	{2, 5, scoreReserved},
	{250, 253, scoreReserved},
	{6, 10, scoreEarly},
	{50, 50, scorePeak},
	{100, 100, scorePeak},
	{150, 150, scorePeak},
	{51, 99, scorePool},
	{101, 149, scorePool},
	{151, 200, scorePool},
}

func hostScore(address string) int {
	addr, err := netip.ParseAddr(address)
	if err != nil || !addr.Is4() {
		return scoreLongTail
	}
	last := addr.As4()[3]
	for _, r := range octetScores {
		if last >= r.from && last <= r.to {
			return r.score
		}
	}
	return scoreLongTail
}

// prioritize orders addresses so the likeliest hosts land in the first chunks
// and keeps the top ratio of them. A ratio outside (0, 1) keeps everything.
// Addresses with the same score keep their relative order.
func prioritize(addresses []string, ratio float64) []string {
	ranked := slices.Clone(addresses)
	slices.SortStableFunc(ranked, func(a, b string) int {
		return cmp.Compare(hostScore(b), hostScore(a))
	})
	if ratio <= 0 || ratio >= 1 {
		return ranked
	}
	keep := int(math.Ceil(float64(len(ranked)) * ratio))
	return ranked[:keep]
}
