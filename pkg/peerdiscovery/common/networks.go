package common

import (
	"net"
)

// Family selects which address families GetLocalNetworks returns
type Family int

const (
	// FamilyAll returns IPv4 and IPv6 ranges
	FamilyAll Family = iota
	// FamilyIPv4 returns private IPv4 /24 ranges only
	FamilyIPv4
	// FamilyIPv6 returns link-local and ULA IPv6 /64 ranges only
	FamilyIPv6
)

var (
	mask24 = net.CIDRMask(24, 32)
	mask64 = net.CIDRMask(64, 128)
)

// GetLocalNetworks returns the ranges of all up, non-loopback interfaces.
// Private IPv4 addresses become their /24, link-local and ULA IPv6 addresses
// their /64. Duplicates are dropped.
func GetLocalNetworks(family Family) ([]*net.IPNet, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var addrs []net.Addr
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		ifaceAddrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		addrs = append(addrs, ifaceAddrs...)
	}

	return localRanges(addrs, family), nil
}

// localRanges maps interface addresses to the ranges worth sweeping
func localRanges(addrs []net.Addr, family Family) []*net.IPNet {
	var networks []*net.IPNet
	seen := make(map[string]struct{})

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}

		network := sweepRange(ipNet.IP, family)
		if network == nil {
			continue
		}

		key := network.String()
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		networks = append(networks, network)
	}

	return networks
}

func sweepRange(ip net.IP, family Family) *net.IPNet {
	if ip4 := ip.To4(); ip4 != nil {
		if family == FamilyIPv6 || !ip4.IsPrivate() {
			return nil
		}
		return &net.IPNet{IP: ip4.Mask(mask24), Mask: mask24}
	}

	if family == FamilyIPv4 || len(ip) != net.IPv6len {
		return nil
	}
	if ip.IsLoopback() || ip.IsMulticast() {
		return nil
	}
	// link-local fe80::/10 or ULA fd00::/8
	if !ip.IsLinkLocalUnicast() && ip[0] != 0xfd {
		return nil
	}
	return &net.IPNet{IP: ip.Mask(mask64), Mask: mask64}
}
