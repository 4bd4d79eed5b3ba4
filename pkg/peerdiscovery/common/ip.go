package common

import "net"

// IsNetworkOrBroadcast reports whether ip should be skipped when sweeping
// network. For IPv4 that is the network and broadcast address, for IPv6 the
// network address and any multicast address.
func IsNetworkOrBroadcast(ip net.IP, network *net.IPNet) bool {
	if network == nil {
		return false
	}

	if ip.Equal(network.IP) {
		return true
	}

	if ip4 := ip.To4(); ip4 != nil {
		// /31 and /32 have no broadcast address
		if ones, bits := network.Mask.Size(); bits == 32 && ones >= 31 {
			return false
		}
		base := network.IP.To4()
		if base == nil || len(network.Mask) != net.IPv4len {
			return false
		}
		broadcast := make(net.IP, net.IPv4len)
		for i := range broadcast {
			broadcast[i] = base[i] | ^network.Mask[i]
		}
		return ip4.Equal(broadcast)
	}

	return ip.IsMulticast()
}
