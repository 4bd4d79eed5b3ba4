package icmpprobe

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/projectdiscovery/gcache"
)

// ErrInvalidAddress is returned for addresses that are not numeric IPs
var ErrInvalidAddress = errors.New("not a numeric ip address")

// Resolver turns a textual target address into a routable address
type Resolver interface {
	Resolve(address string) (netip.Addr, error)
}

// NumericResolver accepts numeric IPv4/IPv6 addresses only, no DNS lookups
// are ever made.
type NumericResolver struct{}

// Resolve parses address. IPv4-mapped IPv6 addresses are unmapped so they are
// probed over ICMPv4.
func (NumericResolver) Resolve(address string) (netip.Addr, error) {
	address = strings.TrimSpace(address)
	if strings.HasPrefix(address, "[") && strings.HasSuffix(address, "]") {
		address = address[1 : len(address)-1]
	}
	addr, err := netip.ParseAddr(address)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	if addr.Is4In6() {
		addr = addr.Unmap()
	}
	return addr, nil
}

// CachingResolver memoizes the results of another resolver
type CachingResolver struct {
	next  Resolver
	cache gcache.Cache[string, netip.Addr]
}

// NewCachingResolver wraps next with an LRU of size entries expiring after ttl
func NewCachingResolver(next Resolver, size int, ttl time.Duration) *CachingResolver {
	if next == nil {
		next = NumericResolver{}
	}
	if size <= 0 {
		size = 1024
	}
	builder := gcache.New[string, netip.Addr](size).LRU()
	if ttl > 0 {
		builder = builder.Expiration(ttl)
	}
	return &CachingResolver{next: next, cache: builder.Build()}
}

// Resolve returns the cached address or resolves and caches it.
// Failures are not cached.
func (c *CachingResolver) Resolve(address string) (netip.Addr, error) {
	if addr, err := c.cache.Get(address); err == nil {
		return addr, nil
	}
	addr, err := c.next.Resolve(address)
	if err != nil {
		return netip.Addr{}, err
	}
	_ = c.cache.Set(address, addr)
	return addr, nil
}
