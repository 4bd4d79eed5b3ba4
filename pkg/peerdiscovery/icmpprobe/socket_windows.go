//go:build windows

package icmpprobe

import (
	"errors"
	"net/netip"
)

// ErrUnsupportedPlatform is returned by RawOpener on windows
var ErrUnsupportedPlatform = errors.New("raw icmp sockets are not supported on windows")

// RawOpener is not available on windows, every target ends up ScanFailed
type RawOpener struct{}

// Open always fails on windows
func (RawOpener) Open(netip.Addr) (Conn, error) {
	return nil, ErrUnsupportedPlatform
}
