package icmpprobe

// Checksum returns the Internet checksum (RFC 792/1071) of b.
// The checksum field inside b must be zero when this is called.
func Checksum(b []byte) uint16 {
	var sum uint32

	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}

	// odd trailing byte is padded with a zero low byte
	if n%2 == 1 {
		sum += uint32(b[n-1]) << 8
	}

	for sum>>16 != 0 {
		sum = (sum >> 16) + (sum & 0xffff)
	}

	return ^uint16(sum)
}
