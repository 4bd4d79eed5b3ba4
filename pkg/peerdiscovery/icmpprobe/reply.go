package icmpprobe

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const unknownReply = "unknown"

// describeReply names the ICMP message found in b. Raw IPv4 sockets deliver
// the IP header too, ICMPv6 sockets deliver the bare message.
func describeReply(isIPv6 bool, b []byte) string {
	if len(b) == 0 {
		return unknownReply
	}

	if isIPv6 {
		packet := gopacket.NewPacket(b, layers.LayerTypeICMPv6, gopacket.NoCopy)
		if layer, ok := packet.Layer(layers.LayerTypeICMPv6).(*layers.ICMPv6); ok {
			return layer.TypeCode.String()
		}
		return unknownReply
	}

	first := gopacket.Decoder(layers.LayerTypeICMPv4)
	if b[0]>>4 == 4 {
		first = layers.LayerTypeIPv4
	}
	packet := gopacket.NewPacket(b, first, gopacket.NoCopy)
	if layer, ok := packet.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4); ok {
		return layer.TypeCode.String()
	}
	return unknownReply
}
