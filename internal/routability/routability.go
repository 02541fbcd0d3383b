// Package routability classifies IP+port pairs as publicly routable. It is a
// pure, stateless function with no shared state — the same kind of static
// RFC network table the decred-dcrseeder lineage hand-rolls in its Manager.
package routability

import "net"

func ipNet(ip string, ones, bits int) net.IPNet {
	return net.IPNet{IP: net.ParseIP(ip), Mask: net.CIDRMask(ones, bits)}
}

var (
	rfc1918Nets = []net.IPNet{
		ipNet("10.0.0.0", 8, 32),
		ipNet("172.16.0.0", 12, 32),
		ipNet("192.168.0.0", 16, 32),
	}
	rfc2544Net  = ipNet("198.18.0.0", 15, 32) // benchmarking
	rfc5737Nets = []net.IPNet{
		ipNet("192.0.2.0", 24, 32),    // TEST-NET-1
		ipNet("198.51.100.0", 24, 32), // TEST-NET-2
		ipNet("203.0.113.0", 24, 32),  // TEST-NET-3
	}

	rfc3964Net = ipNet("2002::", 16, 128)  // 6to4
	rfc4380Net = ipNet("2001::", 32, 128)  // Teredo
	rfc4843Net = ipNet("2001:10::", 28, 128) // ORCHID
	rfc4862Net = ipNet("FE80::", 64, 128)  // link-local
	rfc4193Net = ipNet("FC00::", 7, 128)   // unique-local
	rfc3849Net = ipNet("2001:db8::", 32, 128) // documentation
	rfc5180Net = ipNet("2001:2::", 48, 128)   // benchmarking
)

// IsRoutable reports whether ip with the given port is publicly routable.
// Port 0 is never routable regardless of the address.
func IsRoutable(ip net.IP, port uint16) bool {
	if port == 0 || ip == nil {
		return false
	}

	if ip4 := ip.To4(); ip4 != nil {
		return isRoutableV4(ip4)
	}
	return isRoutableV6(ip)
}

func isRoutableV4(ip4 net.IP) bool {
	if ip4.IsLoopback() || ip4.IsUnspecified() || ip4.IsLinkLocalUnicast() ||
		ip4.IsMulticast() {
		return false
	}
	if ip4.Equal(net.IPv4bcast) {
		return false
	}
	for _, n := range rfc1918Nets {
		if n.Contains(ip4) {
			return false
		}
	}
	for _, n := range rfc5737Nets {
		if n.Contains(ip4) {
			return false
		}
	}
	if rfc2544Net.Contains(ip4) {
		return false
	}
	return true
}

func isRoutableV6(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsUnspecified() || ip.IsMulticast() ||
		ip.IsLinkLocalUnicast() {
		return false
	}
	if rfc4193Net.Contains(ip) || rfc4862Net.Contains(ip) ||
		rfc3849Net.Contains(ip) || rfc5180Net.Contains(ip) {
		return false
	}
	// 6to4/Teredo/ORCHID ranges carry whatever routability their embedded
	// IPv4 payload has; the teacher treats them as unroutable outright,
	// which this classifier preserves.
	if rfc3964Net.Contains(ip) || rfc4380Net.Contains(ip) || rfc4843Net.Contains(ip) {
		return false
	}
	return true
}
