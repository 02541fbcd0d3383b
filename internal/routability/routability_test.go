package routability

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsRoutable(t *testing.T) {
	cases := []struct {
		name string
		ip   string
		port uint16
		want bool
	}{
		{"ipv4 public", "8.8.8.8", 53, true},
		{"ipv4 loopback", "127.0.0.1", 53, false},
		{"ipv4 rfc1918 10/8", "10.1.2.3", 53, false},
		{"ipv4 rfc1918 172.16/12", "172.16.5.5", 53, false},
		{"ipv4 rfc1918 192.168/16", "192.168.1.1", 53, false},
		{"ipv4 unspecified", "0.0.0.0", 53, false},
		{"ipv4 link-local", "169.254.1.1", 53, false},
		{"ipv4 multicast", "224.0.0.1", 53, false},
		{"ipv4 broadcast", "255.255.255.255", 53, false},
		{"ipv4 test-net-1", "192.0.2.5", 53, false},
		{"ipv4 test-net-2", "198.51.100.5", 53, false},
		{"ipv4 test-net-3", "203.0.113.5", 53, false},
		{"ipv4 benchmarking", "198.18.0.5", 53, false},
		{"ipv4 zero port", "8.8.8.8", 0, false},
		{"ipv6 public", "2607:f8b0::1", 53, true},
		{"ipv6 loopback", "::1", 53, false},
		{"ipv6 unspecified", "::", 53, false},
		{"ipv6 multicast", "ff02::1", 53, false},
		{"ipv6 unique-local", "fc00::1", 53, false},
		{"ipv6 link-local", "fe80::1", 53, false},
		{"ipv6 documentation", "2001:db8::1", 53, false},
		{"ipv6 benchmarking", "2001:2::1", 53, false},
		{"ipv6 zero port", "2607:f8b0::1", 0, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ip := net.ParseIP(c.ip)
			require.NotNil(t, ip)
			require.Equal(t, c.want, IsRoutable(ip, c.port))
		})
	}
}
