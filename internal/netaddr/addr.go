// Package netaddr resolves host:port pairs from configuration into socket
// addresses without performing DNS lookups — hostnames must already be
// numeric IPv4/IPv6 literals, matching spec section 4.1 (C1).
package netaddr

import (
	"net"
	"net/netip"

	"github.com/laggyluke/bud/internal/buderr"
)

// Resolve parses host and port into a net.TCPAddr, auto-detecting the
// address family. DNS resolution is never performed here; a hostname that
// is not a numeric IPv4 or IPv6 literal fails with a Config error.
func Resolve(host string, port int) (*net.TCPAddr, error) {
	if host == "" {
		host = "0.0.0.0"
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil, buderr.Config(err, "address %q is not a numeric IPv4 or IPv6 literal", host)
	}
	return &net.TCPAddr{IP: addr.AsSlice(), Port: port, Zone: addr.Zone()}, nil
}

// Format renders addr back to its canonical string form (dotted-quad for
// IPv4, RFC 5952 compressed form for IPv6), the inverse of Resolve for the
// host portion.
func Format(addr *net.TCPAddr) string {
	ip, ok := netip.AddrFromSlice(addr.IP)
	if !ok {
		return addr.IP.String()
	}
	return ip.String()
}

// Family reports the PROXY-protocol family token for addr: "TCP4" or "TCP6".
func Family(addr *net.TCPAddr) string {
	if addr.IP.To4() != nil {
		return "TCP4"
	}
	return "TCP6"
}
