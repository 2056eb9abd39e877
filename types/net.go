package types

import (
	"fmt"
	"net/netip"
)

func mustPrefix(network string) netip.Prefix {
	prefix, err := netip.ParsePrefix(network)
	if err != nil {
		panic(fmt.Sprintf("error parsing %s: %v", network, err))
	}
	return prefix
}

// Special-purpose blocks from the IANA IPv4/IPv6 special registries which
// netip's own classification doesn't flag but which are useless as public
// addresses all the same. RFC 1918, loopback, link-local, multicast and
// unique-local are handled by netip directly.
var specialPurposeNetworks = []netip.Prefix{
	mustPrefix("0.0.0.0/8"),        // RFC 791: this network
	mustPrefix("100.64.0.0/10"),    // RFC 6598: shared address space (CGNAT)
	mustPrefix("192.0.0.0/24"),     // RFC 6890: IETF protocol assignments
	mustPrefix("192.0.2.0/24"),     // RFC 5737: TEST-NET-1
	mustPrefix("192.88.99.0/24"),   // RFC 7526: deprecated 6to4 relay anycast
	mustPrefix("198.18.0.0/15"),    // RFC 2544: benchmarking
	mustPrefix("198.51.100.0/24"),  // RFC 5737: TEST-NET-2
	mustPrefix("203.0.113.0/24"),   // RFC 5737: TEST-NET-3
	mustPrefix("240.0.0.0/4"),      // RFC 1112: reserved
	mustPrefix("64:ff9b::/96"),     // RFC 6052: IPv4-IPv6 translation
	mustPrefix("64:ff9b:1::/48"),   // RFC 8215: IPv4-IPv6 translation
	mustPrefix("100::/64"),         // RFC 6666: discard-only
	mustPrefix("2001::/23"),        // RFC 2928: IETF protocol assignments
	mustPrefix("2001:db8::/32"),    // RFC 3849: documentation
	mustPrefix("2002::/16"),        // RFC 3056: 6to4
	mustPrefix("3fff::/20"),        // RFC 9637: documentation
	mustPrefix("5f00::/16"),        // RFC 9602: SRv6 SIDs
}

// IsIPPrivate reports whether ip is unusable as a public address: private,
// loopback, link-local, multicast and unspecified addresses, plus the
// special-purpose registry blocks above.
func IsIPPrivate(ip netip.Addr) bool {
	ip = ip.Unmap()

	if ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified() ||
		ip.IsMulticast() || IsIPLinkLocal(ip) {
		return true
	}

	for _, network := range specialPurposeNetworks {
		if network.Contains(ip) {
			return true
		}
	}

	return false
}

// IsIPLinkLocal reports whether ip only has meaning on its own link.
func IsIPLinkLocal(ip netip.Addr) bool {
	return ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}
