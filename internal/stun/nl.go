package stun

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"

	"github.com/jsimonetti/rtnetlink/v2/rtnl"
	"golang.org/x/sys/unix"
)

const (
	// PUB_IP is an IPv4 known to be public. We've chosen the Quad9 DNS
	// resolver.
	PUB_IP string = "9.9.9.9"
)

// GetDefaultInterface finds the interface the default route goes through
// by asking the kernel how it would reach a known public address.
func GetDefaultInterface() (*net.Interface, error) {
	conn, err := rtnl.Dial(nil)
	if err != nil {
		return nil, fmt.Errorf("couldn't open a rtnl connection: %w", err)
	}
	defer conn.Close()

	r, err := conn.RouteGet(net.ParseIP(PUB_IP))
	if err != nil {
		return nil, fmt.Errorf("error getting routes: %w", err)
	}

	return r.Interface, nil
}

// GetInterfacePrefixes returns the IPv4 and IPv6 prefixes configured on
// the given interface.
func GetInterfacePrefixes(iface *net.Interface) ([]netip.Prefix, []netip.Prefix, error) {
	conn, err := rtnl.Dial(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't open a rtnl connection: %w", err)
	}
	defer conn.Close()

	ip4Addrs, err := conn.Addrs(iface, unix.AF_INET)
	if err != nil {
		return nil, nil, fmt.Errorf("error retrieving ip4 addresses: %w", err)
	}

	ip6Addrs, err := conn.Addrs(iface, unix.AF_INET6)
	if err != nil {
		return nil, nil, fmt.Errorf("error retrieving ip6 addresses: %w", err)
	}

	toPrefixes := func(nets []*net.IPNet) []netip.Prefix {
		prefixes := make([]netip.Prefix, 0, len(nets))
		for _, n := range nets {
			addr, ok := netip.AddrFromSlice(n.IP)
			if !ok {
				slog.Warn("error casting net.IP to netip.Addr", "ip", n.IP)
				continue
			}
			ones, _ := n.Mask.Size()
			prefixes = append(prefixes, netip.PrefixFrom(addr.Unmap(), ones))
		}
		return prefixes
	}

	return toPrefixes(ip4Addrs), toPrefixes(ip6Addrs), nil
}
