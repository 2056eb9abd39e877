package stun

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"

	"golang.org/x/sys/unix"

	"github.com/flowtap/flowtap/types"
)

// GetPublicAddresses maps every address on the default interface to the
// public address the rest of the world sees it as. Manual mappings from
// the configuration win outright; addresses that are already public map
// to themselves; private ones get resolved over STUN, falling back to
// HTTP discovery. Link-local addresses are skipped.
func GetPublicAddresses(c Config) (map[netip.Addr]netip.Addr, error) {
	iface, err := GetDefaultInterface()
	if err != nil {
		return nil, err
	}

	ip4Prefixes, ip6Prefixes, err := GetInterfacePrefixes(iface)
	if err != nil {
		return nil, err
	}

	pubIPMap := map[netip.Addr]netip.Addr{}

	for family, prefixes := range map[int][]netip.Prefix{
		unix.AF_INET:  ip4Prefixes,
		unix.AF_INET6: ip6Prefixes,
	} {
		for _, prefix := range prefixes {
			addr := prefix.Addr()

			if types.IsIPLinkLocal(addr) {
				slog.Debug("skipping a link-local address", "ip", addr)
				continue
			}

			if manual, ok := c.manualMappingParsed[addr]; ok {
				slog.Debug("applying a manual mapping", "privIp", addr, "pubIp", manual)
				pubIPMap[addr] = manual
				continue
			}

			if !types.IsIPPrivate(addr) {
				slog.Debug("ip is already public", "ip", addr)
				pubIPMap[addr] = addr
				continue
			}

			pub, err := resolvePublic(c, family, addr)
			if err != nil {
				slog.Warn("couldn't resolve a public address", "ip", addr, "err", err)
				continue
			}
			pubIPMap[addr] = pub
		}
	}

	if len(pubIPMap) == 0 {
		return nil, fmt.Errorf("no address resolved to a public one")
	}

	return pubIPMap, nil
}

func resolvePublic(c Config, family int, addr netip.Addr) (netip.Addr, error) {
	pub, stunErr := GetPubIPOverSTUN(c, family, addr)
	if stunErr == nil {
		return pub, nil
	}
	slog.Debug("STUN resolution failed, falling back to HTTP", "ip", addr, "err", stunErr)

	pub, httpErr := GetPubIPOverHTTP(c, family, addr)
	if httpErr == nil {
		return pub, nil
	}

	return netip.Addr{}, errors.Join(stunErr, httpErr)
}
