//go:build linux && ebpf

package packet

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"

	"github.com/flowtap/flowtap/types"
)

// discoverInterfaces inspects the machine's interfaces and returns those
// carrying a public address, the ones worth watching by default.
func discoverInterfaces() ([]string, error) {
	iFaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("error getting the system's interfaces: %w", err)
	}

	targetInterfaces := []string{}
	for _, iFace := range iFaces {
		addrs, err := iFace.Addrs()
		if err != nil {
			slog.Warn("couldn't get interface addresses", "interface", iFace.Name, "err", err)
			continue
		}
		for _, addr := range addrs {
			slog.Debug("interface addr", "interface", iFace.Name, "addr", addr)
			cidr, err := netip.ParsePrefix(addr.String())
			if err != nil {
				slog.Warn("error parsing CIDR", "interface", iFace.Name, "cidr", addr.String())
				continue
			}

			if !types.IsIPPrivate(cidr.Addr()) {
				targetInterfaces = append(targetInterfaces, iFace.Name)
				break
			}
		}
	}

	return targetInterfaces, nil
}
