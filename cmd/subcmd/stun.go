package subcmd

import (
	"fmt"
	"net/netip"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/flowtap/flowtap/internal/stun"
)

// StunSample resolves the machine's public addresses both over STUN and
// plain HTTPS so the two can be compared. It exercises exactly the path
// the export backend uses when addPublicAddresses is on.
var StunSample = &cobra.Command{
	Use:   "stun-sample",
	Short: "Resolve the machine's public IP addresses.",
	Run: func(cmd *cobra.Command, args []string) {
		iface, err := stun.GetDefaultInterface()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error getting the default interface: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("default interface: %s\n", iface.Name)

		ip4Prefixes, ip6Prefixes, err := stun.GetInterfacePrefixes(iface)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error getting the interface's prefixes: %v\n", err)
			os.Exit(1)
		}

		conf := stun.Config{}
		if err := conf.UnmarshalYAML([]byte("{}")); err != nil {
			fmt.Fprintf(os.Stderr, "error building the default configuration: %v\n", err)
			os.Exit(1)
		}

		for family, prefixes := range map[int][]netip.Prefix{
			unix.AF_INET:  ip4Prefixes,
			unix.AF_INET6: ip6Prefixes,
		} {
			for _, prefix := range prefixes {
				addr := prefix.Addr()

				stunIP, err := stun.GetPubIPOverSTUN(conf, family, addr)
				if err != nil {
					fmt.Printf("%s: no STUN answer: %v\n", addr, err)
				} else {
					fmt.Printf("%s: STUN says %s\n", addr, stunIP)
				}

				httpIP, err := stun.GetPubIPOverHTTP(conf, family, addr)
				if err != nil {
					fmt.Printf("%s: no HTTP answer: %v\n", addr, err)
				} else {
					fmt.Printf("%s: HTTP says %s\n", addr, httpIP)
				}
			}
		}
	},
}
