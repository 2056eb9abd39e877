//go:build linux && ebpf

package subcmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowtap/flowtap/probes/packet"
)

var (
	// PacketClean removes the clsact qdisc the packet probe hangs its
	// classifier off of. Useful after unclean exits which leave the
	// qdisc behind.
	PacketClean = &cobra.Command{
		Use:   "packet-clean",
		Short: "Remove the packet probe's qdisc from an interface.",
		Run: func(cmd *cobra.Command, args []string) {
			nl, err := packet.NewNetlinkClient()
			if err != nil {
				fmt.Fprintf(os.Stderr, "error opening the netlink socket: %v\n", err)
				os.Exit(1)
			}
			defer nl.Close(false)

			if err := nl.RemoveFilterQdisc(cleanInterfaceFlag); err != nil {
				fmt.Fprintf(os.Stderr, "error removing the qdisc on %s: %v\n", cleanInterfaceFlag, err)
				os.Exit(1)
			}
		},
	}

	cleanInterfaceFlag string
)

func init() {
	PacketClean.Flags().StringVar(&cleanInterfaceFlag, "target-interface", "lo", "interface to remove the qdisc from")
}
