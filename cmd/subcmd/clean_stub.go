//go:build !linux || !ebpf

package subcmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var PacketClean = &cobra.Command{
	Use:   "packet-clean",
	Short: "Remove the packet probe's qdisc from an interface.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stderr, "packet-clean is only available on ebpf-enabled linux builds\n")
		os.Exit(1)
	},
}
