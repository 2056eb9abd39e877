package subcmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowtap/flowtap/filter"
)

var (
	// FilterCompile turns a pcap-style expression into the eBPF body
	// that would be patched into the packet probe's filter slot. Handy
	// for checking an expression fits the slot before deploying it.
	FilterCompile = &cobra.Command{
		Use:   "filter-compile",
		Short: "Compile a filter expression and dump the resulting eBPF.",
		Run: func(cmd *cobra.Command, args []string) {
			prog, err := compileFilter()
			if err != nil {
				fmt.Fprintf(os.Stderr, "error compiling the filter: %v\n", err)
				os.Exit(1)
			}

			fmt.Printf("instructions: %d (budget %d)\n", prog.Len(), filter.MaxInstructions)
			fmt.Printf("%v", prog.Instructions())
		},
	}

	filterExpressionFlag string
)

func init() {
	FilterCompile.Flags().StringVar(&filterExpressionFlag, "expression", "", "pcap-style filter expression; empty compiles the built-in stub")
}

func compileFilter() (*filter.Program, error) {
	if filterExpressionFlag == "" {
		return filter.DefaultStub(), nil
	}
	return filter.FromExpression(filterExpressionFlag, filter.L2)
}
