package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowtap/flowtap/cmd/subcmd"
)

var (
	rootCmd = &cobra.Command{
		Use:   "flowtap",
		Short: "A kernel datapath observer.",
		Long:  "Watch OVS flow lookups and filtered packets as they happen.",
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Get the built version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("built commit: %s\n", builtCommit)
		},
	}

	confCmd = &cobra.Command{
		Use:   "conf",
		Short: "Parse the configuration and dump the result.",
		Run: func(cmd *cobra.Command, args []string) {
			conf, err := ReadConf(confFilePathFlag)
			if err != nil {
				slog.Error("couldn't read the configuration", "err", err)
				os.Exit(1)
			}
			fmt.Printf("%s", conf)
		},
	}

	confFilePathFlag string
	logLevelFlag     string
	logTimeFlag      bool
	logSourceFlag    bool

	// Overridden through -ldflags at build time.
	builtCommit = "dev"
)

func init() {
	rootCmd.PersistentFlags().StringVar(&confFilePathFlag, "conf", "/etc/flowtap/conf.yaml", "path of the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "log level: one of debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logTimeFlag, "log-time", false, "include timestamps in log lines")
	rootCmd.PersistentFlags().BoolVar(&logSourceFlag, "log-source", false, "include the source position in log lines")

	// Disable completion please!
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Add the different sub-commands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(confCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(subcmd.FilterCompile)
	rootCmd.AddCommand(subcmd.PacketClean)
	rootCmd.AddCommand(subcmd.StunSample)
}

func setupLogging() {
	logLevel, ok := logLevelMap[logLevelFlag]
	if !ok {
		fmt.Fprintf(os.Stderr, "wrong log level %q, defaulting to info\n", logLevelFlag)
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       logLevel,
		AddSource:   logSourceFlag,
		ReplaceAttr: logReplacements,
	}))
	slog.SetDefault(logger)
}

func main() {
	cobra.OnInitialize(setupLogging)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
