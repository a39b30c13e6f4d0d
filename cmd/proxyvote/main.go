package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"
)

type Config struct {
	StorageDir string
	Listen     string
	QueueSize  int
	Verbosity  int
}

var config = &Config{}

var rootCmd = &cobra.Command{
	Use:   "proxyvote",
	Short: "Sign, verify and relay proxy-submittable ballots",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(config.Verbosity)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().IntVar(&config.Verbosity, "verbosity", 3, "Log level (0=crit, 1=error, 2=warn, 3=info, 4=debug, 5=trace)")
}

func setupLogging(verbosity int) {
	handler := log.NewTerminalHandlerWithLevel(os.Stderr, log.FromLegacyLevel(verbosity), false)
	log.SetDefault(log.NewLogger(handler))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
