package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kvantos/patchbay/internal/infra/logger"
)

var (
	debug      bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "patchbay",
	Short: "Patchbay keeps a game folder in sync with a remote file manifest",
	Long: "Patchbay is a desktop companion split in two roles: a patcher daemon\n" +
		"that downloads and verifies files against a remote manifest, and a shell\n" +
		"that supervises the daemon process and streams its progress.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(debug)
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the daemon config file")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
