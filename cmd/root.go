package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crc-mirror/crc-mirror/internal/version"
)

var rootCmd = &cobra.Command{
	Use:          "crc-mirror",
	Short:        "Failover cache for CRC binary and bundle releases",
	Long:         `Maintains a failover cache of versioned CRC binary+bundle pairs mirrored from upstream distribution, packaged as addressable cache units.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (%s) %s", version.Version, version.Commit, version.BuildTime)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("cache-dir", "", "Reuse cache directory for downloaded artifacts")
	rootCmd.PersistentFlags().String("store-dir", "", "Local store directory for published cache units")
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(mirrorsCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(prefetchCmd)
}
