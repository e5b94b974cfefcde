package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var prefetchCmd = &cobra.Command{
	Use:          "prefetch <logical-version>...",
	Short:        "Pre-populate the reuse cache",
	Long:         `Resolve and acquire the binary and bundle for each version track into the reuse cache without publishing anything, so later builds skip the network.`,
	Args:         cobra.MinimumNArgs(1),
	RunE:         runPrefetch,
	SilenceUsage: true,
}

func init() {
	prefetchCmd.Flags().StringSliceP("platform", "p", nil, "Target platforms as os/arch (default from config)")
}

func runPrefetch(cmd *cobra.Command, args []string) error {
	p, err := newPipeline(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	platforms, err := targetPlatforms(cmd, p.cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	failed := 0

	for _, v := range args {
		for _, platform := range platforms {
			if err := p.builder.Prefetch(ctx, v, platform); err != nil {
				failed++
				fmt.Printf("FAIL %s %s: %v\n", v, platform, err)
				continue
			}

			fmt.Printf("OK   %s %s cached under %s\n", v, platform, p.acquirer.Dir())
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d prefetch(es) failed", failed)
	}

	return nil
}
