package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crc-mirror/crc-mirror/internal/mirror"
)

var mirrorsCmd = &cobra.Command{
	Use:          "mirrors <logical-version>",
	Short:        "Probe every mirror layout for a version track",
	Long:         `Resolve the logical version and probe each known mirror layout for both artifact kinds, reporting what each layout can currently serve.`,
	Args:         cobra.ExactArgs(1),
	RunE:         runMirrors,
	SilenceUsage: true,
}

func init() {
	mirrorsCmd.Flags().StringSliceP("platform", "p", nil, "Target platforms as os/arch (default from config)")
}

func runMirrors(cmd *cobra.Command, args []string) error {
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

	logicalVersion := args[0]

	releaseID, err := p.resolver.Resolve(ctx, logicalVersion)
	if err != nil {
		return err
	}

	fmt.Printf("%s resolves to release %s\n", logicalVersion, releaseID)

	unreachable := 0

	for _, platform := range platforms {
		req := mirror.Request{ReleaseID: releaseID, LogicalVersion: logicalVersion, Platform: platform}

		for _, result := range p.prober.Survey(ctx, req) {
			switch {
			case result.Err != nil:
				unreachable++
				fmt.Printf("DOWN  %-16s %-7s %s: %v\n", result.Layout, result.Kind, result.Dir, result.Err)
			case result.Found == "":
				fmt.Printf("MISS  %-16s %-7s %s (listing has no match)\n", result.Layout, result.Kind, result.Dir)
			default:
				fmt.Printf("OK    %-16s %-7s %s\n", result.Layout, result.Kind, result.Found)
			}
		}
	}

	if unreachable > 0 {
		return fmt.Errorf("%d mirror probe(s) unreachable", unreachable)
	}

	return nil
}
