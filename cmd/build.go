package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:          "build [logical-version...]",
	Short:        "Build cache units for one or more version tracks",
	Long:         `Resolve each logical version to a concrete release, acquire its binary and bundle, and publish a cache unit. Builds are skipped when the published unit already carries the resolved release.`,
	RunE:         runBuild,
	SilenceUsage: true,
}

func init() {
	buildCmd.Flags().StringSliceP("platform", "p", nil, "Target platforms as os/arch (default from config)")
	buildCmd.Flags().BoolP("force", "f", false, "Rebuild even when the resolved release is unchanged")
	buildCmd.Flags().Bool("all", false, "Build every configured version track")
}

func runBuild(cmd *cobra.Command, args []string) error {
	p, err := newPipeline(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	all, _ := cmd.Flags().GetBool("all")
	force, _ := cmd.Flags().GetBool("force")

	versions := args
	if all {
		versions = p.cfg.Versions
	}

	if len(versions) == 0 {
		return fmt.Errorf("no versions given: pass logical versions as arguments or use --all with configured versions")
	}

	platforms, err := targetPlatforms(cmd, p.cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	summary := p.builder.BuildAll(ctx, versions, platforms, force)

	for _, r := range summary.Results {
		switch {
		case r.Err != nil:
			fmt.Printf("FAIL  %s %s: %v\n", r.LogicalVersion, r.Platform, r.Err)
		case r.Skipped:
			fmt.Printf("SKIP  %s %s (release %s unchanged)\n", r.LogicalVersion, r.Platform, r.ReleaseID)
		default:
			fmt.Printf("BUILT %s %s (release %s) -> %s\n", r.LogicalVersion, r.Platform, r.ReleaseID, r.Ref)
		}
	}

	if failed := summary.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d builds failed", len(failed), len(summary.Results))
	}

	return nil
}
