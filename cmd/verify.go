package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:          "verify <logical-version>",
	Short:        "Validate a published cache unit",
	Long:         `Pull the published cache unit fresh from the store and run every structural and content check, reporting each outcome individually.`,
	Args:         cobra.ExactArgs(1),
	RunE:         runVerify,
	SilenceUsage: true,
}

func init() {
	verifyCmd.Flags().StringSliceP("platform", "p", nil, "Target platforms as os/arch (default from config)")
}

func runVerify(cmd *cobra.Command, args []string) error {
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

	for _, platform := range platforms {
		report := p.validator.Validate(ctx, args[0], platform)

		fmt.Printf("%s %s:\n", report.LogicalVersion, report.Platform)

		for _, check := range report.Checks {
			if check.Detail != "" {
				fmt.Printf("  %-4s %s: %s\n", check.Status, check.Name, check.Detail)
			} else {
				fmt.Printf("  %-4s %s\n", check.Status, check.Name)
			}
		}

		if !report.OK() {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("validation failed for %d platform(s)", failed)
	}

	return nil
}
