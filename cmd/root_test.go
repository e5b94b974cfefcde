package cmd

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crc-mirror/crc-mirror/internal/artifact"
	"github.com/crc-mirror/crc-mirror/internal/config"
)

func TestRootCommandWiring(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"build", "mirrors", "verify", "prefetch"} {
		assert.True(t, names[want], "subcommand %q not registered", want)
	}

	for _, flag := range []string{"config", "verbose", "cache-dir", "store-dir"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), "persistent flag %q missing", flag)
	}
}

func TestBuildCommandFlags(t *testing.T) {
	for _, flag := range []string{"platform", "force", "all"} {
		assert.NotNil(t, buildCmd.Flags().Lookup(flag), "build flag %q missing", flag)
	}
}

func TestTargetPlatforms(t *testing.T) {
	cfg := &config.Config{Platforms: []string{"linux/amd64"}}

	newCmd := func() *cobra.Command {
		c := &cobra.Command{Use: "test"}
		c.Flags().StringSliceP("platform", "p", nil, "")

		return c
	}

	t.Run("falls back to config", func(t *testing.T) {
		platforms, err := targetPlatforms(newCmd(), cfg)
		require.NoError(t, err)
		assert.Equal(t, []artifact.Platform{{OS: "linux", Arch: "amd64"}}, platforms)
	})

	t.Run("flag overrides config", func(t *testing.T) {
		c := newCmd()
		require.NoError(t, c.Flags().Set("platform", "darwin/arm64,windows/amd64"))

		platforms, err := targetPlatforms(c, cfg)
		require.NoError(t, err)
		assert.Equal(t, []artifact.Platform{
			{OS: "darwin", Arch: "arm64"},
			{OS: "windows", Arch: "amd64"},
		}, platforms)
	})

	t.Run("malformed flag value", func(t *testing.T) {
		c := newCmd()
		require.NoError(t, c.Flags().Set("platform", "linux"))

		_, err := targetPlatforms(c, cfg)
		assert.Error(t, err)
	})
}
