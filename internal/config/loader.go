package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Loader handles configuration loading from various sources
type Loader struct{}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{}
}

// LoadForCommand loads configuration for a CLI invocation: defaults, then the
// global config file, then a local config file found by walking up from the
// working directory, then flag overrides.
func (l *Loader) LoadForCommand(cmd *cobra.Command) (*Config, error) {
	l.setupViperDefaults()
	l.loadGlobalConfig()
	l.loadLocalConfig(cmd)
	l.bindCommandFlags(cmd)

	return Load()
}

// setupViperDefaults sets up default values for viper
func (l *Loader) setupViperDefaults() {
	viper.SetDefault("cache_dir", DefaultCacheDir)
	viper.SetDefault("store_dir", DefaultStoreDir)
	viper.SetDefault("pin_url", DefaultPinURL)
	viper.SetDefault("releases_url", DefaultReleasesURL)
	viper.SetDefault("mirror_base", DefaultMirrorBase)
	viper.SetDefault("gateway_base", DefaultGatewayBase)
	viper.SetDefault("platforms", []string{"linux/amd64"})
	viper.SetDefault("binary_min_size", DefaultBinaryMinSize)
	viper.SetDefault("bundle_min_size", DefaultBundleMinSize)
	viper.SetDefault("max_retries", DefaultMaxRetries)
	viper.SetDefault("retry_delay", DefaultRetryDelay)
	viper.SetDefault("http_timeout", DefaultHTTPTimeout)
	viper.SetDefault("log_level", DefaultLogLevel)
	viper.SetDefault("log_max_size", DefaultLogMaxSize)
	viper.SetDefault("log_max_backups", DefaultLogMaxBackups)
}

// loadGlobalConfig loads the global configuration from the user config directory
func (l *Loader) loadGlobalConfig() {
	configHome, err := os.UserConfigDir()
	if err != nil {
		return
	}

	globalDir := filepath.Join(configHome, "crc-mirror")

	for _, ext := range []string{"yml", "yaml", "json", "toml"} {
		globalPath := filepath.Join(globalDir, "config."+ext)

		if _, err := os.Stat(globalPath); err == nil {
			viper.SetConfigFile(globalPath)

			if err := viper.ReadInConfig(); err == nil {
				break
			}
		}
	}
}

// loadLocalConfig loads local configuration, preferring an explicit --config
// flag over a walk-up search from the working directory.
func (l *Loader) loadLocalConfig(cmd *cobra.Command) {
	if explicit, err := cmd.Flags().GetString("config"); err == nil && explicit != "" {
		viper.SetConfigFile(explicit)
		_ = viper.ReadInConfig()
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	localPath := FindLocalConfig(cwd)
	if localPath != "" {
		viper.SetConfigFile(localPath)
		_ = viper.ReadInConfig()
	}
}

// bindCommandFlags binds command flags to viper
func (l *Loader) bindCommandFlags(cmd *cobra.Command) {
	_ = viper.BindPFlag("cache_dir", cmd.Flags().Lookup("cache-dir"))
	_ = viper.BindPFlag("store_dir", cmd.Flags().Lookup("store-dir"))
	_ = viper.BindPFlag("verbose", cmd.Flags().Lookup("verbose"))
}
