package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/crc-mirror/crc-mirror/internal/artifact"
)

// Default configuration values
const (
	DefaultCacheDir    = ".crc-mirror/cache"
	DefaultStoreDir    = ".crc-mirror/store"
	DefaultPinURL      = "https://raw.githubusercontent.com/crc-mirror/pins/main/version-pins.json"
	DefaultReleasesURL = "https://api.github.com/repos/crc-org/crc/releases"
	DefaultMirrorBase  = "https://mirror.openshift.com/pub/openshift-v4/clients/crc"
	DefaultGatewayBase = "https://developers.redhat.com/content-gateway/file/pub/openshift-v4/clients/crc"

	// DefaultBinaryMinSize rejects truncated binary downloads. Stale paths
	// sometimes serve a small HTML error page with a 200; real binaries are
	// tens of MB.
	DefaultBinaryMinSize = int64(20 * 1024 * 1024)

	// DefaultBundleMinSize rejects truncated bundle downloads; real bundles
	// are multiple GB.
	DefaultBundleMinSize = int64(1024 * 1024 * 1024)

	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 5 * time.Second
	DefaultHTTPTimeout = 30 * time.Second

	DefaultLogLevel      = "info"
	DefaultLogMaxSize    = 100
	DefaultLogMaxBackups = 10
)

// Holds the configuration options for crc-mirror
type Config struct {
	// Local reuse-cache directory for downloaded artifacts
	CacheDir string

	// Local packaging store directory for published cache units
	StoreDir string

	// URL of the shared remote pin document
	PinURL string

	// URL of the upstream release index (GitHub-style releases API)
	ReleasesURL string

	// Primary mirror base URL (current layout generation)
	MirrorBase string

	// Legacy content-gateway base URL (older layout generation)
	GatewayBase string

	// Explicit logical-version -> release-id pins; authoritative when present
	Pins map[string]string

	// Version tracks built by "build --all"
	Versions []string

	// Target platforms as "os/arch" strings
	Platforms []string

	// Minimum plausible artifact sizes in bytes
	BinaryMinSize int64
	BundleMinSize int64

	// Transfer retry policy
	MaxRetries int
	RetryDelay time.Duration

	// Timeout for small document fetches (listings, pin file, release index)
	HTTPTimeout time.Duration

	// Logging
	LogLevel      string
	LogFile       string
	LogMaxSize    int
	LogMaxBackups int

	// Enable verbose output
	Verbose bool
}

func Load() (*Config, error) {
	cfg := &Config{
		CacheDir:      viper.GetString("cache_dir"),
		StoreDir:      viper.GetString("store_dir"),
		PinURL:        viper.GetString("pin_url"),
		ReleasesURL:   viper.GetString("releases_url"),
		MirrorBase:    viper.GetString("mirror_base"),
		GatewayBase:   viper.GetString("gateway_base"),
		Pins:          viper.GetStringMapString("pins"),
		Versions:      viper.GetStringSlice("versions"),
		Platforms:     viper.GetStringSlice("platforms"),
		BinaryMinSize: viper.GetInt64("binary_min_size"),
		BundleMinSize: viper.GetInt64("bundle_min_size"),
		MaxRetries:    viper.GetInt("max_retries"),
		RetryDelay:    viper.GetDuration("retry_delay"),
		HTTPTimeout:   viper.GetDuration("http_timeout"),
		LogLevel:      viper.GetString("log_level"),
		LogFile:       viper.GetString("log_file"),
		LogMaxSize:    viper.GetInt("log_max_size"),
		LogMaxBackups: viper.GetInt("log_max_backups"),
		Verbose:       viper.GetBool("verbose"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if abs, err := filepath.Abs(c.CacheDir); err == nil {
		c.CacheDir = abs
	}

	if abs, err := filepath.Abs(c.StoreDir); err == nil {
		c.StoreDir = abs
	}

	if c.LogFile != "" {
		abs, err := filepath.Abs(c.LogFile)
		if err != nil {
			return fmt.Errorf("invalid log file path: %v", err)
		}

		c.LogFile = abs
	}

	if c.MirrorBase == "" {
		return fmt.Errorf("mirror_base must not be empty")
	}

	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1")
	}

	if c.BinaryMinSize <= 0 || c.BundleMinSize <= 0 {
		return fmt.Errorf("minimum artifact sizes must be positive")
	}

	if len(c.Platforms) == 0 {
		return fmt.Errorf("at least one platform must be configured")
	}

	for _, p := range c.Platforms {
		if _, err := artifact.ParsePlatform(p); err != nil {
			return err
		}
	}

	return nil
}

// TargetPlatforms returns the configured platforms parsed into artifact.Platform.
func (c *Config) TargetPlatforms() ([]artifact.Platform, error) {
	platforms := make([]artifact.Platform, 0, len(c.Platforms))

	for _, p := range c.Platforms {
		parsed, err := artifact.ParsePlatform(p)
		if err != nil {
			return nil, err
		}

		platforms = append(platforms, parsed)
	}

	return platforms, nil
}

// MinSize returns the minimum plausible size for an artifact kind.
func (c *Config) MinSize(kind artifact.Kind) int64 {
	if kind == artifact.Bundle {
		return c.BundleMinSize
	}

	return c.BinaryMinSize
}
