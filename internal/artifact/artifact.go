// Package artifact defines the artifact kinds and platform identifiers shared
// by the resolution, acquisition and packaging layers.
package artifact

import (
	"fmt"
	"strings"
)

// Kind identifies the class of payload within a cache unit.
type Kind int

const (
	// Binary is the small, single-file, per-(release, platform) executable archive
	Binary Kind = iota

	// Bundle is the large, per-(release, platform-family) data archive
	Bundle
)

func (k Kind) String() string {
	switch k {
	case Binary:
		return "binary"
	case Bundle:
		return "bundle"
	default:
		return "unknown"
	}
}

// Ext returns the archive extension upstream uses for the kind.
func (k Kind) Ext() string {
	switch k {
	case Binary:
		return ".tar.xz"
	case Bundle:
		return ".crcbundle"
	default:
		return ""
	}
}

// Kinds lists every artifact kind a complete cache unit carries.
var Kinds = []Kind{Binary, Bundle}

// Platform identifies a build target (OS + architecture)
type Platform struct {
	OS   string
	Arch string
}

// ParsePlatform parses "os/arch" (e.g. "linux/amd64") into a Platform.
func ParsePlatform(s string) (Platform, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Platform{}, fmt.Errorf("invalid platform %q: expected os/arch", s)
	}

	return Platform{OS: parts[0], Arch: parts[1]}, nil
}

func (p Platform) String() string {
	return p.OS + "-" + p.Arch
}

// Family returns the bundle variant serving the platform. Bundles are bucketed
// by hypervisor rather than by OS, so one variant may serve several platforms.
func (p Platform) Family() string {
	switch p.OS {
	case "linux":
		return "libvirt"
	case "darwin":
		return "vfkit"
	case "windows":
		return "hyperv"
	default:
		return p.OS
	}
}

// CacheFileName returns the reuse-cache filename for an artifact. Presence of
// a correctly named, correctly sized file under the cache directory is a valid
// hit regardless of which build produced it.
func CacheFileName(k Kind, release string, p Platform) string {
	return fmt.Sprintf("%s_%s_%s%s", k, release, p, k.Ext())
}
