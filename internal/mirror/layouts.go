// Package mirror discovers candidate download locations for release artifacts
// across the known upstream directory layouts. Upstream migrates layouts
// without notice and old and new schemes can be live simultaneously for
// different releases, so every known layout generation is probed in order.
package mirror

import (
	"regexp"
	"strings"

	"github.com/crc-mirror/crc-mirror/internal/artifact"
	"github.com/crc-mirror/crc-mirror/internal/config"
)

// Request carries everything a layout needs to produce candidate locations.
type Request struct {
	// ReleaseID is the concrete tool release, e.g. "2.54.0"
	ReleaseID string

	// LogicalVersion is the bundle minor track, e.g. "4.19"
	LogicalVersion string

	Platform artifact.Platform
}

// Layout describes one upstream directory scheme as pure functions from the
// request to listing URLs and filename patterns. Adding a new generation
// means appending a Layout, not touching the probing loop.
type Layout struct {
	Name string

	// BinaryDir returns the listing URL holding binary archives for the release
	BinaryDir func(Request) string

	// BundleDir returns the bundle listing URL. With PatchBuckets set it is a
	// bucket root whose entries are full patch-version directories.
	BundleDir func(Request) string

	// PatchBuckets marks layouts where bundles are bucketed by patch version,
	// requiring two-level resolution under the minor-version track.
	PatchBuckets bool

	// BinaryPattern matches binary filenames for the request
	BinaryPattern func(Request) *regexp.Regexp

	// BundlePattern matches bundle filenames; the first capture group is the
	// bundle's own version string
	BundlePattern func(Request) *regexp.Regexp
}

// DefaultLayouts returns the known layout generations, newest first. All of
// them are probed; order only decides which live copy wins.
func DefaultLayouts(cfg *config.Config) []Layout {
	return []Layout{
		{
			Name: "mirror-bundles",
			BinaryDir: func(r Request) string {
				return joinURL(cfg.MirrorBase, r.ReleaseID) + "/"
			},
			BundleDir: func(r Request) string {
				return joinURL(cfg.MirrorBase, "bundles", "openshift") + "/"
			},
			PatchBuckets:  true,
			BinaryPattern: binaryPattern,
			BundlePattern: func(r Request) *regexp.Regexp {
				// crc_libvirt_4.19.3_amd64.crcbundle
				return regexp.MustCompile(`^crc_` + regexp.QuoteMeta(r.Platform.Family()) +
					`_(` + regexp.QuoteMeta(r.LogicalVersion) + `\.\d+)_` +
					regexp.QuoteMeta(r.Platform.Arch) + `\.crcbundle$`)
			},
		},
		{
			Name: "gateway-release",
			BinaryDir: func(r Request) string {
				return joinURL(cfg.GatewayBase, r.ReleaseID) + "/"
			},
			BundleDir: func(r Request) string {
				// Older releases shipped the bundle next to the binary,
				// without an architecture suffix.
				return joinURL(cfg.GatewayBase, r.ReleaseID) + "/"
			},
			BinaryPattern: binaryPattern,
			BundlePattern: func(r Request) *regexp.Regexp {
				return regexp.MustCompile(`^crc_` + regexp.QuoteMeta(r.Platform.Family()) +
					`_(` + regexp.QuoteMeta(r.LogicalVersion) + `\.\d+)\.crcbundle$`)
			},
		},
	}
}

// binaryPattern matches both the plain and the release-qualified binary
// archive names ("crc-linux-amd64.tar.xz", "crc-linux-2.54.0-amd64.tar.xz").
func binaryPattern(r Request) *regexp.Regexp {
	return regexp.MustCompile(`^crc-` + regexp.QuoteMeta(r.Platform.OS) +
		`-(` + regexp.QuoteMeta(r.ReleaseID) + `-)?` +
		regexp.QuoteMeta(r.Platform.Arch) + `\.tar\.xz$`)
}

func joinURL(base string, parts ...string) string {
	url := strings.TrimSuffix(base, "/")

	for _, p := range parts {
		url += "/" + strings.Trim(p, "/")
	}

	return url
}
