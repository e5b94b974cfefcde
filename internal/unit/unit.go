// Package unit assembles acquired artifacts into published cache units and
// decides whether a rebuild is necessary at all.
package unit

import (
	"errors"
	"time"
)

// Metadata is the structured document published with every cache unit.
type Metadata struct {
	LogicalVersion string    `json:"logical_version"`
	ReleaseID      string    `json:"release_id"`
	Platform       string    `json:"platform"`
	BinaryName     string    `json:"binary_name"`
	BundleName     string    `json:"bundle_name"`
	BinarySize     int64     `json:"binary_size"`
	BundleSize     int64     `json:"bundle_size"`
	BuildDate      time.Time `json:"build_date"`
	MirrorURL      string    `json:"mirror_url"`
	BundleURL      string    `json:"bundle_url"`
	BuildID        string    `json:"build_id"`
}

// CacheUnit is a fully assembled, not yet published unit: the metadata plus
// the local paths of the verified artifacts.
type CacheUnit struct {
	Metadata   Metadata
	BinaryPath string
	BundlePath string
}

// PublishedUnit is a unit pulled back from the packaging store.
type PublishedUnit struct {
	Metadata Metadata

	// Dir is the local directory holding the published artifacts
	Dir string
}

// ErrNotFound is returned by Store.Pull when no unit is published for the
// requested (logical version, platform).
var ErrNotFound = errors.New("cache unit not found")
