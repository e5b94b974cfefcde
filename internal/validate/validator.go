// Package validate asserts structural and content correctness of published
// cache units. It runs as an independent consumer: units are pulled fresh
// from the store, never reusing builder state, so it doubles as a build gate
// and an external test surface.
package validate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/crc-mirror/crc-mirror/internal/artifact"
	"github.com/crc-mirror/crc-mirror/internal/config"
	"github.com/crc-mirror/crc-mirror/internal/unit"
)

// Status classifies a single check outcome.
type Status int

const (
	Pass Status = iota
	Fail
	Warn
)

func (s Status) String() string {
	switch s {
	case Pass:
		return "PASS"
	case Fail:
		return "FAIL"
	case Warn:
		return "WARN"
	default:
		return "UNKNOWN"
	}
}

// Check is one validation outcome.
type Check struct {
	Name   string
	Status Status
	Detail string
}

// Report aggregates all checks for one unit. The report, not any single
// check, is the unit of pass/fail.
type Report struct {
	LogicalVersion string
	Platform       string
	Checks         []Check
}

// OK reports whether no check failed (warnings are tolerated).
func (r *Report) OK() bool {
	for _, c := range r.Checks {
		if c.Status == Fail {
			return false
		}
	}

	return true
}

func (r *Report) add(name string, status Status, detail string) {
	r.Checks = append(r.Checks, Check{Name: name, Status: status, Detail: detail})
}

func (r *Report) pass(name string) {
	r.add(name, Pass, "")
}

// Validator checks published cache units.
type Validator struct {
	store unit.Store
	cfg   *config.Config
	log   *logrus.Logger
}

// New builds a Validator over the packaging store.
func New(store unit.Store, cfg *config.Config, log *logrus.Logger) *Validator {
	return &Validator{store: store, cfg: cfg, log: log}
}

// Validate pulls the published unit for a tuple and runs every check.
// Checks are independent: one failure never stops the remaining checks.
func (v *Validator) Validate(ctx context.Context, logicalVersion string, platform artifact.Platform) *Report {
	report := &Report{LogicalVersion: logicalVersion, Platform: platform.String()}

	published, err := v.store.Pull(ctx, logicalVersion, platform)
	if err != nil {
		report.add("unit retrievable", Fail, err.Error())
		// Every remaining check needs the unit's metadata and artifacts.
		return report
	}
	report.pass("unit retrievable")

	meta := published.Metadata

	v.checkMetadata(report, meta, logicalVersion, platform)
	v.checkReleaseID(report, meta)
	v.checkSize(report, "binary size above threshold", meta.BinarySize, v.cfg.MinSize(artifact.Binary))
	v.checkSize(report, "bundle size above threshold", meta.BundleSize, v.cfg.MinSize(artifact.Bundle))
	v.checkBinaryProbe(report, published)
	v.checkBundleProbe(report, published)
	v.checkObservedSizes(report, published)

	for _, c := range report.Checks {
		v.log.WithFields(logrus.Fields{
			"logical_version": logicalVersion,
			"platform":        platform.String(),
			"check":           c.Name,
			"status":          c.Status.String(),
		}).Debug(c.Detail)
	}

	return report
}

func (v *Validator) checkMetadata(r *Report, meta unit.Metadata, logicalVersion string, platform artifact.Platform) {
	const name = "metadata well-formed"

	switch {
	case meta.LogicalVersion != logicalVersion:
		r.add(name, Fail, fmt.Sprintf("declared logical_version %q does not match requested %q", meta.LogicalVersion, logicalVersion))
	case meta.Platform != platform.String():
		r.add(name, Fail, fmt.Sprintf("declared platform %q does not match requested %q", meta.Platform, platform))
	case meta.BinaryName == "" || meta.BundleName == "":
		r.add(name, Fail, "artifact names missing from metadata")
	case meta.BuildDate.IsZero():
		r.add(name, Fail, "build_date missing from metadata")
	default:
		r.pass(name)
	}
}

func (v *Validator) checkReleaseID(r *Report, meta unit.Metadata) {
	const name = "release id present"

	if meta.ReleaseID == "" {
		r.add(name, Fail, "release_id is empty")
		return
	}

	r.pass(name)
}

func (v *Validator) checkSize(r *Report, name string, size, minSize int64) {
	if size < minSize {
		r.add(name, Fail, fmt.Sprintf("declared size %d is below the %d byte minimum", size, minSize))
		return
	}

	r.pass(name)
}

func (v *Validator) checkBinaryProbe(r *Report, published *unit.PublishedUnit) {
	const name = "binary unpack probe"

	path := filepath.Join(published.Dir, published.Metadata.BinaryName)
	if err := probeBinaryArchive(path); err != nil {
		r.add(name, Fail, err.Error())
		return
	}

	r.pass(name)
}

func (v *Validator) checkBundleProbe(r *Report, published *unit.PublishedUnit) {
	const name = "bundle unpack probe"

	path := filepath.Join(published.Dir, published.Metadata.BundleName)
	if err := probeBundleArchive(path); err != nil {
		// Older bundle generations use a different compression; flag, don't fail.
		r.add(name, Warn, err.Error())
		return
	}

	r.pass(name)
}

func (v *Validator) checkObservedSizes(r *Report, published *unit.PublishedUnit) {
	const name = "declared sizes match observed"

	artifacts := []struct {
		file string
		size int64
	}{
		{published.Metadata.BinaryName, published.Metadata.BinarySize},
		{published.Metadata.BundleName, published.Metadata.BundleSize},
	}

	for _, a := range artifacts {
		info, err := os.Stat(filepath.Join(published.Dir, a.file))
		if err != nil {
			r.add(name, Fail, fmt.Sprintf("%s: %v", a.file, err))
			return
		}

		if info.Size() != a.size {
			r.add(name, Fail, fmt.Sprintf("%s: declared %d bytes, observed %d", a.file, a.size, info.Size()))
			return
		}
	}

	r.pass(name)
}
