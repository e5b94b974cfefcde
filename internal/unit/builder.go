package unit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/crc-mirror/crc-mirror/internal/acquire"
	"github.com/crc-mirror/crc-mirror/internal/artifact"
	"github.com/crc-mirror/crc-mirror/internal/config"
	"github.com/crc-mirror/crc-mirror/internal/logging"
	"github.com/crc-mirror/crc-mirror/internal/mirror"
	"github.com/crc-mirror/crc-mirror/internal/resolver"
)

// Result reports the outcome of one (logical version, platform) build.
type Result struct {
	LogicalVersion string
	Platform       artifact.Platform
	ReleaseID      string

	// Skipped is set when the published unit already carries the freshly
	// resolved release id and force was not requested.
	Skipped bool

	// Ref is the published reference when a unit was built
	Ref string

	Unit *CacheUnit

	// Err is set on per-tuple failures during batch builds
	Err error
}

// Summary aggregates a batch build.
type Summary struct {
	Results []*Result
}

// Failed returns the results that ended in an error.
func (s *Summary) Failed() []*Result {
	var failed []*Result

	for _, r := range s.Results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}

	return failed
}

// Builder runs the resolution/acquisition/packaging pipeline for one tuple
// at a time. Tuples are independent; a Builder may serve concurrent builds
// for different tuples.
type Builder struct {
	cfg      *config.Config
	resolver *resolver.Resolver
	prober   *mirror.Prober
	acquirer *acquire.Acquirer
	store    Store
	log      *logrus.Logger

	now   func() time.Time
	newID func() string
}

// NewBuilder wires a Builder from its collaborators.
func NewBuilder(cfg *config.Config, res *resolver.Resolver, prober *mirror.Prober, acq *acquire.Acquirer, store Store, log *logrus.Logger) *Builder {
	return &Builder{
		cfg:      cfg,
		resolver: res,
		prober:   prober,
		acquirer: acq,
		store:    store,
		log:      log,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Build produces and publishes a cache unit for one tuple. With force unset,
// the build is skipped without touching the network when the published unit
// already records the freshly resolved release id.
func (b *Builder) Build(ctx context.Context, logicalVersion string, platform artifact.Platform, force bool) (*Result, error) {
	buildID := b.newID()
	log := b.log.WithFields(logging.BuildFields(buildID, logicalVersion, platform.String()))

	releaseID, err := b.resolver.Resolve(ctx, logicalVersion)
	if err != nil {
		return nil, err
	}

	log = log.WithField("release_id", releaseID)

	if !force {
		existing, err := b.store.Pull(ctx, logicalVersion, platform)
		switch {
		case err == nil && existing.Metadata.ReleaseID == releaseID:
			log.Info("published unit is current, skipping rebuild")
			return &Result{
				LogicalVersion: logicalVersion,
				Platform:       platform,
				ReleaseID:      releaseID,
				Skipped:        true,
			}, nil
		case err != nil && !errors.Is(err, ErrNotFound):
			log.Warnf("could not read published unit, rebuilding: %v", err)
		}
	}

	req := mirror.Request{ReleaseID: releaseID, LogicalVersion: logicalVersion, Platform: platform}

	binary, bundle, err := b.acquirePair(ctx, req, log)
	if err != nil {
		return nil, err
	}

	u := &CacheUnit{
		Metadata: Metadata{
			LogicalVersion: logicalVersion,
			ReleaseID:      releaseID,
			Platform:       platform.String(),
			BinaryName:     binary.candidate.Name,
			BundleName:     bundle.candidate.Name,
			BinarySize:     binary.size,
			BundleSize:     bundle.size,
			BuildDate:      b.now().UTC(),
			MirrorURL:      binary.candidate.URL,
			BundleURL:      bundle.candidate.URL,
			BuildID:        buildID,
		},
		BinaryPath: binary.path,
		BundlePath: bundle.path,
	}

	// A partially assembled unit must never be published: re-verify both
	// artifacts on disk against the size invariants right before handoff.
	if err := b.verify(u); err != nil {
		return nil, err
	}

	ref, err := b.store.Publish(ctx, u)
	if err != nil {
		return nil, &PublishError{LogicalVersion: logicalVersion, Platform: platform.String(), Err: err}
	}

	log.WithField("ref", ref).Info("published cache unit")

	return &Result{
		LogicalVersion: logicalVersion,
		Platform:       platform,
		ReleaseID:      releaseID,
		Ref:            ref,
		Unit:           u,
	}, nil
}

type acquired struct {
	candidate *mirror.Candidate
	path      string
	size      int64
}

func (b *Builder) acquirePair(ctx context.Context, req mirror.Request, log *logrus.Entry) (binary, bundle *acquired, err error) {
	binary, err = b.acquireOne(ctx, req, artifact.Binary, log)
	if err != nil {
		return nil, nil, err
	}

	bundle, err = b.acquireOne(ctx, req, artifact.Bundle, log)
	if err != nil {
		return nil, nil, err
	}

	return binary, bundle, nil
}

func (b *Builder) acquireOne(ctx context.Context, req mirror.Request, kind artifact.Kind, log *logrus.Entry) (*acquired, error) {
	candidate, err := b.prober.Locate(ctx, req, kind)
	if err != nil {
		return nil, err
	}

	key := acquire.Key{Kind: kind, Release: candidate.Version, Platform: req.Platform}

	path, size, err := b.acquirer.Acquire(ctx, candidate.URL, key, b.cfg.MinSize(kind))
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"kind": kind.String(),
		"url":  candidate.URL,
		"size": size,
	}).Debug("artifact acquired")

	return &acquired{candidate: candidate, path: path, size: size}, nil
}

func (b *Builder) verify(u *CacheUnit) error {
	checks := []struct {
		path    string
		size    int64
		minSize int64
		kind    artifact.Kind
	}{
		{u.BinaryPath, u.Metadata.BinarySize, b.cfg.MinSize(artifact.Binary), artifact.Binary},
		{u.BundlePath, u.Metadata.BundleSize, b.cfg.MinSize(artifact.Bundle), artifact.Bundle},
	}

	for _, c := range checks {
		info, err := os.Stat(c.path)
		if err != nil {
			return fmt.Errorf("%s missing before publication: %w", c.kind, err)
		}

		if info.Size() != c.size || info.Size() < c.minSize {
			return fmt.Errorf("%s at %s is %d bytes, expected %d (min %d)",
				c.kind, c.path, info.Size(), c.size, c.minSize)
		}
	}

	return nil
}

// Prefetch resolves, locates and acquires both artifacts for a tuple into the
// reuse cache without publishing anything.
func (b *Builder) Prefetch(ctx context.Context, logicalVersion string, platform artifact.Platform) error {
	releaseID, err := b.resolver.Resolve(ctx, logicalVersion)
	if err != nil {
		return err
	}

	req := mirror.Request{ReleaseID: releaseID, LogicalVersion: logicalVersion, Platform: platform}
	log := b.log.WithFields(logging.BuildFields(b.newID(), logicalVersion, platform.String()))

	_, _, err = b.acquirePair(ctx, req, log)

	return err
}

// BuildAll runs Build over every (version, platform) tuple. Failures are
// local to their tuple: remaining tuples still run, and the summary carries
// the per-tuple outcomes.
func (b *Builder) BuildAll(ctx context.Context, versions []string, platforms []artifact.Platform, force bool) *Summary {
	summary := &Summary{}

	for _, v := range versions {
		for _, p := range platforms {
			result, err := b.Build(ctx, v, p, force)
			if err != nil {
				b.log.WithFields(logrus.Fields{
					"logical_version": v,
					"platform":        p.String(),
				}).Errorf("build failed: %v", err)

				result = &Result{LogicalVersion: v, Platform: p, Err: err}
			}

			summary.Results = append(summary.Results, result)
		}
	}

	return summary
}
