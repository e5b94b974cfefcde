// Package resolver maps logical version tracks to concrete upstream release
// identifiers using a tiered lookup: explicit pins, a shared remote pin
// document, an embedded fallback table, and finally the upstream release
// index for tracks pinned to "auto".
package resolver

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/crc-mirror/crc-mirror/internal/config"
	"github.com/crc-mirror/crc-mirror/internal/upstream"
)

// Auto is the pin sentinel requesting resolution against the upstream
// release index instead of a fixed release id.
const Auto = "auto"

// Strategy is one resolution tier. Resolve returns the release id, or "" when
// the strategy has no answer for the track (a miss, not a failure). Returning
// the Auto sentinel routes resolution to the upstream release index.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, logicalVersion string) (string, error)
}

// ResolutionError reports that no resolution tier produced a release id.
type ResolutionError struct {
	LogicalVersion string
	Tried          []string
	Err            error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("no resolution strategy produced a release for %q (tried %v)", e.LogicalVersion, e.Tried)
	if e.Err != nil {
		msg += fmt.Sprintf(": last error: %v", e.Err)
	}

	return msg
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Resolver evaluates strategies in order and memoizes results, so a logical
// version resolves identically for the lifetime of one build run even if
// upstream publishes a new release mid-run.
type Resolver struct {
	strategies []Strategy
	log        *logrus.Logger

	mu       sync.Mutex
	resolved map[string]string
}

// New wires the standard strategy chain from configuration.
func New(cfg *config.Config, fetcher upstream.Fetcher, log *logrus.Logger) *Resolver {
	return NewWithStrategies(log,
		&pinnedStrategy{pins: cfg.Pins},
		&pinDocumentStrategy{url: cfg.PinURL, fetcher: fetcher, log: log},
		&fallbackTableStrategy{},
		&upstreamLatestStrategy{url: cfg.ReleasesURL, fetcher: fetcher, log: log},
	)
}

// NewWithStrategies builds a Resolver over an explicit strategy chain.
func NewWithStrategies(log *logrus.Logger, strategies ...Strategy) *Resolver {
	return &Resolver{
		strategies: strategies,
		log:        log,
		resolved:   make(map[string]string),
	}
}

// Resolve maps a logical version to a concrete release identifier. The first
// strategy returning a non-empty, non-auto value wins. A tier answering Auto
// skips the remaining lookup tiers and defers to the upstream index.
func (r *Resolver) Resolve(ctx context.Context, logicalVersion string) (string, error) {
	r.mu.Lock()
	if release, ok := r.resolved[logicalVersion]; ok {
		r.mu.Unlock()
		return release, nil
	}
	r.mu.Unlock()

	var tried []string
	var lastErr error
	auto := false

	for _, s := range r.strategies {
		if auto && !queriesUpstream(s) {
			continue
		}

		tried = append(tried, s.Name())

		release, err := s.Resolve(ctx, logicalVersion)
		if err != nil {
			lastErr = err
			r.log.WithFields(logrus.Fields{
				"strategy":        s.Name(),
				"logical_version": logicalVersion,
			}).Warnf("resolution strategy failed: %v", err)
			continue
		}

		if release == Auto {
			auto = true
			continue
		}

		if release != "" {
			r.log.WithFields(logrus.Fields{
				"strategy":        s.Name(),
				"logical_version": logicalVersion,
				"release_id":      release,
			}).Debug("resolved logical version")

			r.mu.Lock()
			r.resolved[logicalVersion] = release
			r.mu.Unlock()

			return release, nil
		}
	}

	return "", &ResolutionError{LogicalVersion: logicalVersion, Tried: tried, Err: lastErr}
}

// latestQuerier marks strategies that honor the Auto sentinel by querying
// the upstream release index.
type latestQuerier interface {
	ResolvesAuto() bool
}

func queriesUpstream(s Strategy) bool {
	q, ok := s.(latestQuerier)
	return ok && q.ResolvesAuto()
}
