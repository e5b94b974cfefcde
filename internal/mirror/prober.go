package mirror

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/crc-mirror/crc-mirror/internal/artifact"
	"github.com/crc-mirror/crc-mirror/internal/upstream"
)

// Candidate is a located artifact: its full URL, filename, and the version
// string the artifact itself carries (the release id for binaries, the full
// patch version for bundles).
type Candidate struct {
	URL     string
	Name    string
	Version string
}

// NotFoundError reports that no layout generation produced a listing
// containing a matching filename.
type NotFoundError struct {
	Kind    artifact.Kind
	Request Request
	Tried   []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no mirror layout located a %s for release %s (track %s, platform %s); probed %v",
		e.Kind, e.Request.ReleaseID, e.Request.LogicalVersion, e.Request.Platform, e.Tried)
}

// Prober walks the layout generations in order and returns the first
// confirmed candidate.
type Prober struct {
	layouts []Layout
	fetcher upstream.Fetcher
	log     *logrus.Logger
}

// NewProber builds a Prober over the given layouts.
func NewProber(layouts []Layout, fetcher upstream.Fetcher, log *logrus.Logger) *Prober {
	return &Prober{layouts: layouts, fetcher: fetcher, log: log}
}

// Locate finds the download URL for one artifact kind. A listing must
// actually contain a matching filename before a URL is returned; a reachable
// directory without a match means continue to the next layout, not success.
func (p *Prober) Locate(ctx context.Context, req Request, kind artifact.Kind) (*Candidate, error) {
	var tried []string

	for _, layout := range p.layouts {
		var candidate *Candidate
		var dir string
		var err error

		if kind == artifact.Bundle {
			candidate, dir, err = p.locateBundle(ctx, layout, req)
		} else {
			candidate, dir, err = p.locateBinary(ctx, layout, req)
		}

		tried = append(tried, dir)

		if err != nil {
			p.log.WithFields(logrus.Fields{
				"layout": layout.Name,
				"kind":   kind.String(),
				"dir":    dir,
			}).Debugf("layout probe failed: %v", err)
			continue
		}

		if candidate != nil {
			p.log.WithFields(logrus.Fields{
				"layout": layout.Name,
				"kind":   kind.String(),
				"url":    candidate.URL,
			}).Debug("located artifact")
			return candidate, nil
		}
	}

	return nil, &NotFoundError{Kind: kind, Request: req, Tried: tried}
}

func (p *Prober) locateBinary(ctx context.Context, layout Layout, req Request) (*Candidate, string, error) {
	dir := layout.BinaryDir(req)

	names, err := p.listing(ctx, dir)
	if err != nil {
		return nil, dir, err
	}

	pattern := layout.BinaryPattern(req)

	var matches []string
	for _, name := range names {
		if pattern.MatchString(name) {
			matches = append(matches, name)
		}
	}

	if len(matches) == 0 {
		return nil, dir, nil
	}

	sortVersionsDesc(matches)
	name := matches[0]

	return &Candidate{
		URL:     strings.TrimSuffix(dir, "/") + "/" + name,
		Name:    name,
		Version: req.ReleaseID,
	}, dir, nil
}

// locateBundle resolves a bundle. Layouts with patch buckets need two-level
// resolution: upstream buckets bundles by full patch version while the caller
// only knows the minor track, so the highest patch directory under the track
// is selected before its contents are listed.
func (p *Prober) locateBundle(ctx context.Context, layout Layout, req Request) (*Candidate, string, error) {
	dir := layout.BundleDir(req)

	if layout.PatchBuckets {
		patch, err := p.highestPatchDir(ctx, dir, req.LogicalVersion)
		if err != nil {
			return nil, dir, err
		}
		if patch == "" {
			return nil, dir, nil
		}

		dir = strings.TrimSuffix(dir, "/") + "/" + patch + "/"
	}

	names, err := p.listing(ctx, dir)
	if err != nil {
		return nil, dir, err
	}

	pattern := layout.BundlePattern(req)

	// Order by the captured version, not the filename: suffixes glued to the
	// patch component ("10_amd64") would defeat a lexical sort.
	type match struct {
		name    string
		version string
	}

	var matches []match
	for _, name := range names {
		if m := pattern.FindStringSubmatch(name); len(m) > 1 {
			matches = append(matches, match{name: name, version: m[1]})
		}
	}

	if len(matches) == 0 {
		return nil, dir, nil
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return compareVersions(matches[i].version, matches[j].version) > 0
	})
	best := matches[0]

	return &Candidate{
		URL:     strings.TrimSuffix(dir, "/") + "/" + best.name,
		Name:    best.name,
		Version: best.version,
	}, dir, nil
}

// highestPatchDir lists the bucket root and returns the highest patch
// directory under the minor track, without a trailing slash. Empty when the
// bucket has no directory for the track.
func (p *Prober) highestPatchDir(ctx context.Context, bucketRoot, logicalVersion string) (string, error) {
	names, err := p.listing(ctx, bucketRoot)
	if err != nil {
		return "", err
	}

	patchDir := regexp.MustCompile(`^` + regexp.QuoteMeta(logicalVersion) + `\.\d+$`)

	var patches []string
	for _, name := range names {
		trimmed := strings.TrimSuffix(name, "/")
		if trimmed != name && patchDir.MatchString(trimmed) {
			patches = append(patches, trimmed)
		}
	}

	if len(patches) == 0 {
		return "", nil
	}

	sortVersionsDesc(patches)

	return patches[0], nil
}

// ProbeResult reports the outcome of probing one (layout, kind) pair,
// used by the mirror reachability command.
type ProbeResult struct {
	Layout string
	Kind   artifact.Kind
	Dir    string
	Found  string
	Err    error
}

// Survey probes every layout for every artifact kind and reports each
// outcome individually instead of stopping at the first hit.
func (p *Prober) Survey(ctx context.Context, req Request) []ProbeResult {
	var results []ProbeResult

	for _, layout := range p.layouts {
		for _, kind := range artifact.Kinds {
			var candidate *Candidate
			var dir string
			var err error

			if kind == artifact.Bundle {
				candidate, dir, err = p.locateBundle(ctx, layout, req)
			} else {
				candidate, dir, err = p.locateBinary(ctx, layout, req)
			}

			result := ProbeResult{Layout: layout.Name, Kind: kind, Dir: dir, Err: err}
			if candidate != nil {
				result.Found = candidate.URL
			}

			results = append(results, result)
		}
	}

	return results
}

func (p *Prober) listing(ctx context.Context, dir string) ([]string, error) {
	body, err := p.fetcher.Get(ctx, dir)
	if err != nil {
		return nil, err
	}

	return parseListing(body), nil
}
