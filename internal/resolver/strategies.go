package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/crc-mirror/crc-mirror/internal/upstream"
)

// pinnedStrategy answers from the explicit pin table in the configuration.
// Authoritative when a pin is present.
type pinnedStrategy struct {
	pins map[string]string
}

func (s *pinnedStrategy) Name() string {
	return "config-pins"
}

func (s *pinnedStrategy) Resolve(_ context.Context, logicalVersion string) (string, error) {
	return s.pins[logicalVersion], nil
}

// pinDocumentStrategy fetches the shared remote pin document. A transient
// fetch failure (the fetcher already retries with backoff) is tolerated as a
// miss so resolution falls through to the next tier.
type pinDocumentStrategy struct {
	url     string
	fetcher upstream.Fetcher
	log     *logrus.Logger
}

type pinDocument struct {
	VersionPins map[string]string `json:"version_pins"`
}

func (s *pinDocumentStrategy) Name() string {
	return "pin-document"
}

func (s *pinDocumentStrategy) Resolve(ctx context.Context, logicalVersion string) (string, error) {
	if s.url == "" {
		return "", nil
	}

	body, err := s.fetcher.Get(ctx, s.url)
	if err != nil {
		s.log.WithField("url", s.url).Warnf("pin document unreachable, falling through: %v", err)
		return "", nil
	}

	var doc pinDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("malformed pin document at %s: %w", s.url, err)
	}

	return doc.VersionPins[logicalVersion], nil
}

// fallbackReleases is the embedded last-known-good table used when neither
// the configuration nor the pin document can answer.
var fallbackReleases = map[string]string{
	"4.16": "2.39.0",
	"4.17": "2.42.0",
	"4.18": "2.47.0",
	"4.19": "2.54.0",
}

type fallbackTableStrategy struct{}

func (s *fallbackTableStrategy) Name() string {
	return "fallback-table"
}

func (s *fallbackTableStrategy) Resolve(_ context.Context, logicalVersion string) (string, error) {
	return fallbackReleases[logicalVersion], nil
}

// upstreamLatestStrategy queries the upstream release index. Releases whose
// display name embeds the logical version as a "-<track>.<patch>" suffix are
// preferred; when none match, the single most recent release is taken as a
// degraded match and a warning is emitted.
type upstreamLatestStrategy struct {
	url     string
	fetcher upstream.Fetcher
	log     *logrus.Logger
}

type releaseEntry struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	PublishedAt time.Time `json:"published_at"`
	Draft       bool      `json:"draft"`
	Prerelease  bool      `json:"prerelease"`
}

func (s *upstreamLatestStrategy) Name() string {
	return "upstream-latest"
}

func (s *upstreamLatestStrategy) ResolvesAuto() bool {
	return true
}

func (s *upstreamLatestStrategy) Resolve(ctx context.Context, logicalVersion string) (string, error) {
	if s.url == "" {
		return "", nil
	}

	body, err := s.fetcher.Get(ctx, s.url)
	if err != nil {
		return "", fmt.Errorf("release index unreachable: %w", err)
	}

	var entries []releaseEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return "", fmt.Errorf("malformed release index at %s: %w", s.url, err)
	}

	published := entries[:0]
	for _, e := range entries {
		if !e.Draft && !e.Prerelease {
			published = append(published, e)
		}
	}

	if len(published) == 0 {
		return "", nil
	}

	sort.SliceStable(published, func(i, j int) bool {
		return published[i].PublishedAt.After(published[j].PublishedAt)
	})

	// Release names embed the track they ship, e.g. "2.54.0-4.19.3".
	suffix := regexp.MustCompile(`-` + regexp.QuoteMeta(logicalVersion) + `\.\d+$`)

	for _, e := range published {
		if suffix.MatchString(e.Name) || suffix.MatchString(e.TagName) {
			return releaseID(e), nil
		}
	}

	// Degraded match: the naming convention may have changed, or the track
	// is newer than any named release. Best effort, not a failure.
	latest := published[0]
	s.log.WithFields(logrus.Fields{
		"logical_version": logicalVersion,
		"release_id":      releaseID(latest),
		"release_name":    latest.Name,
	}).Warn("no release name matched the logical version; falling back to most recent release")

	return releaseID(latest), nil
}

func releaseID(e releaseEntry) string {
	id := e.TagName
	if id == "" {
		id = e.Name
	}

	id = strings.TrimPrefix(id, "v")
	if i := strings.IndexByte(id, '-'); i > 0 {
		id = id[:i]
	}

	return id
}
