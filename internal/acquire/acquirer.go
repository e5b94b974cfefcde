// Package acquire fetches artifacts into the local reuse cache. The cache is
// the dominant-cost optimization of the whole pipeline: bundles are multiple
// gigabytes, and a correctly named, correctly sized file on disk means the
// network is skipped entirely, regardless of which build produced the file.
//
// Artifact bytes live on the filesystem under the cache directory; a small
// BoltDB alongside them records provenance (source URL, size, fetch time).
// The filename on disk is the authoritative hit test, the database is not
// consulted for hit/miss decisions.
package acquire

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"

	"github.com/crc-mirror/crc-mirror/internal/artifact"
	"github.com/crc-mirror/crc-mirror/internal/upstream"
)

const provenanceBucket = "artifacts"

// Key identifies one reuse-cache entry.
type Key struct {
	Kind artifact.Kind

	// Release is the artifact's own version: the tool release for binaries,
	// the full bundle patch version for bundles.
	Release string

	Platform artifact.Platform
}

// FileName returns the cache filename for the key.
func (k Key) FileName() string {
	return artifact.CacheFileName(k.Kind, k.Release, k.Platform)
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Kind, k.Release, k.Platform)
}

// Provenance records where a cached artifact came from.
type Provenance struct {
	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Acquirer manages the reuse cache directory.
type Acquirer struct {
	dir     string
	db      *bbolt.DB
	fetcher upstream.Fetcher
	log     *logrus.Logger

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// New opens (creating if needed) the reuse cache at dir.
func New(dir string, fetcher upstream.Fetcher, log *logrus.Logger) (*Acquirer, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dbPath := filepath.Join(abs, "provenance.db")
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open provenance database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(provenanceBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create provenance bucket: %w", err)
	}

	return &Acquirer{
		dir:     abs,
		db:      db,
		fetcher: fetcher,
		log:     log,
		locks:   make(map[string]*entryLock),
	}, nil
}

// Close closes the provenance database.
func (a *Acquirer) Close() error {
	if a.db != nil {
		return a.db.Close()
	}

	return nil
}

// Dir returns the cache directory path.
func (a *Acquirer) Dir() string {
	return a.dir
}

// Lookup checks the reuse cache without touching the network. A hit requires
// the file to exist under its canonical name and meet the minimum size.
func (a *Acquirer) Lookup(key Key, minSize int64) (string, int64, bool) {
	path := filepath.Join(a.dir, key.FileName())

	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() < minSize {
		return "", 0, false
	}

	return path, info.Size(), true
}

// Acquire returns the local path and size of the artifact, consulting the
// reuse cache first and fetching on a miss. Fetches go to a temporary file
// and are renamed into place only after the whole payload arrived and passed
// the minimum-size check; undersized payloads are discarded, never cached.
func (a *Acquirer) Acquire(ctx context.Context, url string, key Key, minSize int64) (string, int64, error) {
	unlock := a.lockEntry(key)
	defer unlock()

	if path, size, ok := a.Lookup(key, minSize); ok {
		a.log.WithFields(logrus.Fields{
			"key":  key.String(),
			"path": path,
			"size": size,
		}).Debug("reuse cache hit")
		return path, size, nil
	}

	finalPath := filepath.Join(a.dir, key.FileName())

	a.log.WithFields(logrus.Fields{
		"key": key.String(),
		"url": url,
	}).Info("reuse cache miss, downloading")

	// Each attempt writes to its own uniquely named temp file, so a writer in
	// another process working on the same key never shares a destination; the
	// rename decides which complete copy is published.
	var tempPath string

	written, err := a.fetcher.Download(ctx, url, func() (io.WriteCloser, error) {
		if tempPath != "" {
			os.Remove(tempPath)
		}

		f, err := os.CreateTemp(a.dir, ".part-"+key.FileName()+"-*")
		if err != nil {
			return nil, err
		}

		tempPath = f.Name()
		return f, nil
	})
	if err != nil {
		if tempPath != "" {
			os.Remove(tempPath)
		}
		return "", 0, err
	}

	if written < minSize {
		os.Remove(tempPath)
		return "", 0, &IntegrityError{Key: key, URL: url, Size: written, MinSize: minSize}
	}

	if err := os.Chmod(tempPath, 0o644); err != nil {
		os.Remove(tempPath)
		return "", 0, fmt.Errorf("failed to finalize artifact: %w", err)
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return "", 0, fmt.Errorf("failed to move artifact into cache: %w", err)
	}

	if err := a.recordProvenance(key, Provenance{URL: url, Size: written, FetchedAt: time.Now().UTC()}); err != nil {
		// Provenance is advisory; the artifact itself is already in place.
		a.log.WithField("key", key.String()).Warnf("failed to record provenance: %v", err)
	}

	return finalPath, written, nil
}

// Provenance returns the recorded origin of a cached artifact, or nil when
// none was recorded (e.g. the file was pre-seeded by hand).
func (a *Acquirer) Provenance(key Key) (*Provenance, error) {
	var p *Provenance

	err := a.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(provenanceBucket)).Get([]byte(key.FileName()))
		if data == nil {
			return nil
		}

		p = &Provenance{}
		return json.Unmarshal(data, p)
	})
	if err != nil {
		return nil, err
	}

	return p, nil
}

func (a *Acquirer) recordProvenance(key Key, p Provenance) error {
	return a.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}

		return tx.Bucket([]byte(provenanceBucket)).Put([]byte(key.FileName()), data)
	})
}

// lockEntry serializes work on one cache key within the process, so two
// concurrent builds never download the same key twice. Cross-process races
// stay harmless because every writer downloads into its own temp file before
// the rename into place: a duplicate download is wasted work, never a
// corrupted artifact.
func (a *Acquirer) lockEntry(key Key) func() {
	name := key.FileName()

	a.mu.Lock()
	lock := a.locks[name]
	if lock == nil {
		lock = &entryLock{}
		a.locks[name] = lock
	}
	lock.refs++
	a.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()
		a.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(a.locks, name)
		}
		a.mu.Unlock()
	}
}
