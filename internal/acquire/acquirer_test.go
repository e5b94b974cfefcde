package acquire

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crc-mirror/crc-mirror/internal/artifact"
	"github.com/crc-mirror/crc-mirror/internal/upstream"
)

// fakeFetcher serves canned payloads and counts downloads.
type fakeFetcher struct {
	files     map[string][]byte
	downloads int
}

func (f *fakeFetcher) Get(_ context.Context, url string) ([]byte, error) {
	return nil, &upstream.TransferError{URL: url, Status: 404, Attempts: 1}
}

func (f *fakeFetcher) Download(_ context.Context, url string, open func() (io.WriteCloser, error)) (int64, error) {
	f.downloads++

	body, ok := f.files[url]
	if !ok {
		return 0, &upstream.TransferError{URL: url, Status: 404, Attempts: 1}
	}

	dst, err := open()
	if err != nil {
		return 0, err
	}

	n, err := dst.Write(body)
	if err != nil {
		dst.Close()
		return int64(n), err
	}

	return int64(n), dst.Close()
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return logger
}

var (
	linuxAmd64 = artifact.Platform{OS: "linux", Arch: "amd64"}
	binaryKey  = Key{Kind: artifact.Binary, Release: "2.54.0", Platform: linuxAmd64}
)

const binaryURL = "https://mirror.test/crc/2.54.0/crc-linux-amd64.tar.xz"

func newAcquirer(t *testing.T, fetcher upstream.Fetcher) *Acquirer {
	t.Helper()

	a, err := New(t.TempDir(), fetcher, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	return a
}

func TestAcquireDownloadsOnMiss(t *testing.T) {
	payload := []byte("real artifact content, comfortably above the minimum")
	fetcher := &fakeFetcher{files: map[string][]byte{binaryURL: payload}}
	a := newAcquirer(t, fetcher)

	path, size, err := a.Acquire(context.Background(), binaryURL, binaryKey, 10)
	require.NoError(t, err)

	assert.Equal(t, int64(len(payload)), size)
	assert.Equal(t, filepath.Join(a.Dir(), "binary_2.54.0_linux-amd64.tar.xz"), path)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, onDisk)

	prov, err := a.Provenance(binaryKey)
	require.NoError(t, err)
	require.NotNil(t, prov)
	assert.Equal(t, binaryURL, prov.URL)
	assert.Equal(t, int64(len(payload)), prov.Size)
	assert.False(t, prov.FetchedAt.IsZero())
}

func TestAcquireHitAvoidsNetwork(t *testing.T) {
	payload := []byte("real artifact content, comfortably above the minimum")
	fetcher := &fakeFetcher{files: map[string][]byte{binaryURL: payload}}
	a := newAcquirer(t, fetcher)

	_, _, err := a.Acquire(context.Background(), binaryURL, binaryKey, 10)
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.downloads)

	path, size, err := a.Acquire(context.Background(), binaryURL, binaryKey, 10)
	require.NoError(t, err)

	assert.Equal(t, 1, fetcher.downloads, "a cache hit must not invoke the transport")
	assert.Equal(t, int64(len(payload)), size)
	assert.FileExists(t, path)
}

func TestAcquirePreSeededFileIsAHit(t *testing.T) {
	// A correctly named, correctly sized file is a valid hit regardless of
	// which build produced it.
	fetcher := &fakeFetcher{files: map[string][]byte{}}
	a := newAcquirer(t, fetcher)

	seeded := filepath.Join(a.Dir(), binaryKey.FileName())
	require.NoError(t, os.WriteFile(seeded, []byte("pre-seeded artifact bytes"), 0o644))

	path, _, err := a.Acquire(context.Background(), binaryURL, binaryKey, 10)
	require.NoError(t, err)

	assert.Equal(t, seeded, path)
	assert.Zero(t, fetcher.downloads)
}

func TestAcquireRejectsUndersizedPayload(t *testing.T) {
	// Upstream served a small HTML error page with a 200 status.
	fetcher := &fakeFetcher{files: map[string][]byte{binaryURL: []byte("<html>err</html>")}}
	a := newAcquirer(t, fetcher)

	_, _, err := a.Acquire(context.Background(), binaryURL, binaryKey, 1024)
	require.Error(t, err)

	var integrity *IntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, binaryURL, integrity.URL)
	assert.Equal(t, int64(len("<html>err</html>")), integrity.Size)
	assert.Equal(t, int64(1024), integrity.MinSize)

	// The bad payload must not enter the cache, and no temp file may remain.
	entries, readErr := os.ReadDir(a.Dir())
	require.NoError(t, readErr)
	for _, e := range entries {
		assert.Equal(t, "provenance.db", e.Name(), "unexpected leftover file %s", e.Name())
	}

	prov, err := a.Provenance(binaryKey)
	require.NoError(t, err)
	assert.Nil(t, prov)
}

func TestAcquireTransferFailureLeavesNoTrace(t *testing.T) {
	fetcher := &fakeFetcher{files: map[string][]byte{}}
	a := newAcquirer(t, fetcher)

	_, _, err := a.Acquire(context.Background(), binaryURL, binaryKey, 10)

	var transfer *upstream.TransferError
	require.ErrorAs(t, err, &transfer)

	_, statErr := os.Stat(filepath.Join(a.Dir(), binaryKey.FileName()))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLookupRejectsUndersizedFile(t *testing.T) {
	fetcher := &fakeFetcher{files: map[string][]byte{}}
	a := newAcquirer(t, fetcher)

	small := filepath.Join(a.Dir(), binaryKey.FileName())
	require.NoError(t, os.WriteFile(small, []byte("tiny"), 0o644))

	_, _, ok := a.Lookup(binaryKey, 1024)
	assert.False(t, ok, "an undersized file must not count as a hit")
}

// stagedFetcher writes a first chunk, then blocks until released before
// writing the rest, so a test can interleave a second writer mid-download.
type stagedFetcher struct {
	first, rest []byte
	wroteFirst  chan struct{}
	resume      chan struct{}
}

func (f *stagedFetcher) Get(_ context.Context, url string) ([]byte, error) {
	return nil, &upstream.TransferError{URL: url, Status: 404, Attempts: 1}
}

func (f *stagedFetcher) Download(_ context.Context, _ string, open func() (io.WriteCloser, error)) (int64, error) {
	dst, err := open()
	if err != nil {
		return 0, err
	}

	n1, err := dst.Write(f.first)
	if err != nil {
		dst.Close()
		return int64(n1), err
	}

	close(f.wroteFirst)
	<-f.resume

	n2, err := dst.Write(f.rest)
	if err != nil {
		dst.Close()
		return int64(n1 + n2), err
	}

	return int64(n1 + n2), dst.Close()
}

func TestAcquireConcurrentWritersNeverCorrupt(t *testing.T) {
	payloadA := bytes.Repeat([]byte("A"), 64)
	payloadB := bytes.Repeat([]byte("B"), 64)

	slow := &stagedFetcher{
		first:      payloadA[:32],
		rest:       payloadA[32:],
		wroteFirst: make(chan struct{}),
		resume:     make(chan struct{}),
	}
	a1 := newAcquirer(t, slow)

	// A second instance over the same cache directory, as a concurrent
	// invocation would hold: same files, independent in-process locks.
	a2 := &Acquirer{
		dir:     a1.dir,
		db:      a1.db,
		fetcher: &fakeFetcher{files: map[string][]byte{binaryURL: payloadB}},
		log:     testLogger(),
		locks:   make(map[string]*entryLock),
	}

	type outcome struct {
		size int64
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		_, size, err := a1.Acquire(context.Background(), binaryURL, binaryKey, 10)
		done <- outcome{size: size, err: err}
	}()

	<-slow.wroteFirst

	// The second writer downloads the full payload while the first is
	// mid-write, and must publish an intact copy.
	path, size, err := a2.Acquire(context.Background(), binaryURL, binaryKey, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payloadB)), size)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payloadB, content)

	close(slow.resume)

	first := <-done
	require.NoError(t, first.err, "the slower writer must still complete cleanly")
	assert.Equal(t, int64(len(payloadA)), first.size)

	// Whichever writer renamed last, the published file is one complete
	// payload, never an interleaving of both.
	final, err := os.ReadFile(filepath.Join(a1.Dir(), binaryKey.FileName()))
	require.NoError(t, err)
	assert.Equal(t, payloadA, final)

	entries, err := os.ReadDir(a1.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".part-"), "temp file %s left behind", e.Name())
	}
}

func TestKeyFileName(t *testing.T) {
	bundleKey := Key{Kind: artifact.Bundle, Release: "4.19.3", Platform: linuxAmd64}

	assert.Equal(t, "binary_2.54.0_linux-amd64.tar.xz", binaryKey.FileName())
	assert.Equal(t, "bundle_4.19.3_linux-amd64.crcbundle", bundleKey.FileName())
}
