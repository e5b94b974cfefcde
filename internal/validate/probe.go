package validate

import (
	"archive/tar"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// probeBinaryArchive checks that the binary artifact really is a tar.xz
// archive by decompressing far enough to read the first tar header.
func probeBinaryArchive(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	xr, err := xz.NewReader(f)
	if err != nil {
		return fmt.Errorf("not an xz stream: %w", err)
	}

	if _, err := tar.NewReader(xr).Next(); err != nil {
		return fmt.Errorf("no tar entry found: %w", err)
	}

	return nil
}

// probeBundleArchive checks that the bundle decompresses as zstd. Bundles
// from older releases used a different compression, so callers treat a probe
// failure as a warning rather than a hard failure.
func probeBundleArchive(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("not a zstd stream: %w", err)
	}
	defer zr.Close()

	buf := make([]byte, 512)
	if _, err := zr.Read(buf); err != nil && err != io.EOF {
		return fmt.Errorf("zstd stream unreadable: %w", err)
	}

	return nil
}
