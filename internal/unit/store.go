package unit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/crc-mirror/crc-mirror/internal/artifact"
)

const metadataFile = "metadata.json"

// Store is the packaging collaborator: opaque storage for artifact bytes plus
// the structured metadata document. Publication for one (logical version,
// platform) supersedes any earlier unit under the same key.
type Store interface {
	// Publish stores a unit and returns a reference to the published copy.
	Publish(ctx context.Context, u *CacheUnit) (string, error)

	// Pull retrieves the currently published unit, or ErrNotFound.
	Pull(ctx context.Context, logicalVersion string, platform artifact.Platform) (*PublishedUnit, error)
}

// dirStore publishes units into a local directory tree:
//
//	<root>/<logical-version>/<platform>/metadata.json
//	<root>/<logical-version>/<platform>/<binary>
//	<root>/<logical-version>/<platform>/<bundle>
//
// Units are staged in a sibling directory and renamed into place, so readers
// never observe a partially assembled unit.
type dirStore struct {
	root string
}

// NewDirStore opens (creating if needed) a directory-backed store at root.
func NewDirStore(root string) (Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store directory: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	return &dirStore{root: abs}, nil
}

func (s *dirStore) Publish(_ context.Context, u *CacheUnit) (string, error) {
	versionDir := filepath.Join(s.root, u.Metadata.LogicalVersion)
	finalDir := filepath.Join(versionDir, u.Metadata.Platform)
	stageDir := filepath.Join(versionDir, ".staging-"+u.Metadata.Platform+"-"+u.Metadata.BuildID)

	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return "", err
	}

	if err := s.assemble(stageDir, u); err != nil {
		os.RemoveAll(stageDir)
		return "", err
	}

	// Supersede, never mutate: the previous unit is replaced wholesale.
	if err := os.RemoveAll(finalDir); err != nil {
		os.RemoveAll(stageDir)
		return "", err
	}

	if err := os.Rename(stageDir, finalDir); err != nil {
		os.RemoveAll(stageDir)
		return "", err
	}

	return finalDir, nil
}

func (s *dirStore) assemble(stageDir string, u *CacheUnit) error {
	if err := copyFile(u.BinaryPath, filepath.Join(stageDir, u.Metadata.BinaryName)); err != nil {
		return fmt.Errorf("failed to stage binary: %w", err)
	}

	if err := copyFile(u.BundlePath, filepath.Join(stageDir, u.Metadata.BundleName)); err != nil {
		return fmt.Errorf("failed to stage bundle: %w", err)
	}

	data, err := json.MarshalIndent(u.Metadata, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(stageDir, metadataFile), data, 0o644)
}

func (s *dirStore) Pull(_ context.Context, logicalVersion string, platform artifact.Platform) (*PublishedUnit, error) {
	dir := filepath.Join(s.root, logicalVersion, platform.String())

	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("malformed unit metadata in %s: %w", dir, err)
	}

	return &PublishedUnit{Metadata: meta, Dir: dir}, nil
}

// copyFile copies a file from src to dst, preserving permissions.
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}

	defer srcFile.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}

	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return err
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}

	return os.Chmod(dst, srcInfo.Mode())
}
