package validate

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/crc-mirror/crc-mirror/internal/artifact"
	"github.com/crc-mirror/crc-mirror/internal/config"
	"github.com/crc-mirror/crc-mirror/internal/unit"
)

var linuxAmd64 = artifact.Platform{OS: "linux", Arch: "amd64"}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return logger
}

// makeTarXz builds a minimal tar.xz archive holding one executable entry.
func makeTarXz(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer

	xw, err := xz.NewWriter(&buf)
	require.NoError(t, err)

	content := []byte("#!/bin/sh\necho crc\n")
	tw := tar.NewWriter(xw)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "crc", Mode: 0o755, Size: int64(len(content))}))
	_, err = tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, xw.Close())

	return buf.Bytes()
}

// makeZstd builds a small zstd stream standing in for a bundle.
func makeZstd(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer

	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)

	_, err = zw.Write(bytes.Repeat([]byte("bundle data "), 64))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

// writeUnit lays a published unit directly into the store tree so tests can
// tamper with individual pieces.
func writeUnit(t *testing.T, root string, meta unit.Metadata, binary, bundle []byte) {
	t.Helper()

	dir := filepath.Join(root, meta.LogicalVersion, meta.Platform)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(dir, meta.BinaryName), binary, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, meta.BundleName), bundle, 0o644))

	data, err := json.MarshalIndent(meta, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0o644))
}

func validMetadata(binarySize, bundleSize int64) unit.Metadata {
	return unit.Metadata{
		LogicalVersion: "4.19",
		ReleaseID:      "2.54.0",
		Platform:       "linux-amd64",
		BinaryName:     "crc-linux-amd64.tar.xz",
		BundleName:     "crc_libvirt_4.19.3_amd64.crcbundle",
		BinarySize:     binarySize,
		BundleSize:     bundleSize,
		BuildDate:      time.Now().UTC(),
		MirrorURL:      "https://mirror.test/crc/2.54.0/crc-linux-amd64.tar.xz",
		BundleURL:      "https://mirror.test/crc/bundles/openshift/4.19.3/crc_libvirt_4.19.3_amd64.crcbundle",
		BuildID:        "test-build",
	}
}

func newValidator(t *testing.T, root string) *Validator {
	t.Helper()

	store, err := unit.NewDirStore(root)
	require.NoError(t, err)

	cfg := &config.Config{BinaryMinSize: 10, BundleMinSize: 10}

	return New(store, cfg, testLogger())
}

func checkByName(t *testing.T, report *Report, name string) Check {
	t.Helper()

	for _, c := range report.Checks {
		if c.Name == name {
			return c
		}
	}

	t.Fatalf("check %q missing from report", name)
	return Check{}
}

func TestValidateHealthyUnit(t *testing.T) {
	root := t.TempDir()
	binary := makeTarXz(t)
	bundle := makeZstd(t)

	writeUnit(t, root, validMetadata(int64(len(binary)), int64(len(bundle))), binary, bundle)

	report := newValidator(t, root).Validate(context.Background(), "4.19", linuxAmd64)

	assert.True(t, report.OK())
	for _, c := range report.Checks {
		assert.Equal(t, Pass, c.Status, "check %q: %s", c.Name, c.Detail)
	}
}

func TestValidateMissingUnit(t *testing.T) {
	report := newValidator(t, t.TempDir()).Validate(context.Background(), "4.19", linuxAmd64)

	assert.False(t, report.OK())
	require.Len(t, report.Checks, 1)
	assert.Equal(t, "unit retrievable", report.Checks[0].Name)
	assert.Equal(t, Fail, report.Checks[0].Status)
}

func TestValidateLogicalVersionMismatch(t *testing.T) {
	root := t.TempDir()
	binary := makeTarXz(t)
	bundle := makeZstd(t)

	// Unit published under 4.19 but declaring 4.20 in its metadata.
	meta := validMetadata(int64(len(binary)), int64(len(bundle)))
	meta.LogicalVersion = "4.20"
	dir := filepath.Join(root, "4.19", meta.Platform)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, meta.BinaryName), binary, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, meta.BundleName), bundle, 0o644))
	data, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0o644))

	report := newValidator(t, root).Validate(context.Background(), "4.19", linuxAmd64)

	assert.False(t, report.OK())
	assert.Equal(t, Fail, checkByName(t, report, "metadata well-formed").Status)

	// Independent checks still ran despite the metadata failure.
	assert.Equal(t, Pass, checkByName(t, report, "binary unpack probe").Status)
}

func TestValidateEmptyReleaseID(t *testing.T) {
	root := t.TempDir()
	binary := makeTarXz(t)
	bundle := makeZstd(t)

	meta := validMetadata(int64(len(binary)), int64(len(bundle)))
	meta.ReleaseID = ""
	writeUnit(t, root, meta, binary, bundle)

	report := newValidator(t, root).Validate(context.Background(), "4.19", linuxAmd64)

	assert.Equal(t, Fail, checkByName(t, report, "release id present").Status)
}

func TestValidateUndersizedBinary(t *testing.T) {
	root := t.TempDir()
	bundle := makeZstd(t)
	binary := []byte("bad")

	meta := validMetadata(int64(len(binary)), int64(len(bundle)))
	writeUnit(t, root, meta, binary, bundle)

	report := newValidator(t, root).Validate(context.Background(), "4.19", linuxAmd64)

	assert.False(t, report.OK())
	assert.Equal(t, Fail, checkByName(t, report, "binary size above threshold").Status)
	assert.Equal(t, Fail, checkByName(t, report, "binary unpack probe").Status)
}

func TestValidateDeclaredSizeMismatch(t *testing.T) {
	root := t.TempDir()
	binary := makeTarXz(t)
	bundle := makeZstd(t)

	meta := validMetadata(int64(len(binary))+999, int64(len(bundle)))
	writeUnit(t, root, meta, binary, bundle)

	report := newValidator(t, root).Validate(context.Background(), "4.19", linuxAmd64)

	check := checkByName(t, report, "declared sizes match observed")
	assert.Equal(t, Fail, check.Status)
	assert.Contains(t, check.Detail, "declared")
}

func TestValidateForeignBundleCompressionWarns(t *testing.T) {
	root := t.TempDir()
	binary := makeTarXz(t)
	bundle := bytes.Repeat([]byte("not a zstd stream"), 8)

	writeUnit(t, root, validMetadata(int64(len(binary)), int64(len(bundle))), binary, bundle)

	report := newValidator(t, root).Validate(context.Background(), "4.19", linuxAmd64)

	assert.Equal(t, Warn, checkByName(t, report, "bundle unpack probe").Status)
	assert.True(t, report.OK(), "a bundle compression warning alone must not fail the report")
}
