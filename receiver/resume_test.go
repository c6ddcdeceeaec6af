package receiver

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolza/gobyte/internal/digest"
	"github.com/toolza/gobyte/wire"
)

func TestBuildResumeReplyMissingFileReportsZero(t *testing.T) {
	dir := t.TempDir()

	reply, err := buildResumeReply(dir, 0, wire.ManifestEntry{Path: "missing.bin", Size: 10}, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), reply.HaveBytes)
}

func TestBuildResumeReplyFullSizeOutsideSyncSkipsHashing(t *testing.T) {
	dir := t.TempDir()
	content := []byte("0123456789")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.bin"), content, 0644))

	reply, err := buildResumeReply(dir, 0, wire.ManifestEntry{Path: "f.bin", Size: uint64(len(content))}, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(content)), reply.HaveBytes)
	assert.Equal(t, wire.Digest{}, reply.HaveDigest)
}

func TestBuildResumeReplyFullSizeUnderSyncMatchingMTimeSkipsHashing(t *testing.T) {
	dir := t.TempDir()
	content := []byte("0123456789")
	path := filepath.Join(dir, "f.bin")
	require.NoError(t, os.WriteFile(path, content, 0644))

	mtime := time.Now().Truncate(time.Second)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	reply, err := buildResumeReply(dir, 0, wire.ManifestEntry{
		Path:             "f.bin",
		Size:             uint64(len(content)),
		ModTimeUnixMilli: mtime.UnixMilli(),
	}, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(content)), reply.HaveBytes)
	assert.Equal(t, wire.Digest{}, reply.HaveDigest)
}

func TestBuildResumeReplyFullSizeUnderSyncMismatchedMTimeHashes(t *testing.T) {
	dir := t.TempDir()
	content := []byte("0123456789")
	path := filepath.Join(dir, "f.bin")
	require.NoError(t, os.WriteFile(path, content, 0644))

	onDiskMtime := time.Now().Truncate(time.Second)
	require.NoError(t, os.Chtimes(path, onDiskMtime, onDiskMtime))

	claimedMtime := onDiskMtime.Add(time.Hour)

	reply, err := buildResumeReply(dir, 0, wire.ManifestEntry{
		Path:             "f.bin",
		Size:             uint64(len(content)),
		ModTimeUnixMilli: claimedMtime.UnixMilli(),
	}, true)
	require.NoError(t, err)

	want, err := digest.File(path)
	require.NoError(t, err)
	assert.Equal(t, wire.Digest(want), reply.HaveDigest)
}

func TestBuildResumeReplyPartialFileReportsPrefixDigest(t *testing.T) {
	dir := t.TempDir()
	content := []byte("0123456789")
	path := filepath.Join(dir, "f.bin")
	require.NoError(t, os.WriteFile(path, content[:4], 0644))

	reply, err := buildResumeReply(dir, 0, wire.ManifestEntry{Path: "f.bin", Size: uint64(len(content))}, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), reply.HaveBytes)

	want, err := digest.Prefix(path, 4)
	require.NoError(t, err)
	assert.Equal(t, wire.Digest(want), reply.HaveDigest)
}

func TestBuildResumeReplyOversizedFileForcesFullRetransfer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.bin"), []byte("0123456789"), 0644))

	reply, err := buildResumeReply(dir, 0, wire.ManifestEntry{Path: "f.bin", Size: 4}, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), reply.HaveBytes)
}

func TestBuildResumeReplyRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()

	_, err := buildResumeReply(dir, 0, wire.ManifestEntry{Path: "../escape.bin", Size: 10}, false)
	assert.Error(t, err)
}
