package receiver

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/toolza/gobyte/compress"
	"github.com/toolza/gobyte/internal/pathsafe"
)

// pathLocks serializes concurrent writers targeting the same destination
// path. Spec §3 leaves concurrent writes to one path as last-writer-wins;
// this registry strengthens that to "fully serialized" (one session at a
// time per path; waiting sessions are not ordered) rather than letting two
// sessions' writes interleave on the same file (a decision recorded in
// DESIGN.md).
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*sync.Mutex)}
}

func (p *pathLocks) lock(path string) func() {
	p.mu.Lock()
	l, ok := p.locks[path]
	if !ok {
		l = &sync.Mutex{}
		p.locks[path] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// fileSink appends to a regular file at a given start offset, per spec
// §4.6's resumed-write invariant.
type fileSink struct {
	f *os.File
}

func newFileSink(path string, startOffset uint64) (*fileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}

	// Discard any stale tail beyond startOffset, whether from a prior
	// interrupted write or an oversized file buildResumeReply rejected
	// (spec §4.6: "truncate on first CHUNK at offset 0"; §3: bytes written
	// must equal size_expected, never more).
	if err := f.Truncate(int64(startOffset)); err != nil {
		f.Close()
		return nil, err
	}

	if _, err := f.Seek(int64(startOffset), 0); err != nil {
		f.Close()
		return nil, err
	}

	return &fileSink{f: f}, nil
}

func (s *fileSink) Write(b []byte) (int, error) { return s.f.Write(b) }
func (s *fileSink) Close() error                { return s.f.Close() }

// openSink resolves entry.Path against saveDir and picks between a plain
// file sink and the streaming archive extractor, per spec §4.4. Streaming
// extraction never resumes mid-archive: StartOffset is expected to be 0 for
// any entry matching compress.StreamingSuffix, since a streaming archive is
// never left partially materialized on disk for buildResumeReply to find.
func openSink(saveDir string, entry string, startOffset uint64, extract bool) (compress.Sink, string, error) {
	if extract && compress.StreamingSuffix(entry) {
		sink, err := compress.NewStreamingExtractor(saveDir, suffixOf(entry))
		return sink, "", err
	}

	path, err := pathsafe.Resolve(saveDir, entry)
	if err != nil {
		return nil, "", err
	}

	sink, err := newFileSink(path, startOffset)
	return sink, path, err
}

func suffixOf(path string) string {
	switch {
	case strings.HasSuffix(path, ".tar.lz4"):
		return ".tar.lz4"
	case strings.HasSuffix(path, ".tar.zst"):
		return ".tar.zst"
	default:
		return ""
	}
}
