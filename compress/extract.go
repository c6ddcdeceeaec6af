package compress

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/toolza/gobyte/internal/pathsafe"
)

// Sink is an append-only byte consumer: either a raw file appender or the
// head of a streaming extractor pipeline, per spec §3's "open_sink" /
// §9's sink-chain design note. Write must apply back-pressure synchronously
// — no intermediate buffer may grow unboundedly.
type Sink interface {
	io.Writer
	Close() error
}

// StreamingSuffix reports whether path's suffix triggers the streaming
// extraction pipeline (spec §4.4) rather than write-then-extract.
func StreamingSuffix(path string) bool {
	return strings.HasSuffix(path, ".tar.lz4") || strings.HasSuffix(path, ".tar.zst")
}

// NonStreamingArchiveSuffix reports whether path is a recognized archive
// type extracted in place after FILE_END, rather than streamed.
func NonStreamingArchiveSuffix(path string) bool {
	switch {
	case strings.HasSuffix(path, ".tar"):
		return true
	case strings.HasSuffix(path, ".tar.gz"):
		return true
	case strings.HasSuffix(path, ".zip"):
		return true
	case strings.HasSuffix(path, ".lz4"):
		return true
	default:
		return false
	}
}

// pipeWriter lets an io.Pipe's writer side satisfy Sink; Close waits for
// the decompressor+tar-parser goroutine started by NewStreamingExtractor.
type pipeWriter struct {
	w    *io.PipeWriter
	done <-chan error
}

func (p *pipeWriter) Write(b []byte) (int, error) { return p.w.Write(b) }

func (p *pipeWriter) Close() error {
	p.w.Close()
	return <-p.done
}

// NewStreamingExtractor builds the pipeline described in spec §4.4:
// network-bytes -> decompressor -> tar-parser -> filesystem. CHUNK
// payloads are written into the returned Sink as they arrive; the archive
// is never materialized on disk. suffix selects the decompressor (lz4 for
// .tar.lz4, zstd for .tar.zst).
func NewStreamingExtractor(saveDir, suffix string) (Sink, error) {
	pr, pw := io.Pipe()
	done := make(chan error, 1)

	go func() {
		err := extractTarStream(pr, saveDir, suffix)
		if err == nil {
			// The tar end-of-archive marker can precede the end of the
			// compressed stream; consume the rest so the writer never sees a
			// closed pipe.
			_, err = io.Copy(io.Discard, pr)
		}
		done <- err
		pr.CloseWithError(err)
	}()

	return &pipeWriter{w: pw, done: done}, nil
}

func extractTarStream(r io.Reader, saveDir, suffix string) error {
	var decompressed io.Reader

	switch {
	case strings.HasSuffix(suffix, ".tar.lz4"):
		decompressed = lz4.NewReader(r)
	case strings.HasSuffix(suffix, ".tar.zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return err
		}
		defer zr.Close()
		decompressed = zr
	default:
		return fmt.Errorf("compress: unsupported streaming suffix %q", suffix)
	}

	return extractTarEntries(tar.NewReader(decompressed), saveDir)
}

func extractTarEntries(tr *tar.Reader, saveDir string) error {
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target, err := pathsafe.Resolve(saveDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			f, err := os.Create(target)
			if err != nil {
				return err
			}
			// Write applies back-pressure synchronously: the tar reader
			// (and therefore the caller feeding network bytes into the
			// pipe) blocks on this copy until the filesystem keeps up.
			_, err = io.Copy(f, tr)
			closeErr := f.Close()
			if err != nil {
				return err
			}
			if closeErr != nil {
				return closeErr
			}
		}
	}
}

// PostExtract handles the non-streaming archive suffixes (.tar, .tar.gz,
// .zip, .lz4) once FILE_END has succeeded and the archive sits whole on
// disk. These individual parsers are a minimal, stdlib-only plug-point
// implementation — per spec §1 the archive format parsers themselves are
// out of scope; this exists only so extract=true does not silently no-op
// for these suffixes.
func PostExtract(archivePath, saveDir string) error {
	switch {
	case strings.HasSuffix(archivePath, ".tar.gz"):
		f, err := os.Open(archivePath)
		if err != nil {
			return err
		}
		defer f.Close()
		gz, err := gzip.NewReader(f)
		if err != nil {
			return err
		}
		defer gz.Close()
		return extractTarEntries(tar.NewReader(gz), saveDir)

	case strings.HasSuffix(archivePath, ".tar"):
		f, err := os.Open(archivePath)
		if err != nil {
			return err
		}
		defer f.Close()
		return extractTarEntries(tar.NewReader(f), saveDir)

	case strings.HasSuffix(archivePath, ".zip"):
		return extractZip(archivePath, saveDir)

	case strings.HasSuffix(archivePath, ".lz4"):
		f, err := os.Open(archivePath)
		if err != nil {
			return err
		}
		defer f.Close()

		target, err := pathsafe.Resolve(saveDir, strings.TrimSuffix(filepath.Base(archivePath), ".lz4"))
		if err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			return err
		}
		defer out.Close()

		_, err = io.Copy(out, lz4.NewReader(f))
		return err

	default:
		return fmt.Errorf("compress: %q is not a recognized archive suffix", archivePath)
	}
}

func extractZip(archivePath, saveDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, f := range zr.File {
		target, err := pathsafe.Resolve(saveDir, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			return err
		}

		out, err := os.Create(target)
		if err != nil {
			rc.Close()
			return err
		}

		_, copyErr := io.Copy(out, rc)
		rc.Close()
		closeErr := out.Close()
		if copyErr != nil {
			return copyErr
		}
		if closeErr != nil {
			return closeErr
		}
	}

	return nil
}
