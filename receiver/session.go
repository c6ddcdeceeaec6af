package receiver

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/toolza/gobyte/compress"
	"github.com/toolza/gobyte/internal/digest"
	"github.com/toolza/gobyte/internal/framing"
	"github.com/toolza/gobyte/internal/pathsafe"
	"github.com/toolza/gobyte/plan"
	"github.com/toolza/gobyte/progress"
	"github.com/toolza/gobyte/wire"
)

// ErrProtocol marks a violation of the message-sequencing state machine
// (spec §4.1): an out-of-order or unrecognized message at the top level.
var ErrProtocol = errors.New("receiver: protocol violation")

// ErrDigestMismatch is returned when a completed file's running digest does
// not match FILE_END's advertised digest.
var ErrDigestMismatch = errors.New("receiver: file digest mismatch")

// ErrOffsetViolation is returned when a CHUNK's offset does not match the
// receiver's current write offset, or would write past size_expected
// (spec §4.6, §3's "no chunk is ever written at an offset > size_expected").
var ErrOffsetViolation = errors.New("receiver: chunk offset out of sequence or exceeds entry size")

// ErrSizeMismatch is returned when FILE_END arrives but the bytes actually
// written do not equal the entry's expected size (spec §4.6).
var ErrSizeMismatch = errors.New("receiver: bytes written does not match expected size")

// ErrStreamingResumeUnsupported is returned when a FILE_BEGIN for a
// streaming archive suffix (.tar.lz4, .tar.zst) arrives with a nonzero
// StartOffset: a streaming archive is never left partially materialized on
// disk, so there is nothing to resume from (spec §4.6). This entry alone is
// refused; the session continues with the next one.
var ErrStreamingResumeUnsupported = errors.New("receiver: streaming archive extraction does not support resume")

func handleSession(ctx context.Context, conn *framing.Conn, opts plan.Options, bus *progress.Bus, locks *pathLocks, logger zerolog.Logger) error {
	target := conn.Session.RemoteAddr().String()

	msg, err := conn.Receive()
	if err != nil {
		return err
	}
	hello, ok := msg.(wire.Hello)
	if !ok {
		conn.SendError(wire.ErrCodeIllegalState, "expected HELLO")
		return ErrProtocol
	}
	if hello.ProtocolVersion != wire.ProtocolVersion {
		conn.SendError(wire.ErrCodeIllegalState, "unsupported protocol version")
		return ErrProtocol
	}

	msg, err = conn.Receive()
	if err != nil {
		return err
	}
	manifest, ok := msg.(wire.Manifest)
	if !ok {
		conn.SendError(wire.ErrCodeIllegalState, "expected MANIFEST")
		return ErrProtocol
	}

	for {
		select {
		case <-ctx.Done():
			conn.SendError(wire.ErrCodeCancelled, "session cancelled")
			return ctx.Err()
		default:
		}

		msg, err := conn.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		switch m := msg.(type) {
		case wire.ResumeQuery:
			if int(m.EntryIndex) >= len(manifest.Entries) {
				conn.SendError(wire.ErrCodeIllegalState, "entry index out of range")
				return ErrProtocol
			}
			reply, err := buildResumeReply(opts.SaveDir, m.EntryIndex, manifest.Entries[m.EntryIndex], opts.Sync)
			if err != nil {
				if errors.Is(err, pathsafe.ErrTraversal) {
					conn.SendError(wire.ErrCodePathTraversal, err.Error())
				} else {
					conn.SendError(wire.ErrCodeIO, err.Error())
				}
				return err
			}
			if err := conn.Send(reply); err != nil {
				return err
			}

		case wire.FileBegin:
			if int(m.EntryIndex) >= len(manifest.Entries) {
				conn.SendError(wire.ErrCodeIllegalState, "entry index out of range")
				return ErrProtocol
			}
			entry := manifest.Entries[m.EntryIndex]
			if err := receiveFile(ctx, conn, m, entry, target, opts, bus, locks, logger); err != nil {
				if errors.Is(err, ErrStreamingResumeUnsupported) {
					// Per-entry I/O recovery (spec §4.6, §7): this entry alone
					// is refused, the session keeps serving the rest.
					continue
				}
				return err
			}

		case wire.SessionEnd:
			bus.Publish(progress.SessionEnded{Target: target})
			return nil

		case wire.Error:
			return m

		default:
			conn.SendError(wire.ErrCodeUnknownTag, "unexpected message")
			return ErrProtocol
		}
	}
}

// receiveFile drives one entry's FILE_BEGIN through FILE_END, per spec
// §4.1 and §4.6.
func receiveFile(ctx context.Context, conn *framing.Conn, begin wire.FileBegin, entry wire.ManifestEntry, target string, opts plan.Options, bus *progress.Bus, locks *pathLocks, logger zerolog.Logger) error {
	bus.Publish(progress.Started{Target: target, Entry: begin.EntryIndex, Path: entry.Path, Size: entry.Size})

	if opts.Extract && compress.StreamingSuffix(entry.Path) && begin.StartOffset != 0 {
		bus.Publish(progress.Failed{Target: target, Entry: begin.EntryIndex, Err: ErrStreamingResumeUnsupported})
		conn.SendError(wire.ErrCodeIO, ErrStreamingResumeUnsupported.Error())
		return ErrStreamingResumeUnsupported
	}

	// The per-path lock is taken before openSink, which truncates the file
	// to StartOffset, so a second session waits here until the first one's
	// sink is closed.
	if !(opts.Extract && compress.StreamingSuffix(entry.Path)) {
		if lockPath, err := pathsafe.Resolve(opts.SaveDir, entry.Path); err == nil {
			defer locks.lock(lockPath)()
		}
	}

	sink, path, err := openSink(opts.SaveDir, entry.Path, begin.StartOffset, opts.Extract)
	if err != nil {
		bus.Publish(progress.Failed{Target: target, Entry: begin.EntryIndex, Err: err})
		if errors.Is(err, pathsafe.ErrTraversal) {
			conn.SendError(wire.ErrCodePathTraversal, err.Error())
		} else {
			conn.SendError(wire.ErrCodeIO, err.Error())
		}
		return err
	}

	running := digest.NewRunning()
	if begin.StartOffset > 0 && path != "" {
		if err := primeRunningDigest(running, path, begin.StartOffset); err != nil {
			sink.Close()
			bus.Publish(progress.Failed{Target: target, Entry: begin.EntryIndex, Err: err})
			return err
		}
	}

	writeOffset := begin.StartOffset

	for {
		select {
		case <-ctx.Done():
			sink.Close()
			bus.Publish(progress.Failed{Target: target, Entry: begin.EntryIndex, Err: ctx.Err()})
			conn.SendError(wire.ErrCodeCancelled, "session cancelled")
			return ctx.Err()
		default:
		}

		msg, err := conn.Receive()
		if err != nil {
			sink.Close()
			bus.Publish(progress.Failed{Target: target, Entry: begin.EntryIndex, Err: err})
			return err
		}

		switch m := msg.(type) {
		case wire.Chunk:
			if m.EntryIndex != begin.EntryIndex {
				sink.Close()
				conn.SendError(wire.ErrCodeIllegalState, "chunk for wrong entry")
				return ErrProtocol
			}

			raw, err := compress.DecodeChunkPayload(m.Payload, m.Flags)
			if err != nil {
				sink.Close()
				bus.Publish(progress.Failed{Target: target, Entry: begin.EntryIndex, Err: err})
				conn.SendError(wire.ErrCodeMalformedFrame, err.Error())
				return err
			}

			// spec §4.6: a chunk must land exactly at the offset the receiver
			// expects next, and must not carry the write past size_expected.
			if m.Offset != writeOffset || m.Offset+uint64(len(raw)) > entry.Size {
				sink.Close()
				bus.Publish(progress.Failed{Target: target, Entry: begin.EntryIndex, Err: ErrOffsetViolation})
				conn.SendError(wire.ErrCodeIllegalState, "chunk offset out of sequence or exceeds entry size")
				return ErrOffsetViolation
			}

			if _, err := sink.Write(raw); err != nil {
				sink.Close()
				bus.Publish(progress.Failed{Target: target, Entry: begin.EntryIndex, Err: err})
				return err
			}
			running.Write(raw)
			writeOffset += uint64(len(raw))
			bus.Publish(progress.Progress{Target: target, Entry: begin.EntryIndex, BytesDelta: uint64(len(raw))})

		case wire.FileEnd:
			if m.EntryIndex != begin.EntryIndex {
				sink.Close()
				conn.SendError(wire.ErrCodeIllegalState, "file_end for wrong entry")
				return ErrProtocol
			}

			if err := sink.Close(); err != nil {
				bus.Publish(progress.Failed{Target: target, Entry: begin.EntryIndex, Err: err})
				return err
			}

			if writeOffset != entry.Size {
				bus.Publish(progress.Failed{Target: target, Entry: begin.EntryIndex, Err: ErrSizeMismatch})
				conn.SendError(wire.ErrCodeSizeMismatch, "bytes written does not match size_expected")
				return ErrSizeMismatch
			}

			if running.Sum() != [32]byte(m.Digest) {
				bus.Publish(progress.Failed{Target: target, Entry: begin.EntryIndex, Err: ErrDigestMismatch})
				conn.SendError(wire.ErrCodeDigestMismatch, "file digest mismatch")
				return ErrDigestMismatch
			}

			if path != "" {
				mtime := time.UnixMilli(entry.ModTimeUnixMilli)
				if err := os.Chtimes(path, mtime, mtime); err != nil {
					logger.Warn().Str("path", path).Err(err).Msg("failed to restore modification time")
				}

				if opts.Extract && compress.NonStreamingArchiveSuffix(path) {
					if err := compress.PostExtract(path, opts.SaveDir); err != nil {
						bus.Publish(progress.Failed{Target: target, Entry: begin.EntryIndex, Err: err})
						return err
					}
				}
			}

			bus.Publish(progress.Finished{Target: target, Entry: begin.EntryIndex})
			return nil

		default:
			sink.Close()
			conn.SendError(wire.ErrCodeIllegalState, "unexpected message during file transfer")
			return ErrProtocol
		}
	}
}

// primeRunningDigest folds the already-on-disk prefix into running by
// re-reading it from the file at path, so FILE_END's digest check covers
// the whole file rather than just the bytes received on this connection.
func primeRunningDigest(running *digest.Running, path string, n uint64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.CopyN(running, f, int64(n))
	return err
}
