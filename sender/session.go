package sender

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/toolza/gobyte/chunk"
	"github.com/toolza/gobyte/compress"
	"github.com/toolza/gobyte/internal/digest"
	"github.com/toolza/gobyte/internal/framing"
	"github.com/toolza/gobyte/internal/workerpool"
	"github.com/toolza/gobyte/plan"
	"github.com/toolza/gobyte/progress"
	"github.com/toolza/gobyte/transport"
	"github.com/toolza/gobyte/wire"
)

// ErrSessionAborted is returned once a session has exhausted its reconnect
// budget, per spec §4.5 step 3d.
var ErrSessionAborted = errors.New("sender: session aborted after repeated transport failures")

// netErr marks an error as transport-level (and therefore retriable by the
// reconnect loop in engine.go) rather than a protocol-level fatal.
type netErr struct{ err error }

func (e netErr) Error() string { return e.err.Error() }
func (e netErr) Unwrap() error { return e.err }

func isRetriable(err error) bool {
	var ne netErr
	return errors.As(err, &ne)
}

// runSession drives one connection's worth of the sender state machine
// (spec §4.1) starting at p.Entries[startIndex], resuming earlier entries
// implicitly via their RESUME_QUERY/REPLY exchange being naturally
// idempotent. It returns the index to resume from on the next connection
// attempt (only meaningful when err is retriable) and the error, if any.
func runSession(ctx context.Context, tr transport.Transport, target string, p plan.Plan, startIndex int, opts plan.Options, bus *progress.Bus, pool *workerpool.Pool, logger zerolog.Logger) (nextIndex int, err error) {
	sess, err := tr.Dial(ctx, target)
	if err != nil {
		return startIndex, netErr{err}
	}
	defer sess.Close()

	if sess.Unreliable() {
		return startIndex, transport.ErrNotReliable
	}

	conn := framing.New(sess)

	var nonce [16]byte
	if _, err := readRandom(nonce[:]); err != nil {
		return startIndex, err
	}

	flags := uint32(0)
	if opts.Compress {
		flags |= wire.FlagCompressionSupported
	}

	if err := conn.Send(wire.Hello{ProtocolVersion: wire.ProtocolVersion, Flags: flags, SessionNonce: nonce}); err != nil {
		return startIndex, netErr{err}
	}

	entries := make([]wire.ManifestEntry, len(p.Entries))
	for i, e := range p.Entries {
		entries[i] = wire.ManifestEntry{
			Path:             e.RelativePath,
			Size:             e.Size,
			ModTimeUnixMilli: e.ModTime.UnixMilli(),
			Digest:           wire.Digest(e.DigestHint),
		}
	}
	if err := conn.Send(wire.Manifest{Entries: entries}); err != nil {
		return startIndex, netErr{err}
	}

	for idx := startIndex; idx < len(p.Entries); idx++ {
		select {
		case <-ctx.Done():
			conn.SendError(wire.ErrCodeCancelled, "transfer cancelled")
			return idx, ctx.Err()
		default:
		}

		entry := p.Entries[idx]

		if err := runEntry(ctx, conn, uint32(idx), entry, opts, bus, pool, target, logger); err != nil {
			return idx, err
		}
	}

	if err := conn.Send(wire.SessionEnd{}); err != nil {
		return len(p.Entries), netErr{err}
	}

	return len(p.Entries), nil
}

// runEntry performs one entry's RESUME_QUERY through FILE_END (or a sync
// skip), per spec §4.5 steps 3a-3c and §4.8.
func runEntry(ctx context.Context, conn *framing.Conn, idx uint32, entry plan.Entry, opts plan.Options, bus *progress.Bus, pool *workerpool.Pool, target string, logger zerolog.Logger) error {
	if err := conn.Send(wire.ResumeQuery{EntryIndex: idx}); err != nil {
		return netErr{err}
	}

	msg, err := conn.Receive()
	if err != nil {
		return netErr{err}
	}

	reply, ok := msg.(wire.ResumeReply)
	if !ok {
		if wireErr, ok := msg.(wire.Error); ok {
			return wireErr
		}
		return errors.New("sender: expected RESUME_REPLY")
	}

	startOffset, skip, err := resolveResume(entry, reply, opts.Sync)
	if err != nil {
		return err
	}

	if skip {
		bus.Publish(progress.Skipped{Target: target, Entry: idx, Reason: "sync: already up to date"})
		return nil
	}

	return transferFile(ctx, conn, idx, entry, startOffset, opts, bus, pool, target, logger)
}

// resolveResume implements the sync-skip decision of spec §4.8. A receiver
// that already has the full file short-circuits its own digest
// computation when an on-disk mtime match already proved it, signalling
// that by returning a zero HaveDigest alongside HaveBytes == Size; sender
// treats that combination as a trusted match under sync. Otherwise sender
// lazily hashes its own copy and compares against HaveDigest.
func resolveResume(entry plan.Entry, reply wire.ResumeReply, sync bool) (startOffset uint64, skip bool, err error) {
	if reply.HaveBytes > entry.Size {
		return 0, false, nil
	}

	if reply.HaveBytes == entry.Size {
		if !sync {
			return reply.HaveBytes, false, nil
		}

		if reply.HaveDigest == wire.Digest(digest.Zero) {
			return 0, true, nil
		}

		localDigest, err := digest.File(entry.AbsolutePath)
		if err != nil {
			return 0, false, err
		}
		if wire.Digest(localDigest) == reply.HaveDigest {
			return 0, true, nil
		}
		return 0, false, nil
	}

	if reply.HaveBytes == 0 {
		return 0, false, nil
	}

	localPrefix, err := digest.Prefix(entry.AbsolutePath, int64(reply.HaveBytes))
	if err != nil {
		return 0, false, err
	}
	if wire.Digest(localPrefix) == reply.HaveDigest {
		return reply.HaveBytes, false, nil
	}
	return 0, false, nil
}

// transferFile sends FILE_BEGIN, streams CHUNK frames with adaptive sizing
// and optional compression, then FILE_END, per spec §4.1 and §4.3-4.4.
func transferFile(ctx context.Context, conn *framing.Conn, idx uint32, entry plan.Entry, startOffset uint64, opts plan.Options, bus *progress.Bus, pool *workerpool.Pool, target string, logger zerolog.Logger) error {
	if err := conn.Send(wire.FileBegin{EntryIndex: idx, StartOffset: startOffset}); err != nil {
		return netErr{err}
	}

	bus.Publish(progress.Started{Target: target, Entry: idx, Path: entry.RelativePath, Size: entry.Size})

	f, err := os.Open(entry.AbsolutePath)
	if err != nil {
		bus.Publish(progress.Failed{Target: target, Entry: idx, Err: err})
		return err
	}
	defer f.Close()

	sizer := chunk.NewSizer()
	running := digest.NewRunning()

	if startOffset > 0 {
		// Fold the already-acknowledged prefix into the running digest so
		// FILE_END still verifies the whole file, not just the resumed tail.
		// CopyN leaves f positioned exactly at startOffset, ready for the
		// chunk loop below.
		if _, err := io.CopyN(running, f, int64(startOffset)); err != nil {
			bus.Publish(progress.Failed{Target: target, Entry: idx, Err: err})
			return err
		}
	}

	offset := startOffset
	buf := make([]byte, chunk.MaxSize)

	for {
		select {
		case <-ctx.Done():
			bus.Publish(progress.Failed{Target: target, Entry: idx, Err: ctx.Err()})
			conn.SendError(wire.ErrCodeCancelled, "transfer cancelled")
			return ctx.Err()
		default:
		}

		n, readErr := f.Read(buf[:sizer.Size()])
		if n > 0 {
			raw := buf[:n]
			running.Write(raw)

			started := time.Now()

			var payload []byte
			var flags uint8
			if opts.Compress {
				result, err := workerpool.Submit(ctx, pool, func() compressedChunk {
					p, fl, err := compress.EncodeChunkPayload(raw)
					return compressedChunk{payload: p, flags: fl, err: err}
				})
				if err != nil {
					return err
				}
				c := <-result
				if c.err != nil {
					bus.Publish(progress.Failed{Target: target, Entry: idx, Err: c.err})
					return c.err
				}
				payload, flags = c.payload, c.flags
			} else {
				payload = raw
			}

			if err := conn.Send(wire.Chunk{EntryIndex: idx, Offset: offset, Flags: flags, Payload: payload}); err != nil {
				bus.Publish(progress.Failed{Target: target, Entry: idx, Err: err})
				return netErr{err}
			}

			elapsed := time.Since(started).Seconds()
			if elapsed > 0 {
				sizer.Observe(float64(n) / elapsed)
			}

			offset += uint64(n)
			bus.Publish(progress.Progress{Target: target, Entry: idx, BytesDelta: uint64(n)})
		}

		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			bus.Publish(progress.Failed{Target: target, Entry: idx, Err: readErr})
			return readErr
		}
	}

	if err := conn.Send(wire.FileEnd{EntryIndex: idx, Digest: wire.Digest(running.Sum())}); err != nil {
		bus.Publish(progress.Failed{Target: target, Entry: idx, Err: err})
		return netErr{err}
	}

	bus.Publish(progress.Finished{Target: target, Entry: idx})
	return nil
}

type compressedChunk struct {
	payload []byte
	flags   uint8
	err     error
}

// readRandom fills b from a CSPRNG, used for HELLO's session_nonce.
func readRandom(b []byte) (int, error) {
	return rand.Read(b)
}
