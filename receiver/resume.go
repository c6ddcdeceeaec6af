package receiver

import (
	"os"
	"time"

	"github.com/toolza/gobyte/internal/digest"
	"github.com/toolza/gobyte/internal/pathsafe"
	"github.com/toolza/gobyte/wire"
)

// buildResumeReply answers a RESUME_QUERY per spec §4.6 and the sync-skip
// contract of §4.8: whatever bytes already sit on disk for this entry, plus
// a digest of them, except when sync mode's mtime shortcut already proved a
// full match without hashing (signalled by a zero HaveDigest alongside a
// full-size HaveBytes — see sender.resolveResume).
func buildResumeReply(saveDir string, idx uint32, entry wire.ManifestEntry, sync bool) (wire.ResumeReply, error) {
	reply := wire.ResumeReply{EntryIndex: idx}

	path, err := pathsafe.Resolve(saveDir, entry.Path)
	if err != nil {
		return reply, err
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return reply, nil
	}
	if err != nil {
		return reply, err
	}

	size := uint64(info.Size())

	switch {
	case size > entry.Size:
		// Stale or corrupt leftover: force a full retransfer.
		return reply, nil

	case size == entry.Size:
		reply.HaveBytes = size

		if sync && mtimesMatch(info.ModTime(), entry.ModTimeUnixMilli) {
			// Trust the mtime match; skip hashing an already-complete file.
			return reply, nil
		}
		if !sync {
			// Plain resume only cares that the size already matches; the
			// sender treats this as "nothing left to send" regardless of
			// digest.
			return reply, nil
		}

		d, err := digest.File(path)
		if err != nil {
			return reply, err
		}
		reply.HaveDigest = wire.Digest(d)
		return reply, nil

	default:
		d, err := digest.Prefix(path, int64(size))
		if err != nil {
			return reply, err
		}
		reply.HaveBytes = size
		reply.HaveDigest = wire.Digest(d)
		return reply, nil
	}
}

// mtimesMatch compares to the second, per spec §4.8.
func mtimesMatch(onDisk time.Time, manifestUnixMilli int64) bool {
	return onDisk.Unix() == time.UnixMilli(manifestUnixMilli).Unix()
}
