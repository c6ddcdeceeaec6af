// Package plan defines the transfer plan and options shared by the sender
// and receiver engines, per spec §3.
package plan

import (
	"time"

	"github.com/toolza/gobyte/transport"
)

// DefaultPort is the default listen/dial port, per spec §3 and §6.
const DefaultPort uint16 = 9527

// Options enumerates the configuration spec §3 names. Not every field
// applies to both roles; fields are documented per their owning side.
type Options struct {
	Port uint16 // both

	Transport transport.Kind // both; must match on both ends

	Compress bool // sender only; receiver auto-detects per-chunk
	Sync     bool // sender only
	Flat     bool // sender only

	Extract bool   // receiver only
	SaveDir string // receiver only
}

// DefaultOptions returns spec-compliant defaults.
func DefaultOptions() Options {
	return Options{
		Port:      DefaultPort,
		Transport: transport.TCP,
	}
}

// Entry is one planned file, carried in the MANIFEST before any bytes.
type Entry struct {
	RelativePath string
	AbsolutePath string // sender-side only; never serialized
	Size         uint64
	ModTime      time.Time
	DigestHint   [32]byte // zero means "unknown", per spec §4.1
}

// HasDigestHint reports whether DigestHint carries a real digest rather
// than the "unknown" sentinel.
func (e Entry) HasDigestHint() bool {
	return e.DigestHint != [32]byte{}
}

// Plan is the ordered, immutable-for-the-session sequence of entries
// announced in a MANIFEST.
type Plan struct {
	Entries []Entry
}

// TotalBytes sums every entry's size.
func (p Plan) TotalBytes() uint64 {
	var total uint64
	for _, e := range p.Entries {
		total += e.Size
	}
	return total
}
