// Package progress implements the transfer engine's stats and progress
// bus: a single broadcast channel carrying typed events to any number of
// observers (UI views, the CLI renderer, a log sink), per spec §4.7.
package progress

// Event is the sum type carried on the bus. Exactly one of the concrete
// event types below is the dynamic type of any given Event.
type Event any

// Started fires once an entry's FILE_BEGIN has been sent/accepted.
type Started struct {
	Target string
	Entry  uint32
	Path   string
	Size   uint64
}

// Progress fires as bytes move. Progress events may be dropped under
// backpressure; Delta is only meaningful relative to events a subscriber
// actually received, not as a running total.
type Progress struct {
	Target        string
	Entry         uint32
	BytesDelta    uint64
	ThroughputBPS float64
}

// Finished fires once an entry's FILE_END has been verified.
type Finished struct {
	Target string
	Entry  uint32
}

// Skipped fires when sync mode determines an entry needs no transfer.
type Skipped struct {
	Target string
	Entry  uint32
	Reason string
}

// Failed fires once for an entry that could not complete; it does not
// abort sibling entries or sessions.
type Failed struct {
	Target string
	Entry  uint32
	Err    error
}

// SessionEnded fires once per target when that session's SESSION_END has
// been exchanged or the session aborted.
type SessionEnded struct {
	Target string
	Err    error
}

// isLifecycle reports whether e must never be dropped. Progress is the
// sole droppable event type; everything else is lifecycle.
func isLifecycle(e Event) bool {
	switch e.(type) {
	case Progress:
		return false
	default:
		return true
	}
}
