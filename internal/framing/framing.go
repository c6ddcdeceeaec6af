// Package framing layers wire.Message send/receive on top of a
// transport.Session, applying the per-read idle deadline spec §5 requires
// ("each suspension on read has a configurable idle deadline").
package framing

import (
	"time"

	"github.com/toolza/gobyte/transport"
	"github.com/toolza/gobyte/wire"
)

// DefaultIdleTimeout is the spec's default idle read deadline.
const DefaultIdleTimeout = 30 * time.Second

// Conn pairs a transport.Session with the idle timeout applied before each
// read.
type Conn struct {
	Session     transport.Session
	IdleTimeout time.Duration
}

// New wraps sess with the default idle timeout.
func New(sess transport.Session) *Conn {
	return &Conn{Session: sess, IdleTimeout: DefaultIdleTimeout}
}

// Send encodes and writes msg.
func (c *Conn) Send(msg wire.Message) error {
	frame, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	return transport.WriteAll(c.Session, frame)
}

// Receive applies the idle deadline, then decodes the next frame.
func (c *Conn) Receive() (wire.Message, error) {
	if c.IdleTimeout > 0 {
		if err := c.Session.SetReadDeadline(time.Now().Add(c.IdleTimeout)); err != nil {
			return nil, err
		}
	}
	return wire.Decode(&sessionReader{c.Session})
}

// sessionReader adapts transport.Session.Read to io.Reader for wire.Decode,
// which expects a plain io.Reader.
type sessionReader struct {
	transport.Session
}

// SendError is a convenience for the common "protocol violation -> respond
// with ERROR and close" pattern every illegal-transition path in the
// receiver (and, symmetrically, the sender) follows.
func (c *Conn) SendError(code uint16, message string) error {
	return c.Send(wire.Error{Code: code, Message: message})
}

// Close closes the underlying session. Idempotent per spec §5's
// cancellation requirement.
func (c *Conn) Close() error {
	return c.Session.Close()
}
