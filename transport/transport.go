// Package transport defines the reliable-bytestream contract shared by the
// four substrates gobyte can carry a session over (TCP, QUIC, KCP, raw UDP)
// and provides a driver for each. Shared sender/receiver code talks only to
// the Transport/Listener/Session interfaces; nothing above this package
// knows which substrate is underneath.
package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"time"
)

// Kind names the four substrates a session can run over. Both ends of a
// transfer must select the same Kind; a mismatch is a connection-level
// failure, surfaced as the substrate's own dial, handshake or read error.
type Kind string

const (
	TCP  Kind = "tcp"
	QUIC Kind = "quic"
	KCP  Kind = "kcp"
	UDP  Kind = "udp"
)

// ALPNProtocol is the QUIC ALPN identifier both ends must present.
const ALPNProtocol = "toolza/1"

// KCPConversationID is the KCP conversation id value 0x00000001. The KCP
// driver does not pass it to kcp-go: each dialed session uses the
// conversation id kcp-go chooses, and the listener accepts any.
const KCPConversationID uint32 = 0x00000001

var (
	// ErrTransportMismatch names the condition of the two ends of a
	// connection disagreeing about which Kind is in use. No driver in this
	// package returns it; a mismatch shows up as the substrate's own error.
	ErrTransportMismatch = errors.New("transport: kind mismatch between peers")

	// ErrNotReliable is returned by the sender engine when a file transfer
	// is attempted over a Session that does not satisfy the
	// reliable-bytestream contract (only the raw UDP driver returns true
	// from Unreliable). The receiver engine closes such a session instead.
	ErrNotReliable = errors.New("transport: substrate does not provide a reliable byte stream")

	// ErrUnknownKind is returned by New for an unrecognized Kind string.
	ErrUnknownKind = errors.New("transport: unknown transport kind")
)

// Session is a reliable, ordered, bidirectional byte stream belonging to
// one connection. Implementations for TCP, QUIC, and KCP satisfy the full
// reliable-bytestream contract; the raw UDP implementation does not and
// reports so via Unreliable.
type Session interface {
	io.Reader
	io.Writer
	Close() error

	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error

	LocalAddr() net.Addr
	RemoteAddr() net.Addr

	// Unreliable reports true only for the raw UDP driver, which exists
	// solely for throughput probing and must never carry a file transfer.
	Unreliable() bool
}

// Listener accepts incoming Sessions on a bound address.
type Listener interface {
	Accept(ctx context.Context) (Session, error)
	Addr() net.Addr
	Close() error
}

// Transport is the capability set a driver exposes: listen (receiver role)
// and dial (sender role).
type Transport interface {
	Kind() Kind
	Listen(ctx context.Context, addr string) (Listener, error)
	Dial(ctx context.Context, addr string) (Session, error)
}

// New resolves a Kind to its driver. Options configures driver-specific
// tunables (currently only the QUIC driver's certificate source).
func New(kind Kind, opts Options) (Transport, error) {
	switch kind {
	case TCP:
		return newTCPTransport(), nil
	case QUIC:
		return newQUICTransport(opts)
	case KCP:
		return newKCPTransport(), nil
	case UDP:
		return newUDPTransport(), nil
	default:
		return nil, ErrUnknownKind
	}
}

// Options carries driver-specific configuration. Zero value is valid for
// TCP, KCP, and UDP; QUIC caches its self-signed certificate under CertDir,
// defaulting to "." if empty.
type Options struct {
	CertDir string
}

// ReadExact reads exactly n bytes from s, matching the spec's
// Session.read_exact(n) operation.
func ReadExact(s Session, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(s, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteAll writes all of b to s, matching the spec's Session.write_all(bytes)
// operation. net.Conn and the QUIC/KCP stream types already guarantee a
// single Write call either writes everything or returns an error, but this
// helper loops defensively for any implementation that does partial writes.
func WriteAll(s Session, b []byte) error {
	for len(b) > 0 {
		n, err := s.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}
