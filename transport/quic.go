package transport

import (
	"context"
	"net"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/toolza/gobyte/certs"
)

// quicSession wraps a single bidirectional stream opened on a QUIC
// connection, per spec: "a single bidirectional stream on an encrypted
// connection".
type quicSession struct {
	conn   quic.Connection
	stream quic.Stream
}

func (s *quicSession) Read(p []byte) (int, error)  { return s.stream.Read(p) }
func (s *quicSession) Write(p []byte) (int, error) { return s.stream.Write(p) }

func (s *quicSession) Close() error {
	s.stream.Close()
	return s.conn.CloseWithError(0, "")
}

func (s *quicSession) SetReadDeadline(t time.Time) error  { return s.stream.SetReadDeadline(t) }
func (s *quicSession) SetWriteDeadline(t time.Time) error { return s.stream.SetWriteDeadline(t) }
func (s *quicSession) LocalAddr() net.Addr                { return s.conn.LocalAddr() }
func (s *quicSession) RemoteAddr() net.Addr                { return s.conn.RemoteAddr() }
func (s *quicSession) Unreliable() bool                    { return false }

type quicListener struct {
	ln *quic.Listener
}

func (l *quicListener) Accept(ctx context.Context) (Session, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	return &quicSession{conn: conn, stream: stream}, nil
}

func (l *quicListener) Addr() net.Addr { return l.ln.Addr() }
func (l *quicListener) Close() error   { return l.ln.Close() }

type quicTransport struct {
	store *certs.Store
}

func newQUICTransport(opts Options) (Transport, error) {
	dir := opts.CertDir
	if dir == "" {
		dir = "."
	}
	store, err := certs.NewStore(dir)
	if err != nil {
		return nil, err
	}
	return &quicTransport{store: store}, nil
}

func (*quicTransport) Kind() Kind { return QUIC }

func (t *quicTransport) Listen(_ context.Context, addr string) (Listener, error) {
	tlsConf, err := t.store.ServerTLSConfig(ALPNProtocol)
	if err != nil {
		return nil, err
	}
	ln, err := quic.ListenAddr(addr, tlsConf, quicConfig())
	if err != nil {
		return nil, err
	}
	return &quicListener{ln: ln}, nil
}

func (t *quicTransport) Dial(ctx context.Context, addr string) (Session, error) {
	tlsConf, err := t.store.ClientTLSConfig(ALPNProtocol)
	if err != nil {
		return nil, err
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig())
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return &quicSession{conn: conn, stream: stream}, nil
}

func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	}
}
